package client

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"sync"

	pb "github.com/and161185/cipherchat/api/chat/v1"
	"github.com/and161185/cipherchat/internal/convert"
	"github.com/and161185/cipherchat/internal/model"
	"github.com/gofrs/uuid/v5"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
)

// bearerCreds attaches the current access token to every call.
type bearerCreds struct {
	mu     sync.RWMutex
	token  string
	secure bool
}

func (b *bearerCreds) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.token == "" {
		return nil, nil
	}
	return map[string]string{"authorization": "Bearer " + b.token}, nil
}

func (b *bearerCreds) RequireTransportSecurity() bool { return b.secure }

func (b *bearerCreds) set(token string) {
	b.mu.Lock()
	b.token = token
	b.mu.Unlock()
}

// DialOptions selects the transport security of Dial.
type DialOptions struct {
	CACert    string // PEM file; empty uses the system roots
	Insecure  bool   // TLS without certificate verification
	Plaintext bool   // no TLS at all (local development)
}

func loadTLS(caPath string, skipVerify bool) (credentials.TransportCredentials, error) {
	if skipVerify {
		return credentials.NewTLS(&tls.Config{InsecureSkipVerify: true}), nil
	}
	if caPath == "" {
		return credentials.NewClientTLSFromCert(nil, ""), nil
	}
	pem, err := os.ReadFile(caPath)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, errors.New("bad CA cert")
	}
	return credentials.NewTLS(&tls.Config{RootCAs: pool}), nil
}

// Dial connects to addr and returns a backend over the connection.
func Dial(ctx context.Context, addr string, o DialOptions) (*grpc.ClientConn, *GRPCBackend, error) {
	var creds credentials.TransportCredentials
	if o.Plaintext {
		creds = insecure.NewCredentials()
	} else {
		c, err := loadTLS(o.CACert, o.Insecure)
		if err != nil {
			return nil, nil, err
		}
		creds = c
	}
	//nolint:staticcheck // DialContext is supported through 1.x
	cc, err := grpc.DialContext(ctx, addr, grpc.WithTransportCredentials(creds))
	if err != nil {
		return nil, nil, err
	}
	return cc, NewGRPCBackend(cc, !o.Plaintext), nil
}

// GRPCBackend implements Backend over the Chat gRPC service.
type GRPCBackend struct {
	cl    pb.ChatClient
	creds *bearerCreds
}

var _ Backend = (*GRPCBackend)(nil)

// NewGRPCBackend wraps a connection. secure must match the transport: the
// token is only sent over TLS when it is set.
func NewGRPCBackend(cc grpc.ClientConnInterface, secure bool) *GRPCBackend {
	return &GRPCBackend{cl: pb.NewChatClient(cc), creds: &bearerCreds{secure: secure}}
}

func (b *GRPCBackend) opts() []grpc.CallOption {
	return []grpc.CallOption{grpc.PerRPCCredentials(b.creds)}
}

func (b *GRPCBackend) SetToken(token string) { b.creds.set(token) }

func accountFrom(resp *pb.AuthResponse) (Account, error) {
	usr := resp.GetUser()
	id, err := convert.ParseUUID("user id", usr.GetID())
	if err != nil {
		return Account{}, err
	}
	return Account{
		UserID:            id,
		Username:          usr.Username,
		FriendCode:        usr.FriendCode,
		PublicKey:         usr.PublicKey,
		WrappedPrivateKey: usr.WrappedPrivateKey,
		Token:             resp.AccessToken,
		ExpiresAt:         resp.ExpiresAt,
	}, nil
}

func (b *GRPCBackend) Register(ctx context.Context, username, password, publicKey, wrappedKey string) (Account, error) {
	resp, err := b.cl.Register(ctx, &pb.RegisterRequest{
		Username:          username,
		Password:          password,
		PublicKey:         publicKey,
		WrappedPrivateKey: wrappedKey,
	})
	if err != nil {
		return Account{}, err
	}
	acc, err := accountFrom(resp)
	if err != nil {
		return Account{}, err
	}
	b.creds.set(acc.Token)
	return acc, nil
}

func (b *GRPCBackend) Login(ctx context.Context, username, password string) (Account, error) {
	resp, err := b.cl.Login(ctx, &pb.LoginRequest{Username: username, Password: password})
	if err != nil {
		return Account{}, err
	}
	acc, err := accountFrom(resp)
	if err != nil {
		return Account{}, err
	}
	b.creds.set(acc.Token)
	return acc, nil
}

func (b *GRPCBackend) Me(ctx context.Context) (Account, error) {
	usr, err := b.cl.Me(ctx, &emptypb.Empty{}, b.opts()...)
	if err != nil {
		return Account{}, err
	}
	return accountFrom(&pb.AuthResponse{User: usr})
}

func (b *GRPCBackend) ChangePassword(ctx context.Context, oldPassword, newPassword, wrappedKey string) error {
	_, err := b.cl.ChangePassword(ctx, &pb.ChangePasswordRequest{
		OldPassword:       oldPassword,
		NewPassword:       newPassword,
		WrappedPrivateKey: wrappedKey,
	}, b.opts()...)
	return err
}

func (b *GRPCBackend) PublicKey(ctx context.Context, userID uuid.UUID) (string, error) {
	usr, err := b.cl.GetPublicKey(ctx, &pb.GetPublicKeyRequest{UserID: userID.String()}, b.opts()...)
	if err != nil {
		return "", err
	}
	return usr.PublicKey, nil
}

func (b *GRPCBackend) CreateGroup(ctx context.Context, name, encryptedKey, sharedBy string) (model.UserGroup, error) {
	g, err := b.cl.CreateGroup(ctx, &pb.CreateGroupRequest{
		Name:              name,
		EncryptedGroupKey: encryptedKey,
		SharerPublicKey:   sharedBy,
	}, b.opts()...)
	if err != nil {
		return model.UserGroup{}, err
	}
	return convert.FromProtoGroup(g)
}

func (b *GRPCBackend) JoinGroup(ctx context.Context, code string) (model.UserGroup, error) {
	g, err := b.cl.JoinGroup(ctx, &pb.JoinGroupRequest{GroupCode: code}, b.opts()...)
	if err != nil {
		return model.UserGroup{}, err
	}
	return convert.FromProtoGroup(g)
}

func (b *GRPCBackend) ListGroups(ctx context.Context) ([]model.UserGroup, error) {
	resp, err := b.cl.ListGroups(ctx, &emptypb.Empty{}, b.opts()...)
	if err != nil {
		return nil, err
	}
	out := make([]model.UserGroup, 0, len(resp.Groups))
	for i, g := range resp.Groups {
		ug, err := convert.FromProtoGroup(g)
		if err != nil {
			return nil, fmt.Errorf("group[%d]: %w", i, err)
		}
		out = append(out, ug)
	}
	return out, nil
}

func (b *GRPCBackend) GroupMembers(ctx context.Context, groupID uuid.UUID) ([]model.Member, error) {
	d, err := b.cl.GetGroup(ctx, &pb.GetGroupRequest{GroupID: groupID.String()}, b.opts()...)
	if err != nil {
		return nil, err
	}
	out := make([]model.Member, 0, len(d.Members))
	for _, m := range d.Members {
		id, err := convert.ParseUUID("member id", m.UserID)
		if err != nil {
			return nil, err
		}
		out = append(out, model.Member{
			UserID:    id,
			Username:  m.Username,
			PublicKey: m.PublicKey,
			Role:      model.Role(m.Role),
			HasKey:    m.HasKey,
		})
	}
	return out, nil
}

func (b *GRPCBackend) LeaveGroup(ctx context.Context, groupID uuid.UUID) (bool, error) {
	resp, err := b.cl.LeaveGroup(ctx, &pb.LeaveGroupRequest{GroupID: groupID.String()}, b.opts()...)
	if err != nil {
		return false, err
	}
	return resp.GroupDeleted, nil
}

func (b *GRPCBackend) SaveGroupKey(ctx context.Context, groupID uuid.UUID, encryptedKey, sharedBy string) error {
	_, err := b.cl.SaveGroupKey(ctx, &pb.SaveGroupKeyRequest{
		GroupID:           groupID.String(),
		EncryptedGroupKey: encryptedKey,
		SharerPublicKey:   sharedBy,
	}, b.opts()...)
	return err
}

func (b *GRPCBackend) SearchUser(ctx context.Context, friendCode string) (model.User, error) {
	usr, err := b.cl.SearchUser(ctx, &pb.SearchUserRequest{FriendCode: friendCode}, b.opts()...)
	if err != nil {
		return model.User{}, err
	}
	return convert.FromProtoUser(usr)
}

func (b *GRPCBackend) RequestFriend(ctx context.Context, friendID uuid.UUID) (model.Friend, error) {
	f, err := b.cl.RequestFriend(ctx, &pb.FriendRequest{FriendID: friendID.String()}, b.opts()...)
	if err != nil {
		return model.Friend{}, err
	}
	return convert.FromProtoFriend(f)
}

func (b *GRPCBackend) AcceptFriend(ctx context.Context, requestID int64) (model.Friend, error) {
	f, err := b.cl.AcceptFriend(ctx, &pb.FriendshipRequest{RequestID: requestID}, b.opts()...)
	if err != nil {
		return model.Friend{}, err
	}
	return convert.FromProtoFriend(f)
}

func (b *GRPCBackend) RemoveFriend(ctx context.Context, requestID int64) error {
	_, err := b.cl.RemoveFriend(ctx, &pb.FriendshipRequest{RequestID: requestID}, b.opts()...)
	return err
}

func (b *GRPCBackend) ListFriends(ctx context.Context) (model.FriendList, error) {
	resp, err := b.cl.ListFriends(ctx, &emptypb.Empty{}, b.opts()...)
	if err != nil {
		return model.FriendList{}, err
	}
	return convert.FromProtoFriendList(resp)
}

func (b *GRPCBackend) History(ctx context.Context, q model.HistoryQuery) ([]model.Message, error) {
	req := &pb.ListMessagesRequest{Before: q.Before, Limit: int32(q.Limit)}
	if q.PeerID.Valid {
		req.PeerID = q.PeerID.UUID.String()
	}
	if q.GroupID.Valid {
		req.GroupID = q.GroupID.UUID.String()
	}
	resp, err := b.cl.ListMessages(ctx, req, b.opts()...)
	if err != nil {
		return nil, err
	}
	out := make([]model.Message, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		msg, err := convert.FromProtoMessage(m)
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, nil
}

func (b *GRPCBackend) Connect(ctx context.Context) (Stream, error) {
	st, err := b.cl.Connect(ctx, b.opts()...)
	if err != nil {
		return nil, err
	}
	return &grpcStream{st: st}, nil
}

type grpcStream struct {
	mu sync.Mutex
	st grpc.BidiStreamingClient[pb.Frame, pb.Frame]
}

func (s *grpcStream) Send(ev model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.Send(convert.ToFrame(ev))
}

func (s *grpcStream) Recv() (model.Event, error) {
	f, err := s.st.Recv()
	if err != nil {
		return model.Event{}, err
	}
	return convert.FromFrame(f)
}

func (s *grpcStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.CloseSend()
}
