// Package grpcserver exposes the cipherchat gRPC API handlers.
package grpcserver

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	pb "github.com/and161185/cipherchat/api/chat/v1"
	"github.com/and161185/cipherchat/internal/convert"
	"github.com/and161185/cipherchat/internal/model"
	"github.com/and161185/cipherchat/internal/relay"
	"github.com/and161185/cipherchat/internal/service"
	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
)

// Server wires services and the relay into gRPC handlers.
type Server struct {
	pb.UnimplementedChatServer
	auth     service.AuthService
	groups   service.GroupService
	messages service.MessageService
	friends  service.FriendService
	relay    *relay.Relay
	signKey  []byte
	log      *zap.Logger
}

// New constructs a gRPC server with injected services.
func New(auth service.AuthService, groups service.GroupService, messages service.MessageService,
	friends service.FriendService, rl *relay.Relay, signKey []byte, log *zap.Logger) *Server {
	return &Server{
		auth:     auth,
		groups:   groups,
		messages: messages,
		friends:  friends,
		relay:    rl,
		signKey:  signKey,
		log:      log,
	}
}

// --- Auth ---

// Register creates a new account and logs it in.
func (s *Server) Register(ctx context.Context, req *pb.RegisterRequest) (*pb.AuthResponse, error) {
	if req.Username == "" || req.Password == "" {
		return nil, status.Error(codes.InvalidArgument, "empty username/password")
	}
	usr, tok, err := s.auth.Register(ctx, service.RegisterInput{
		Username:          req.Username,
		Password:          req.Password,
		PublicKey:         req.PublicKey,
		WrappedPrivateKey: req.WrappedPrivateKey,
	})
	if err != nil {
		return nil, toStatus("register", err)
	}
	return convert.ToProtoAuth(tok, usr), nil
}

func remoteIP(ctx context.Context) string {
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		return p.Addr.String()
	}
	return ""
}

// Login authenticates a user and returns a token plus the wrapped private key.
func (s *Server) Login(ctx context.Context, req *pb.LoginRequest) (*pb.AuthResponse, error) {
	ip := remoteIP(ctx)
	tok, usr, err := s.auth.LoginWithIP(ctx, req.Username, req.Password, ip)
	if err != nil {
		return nil, toStatus("login", err)
	}
	return convert.ToProtoAuth(tok, usr), nil
}

// Me returns the caller's own account.
func (s *Server) Me(ctx context.Context, _ *emptypb.Empty) (*pb.UserInfo, error) {
	userID, err := s.userIDFromCtx(ctx)
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, "no auth")
	}
	usr, err := s.auth.Me(ctx, userID)
	if err != nil {
		return nil, toStatus("me", err)
	}
	return convert.ToProtoUser(usr, true), nil
}

// ChangePassword replaces the password and the re-wrapped private key.
func (s *Server) ChangePassword(ctx context.Context, req *pb.ChangePasswordRequest) (*emptypb.Empty, error) {
	userID, err := s.userIDFromCtx(ctx)
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, "no auth")
	}
	if err := s.auth.ChangePassword(ctx, userID, req.OldPassword, req.NewPassword, req.WrappedPrivateKey); err != nil {
		return nil, toStatus("change password", err)
	}
	return &emptypb.Empty{}, nil
}

// GetPublicKey returns another user's public identity.
func (s *Server) GetPublicKey(ctx context.Context, req *pb.GetPublicKeyRequest) (*pb.UserInfo, error) {
	if _, err := s.userIDFromCtx(ctx); err != nil {
		return nil, status.Error(codes.Unauthenticated, "no auth")
	}
	id, err := convert.ParseUUID("user id", req.UserID)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	usr, err := s.auth.PublicKey(ctx, id)
	if err != nil {
		return nil, toStatus("public key", err)
	}
	return convert.ToProtoUser(usr, false), nil
}

// --- Groups ---

// CreateGroup creates a group holding the creator's sealed key.
func (s *Server) CreateGroup(ctx context.Context, req *pb.CreateGroupRequest) (*pb.GroupInfo, error) {
	userID, err := s.userIDFromCtx(ctx)
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, "no auth")
	}
	g, err := s.groups.Create(ctx, userID, req.Name, req.EncryptedGroupKey, req.SharerPublicKey)
	if err != nil {
		return nil, toStatus("create group", err)
	}
	s.relay.Registry().JoinRoom(g.ID, userID)
	return convert.ToProtoGroup(g), nil
}

// JoinGroup enrolls the caller by code. The returned group carries no key.
func (s *Server) JoinGroup(ctx context.Context, req *pb.JoinGroupRequest) (*pb.GroupInfo, error) {
	userID, err := s.userIDFromCtx(ctx)
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, "no auth")
	}
	g, err := s.groups.Join(ctx, userID, req.GroupCode)
	if err != nil {
		return nil, toStatus("join group", err)
	}
	s.relay.Registry().JoinRoom(g.ID, userID)
	return convert.ToProtoGroup(g), nil
}

// ListGroups returns the caller's groups with their envelopes.
func (s *Server) ListGroups(ctx context.Context, _ *emptypb.Empty) (*pb.ListGroupsResponse, error) {
	userID, err := s.userIDFromCtx(ctx)
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, "no auth")
	}
	gs, err := s.groups.List(ctx, userID)
	if err != nil {
		return nil, toStatus("list groups", err)
	}
	return &pb.ListGroupsResponse{Groups: convert.ToProtoGroups(gs)}, nil
}

// GetGroup returns a group with its members.
func (s *Server) GetGroup(ctx context.Context, req *pb.GetGroupRequest) (*pb.GroupDetail, error) {
	userID, err := s.userIDFromCtx(ctx)
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, "no auth")
	}
	groupID, err := convert.ParseUUID("group id", req.GroupID)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	d, err := s.groups.Get(ctx, userID, groupID)
	if err != nil {
		return nil, toStatus("get group", err)
	}
	return convert.ToProtoGroupDetail(d.UserGroup, d.Members), nil
}

// LeaveGroup removes the caller from a group.
func (s *Server) LeaveGroup(ctx context.Context, req *pb.LeaveGroupRequest) (*pb.LeaveGroupResponse, error) {
	userID, err := s.userIDFromCtx(ctx)
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, "no auth")
	}
	groupID, err := convert.ParseUUID("group id", req.GroupID)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	deleted, err := s.groups.Leave(ctx, userID, groupID)
	if err != nil {
		return nil, toStatus("leave group", err)
	}
	s.relay.LeaveRoom(groupID, userID)
	return &pb.LeaveGroupResponse{GroupDeleted: deleted}, nil
}

// SaveGroupKey stores an envelope the caller sealed for itself.
func (s *Server) SaveGroupKey(ctx context.Context, req *pb.SaveGroupKeyRequest) (*emptypb.Empty, error) {
	userID, err := s.userIDFromCtx(ctx)
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, "no auth")
	}
	groupID, err := convert.ParseUUID("group id", req.GroupID)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if err := s.groups.SaveKey(ctx, userID, groupID, req.EncryptedGroupKey, req.SharerPublicKey); err != nil {
		return nil, toStatus("save group key", err)
	}
	return &emptypb.Empty{}, nil
}

// --- Messages ---

// ListMessages returns one page of history, newest first.
func (s *Server) ListMessages(ctx context.Context, req *pb.ListMessagesRequest) (*pb.ListMessagesResponse, error) {
	userID, err := s.userIDFromCtx(ctx)
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, "no auth")
	}
	peerID, err := convert.ParseNullUUID("peer id", req.PeerID)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	groupID, err := convert.ParseNullUUID("group id", req.GroupID)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	ms, err := s.messages.History(ctx, model.HistoryQuery{
		UserID:  userID,
		PeerID:  peerID,
		GroupID: groupID,
		Before:  req.Before,
		Limit:   int(req.Limit),
	})
	if err != nil {
		return nil, toStatus("list messages", err)
	}
	return &pb.ListMessagesResponse{Messages: convert.ToProtoMessages(ms)}, nil
}

// --- Friends ---

// SearchUser finds another user by friend code.
func (s *Server) SearchUser(ctx context.Context, req *pb.SearchUserRequest) (*pb.UserInfo, error) {
	userID, err := s.userIDFromCtx(ctx)
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, "no auth")
	}
	usr, err := s.friends.Search(ctx, userID, req.FriendCode)
	if err != nil {
		return nil, toStatus("search user", err)
	}
	return convert.ToProtoUser(usr, false), nil
}

// friendInfo joins a friendship row with the other side's public identity.
func (s *Server) friendInfo(ctx context.Context, userID uuid.UUID, f model.Friendship) *pb.FriendInfo {
	other, err := s.auth.PublicKey(ctx, f.Other(userID))
	if err != nil {
		s.log.Debug("friend lookup", zap.Int64("request", f.ID), zap.Error(err))
		other = model.User{ID: f.Other(userID)}
	}
	return convert.ToProtoFriend(convert.FriendView(f, other))
}

// RequestFriend sends a friend request.
func (s *Server) RequestFriend(ctx context.Context, req *pb.FriendRequest) (*pb.FriendInfo, error) {
	userID, err := s.userIDFromCtx(ctx)
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, "no auth")
	}
	friendID, err := convert.ParseUUID("friend id", req.FriendID)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	f, err := s.friends.Request(ctx, userID, friendID)
	if err != nil {
		return nil, toStatus("request friend", err)
	}
	return s.friendInfo(ctx, userID, f), nil
}

// AcceptFriend accepts a pending request addressed to the caller.
func (s *Server) AcceptFriend(ctx context.Context, req *pb.FriendshipRequest) (*pb.FriendInfo, error) {
	userID, err := s.userIDFromCtx(ctx)
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, "no auth")
	}
	f, err := s.friends.Accept(ctx, userID, req.RequestID)
	if err != nil {
		return nil, toStatus("accept friend", err)
	}
	s.relay.FriendshipChanged(f.RequesterID, f.AddresseeID, true)
	return s.friendInfo(ctx, userID, f), nil
}

// RemoveFriend deletes a friendship or request on either side.
func (s *Server) RemoveFriend(ctx context.Context, req *pb.FriendshipRequest) (*emptypb.Empty, error) {
	userID, err := s.userIDFromCtx(ctx)
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, "no auth")
	}
	f, err := s.friends.Remove(ctx, userID, req.RequestID)
	if err != nil {
		return nil, toStatus("remove friend", err)
	}
	if f.Status == model.FriendAccepted {
		s.relay.FriendshipChanged(f.RequesterID, f.AddresseeID, false)
	}
	return &emptypb.Empty{}, nil
}

// ListFriends returns friends and pending requests of the caller.
func (s *Server) ListFriends(ctx context.Context, _ *emptypb.Empty) (*pb.ListFriendsResponse, error) {
	userID, err := s.userIDFromCtx(ctx)
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, "no auth")
	}
	l, err := s.friends.List(ctx, userID)
	if err != nil {
		return nil, toStatus("list friends", err)
	}
	return convert.ToProtoFriendList(l), nil
}

// --- Realtime ---

// Connect attaches the caller to the relay. Inbound frames are handed to the
// relay in order; outbound events are written until the stream ends or the
// session is replaced by a newer connection.
func (s *Server) Connect(stream grpc.BidiStreamingServer[pb.Frame, pb.Frame]) error {
	ctx := stream.Context()
	userID, err := s.userIDFromCtx(ctx)
	if err != nil {
		return status.Error(codes.Unauthenticated, "no auth")
	}

	sess := s.relay.Connect(ctx, userID)
	defer s.relay.Disconnect(context.WithoutCancel(ctx), sess)

	readErr := make(chan error, 1)
	go func() {
		for {
			f, err := stream.Recv()
			if err != nil {
				readErr <- err
				return
			}
			ev, err := convert.FromFrame(f)
			if err != nil {
				s.log.Debug("drop frame", zap.String("user", userID.String()), zap.Error(err))
				continue
			}
			s.relay.Handle(ctx, sess, ev)
		}
	}()

	for {
		select {
		case ev := <-sess.Events():
			if err := stream.Send(convert.ToFrame(ev)); err != nil {
				return err
			}
		case <-sess.Done():
			return status.Error(codes.Aborted, "session closed")
		case err := <-readErr:
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		case <-ctx.Done():
			return nil
		}
	}
}

// --- Auth helpers ---

// userIDFromCtx returns the id stored by the auth interceptor, or else
// extracts "authorization: Bearer <JWT>", verifies HS256 and returns sub as UUID.
func (s *Server) userIDFromCtx(ctx context.Context) (uuid.UUID, error) {
	if id, ok := UserIDFromCtx(ctx); ok {
		return id, nil
	}
	tok, err := bearerTokenFromMD(ctx)
	if err != nil {
		return uuid.Nil, err
	}
	return s.parseToken(tok)
}

func (s *Server) parseToken(tok string) (uuid.UUID, error) {
	var claims jwt.RegisteredClaims
	parsed, err := jwt.ParseWithClaims(tok, &claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return s.signKey, nil
	})
	if err != nil || !parsed.Valid {
		return uuid.Nil, errors.New("invalid token")
	}

	v := jwt.NewValidator(jwt.WithLeeway(30 * time.Second))
	if err := v.Validate(&claims); err != nil {
		return uuid.Nil, errors.New("token expired or not valid yet")
	}

	id, err := uuid.FromString(claims.Subject)
	if err != nil {
		return uuid.Nil, errors.New("bad subject")
	}
	return id, nil
}

func bearerTokenFromMD(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", errors.New("no metadata")
	}
	for _, v := range md.Get("authorization") {
		v = strings.TrimSpace(v)
		if len(v) >= 7 && strings.EqualFold(v[:7], "bearer ") {
			t := strings.TrimSpace(v[7:])
			if t != "" {
				return t, nil
			}
		}
	}
	return "", errors.New("no bearer token")
}
