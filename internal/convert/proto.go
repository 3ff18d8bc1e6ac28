// Package convert maps domain types to wire types and back.
package convert

import (
	"fmt"
	"strings"

	pb "github.com/and161185/cipherchat/api/chat/v1"
	model "github.com/and161185/cipherchat/internal/model"
	u "github.com/gofrs/uuid/v5"
)

// --- ids ---

// ParseUUID parses a required id field.
func ParseUUID(field, s string) (u.UUID, error) {
	id, err := u.FromString(strings.TrimSpace(s))
	if err != nil {
		return u.Nil, fmt.Errorf("invalid %s: %w", field, err)
	}
	return id, nil
}

// ParseNullUUID parses an optional id field; empty gives an invalid NullUUID.
func ParseNullUUID(field, s string) (u.NullUUID, error) {
	if strings.TrimSpace(s) == "" {
		return u.NullUUID{}, nil
	}
	id, err := ParseUUID(field, s)
	if err != nil {
		return u.NullUUID{}, err
	}
	return u.NullUUID{UUID: id, Valid: true}, nil
}

func nullString(id u.NullUUID) string {
	if !id.Valid {
		return ""
	}
	return id.UUID.String()
}

// --- users ---

// ToProtoUser converts a user. The wrapped private key is only included
// when withSecret is set, i.e. for the account owner.
func ToProtoUser(usr model.User, withSecret bool) *pb.UserInfo {
	out := &pb.UserInfo{
		ID:         usr.ID.String(),
		Username:   usr.Username,
		FriendCode: usr.FriendCode,
		PublicKey:  usr.PublicKey,
		CreatedAt:  usr.CreatedAt,
	}
	if withSecret {
		out.WrappedPrivateKey = usr.WrappedPrivateKey
	}
	return out
}

// ToProtoAuth builds the login/register response.
func ToProtoAuth(tok model.Tokens, usr model.User) *pb.AuthResponse {
	return &pb.AuthResponse{
		AccessToken: tok.AccessToken,
		ExpiresAt:   tok.ExpiresAt,
		User:        ToProtoUser(usr, true),
	}
}

// FromProtoUser converts the public part of a wire user.
func FromProtoUser(in *pb.UserInfo) (model.User, error) {
	if in == nil {
		return model.User{}, fmt.Errorf("nil UserInfo")
	}
	id, err := ParseUUID("user id", in.ID)
	if err != nil {
		return model.User{}, err
	}
	return model.User{
		ID:         id,
		Username:   in.Username,
		FriendCode: in.FriendCode,
		PublicKey:  in.PublicKey,
		CreatedAt:  in.CreatedAt,
	}, nil
}

// --- friends ---

// ToProtoFriend converts one friendship row seen by the caller.
func ToProtoFriend(f model.Friend) *pb.FriendInfo {
	return &pb.FriendInfo{
		RequestID:   f.FriendshipID,
		Status:      string(f.Status),
		RequesterID: f.RequesterID.String(),
		UserID:      f.UserID.String(),
		Username:    f.Username,
		FriendCode:  f.FriendCode,
		PublicKey:   f.PublicKey,
	}
}

// FriendView joins a friendship with the public identity of its other side.
func FriendView(f model.Friendship, other model.User) model.Friend {
	return model.Friend{
		FriendshipID: f.ID,
		Status:       f.Status,
		RequesterID:  f.RequesterID,
		UserID:       other.ID,
		Username:     other.Username,
		FriendCode:   other.FriendCode,
		PublicKey:    other.PublicKey,
	}
}

func toProtoFriends(in []model.Friend) []*pb.FriendInfo {
	out := make([]*pb.FriendInfo, 0, len(in))
	for _, f := range in {
		out = append(out, ToProtoFriend(f))
	}
	return out
}

// ToProtoFriendList converts a split friend list.
func ToProtoFriendList(l model.FriendList) *pb.ListFriendsResponse {
	return &pb.ListFriendsResponse{
		Friends:         toProtoFriends(l.Friends),
		PendingReceived: toProtoFriends(l.PendingReceived),
		PendingSent:     toProtoFriends(l.PendingSent),
	}
}

// FromProtoFriend converts a wire friendship row.
func FromProtoFriend(in *pb.FriendInfo) (model.Friend, error) {
	if in == nil {
		return model.Friend{}, fmt.Errorf("nil FriendInfo")
	}
	uid, err := ParseUUID("friend id", in.UserID)
	if err != nil {
		return model.Friend{}, err
	}
	requester, err := ParseUUID("requester id", in.RequesterID)
	if err != nil {
		return model.Friend{}, err
	}
	return model.Friend{
		FriendshipID: in.RequestID,
		Status:       model.FriendStatus(in.Status),
		RequesterID:  requester,
		UserID:       uid,
		Username:     in.Username,
		FriendCode:   in.FriendCode,
		PublicKey:    in.PublicKey,
	}, nil
}

func fromProtoFriends(in []*pb.FriendInfo) ([]model.Friend, error) {
	var out []model.Friend
	for i, f := range in {
		fr, err := FromProtoFriend(f)
		if err != nil {
			return nil, fmt.Errorf("friend[%d]: %w", i, err)
		}
		out = append(out, fr)
	}
	return out, nil
}

// FromProtoFriendList converts a wire friend list.
func FromProtoFriendList(in *pb.ListFriendsResponse) (model.FriendList, error) {
	if in == nil {
		return model.FriendList{}, nil
	}
	var (
		out model.FriendList
		err error
	)
	if out.Friends, err = fromProtoFriends(in.Friends); err != nil {
		return model.FriendList{}, err
	}
	if out.PendingReceived, err = fromProtoFriends(in.PendingReceived); err != nil {
		return model.FriendList{}, err
	}
	if out.PendingSent, err = fromProtoFriends(in.PendingSent); err != nil {
		return model.FriendList{}, err
	}
	return out, nil
}

// --- groups ---

// ToProtoGroup converts a group as seen by one member.
func ToProtoGroup(g model.UserGroup) *pb.GroupInfo {
	return &pb.GroupInfo{
		ID:                g.ID.String(),
		Name:              g.Name,
		GroupCode:         g.Code,
		CreatorID:         g.CreatorID.String(),
		Role:              string(g.Role),
		EncryptedGroupKey: g.Envelope,
		CreatedAt:         g.CreatedAt,
	}
}

// ToProtoGroups converts a slice of groups.
func ToProtoGroups(in []model.UserGroup) []*pb.GroupInfo {
	out := make([]*pb.GroupInfo, 0, len(in))
	for _, g := range in {
		out = append(out, ToProtoGroup(g))
	}
	return out
}

// ToProtoGroupDetail converts a group with its member list.
func ToProtoGroupDetail(g model.UserGroup, members []model.Member) *pb.GroupDetail {
	out := &pb.GroupDetail{
		Group:   ToProtoGroup(g),
		Members: make([]*pb.GroupMember, 0, len(members)),
	}
	for _, m := range members {
		out.Members = append(out.Members, &pb.GroupMember{
			UserID:    m.UserID.String(),
			Username:  m.Username,
			PublicKey: m.PublicKey,
			Role:      string(m.Role),
			HasKey:    m.HasKey,
		})
	}
	return out
}

// FromProtoGroup converts a wire group back to the member view.
func FromProtoGroup(in *pb.GroupInfo) (model.UserGroup, error) {
	if in == nil {
		return model.UserGroup{}, fmt.Errorf("nil GroupInfo")
	}
	id, err := ParseUUID("group id", in.ID)
	if err != nil {
		return model.UserGroup{}, err
	}
	creator, err := ParseUUID("creator id", in.CreatorID)
	if err != nil {
		return model.UserGroup{}, err
	}
	return model.UserGroup{
		Group: model.Group{
			ID:        id,
			Name:      in.Name,
			Code:      in.GroupCode,
			CreatorID: creator,
			CreatedAt: in.CreatedAt,
		},
		Role:     model.Role(in.Role),
		Envelope: in.EncryptedGroupKey,
	}, nil
}

// --- messages ---

// ToProtoMessage converts a stored message.
func ToProtoMessage(m model.Message) *pb.Message {
	return &pb.Message{
		ID:               m.ID,
		SenderID:         m.SenderID.String(),
		SenderName:       m.SenderName,
		ReceiverID:       nullString(m.ReceiverID),
		GroupID:          nullString(m.GroupID),
		EncryptedContent: m.Ciphertext,
		Nonce:            m.Nonce,
		Status:           string(m.Status),
		CreatedAt:        m.CreatedAt,
		EditedAt:         m.EditedAt,
	}
}

// ToProtoMessages converts a history page.
func ToProtoMessages(in []model.Message) []*pb.Message {
	out := make([]*pb.Message, 0, len(in))
	for _, m := range in {
		out = append(out, ToProtoMessage(m))
	}
	return out
}

// FromProtoMessage converts a wire message to the domain type.
func FromProtoMessage(in *pb.Message) (model.Message, error) {
	if in == nil {
		return model.Message{}, fmt.Errorf("nil Message")
	}
	sender, err := ParseUUID("sender id", in.SenderID)
	if err != nil {
		return model.Message{}, err
	}
	receiver, err := ParseNullUUID("receiver id", in.ReceiverID)
	if err != nil {
		return model.Message{}, err
	}
	group, err := ParseNullUUID("group id", in.GroupID)
	if err != nil {
		return model.Message{}, err
	}
	return model.Message{
		ID:         in.ID,
		SenderID:   sender,
		SenderName: in.SenderName,
		ReceiverID: receiver,
		GroupID:    group,
		Ciphertext: in.EncryptedContent,
		Nonce:      in.Nonce,
		Status:     model.MessageStatus(in.Status),
		CreatedAt:  in.CreatedAt,
		EditedAt:   in.EditedAt,
	}, nil
}

// FromPayload converts a pushed message payload to the domain type.
func FromPayload(p model.MessagePayload) model.Message {
	m := model.Message{
		ID:         p.ID,
		SenderID:   p.SenderID,
		SenderName: p.SenderName,
		Ciphertext: p.EncryptedContent,
		Nonce:      p.Nonce,
		Status:     p.Status,
		CreatedAt:  p.CreatedAt,
		EditedAt:   p.EditedAt,
	}
	if p.ReceiverID != nil {
		m.ReceiverID = u.NullUUID{UUID: *p.ReceiverID, Valid: true}
	}
	if p.GroupID != nil {
		m.GroupID = u.NullUUID{UUID: *p.GroupID, Valid: true}
	}
	return m
}

// --- frames ---

// ToFrame wraps a relay event for the stream.
func ToFrame(ev model.Event) *pb.Frame {
	return &pb.Frame{Event: ev.Name, Payload: ev.Payload}
}

// FromFrame unwraps a stream frame.
func FromFrame(f *pb.Frame) (model.Event, error) {
	if f == nil || f.GetEvent() == "" {
		return model.Event{}, fmt.Errorf("empty frame")
	}
	return model.Event{Name: f.Event, Payload: f.Payload}, nil
}
