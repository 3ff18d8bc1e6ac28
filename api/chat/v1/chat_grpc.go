package chatv1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
)

const ServiceName = "cipherchat.v1.Chat"

const (
	Chat_Register_FullMethodName       = "/cipherchat.v1.Chat/Register"
	Chat_Login_FullMethodName          = "/cipherchat.v1.Chat/Login"
	Chat_Me_FullMethodName             = "/cipherchat.v1.Chat/Me"
	Chat_ChangePassword_FullMethodName = "/cipherchat.v1.Chat/ChangePassword"
	Chat_GetPublicKey_FullMethodName   = "/cipherchat.v1.Chat/GetPublicKey"
	Chat_CreateGroup_FullMethodName    = "/cipherchat.v1.Chat/CreateGroup"
	Chat_JoinGroup_FullMethodName      = "/cipherchat.v1.Chat/JoinGroup"
	Chat_ListGroups_FullMethodName     = "/cipherchat.v1.Chat/ListGroups"
	Chat_GetGroup_FullMethodName       = "/cipherchat.v1.Chat/GetGroup"
	Chat_LeaveGroup_FullMethodName     = "/cipherchat.v1.Chat/LeaveGroup"
	Chat_SaveGroupKey_FullMethodName   = "/cipherchat.v1.Chat/SaveGroupKey"
	Chat_ListMessages_FullMethodName   = "/cipherchat.v1.Chat/ListMessages"
	Chat_SearchUser_FullMethodName     = "/cipherchat.v1.Chat/SearchUser"
	Chat_RequestFriend_FullMethodName  = "/cipherchat.v1.Chat/RequestFriend"
	Chat_AcceptFriend_FullMethodName   = "/cipherchat.v1.Chat/AcceptFriend"
	Chat_RemoveFriend_FullMethodName   = "/cipherchat.v1.Chat/RemoveFriend"
	Chat_ListFriends_FullMethodName    = "/cipherchat.v1.Chat/ListFriends"
	Chat_Connect_FullMethodName        = "/cipherchat.v1.Chat/Connect"
)

// ChatClient is the client API for the Chat service.
type ChatClient interface {
	Register(ctx context.Context, in *RegisterRequest, opts ...grpc.CallOption) (*AuthResponse, error)
	Login(ctx context.Context, in *LoginRequest, opts ...grpc.CallOption) (*AuthResponse, error)
	Me(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*UserInfo, error)
	ChangePassword(ctx context.Context, in *ChangePasswordRequest, opts ...grpc.CallOption) (*emptypb.Empty, error)
	GetPublicKey(ctx context.Context, in *GetPublicKeyRequest, opts ...grpc.CallOption) (*UserInfo, error)
	CreateGroup(ctx context.Context, in *CreateGroupRequest, opts ...grpc.CallOption) (*GroupInfo, error)
	JoinGroup(ctx context.Context, in *JoinGroupRequest, opts ...grpc.CallOption) (*GroupInfo, error)
	ListGroups(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*ListGroupsResponse, error)
	GetGroup(ctx context.Context, in *GetGroupRequest, opts ...grpc.CallOption) (*GroupDetail, error)
	LeaveGroup(ctx context.Context, in *LeaveGroupRequest, opts ...grpc.CallOption) (*LeaveGroupResponse, error)
	SaveGroupKey(ctx context.Context, in *SaveGroupKeyRequest, opts ...grpc.CallOption) (*emptypb.Empty, error)
	ListMessages(ctx context.Context, in *ListMessagesRequest, opts ...grpc.CallOption) (*ListMessagesResponse, error)
	SearchUser(ctx context.Context, in *SearchUserRequest, opts ...grpc.CallOption) (*UserInfo, error)
	RequestFriend(ctx context.Context, in *FriendRequest, opts ...grpc.CallOption) (*FriendInfo, error)
	AcceptFriend(ctx context.Context, in *FriendshipRequest, opts ...grpc.CallOption) (*FriendInfo, error)
	RemoveFriend(ctx context.Context, in *FriendshipRequest, opts ...grpc.CallOption) (*emptypb.Empty, error)
	ListFriends(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*ListFriendsResponse, error)
	// Connect opens the realtime event stream.
	Connect(ctx context.Context, opts ...grpc.CallOption) (grpc.BidiStreamingClient[Frame, Frame], error)
}

type chatClient struct {
	cc grpc.ClientConnInterface
}

// NewChatClient returns a client that speaks the json content-subtype.
func NewChatClient(cc grpc.ClientConnInterface) ChatClient {
	return &chatClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *chatClient) Register(ctx context.Context, in *RegisterRequest, opts ...grpc.CallOption) (*AuthResponse, error) {
	return invoke[AuthResponse](ctx, c.cc, Chat_Register_FullMethodName, in, opts)
}

func (c *chatClient) Login(ctx context.Context, in *LoginRequest, opts ...grpc.CallOption) (*AuthResponse, error) {
	return invoke[AuthResponse](ctx, c.cc, Chat_Login_FullMethodName, in, opts)
}

func (c *chatClient) Me(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*UserInfo, error) {
	return invoke[UserInfo](ctx, c.cc, Chat_Me_FullMethodName, in, opts)
}

func (c *chatClient) ChangePassword(ctx context.Context, in *ChangePasswordRequest, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	return invoke[emptypb.Empty](ctx, c.cc, Chat_ChangePassword_FullMethodName, in, opts)
}

func (c *chatClient) GetPublicKey(ctx context.Context, in *GetPublicKeyRequest, opts ...grpc.CallOption) (*UserInfo, error) {
	return invoke[UserInfo](ctx, c.cc, Chat_GetPublicKey_FullMethodName, in, opts)
}

func (c *chatClient) CreateGroup(ctx context.Context, in *CreateGroupRequest, opts ...grpc.CallOption) (*GroupInfo, error) {
	return invoke[GroupInfo](ctx, c.cc, Chat_CreateGroup_FullMethodName, in, opts)
}

func (c *chatClient) JoinGroup(ctx context.Context, in *JoinGroupRequest, opts ...grpc.CallOption) (*GroupInfo, error) {
	return invoke[GroupInfo](ctx, c.cc, Chat_JoinGroup_FullMethodName, in, opts)
}

func (c *chatClient) ListGroups(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*ListGroupsResponse, error) {
	return invoke[ListGroupsResponse](ctx, c.cc, Chat_ListGroups_FullMethodName, in, opts)
}

func (c *chatClient) GetGroup(ctx context.Context, in *GetGroupRequest, opts ...grpc.CallOption) (*GroupDetail, error) {
	return invoke[GroupDetail](ctx, c.cc, Chat_GetGroup_FullMethodName, in, opts)
}

func (c *chatClient) LeaveGroup(ctx context.Context, in *LeaveGroupRequest, opts ...grpc.CallOption) (*LeaveGroupResponse, error) {
	return invoke[LeaveGroupResponse](ctx, c.cc, Chat_LeaveGroup_FullMethodName, in, opts)
}

func (c *chatClient) SaveGroupKey(ctx context.Context, in *SaveGroupKeyRequest, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	return invoke[emptypb.Empty](ctx, c.cc, Chat_SaveGroupKey_FullMethodName, in, opts)
}

func (c *chatClient) ListMessages(ctx context.Context, in *ListMessagesRequest, opts ...grpc.CallOption) (*ListMessagesResponse, error) {
	return invoke[ListMessagesResponse](ctx, c.cc, Chat_ListMessages_FullMethodName, in, opts)
}

func (c *chatClient) SearchUser(ctx context.Context, in *SearchUserRequest, opts ...grpc.CallOption) (*UserInfo, error) {
	return invoke[UserInfo](ctx, c.cc, Chat_SearchUser_FullMethodName, in, opts)
}

func (c *chatClient) RequestFriend(ctx context.Context, in *FriendRequest, opts ...grpc.CallOption) (*FriendInfo, error) {
	return invoke[FriendInfo](ctx, c.cc, Chat_RequestFriend_FullMethodName, in, opts)
}

func (c *chatClient) AcceptFriend(ctx context.Context, in *FriendshipRequest, opts ...grpc.CallOption) (*FriendInfo, error) {
	return invoke[FriendInfo](ctx, c.cc, Chat_AcceptFriend_FullMethodName, in, opts)
}

func (c *chatClient) RemoveFriend(ctx context.Context, in *FriendshipRequest, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	return invoke[emptypb.Empty](ctx, c.cc, Chat_RemoveFriend_FullMethodName, in, opts)
}

func (c *chatClient) ListFriends(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*ListFriendsResponse, error) {
	return invoke[ListFriendsResponse](ctx, c.cc, Chat_ListFriends_FullMethodName, in, opts)
}

func (c *chatClient) Connect(ctx context.Context, opts ...grpc.CallOption) (grpc.BidiStreamingClient[Frame, Frame], error) {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	stream, err := c.cc.NewStream(ctx, &Chat_ServiceDesc.Streams[0], Chat_Connect_FullMethodName, opts...)
	if err != nil {
		return nil, err
	}
	return &grpc.GenericClientStream[Frame, Frame]{ClientStream: stream}, nil
}

// ChatServer is the server API for the Chat service.
// All implementations must embed UnimplementedChatServer.
type ChatServer interface {
	Register(context.Context, *RegisterRequest) (*AuthResponse, error)
	Login(context.Context, *LoginRequest) (*AuthResponse, error)
	Me(context.Context, *emptypb.Empty) (*UserInfo, error)
	ChangePassword(context.Context, *ChangePasswordRequest) (*emptypb.Empty, error)
	GetPublicKey(context.Context, *GetPublicKeyRequest) (*UserInfo, error)
	CreateGroup(context.Context, *CreateGroupRequest) (*GroupInfo, error)
	JoinGroup(context.Context, *JoinGroupRequest) (*GroupInfo, error)
	ListGroups(context.Context, *emptypb.Empty) (*ListGroupsResponse, error)
	GetGroup(context.Context, *GetGroupRequest) (*GroupDetail, error)
	LeaveGroup(context.Context, *LeaveGroupRequest) (*LeaveGroupResponse, error)
	SaveGroupKey(context.Context, *SaveGroupKeyRequest) (*emptypb.Empty, error)
	ListMessages(context.Context, *ListMessagesRequest) (*ListMessagesResponse, error)
	SearchUser(context.Context, *SearchUserRequest) (*UserInfo, error)
	RequestFriend(context.Context, *FriendRequest) (*FriendInfo, error)
	AcceptFriend(context.Context, *FriendshipRequest) (*FriendInfo, error)
	RemoveFriend(context.Context, *FriendshipRequest) (*emptypb.Empty, error)
	ListFriends(context.Context, *emptypb.Empty) (*ListFriendsResponse, error)
	Connect(grpc.BidiStreamingServer[Frame, Frame]) error
	mustEmbedUnimplementedChatServer()
}

// UnimplementedChatServer must be embedded to have forward compatible implementations.
type UnimplementedChatServer struct{}

func unimplemented(method string) error {
	return status.Errorf(codes.Unimplemented, "method %s not implemented", method)
}

func (UnimplementedChatServer) Register(context.Context, *RegisterRequest) (*AuthResponse, error) {
	return nil, unimplemented("Register")
}
func (UnimplementedChatServer) Login(context.Context, *LoginRequest) (*AuthResponse, error) {
	return nil, unimplemented("Login")
}
func (UnimplementedChatServer) Me(context.Context, *emptypb.Empty) (*UserInfo, error) {
	return nil, unimplemented("Me")
}
func (UnimplementedChatServer) ChangePassword(context.Context, *ChangePasswordRequest) (*emptypb.Empty, error) {
	return nil, unimplemented("ChangePassword")
}
func (UnimplementedChatServer) GetPublicKey(context.Context, *GetPublicKeyRequest) (*UserInfo, error) {
	return nil, unimplemented("GetPublicKey")
}
func (UnimplementedChatServer) CreateGroup(context.Context, *CreateGroupRequest) (*GroupInfo, error) {
	return nil, unimplemented("CreateGroup")
}
func (UnimplementedChatServer) JoinGroup(context.Context, *JoinGroupRequest) (*GroupInfo, error) {
	return nil, unimplemented("JoinGroup")
}
func (UnimplementedChatServer) ListGroups(context.Context, *emptypb.Empty) (*ListGroupsResponse, error) {
	return nil, unimplemented("ListGroups")
}
func (UnimplementedChatServer) GetGroup(context.Context, *GetGroupRequest) (*GroupDetail, error) {
	return nil, unimplemented("GetGroup")
}
func (UnimplementedChatServer) LeaveGroup(context.Context, *LeaveGroupRequest) (*LeaveGroupResponse, error) {
	return nil, unimplemented("LeaveGroup")
}
func (UnimplementedChatServer) SaveGroupKey(context.Context, *SaveGroupKeyRequest) (*emptypb.Empty, error) {
	return nil, unimplemented("SaveGroupKey")
}
func (UnimplementedChatServer) ListMessages(context.Context, *ListMessagesRequest) (*ListMessagesResponse, error) {
	return nil, unimplemented("ListMessages")
}
func (UnimplementedChatServer) SearchUser(context.Context, *SearchUserRequest) (*UserInfo, error) {
	return nil, unimplemented("SearchUser")
}
func (UnimplementedChatServer) RequestFriend(context.Context, *FriendRequest) (*FriendInfo, error) {
	return nil, unimplemented("RequestFriend")
}
func (UnimplementedChatServer) AcceptFriend(context.Context, *FriendshipRequest) (*FriendInfo, error) {
	return nil, unimplemented("AcceptFriend")
}
func (UnimplementedChatServer) RemoveFriend(context.Context, *FriendshipRequest) (*emptypb.Empty, error) {
	return nil, unimplemented("RemoveFriend")
}
func (UnimplementedChatServer) ListFriends(context.Context, *emptypb.Empty) (*ListFriendsResponse, error) {
	return nil, unimplemented("ListFriends")
}
func (UnimplementedChatServer) Connect(grpc.BidiStreamingServer[Frame, Frame]) error {
	return unimplemented("Connect")
}
func (UnimplementedChatServer) mustEmbedUnimplementedChatServer() {}

// RegisterChatServer registers srv on s.
func RegisterChatServer(s grpc.ServiceRegistrar, srv ChatServer) {
	s.RegisterService(&Chat_ServiceDesc, srv)
}

func unaryHandler[Req, Resp any](fullMethod string, call func(ChatServer, context.Context, *Req) (*Resp, error)) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(ChatServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(ChatServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func _Chat_Connect_Handler(srv any, stream grpc.ServerStream) error {
	return srv.(ChatServer).Connect(&grpc.GenericServerStream[Frame, Frame]{ServerStream: stream})
}

// Chat_ServiceDesc is the grpc.ServiceDesc for the Chat service.
var Chat_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ChatServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Register", Handler: unaryHandler(Chat_Register_FullMethodName, ChatServer.Register)},
		{MethodName: "Login", Handler: unaryHandler(Chat_Login_FullMethodName, ChatServer.Login)},
		{MethodName: "Me", Handler: unaryHandler(Chat_Me_FullMethodName, ChatServer.Me)},
		{MethodName: "ChangePassword", Handler: unaryHandler(Chat_ChangePassword_FullMethodName, ChatServer.ChangePassword)},
		{MethodName: "GetPublicKey", Handler: unaryHandler(Chat_GetPublicKey_FullMethodName, ChatServer.GetPublicKey)},
		{MethodName: "CreateGroup", Handler: unaryHandler(Chat_CreateGroup_FullMethodName, ChatServer.CreateGroup)},
		{MethodName: "JoinGroup", Handler: unaryHandler(Chat_JoinGroup_FullMethodName, ChatServer.JoinGroup)},
		{MethodName: "ListGroups", Handler: unaryHandler(Chat_ListGroups_FullMethodName, ChatServer.ListGroups)},
		{MethodName: "GetGroup", Handler: unaryHandler(Chat_GetGroup_FullMethodName, ChatServer.GetGroup)},
		{MethodName: "LeaveGroup", Handler: unaryHandler(Chat_LeaveGroup_FullMethodName, ChatServer.LeaveGroup)},
		{MethodName: "SaveGroupKey", Handler: unaryHandler(Chat_SaveGroupKey_FullMethodName, ChatServer.SaveGroupKey)},
		{MethodName: "ListMessages", Handler: unaryHandler(Chat_ListMessages_FullMethodName, ChatServer.ListMessages)},
		{MethodName: "SearchUser", Handler: unaryHandler(Chat_SearchUser_FullMethodName, ChatServer.SearchUser)},
		{MethodName: "RequestFriend", Handler: unaryHandler(Chat_RequestFriend_FullMethodName, ChatServer.RequestFriend)},
		{MethodName: "AcceptFriend", Handler: unaryHandler(Chat_AcceptFriend_FullMethodName, ChatServer.AcceptFriend)},
		{MethodName: "RemoveFriend", Handler: unaryHandler(Chat_RemoveFriend_FullMethodName, ChatServer.RemoveFriend)},
		{MethodName: "ListFriends", Handler: unaryHandler(Chat_ListFriends_FullMethodName, ChatServer.ListFriends)},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Connect",
			Handler:       _Chat_Connect_Handler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "api/chat/v1/chat.proto",
}
