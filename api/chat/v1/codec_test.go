package chatv1

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/encoding"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

func TestCodec_Registered(t *testing.T) {
	c := encoding.GetCodec(CodecName)
	require.NotNil(t, c)
	require.Equal(t, CodecName, c.Name())
}

func TestCodec_ProtoMessages(t *testing.T) {
	c := jsonCodec{}

	b, err := c.Marshal(&emptypb.Empty{})
	require.NoError(t, err)
	require.JSONEq(t, `{}`, string(b))

	b, err = c.Marshal(wrapperspb.String("hello"))
	require.NoError(t, err)

	var got wrapperspb.StringValue
	require.NoError(t, c.Unmarshal(b, &got))
	require.Equal(t, "hello", got.GetValue())
}

func TestCodec_WireStructs(t *testing.T) {
	c := jsonCodec{}
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	in := &Message{ID: 7, SenderID: "s", GroupID: "g", EncryptedContent: "ct", Nonce: "n", CreatedAt: at}
	b, err := c.Marshal(in)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(b, &raw))
	require.Equal(t, "g", raw["groupId"])
	require.NotContains(t, raw, "receiverId")
	require.NotContains(t, raw, "editedAt")

	var out Message
	require.NoError(t, c.Unmarshal(b, &out))
	require.Equal(t, *in, out)
}

func TestFrame_RawPayload(t *testing.T) {
	c := jsonCodec{}
	f := &Frame{Event: "chat:typing", Payload: json.RawMessage(`{"isTyping":true}`)}

	b, err := c.Marshal(f)
	require.NoError(t, err)

	var got Frame
	require.NoError(t, c.Unmarshal(b, &got))
	require.Equal(t, "chat:typing", got.GetEvent())
	require.JSONEq(t, `{"isTyping":true}`, string(got.Payload))
}

func TestGetters_NilSafe(t *testing.T) {
	var u *UserInfo
	var g *GroupInfo
	var a *AuthResponse
	require.Empty(t, u.GetID())
	require.Empty(t, u.GetPublicKey())
	require.Empty(t, g.GetEncryptedGroupKey())
	require.Nil(t, a.GetUser())
}
