package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	u "github.com/gofrs/uuid/v5"
	"google.golang.org/grpc"

	"github.com/and161185/cipherchat/internal/client"
	"github.com/and161185/cipherchat/internal/model"
)

// ------- parsing and formatting -------

func parseID(field, s string) (u.UUID, error) {
	id, err := u.FromString(strings.TrimSpace(s))
	if err != nil || id == u.Nil {
		return u.Nil, fmt.Errorf("-%s: not a uuid: %q", field, s)
	}
	return id, nil
}

func needFlags(ok bool, msg string) {
	if !ok {
		fmt.Fprintln(os.Stderr, msg)
		os.Exit(2)
	}
}

// formatMessage renders one line: time, direction or sender, text.
func formatMessage(r client.Rendered) string {
	var b strings.Builder
	b.WriteString(r.CreatedAt.Local().Format("2006-01-02 15:04"))
	fmt.Fprintf(&b, " #%d ", r.ID)
	switch {
	case r.Outgoing:
		b.WriteString("me")
	case r.SenderName != "":
		b.WriteString(r.SenderName)
	default:
		b.WriteString(r.SenderID.String())
	}
	b.WriteString(": ")
	b.WriteString(r.Text)
	if r.EditedAt != nil {
		b.WriteString(" (edited)")
	}
	return b.String()
}

type groupRow struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Code     string `json:"code"`
	Role     string `json:"role"`
	KeyState string `json:"keyState"`
}

func groupRows(c *client.Client, groups []model.UserGroup) []groupRow {
	rows := make([]groupRow, 0, len(groups))
	for _, g := range groups {
		rows = append(rows, groupRow{
			ID:       g.ID.String(),
			Name:     g.Name,
			Code:     g.Code,
			Role:     string(g.Role),
			KeyState: c.KeyState(g.ID).String(),
		})
	}
	return rows
}

// await waits for the first update that matches or for a rejection.
func await(ctx context.Context, c *client.Client, match func(client.Update) bool) (client.Update, error) {
	for {
		select {
		case <-ctx.Done():
			return client.Update{}, ctx.Err()
		case up := <-c.Updates():
			if up.Event == model.EventError {
				var e model.ErrorPayload
				_ = up.Raw.Decode(&e)
				return up, fmt.Errorf("%s: %s (%s)", e.Event, e.Message, e.Code)
			}
			if match(up) {
				return up, nil
			}
		}
	}
}

// online connects and handles events in the background until the returned
// stop is called.
func online(ctx context.Context, c *client.Client) (stop func(), err error) {
	ctx, cancel := context.WithCancel(ctx)
	if err := c.Connect(ctx); err != nil {
		cancel()
		return nil, err
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = c.Run(ctx)
	}()
	return func() {
		_ = c.Close()
		cancel()
		<-done
	}, nil
}

// ------- account -------

// cmdRegister creates an identity, registers it and saves the token.
func cmdRegister(ctx context.Context, args []string, g globals) {
	fs := flag.NewFlagSet("register", flag.ExitOnError)
	user := fs.String("u", "", "username")
	pass := fs.String("p", "", "password")
	_ = fs.Parse(args)
	needFlags(*user != "" && *pass != "", "need -u and -p")

	cc, c, err := g.dial(ctx)
	if err != nil {
		fail(err)
	}
	defer cc.Close()

	acc, err := c.Register(ctx, *user, *pass)
	if err != nil {
		fail(err)
	}
	if err := saveToken(acc.Token, acc.ExpiresAt); err != nil {
		fail(err)
	}
	_ = saveUserID(acc.UserID.String())
	fmt.Println(acc.UserID)
}

// cmdLogin authenticates, checks the password unlocks the key and saves the token.
func cmdLogin(ctx context.Context, args []string, g globals) {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	user := fs.String("u", "", "username")
	pass := fs.String("p", "", "password")
	_ = fs.Parse(args)
	needFlags(*user != "" && *pass != "", "need -u and -p")

	cc, c, err := g.dial(ctx)
	if err != nil {
		fail(err)
	}
	defer cc.Close()

	acc, err := c.Login(ctx, *user, *pass)
	if err != nil {
		fail(err)
	}
	if err := saveToken(acc.Token, acc.ExpiresAt); err != nil {
		fail(err)
	}
	_ = saveUserID(acc.UserID.String())
	fmt.Println("ok")
}

func cmdMe(ctx context.Context, g globals) {
	token, err := loadToken()
	if err != nil {
		fail(err)
	}
	cc, b, err := clientBackend(ctx, g)
	if err != nil {
		fail(err)
	}
	defer cc.Close()
	b.SetToken(token)

	acc, err := b.Me(ctx)
	if err != nil {
		fail(err)
	}
	printJSON(map[string]string{
		"id":         acc.UserID.String(),
		"username":   acc.Username,
		"friendCode": acc.FriendCode,
		"publicKey":  acc.PublicKey,
	})
}

// cmdPasswd re-wraps the private key under the new password.
func cmdPasswd(ctx context.Context, args []string, g globals) {
	fs := flag.NewFlagSet("passwd", flag.ExitOnError)
	oldPass := fs.String("old", "", "current password")
	newPass := fs.String("new", "", "new password")
	_ = fs.Parse(args)
	needFlags(*oldPass != "" && *newPass != "", "need -old and -new")

	cc, c, err := g.session(ctx, *oldPass)
	if err != nil {
		fail(err)
	}
	defer cc.Close()

	if err := c.ChangePassword(ctx, *oldPass, *newPass); err != nil {
		fail(err)
	}
	fmt.Println("ok")
}

// ------- groups -------

func cmdGroups(ctx context.Context, args []string, g globals) {
	fs := flag.NewFlagSet("groups", flag.ExitOnError)
	pass := fs.String("p", "", "password")
	_ = fs.Parse(args)

	cc, c, err := g.session(ctx, *pass)
	if err != nil {
		fail(err)
	}
	defer cc.Close()
	printJSON(groupRows(c, c.Groups()))
}

// cmdGroupCreate generates the group key locally; the server only sees it wrapped.
func cmdGroupCreate(ctx context.Context, args []string, g globals) {
	fs := flag.NewFlagSet("group-create", flag.ExitOnError)
	pass := fs.String("p", "", "password")
	name := fs.String("name", "", "group name")
	_ = fs.Parse(args)
	needFlags(*name != "", "need -name")

	cc, c, err := g.session(ctx, *pass)
	if err != nil {
		fail(err)
	}
	defer cc.Close()

	grp, err := c.CreateGroup(ctx, *name)
	if err != nil {
		fail(err)
	}
	printJSON(groupRows(c, []model.UserGroup{grp})[0])
}

// cmdGroupJoin joins and asks online members for the key. Run listen to
// receive it when nobody answers right away.
func cmdGroupJoin(ctx context.Context, args []string, g globals) {
	fs := flag.NewFlagSet("group-join", flag.ExitOnError)
	pass := fs.String("p", "", "password")
	code := fs.String("code", "", "join code")
	wait := fs.Duration("wait", 5*time.Second, "how long to wait for the key")
	_ = fs.Parse(args)
	needFlags(*code != "", "need -code")

	cc, c, err := g.session(ctx, *pass)
	if err != nil {
		fail(err)
	}
	defer cc.Close()

	stop, err := online(ctx, c)
	if err != nil {
		fail(err)
	}
	defer stop()

	grp, err := c.JoinGroup(ctx, *code)
	if err != nil {
		fail(err)
	}

	wctx, cancel := context.WithTimeout(ctx, *wait)
	defer cancel()
	_, err = await(wctx, c, func(up client.Update) bool {
		return up.Event == model.EventKeyReceived && up.GroupID == grp.ID
	})
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		fail(err)
	}
	printJSON(groupRows(c, []model.UserGroup{grp})[0])
}

func cmdGroupLeave(ctx context.Context, args []string, g globals) {
	fs := flag.NewFlagSet("group-leave", flag.ExitOnError)
	group := fs.String("group", "", "group id")
	_ = fs.Parse(args)

	gid, err := parseID("group", *group)
	if err != nil {
		fail(err)
	}
	token, err := loadToken()
	if err != nil {
		fail(err)
	}
	cc, b, err := clientBackend(ctx, g)
	if err != nil {
		fail(err)
	}
	defer cc.Close()
	b.SetToken(token)

	deleted, err := b.LeaveGroup(ctx, gid)
	if err != nil {
		fail(err)
	}
	printJSON(map[string]bool{"groupDeleted": deleted})
}

func cmdMembers(ctx context.Context, args []string, g globals) {
	fs := flag.NewFlagSet("members", flag.ExitOnError)
	group := fs.String("group", "", "group id")
	_ = fs.Parse(args)

	gid, err := parseID("group", *group)
	if err != nil {
		fail(err)
	}
	token, err := loadToken()
	if err != nil {
		fail(err)
	}
	cc, b, err := clientBackend(ctx, g)
	if err != nil {
		fail(err)
	}
	defer cc.Close()
	b.SetToken(token)

	members, err := b.GroupMembers(ctx, gid)
	if err != nil {
		fail(err)
	}
	printJSON(members)
}

// ------- friends -------

// tokenBackend dials and attaches the saved token.
func tokenBackend(ctx context.Context, g globals) (*grpc.ClientConn, *client.GRPCBackend) {
	token, err := loadToken()
	if err != nil {
		fail(err)
	}
	cc, b, err := clientBackend(ctx, g)
	if err != nil {
		fail(err)
	}
	b.SetToken(token)
	return cc, b
}

func friendRows(fs []model.Friend) []map[string]any {
	out := make([]map[string]any, 0, len(fs))
	for _, f := range fs {
		out = append(out, map[string]any{
			"requestId":  f.FriendshipID,
			"userId":     f.UserID.String(),
			"username":   f.Username,
			"friendCode": f.FriendCode,
			"status":     string(f.Status),
		})
	}
	return out
}

func cmdFriends(ctx context.Context, g globals) {
	cc, b := tokenBackend(ctx, g)
	defer cc.Close()

	l, err := b.ListFriends(ctx)
	if err != nil {
		fail(err)
	}
	printJSON(map[string]any{
		"friends":  friendRows(l.Friends),
		"received": friendRows(l.PendingReceived),
		"sent":     friendRows(l.PendingSent),
	})
}

func cmdFriendSearch(ctx context.Context, args []string, g globals) {
	fs := flag.NewFlagSet("friend-search", flag.ExitOnError)
	code := fs.String("code", "", "friend code")
	_ = fs.Parse(args)
	needFlags(*code != "", "need -code")

	cc, b := tokenBackend(ctx, g)
	defer cc.Close()

	usr, err := b.SearchUser(ctx, *code)
	if err != nil {
		fail(err)
	}
	printJSON(map[string]string{
		"id":         usr.ID.String(),
		"username":   usr.Username,
		"friendCode": usr.FriendCode,
	})
}

// cmdFriendAdd looks the code up and sends a request in one step.
func cmdFriendAdd(ctx context.Context, args []string, g globals) {
	fs := flag.NewFlagSet("friend-add", flag.ExitOnError)
	code := fs.String("code", "", "friend code")
	_ = fs.Parse(args)
	needFlags(*code != "", "need -code")

	cc, b := tokenBackend(ctx, g)
	defer cc.Close()

	usr, err := b.SearchUser(ctx, *code)
	if err != nil {
		fail(err)
	}
	f, err := b.RequestFriend(ctx, usr.ID)
	if err != nil {
		fail(err)
	}
	printJSON(friendRows([]model.Friend{f})[0])
}

func cmdFriendAccept(ctx context.Context, args []string, g globals) {
	fs := flag.NewFlagSet("friend-accept", flag.ExitOnError)
	id := fs.Int64("id", 0, "request id")
	_ = fs.Parse(args)
	needFlags(*id > 0, "need -id")

	cc, b := tokenBackend(ctx, g)
	defer cc.Close()

	f, err := b.AcceptFriend(ctx, *id)
	if err != nil {
		fail(err)
	}
	printJSON(friendRows([]model.Friend{f})[0])
}

// cmdFriendRemove also declines a received request or cancels a sent one.
func cmdFriendRemove(ctx context.Context, args []string, g globals) {
	fs := flag.NewFlagSet("friend-remove", flag.ExitOnError)
	id := fs.Int64("id", 0, "request id")
	_ = fs.Parse(args)
	needFlags(*id > 0, "need -id")

	cc, b := tokenBackend(ctx, g)
	defer cc.Close()

	if err := b.RemoveFriend(ctx, *id); err != nil {
		fail(err)
	}
	fmt.Println("ok")
}

// ------- messages -------

func cmdSend(ctx context.Context, args []string, g globals) {
	fs := flag.NewFlagSet("send", flag.ExitOnError)
	pass := fs.String("p", "", "password")
	to := fs.String("to", "", "recipient user id")
	text := fs.String("m", "", "message")
	_ = fs.Parse(args)
	needFlags(*text != "", "need -m")

	peer, err := parseID("to", *to)
	if err != nil {
		fail(err)
	}
	cc, c, err := g.session(ctx, *pass)
	if err != nil {
		fail(err)
	}
	defer cc.Close()
	stop, err := online(ctx, c)
	if err != nil {
		fail(err)
	}
	defer stop()

	if err := c.SendPrivate(ctx, peer, *text); err != nil {
		fail(err)
	}
	up, err := await(ctx, c, func(up client.Update) bool { return up.Event == model.EventPrivateSent })
	if err != nil {
		fail(err)
	}
	fmt.Println(up.MessageID)
}

func cmdSendGroup(ctx context.Context, args []string, g globals) {
	fs := flag.NewFlagSet("send-group", flag.ExitOnError)
	pass := fs.String("p", "", "password")
	group := fs.String("group", "", "group id")
	text := fs.String("m", "", "message")
	_ = fs.Parse(args)
	needFlags(*text != "", "need -m")

	gid, err := parseID("group", *group)
	if err != nil {
		fail(err)
	}
	cc, c, err := g.session(ctx, *pass)
	if err != nil {
		fail(err)
	}
	defer cc.Close()
	stop, err := online(ctx, c)
	if err != nil {
		fail(err)
	}
	defer stop()

	if err := c.SendGroup(gid, *text); err != nil {
		fail(err)
	}
	up, err := await(ctx, c, func(up client.Update) bool {
		return up.Event == model.EventGroupMessage && up.Message != nil && up.Message.Outgoing
	})
	if err != nil {
		fail(err)
	}
	fmt.Println(up.MessageID)
}

func cmdHistory(ctx context.Context, args []string, g globals) {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	pass := fs.String("p", "", "password")
	peer := fs.String("peer", "", "peer user id")
	group := fs.String("group", "", "group id")
	before := fs.Int64("before", 0, "only messages older than this id")
	limit := fs.Int("limit", 50, "page size")
	_ = fs.Parse(args)
	needFlags((*peer == "") != (*group == ""), "need exactly one of -peer and -group")

	q := model.HistoryQuery{Before: *before, Limit: *limit}
	if *peer != "" {
		id, err := parseID("peer", *peer)
		if err != nil {
			fail(err)
		}
		q.PeerID = u.NullUUID{UUID: id, Valid: true}
	} else {
		id, err := parseID("group", *group)
		if err != nil {
			fail(err)
		}
		q.GroupID = u.NullUUID{UUID: id, Valid: true}
	}

	cc, c, err := g.session(ctx, *pass)
	if err != nil {
		fail(err)
	}
	defer cc.Close()

	msgs, err := c.History(ctx, q)
	if err != nil {
		fail(err)
	}
	// newest first on the wire, oldest first on screen
	slices.Reverse(msgs)
	for _, m := range msgs {
		fmt.Println(formatMessage(m))
	}
}

// cmdListen stays online until interrupted: it answers key requests for
// groups whose key we hold and prints incoming messages.
func cmdListen(args []string, g globals) {
	fs := flag.NewFlagSet("listen", flag.ExitOnError)
	pass := fs.String("p", "", "password")
	_ = fs.Parse(args)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	uctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	cc, c, err := g.session(uctx, *pass)
	cancel()
	if err != nil {
		fail(err)
	}
	defer cc.Close()

	if err := c.Connect(ctx); err != nil {
		fail(err)
	}
	go func() {
		for up := range c.Updates() {
			switch {
			case up.Message != nil:
				fmt.Println(formatMessage(*up.Message))
			case up.Event == model.EventKeyReceived:
				fmt.Printf("group %s: key received\n", up.GroupID)
			case up.Event == model.EventKeyRequest:
				fmt.Printf("group %s: key requested\n", up.GroupID)
			case up.Event == model.EventDeleted:
				fmt.Printf("#%d deleted\n", up.MessageID)
			case up.Event == model.EventUserStatus:
				fmt.Printf("status: %s\n", up.Raw.Payload)
			case up.Event == model.EventError:
				fmt.Fprintf(os.Stderr, "server: %s\n", up.Raw.Payload)
			}
		}
	}()
	fmt.Fprintln(os.Stderr, "listening, Ctrl-C to stop")
	if err := c.Run(ctx); err != nil {
		fail(err)
	}
}

// clientBackend is for calls that only need the token, not the private key.
func clientBackend(ctx context.Context, g globals) (*grpc.ClientConn, *client.GRPCBackend, error) {
	return client.Dial(ctx, g.addr, g.dialOptions())
}
