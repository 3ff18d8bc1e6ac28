// Command cipherchat is a CLI client for the cipherchat service.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"github.com/and161185/cipherchat/internal/client"
	grpcserver "github.com/and161185/cipherchat/internal/server/grpc"
)

// ---- config/token store ----

type tokenFile struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func cfgDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "cipherchat")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "cipherchat")
}

func tokenPath() string { return filepath.Join(cfgDir(), "token.json") }

func saveToken(tok string, exp time.Time) error {
	if err := os.MkdirAll(cfgDir(), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(tokenPath(), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(tokenFile{AccessToken: tok, ExpiresAt: exp})
}

func loadToken() (string, error) {
	b, err := os.ReadFile(tokenPath())
	if err != nil {
		return "", err
	}
	var tf tokenFile
	if err := json.Unmarshal(b, &tf); err != nil {
		return "", err
	}
	if tf.AccessToken == "" || time.Now().After(tf.ExpiresAt) {
		return "", errors.New("no valid token (login required)")
	}
	return tf.AccessToken, nil
}

func saveUserID(uid string) error {
	if err := os.MkdirAll(cfgDir(), 0o700); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(cfgDir(), "user_id"), []byte(strings.TrimSpace(uid)), 0o600)
}

func loadUserID() (string, error) {
	b, err := os.ReadFile(filepath.Join(cfgDir(), "user_id"))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

// ---- grpc dial ----

type globals struct {
	addr      string
	caPath    string
	insecure  bool
	plaintext bool
	verbose   bool
}

func (g globals) logger() *zap.Logger {
	if !g.verbose {
		return zap.NewNop()
	}
	l, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return l
}

func (g globals) dialOptions() client.DialOptions {
	return client.DialOptions{CACert: g.caPath, Insecure: g.insecure, Plaintext: g.plaintext}
}

// dial returns a locked client over a fresh connection.
func (g globals) dial(ctx context.Context) (*grpc.ClientConn, *client.Client, error) {
	cc, b, err := client.Dial(ctx, g.addr, g.dialOptions())
	if err != nil {
		return nil, nil, err
	}
	return cc, client.New(b, g.logger()), nil
}

// session dials and unlocks the saved session with password.
func (g globals) session(ctx context.Context, password string) (*grpc.ClientConn, *client.Client, error) {
	if password == "" {
		return nil, nil, errors.New("need -p (the password unlocks your private key)")
	}
	token, err := loadToken()
	if err != nil {
		return nil, nil, err
	}
	cc, c, err := g.dial(ctx)
	if err != nil {
		return nil, nil, err
	}
	if _, err := c.Resume(ctx, token, password); err != nil {
		_ = cc.Close()
		return nil, nil, err
	}
	return cc, c, nil
}

// ---- utils ----

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func usage() {
	fmt.Fprintf(os.Stderr, `cipherchat CLI
Usage:
  cipherchat -addr HOST:PORT [-cacert file | -insecure | -plaintext] [-v] <cmd> [args]

Commands:
  version
  register      -u <username> -p <password>          (saves token)
  login         -u <username> -p <password>          (saves token)
  me
  passwd        -old <password> -new <password>
  groups        -p <password>
  group-create  -p <password> -name <name>
  group-join    -p <password> -code <code>
  group-leave   -group <uuid>
  members       -group <uuid>
  friends                                            (friends and pending requests)
  friend-search -code <friend code>
  friend-add    -code <friend code>
  friend-accept -id <request id>
  friend-remove -id <request id>                     (also declines or cancels)
  send          -p <password> -to <user uuid> -m <text>
  send-group    -p <password> -group <uuid> -m <text>
  history       -p <password> (-peer <uuid> | -group <uuid>) [-before <id>] [-limit <n>]
  listen        -p <password>                        (answers key requests, prints messages)
`)
	os.Exit(2)
}

// ---- main ----

var (
	version   = "dev"
	buildDate = "unknown"
)

// main dispatches subcommands and configures TLS for RPC calls.
func main() {
	var g globals
	flag.StringVar(&g.addr, "addr", "localhost:8443", "server addr")
	flag.StringVar(&g.caPath, "cacert", "", "CA cert (PEM)")
	flag.BoolVar(&g.insecure, "insecure", false, "skip cert verify (dev)")
	flag.BoolVar(&g.plaintext, "plaintext", false, "no TLS (server started with -insecure)")
	flag.BoolVar(&g.verbose, "v", false, "log to stderr")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
	}
	cmd, args := flag.Arg(0), flag.Args()[1:]

	if cmd == "listen" {
		cmdListen(args, g)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch cmd {
	case "version":
		fmt.Printf("cipherchat %s (%s)\n", version, buildDate)
	case "register":
		cmdRegister(ctx, args, g)
	case "login":
		cmdLogin(ctx, args, g)
	case "me":
		cmdMe(ctx, g)
	case "passwd":
		cmdPasswd(ctx, args, g)
	case "groups":
		cmdGroups(ctx, args, g)
	case "group-create":
		cmdGroupCreate(ctx, args, g)
	case "group-join":
		cmdGroupJoin(ctx, args, g)
	case "group-leave":
		cmdGroupLeave(ctx, args, g)
	case "members":
		cmdMembers(ctx, args, g)
	case "friends":
		cmdFriends(ctx, g)
	case "friend-search":
		cmdFriendSearch(ctx, args, g)
	case "friend-add":
		cmdFriendAdd(ctx, args, g)
	case "friend-accept":
		cmdFriendAccept(ctx, args, g)
	case "friend-remove":
		cmdFriendRemove(ctx, args, g)
	case "send":
		cmdSend(ctx, args, g)
	case "send-group":
		cmdSendGroup(ctx, args, g)
	case "history":
		cmdHistory(ctx, args, g)
	default:
		usage()
	}
}

// ---- helpers ----

func fail(err error) {
	if s, ok := status.FromError(err); ok {
		msg := fmt.Sprintf("rpc error: code=%s msg=%s", s.Code(), s.Message())
		if reason := grpcserver.DeniedReason(err); reason != "" {
			msg += " reason=" + reason
		}
		fmt.Fprintln(os.Stderr, msg)
		os.Exit(1)
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
