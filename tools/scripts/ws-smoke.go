// Package main provides a CI-friendly WebSocket smoke test for sitegate realtime.
//
// It validates:
//   - handshake + subprotocol selection
//   - hello -> channel_joined* -> hello_ack
//   - optional delivery of a build_status event on a joined site channel
//
// Pass -cookie with a signed session cookie value to connect as a signed-in
// user; without it the connection is anonymous and must not join any channel.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	v1 "sitegate/contracts/realtime/v1"

	"github.com/coder/websocket"
)

const (
	defaultCookieName = "sitegate.sid"
	maxReadBytes      = 1 << 20 // 1MiB
)

type smokeClient struct {
	conn *websocket.Conn

	inbox chan v1.Envelope
	errCh chan error
}

type helloResult struct {
	ack    v1.HelloAckPayload
	joined []v1.ChannelJoinedPayload
}

func main() {
	var (
		wsURL      = flag.String("url", "ws://127.0.0.1:8080/ws", "WebSocket URL")
		origin     = flag.String("origin", "http://localhost", "Origin header to send (browser-like WS handshake)")
		cookie     = flag.String("cookie", "", "Signed session cookie value (empty = anonymous)")
		cookieName = flag.String("cookie-name", defaultCookieName, "Session cookie name")
		expect     = flag.Int("expect-channels", -1, "Expected number of joined channels (-1 = don't check)")
		waitBuild  = flag.Duration("wait-build", 0, "Wait this long for a build_status event (0 = skip)")
		timeout    = flag.Duration("timeout", 7*time.Second, "Per-step timeout")
		verbose    = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	if err := validateWSURL(*wsURL); err != nil {
		fatalf("invalid -url: %v", err)
	}
	if err := validateOrigin(*origin); err != nil {
		fatalf("invalid -origin: %v", err)
	}

	root := context.Background()

	c := mustConnect(root, *wsURL, *origin, *cookieName, *cookie)
	defer closeWS(c.conn)

	res := c.mustHello(root, *timeout)

	if *verbose {
		for _, j := range res.joined {
			fmt.Printf("joined: channel=%s site_id=%s\n", j.Channel, j.SiteID)
		}
	}

	if *cookie == "" && (res.ack.Authenticated || len(res.ack.Channels) > 0) {
		fatalf("anonymous connection was authenticated: %+v", res.ack)
	}
	if len(res.joined) != len(res.ack.Channels) {
		fatalf("channel_joined count=%d does not match hello_ack channels=%d", len(res.joined), len(res.ack.Channels))
	}
	if *expect >= 0 && len(res.ack.Channels) != *expect {
		fatalf("channels: got=%d want=%d (%v)", len(res.ack.Channels), *expect, res.ack.Channels)
	}

	if *waitBuild > 0 {
		env := c.mustReadUntilType(root, v1.TypeBuildStatus, *waitBuild)
		var p v1.BuildStatusPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			fatalf("unmarshal build_status payload: %v", err)
		}
		if env.Channel != "site:"+p.SiteID {
			fatalf("build_status channel=%q does not match site_id=%q", env.Channel, p.SiteID)
		}
		fmt.Printf("build_status: site_id=%s build_id=%s state=%s\n", p.SiteID, p.BuildID, p.State)
	}

	fmt.Printf("OK: connection_id=%s authenticated=%t channels=%v\n",
		res.ack.ConnectionID, res.ack.Authenticated, res.ack.Channels)
}

func validateWSURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("missing host")
	}
	if strings.TrimSpace(u.Path) == "" {
		return errors.New("missing path")
	}
	return nil
}

func validateOrigin(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("origin must be http/https, got: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("origin missing host")
	}
	return nil
}

func mustConnect(parent context.Context, wsURL, origin, cookieName, cookieValue string) *smokeClient {
	h := http.Header{}
	if strings.TrimSpace(origin) != "" {
		h.Set("Origin", origin)
	}
	if strings.TrimSpace(cookieValue) != "" {
		h.Set("Cookie", (&http.Cookie{Name: cookieName, Value: cookieValue}).String())
	}

	conn, resp, err := websocket.Dial(parent, wsURL, &websocket.DialOptions{
		Subprotocols: []string{v1.Subprotocol},
		HTTPHeader:   h,
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		fatalf("connect: %v", err)
	}

	assertSubprotocol(resp, v1.Subprotocol)

	conn.SetReadLimit(maxReadBytes)

	c := &smokeClient{
		conn:  conn,
		inbox: make(chan v1.Envelope, 128),
		errCh: make(chan error, 1),
	}
	c.startReadLoop()
	return c
}

func (c *smokeClient) mustHello(parent context.Context, stepTimeout time.Duration) helloResult {
	hello := v1.Envelope{
		V:       v1.Version,
		Type:    v1.TypeHello,
		ID:      fmt.Sprintf("smoke-hello-%d", time.Now().UnixNano()),
		TS:      time.Now().UTC(),
		Payload: mustJSON(v1.HelloPayload{}),
	}
	mustWriteWithTimeout(parent, c.conn, hello, stepTimeout)

	var out helloResult
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	for {
		env := c.mustNext(ctx, v1.TypeHelloAck)
		switch env.Type {
		case v1.TypeChannelJoined:
			var p v1.ChannelJoinedPayload
			if err := json.Unmarshal(env.Payload, &p); err != nil {
				fatalf("unmarshal channel_joined payload: %v", err)
			}
			if p.Channel == "" || p.SiteID == "" {
				fatalf("channel_joined missing fields: %+v", p)
			}
			out.joined = append(out.joined, p)
		case v1.TypeHelloAck:
			if err := json.Unmarshal(env.Payload, &out.ack); err != nil {
				fatalf("unmarshal hello_ack payload: %v", err)
			}
			if strings.TrimSpace(out.ack.ConnectionID) == "" {
				fatalf("hello_ack missing connection_id")
			}
			return out
		default:
			fatalf("unexpected envelope type before hello_ack: %q", env.Type)
		}
	}
}

func assertSubprotocol(resp *http.Response, want string) {
	if resp == nil {
		return
	}
	got := strings.TrimSpace(resp.Header.Get("Sec-WebSocket-Protocol"))
	if got == "" {
		return
	}
	if got != want {
		fatalf("subprotocol mismatch: got=%q want=%q", got, want)
	}
}

func (c *smokeClient) startReadLoop() {
	go func() {
		defer close(c.inbox)

		for {
			mt, data, err := c.conn.Read(context.Background())
			if err != nil {
				c.fail(err)
				return
			}
			if mt != websocket.MessageText && mt != websocket.MessageBinary {
				c.fail(fmt.Errorf("unsupported message type: %v", mt))
				return
			}

			var env v1.Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				c.fail(fmt.Errorf("bad json: %w", err))
				return
			}
			if err := env.Validate(); err != nil {
				c.fail(fmt.Errorf("bad envelope: %w", err))
				return
			}

			select {
			case c.inbox <- env:
			default:
				c.fail(errors.New("inbox overflow: consumer too slow"))
				return
			}
		}
	}()
}

func (c *smokeClient) fail(err error) {
	select {
	case c.errCh <- err:
	default:
	}
}

// mustNext returns the next envelope, failing on timeout, close or server errors.
func (c *smokeClient) mustNext(ctx context.Context, waitingFor string) v1.Envelope {
	select {
	case <-ctx.Done():
		fatalf("timeout waiting for %q: %v", waitingFor, ctx.Err())
	case err := <-c.errCh:
		fatalf("connection error while waiting for %q: %v", waitingFor, err)
	case env, ok := <-c.inbox:
		if !ok {
			fatalf("connection closed while waiting for %q", waitingFor)
		}
		if env.Type == v1.TypeError {
			var ep v1.ErrorPayload
			_ = json.Unmarshal(env.Payload, &ep)
			fatalf("server error: code=%q msg=%q", ep.Code, ep.Message)
		}
		return env
	}
	panic("unreachable")
}

func (c *smokeClient) mustReadUntilType(parent context.Context, wantType string, wait time.Duration) v1.Envelope {
	ctx, cancel := context.WithTimeout(parent, wait)
	defer cancel()

	for {
		env := c.mustNext(ctx, wantType)
		if env.Type == wantType {
			return env
		}
	}
}

func mustWriteWithTimeout(parent context.Context, conn *websocket.Conn, env v1.Envelope, stepTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	b, err := json.Marshal(env)
	if err != nil {
		fatalf("marshal envelope: %v", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
		fatalf("write failed: %v", err)
	}
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

func closeWS(conn *websocket.Conn) {
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
