package gateway

import (
	"bufio"
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/bungeeguard/bungeeguard/internal/messages"
	"github.com/bungeeguard/bungeeguard/internal/source"
	"github.com/bungeeguard/bungeeguard/internal/wire"

	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

type allowList map[string]bool

func (a allowList) IsAllowed(token string) bool {
	return a[token]
}

const (
	testIdentity = "00112233445566778899aabbccddeeff"
	testToken    = "S3cr3t"
)

func forwarded(token string) string {
	return "play.example.com\x00203.0.113.5\x00" + testIdentity +
		"\x00[{\"name\":\"bungeeguard-token\",\"value\":\"" + token + "\"},{\"name\":\"textures\",\"value\":\"abc\"}]"
}

// startBackend runs a backend which hands every connection to handle.
func startBackend(t *testing.T, handle func(conn net.Conn)) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer func() { _ = conn.Close() }()
				handle(conn)
			}()
		}
	}()
	return ln.Addr().String()
}

// frameBackend reports the first frame of every connection and answers with a
// frame containing "welcome".
func frameBackend(t *testing.T) (string, chan []byte) {
	t.Helper()
	frames := make(chan []byte, 4)
	addr := startBackend(t, func(conn net.Conn) {
		payload, err := wire.ReadFrame(bufio.NewReader(conn))
		if err != nil {
			return
		}
		frames <- payload
		_ = wire.WriteFrame(conn, []byte("welcome"))
	})
	return addr, frames
}

func startGateway(t *testing.T, c Config) *Gateway {
	t.Helper()
	if c.Listen == "" {
		c.Listen = "127.0.0.1:0"
	}
	msgs, err := messages.New(messages.Config{
		NoData:       "&cNo data",
		InvalidToken: "&cInvalid token",
	})
	require.NoError(t, err)
	src := source.New("packet", nil, source.Config{Tokens: allowList{testToken: true}})
	g := New(c, src, msgs)
	require.NoError(t, g.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- g.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("gateway did not stop")
		}
	})
	return g
}

func dial(t *testing.T, g *Gateway) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", g.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func sendHandshake(t *testing.T, conn net.Conn, address string, intent wire.Intent) {
	t.Helper()
	h := wire.Handshake{ProtocolVersion: 767, ServerAddress: address, ServerPort: 25565, Intent: intent}
	require.NoError(t, wire.WriteFrame(conn, h.Payload()))
}

func receive(t *testing.T, frames chan []byte) []byte {
	t.Helper()
	select {
	case payload := <-frames:
		return payload
	case <-time.After(5 * time.Second):
		t.Fatal("backend received nothing")
		return nil
	}
}

func TestGatewayAcceptsTrustedToken(t *testing.T) {
	backend, frames := frameBackend(t)
	g := startGateway(t, Config{Backend: backend})

	conn := dial(t, g)
	sendHandshake(t, conn, forwarded(testToken), wire.IntentLogin)

	h, err := wire.ParseHandshake(receive(t, frames))
	require.NoError(t, err)
	require.Equal(t, "play.example.com\x00203.0.113.5\x00"+testIdentity+"\x00[{\"name\":\"textures\",\"value\":\"abc\"}]", h.ServerAddress)
	require.Equal(t, uint16(25565), h.ServerPort)
	require.Equal(t, wire.IntentLogin, h.Intent)

	reply, err := wire.ReadFrame(bufio.NewReader(conn))
	require.NoError(t, err)
	require.Equal(t, []byte("welcome"), reply)
}

func TestGatewayDeniesForgedToken(t *testing.T) {
	backend, frames := frameBackend(t)
	g := startGateway(t, Config{Backend: backend})

	conn := dial(t, g)
	sendHandshake(t, conn, forwarded("forged"), wire.IntentLogin)

	payload, err := wire.ReadFrame(bufio.NewReader(conn))
	require.NoError(t, err)
	reason, err := wire.ParseLoginDisconnect(payload)
	require.NoError(t, err)
	require.Equal(t, "§cInvalid token", gjson.Get(reason, "text").String())
	require.NotContains(t, reason, "forged")

	select {
	case <-frames:
		t.Fatal("denied handshake reached the backend")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestGatewayDeniesDirectConnection(t *testing.T) {
	backend, frames := frameBackend(t)
	g := startGateway(t, Config{Backend: backend})

	conn := dial(t, g)
	sendHandshake(t, conn, "play.example.com", wire.IntentLogin)

	payload, err := wire.ReadFrame(bufio.NewReader(conn))
	require.NoError(t, err)
	reason, err := wire.ParseLoginDisconnect(payload)
	require.NoError(t, err)
	require.Equal(t, "§cNo data", gjson.Get(reason, "text").String())
	require.Len(t, frames, 0)
}

func TestGatewayVerifiesEveryIntentButStatus(t *testing.T) {
	for _, intent := range []wire.Intent{wire.IntentTransfer, wire.Intent(4)} {
		t.Run(intent.String(), func(t *testing.T) {
			backend, frames := frameBackend(t)
			g := startGateway(t, Config{Backend: backend})

			conn := dial(t, g)
			sendHandshake(t, conn, forwarded("forged"), intent)
			payload, err := wire.ReadFrame(bufio.NewReader(conn))
			require.NoError(t, err)
			reason, err := wire.ParseLoginDisconnect(payload)
			require.NoError(t, err)
			require.Equal(t, "§cInvalid token", gjson.Get(reason, "text").String())
			require.Len(t, frames, 0)

			conn = dial(t, g)
			sendHandshake(t, conn, forwarded(testToken), intent)
			h, err := wire.ParseHandshake(receive(t, frames))
			require.NoError(t, err)
			require.Equal(t, intent, h.Intent)
			require.NotContains(t, h.ServerAddress, "bungeeguard-token")
		})
	}
}

func TestGatewayStatusPassthrough(t *testing.T) {
	backend, frames := frameBackend(t)
	g := startGateway(t, Config{Backend: backend})

	conn := dial(t, g)
	sendHandshake(t, conn, "play.example.com", wire.IntentStatus)

	h, err := wire.ParseHandshake(receive(t, frames))
	require.NoError(t, err)
	require.Equal(t, "play.example.com", h.ServerAddress)
	require.Equal(t, wire.IntentStatus, h.Intent)
}

func TestGatewayLegacyPing(t *testing.T) {
	received := make(chan []byte, 1)
	backend := startBackend(t, func(conn net.Conn) {
		buf := make([]byte, 2)
		if _, err := io.ReadFull(conn, buf); err != nil {
			return
		}
		received <- buf
	})
	g := startGateway(t, Config{Backend: backend})

	conn := dial(t, g)
	_, err := conn.Write([]byte{wire.LegacyPing, 0x01})
	require.NoError(t, err)
	require.Equal(t, []byte{wire.LegacyPing, 0x01}, receive(t, received))
}

func TestGatewayMalformedPacket(t *testing.T) {
	backend, frames := frameBackend(t)
	g := startGateway(t, Config{Backend: backend})

	conn := dial(t, g)
	require.NoError(t, wire.WriteFrame(conn, []byte{0x05, 0x01}))
	_, err := conn.Read(make([]byte, 1))
	require.Error(t, err)
	require.Len(t, frames, 0)
}

func TestGatewayReadTimeout(t *testing.T) {
	backend, _ := frameBackend(t)
	g := startGateway(t, Config{Backend: backend, ReadTimeout: 100 * time.Millisecond})

	conn := dial(t, g)
	started := time.Now()
	_, err := conn.Read(make([]byte, 1))
	require.Error(t, err)
	require.Less(t, time.Since(started), 3*time.Second)
}

func TestGatewayRateLimit(t *testing.T) {
	backend, frames := frameBackend(t)
	g := startGateway(t, Config{Backend: backend, Limiter: rate.NewLimiter(0, 1)})

	conn := dial(t, g)
	sendHandshake(t, conn, forwarded(testToken), wire.IntentLogin)
	receive(t, frames)

	limited := dial(t, g)
	_, err := limited.Read(make([]byte, 1))
	require.Error(t, err)
}

func TestGatewayBackendDown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	backend := ln.Addr().String()
	require.NoError(t, ln.Close())

	g := startGateway(t, Config{Backend: backend, DialTimeout: time.Second})
	conn := dial(t, g)
	sendHandshake(t, conn, forwarded(testToken), wire.IntentLogin)
	_, err = conn.Read(make([]byte, 1))
	require.Error(t, err)
}
