package transport

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"

	"github.com/8inary/infra/internal/util/keygen"
)

type execReply struct {
	stdout string
	stderr string
	status uint32
}

// testServer is a minimal SSH server that answers "exec" requests.
type testServer struct {
	listener net.Listener
	handler  func(cmd string) execReply

	conns    atomic.Int32
	mu       sync.Mutex
	commands []string
}

func generateKey(t *testing.T) *keygen.KeyPair {
	t.Helper()
	kp, err := keygen.GenerateEd25519KeyPair("test")
	require.NoError(t, err)
	return kp
}

func startTestServer(t *testing.T, authorized ssh.PublicKey, handler func(string) execReply) *testServer {
	t.Helper()

	hostKey := generateKey(t)
	hostSigner, err := ssh.ParsePrivateKey(hostKey.PrivateKey)
	require.NoError(t, err)

	config := &ssh.ServerConfig{
		PublicKeyCallback: func(_ ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			if string(key.Marshal()) == string(authorized.Marshal()) {
				return &ssh.Permissions{}, nil
			}
			return nil, fmt.Errorf("unknown key")
		},
	}
	config.AddHostKey(hostSigner)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = listener.Close() })

	srv := &testServer{listener: listener, handler: handler}
	go srv.serve(config)
	return srv
}

func (s *testServer) port() int {
	return s.listener.Addr().(*net.TCPAddr).Port
}

func (s *testServer) recorded() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

func (s *testServer) serve(config *ssh.ServerConfig) {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		go s.handleConn(conn, config)
	}
}

func (s *testServer) handleConn(conn net.Conn, config *ssh.ServerConfig) {
	_, chans, reqs, err := ssh.NewServerConn(conn, config)
	if err != nil {
		_ = conn.Close()
		return
	}
	s.conns.Add(1)
	go ssh.DiscardRequests(reqs)

	for newChan := range chans {
		if newChan.ChannelType() != "session" {
			_ = newChan.Reject(ssh.UnknownChannelType, "unsupported")
			continue
		}
		ch, chReqs, err := newChan.Accept()
		if err != nil {
			continue
		}
		go s.handleSession(ch, chReqs)
	}
}

func (s *testServer) handleSession(ch ssh.Channel, reqs <-chan *ssh.Request) {
	defer func() { _ = ch.Close() }()
	for req := range reqs {
		if req.Type != "exec" {
			_ = req.Reply(false, nil)
			continue
		}
		length := binary.BigEndian.Uint32(req.Payload[:4])
		cmd := string(req.Payload[4 : 4+length])
		_ = req.Reply(true, nil)

		s.mu.Lock()
		s.commands = append(s.commands, cmd)
		s.mu.Unlock()

		reply := s.handler(cmd)
		_, _ = ch.Write([]byte(reply.stdout))
		_, _ = ch.Stderr().Write([]byte(reply.stderr))
		status := make([]byte, 4)
		binary.BigEndian.PutUint32(status, reply.status)
		_, _ = ch.SendRequest("exit-status", false, status)
		return
	}
}

func clientKey(t *testing.T) (*keygen.KeyPair, ssh.PublicKey) {
	t.Helper()
	kp := generateKey(t)
	signer, err := ssh.ParsePrivateKey(kp.PrivateKey)
	require.NoError(t, err)
	return kp, signer.PublicKey()
}

func TestNewRemote_Validation(t *testing.T) {
	t.Parallel()
	kp := generateKey(t)

	tests := []struct {
		name string
		cfg  *RemoteConfig
		want string
	}{
		{"nil config", nil, "config cannot be nil"},
		{"empty host", &RemoteConfig{User: "mgmt", PrivateKey: kp.PrivateKey}, "config host cannot be empty"},
		{"empty user", &RemoteConfig{Host: "192.168.0.2", PrivateKey: kp.PrivateKey}, "config user cannot be empty"},
		{"empty key", &RemoteConfig{Host: "192.168.0.2", User: "mgmt"}, "config private key cannot be empty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewRemote(tt.cfg)
			require.Error(t, err)
			assert.Equal(t, tt.want, err.Error())
		})
	}
}

func TestNewRemote_Defaults(t *testing.T) {
	t.Parallel()
	kp := generateKey(t)

	cfg := &RemoteConfig{Host: "192.168.0.2", User: "mgmt", PrivateKey: kp.PrivateKey}
	r, err := NewRemote(cfg)
	require.NoError(t, err)

	assert.Equal(t, defaultPort, r.config.Port)
	assert.Equal(t, defaultDialTimeout, r.config.DialTimeout)
	assert.Equal(t, "192.168.0.2:22", r.Address())
	assert.Zero(t, cfg.Port, "caller config must not be mutated")
}

func TestNewRemote_InvalidKey(t *testing.T) {
	t.Parallel()
	_, err := NewRemote(&RemoteConfig{Host: "h", User: "u", PrivateKey: []byte("invalid key")})
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "failed to parse private key"))
}

func TestRemote_ExecuteReusesConnection(t *testing.T) {
	t.Parallel()
	kp, pub := clientKey(t)

	srv := startTestServer(t, pub, func(cmd string) execReply {
		switch {
		case strings.HasPrefix(cmd, "fail"):
			return execReply{stdout: "partial", stderr: "boom", status: 7}
		default:
			return execReply{stdout: "ran: " + cmd}
		}
	})

	r, err := NewRemote(&RemoteConfig{
		Host:       "127.0.0.1",
		Port:       srv.port(),
		User:       "mgmt",
		PrivateKey: kp.PrivateKey,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })

	ctx := context.Background()
	res, err := r.Execute(ctx, "hostname -f")
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "ran: hostname -f", res.Stdout)

	res, err = r.Execute(ctx, "fail now")
	require.NoError(t, err, "non-zero exit must be returned as data")
	assert.Equal(t, 7, res.ExitCode)
	assert.Equal(t, "partial", res.Stdout)
	assert.Equal(t, "boom", res.Stderr)

	assert.Equal(t, int32(1), srv.conns.Load())
	assert.Equal(t, []string{"hostname -f", "fail now"}, srv.recorded())
}

func TestRemote_SudoWrapping(t *testing.T) {
	t.Parallel()
	kp, pub := clientKey(t)
	srv := startTestServer(t, pub, func(string) execReply { return execReply{} })

	r, err := NewRemote(&RemoteConfig{
		Host:       "127.0.0.1",
		Port:       srv.port(),
		User:       "mgmt",
		PrivateKey: kp.PrivateKey,
		Sudo:       true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })

	_, err = r.Execute(context.Background(), "cat /etc/machine-id")
	require.NoError(t, err)
	assert.Equal(t, []string{"sudo -n sh -c 'cat /etc/machine-id'"}, srv.recorded())
}

func TestRemote_AuthFailureIsLaunchErrorWithoutRetry(t *testing.T) {
	t.Parallel()
	kp := generateKey(t)
	_, otherPub := clientKey(t)
	srv := startTestServer(t, otherPub, func(string) execReply { return execReply{} })

	r, err := NewRemote(&RemoteConfig{
		Host:        "127.0.0.1",
		Port:        srv.port(),
		User:        "mgmt",
		PrivateKey:  kp.PrivateKey,
		DialRetries: 5,
		RetryDelay:  time.Hour,
	})
	require.NoError(t, err)

	start := time.Now()
	_, err = r.Execute(context.Background(), "true")

	var launchErr *LaunchError
	require.ErrorAs(t, err, &launchErr)
	assert.Less(t, time.Since(start), time.Minute)
	assert.Zero(t, srv.conns.Load())
}

func TestRemote_ClosedTransport(t *testing.T) {
	t.Parallel()
	kp, pub := clientKey(t)
	srv := startTestServer(t, pub, func(string) execReply { return execReply{} })

	r, err := NewRemote(&RemoteConfig{Host: "127.0.0.1", Port: srv.port(), User: "mgmt", PrivateKey: kp.PrivateKey})
	require.NoError(t, err)

	_, err = r.Execute(context.Background(), "true")
	require.NoError(t, err)
	require.NoError(t, r.Close())
	require.NoError(t, r.Close())

	_, err = r.Execute(context.Background(), "true")
	var launchErr *LaunchError
	require.ErrorAs(t, err, &launchErr)
}
