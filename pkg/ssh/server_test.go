package ssh

import (
	"bufio"
	"io"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/binary"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

const (
	testUser     = "admin"
	testPassword = "secret"
	testPrompt   = "R1# "
)

// testServer 进程内的 SSH 服务端, 模拟路由器 CLI:
// shell 中每行命令回显后输出 "out:<cmd>", exec 按命令名决定输出和退出码。
type testServer struct {
	ln       net.Listener
	cfg      *ssh.ServerConfig
	wg       sync.WaitGroup
	mu       sync.Mutex
	conns    []net.Conn
	accepted int
	execs    []string
	tunnels  int
}

func startTestServer(t *testing.T) *testServer {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	signer, err := ssh.NewSignerFromKey(priv)
	require.NoError(t, err)

	cfg := &ssh.ServerConfig{
		PasswordCallback: func(c ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			if c.User() == testUser && string(pass) == testPassword {
				return nil, nil
			}
			return nil, errPasswordRejected
		},
	}
	cfg.AddHostKey(signer)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s := &testServer{ln: ln, cfg: cfg}
	s.wg.Add(1)
	go s.serve()
	t.Cleanup(s.stop)
	return s
}

type rejectErr string

func (e rejectErr) Error() string { return string(e) }

const errPasswordRejected = rejectErr("password rejected")

func (s *testServer) host() string {
	return s.ln.Addr().(*net.TCPAddr).IP.String()
}

func (s *testServer) port() uint16 {
	return uint16(s.ln.Addr().(*net.TCPAddr).Port)
}

func (s *testServer) acceptedConns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accepted
}

// execCommands exec 请求中收到的原始命令
func (s *testServer) execCommands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.execs...)
}

func (s *testServer) tunnelCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tunnels
}

// dropAll 模拟设备掉线
func (s *testServer) dropAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.conns {
		c.Close()
	}
}

func (s *testServer) stop() {
	s.ln.Close()
	s.dropAll()
	s.wg.Wait()
}

func (s *testServer) serve() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns = append(s.conns, conn)
		s.accepted++
		s.mu.Unlock()
		go s.handleConn(conn)
	}
}

func (s *testServer) handleConn(raw net.Conn) {
	_, chans, reqs, err := ssh.NewServerConn(raw, s.cfg)
	if err != nil {
		raw.Close()
		return
	}
	go ssh.DiscardRequests(reqs)
	for ch := range chans {
		switch ch.ChannelType() {
		case "session":
			c, in, err := ch.Accept()
			if err != nil {
				continue
			}
			go s.handleSession(c, in)
		case "direct-tcpip":
			go s.forward(ch)
		default:
			_ = ch.Reject(ssh.UnknownChannelType, "")
		}
	}
}

// forward 跳板机的端口转发 (RFC 4254 7.2)
func (s *testServer) forward(nc ssh.NewChannel) {
	var req struct {
		Host  string
		Port  uint32
		OHost string
		OPort uint32
	}
	if err := ssh.Unmarshal(nc.ExtraData(), &req); err != nil {
		_ = nc.Reject(ssh.ConnectionFailed, "bad direct-tcpip payload")
		return
	}
	target, err := net.Dial("tcp", net.JoinHostPort(req.Host, strconv.Itoa(int(req.Port))))
	if err != nil {
		_ = nc.Reject(ssh.ConnectionFailed, err.Error())
		return
	}
	ch, reqs, err := nc.Accept()
	if err != nil {
		target.Close()
		return
	}
	go ssh.DiscardRequests(reqs)
	s.mu.Lock()
	s.tunnels++
	s.conns = append(s.conns, target)
	s.mu.Unlock()

	go func() {
		_, _ = io.Copy(target, ch)
		if tc, ok := target.(*net.TCPConn); ok {
			_ = tc.CloseWrite()
		}
	}()
	_, _ = io.Copy(ch, target)
	ch.Close()
	target.Close()
}

func (s *testServer) handleSession(ch ssh.Channel, in <-chan *ssh.Request) {
	for req := range in {
		switch req.Type {
		case "pty-req", "env":
			req.Reply(true, nil)
		case "shell":
			req.Reply(true, nil)
			go emulateCLI(ch)
		case "exec":
			req.Reply(true, nil)
			cmd := parseExecPayload(req.Payload)
			s.mu.Lock()
			s.execs = append(s.execs, cmd)
			s.mu.Unlock()
			go emulateExec(ch, cmd)
		default:
			req.Reply(false, nil)
		}
	}
}

func parseExecPayload(p []byte) string {
	if len(p) < 4 {
		return ""
	}
	n := binary.BigEndian.Uint32(p)
	if int(n) > len(p)-4 {
		return ""
	}
	return string(p[4 : 4+n])
}

func sendExitStatus(ch ssh.Channel, code int) {
	_, _ = ch.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{uint32(code)}))
}

func emulateCLI(ch ssh.Channel) {
	defer ch.Close()
	_, _ = ch.Write([]byte(testPrompt))
	br := bufio.NewReader(ch)
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			return
		}
		cmd := strings.TrimSpace(line)
		if cmd == "exit" {
			sendExitStatus(ch, 0)
			return
		}
		if strings.HasPrefix(cmd, "slow ") {
			d, _ := time.ParseDuration(strings.TrimPrefix(cmd, "slow "))
			time.Sleep(d)
		}
		_, _ = ch.Write([]byte(cmd + "\r\nout:" + cmd + "\r\n" + testPrompt))
	}
}

func emulateExec(ch ssh.Channel, cmd string) {
	defer ch.Close()
	switch {
	case strings.HasPrefix(cmd, "fail"):
		code := 3
		if f := strings.Fields(cmd); len(f) > 1 {
			code, _ = strconv.Atoi(f[1])
		}
		_, _ = ch.Stderr().Write([]byte("boom\n"))
		sendExitStatus(ch, code)
	case strings.HasPrefix(cmd, "sleep"):
		time.Sleep(2 * time.Second)
		sendExitStatus(ch, 0)
	default:
		_, _ = ch.Write([]byte("ran:" + cmd + "\n"))
		sendExitStatus(ch, 0)
	}
}
