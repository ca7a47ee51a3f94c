package ssh

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/wentf9/routerctl/pkg/transport"
	"golang.org/x/crypto/ssh"
)

// Shell 带 PTY 的交互式 shell 通道, 实现 transport.Shell
type Shell struct {
	session *ssh.Session
	stdin   io.WriteCloser
	pr      *io.PipeReader
	pw      *io.PipeWriter

	closeOnce sync.Once
	closeErr  error
}

var _ transport.Shell = (*Shell)(nil)

// OpenShell 请求 PTY 并启动 shell。stdout 和 stderr 合并到同一个输出流。
func (c *Client) OpenShell(ctx context.Context, pty transport.PTY) (transport.Shell, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	session, err := c.sshClient.NewSession()
	if err != nil {
		return nil, fmt.Errorf("open session channel: %w", err)
	}

	echo := uint32(0)
	if pty.Echo {
		echo = 1
	}
	modes := ssh.TerminalModes{
		ssh.ECHO:          echo,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	if err := session.RequestPty(pty.Term, pty.Height, pty.Width, modes); err != nil {
		session.Close()
		return nil, fmt.Errorf("request for pty failed: %w", err)
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		session.Close()
		return nil, err
	}
	pr, pw := io.Pipe()
	session.Stdout = pw
	session.Stderr = pw

	if err := session.Shell(); err != nil {
		session.Close()
		pw.Close()
		return nil, fmt.Errorf("start shell failed: %w", err)
	}

	s := &Shell{session: session, stdin: stdin, pr: pr, pw: pw}
	go func() {
		err := session.Wait()
		var exitErr *ssh.ExitError
		var missing *ssh.ExitMissingError
		switch {
		case err == nil, errors.As(err, &exitErr):
			// shell 正常退出, 读端得到 EOF
			pw.Close()
		case errors.As(err, &missing):
			// 连接断开时拿不到退出状态
			pw.CloseWithError(fmt.Errorf("%w: %w", ErrClientClosed, err))
		default:
			pw.CloseWithError(err)
		}
	}()
	return s, nil
}

func (s *Shell) Write(p []byte) (int, error) {
	return s.stdin.Write(p)
}

// Output 合并后的 stdout+stderr, shell 结束时返回 EOF
func (s *Shell) Output() io.Reader {
	return s.pr
}

// Close 关闭 stdin 和 session 通道, 可重复调用
func (s *Shell) Close() error {
	s.closeOnce.Do(func() {
		s.stdin.Close()
		s.closeErr = s.session.Close()
		if errors.Is(s.closeErr, io.EOF) {
			s.closeErr = nil
		}
	})
	return s.closeErr
}
