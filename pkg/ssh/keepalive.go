package ssh

import (
	"time"

	"golang.org/x/crypto/ssh"
)

// keepAliveRequest OpenSSH 标准的心跳请求类型, 大部分路由器的 sshd 都会回复
const keepAliveRequest = "keepalive@openssh.com"

// requester 便于测试替换 *ssh.Client
type requester interface {
	SendRequest(name string, wantReply bool, payload []byte) (bool, []byte, error)
	Close() error
}

// StartKeepAlive 开启一个协程，定期向 SSH Server 发送心跳, 关闭 stop 后退出。
// 心跳失败时关闭连接, 正在使用的 shell 会读到错误, 然后调用 fallback。
func StartKeepAlive(client requester, interval time.Duration, stop <-chan struct{}, fallback func(err error)) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
			}

			if _, _, err := client.SendRequest(keepAliveRequest, true, nil); err != nil {
				select {
				case <-stop:
					// 主动关闭导致的失败, 不算断线
					return
				default:
				}
				client.Close()
				if fallback != nil {
					fallback(err)
				}
				return
			}
		}
	}()
}

var _ requester = (*ssh.Client)(nil)
