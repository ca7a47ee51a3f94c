package ssh

import "errors"

// 连接阶段的错误, 外层会再包成 transport.KindConnection
var (
	ErrDial           = errors.New("failed to dial router")
	ErrHandshake      = errors.New("ssh handshake failed")
	ErrAuthFailed     = errors.New("ssh authentication failed")
	ErrJumpHost       = errors.New("failed to connect to jump host")
	ErrKnownHosts     = errors.New("failed to load known_hosts")
	ErrClientClosed   = errors.New("ssh client closed")
	ErrExitStatusLost = errors.New("remote command ended without exit status")
)
