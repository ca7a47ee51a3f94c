package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wentf9/routerctl/pkg/logger"
	"github.com/wentf9/routerctl/pkg/models"
	"github.com/wentf9/routerctl/pkg/transport"
	"github.com/wentf9/routerctl/pkg/transport/transporttest"
)

var router = models.RouterTarget{Hostname: "core-1", Address: "10.0.0.1", Username: "admin", Password: "secret"}

func TestRun_Success(t *testing.T) {
	ft := &transporttest.Transport{}
	res, err := New(ft, logger.Discard()).Run(context.Background(), router, "show clock", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "ran:show clock\n", res.Stdout)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "core-1", res.Target)
	assert.Equal(t, 1, ft.Conns()[0].CloseCount())
}

func TestRun_NonZeroExit(t *testing.T) {
	ft := &transporttest.Transport{Exec: func(ctx context.Context, cmd string) (transport.ExecOutput, error) {
		return transport.ExecOutput{Stdout: []byte("partial"), Stderr: []byte("% Invalid input\n"), ExitCode: 1}, nil
	}}
	res, err := New(ft, logger.Discard()).Run(context.Background(), router, "shw clock", time.Second)
	require.Error(t, err)
	require.NotNil(t, res, "result is returned alongside a remote command error")
	assert.Equal(t, 1, res.ExitCode)
	assert.Equal(t, "partial", res.Stdout)

	var te *transport.Error
	require.ErrorAs(t, err, &te)
	assert.Equal(t, transport.KindRemoteCommand, te.Kind)
	assert.Equal(t, 1, te.ExitCode)
	assert.Equal(t, "% Invalid input", te.Stderr)
	assert.True(t, errors.Is(err, transport.ErrRemoteCommand))
}

func TestRun_TimeoutClosesConnection(t *testing.T) {
	ft := &transporttest.Transport{Exec: func(ctx context.Context, cmd string) (transport.ExecOutput, error) {
		time.Sleep(2 * time.Second)
		return transport.ExecOutput{}, nil
	}}
	start := time.Now()
	res, err := New(ft, logger.Discard()).Run(context.Background(), router, "ping 10.0.0.2 repeat 100000", 100*time.Millisecond)
	require.Error(t, err)
	assert.Nil(t, res)
	assert.Equal(t, transport.KindTimeout, transport.KindOf(err))
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 1, ft.Conns()[0].CloseCount())
}

func TestRun_TimeoutIncludesConnect(t *testing.T) {
	gate := make(chan struct{})
	ft := &transporttest.Transport{ConnectGate: gate}

	start := time.Now()
	_, err := New(ft, logger.Discard()).Run(context.Background(), router, "show clock", 100*time.Millisecond)
	require.Error(t, err)
	assert.Equal(t, transport.KindTimeout, transport.KindOf(err))
	assert.Less(t, time.Since(start), time.Second)

	// 超时后才建立的连接也要关闭
	close(gate)
	require.Eventually(t, func() bool {
		conns := ft.Conns()
		return len(conns) == 1 && conns[0].CloseCount() == 1
	}, time.Second, 10*time.Millisecond)
}

func TestRun_ConnectFailure(t *testing.T) {
	ft := &transporttest.Transport{ConnectErr: errors.New("connection refused")}
	res, err := New(ft, logger.Discard()).Run(context.Background(), router, "show clock", time.Second)
	require.Error(t, err)
	assert.Nil(t, res)
	assert.Equal(t, transport.KindConnection, transport.KindOf(err))
}

func TestRun_ChannelFailure(t *testing.T) {
	ft := &transporttest.Transport{Exec: func(ctx context.Context, cmd string) (transport.ExecOutput, error) {
		return transport.ExecOutput{}, errors.New("exec request denied")
	}}
	_, err := New(ft, logger.Discard()).Run(context.Background(), router, "show clock", time.Second)
	require.Error(t, err)
	assert.Equal(t, transport.KindChannel, transport.KindOf(err))
	assert.Equal(t, 1, ft.Conns()[0].CloseCount())
}

func TestRun_Canceled(t *testing.T) {
	ft := &transporttest.Transport{Exec: func(ctx context.Context, cmd string) (transport.ExecOutput, error) {
		<-ctx.Done()
		return transport.ExecOutput{}, ctx.Err()
	}}
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)
	_, err := New(ft, logger.Discard()).Run(ctx, router, "show clock", 5*time.Second)
	require.Error(t, err)
	assert.Equal(t, transport.KindCanceled, transport.KindOf(err))
}

func TestRun_InvalidInput(t *testing.T) {
	ft := &transporttest.Transport{}
	e := New(ft, logger.Discard())

	_, err := e.Run(context.Background(), router, "   ", time.Second)
	assert.Equal(t, transport.KindInvalid, transport.KindOf(err))

	_, err = e.Run(context.Background(), models.RouterTarget{Username: "u", Password: "p"}, "show clock", time.Second)
	assert.ErrorIs(t, err, models.ErrEmptyAddress)
	assert.Empty(t, ft.Conns())
}
