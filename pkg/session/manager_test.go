package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
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

func newManager(ft *transporttest.Transport, opts Options) *Manager {
	opts.Logger = logger.Discard()
	return NewManager(ft, opts)
}

func TestRun_OutputInSubmissionOrder(t *testing.T) {
	ft := &transporttest.Transport{Banner: "R1# "}
	m := newManager(ft, Options{})

	res, err := m.Run(context.Background(), router, models.Script("show version", "show ip route", "show clock"), 100*time.Millisecond)
	require.NoError(t, err)

	ia := strings.Index(res.Output, "out:show version")
	ib := strings.Index(res.Output, "out:show ip route")
	ic := strings.Index(res.Output, "out:show clock")
	require.True(t, ia >= 0 && ib >= 0 && ic >= 0, res.Output)
	assert.Less(t, ia, ib)
	assert.Less(t, ib, ic)
	assert.True(t, strings.HasPrefix(res.Output, "R1# "))
	assert.Equal(t, len(res.Output), res.Bytes)
	assert.Equal(t, "core-1", res.Target)

	require.Len(t, res.Marks, 3)
	for i, mk := range res.Marks {
		assert.Equal(t, models.OutcomeUnknown, mk.Outcome)
		if i > 0 {
			assert.GreaterOrEqual(t, mk.Offset, res.Marks[i-1].Offset)
		}
	}

	conns := ft.Conns()
	require.Len(t, conns, 1)
	assert.Equal(t, 1, conns[0].CloseCount())
	assert.Equal(t, []string{"show version", "show ip route", "show clock", "exit"}, conns[0].Written())
}

func TestRun_EmptyScript(t *testing.T) {
	ft := &transporttest.Transport{Banner: "Welcome\r\nR1# "}
	m := newManager(ft, Options{})

	res, err := m.Run(context.Background(), router, nil, 50*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "Welcome\r\nR1# ", res.Output)
	assert.Empty(t, res.Marks)
	assert.Equal(t, []string{"exit"}, ft.Conns()[0].Written())
}

func TestRun_SettleBetweenCommands(t *testing.T) {
	ft := &transporttest.Transport{}
	m := newManager(ft, Options{})
	script := models.CommandScript{
		{Command: "conf t", Settle: 80 * time.Millisecond},
		{Command: "set cli pagination off", Settle: 80 * time.Millisecond},
		{Command: "end"},
	}

	start := time.Now()
	res, err := m.Run(context.Background(), router, script, 20*time.Millisecond)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 160*time.Millisecond)
	assert.Contains(t, res.Output, "out:end")
}

func TestRun_ConnectFailure(t *testing.T) {
	ft := &transporttest.Transport{ConnectErr: errors.New("dial tcp 10.0.0.1:22: connection refused")}
	m := newManager(ft, Options{})

	res, err := m.Run(context.Background(), router, models.Script("show version"), time.Second)
	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, errors.Is(err, transport.ErrConnection))
	assert.Empty(t, ft.Conns())
}

func TestRun_ConnectTimeoutIsConnectionError(t *testing.T) {
	ft := &transporttest.Transport{ConnectDelay: time.Second}
	m := newManager(ft, Options{ConnectTimeout: 50 * time.Millisecond})

	start := time.Now()
	_, err := m.Run(context.Background(), router, models.Script("show version"), time.Second)
	require.Error(t, err)
	assert.Equal(t, transport.KindConnection, transport.KindOf(err))
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestRun_ShellFailure(t *testing.T) {
	ft := &transporttest.Transport{ShellErr: errors.New("pty request denied")}
	m := newManager(ft, Options{})

	res, err := m.Run(context.Background(), router, models.Script("show version"), time.Second)
	require.Error(t, err)
	assert.Nil(t, res)
	assert.Equal(t, transport.KindChannel, transport.KindOf(err))
	assert.Equal(t, 1, ft.Conns()[0].CloseCount())
}

func TestRun_DeviceDropsMidSession(t *testing.T) {
	ft := &transporttest.Transport{DropAfter: 1}
	m := newManager(ft, Options{})

	start := time.Now()
	res, err := m.Run(context.Background(), router, models.Script("show version", "show ip route"), 2*time.Second)
	require.Error(t, err)
	assert.Nil(t, res, "partial output is discarded")
	assert.True(t, errors.Is(err, transport.ErrSessionDropped))
	assert.Equal(t, transport.KindConnection, transport.KindOf(err))
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 1, ft.Conns()[0].CloseCount())
}

func TestRun_CanceledDuringQuiescence(t *testing.T) {
	ft := &transporttest.Transport{}
	m := newManager(ft, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	start := time.Now()
	res, err := m.Run(ctx, router, models.Script("show version"), 5*time.Second)
	require.Error(t, err)
	assert.Nil(t, res)
	assert.Equal(t, transport.KindCanceled, transport.KindOf(err))
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 1, ft.Conns()[0].CloseCount())
}

func TestRun_CallerDeadlineIsTimeout(t *testing.T) {
	ft := &transporttest.Transport{}
	m := newManager(ft, Options{})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := m.Run(ctx, router, models.Script("show version"), 5*time.Second)
	require.Error(t, err)
	assert.True(t, errors.Is(err, transport.ErrTimeout))
}

func TestRun_IdleGapEndsEarly(t *testing.T) {
	ft := &transporttest.Transport{}
	m := newManager(ft, Options{IdleGap: 50 * time.Millisecond})

	start := time.Now()
	res, err := m.Run(context.Background(), router, models.Script("show version"), 5*time.Second)
	require.NoError(t, err)
	assert.Contains(t, res.Output, "out:show version")
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestRun_InvalidTarget(t *testing.T) {
	ft := &transporttest.Transport{}
	m := newManager(ft, Options{})

	bad := router
	bad.Password = ""
	_, err := m.Run(context.Background(), bad, models.Script("show version"), time.Second)
	require.Error(t, err)
	assert.Equal(t, transport.KindInvalid, transport.KindOf(err))
	assert.ErrorIs(t, err, models.ErrEmptyPassword)
	assert.Empty(t, ft.Conns())
}

func TestRun_ConcurrentSessionsAreIsolated(t *testing.T) {
	ft := &transporttest.Transport{}
	m := newManager(ft, Options{})

	var wg sync.WaitGroup
	results := make([]*models.SessionResult, 8)
	errs := make([]error, 8)
	for i := range 8 {
		wg.Go(func() {
			results[i], errs[i] = m.Run(context.Background(), router, models.Script(fmt.Sprintf("show id %d", i)), 50*time.Millisecond)
		})
	}
	wg.Wait()

	for i := range 8 {
		require.NoError(t, errs[i])
		assert.Equal(t, fmt.Sprintf("out:show id %d\n", i), results[i].Output)
	}
	conns := ft.Conns()
	require.Len(t, conns, 8)
	for _, c := range conns {
		assert.Equal(t, 1, c.CloseCount())
	}
}

func TestSegment(t *testing.T) {
	ft := &transporttest.Transport{}
	m := newManager(ft, Options{})
	script := models.CommandScript{
		{Command: "a", Settle: 30 * time.Millisecond},
		{Command: "b", Settle: 30 * time.Millisecond},
	}
	res, err := m.Run(context.Background(), router, script, 30*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "out:a\n", res.Segment(0))
	assert.Equal(t, "out:b\n", res.Segment(1))
	assert.Empty(t, res.Segment(2))
}
