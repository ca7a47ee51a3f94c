package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wentf9/routerctl/pkg/config"
	"github.com/wentf9/routerctl/pkg/logger"
	"github.com/wentf9/routerctl/pkg/models"
	"github.com/wentf9/routerctl/pkg/probe"
	"github.com/wentf9/routerctl/pkg/transport"
)

type fakeSessions struct {
	mu         sync.Mutex
	target     models.RouterTarget
	script     models.CommandScript
	quiescence time.Duration
	err        error
}

func (f *fakeSessions) Run(ctx context.Context, target models.RouterTarget, script models.CommandScript, q time.Duration) (*models.SessionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.target, f.script, f.quiescence = target, script, q
	if f.err != nil {
		return nil, f.err
	}
	return &models.SessionResult{Target: target.Name(), Output: "out:" + script.Commands()[len(script)-1]}, nil
}

type fakeExec struct {
	timeout time.Duration
	res     *models.ExecResult
	err     error
}

func (f *fakeExec) Run(ctx context.Context, target models.RouterTarget, command string, timeout time.Duration) (*models.ExecResult, error) {
	f.timeout = timeout
	return f.res, f.err
}

type fakeProber struct {
	calls atomic.Int32
	delay time.Duration
}

func (f *fakeProber) Probe(ctx context.Context, target models.RouterTarget) probe.Report {
	f.calls.Add(1)
	time.Sleep(f.delay)
	return probe.Report{Router: target.Name(), Address: target.Address, PortOpen: true}
}

func testProvider() *config.Provider {
	cfg := config.Empty()
	cfg.Credentials["noc"] = config.Credential{Username: "admin", Password: "pw"}
	cfg.Routers["core-1"] = config.Router{Address: "10.0.0.1", Credential: "noc", Alias: []string{"c1"}}
	return config.NewProvider(cfg, nil)
}

func newTestService(s SessionRunner, e *fakeExec, p Prober) *Service {
	return New(testProvider(), s, e, p, Options{Quiescence: 3 * time.Second, ExecTimeout: 10 * time.Second, Logger: logger.Discard()})
}

func TestRunSession(t *testing.T) {
	fs := &fakeSessions{}
	svc := newTestService(fs, &fakeExec{}, &fakeProber{})

	resp, err := svc.RunSession(context.Background(), SessionRequest{Router: "c1", Commands: []string{"show version"}})
	require.NoError(t, err)
	assert.Equal(t, "out:show version", resp.Output)
	assert.Equal(t, 1, resp.Sessions)
	assert.Equal(t, "core-1", fs.target.Hostname)
	assert.Equal(t, 3*time.Second, fs.quiescence)

	_, err = svc.RunSession(context.Background(), SessionRequest{Router: "c1", Commands: []string{"x"}, QuiescenceMS: 250})
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, fs.quiescence)
}

func TestRunSession_InlineTarget(t *testing.T) {
	fs := &fakeSessions{}
	svc := newTestService(fs, &fakeExec{}, &fakeProber{})
	inline := &models.RouterTarget{Address: "192.0.2.1", Username: "u", Password: "p"}

	_, err := svc.RunSession(context.Background(), SessionRequest{Target: inline, Commands: []string{"show clock"}})
	require.NoError(t, err)
	assert.Equal(t, "192.0.2.1", fs.target.Address)

	resp, err := svc.RunSession(context.Background(), SessionRequest{Router: "c1", Target: inline})
	require.Error(t, err)
	assert.Equal(t, transport.KindInvalid, resp.Kind)
	assert.Zero(t, resp.Sessions)
}

func TestRunSession_UnknownRouter(t *testing.T) {
	svc := newTestService(&fakeSessions{}, &fakeExec{}, &fakeProber{})
	resp, err := svc.RunSession(context.Background(), SessionRequest{Router: "ghost", Commands: []string{"x"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrRouterNotFound)
	assert.Equal(t, transport.KindInvalid, resp.Kind)
	assert.Empty(t, resp.Output)
}

func TestRunSession_Failure(t *testing.T) {
	fs := &fakeSessions{err: transport.Errorf(transport.KindConnection, "connect", "core-1", errors.New("refused"))}
	svc := newTestService(fs, &fakeExec{}, &fakeProber{})
	resp, err := svc.RunSession(context.Background(), SessionRequest{Router: "core-1", Commands: []string{"x"}})
	require.Error(t, err)
	assert.Equal(t, transport.KindConnection, resp.Kind)
	assert.Empty(t, resp.Output)
	assert.NotEmpty(t, resp.Error)
}

func TestRunProfile(t *testing.T) {
	fs := &fakeSessions{}
	svc := newTestService(fs, &fakeExec{}, &fakeProber{})

	_, err := svc.RunProfile(context.Background(), ProfileRequest{Router: "core-1", Profile: "tejas-sfp", Interfaces: []string{"1/1/1"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"conf t", "set cli pagination off", "end", "show sfp 100g 1/1/1"}, fs.script.Commands())
	assert.Equal(t, 5*time.Second, fs.quiescence)

	_, err = svc.RunProfile(context.Background(), ProfileRequest{Router: "core-1", Profile: "nope"})
	assert.ErrorIs(t, err, config.ErrProfileNotFound)
}

func TestRunCommand(t *testing.T) {
	fe := &fakeExec{res: &models.ExecResult{Stdout: "uptime 3d"}}
	svc := newTestService(&fakeSessions{}, fe, &fakeProber{})

	resp, err := svc.RunCommand(context.Background(), CommandRequest{Router: "core-1", Command: "show clock"})
	require.NoError(t, err)
	assert.Equal(t, "uptime 3d", resp.Output)
	require.NotNil(t, resp.ExitCode)
	assert.Equal(t, 0, *resp.ExitCode)
	assert.Equal(t, 10*time.Second, fe.timeout)

	fe.res = &models.ExecResult{ExitCode: 2, Stderr: "bad"}
	fe.err = &transport.Error{Kind: transport.KindRemoteCommand, Op: "exec", ExitCode: 2, Stderr: "bad"}
	resp, err = svc.RunCommand(context.Background(), CommandRequest{Router: "core-1", Command: "oops", TimeoutMS: 500})
	require.Error(t, err)
	assert.Equal(t, 500*time.Millisecond, fe.timeout)
	assert.Equal(t, transport.KindRemoteCommand, resp.Kind)
	assert.Equal(t, 2, *resp.ExitCode)
	assert.Equal(t, "bad", resp.Stderr)
}

func TestProbe_Singleflight(t *testing.T) {
	fp := &fakeProber{delay: 100 * time.Millisecond}
	svc := newTestService(&fakeSessions{}, &fakeExec{}, fp)

	var wg sync.WaitGroup
	for range 5 {
		wg.Go(func() {
			rep, err := svc.Probe(context.Background(), "core-1")
			assert.NoError(t, err)
			assert.True(t, rep.PortOpen)
		})
	}
	wg.Wait()
	assert.Less(t, fp.calls.Load(), int32(5))

	_, err := svc.Probe(context.Background(), "ghost")
	assert.ErrorIs(t, err, config.ErrRouterNotFound)
}
