// Package service 把 inventory、会话管理器、执行器和探测组合成面向调用方的操作,
// HTTP API、MCP 和 CLI 共用。
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/wentf9/routerctl/pkg/config"
	"github.com/wentf9/routerctl/pkg/executor"
	"github.com/wentf9/routerctl/pkg/logger"
	"github.com/wentf9/routerctl/pkg/models"
	"github.com/wentf9/routerctl/pkg/probe"
	"github.com/wentf9/routerctl/pkg/transport"
	"golang.org/x/sync/singleflight"
)

// SessionRunner 交互式会话, 由 session.Manager 实现
type SessionRunner interface {
	Run(ctx context.Context, target models.RouterTarget, script models.CommandScript, quiescence time.Duration) (*models.SessionResult, error)
}

// Prober 可达性探测, 由 probe.Prober 实现
type Prober interface {
	Probe(ctx context.Context, target models.RouterTarget) probe.Report
}

// SessionRequest 二选一: Router 引用 inventory, Target 直接给出连接信息
type SessionRequest struct {
	Router       string               `json:"router,omitempty" jsonschema:"router name, alias or user@host:port from the inventory"`
	Target       *models.RouterTarget `json:"target,omitempty" jsonschema:"inline connection details when the router is not in the inventory"`
	Commands     []string             `json:"commands" jsonschema:"CLI commands written in order to one interactive shell"`
	QuiescenceMS int64                `json:"quiescence_ms,omitempty" jsonschema:"time to keep reading after the last command, default 5000"`
}

// ProfileRequest 在一台设备上执行 profile
type ProfileRequest struct {
	Router       string   `json:"router" jsonschema:"router name, alias or user@host:port from the inventory"`
	Profile      string   `json:"profile" jsonschema:"profile name, for example tejas-monitor"`
	Interfaces   []string `json:"interfaces,omitempty" jsonschema:"interfaces substituted into {interface} commands, overrides the profile list"`
	QuiescenceMS int64    `json:"quiescence_ms,omitempty" jsonschema:"overrides the profile quiescence"`
}

// CommandRequest 一次性命令
type CommandRequest struct {
	Router    string               `json:"router,omitempty" jsonschema:"router name, alias or user@host:port from the inventory"`
	Target    *models.RouterTarget `json:"target,omitempty" jsonschema:"inline connection details when the router is not in the inventory"`
	Command   string               `json:"command" jsonschema:"single command run on a non-interactive exec channel"`
	TimeoutMS int64                `json:"timeout_ms,omitempty" jsonschema:"hard limit for connect plus execution, default 30000"`
}

// Options 服务级默认值
type Options struct {
	Quiescence  time.Duration
	ExecTimeout time.Duration
	Logger      *slog.Logger
}

type Service struct {
	routers  config.ConfigProvider
	sessions SessionRunner
	exec     executor.Runner
	prober   Prober
	opts     Options
	log      *slog.Logger

	probes singleflight.Group
}

func New(routers config.ConfigProvider, sessions SessionRunner, exec executor.Runner, prober Prober, opts Options) *Service {
	return &Service{
		routers:  routers,
		sessions: sessions,
		exec:     exec,
		prober:   prober,
		opts:     opts,
		log:      logger.Or(opts.Logger),
	}
}

// ListRouters inventory 中的设备, 不含密码
func (s *Service) ListRouters() []config.RouterInfo {
	return s.routers.ListRouters()
}

// Profiles 可用的 profile 名
func (s *Service) Profiles() []string {
	return s.routers.ProfileNames()
}

// RunSession 返回的 error 与 Response.Error 描述同一个失败, 供调用方判断类别
func (s *Service) RunSession(ctx context.Context, req SessionRequest) (transport.Response, error) {
	started := time.Now()
	target, err := s.target(req.Router, req.Target)
	if err != nil {
		return transport.SessionResponse(nil, err, time.Since(started)), err
	}
	res, err := s.sessions.Run(ctx, target, models.Script(req.Commands...), s.quiescence(req.QuiescenceMS, 0))
	return transport.SessionResponse(res, err, time.Since(started)), err
}

func (s *Service) RunProfile(ctx context.Context, req ProfileRequest) (transport.Response, error) {
	started := time.Now()
	target, err := s.target(req.Router, nil)
	if err != nil {
		return transport.SessionResponse(nil, err, time.Since(started)), err
	}
	script, quiescence, err := s.ProfileScript(req.Profile, req.Interfaces, req.QuiescenceMS)
	if err != nil {
		err = transport.Errorf(transport.KindInvalid, "profile", target.Name(), err)
		return transport.SessionResponse(nil, err, time.Since(started)), err
	}
	res, err := s.sessions.Run(ctx, target, script, quiescence)
	return transport.SessionResponse(res, err, time.Since(started)), err
}

// ProfileScript 展开 profile, quiescenceMS > 0 时覆盖 profile 的设置
func (s *Service) ProfileScript(name string, interfaces []string, quiescenceMS int64) (models.CommandScript, time.Duration, error) {
	p, err := s.routers.Profile(name)
	if err != nil {
		return nil, 0, err
	}
	script, err := p.Script(interfaces...)
	if err != nil {
		return nil, 0, fmt.Errorf("profile '%s': %w", name, err)
	}
	return script, s.quiescence(quiescenceMS, p.Quiescence), nil
}

func (s *Service) RunCommand(ctx context.Context, req CommandRequest) (transport.Response, error) {
	started := time.Now()
	target, err := s.target(req.Router, req.Target)
	if err != nil {
		return transport.ExecResponse(nil, err, time.Since(started)), err
	}
	timeout := s.opts.ExecTimeout
	if req.TimeoutMS > 0 {
		timeout = time.Duration(req.TimeoutMS) * time.Millisecond
	}
	res, err := s.exec.Run(ctx, target, req.Command, timeout)
	return transport.ExecResponse(res, err, time.Since(started)), err
}

// Probe 同一台设备的并发探测合并为一次
func (s *Service) Probe(ctx context.Context, router string) (probe.Report, error) {
	target, err := s.target(router, nil)
	if err != nil {
		return probe.Report{}, err
	}
	ch := s.probes.DoChan(target.Name(), func() (any, error) {
		// 探测结果被多个调用方共享, 不受单个调用方取消的影响
		return s.prober.Probe(context.WithoutCancel(ctx), target), nil
	})
	select {
	case <-ctx.Done():
		return probe.Report{}, transport.FromContext(ctx, "probe", target.Name())
	case r := <-ch:
		if r.Shared {
			s.log.Debug("probe shared", "router", target.Name())
		}
		return r.Val.(probe.Report), nil
	}
}

// target 解析调用方给出的设备, 未找到时返回的错误满足 errors.Is(err, config.ErrRouterNotFound)
func (s *Service) target(router string, inline *models.RouterTarget) (models.RouterTarget, error) {
	router = strings.TrimSpace(router)
	switch {
	case router != "" && inline != nil:
		return models.RouterTarget{}, transport.Errorf(transport.KindInvalid, "resolve", router, errors.New("router and target are mutually exclusive"))
	case inline != nil:
		return *inline, nil
	case router == "":
		return models.RouterTarget{}, transport.Errorf(transport.KindInvalid, "resolve", "", errors.New("router or target is required"))
	}
	t, err := s.routers.Resolve(router)
	if err != nil {
		return models.RouterTarget{}, transport.Errorf(transport.KindInvalid, "resolve", router, err)
	}
	return t, nil
}

func (s *Service) quiescence(ms int64, fallback time.Duration) time.Duration {
	if ms > 0 {
		return time.Duration(ms) * time.Millisecond
	}
	if fallback > 0 {
		return fallback
	}
	return s.opts.Quiescence
}
