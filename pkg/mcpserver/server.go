// Package mcpserver 以 MCP 工具的形式通过 stdio 暴露路由器操作。
package mcpserver

import (
	"context"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/wentf9/routerctl/pkg/config"
	"github.com/wentf9/routerctl/pkg/logger"
	"github.com/wentf9/routerctl/pkg/service"
	"github.com/wentf9/routerctl/pkg/transport"
)

type listInput struct{}

type listOutput struct {
	Routers  []config.RouterInfo `json:"routers"`
	Profiles []string            `json:"profiles"`
}

type sessionInput struct {
	Router       string   `json:"router" jsonschema:"router name, alias or user@host:port from the inventory"`
	Commands     []string `json:"commands" jsonschema:"CLI commands written in order to one interactive shell"`
	QuiescenceMS int64    `json:"quiescence_ms,omitempty" jsonschema:"time to keep reading after the last command"`
}

type commandInput struct {
	Router    string `json:"router" jsonschema:"router name, alias or user@host:port from the inventory"`
	Command   string `json:"command" jsonschema:"single command run on a non-interactive exec channel"`
	TimeoutMS int64  `json:"timeout_ms,omitempty" jsonschema:"hard limit for connect plus execution"`
}

// New 注册全部工具
func New(svc *service.Service, version string, log *slog.Logger) *mcp.Server {
	log = logger.Or(log)
	server := mcp.NewServer(&mcp.Implementation{Name: "routerctl", Version: version}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_routers",
		Description: "List routers in the inventory (without credentials) and the available command profiles.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, in listInput) (*mcp.CallToolResult, listOutput, error) {
		return nil, listOutput{Routers: svc.ListRouters(), Profiles: svc.Profiles()}, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name: "run_session",
		Description: "Open one interactive shell on a router, send the commands in order, wait for output to settle " +
			"and return the full transcript. Output is all-or-nothing.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, in sessionInput) (*mcp.CallToolResult, transport.Response, error) {
		resp, err := svc.RunSession(ctx, service.SessionRequest{Router: in.Router, Commands: in.Commands, QuiescenceMS: in.QuiescenceMS})
		return toolResult(log, "run_session", resp, err)
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "run_profile",
		Description: "Run a named command profile (for example tejas-monitor) on a router in one interactive session.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, in service.ProfileRequest) (*mcp.CallToolResult, transport.Response, error) {
		resp, err := svc.RunProfile(ctx, in)
		return toolResult(log, "run_profile", resp, err)
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "run_command",
		Description: "Run a single command on a router over an exec channel and return stdout, stderr and exit code.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, in commandInput) (*mcp.CallToolResult, transport.Response, error) {
		resp, err := svc.RunCommand(ctx, service.CommandRequest{Router: in.Router, Command: in.Command, TimeoutMS: in.TimeoutMS})
		return toolResult(log, "run_command", resp, err)
	})

	return server
}

// toolResult 设备侧的失败作为工具结果返回 (IsError), 调用方仍能拿到 kind 和 stderr
func toolResult(log *slog.Logger, tool string, resp transport.Response, err error) (*mcp.CallToolResult, transport.Response, error) {
	if err != nil {
		log.Warn("tool failed", "tool", tool, "kind", resp.Kind, "error", err)
		return &mcp.CallToolResult{IsError: true}, resp, nil
	}
	return nil, resp, nil
}

// Run 在 stdio 上提供服务直到 ctx 结束或客户端断开
func Run(ctx context.Context, server *mcp.Server) error {
	return server.Run(ctx, &mcp.StdioTransport{})
}
