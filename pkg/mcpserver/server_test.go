package mcpserver

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wentf9/routerctl/pkg/config"
	"github.com/wentf9/routerctl/pkg/logger"
	"github.com/wentf9/routerctl/pkg/models"
	"github.com/wentf9/routerctl/pkg/probe"
	"github.com/wentf9/routerctl/pkg/service"
	"github.com/wentf9/routerctl/pkg/transport"
)

type stubSessions struct{}

func (stubSessions) Run(ctx context.Context, target models.RouterTarget, script models.CommandScript, q time.Duration) (*models.SessionResult, error) {
	return &models.SessionResult{Output: "R1# " + script.Commands()[0]}, nil
}

type stubExec struct{}

func (stubExec) Run(ctx context.Context, target models.RouterTarget, command string, timeout time.Duration) (*models.ExecResult, error) {
	return nil, transport.Errorf(transport.KindConnection, "connect", target.Name(), errors.New("refused"))
}

type stubProber struct{}

func (stubProber) Probe(ctx context.Context, target models.RouterTarget) probe.Report {
	return probe.Report{}
}

func connect(t *testing.T) *mcp.ClientSession {
	t.Helper()
	cfg := config.Empty()
	cfg.Credentials["noc"] = config.Credential{Username: "admin", Password: "secret"}
	cfg.Routers["core-1"] = config.Router{Address: "10.0.0.1", Credential: "noc"}
	svc := service.New(config.NewProvider(cfg, nil), stubSessions{}, stubExec{}, stubProber{}, service.Options{Logger: logger.Discard()})

	ctx := context.Background()
	serverT, clientT := mcp.NewInMemoryTransports()
	_, err := New(svc, "test", logger.Discard()).Connect(ctx, serverT, nil)
	require.NoError(t, err)

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0"}, nil)
	cs, err := client.Connect(ctx, clientT, nil)
	require.NoError(t, err)
	t.Cleanup(func() { cs.Close() })
	return cs
}

func TestTools_Listed(t *testing.T) {
	cs := connect(t)
	res, err := cs.ListTools(context.Background(), nil)
	require.NoError(t, err)
	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	sort.Strings(names)
	assert.Equal(t, []string{"list_routers", "run_command", "run_profile", "run_session"}, names)
}

func TestRunSessionTool(t *testing.T) {
	cs := connect(t)
	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "run_session",
		Arguments: map[string]any{"router": "core-1", "commands": []string{"show version"}},
	})
	require.NoError(t, err)
	assert.False(t, res.IsError)
	out, ok := res.StructuredContent.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "R1# show version", out["output"])
}

func TestRunCommandTool_ReportsFailure(t *testing.T) {
	cs := connect(t)
	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "run_command",
		Arguments: map[string]any{"router": "core-1", "command": "show clock"},
	})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	out, ok := res.StructuredContent.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, string(transport.KindConnection), out["kind"])
}

func TestListRoutersTool(t *testing.T) {
	cs := connect(t)
	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{Name: "list_routers", Arguments: map[string]any{}})
	require.NoError(t, err)
	out, ok := res.StructuredContent.(map[string]any)
	require.True(t, ok)
	routers, ok := out["routers"].([]any)
	require.True(t, ok)
	require.Len(t, routers, 1)
	assert.Equal(t, "core-1", routers[0].(map[string]any)["name"])
}
