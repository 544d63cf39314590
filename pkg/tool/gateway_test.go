package tool_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomrun/loom/pkg/events"
	"github.com/loomrun/loom/pkg/tool"
)

type echoTool struct{}

func (echoTool) Name() string               { return "echo" }
func (echoTool) Description() string        { return "echoes its input" }
func (echoTool) Schema() map[string]any     { return nil }
func (echoTool) Call(_ context.Context, args map[string]any) (map[string]any, error) {
	return args, nil
}

func newGateway(t *testing.T) *tool.Gateway {
	t.Helper()
	reg := tool.NewRegistry()
	require.NoError(t, reg.Register(echoTool{}))
	policy := tool.NewPolicy(map[string][]string{"writer": {"echo"}})
	return tool.NewGateway(reg, policy, events.New())
}

func TestGatewayAllowsPolicyPermittedCall(t *testing.T) {
	g := newGateway(t)
	res := g.Invoke(context.Background(), "s1", "stage1", "writer", tool.Call{
		ID: "c1", Name: "echo", Args: map[string]any{"x": 1},
	})
	assert.False(t, res.Denied)
	assert.Equal(t, 1, res.Content["x"])
	assert.Empty(t, res.Error)
}

func TestGatewayDeniesUnauthorizedRole(t *testing.T) {
	g := newGateway(t)
	res := g.Invoke(context.Background(), "s1", "stage1", "reader", tool.Call{
		ID: "c1", Name: "echo", Args: map[string]any{"x": 1},
	})
	assert.True(t, res.Denied)
	assert.Empty(t, res.Content)
	assert.Empty(t, res.Error)
}

func TestGatewayUnknownToolReturnsErrorNotPanic(t *testing.T) {
	g := newGateway(t)
	res := g.Invoke(context.Background(), "s1", "stage1", "writer", tool.Call{
		ID: "c1", Name: "missing",
	})
	assert.False(t, res.Denied)
	assert.NotEmpty(t, res.Error)
}
