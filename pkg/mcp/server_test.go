package mcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoomServer(t *testing.T) {
	s := NewLoomServer(LoomServerDeps{Runner: &mockRunner{}, Store: newMockStore()})
	require.NotNil(t, s)
	require.NotNil(t, s.MCPServer())
	require.NotNil(t, s.Sessions())
	assert.NotNil(t, s.logger)
}

func TestToolNames(t *testing.T) {
	s := NewLoomServer(LoomServerDeps{})

	names := make([]string, 0)
	for _, st := range s.tools() {
		names = append(names, st.Tool.Name)
	}
	assert.ElementsMatch(t, []string{
		"agent.define",
		"agent.execute",
		"agent.cancel",
		"agent.status",
		"agent.logs",
		"agent.query",
		"agent.diagram",
	}, names)
}
