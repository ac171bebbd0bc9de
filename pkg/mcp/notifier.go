package mcp

import (
	"context"
	"errors"
	"log/slog"

	"github.com/mark3labs/mcp-go/server"

	"github.com/nodeloom/nodeloom/internal/streaming"
)

// LogNotifier bridges the streaming hub to MCP push notifications: every log
// entry published for an agent is forwarded to the session that started the
// run. Best-effort; disconnected sessions are dropped silently.
type LogNotifier struct {
	mcpServer *server.MCPServer
	sessions  *SessionRegistry
	hub       streaming.Hub
	logger    *slog.Logger
}

func NewLogNotifier(mcpServer *server.MCPServer, sessions *SessionRegistry, hub streaming.Hub, logger *slog.Logger) *LogNotifier {
	return &LogNotifier{
		mcpServer: mcpServer,
		sessions:  sessions,
		hub:       hub,
		logger:    logger,
	}
}

// Start subscribes to the hub and forwards events until ctx is cancelled.
func (n *LogNotifier) Start(ctx context.Context) error {
	events, cancel, err := n.hub.Subscribe(ctx, streaming.Filter{})
	if err != nil {
		return err
	}

	go func() {
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				n.notify(ev)
			}
		}
	}()
	return nil
}

func (n *LogNotifier) notify(ev streaming.LogEvent) {
	sessionID, ok := n.sessions.SessionFor(ev.AgentID)
	if !ok {
		return
	}

	payload := map[string]any{
		"agent_id": ev.AgentID,
		"run_id":   ev.RunID,
		"entry":    ev.Entry,
	}
	err := n.mcpServer.SendNotificationToSpecificClient(sessionID, "notifications/message", payload)
	if errors.Is(err, server.ErrSessionNotFound) {
		// Session expired between lookup and send.
		n.sessions.Remove(sessionID)
		return
	}
	if err != nil {
		n.logger.Warn("push log notification",
			slog.String("agent_id", ev.AgentID),
			slog.String("error", err.Error()),
		)
	}
}
