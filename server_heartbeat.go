package hangfire

import (
	"context"
	"time"
)

const heartbeatInterval = 5 * time.Second

// ServerHeartbeat keeps one server's registry entry alive: it announces the
// server on start, beats every few seconds, and removes the registration on
// shutdown. Servers that stop beating are eventually culled by
// RemoveTimedOutServers.
type ServerHeartbeat struct {
	storage     *Storage
	serverID    string
	workerCount int
	queues      []string
}

// NewServerHeartbeat builds the heartbeat component for serverID.
func NewServerHeartbeat(storage *Storage, serverID string, workerCount int, queues []string) *ServerHeartbeat {
	return &ServerHeartbeat{
		storage:     storage,
		serverID:    serverID,
		workerCount: workerCount,
		queues:      queues,
	}
}

func (h *ServerHeartbeat) Execute(ctx context.Context) {
	conn := h.storage.GetConnection()

	if err := conn.AnnounceServer(h.serverID, &ServerContext{
		WorkerCount: h.workerCount,
		Queues:      h.queues,
	}); err != nil {
		logError("server_heartbeat.announce", err)
	}
	if err := conn.Heartbeat(h.serverID); err != nil {
		logError("server_heartbeat", err)
	}

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := conn.RemoveServer(h.serverID); err != nil {
				logError("server_heartbeat.remove", err)
			}
			return
		case <-ticker.C:
			if err := conn.Heartbeat(h.serverID); err != nil {
				logError("server_heartbeat", err)
			}
		}
	}
}
