package wsgate

import (
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Hub tracks the accepted streaming connections per subject. One subject may
// hold several connections (multiple devices).
type Hub struct {
	mutex       sync.Mutex
	connections map[string][]*Connection
	logger      *zap.Logger
}

// Connection is one accepted streaming connection with its session-bound
// subject.
type Connection struct {
	ID        string
	SubjectID string

	socket     *websocket.Conn
	writeMutex sync.Mutex
}

// NewHub constructs an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		connections: make(map[string][]*Connection),
		logger:      logger,
	}
}

// Register binds an accepted socket to the subject and returns the tracked
// connection.
func (hub *Hub) Register(subjectID string, socket *websocket.Conn) *Connection {
	connection := &Connection{
		ID:        uuid.NewString(),
		SubjectID: subjectID,
		socket:    socket,
	}
	hub.mutex.Lock()
	hub.connections[subjectID] = append(hub.connections[subjectID], connection)
	count := len(hub.connections[subjectID])
	hub.mutex.Unlock()
	hub.logger.Info("connection registered",
		zap.String("code", "wsgate.hub.connected"),
		zap.String("subject_id", subjectID),
		zap.String("connection_id", connection.ID),
		zap.Int("subject_connections", count))
	return connection
}

// Unregister drops the connection from the subject's list.
func (hub *Hub) Unregister(connection *Connection) {
	if connection == nil {
		return
	}
	hub.mutex.Lock()
	remaining := hub.connections[connection.SubjectID][:0]
	for _, candidate := range hub.connections[connection.SubjectID] {
		if candidate.ID != connection.ID {
			remaining = append(remaining, candidate)
		}
	}
	if len(remaining) == 0 {
		delete(hub.connections, connection.SubjectID)
	} else {
		hub.connections[connection.SubjectID] = remaining
	}
	hub.mutex.Unlock()
	hub.logger.Info("connection unregistered",
		zap.String("code", "wsgate.hub.disconnected"),
		zap.String("subject_id", connection.SubjectID),
		zap.String("connection_id", connection.ID))
}

// SendToSubject delivers a JSON payload to every connection of the subject.
// Connections that fail to accept the write are pruned. Returns true when at
// least one connection received the payload.
func (hub *Hub) SendToSubject(subjectID string, payload any) bool {
	hub.mutex.Lock()
	targets := make([]*Connection, len(hub.connections[subjectID]))
	copy(targets, hub.connections[subjectID])
	hub.mutex.Unlock()

	if len(targets) == 0 {
		return false
	}

	delivered := false
	for _, connection := range targets {
		if writeErr := connection.WriteJSON(payload); writeErr != nil {
			hub.logger.Warn("send failed; pruning connection",
				zap.String("code", "wsgate.hub.send_failed"),
				zap.String("subject_id", subjectID),
				zap.String("connection_id", connection.ID),
				zap.Error(writeErr))
			hub.Unregister(connection)
			_ = connection.socket.Close()
			continue
		}
		delivered = true
	}
	return delivered
}

// IsSubjectConnected reports whether the subject currently holds at least one
// connection.
func (hub *Hub) IsSubjectConnected(subjectID string) bool {
	hub.mutex.Lock()
	defer hub.mutex.Unlock()
	return len(hub.connections[subjectID]) > 0
}

// ConnectedSubjectCount returns the number of distinct connected subjects.
func (hub *Hub) ConnectedSubjectCount() int {
	hub.mutex.Lock()
	defer hub.mutex.Unlock()
	return len(hub.connections)
}

// WriteJSON serializes the payload to the socket. Writes are serialized per
// connection; gorilla sockets allow at most one concurrent writer.
func (connection *Connection) WriteJSON(payload any) error {
	connection.writeMutex.Lock()
	defer connection.writeMutex.Unlock()
	return connection.socket.WriteJSON(payload)
}
