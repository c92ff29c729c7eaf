package socket

import (
	"database/sql"
	"encoding/json"
	"sync"

	"autogramhandoff/pkg/logger"
)

const (
	DocumentSignedType  = "DOCUMENT_SIGNED"  // AGP relayed a signed document
	SigningCompleteType = "SIGNING_COMPLETE" // AGP reported the end of the session
)

type WSMessage struct {
	Type      string          `json:"type"`
	SessionID string          `json:"session_id"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type SignedPayload struct {
	DocumentID string `json:"document_id"`
	Content    string `json:"content"`
	Digest     string `json:"digest"`
}

// Hub fans signing progress out to the DA pages watching a session.
type Hub struct {
	Rooms      map[string]map[*Client]bool
	Broadcast  chan WSMessage
	Register   chan *Client
	Unregister chan *Client
	db         *sql.DB
	mu         sync.Mutex
	quit       chan struct{}
	closeOnce  sync.Once
}

func NewHub(db *sql.DB) *Hub {
	return &Hub{
		Rooms:      make(map[string]map[*Client]bool),
		Broadcast:  make(chan WSMessage),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		db:         db,
		quit:       make(chan struct{}),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case <-h.quit:
			h.mu.Lock()
			for sessionID, clients := range h.Rooms {
				for client := range clients {
					close(client.Send)
				}
				delete(h.Rooms, sessionID)
			}
			h.mu.Unlock()
			return

		case client := <-h.Register:
			h.mu.Lock()
			if h.Rooms[client.SessionID] == nil {
				h.Rooms[client.SessionID] = make(map[*Client]bool)
			}
			h.Rooms[client.SessionID][client] = true
			h.mu.Unlock()

			// Pages that connect late catch up on what already arrived.
			for _, msg := range h.backlog(client.SessionID) {
				payload, err := json.Marshal(msg)
				if err != nil {
					continue
				}
				select {
				case client.Send <- payload:
				default:
					logger.Sugar.Warnf("Client for session %s dropped backlog message", client.SessionID)
				}
			}

		case client := <-h.Unregister:
			h.mu.Lock()
			h.removeClient(client)
			h.mu.Unlock()

		case msg := <-h.Broadcast:
			payload, err := json.Marshal(msg)
			if err != nil {
				logger.Sugar.Errorf("Error marshalling broadcast message: %v", err)
				continue
			}

			h.mu.Lock()
			for client := range h.Rooms[msg.SessionID] {
				select {
				case client.Send <- payload:
				default:
					// The client is lagging; drop it rather than block the hub.
					logger.Sugar.Warnf("Client for session %s has a full send buffer. Unregistering.", client.SessionID)
					h.removeClient(client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Publish hands a message to the hub. It returns immediately once the hub is closed.
func (h *Hub) Publish(msg WSMessage) {
	select {
	case h.Broadcast <- msg:
	case <-h.quit:
	}
}

// Close stops Run and closes every client's send channel.
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.quit) })
}

// ClientCount reports how many pages watch a session.
func (h *Hub) ClientCount(sessionID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.Rooms[sessionID])
}

// removeClient must be called with h.mu held.
func (h *Hub) removeClient(client *Client) {
	if _, ok := h.Rooms[client.SessionID][client]; !ok {
		return
	}
	delete(h.Rooms[client.SessionID], client)
	close(client.Send)
	if len(h.Rooms[client.SessionID]) == 0 {
		delete(h.Rooms, client.SessionID)
		logger.Sugar.Infof("Closed empty room for session %s", client.SessionID)
	}
}

func (h *Hub) backlog(sessionID string) []WSMessage {
	rows, err := h.db.Query("SELECT document_id, content, digest FROM signed_documents WHERE session_id = $1 ORDER BY received_at", sessionID)
	if err != nil {
		logger.Sugar.Errorf("Failed to load signed documents for session %s: %v", sessionID, err)
		return nil
	}

	var msgs []WSMessage
	for rows.Next() {
		var p SignedPayload
		if err := rows.Scan(&p.DocumentID, &p.Content, &p.Digest); err != nil {
			logger.Sugar.Errorf("Failed to scan signed document for session %s: %v", sessionID, err)
			continue
		}
		raw, _ := json.Marshal(p)
		msgs = append(msgs, WSMessage{Type: DocumentSignedType, SessionID: sessionID, Payload: raw})
	}
	rows.Close()

	var completed bool
	err = h.db.QueryRow("SELECT completed_at IS NOT NULL FROM signing_sessions WHERE id = $1", sessionID).Scan(&completed)
	if err != nil && err != sql.ErrNoRows {
		logger.Sugar.Errorf("Failed to load signing session %s: %v", sessionID, err)
	}
	if completed {
		msgs = append(msgs, WSMessage{Type: SigningCompleteType, SessionID: sessionID})
	}
	return msgs
}
