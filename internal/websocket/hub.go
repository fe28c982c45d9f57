// Package websocket pushes change notifications to connected browsers so
// every open view can refetch after a habit or completion changes.
package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/tct123/open-source-habit-tracker-app/internal/model"
)

const (
	EntityHabit      = "habit"
	EntityCompletion = "completion"
	EntityDay        = "day"
	EntityBackup     = "backup"
)

// Message is one change notification. Type is Entity + "_" + Action.
type Message struct {
	Type   string         `json:"type"`
	Entity string         `json:"entity"`
	Action string         `json:"action"`
	ID     int64          `json:"id,omitempty"`
	Extra  map[string]any `json:"extra,omitempty"`
}

func NewMessage(entity, action string, id int64, extra map[string]any) Message {
	return Message{
		Type:   entity + "_" + action,
		Entity: entity,
		Action: action,
		ID:     id,
		Extra:  extra,
	}
}

// HabitChanged announces a registry change: created, updated, archived,
// restored or deleted.
func HabitChanged(action string, habitID int64) Message {
	return NewMessage(EntityHabit, action, habitID, nil)
}

func HabitsReordered(ids []int64) Message {
	return NewMessage(EntityHabit, "reordered", 0, map[string]any{"ids": ids})
}

func CompletionToggled(habitID int64, date string, status model.Status) Message {
	return NewMessage(EntityCompletion, "toggled", habitID, map[string]any{
		"date":   date,
		"status": status,
	})
}

func DayRolled(date string) Message {
	return NewMessage(EntityDay, "rolled", 0, map[string]any{"date": date})
}

// BackupFinished reports a backup run ending as completed or failed.
func BackupFinished(b model.Backup) Message {
	return NewMessage(EntityBackup, string(b.Status), b.ID, map[string]any{
		"key":   b.Key,
		"error": b.ErrorMessage,
	})
}

type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	logger  *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		logger:  logger,
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

// Unregister removes c and closes its send channel. Safe to call twice.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// Broadcast queues msg for every client. A client whose buffer is full
// misses the message; it refetches on the next one.
func (h *Hub) Broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal broadcast", "type", msg.Type, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.logger.Debug("client buffer full, message dropped", "type", msg.Type)
		}
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
