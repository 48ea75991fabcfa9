package domain

import (
	"time"

	"github.com/google/uuid"
)

// ExportedEvent — событие в виде, пригодном для публикации во внешнюю очередь.
type ExportedEvent struct {
	ID         string         `json:"event_id"`
	Kind       string         `json:"kind"`
	Tag        string         `json:"tag"`
	OccurredAt time.Time      `json:"occurred_at"`
	StackID    string         `json:"stack_id,omitempty"`
	ChatID     int64          `json:"chat_id,omitempty"`
	ChatName   string         `json:"chat_name,omitempty"`
	Preview    string         `json:"preview,omitempty"`
	Message    *Message       `json:"message,omitempty"`
	Order      *OrderShortcut `json:"order,omitempty"`
	Counters   *OrderCounters `json:"counters,omitempty"`
}

// ExportEvent переводит событие в экспортируемую форму.
func ExportEvent(ev Event) ExportedEvent {
	out := ExportedEvent{
		ID:         uuid.NewString(),
		Kind:       ev.Kind.String(),
		Tag:        ev.Tag,
		OccurredAt: ev.Time.UTC(),
		Message:    ev.Message,
		Order:      ev.Order,
		Counters:   ev.Counters,
	}
	if ev.Stack != nil {
		out.StackID = ev.Stack.ID
	}
	if ev.Chat != nil {
		out.ChatID = ev.Chat.ID
		out.ChatName = ev.Chat.Name
		out.Preview = ev.Chat.LastMessageText
	}
	if ev.Message != nil && out.ChatID == 0 {
		out.ChatID = ev.Message.ChatID
		out.ChatName = ev.Message.ChatName
	}
	return out
}
