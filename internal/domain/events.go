package domain

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventKind — тип события ленты.
type EventKind int

const (
	// EventInitialChat — чат обнаружен при первом цикле опроса.
	EventInitialChat EventKind = iota
	// EventChatsListChanged — в списке чатов что-то изменилось.
	EventChatsListChanged
	// EventLastChatMessageChanged — изменилось последнее сообщение чата.
	EventLastChatMessageChanged
	// EventNewMessage — новое сообщение в истории чата.
	EventNewMessage
	// EventInitialOrder — заказ обнаружен при первом цикле опроса.
	EventInitialOrder
	// EventOrdersListChanged — изменились счётчики заказов.
	EventOrdersListChanged
	// EventNewOrder — новый заказ.
	EventNewOrder
	// EventOrderStatusChanged — изменился статус заказа.
	EventOrderStatusChanged
)

var eventKindNames = [...]string{
	EventInitialChat:            "initial_chat",
	EventChatsListChanged:       "chats_list_changed",
	EventLastChatMessageChanged: "last_chat_message_changed",
	EventNewMessage:             "new_message",
	EventInitialOrder:           "initial_order",
	EventOrdersListChanged:      "orders_list_changed",
	EventNewOrder:               "new_order",
	EventOrderStatusChanged:     "order_status_changed",
}

// AllEventKinds перечисляет все типы событий.
func AllEventKinds() []EventKind {
	kinds := make([]EventKind, 0, len(eventKindNames))
	for k := range eventKindNames {
		kinds = append(kinds, EventKind(k))
	}
	return kinds
}

func (k EventKind) String() string {
	if k < 0 || int(k) >= len(eventKindNames) {
		return "unknown"
	}
	return eventKindNames[k]
}

// Event — событие ленты. Заполнена только часть полей, соответствующая Kind.
type Event struct {
	Kind EventKind
	Tag  string // тег цикла ленты, в котором получено событие
	Time time.Time

	Chat     *ChatShortcut
	Message  *Message
	Stack    *MessageStack
	Order    *OrderShortcut
	Counters *OrderCounters
}

// MessageStack связывает события NewMessage одного чата за один цикл.
type MessageStack struct {
	ID string

	mu     sync.RWMutex
	events []Event
}

// NewMessageStack создаёт пустой стек со случайным идентификатором.
func NewMessageStack() *MessageStack {
	return &MessageStack{ID: uuid.NewString()}
}

// Add добавляет события в стек.
func (s *MessageStack) Add(events ...Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, events...)
}

// Events возвращает копию событий стека.
func (s *MessageStack) Events() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// Messages возвращает сообщения стека в порядке добавления.
func (s *MessageStack) Messages() []Message {
	events := s.Events()
	out := make([]Message, 0, len(events))
	for _, ev := range events {
		if ev.Message != nil {
			out = append(out, *ev.Message)
		}
	}
	return out
}

// Len возвращает количество событий в стеке.
func (s *MessageStack) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}
