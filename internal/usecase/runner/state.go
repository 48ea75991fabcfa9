package runner

import (
	"strings"
	"sync"

	"github.com/google/uuid"

	"funpay-agent/internal/domain"
)

// State хранит всё, что опрос помнит между циклами.
// Изменяется только самим Runner, снаружи допустимы MarkSelfSent и UpdateLastMessage.
type State struct {
	mu sync.Mutex

	chatTag  string
	orderTag string

	previews   map[int64]string
	watermarks map[int64]int64
	selfSent   map[int64]map[int64]struct{}
	orders     map[string]domain.OrderStatus

	firstCycle bool
}

// NewState создаёт состояние для нового запуска.
func NewState() *State {
	return &State{
		chatTag:    randomTag(),
		orderTag:   randomTag(),
		previews:   make(map[int64]string),
		watermarks: make(map[int64]int64),
		selfSent:   make(map[int64]map[int64]struct{}),
		orders:     make(map[string]domain.OrderStatus),
		firstCycle: true,
	}
}

func randomTag() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
}

// Tags возвращает текущие теги лент чатов и заказов.
func (s *State) Tags() (chatTag, orderTag string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chatTag, s.orderTag
}

func (s *State) setChatTag(tag string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chatTag = tag
}

func (s *State) setOrderTag(tag string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orderTag = tag
}

// FirstCycle сообщает, что первый успешный цикл ещё не завершён.
func (s *State) FirstCycle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.firstCycle
}

func (s *State) finishBootstrap() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.firstCycle = false
}

// Preview возвращает последнее известное превью чата.
func (s *State) Preview(chatID int64) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	text, ok := s.previews[chatID]
	return text, ok
}

// updatePreview сохраняет превью и сообщает, изменилось ли оно.
func (s *State) updatePreview(chatID int64, text string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.previews[chatID]; ok && prev == text {
		return false
	}
	s.previews[chatID] = text
	return true
}

// UpdateLastMessage записывает превью отправленного агентом сообщения,
// чтобы следующий опрос не посчитал чат изменившимся.
func (s *State) UpdateLastMessage(chatID int64, text *string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.previews[chatID] = domain.TruncatePreview(text)
}

// Watermark возвращает id последнего выданного сообщения чата.
func (s *State) Watermark(chatID int64) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.watermarks[chatID]
	return id, ok
}

// advanceWatermark сдвигает отметку вперёд и удаляет id собственных сообщений не выше неё.
// Назад отметка не сдвигается.
func (s *State) advanceWatermark(chatID, messageID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.watermarks[chatID]; ok && messageID <= cur {
		return
	}
	s.watermarks[chatID] = messageID
	ids := s.selfSent[chatID]
	for id := range ids {
		if id <= messageID {
			delete(ids, id)
		}
	}
	if len(ids) == 0 {
		delete(s.selfSent, chatID)
	}
}

// MarkSelfSent запоминает id сообщения, отправленного агентом.
// Сообщения не выше текущей отметки уже выданы и не запоминаются.
func (s *State) MarkSelfSent(chatID, messageID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.watermarks[chatID]; ok && messageID <= cur {
		return
	}
	ids, ok := s.selfSent[chatID]
	if !ok {
		ids = make(map[int64]struct{})
		s.selfSent[chatID] = ids
	}
	ids[messageID] = struct{}{}
}

// IsSelfSent сообщает, отправлял ли агент сообщение с таким id.
func (s *State) IsSelfSent(chatID, messageID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.selfSent[chatID][messageID]
	return ok
}

// SelfSentCount возвращает количество запомненных собственных сообщений чата.
func (s *State) SelfSentCount(chatID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.selfSent[chatID])
}

// OrderStatus возвращает последний известный статус заказа.
func (s *State) OrderStatus(orderID string) (domain.OrderStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	status, ok := s.orders[orderID]
	return status, ok
}

func (s *State) setOrderStatus(orderID string, status domain.OrderStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[orderID] = status
}
