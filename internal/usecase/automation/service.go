package automation

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"funpay-agent/internal/adapters/settings"
	"funpay-agent/internal/domain"
	"funpay-agent/internal/infra/config"
	"funpay-agent/internal/usecase/dispatch"
	"funpay-agent/internal/usecase/notify"
)

// Deps — зависимости обработчиков событий.
type Deps struct {
	Rules    config.Rules
	Account  domain.Account
	Sender   *Sender
	Settings *settings.Store
	Products domain.ProductStore
	Notifier domain.Notifier
	Journal  domain.JournalRepo
	// Sink может быть nil, тогда события не экспортируются.
	Sink     domain.EventSink
	// Lots может быть nil, тогда состояние лотов не меняется.
	Lots     domain.LotManager
	Log      zerolog.Logger
}

// Service реализует реакции агента на события ленты.
type Service struct {
	Deps
	now func() time.Time

	mu         sync.Mutex
	lastStacks map[string]string

	lotMu sync.Mutex
}

// NewService создаёт набор обработчиков.
func NewService(deps Deps) *Service {
	return &Service{Deps: deps, now: time.Now, lastStacks: make(map[string]string)}
}

// Register подписывает обработчики на события диспетчера.
func (s *Service) Register(d *dispatch.Dispatcher) {
	d.On(domain.EventInitialChat, "remember_chat", s.rememberChat)

	d.On(domain.EventNewMessage, "log_message", s.logMessage)
	d.On(domain.EventNewMessage, "greeting", s.greet)
	d.On(domain.EventNewMessage, "auto_response", s.autoResponse)
	d.On(domain.EventNewMessage, "delivery_test", s.deliveryTest)
	d.On(domain.EventNewMessage, "new_message_notification", s.notifyNewMessages)
	d.On(domain.EventNewMessage, "review_reply", s.replyToReview)

	d.On(domain.EventNewOrder, "new_order_notification", s.notifyNewOrder)
	d.On(domain.EventNewOrder, "auto_delivery", s.autoDeliver)
	d.On(domain.EventNewOrder, "journal_new_order", s.journalNewOrder)
	d.On(domain.EventNewOrder, "lot_state", s.updateOrderLot)

	d.On(domain.EventOrderStatusChanged, "order_status", s.orderStatusChanged)
	d.On(domain.EventOrdersListChanged, "orders_counters", s.logCounters)
	d.On(domain.EventOrdersListChanged, "lot_state_sweep", s.updateAllLots)

	if s.Sink != nil {
		d.OnAll("export", s.export)
	}
}

// firstInStack сообщает, что стек сообщений чата ещё не обрабатывался потребителем consumer.
// События без стека всегда считаются первыми.
func (s *Service) firstInStack(consumer string, chatID int64, stack *domain.MessageStack) bool {
	if stack == nil {
		return true
	}
	key := consumer + ":" + strconv.FormatInt(chatID, 10)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastStacks[key] == stack.ID {
		return false
	}
	s.lastStacks[key] = stack.ID
	return true
}

func (s *Service) notify(ctx context.Context, n domain.Notification) {
	if s.Notifier == nil {
		return
	}
	if err := s.Notifier.Notify(ctx, n); err != nil {
		s.Log.Warn().Err(err).Str("kind", string(n.Kind)).Msg("automation: уведомление не доставлено")
	}
}

func (s *Service) record(ctx context.Context, entry domain.JournalEntry) {
	if s.Journal == nil {
		return
	}
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = s.now().UTC()
	}
	if err := s.Journal.RecordEvent(ctx, entry); err != nil {
		s.Log.Warn().Err(err).Str("event", entry.Event).Msg("automation: запись в журнал не удалась")
	}
}

func (s *Service) export(ctx context.Context, ev domain.Event) error {
	return s.Sink.Publish(ctx, ev)
}

// Started уведомляет владельца о запуске агента.
func (s *Service) Started(ctx context.Context, chats, sales int) {
	s.notify(ctx, domain.Notification{
		Kind: domain.NotifyBotStarted,
		Text: notify.FormatBotStarted(s.Account.Username(), chats, sales),
	})
}
