package bot

import (
	"context"
	"errors"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"funpay-agent/internal/adapters/settings"
	"funpay-agent/internal/domain"
	"funpay-agent/internal/infra/cache"
)

type fakeAPI struct {
	mu       sync.Mutex
	sent     []tgbotapi.MessageConfig
	requests []tgbotapi.Chattable
	sendErr  error
	updates  chan tgbotapi.Update
	stopped  bool
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return tgbotapi.Message{}, f.sendErr
	}
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, msg)
	}
	return tgbotapi.Message{}, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return f.updates
}

func (f *fakeAPI) StopReceivingUpdates() {
	f.mu.Lock()
	f.stopped = true
	f.mu.Unlock()
}

func (f *fakeAPI) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.sent))
	for _, m := range f.sent {
		out = append(out, m.Text)
	}
	return out
}

func (f *fakeAPI) last() tgbotapi.MessageConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent[len(f.sent)-1]
}

type recordingSender struct {
	chatID int64
	text   string
	err    error
}

func (s *recordingSender) SendText(_ context.Context, chatID int64, text string) error {
	s.chatID, s.text = chatID, text
	return s.err
}

func newTestHandler(t *testing.T) (*Handler, *fakeAPI, *settings.Store, *recordingSender) {
	t.Helper()
	api := &fakeAPI{updates: make(chan tgbotapi.Update)}
	store := settings.NewStore(cache.NewMemory())
	sender := &recordingSender{}
	return NewHandler(api, zerolog.Nop(), store, sender, "s3cret"), api, store, sender
}

func message(chatID int64, text string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: chatID}, Text: text}}
}

func callback(chatID int64, data string) tgbotapi.Update {
	return tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb",
		Data:    data,
		Message: &tgbotapi.Message{MessageID: 9, Chat: &tgbotapi.Chat{ID: chatID}},
	}}
}

func TestStartRequiresSecret(t *testing.T) {
	h, api, store, _ := newTestHandler(t)
	ctx := context.Background()

	h.HandleUpdate(ctx, message(1, "/start wrong"))
	assert.False(t, store.IsAuthorized(1))

	h.HandleUpdate(ctx, message(1, "/start s3cret"))
	assert.True(t, store.IsAuthorized(1))
	assert.Contains(t, api.last().Text, "Чат авторизован")
}

func TestUnauthorizedChatIsIgnored(t *testing.T) {
	h, api, _, _ := newTestHandler(t)
	h.HandleUpdate(context.Background(), message(2, "/block_list"))
	assert.Empty(t, api.texts())
}

func TestBanCommands(t *testing.T) {
	h, api, store, _ := newTestHandler(t)
	ctx := context.Background()
	require.NoError(t, store.Authorize(1))

	h.HandleUpdate(ctx, message(1, "/ban cheater"))
	assert.True(t, store.IsBlocked("cheater"))
	h.HandleUpdate(ctx, message(1, "/block_list"))
	assert.Equal(t, "Чёрный список:\ncheater", api.last().Text)
	h.HandleUpdate(ctx, message(1, "/unban cheater"))
	assert.False(t, store.IsBlocked("cheater"))
}

func TestMenuToggle(t *testing.T) {
	h, api, store, _ := newTestHandler(t)
	ctx := context.Background()
	require.NoError(t, store.Authorize(1))

	h.HandleUpdate(ctx, message(1, "/menu"))
	markup, ok := api.last().ReplyMarkup.(*tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok)
	assert.Len(t, markup.InlineKeyboard, len(domain.NotificationSpecs()))

	h.HandleUpdate(ctx, callback(1, "toggle:new_order"))
	assert.False(t, store.NotificationEnabled(1, domain.NotifyNewOrder))
	require.Len(t, api.requests, 2)
	_, edited := api.requests[0].(tgbotapi.EditMessageReplyMarkupConfig)
	assert.True(t, edited)
}

func TestReplyFlow(t *testing.T) {
	h, api, store, sender := newTestHandler(t)
	ctx := context.Background()
	require.NoError(t, store.Authorize(1))

	h.HandleUpdate(ctx, callback(1, "reply:55"))
	h.HandleUpdate(ctx, message(1, "Здравствуйте"))
	assert.Equal(t, int64(55), sender.chatID)
	assert.Equal(t, "Здравствуйте", sender.text)
	assert.Equal(t, "Отправлено", api.last().Text)

	sender.text = ""
	h.HandleUpdate(ctx, message(1, "ещё"))
	assert.Empty(t, sender.text)
}

func TestReplyFlowReportsFailure(t *testing.T) {
	h, api, store, sender := newTestHandler(t)
	ctx := context.Background()
	require.NoError(t, store.Authorize(1))
	sender.err = errors.New("не доставлено")

	h.HandleUpdate(ctx, callback(1, "reply:55"))
	h.HandleUpdate(ctx, message(1, "текст"))
	assert.Contains(t, api.last().Text, "Не удалось отправить")
}

func TestRunStopsOnCancel(t *testing.T) {
	h, api, _, _ := newTestHandler(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, h.Run(ctx))
	assert.True(t, api.stopped)
}

func TestNotifierRespectsToggles(t *testing.T) {
	api := &fakeAPI{}
	store := settings.NewStore(cache.NewMemory())
	require.NoError(t, store.Authorize(1))
	require.NoError(t, store.Authorize(2))
	require.NoError(t, store.SetNotification(2, domain.NotifyNewMessage, false))
	n := NewNotifier(api, zerolog.Nop(), store, "https://funpay.com")

	err := n.Notify(context.Background(), domain.Notification{
		Kind:        domain.NotifyNewMessage,
		Text:        "<b>buyer</b>: привет",
		ReplyChatID: 55,
	})
	require.NoError(t, err)
	require.Len(t, api.sent, 1)
	msg := api.sent[0]
	assert.Equal(t, int64(1), msg.ChatID)
	assert.Equal(t, tgbotapi.ModeHTML, msg.ParseMode)
	markup, ok := msg.ReplyMarkup.(*tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok)
	require.Len(t, markup.InlineKeyboard, 1)
	assert.Equal(t, "reply:55", *markup.InlineKeyboard[0][0].CallbackData)
}

func TestNotifierJoinsErrors(t *testing.T) {
	api := &fakeAPI{sendErr: errors.New("telegram недоступен")}
	store := settings.NewStore(cache.NewMemory())
	require.NoError(t, store.Authorize(1))
	n := NewNotifier(api, zerolog.Nop(), store, "https://funpay.com")

	err := n.Notify(context.Background(), domain.Notification{Kind: domain.NotifyBotStarted, Text: "старт"})
	assert.Error(t, err)
}
