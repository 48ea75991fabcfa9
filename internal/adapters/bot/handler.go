package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"funpay-agent/internal/adapters/settings"
	"funpay-agent/internal/adapters/telegram"
	"funpay-agent/internal/domain"
	"funpay-agent/internal/infra/metrics"
)

// API — часть клиента Telegram, которой пользуется бот.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// ChatSender отправляет сообщение в чат площадки от имени аккаунта.
type ChatSender interface {
	SendText(ctx context.Context, chatID int64, text string) error
}

// Handler обслуживает управляющего бота.
type Handler struct {
	bot      API
	log      zerolog.Logger
	settings *settings.Store
	sender   ChatSender
	secret   string

	mu           sync.Mutex
	pendingReply map[int64]int64
}

// NewHandler создаёт обработчик.
func NewHandler(bot API, log zerolog.Logger, store *settings.Store, sender ChatSender, secret string) *Handler {
	return &Handler{
		bot:          bot,
		log:          log,
		settings:     store,
		sender:       sender,
		secret:       secret,
		pendingReply: make(map[int64]int64),
	}
}

// Run получает апдейты long polling до отмены ctx.
func (h *Handler) Run(ctx context.Context) error {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = 30
	updates := h.bot.GetUpdatesChan(cfg)
	h.log.Info().Msg("bot: получение апдейтов запущено")
	for {
		select {
		case <-ctx.Done():
			h.bot.StopReceivingUpdates()
			return nil
		case upd, ok := <-updates:
			if !ok {
				return nil
			}
			h.HandleUpdate(ctx, upd)
		}
	}
}

// HandleUpdate обрабатывает входящий апдейт.
func (h *Handler) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	if upd.Message != nil {
		h.handleMessage(ctx, upd.Message)
	} else if upd.CallbackQuery != nil {
		h.handleCallback(ctx, upd.CallbackQuery)
	}
}

func (h *Handler) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	text := strings.TrimSpace(msg.Text)
	chatID := msg.Chat.ID

	if strings.HasPrefix(text, "/start") {
		h.handleStart(chatID, strings.TrimSpace(strings.TrimPrefix(text, "/start")))
		return
	}
	if !h.settings.IsAuthorized(chatID) {
		h.log.Warn().Int64("chat", chatID).Msg("bot: сообщение из неавторизованного чата")
		return
	}
	if !strings.HasPrefix(text, "/") {
		if h.tryHandleReplyInput(ctx, chatID, text) {
			return
		}
	}

	switch {
	case strings.HasPrefix(text, "/menu"):
		h.handleMenu(chatID)
	case strings.HasPrefix(text, "/cancel"):
		h.clearPendingReply(chatID)
		h.reply(chatID, "Отменено", nil)
	case strings.HasPrefix(text, "/ban"):
		h.handleBan(chatID, strings.TrimSpace(strings.TrimPrefix(text, "/ban")))
	case strings.HasPrefix(text, "/unban"):
		h.handleUnban(chatID, strings.TrimSpace(strings.TrimPrefix(text, "/unban")))
	case strings.HasPrefix(text, "/block_list"):
		h.handleBlockList(chatID)
	default:
		h.reply(chatID, "Неизвестная команда. Используйте /menu", nil)
	}
}

func (h *Handler) handleStart(chatID int64, secret string) {
	if h.settings.IsAuthorized(chatID) {
		h.reply(chatID, helpText, nil)
		return
	}
	if h.secret == "" || secret != h.secret {
		h.log.Warn().Int64("chat", chatID).Msg("bot: неверный пароль")
		h.reply(chatID, "Отправьте /start <пароль>", nil)
		return
	}
	if err := h.settings.Authorize(chatID); err != nil {
		h.log.Error().Err(err).Int64("chat", chatID).Msg("bot: не удалось авторизовать чат")
		h.reply(chatID, "Не удалось сохранить авторизацию. Попробуйте позже", nil)
		return
	}
	h.log.Info().Int64("chat", chatID).Msg("bot: чат авторизован")
	h.reply(chatID, "Чат авторизован.\n\n"+helpText, nil)
}

const helpText = `/menu — переключатели уведомлений
/ban <ник> — добавить в чёрный список
/unban <ник> — убрать из чёрного списка
/block_list — чёрный список
/cancel — отменить ответ в чат`

func (h *Handler) handleMenu(chatID int64) {
	h.reply(chatID, "Уведомления:", h.menuKeyboard(chatID))
}

func (h *Handler) menuKeyboard(chatID int64) *tgbotapi.InlineKeyboardMarkup {
	specs := domain.NotificationSpecs()
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(specs))
	for _, spec := range specs {
		mark := "🔕"
		if h.settings.NotificationEnabled(chatID, spec.Kind) {
			mark = "🔔"
		}
		button := tgbotapi.NewInlineKeyboardButtonData(mark+" "+spec.Title, "toggle:"+string(spec.Kind))
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(button))
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &markup
}

func (h *Handler) handleBan(chatID int64, username string) {
	if username == "" {
		h.reply(chatID, "Укажите ник, например /ban username", nil)
		return
	}
	added, err := h.settings.Block(username)
	if err != nil {
		h.reply(chatID, fmt.Sprintf("Не удалось обновить чёрный список: %v", err), nil)
		return
	}
	if !added {
		h.reply(chatID, username+" уже в чёрном списке", nil)
		return
	}
	h.reply(chatID, username+" добавлен в чёрный список", nil)
}

func (h *Handler) handleUnban(chatID int64, username string) {
	if username == "" {
		h.reply(chatID, "Укажите ник, например /unban username", nil)
		return
	}
	removed, err := h.settings.Unblock(username)
	if err != nil {
		h.reply(chatID, fmt.Sprintf("Не удалось обновить чёрный список: %v", err), nil)
		return
	}
	if !removed {
		h.reply(chatID, username+" не найден в чёрном списке", nil)
		return
	}
	h.reply(chatID, username+" удалён из чёрного списка", nil)
}

func (h *Handler) handleBlockList(chatID int64) {
	names, err := h.settings.BlockList()
	if err != nil {
		h.reply(chatID, fmt.Sprintf("Не удалось получить чёрный список: %v", err), nil)
		return
	}
	if len(names) == 0 {
		h.reply(chatID, "Чёрный список пуст", nil)
		return
	}
	h.reply(chatID, "Чёрный список:\n"+strings.Join(names, "\n"), nil)
}

func (h *Handler) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.Message == nil || !h.settings.IsAuthorized(cb.Message.Chat.ID) {
		h.answerCallback(cb, "")
		return
	}
	chatID := cb.Message.Chat.ID
	data := cb.Data
	var notice string
	switch {
	case strings.HasPrefix(data, "toggle:"):
		kind := domain.NotificationKind(strings.TrimPrefix(data, "toggle:"))
		if _, ok := domain.LookupNotification(kind); !ok {
			break
		}
		enabled, err := h.settings.ToggleNotification(chatID, kind)
		if err != nil {
			h.log.Error().Err(err).Msg("bot: не удалось переключить уведомление")
			notice = "Ошибка сохранения"
			break
		}
		notice = "Выключено"
		if enabled {
			notice = "Включено"
		}
		h.request(tgbotapi.NewEditMessageReplyMarkup(chatID, cb.Message.MessageID, *h.menuKeyboard(chatID)), "edit_markup")
	case strings.HasPrefix(data, "reply:"):
		target, err := strconv.ParseInt(strings.TrimPrefix(data, "reply:"), 10, 64)
		if err != nil {
			break
		}
		h.setPendingReply(chatID, target)
		h.reply(chatID, "Введите ответ. /cancel — отмена", nil)
	}
	h.answerCallback(cb, notice)
}

func (h *Handler) answerCallback(cb *tgbotapi.CallbackQuery, text string) {
	h.request(tgbotapi.NewCallback(cb.ID, text), "answer_callback")
}

func (h *Handler) request(c tgbotapi.Chattable, op string) {
	start := time.Now()
	_, err := h.bot.Request(c)
	metrics.ObserveNetworkRequest("telegram_bot", op, "", start, err)
	if err != nil {
		h.log.Error().Err(err).Str("operation", op).Msg("bot: запрос не удался")
	}
}

func (h *Handler) tryHandleReplyInput(ctx context.Context, chatID int64, text string) bool {
	h.mu.Lock()
	target, pending := h.pendingReply[chatID]
	h.mu.Unlock()
	if !pending {
		return false
	}
	if text == "" {
		h.reply(chatID, "Отправьте текст ответа", nil)
		return true
	}
	h.clearPendingReply(chatID)
	if err := h.sender.SendText(ctx, target, text); err != nil {
		h.log.Error().Err(err).Int64("funpay_chat", target).Msg("bot: ответ в чат площадки не отправлен")
		h.reply(chatID, fmt.Sprintf("Не удалось отправить: %v", err), nil)
		return true
	}
	h.reply(chatID, "Отправлено", nil)
	return true
}

func (h *Handler) setPendingReply(chatID, target int64) {
	h.mu.Lock()
	h.pendingReply[chatID] = target
	h.mu.Unlock()
}

func (h *Handler) clearPendingReply(chatID int64) {
	h.mu.Lock()
	delete(h.pendingReply, chatID)
	h.mu.Unlock()
}

func (h *Handler) reply(chatID int64, text string, keyboard *tgbotapi.InlineKeyboardMarkup) {
	parts := telegram.SplitMessage(text)
	for i, part := range parts {
		msg := tgbotapi.NewMessage(chatID, part)
		if i == 0 && keyboard != nil {
			msg.ReplyMarkup = keyboard
		}
		start := time.Now()
		_, err := h.bot.Send(msg)
		metrics.ObserveNetworkRequest("telegram_bot", "send_message", strconv.FormatInt(chatID, 10), start, err)
		if err != nil {
			metrics.BotSendErrors.Inc()
			h.log.Error().Err(err).Msg("bot: не удалось отправить сообщение")
			return
		}
	}
}
