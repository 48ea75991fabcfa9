package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"funpay-agent/internal/adapters/settings"
	"funpay-agent/internal/adapters/telegram"
	"funpay-agent/internal/domain"
	"funpay-agent/internal/infra/metrics"
)

// Notifier рассылает уведомления во все авторизованные чаты бота.
type Notifier struct {
	bot      API
	log      zerolog.Logger
	settings *settings.Store
	baseURL  string
}

var _ domain.Notifier = (*Notifier)(nil)

// NewNotifier создаёт рассыльщика. baseURL нужен для ссылок на чаты и заказы площадки.
func NewNotifier(bot API, log zerolog.Logger, store *settings.Store, baseURL string) *Notifier {
	return &Notifier{bot: bot, log: log, settings: store, baseURL: baseURL}
}

// Notify отправляет уведомление чатам, у которых включена его категория.
func (n *Notifier) Notify(ctx context.Context, note domain.Notification) error {
	chats, err := n.settings.AuthorizedChats()
	if err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	var errs []error
	for _, chatID := range chats {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !n.settings.NotificationEnabled(chatID, note.Kind) {
			continue
		}
		if err := n.send(chatID, note); err != nil {
			errs = append(errs, err)
			continue
		}
		metrics.NotificationsSent.WithLabelValues(string(note.Kind)).Inc()
	}
	return errors.Join(errs...)
}

func (n *Notifier) keyboard(note domain.Notification) *tgbotapi.InlineKeyboardMarkup {
	var row []tgbotapi.InlineKeyboardButton
	if note.ReplyChatID != 0 {
		id := strconv.FormatInt(note.ReplyChatID, 10)
		row = append(row,
			tgbotapi.NewInlineKeyboardButtonData("📨 Ответить", "reply:"+id),
			tgbotapi.NewInlineKeyboardButtonURL("💬 Чат", n.baseURL+"/chat/?node="+id),
		)
	}
	if note.OrderID != "" {
		row = append(row, tgbotapi.NewInlineKeyboardButtonURL("🧾 Заказ", n.baseURL+"/orders/"+note.OrderID+"/"))
	}
	if len(row) == 0 {
		return nil
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(row)
	return &markup
}

func (n *Notifier) send(chatID int64, note domain.Notification) error {
	keyboard := n.keyboard(note)
	for i, part := range telegram.SplitMessage(note.Text) {
		msg := tgbotapi.NewMessage(chatID, part)
		msg.ParseMode = tgbotapi.ModeHTML
		msg.DisableWebPagePreview = true
		if i == 0 && keyboard != nil {
			msg.ReplyMarkup = keyboard
		}
		start := time.Now()
		_, err := n.bot.Send(msg)
		metrics.ObserveNetworkRequest("telegram_bot", "notify", string(note.Kind), start, err)
		if err != nil {
			metrics.BotSendErrors.Inc()
			n.log.Error().Err(err).Int64("chat", chatID).Str("kind", string(note.Kind)).Msg("bot: уведомление не отправлено")
			return fmt.Errorf("notify chat %d: %w", chatID, err)
		}
	}
	return nil
}
