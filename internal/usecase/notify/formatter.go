package notify

import (
	"fmt"
	"html"
	"strings"

	"funpay-agent/internal/domain"
)

// FormatNewMessages формирует уведомление о пачке новых сообщений одного чата.
func FormatNewMessages(chatName string, messages []domain.Message) string {
	var b strings.Builder
	b.WriteString("💬 <b>" + escapeHTML(chatName) + "</b>")
	for _, msg := range messages {
		author := msg.Author
		if author == "" {
			author = "?"
		}
		var prefix string
		switch {
		case msg.IsSystem():
			prefix = "📢 "
		case msg.SentByAgent:
			prefix = "🤖 "
		}
		text := msg.String()
		if msg.Text == nil && msg.ImageURL != nil {
			text = fmt.Sprintf("<a href=\"%s\">%s</a>", html.EscapeString(*msg.ImageURL), domain.ImagePreview)
		} else {
			text = escapeHTML(text)
		}
		b.WriteString("\n" + prefix + "<i>" + escapeHTML(author) + ":</i> " + text)
	}
	return b.String()
}

// FormatCommand формирует уведомление о полученной команде.
func FormatCommand(text string) string {
	return "⌨️ " + escapeHTML(strings.TrimSpace(text))
}

// FormatNewOrder формирует уведомление о новом заказе.
func FormatNewOrder(order domain.OrderShortcut) string {
	lines := []string{
		fmt.Sprintf("💰 <b>Новый заказ</b> <code>#%s</code>", escapeHTML(order.ID)),
		"Покупатель: " + escapeHTML(order.BuyerUsername),
		"Сумма: " + order.Price.StringFixed(2) + " ₽",
		"Лот: " + escapeHTML(order.Description),
	}
	return strings.Join(lines, "\n")
}

// FormatOrderConfirmed формирует уведомление о подтверждении заказа.
func FormatOrderConfirmed(order domain.OrderShortcut) string {
	return fmt.Sprintf("🪙 Покупатель <b>%s</b> подтвердил заказ <code>#%s</code>",
		escapeHTML(order.BuyerUsername), escapeHTML(order.ID))
}

// FormatReview формирует уведомление об отзыве и ответе на него.
func FormatReview(order domain.Order, reply string) string {
	if order.Review == nil {
		return fmt.Sprintf("🔷 Отзыв к заказу <code>#%s</code> удалён или пуст", escapeHTML(order.ID))
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("🔷 Отзыв к заказу <code>#%s</code>: %s\n",
		escapeHTML(order.ID), strings.Repeat("⭐", order.Review.Stars)))
	if text := strings.TrimSpace(order.Review.Text); text != "" {
		b.WriteString("<i>" + escapeHTML(text) + "</i>\n")
	}
	if reply = strings.TrimSpace(reply); reply != "" {
		b.WriteString("Ответ: " + escapeHTML(reply))
	}
	return strings.TrimSpace(b.String())
}

// FormatDelivery формирует уведомление о результате автовыдачи.
func FormatDelivery(order domain.OrderShortcut, delivered int, err error) string {
	if err != nil {
		return fmt.Sprintf("❌ Не удалось выдать товар по заказу <code>#%s</code>: %s",
			escapeHTML(order.ID), escapeHTML(err.Error()))
	}
	return fmt.Sprintf("✅ Выдано товаров по заказу <code>#%s</code>: %d", escapeHTML(order.ID), delivered)
}

// FormatBotStarted формирует уведомление о запуске агента.
func FormatBotStarted(username string, chats, sales int) string {
	return fmt.Sprintf("✅ Агент запущен\nАккаунт: <b>%s</b>\nЧатов: %d, активных продаж: %d",
		escapeHTML(username), chats, sales)
}

// FormatLotsRaised формирует уведомление о поднятых подкатегориях.
func FormatLotsRaised(subcategories []domain.Subcategory) string {
	var b strings.Builder
	b.WriteString("⤴️ <b>Подняты категории:</b>")
	for _, sub := range subcategories {
		name := sub.Name
		if name == "" {
			name = fmt.Sprintf("#%d", sub.ID)
		}
		b.WriteString("\n<code>" + escapeHTML(name) + "</code>")
	}
	return b.String()
}

// FormatLotsState формирует уведомление об отключённых и включённых лотах.
func FormatLotsState(disabled, restored []string) string {
	var parts []string
	if len(disabled) > 0 {
		parts = append(parts, "🔴 <b>Отключены лоты:</b>\n"+codeLines(disabled))
	}
	if len(restored) > 0 {
		parts = append(parts, "🟢 <b>Включены лоты:</b>\n"+codeLines(restored))
	}
	return strings.Join(parts, "\n\n")
}

func codeLines(lines []string) string {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		out = append(out, "<code>"+escapeHTML(l)+"</code>")
	}
	return strings.Join(out, "\n")
}

func escapeHTML(s string) string {
	return html.EscapeString(s)
}
