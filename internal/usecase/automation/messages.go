package automation

import (
	"context"
	"fmt"
	"strings"

	"funpay-agent/internal/domain"
	"funpay-agent/internal/infra/config"
	"funpay-agent/internal/usecase/notify"
)

func (s *Service) rememberChat(_ context.Context, ev domain.Event) error {
	if ev.Chat == nil {
		return nil
	}
	_, err := s.Settings.RememberChat(ev.Chat.ID, s.Rules.Greetings.Cooldown())
	return err
}

func (s *Service) logMessage(_ context.Context, ev domain.Event) error {
	msg := ev.Message
	if msg == nil {
		return nil
	}
	s.Log.Info().
		Int64("chat_id", msg.ChatID).
		Str("chat", msg.ChatName).
		Str("author", msg.Author).
		Str("type", string(msg.Type)).
		Bool("sent_by_agent", msg.SentByAgent).
		Msg(msg.String())
	return nil
}

// fromOwner сообщает, что сообщение написал владелец аккаунта вручную.
func (s *Service) fromOwner(msg *domain.Message) bool {
	return msg.AuthorID == s.Account.UserID() && !msg.SentByAgent
}

// fromCounterpart сообщает, что сообщение написал собеседник, которого нет в чёрном списке.
func (s *Service) fromCounterpart(msg *domain.Message) bool {
	if msg.IsSystem() || msg.AuthorID == s.Account.UserID() || msg.SentByAgent {
		return false
	}
	return !s.Settings.IsBlocked(msg.Author)
}

func (s *Service) greet(ctx context.Context, ev domain.Event) error {
	msg := ev.Message
	if msg == nil {
		return nil
	}
	first, err := s.Settings.RememberChat(msg.ChatID, s.Rules.Greetings.Cooldown())
	if err != nil {
		return err
	}
	if !first || !s.Rules.Greetings.Enabled || !s.fromCounterpart(msg) {
		return nil
	}
	text := Render(s.Rules.Greetings.Text, MessageVars(*msg, s.now()))
	if _, err := s.Sender.Send(ctx, msg.ChatID, text, msg.ChatName); err != nil {
		return err
	}
	chatID := msg.ChatID
	s.record(ctx, domain.JournalEntry{
		Event:    domain.JournalGreetingSent,
		ChatID:   &chatID,
		Metadata: map[string]any{"username": msg.Author},
	})
	return nil
}

func (s *Service) autoResponse(ctx context.Context, ev domain.Event) error {
	msg := ev.Message
	if msg == nil || !s.Rules.AutoResponse.Enabled || msg.IsSystem() {
		return nil
	}
	cmd, ok := s.Rules.Command(msg.String())
	if !ok {
		return nil
	}
	if cmd.OwnerOnly {
		if !s.fromOwner(msg) {
			return nil
		}
	} else if !s.fromCounterpart(msg) {
		return nil
	}

	vars := MessageVars(*msg, s.now())
	var sendErr error
	if !cmd.DisableReply && strings.TrimSpace(cmd.Response) != "" {
		_, sendErr = s.Sender.Send(ctx, msg.ChatID, Render(cmd.Response, vars), msg.ChatName)
	}
	if cmd.Notify {
		s.notify(ctx, domain.Notification{
			Kind:        domain.NotifyCommand,
			Text:        notify.FormatCommand(Render(cmd.NotifyText, vars)),
			ReplyChatID: msg.ChatID,
			ReplyName:   msg.ChatName,
		})
	}
	return sendErr
}

// deliveryTest выдаёт товар лота в текущий чат по команде владельца "<test_command> <название лота>".
func (s *Service) deliveryTest(ctx context.Context, ev domain.Event) error {
	msg := ev.Message
	if msg == nil || msg.Text == nil || !s.fromOwner(msg) {
		return nil
	}
	prefix := config.NormalizeCommand(s.Rules.AutoDelivery.TestCommand)
	text := config.NormalizeCommand(*msg.Text)
	if prefix == "" || !strings.HasPrefix(text, prefix) {
		return nil
	}
	title := strings.TrimSpace(text[len(prefix):])
	if title == "" {
		return nil
	}
	lot, ok := s.Rules.Lot(title)
	if !ok {
		return fmt.Errorf("тестовая выдача: лот %q не найден", title)
	}
	delivered, err := s.deliver(ctx, lot, 1, MessageVars(*msg, s.now()), msg.ChatID, msg.ChatName)
	s.Log.Info().
		Err(err).
		Int64("chat_id", msg.ChatID).
		Str("lot", lot.Title).
		Int("delivered", delivered).
		Msg("automation: тестовая выдача")
	return err
}

func (s *Service) notifyNewMessages(ctx context.Context, ev domain.Event) error {
	msg := ev.Message
	if msg == nil || !s.firstInStack("new_message_notification", msg.ChatID, ev.Stack) {
		return nil
	}
	batch := []domain.Message{*msg}
	if ev.Stack != nil {
		batch = ev.Stack.Messages()
	}
	visible := batch[:0]
	for _, m := range batch {
		if !m.SentByAgent {
			visible = append(visible, m)
		}
	}
	if len(visible) == 0 {
		return nil
	}
	s.notify(ctx, domain.Notification{
		Kind:        domain.NotifyNewMessage,
		Text:        notify.FormatNewMessages(msg.ChatName, visible),
		ReplyChatID: msg.ChatID,
		ReplyName:   msg.ChatName,
	})
	return nil
}

func (s *Service) replyToReview(ctx context.Context, ev domain.Event) error {
	msg := ev.Message
	if msg == nil || (msg.Type != domain.MessageNewFeedback && msg.Type != domain.MessageFeedbackChanged) {
		return nil
	}
	orderID, ok := domain.ExtractOrderID(msg.String())
	if !ok {
		return nil
	}
	order, err := s.Account.GetOrder(ctx, orderID)
	if err != nil {
		return fmt.Errorf("отзыв к заказу %s: %w", orderID, err)
	}
	if order.SellerID != s.Account.UserID() {
		return nil
	}

	var reply string
	if s.Rules.Reviews.Enabled && order.Review != nil {
		if template := s.Rules.Reviews.Stars[order.Review.Stars]; strings.TrimSpace(template) != "" {
			reply = Render(template, ReviewVars(order, s.now()))
			if err := s.Account.SendReview(ctx, order.ID, reply, order.Review.Stars); err != nil {
				return fmt.Errorf("ответ на отзыв %s: %w", order.ID, err)
			}
			s.record(ctx, domain.JournalEntry{
				Event:    domain.JournalReviewAnswered,
				OrderID:  &order.ID,
				Metadata: map[string]any{"stars": order.Review.Stars},
			})
		}
	}
	s.notify(ctx, domain.Notification{
		Kind:        domain.NotifyReview,
		Text:        notify.FormatReview(order, reply),
		ReplyChatID: msg.ChatID,
		ReplyName:   msg.ChatName,
		OrderID:     order.ID,
	})
	return nil
}
