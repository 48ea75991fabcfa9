package automation

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"funpay-agent/internal/domain"
)

// SelfSentMarker — часть раннера, которая учитывает отправленные агентом сообщения.
type SelfSentMarker interface {
	MarkSelfSent(chatID, messageID int64)
	UpdateLastMessage(chatID int64, text *string)
}

// Sender отправляет сообщения от имени аккаунта и сообщает о них раннеру,
// чтобы следующий опрос не принял их за новые.
type Sender struct {
	account domain.Account
	marker  SelfSentMarker
	log     zerolog.Logger
}

// NewSender создаёт отправителя.
func NewSender(account domain.Account, marker SelfSentMarker, log zerolog.Logger) *Sender {
	return &Sender{account: account, marker: marker, log: log}
}

// Send отправляет текст в чат.
func (s *Sender) Send(ctx context.Context, chatID int64, text, chatName string) (domain.Message, error) {
	msg, err := s.account.SendMessage(ctx, chatID, text, chatName)
	if err != nil {
		return domain.Message{}, fmt.Errorf("отправка в чат %d: %w", chatID, err)
	}
	s.marker.MarkSelfSent(chatID, msg.ID)
	s.marker.UpdateLastMessage(chatID, msg.Text)
	s.log.Info().Int64("chat_id", chatID).Int64("message_id", msg.ID).Msg("automation: сообщение отправлено")
	return msg, nil
}

// SendText отправляет текст в чат, подставляя сохранённое имя собеседника.
func (s *Sender) SendText(ctx context.Context, chatID int64, text string) error {
	var name string
	if chat, ok := s.account.Chat(chatID); ok {
		name = chat.Name
	}
	_, err := s.Send(ctx, chatID, text, name)
	return err
}
