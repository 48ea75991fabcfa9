package domain

import (
	"regexp"
	"strconv"
	"strings"
)

// MessageType — тип сообщения. Все типы, кроме NonSystem, пишет площадка.
type MessageType string

const (
	MessageNonSystem             MessageType = "NON_SYSTEM"
	MessageDiscord               MessageType = "DISCORD"
	MessageOrderPurchased        MessageType = "ORDER_PURCHASED"
	MessageOrderConfirmed        MessageType = "ORDER_CONFIRMED"
	MessageNewFeedback           MessageType = "NEW_FEEDBACK"
	MessageFeedbackChanged       MessageType = "FEEDBACK_CHANGED"
	MessageFeedbackDeleted       MessageType = "FEEDBACK_DELETED"
	MessageNewFeedbackAnswer     MessageType = "NEW_FEEDBACK_ANSWER"
	MessageFeedbackAnswerChanged MessageType = "FEEDBACK_ANSWER_CHANGED"
	MessageFeedbackAnswerDeleted MessageType = "FEEDBACK_ANSWER_DELETED"
	MessageOrderReopened         MessageType = "ORDER_REOPENED"
	MessageRefund                MessageType = "REFUND"
	MessagePartialRefund         MessageType = "PARTIAL_REFUND"
	MessageOrderConfirmedByAdmin MessageType = "ORDER_CONFIRMED_BY_ADMIN"
)

const discordNotice = "Вы можете перейти в Discord. Внимание: общение за пределами сервера FunPay считается нарушением правил."

var (
	orderIDPattern = regexp.MustCompile(`#[A-Z0-9]{8}`)
	amountPattern  = regexp.MustCompile(`(\d+) шт\.`)
)

// ClassifierRule сопоставляет шаблон текста с типом сообщения.
type ClassifierRule struct {
	Type    MessageType
	Pattern *regexp.Regexp
}

// Classifier определяет тип системного сообщения по таблице шаблонов.
// Побеждает первое совпадение.
type Classifier struct {
	purchased []*regexp.Regexp
	rules     []ClassifierRule
}

// NewClassifier создаёт классификатор с собственной таблицей правил.
// Правила проверяются только для текстов, содержащих номер заказа.
func NewClassifier(purchased []*regexp.Regexp, rules []ClassifierRule) *Classifier {
	return &Classifier{purchased: purchased, rules: rules}
}

// DefaultClassifier возвращает таблицу системных сообщений площадки.
func DefaultClassifier() *Classifier {
	const user = `[a-zA-Z0-9_-]+`
	const order = `#[A-Z0-9]{8}`
	re := func(s string) *regexp.Regexp { return regexp.MustCompile(s) }
	return NewClassifier(
		[]*regexp.Regexp{
			re(`Покупатель ` + user + ` оплатил заказ ` + order + `\.`),
			re(user + `, не забудьте потом нажать кнопку «Подтвердить выполнение заказа»\.`),
		},
		[]ClassifierRule{
			{MessageOrderConfirmed, re(`Покупатель ` + user + ` подтвердил успешное выполнение заказа ` + order + ` и отправил деньги продавцу ` + user + `\.`)},
			{MessageNewFeedback, re(`Покупатель ` + user + ` написал отзыв к заказу ` + order + `\.`)},
			{MessageNewFeedbackAnswer, re(`Продавец ` + user + ` ответил на отзыв к заказу ` + order + `\.`)},
			{MessageFeedbackChanged, re(`Покупатель ` + user + ` изменил отзыв к заказу ` + order + `\.`)},
			{MessageFeedbackDeleted, re(`Покупатель ` + user + ` удалил отзыв к заказу ` + order + `\.`)},
			{MessageRefund, re(`Продавец ` + user + ` вернул деньги покупателю ` + user + ` по заказу ` + order + `\.`)},
			{MessageFeedbackAnswerChanged, re(`Продавец ` + user + ` изменил ответ на отзыв к заказу ` + order + `\.`)},
			{MessageFeedbackAnswerDeleted, re(`Продавец ` + user + ` удалил ответ на отзыв к заказу ` + order + `\.`)},
			{MessageOrderConfirmedByAdmin, re(`Администратор ` + user + ` подтвердил успешное выполнение заказа ` + order + ` и отправил деньги продавцу ` + user + `\.`)},
			{MessagePartialRefund, re(`Часть средств по заказу ` + order + ` возвращена покупателю\.`)},
			{MessageOrderReopened, re(`Заказ ` + order + ` открыт повторно\.`)},
		},
	)
}

// Classify возвращает тип сообщения по его тексту.
func (c *Classifier) Classify(text string) MessageType {
	if text == discordNotice {
		return MessageDiscord
	}
	if len(c.purchased) > 0 {
		all := true
		for _, p := range c.purchased {
			if !p.MatchString(text) {
				all = false
				break
			}
		}
		if all {
			return MessageOrderPurchased
		}
	}
	if !orderIDPattern.MatchString(text) {
		return MessageNonSystem
	}
	for _, rule := range c.rules {
		if rule.Pattern.MatchString(text) {
			return rule.Type
		}
	}
	return MessageNonSystem
}

// ExtractOrderID возвращает номер заказа без решётки из текста системного сообщения.
func ExtractOrderID(text string) (string, bool) {
	found := orderIDPattern.FindString(text)
	if found == "" {
		return "", false
	}
	return strings.TrimPrefix(found, "#"), true
}

// ParseAmount извлекает количество товара из описания заказа.
func ParseAmount(description string) int {
	m := amountPattern.FindStringSubmatch(description)
	if len(m) < 2 {
		return 1
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n < 1 {
		return 1
	}
	return n
}
