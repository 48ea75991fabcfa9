package domain

// NotificationKind описывает категорию уведомления.
type NotificationKind string

const (
	NotifyNewMessage     NotificationKind = "new_message"
	NotifyCommand        NotificationKind = "command"
	NotifyNewOrder       NotificationKind = "new_order"
	NotifyOrderConfirmed NotificationKind = "order_confirmed"
	NotifyReview         NotificationKind = "review"
	NotifyDelivery       NotificationKind = "delivery"
	NotifyBotStarted     NotificationKind = "bot_started"
	NotifyLotsRaised     NotificationKind = "lots_raised"
	NotifyLotsState      NotificationKind = "lots_state"
)

// NotificationSpec описывает категорию для меню переключателей.
type NotificationSpec struct {
	Kind    NotificationKind
	Title   string
	Default bool
}

var notificationSpecs = []NotificationSpec{
	{Kind: NotifyNewMessage, Title: "Новые сообщения", Default: true},
	{Kind: NotifyCommand, Title: "Команды", Default: true},
	{Kind: NotifyNewOrder, Title: "Новые заказы", Default: true},
	{Kind: NotifyOrderConfirmed, Title: "Подтверждения заказов", Default: true},
	{Kind: NotifyReview, Title: "Отзывы", Default: true},
	{Kind: NotifyDelivery, Title: "Автовыдача", Default: true},
	{Kind: NotifyBotStarted, Title: "Запуск агента", Default: true},
	{Kind: NotifyLotsRaised, Title: "Поднятие лотов", Default: false},
	{Kind: NotifyLotsState, Title: "Включение и отключение лотов", Default: true},
}

// NotificationSpecs возвращает категории в порядке отображения.
func NotificationSpecs() []NotificationSpec {
	out := make([]NotificationSpec, len(notificationSpecs))
	copy(out, notificationSpecs)
	return out
}

// LookupNotification возвращает описание категории.
func LookupNotification(kind NotificationKind) (NotificationSpec, bool) {
	for _, spec := range notificationSpecs {
		if spec.Kind == kind {
			return spec, true
		}
	}
	return NotificationSpec{}, false
}

// Notification — уведомление для владельца.
type Notification struct {
	Kind NotificationKind
	Text string
	// ReplyChatID, если не ноль, добавляет кнопку ответа в чат площадки.
	ReplyChatID int64
	ReplyName   string
	OrderID     string
}
