package domain

import (
	"context"
	"time"
)

// JournalEntry описывает бизнесовое событие агента, которое сохраняется для последующего анализа.
type JournalEntry struct {
	Event      string
	ChatID     *int64
	OrderID    *string
	Metadata   map[string]any
	OccurredAt time.Time
}

const (
	// JournalNewOrder фиксирует появление нового заказа.
	JournalNewOrder = "new_order"
	// JournalOrderStatusChanged фиксирует смену статуса заказа.
	JournalOrderStatusChanged = "order_status_changed"
	// JournalProductsDelivered фиксирует успешную автовыдачу.
	JournalProductsDelivered = "products_delivered"
	// JournalDeliveryFailed фиксирует неудачную автовыдачу.
	JournalDeliveryFailed = "delivery_failed"
	// JournalReviewAnswered фиксирует ответ на отзыв.
	JournalReviewAnswered = "review_answered"
	// JournalGreetingSent фиксирует отправку приветствия.
	JournalGreetingSent = "greeting_sent"
	// JournalLotDisabled фиксирует отключение лота без товаров.
	JournalLotDisabled = "lot_disabled"
	// JournalLotRestored фиксирует включение лота.
	JournalLotRestored = "lot_restored"
	// JournalLotsRaised фиксирует поднятие лотов категории.
	JournalLotsRaised = "lots_raised"
)

// JournalRepo сохраняет бизнесовые события.
type JournalRepo interface {
	RecordEvent(ctx context.Context, entry JournalEntry) error
}
