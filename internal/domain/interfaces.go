package domain

import (
	"context"
	"time"
)

// Feed — источник данных для цикла опроса.
type Feed interface {
	// Poll одним запросом получает обновления ленты чатов и ленты заказов.
	Poll(ctx context.Context, chatTag, orderTag string) (Snapshot, error)
	// FetchHistories возвращает последние сообщения чатов. Не более 10 чатов за вызов.
	FetchHistories(ctx context.Context, chats map[int64]string) (map[int64][]Message, error)
	// FetchOrders возвращает страницу списка продаж, новые первыми.
	FetchOrders(ctx context.Context, filter OrderFilter) (OrderPage, error)
	// SaveChats обновляет сохранённые карточки чатов.
	SaveChats(chats ...ChatShortcut)
}

// Account — операции аккаунта, которые используют обработчики событий.
type Account interface {
	UserID() int64
	Username() string
	Chat(id int64) (ChatShortcut, bool)
	ChatByName(name string) (ChatShortcut, bool)
	SendMessage(ctx context.Context, chatID int64, text, chatName string) (Message, error)
	SendReview(ctx context.Context, orderID, text string, stars int) error
	GetOrder(ctx context.Context, orderID string) (Order, error)
}

// Cache — простое key-value хранилище настроек и флагов.
type Cache interface {
	Once(key string, ttl time.Duration, fn func() error) error
	Set(key string, value []byte, ttl time.Duration) error
	Get(key string) ([]byte, error)
	Delete(key string) error
}

// EventSink публикует события во внешнюю очередь.
type EventSink interface {
	Publish(ctx context.Context, ev Event) error
}

// ProductStore хранит товары для автовыдачи.
type ProductStore interface {
	// Take забирает amount товаров из файла. Возвращает ErrNotEnoughProducts, если товаров меньше.
	Take(file string, amount int) ([]string, error)
	Add(file string, products []string) error
	Count(file string) (int, error)
}

// Notifier доставляет уведомления владельцу агента.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}
