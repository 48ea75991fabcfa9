package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PreviewLimit ограничивает длину превью последнего сообщения в списке чатов.
const PreviewLimit = 250

// ImagePreview подставляется в превью, когда последнее сообщение содержит только картинку.
const ImagePreview = "Изображение"

// SystemAuthorID — автор системных сообщений площадки.
const SystemAuthorID int64 = 0

// ChatShortcut описывает чат в списке закладок.
type ChatShortcut struct {
	ID              int64
	Name            string
	LastMessageText string
	LastMessageType MessageType
	Unread          bool
	HTML            string
}

// Message описывает сообщение из истории чата.
type Message struct {
	ID       int64       `json:"id"`
	Text     *string     `json:"text,omitempty"`
	ImageURL *string     `json:"image_url,omitempty"`
	ChatID   int64       `json:"chat_id"`
	ChatName string      `json:"chat_name"`
	AuthorID int64       `json:"author_id"`
	Author   string      `json:"author"`
	Type     MessageType `json:"type"`
	HTML     string      `json:"-"`
	// SentByAgent выставляется, если сообщение было отправлено самим агентом.
	SentByAgent bool `json:"sent_by_agent"`
}

// String возвращает текст сообщения, ссылку на картинку или пустую строку.
func (m Message) String() string {
	if m.Text != nil {
		return *m.Text
	}
	if m.ImageURL != nil {
		return *m.ImageURL
	}
	return ""
}

// IsSystem сообщает, что сообщение написано площадкой.
func (m Message) IsSystem() bool {
	return m.AuthorID == SystemAuthorID
}

// OrderStatus — статус заказа.
type OrderStatus string

const (
	// OrderPaid — заказ оплачен и ожидает выполнения.
	OrderPaid OrderStatus = "PAID"
	// OrderClosed — заказ закрыт.
	OrderClosed OrderStatus = "CLOSED"
	// OrderRefunded — по заказу оформлен возврат.
	OrderRefunded OrderStatus = "REFUNDED"
)

// OrderShortcut — строка из списка продаж.
type OrderShortcut struct {
	ID            string          `json:"id"`
	Description   string          `json:"description"`
	Price         decimal.Decimal `json:"price"`
	BuyerUsername string          `json:"buyer_username"`
	BuyerID       int64           `json:"buyer_id"`
	Status        OrderStatus     `json:"status"`
	HTML          string          `json:"-"`
}

// Amount возвращает количество товара, указанное в описании ("3 шт."), или 1.
func (o OrderShortcut) Amount() int {
	return ParseAmount(o.Description)
}

// Title возвращает описание без хвоста с количеством.
func (o OrderShortcut) Title() string {
	loc := amountPattern.FindStringIndex(o.Description)
	if loc == nil {
		return strings.TrimSpace(o.Description)
	}
	return strings.TrimSpace(strings.TrimRight(strings.TrimSpace(o.Description[:loc[0]]), ","))
}

// Review — отзыв к заказу.
type Review struct {
	Stars int
	Text  string
	Reply string
}

// Order — полная карточка заказа.
type Order struct {
	ID               string
	Status           OrderStatus
	ShortDescription string
	FullDescription  string
	Sum              decimal.Decimal
	BuyerID          int64
	BuyerUsername    string
	SellerID         int64
	SellerUsername   string
	Review           *Review
}

// OrderCounters — агрегированные счётчики заказов из ленты.
type OrderCounters struct {
	Purchases int `json:"purchases"`
	Sales     int `json:"sales"`
}

// OrderFilter — параметры выборки списка продаж.
type OrderFilter struct {
	StartFrom       string
	IncludePaid     bool
	IncludeClosed   bool
	IncludeRefunded bool
}

// DefaultOrderFilter возвращает фильтр, включающий заказы во всех статусах.
func DefaultOrderFilter() OrderFilter {
	return OrderFilter{IncludePaid: true, IncludeClosed: true, IncludeRefunded: true}
}

// OrderPage — страница списка продаж.
type OrderPage struct {
	Next   string
	Orders []OrderShortcut
}

// ChatFeed — часть снимка с закладками чатов.
type ChatFeed struct {
	Tag   string
	Chats []ChatShortcut
}

// OrderFeed — часть снимка со счётчиками заказов.
type OrderFeed struct {
	Tag      string
	Counters OrderCounters
}

// Snapshot — ответ ленты обновлений за один запрос. Любая часть может отсутствовать.
type Snapshot struct {
	Chats      *ChatFeed
	Orders     *OrderFeed
	ReceivedAt time.Time
}

// TruncatePreview приводит текст к виду превью в списке чатов.
func TruncatePreview(text *string) string {
	if text == nil {
		return ImagePreview
	}
	runes := []rune(*text)
	if len(runes) > PreviewLimit {
		return string(runes[:PreviewLimit])
	}
	return *text
}
