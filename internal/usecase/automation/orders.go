package automation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"funpay-agent/internal/domain"
	"funpay-agent/internal/infra/config"
	"funpay-agent/internal/infra/metrics"
	"funpay-agent/internal/usecase/notify"
)

var errEmptyDelivery = errors.New("пустой текст выдачи")

// buyerChat ищет чат покупателя заказа среди сохранённых чатов.
func (s *Service) buyerChat(order domain.OrderShortcut) (domain.ChatShortcut, bool) {
	return s.Account.ChatByName(order.BuyerUsername)
}

func (s *Service) notifyNewOrder(ctx context.Context, ev domain.Event) error {
	if ev.Order == nil {
		return nil
	}
	n := domain.Notification{
		Kind:    domain.NotifyNewOrder,
		Text:    notify.FormatNewOrder(*ev.Order),
		OrderID: ev.Order.ID,
	}
	if chat, ok := s.buyerChat(*ev.Order); ok {
		n.ReplyChatID = chat.ID
		n.ReplyName = chat.Name
	}
	s.notify(ctx, n)
	return nil
}

func (s *Service) journalNewOrder(ctx context.Context, ev domain.Event) error {
	if ev.Order == nil {
		return nil
	}
	order := ev.Order
	s.record(ctx, domain.JournalEntry{
		Event:   domain.JournalNewOrder,
		OrderID: &order.ID,
		Metadata: map[string]any{
			"buyer":       order.BuyerUsername,
			"buyer_id":    order.BuyerID,
			"description": order.Description,
			"price":       order.Price.String(),
			"amount":      order.Amount(),
		},
	})
	return nil
}

func (s *Service) autoDeliver(ctx context.Context, ev domain.Event) error {
	if ev.Order == nil || !s.Rules.AutoDelivery.Enabled {
		return nil
	}
	order := *ev.Order
	log := s.Log.With().Str("order_id", order.ID).Str("buyer", order.BuyerUsername).Logger()
	if s.Settings.IsBlocked(order.BuyerUsername) {
		log.Info().Msg("automation: покупатель в чёрном списке, выдача пропущена")
		return nil
	}
	lot, ok := s.Rules.Lot(order.Title())
	if !ok {
		log.Debug().Str("title", order.Title()).Msg("automation: лот без автовыдачи")
		return nil
	}
	amount := 1
	if s.Rules.AutoDelivery.MultiDelivery && !lot.DisableMulti {
		amount = order.Amount()
	}

	var (
		delivered int
		err       error
	)
	chat, ok := s.buyerChat(order)
	if ok {
		delivered, err = s.deliver(ctx, lot, amount, OrderVars(order, s.now()), chat.ID, chat.Name)
	} else {
		err = fmt.Errorf("чат с покупателем %s не найден", order.BuyerUsername)
	}

	entry := domain.JournalEntry{
		Event:    domain.JournalProductsDelivered,
		OrderID:  &order.ID,
		Metadata: map[string]any{"lot": lot.Title, "amount": amount, "delivered": delivered},
	}
	if ok {
		entry.ChatID = &chat.ID
	}
	if err != nil {
		entry.Event = domain.JournalDeliveryFailed
		entry.Metadata["error"] = err.Error()
	}
	s.record(ctx, entry)

	n := domain.Notification{
		Kind:    domain.NotifyDelivery,
		Text:    notify.FormatDelivery(order, delivered, err),
		OrderID: order.ID,
	}
	if ok {
		n.ReplyChatID = chat.ID
		n.ReplyName = chat.Name
	}
	s.notify(ctx, n)
	return err
}

// deliver забирает товары лота и отправляет текст выдачи в чат. Если отправка
// не удалась, товары возвращаются в файл.
func (s *Service) deliver(ctx context.Context, lot config.LotRule, amount int, vars Vars, chatID int64, chatName string) (int, error) {
	var products []string
	if lot.ProductsFile != "" {
		taken, err := s.Products.Take(lot.ProductsFile, amount)
		if err != nil {
			return 0, err
		}
		products = taken
	}
	text := Render(lot.Response, vars.with("$product", strings.Join(products, "\n")))
	if strings.TrimSpace(text) == "" {
		s.restore(lot.ProductsFile, products)
		return 0, errEmptyDelivery
	}
	if _, err := s.Sender.Send(ctx, chatID, text, chatName); err != nil {
		s.restore(lot.ProductsFile, products)
		return 0, err
	}
	metrics.ProductsDelivered.Add(float64(amount))
	return amount, nil
}

func (s *Service) restore(file string, products []string) {
	if len(products) == 0 {
		return
	}
	if err := s.Products.Add(file, products); err != nil {
		s.Log.Error().Err(err).Str("file", file).Strs("products", products).Msg("automation: товары не возвращены в файл")
	}
}

func (s *Service) orderStatusChanged(ctx context.Context, ev domain.Event) error {
	if ev.Order == nil {
		return nil
	}
	order := *ev.Order
	s.record(ctx, domain.JournalEntry{
		Event:    domain.JournalOrderStatusChanged,
		OrderID:  &order.ID,
		Metadata: map[string]any{"status": string(order.Status)},
	})
	if order.Status != domain.OrderClosed {
		return nil
	}

	chat, ok := s.buyerChat(order)
	var sendErr error
	if ok && s.Rules.OrderConfirm.Enabled && !s.Settings.IsBlocked(order.BuyerUsername) {
		text := Render(s.Rules.OrderConfirm.Text, OrderVars(order, s.now()))
		if strings.TrimSpace(text) != "" {
			_, sendErr = s.Sender.Send(ctx, chat.ID, text, chat.Name)
		}
	}
	n := domain.Notification{
		Kind:    domain.NotifyOrderConfirmed,
		Text:    notify.FormatOrderConfirmed(order),
		OrderID: order.ID,
	}
	if ok {
		n.ReplyChatID = chat.ID
		n.ReplyName = chat.Name
	}
	s.notify(ctx, n)
	return sendErr
}

func (s *Service) logCounters(_ context.Context, ev domain.Event) error {
	if ev.Counters == nil {
		return nil
	}
	s.Log.Debug().
		Str("tag", ev.Tag).
		Int("purchases", ev.Counters.Purchases).
		Int("sales", ev.Counters.Sales).
		Msg("automation: счётчики заказов изменились")
	return nil
}
