package runner

import (
	"context"

	"funpay-agent/internal/domain"
	"funpay-agent/internal/infra/metrics"
)

func (r *Runner) processOrders(ctx context.Context, feed domain.OrderFeed) []domain.Event {
	r.state.setOrderTag(feed.Tag)
	first := r.state.FirstCycle()
	now := r.now()

	var events []domain.Event
	if !first {
		counters := feed.Counters
		events = append(events, domain.Event{
			Kind:     domain.EventOrdersListChanged,
			Tag:      feed.Tag,
			Time:     now,
			Counters: &counters,
		})
	}
	if !r.opts.OrderDetails {
		return events
	}

	var page domain.OrderPage
	res := retry(ctx, fetchAttempts, fetchRetryDelay, r.newTimer(), func(ctx context.Context) error {
		p, err := r.feed.FetchOrders(ctx, domain.DefaultOrderFilter())
		if err != nil {
			metrics.RunnerFetchFailures.WithLabelValues("orders").Inc()
			r.log.Debug().Err(err).Msg("runner: попытка получить заказы не удалась")
			return err
		}
		page = p
		return nil
	})
	if !res.OK() {
		r.log.Warn().
			Err(res.Err).
			Int("attempts", res.Attempts).
			Bool("fatal", res.Fatal).
			Msg("runner: не удалось получить список заказов")
		return events
	}

	for i := range page.Orders {
		order := page.Orders[i]
		prev, seen := r.state.OrderStatus(order.ID)
		newEvent := func(kind domain.EventKind) domain.Event {
			return domain.Event{Kind: kind, Tag: feed.Tag, Time: now, Order: &order}
		}
		switch {
		case !seen:
			r.state.setOrderStatus(order.ID, order.Status)
			if first {
				events = append(events, newEvent(domain.EventInitialOrder))
				continue
			}
			events = append(events, newEvent(domain.EventNewOrder))
			if order.Status == domain.OrderClosed {
				events = append(events, newEvent(domain.EventOrderStatusChanged))
			}
		case prev != order.Status:
			r.state.setOrderStatus(order.ID, order.Status)
			events = append(events, newEvent(domain.EventOrderStatusChanged))
		}
	}
	return events
}
