package automation

import (
	"context"
	"fmt"

	"funpay-agent/internal/domain"
	"funpay-agent/internal/infra/config"
	"funpay-agent/internal/infra/metrics"
	"funpay-agent/internal/usecase/notify"
)

type lotAction int

const (
	lotKeep lotAction = iota
	lotDisable
	lotRestore
)

func (a lotAction) String() string {
	switch a {
	case lotDisable:
		return "disable"
	case lotRestore:
		return "restore"
	}
	return "keep"
}

// decideLot выбирает действие над лотом по его состоянию и остатку товаров.
func (s *Service) decideLot(lot config.LotRule, active bool, products int) lotAction {
	rules := s.Rules.LotState
	if active {
		if rules.AutoDisable && !lot.DisableAutoDisable && products == 0 {
			return lotDisable
		}
		return lotKeep
	}
	if !rules.AutoRestore || lot.DisableAutoRestore {
		return lotKeep
	}
	if rules.AutoDisable && products == 0 {
		return lotKeep
	}
	return lotRestore
}

func (s *Service) lotStateEnabled() bool {
	return s.Lots != nil && s.Rules.LotState.Enabled()
}

// updateOrderLot проверяет лот, по которому пришёл заказ. Выполняется после автовыдачи.
func (s *Service) updateOrderLot(ctx context.Context, ev domain.Event) error {
	if ev.Order == nil || !s.lotStateEnabled() {
		return nil
	}
	lot, ok := s.Rules.Lot(ev.Order.Title())
	if !ok || !lot.Managed() {
		return nil
	}
	return s.syncLots(ctx, []config.LotRule{lot})
}

// updateAllLots проверяет все привязанные лоты при изменении списка заказов.
func (s *Service) updateAllLots(ctx context.Context, _ domain.Event) error {
	if !s.lotStateEnabled() {
		return nil
	}
	lots := s.Rules.ManagedLots()
	if len(lots) == 0 {
		return nil
	}
	return s.syncLots(ctx, lots)
}

func (s *Service) syncLots(ctx context.Context, lots []config.LotRule) error {
	s.lotMu.Lock()
	defer s.lotMu.Unlock()

	var disabled, restored []string
	var failed int
	for _, lot := range lots {
		action, err := s.syncLot(ctx, lot)
		if err != nil {
			failed++
			s.Log.Warn().Err(err).Str("lot", lot.Title).Int64("offer_id", lot.OfferID).Msg("automation: не удалось обновить лот")
			continue
		}
		switch action {
		case lotDisable:
			disabled = append(disabled, lot.Title)
		case lotRestore:
			restored = append(restored, lot.Title)
		}
	}
	if len(disabled) > 0 || len(restored) > 0 {
		s.notify(ctx, domain.Notification{
			Kind: domain.NotifyLotsState,
			Text: notify.FormatLotsState(disabled, restored),
		})
	}
	if failed > 0 {
		return fmt.Errorf("не обновлено лотов: %d из %d", failed, len(lots))
	}
	return nil
}

func (s *Service) syncLot(ctx context.Context, lot config.LotRule) (lotAction, error) {
	products := 1
	if lot.ProductsFile != "" {
		n, err := s.Products.Count(lot.ProductsFile)
		if err != nil {
			return lotKeep, err
		}
		products = n
	}
	fields, err := s.Lots.LotFields(ctx, lot.OfferID, lot.NodeID)
	if err != nil {
		return lotKeep, err
	}
	action := s.decideLot(lot, fields.Active(), products)
	if action == lotKeep {
		return lotKeep, nil
	}
	fields.SetActive(action == lotRestore)
	if err := s.Lots.SaveLot(ctx, fields); err != nil {
		return lotKeep, err
	}
	metrics.LotStateChanges.WithLabelValues(action.String()).Inc()
	event := domain.JournalLotDisabled
	if action == lotRestore {
		event = domain.JournalLotRestored
	}
	s.record(ctx, domain.JournalEntry{
		Event:    event,
		Metadata: map[string]any{"lot": lot.Title, "offer_id": lot.OfferID, "products": products},
	})
	s.Log.Info().Str("lot", lot.Title).Int64("offer_id", lot.OfferID).Str("action", action.String()).Msg("automation: состояние лота изменено")
	return action, nil
}
