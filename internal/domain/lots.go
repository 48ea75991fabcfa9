package domain

import (
	"context"
	"time"
)

// Subcategory — подкатегория площадки, в которой размещены лоты.
type Subcategory struct {
	ID   int64
	Name string
}

// RaiseResult — итог попытки поднять лоты категории.
type RaiseResult struct {
	Raised        bool
	Wait          time.Duration
	Subcategories []Subcategory
	// Message — текст ответа площадки, если поднять не удалось.
	Message string
}

// LotFields — поля формы редактирования лота.
type LotFields struct {
	LotID         int64
	SubcategoryID int64
	Fields        map[string]string
}

// Active сообщает, отмечен ли лот активным.
func (f LotFields) Active() bool {
	return f.Fields["active"] == "on"
}

// SetActive включает или выключает лот.
func (f *LotFields) SetActive(active bool) {
	if f.Fields == nil {
		f.Fields = make(map[string]string)
	}
	if active {
		f.Fields["active"] = "on"
		return
	}
	delete(f.Fields, "active")
}

// LotManager — операции с лотами аккаунта.
type LotManager interface {
	// RaiseLots поднимает лоты всех подкатегорий категории gameID, кроме exclude.
	RaiseLots(ctx context.Context, gameID, nodeID int64, exclude []int64) (RaiseResult, error)
	LotFields(ctx context.Context, lotID, nodeID int64) (LotFields, error)
	SaveLot(ctx context.Context, fields LotFields) error
}
