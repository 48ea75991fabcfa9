package domain

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrUnauthorized — сессия больше не действительна.
	ErrUnauthorized = errors.New("сессия не авторизована")
	// ErrRequestFailed — площадка ответила неуспешным статусом.
	ErrRequestFailed = errors.New("запрос к площадке не удался")
	// ErrMalformedPayload — ответ площадки не удалось разобрать.
	ErrMalformedPayload = errors.New("некорректный ответ площадки")
	// ErrTooManyChats — в одном запросе истории больше чатов, чем допускает площадка.
	ErrTooManyChats = errors.New("слишком много чатов в одном запросе")
	// ErrMessageNotDelivered — площадка не приняла сообщение.
	ErrMessageNotDelivered = errors.New("сообщение не доставлено")
	// ErrNotEnoughProducts — в файле товаров меньше, чем требуется выдать.
	ErrNotEnoughProducts = errors.New("недостаточно товаров")
	// ErrLotNotSaved — площадка отклонила изменения лота.
	ErrLotNotSaved = errors.New("лот не сохранён")
	// ErrCacheMiss — ключ не найден в кэше.
	ErrCacheMiss = errors.New("ключ не найден")
)

// RequestError описывает неуспешный HTTP ответ площадки.
type RequestError struct {
	Op         string
	StatusCode int
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s: статус %d", e.Op, e.StatusCode)
}

// Is позволяет сравнивать ошибку с ErrUnauthorized и ErrRequestFailed.
func (e *RequestError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.StatusCode == http.StatusForbidden
	case ErrRequestFailed:
		return e.StatusCode != http.StatusForbidden
	}
	return false
}

// MalformedError оборачивает ошибку разбора ответа.
func MalformedError(op string, err error) error {
	if err == nil {
		return fmt.Errorf("%s: %w", op, ErrMalformedPayload)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrMalformedPayload, err)
}
