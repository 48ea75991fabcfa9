package funpay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"funpay-agent/internal/domain"
)

// FetchOrders загружает страницу списка продаж.
func (c *Client) FetchOrders(ctx context.Context, filter domain.OrderFilter) (domain.OrderPage, error) {
	method := http.MethodGet
	var form url.Values
	if filter.StartFrom != "" {
		method = http.MethodPost
		form = url.Values{"continue": {filter.StartFrom}}
	}
	body, err := c.do(ctx, method, "/orders/trade", form, false, "orders")
	if err != nil {
		return domain.OrderPage{}, err
	}
	return parseOrdersPage(body, filter)
}

// GetOrder загружает карточку заказа.
func (c *Client) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	body, err := c.do(ctx, http.MethodGet, "/orders/"+url.PathEscape(orderID)+"/", nil, false, "order")
	if err != nil {
		return domain.Order{}, err
	}
	return parseOrderPage(body, orderID, c.UserID(), c.Username())
}

type reviewResponse struct {
	Msg     string `json:"msg"`
	Content string `json:"content"`
}

// SendReview публикует отзыв или ответ на отзыв.
func (c *Client) SendReview(ctx context.Context, orderID, text string, stars int) error {
	const op = "review"
	form := url.Values{
		"authorId":   {strconv.FormatInt(c.UserID(), 10)},
		"text":       {text},
		"rating":     {strconv.Itoa(stars)},
		"csrf_token": {c.csrf()},
		"orderId":    {orderID},
	}
	body, err := c.do(ctx, http.MethodPost, "/orders/review", form, true, op)
	if err == nil {
		return nil
	}
	var reqErr *domain.RequestError
	if errors.As(err, &reqErr) && reqErr.StatusCode == http.StatusBadRequest {
		var resp reviewResponse
		if json.Unmarshal(body, &resp) == nil && resp.Msg != "" {
			return fmt.Errorf("%s: заказ %s: %s: %w", op, orderID, resp.Msg, err)
		}
	}
	return err
}
