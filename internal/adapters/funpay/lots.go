package funpay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"

	"funpay-agent/internal/domain"
)

const (
	raiseCooldown   = time.Hour
	raiseErrorDelay = 10 * time.Second
)

var (
	_ domain.LotManager = (*Client)(nil)

	digitsPattern = regexp.MustCompile(`\d+`)
)

// flag разбирает поле error ответа, которое приходит то числом, то bool.
type flag bool

func (f *flag) UnmarshalJSON(data []byte) error {
	switch s := strings.Trim(string(data), `"`); s {
	case "", "0", "false", "null":
		*f = false
	default:
		*f = true
	}
	return nil
}

type raiseResponse struct {
	Error *flag  `json:"error"`
	Msg   string `json:"msg"`
	Modal string `json:"modal"`
}

// RaiseLots поднимает лоты категории. Если у аккаунта несколько подкатегорий
// в категории, площадка сначала присылает форму выбора, и запрос повторяется
// со списком подкатегорий.
func (c *Client) RaiseLots(ctx context.Context, gameID, nodeID int64, exclude []int64) (domain.RaiseResult, error) {
	const op = "raise"
	form := url.Values{
		"game_id": {strconv.FormatInt(gameID, 10)},
		"node_id": {strconv.FormatInt(nodeID, 10)},
	}
	check, err := c.raise(ctx, form)
	if err != nil {
		return domain.RaiseResult{}, err
	}

	switch {
	case check.Error != nil && bool(*check.Error):
		return failedRaise(check.Msg), nil
	case check.Error != nil:
		return domain.RaiseResult{
			Raised:        true,
			Wait:          raiseCooldown,
			Subcategories: []domain.Subcategory{{ID: nodeID}},
		}, nil
	case check.Modal == "":
		return domain.RaiseResult{}, domain.MalformedError(op, errors.New("ни ошибки, ни формы выбора"))
	}

	subcategories, err := parseRaiseModal(check.Modal)
	if err != nil {
		return domain.RaiseResult{}, err
	}
	subcategories = slices.DeleteFunc(subcategories, func(s domain.Subcategory) bool {
		return slices.Contains(exclude, s.ID)
	})
	if len(subcategories) == 0 {
		return domain.RaiseResult{Wait: raiseCooldown, Message: "нет подкатегорий для поднятия"}, nil
	}
	for _, s := range subcategories {
		form.Add("node_ids[]", strconv.FormatInt(s.ID, 10))
	}
	resp, err := c.raise(ctx, form)
	if err != nil {
		return domain.RaiseResult{}, err
	}
	if resp.Error != nil && bool(*resp.Error) {
		return failedRaise(resp.Msg), nil
	}
	return domain.RaiseResult{Raised: true, Wait: raiseCooldown, Subcategories: subcategories}, nil
}

func (c *Client) raise(ctx context.Context, form url.Values) (raiseResponse, error) {
	body, err := c.do(ctx, http.MethodPost, "/lots/raise", form, true, "raise")
	if err != nil {
		return raiseResponse{}, err
	}
	var resp raiseResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return raiseResponse{}, domain.MalformedError("raise", err)
	}
	return resp, nil
}

func failedRaise(msg string) domain.RaiseResult {
	wait := raiseErrorDelay
	if strings.Contains(msg, "Подождите") {
		wait = ParseWaitTime(msg)
	}
	return domain.RaiseResult{Wait: wait, Message: msg}
}

func parseRaiseModal(modal string) ([]domain.Subcategory, error) {
	doc, err := newDocument("raise", []byte(modal))
	if err != nil {
		return nil, err
	}
	var out []domain.Subcategory
	var parseErr error
	doc.Find("div.checkbox").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		raw, _ := s.Find("input").First().Attr("value")
		id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			parseErr = domain.MalformedError("raise", fmt.Errorf("id подкатегории %q", raw))
			return false
		}
		out = append(out, domain.Subcategory{ID: id, Name: strings.TrimSpace(s.Find("label").First().Text())})
		return true
	})
	return out, parseErr
}

// ParseWaitTime извлекает паузу из ответа вида "Подождите 2 часа.".
func ParseWaitTime(msg string) time.Duration {
	msg = strings.ToLower(msg)
	n := 0
	if digits := digitsPattern.FindString(msg); digits != "" {
		n, _ = strconv.Atoi(digits)
	}
	switch {
	case strings.Contains(msg, "секунд"):
		if n == 0 {
			return 2 * time.Second
		}
		return time.Duration(n) * time.Second
	case strings.Contains(msg, "минут"):
		return time.Duration(max(n, 1)) * time.Minute
	case strings.Contains(msg, "час"):
		return time.Duration(max(n, 1)) * time.Hour
	}
	return raiseErrorDelay
}

type offerEditResponse struct {
	HTML string `json:"html"`
}

// LotFields загружает форму редактирования лота.
func (c *Client) LotFields(ctx context.Context, lotID, nodeID int64) (domain.LotFields, error) {
	query := url.Values{
		"tag":   {strings.ReplaceAll(uuid.NewString(), "-", "")[:10]},
		"offer": {strconv.FormatInt(lotID, 10)},
		"node":  {strconv.FormatInt(nodeID, 10)},
	}
	body, err := c.do(ctx, http.MethodGet, "/lots/offerEdit?"+query.Encode(), nil, true, "lot_fields")
	if err != nil {
		return domain.LotFields{}, err
	}
	var resp offerEditResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.LotFields{}, domain.MalformedError("lot_fields", err)
	}
	fields, err := parseLotForm(resp.HTML)
	if err != nil {
		return domain.LotFields{}, err
	}
	return domain.LotFields{LotID: lotID, SubcategoryID: nodeID, Fields: fields}, nil
}

func parseLotForm(html string) (map[string]string, error) {
	doc, err := newDocument("lot_fields", []byte(html))
	if err != nil {
		return nil, err
	}
	if doc.Find("input, textarea, select").Length() == 0 {
		return nil, domain.MalformedError("lot_fields", errors.New("пустая форма лота"))
	}
	fields := make(map[string]string)
	doc.Find("input").Each(func(_ int, s *goquery.Selection) {
		name, ok := s.Attr("name")
		if !ok || name == "" || name == "active" || name == "deactivate_after_sale" {
			return
		}
		fields[name] = s.AttrOr("value", "")
	})
	doc.Find("textarea").Each(func(_ int, s *goquery.Selection) {
		if name := s.AttrOr("name", ""); name != "" {
			fields[name] = s.Text()
		}
	})
	doc.Find("select").Each(func(_ int, s *goquery.Selection) {
		name := s.AttrOr("name", "")
		if name == "" {
			return
		}
		option := s.Find("option[selected]").First()
		if option.Length() == 0 {
			option = s.Find("option").First()
		}
		fields[name] = option.AttrOr("value", "")
	})
	doc.Find(`input[type="checkbox"][checked]`).Each(func(_ int, s *goquery.Selection) {
		switch s.AttrOr("name", "") {
		case "active":
			fields["active"] = "on"
		case "deactivate_after_sale":
			fields["deactivate_after_sale[]"] = "on"
		}
	})
	if _, ok := fields["deactivate_after_sale[]"]; !ok {
		fields["deactivate_after_sale"] = ""
	}
	return fields, nil
}

type offerSaveResponse struct {
	Error  *flag             `json:"error"`
	Msg    string            `json:"msg"`
	Errors map[string]string `json:"errors"`
}

// SaveLot сохраняет форму лота.
func (c *Client) SaveLot(ctx context.Context, lot domain.LotFields) error {
	const op = "save_lot"
	form := make(url.Values, len(lot.Fields)+2)
	for name, value := range lot.Fields {
		form.Set(name, value)
	}
	form.Set("location", "trade")
	if form.Get("csrf_token") == "" {
		form.Set("csrf_token", c.csrf())
	}
	body, err := c.do(ctx, http.MethodPost, "/lots/offerSave", form, true, op)
	if err != nil {
		return fmt.Errorf("%s: лот %d: %w", op, lot.LotID, err)
	}
	var resp offerSaveResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.MalformedError(op, err)
	}
	if resp.Error != nil && bool(*resp.Error) {
		reason := resp.Msg
		for field, msg := range resp.Errors {
			reason = strings.TrimSpace(reason + " " + field + ": " + msg)
		}
		return fmt.Errorf("%s: лот %d: %s: %w", op, lot.LotID, reason, domain.ErrLotNotSaved)
	}
	return nil
}
