package funpay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"funpay-agent/internal/domain"
)

const (
	maxHistoryChats = 10
	historyTag      = "00000000"
)

type runnerObject struct {
	Type string          `json:"type"`
	ID   json.RawMessage `json:"id"`
	Tag  string          `json:"tag"`
	Data json.RawMessage `json:"data"`
}

type runnerResponse struct {
	Objects  []runnerObject  `json:"objects"`
	Response json.RawMessage `json:"response"`
}

type runnerRequest struct {
	Type string `json:"type"`
	ID   int64  `json:"id"`
	Tag  string `json:"tag"`
	Data any    `json:"data"`
}

type chatNodeData struct {
	Node        int64  `json:"node"`
	LastMessage int64  `json:"last_message"`
	Content     string `json:"content"`
}

type bookmarksData struct {
	HTML string `json:"html"`
}

type countersData struct {
	Buyer  int `json:"buyer"`
	Seller int `json:"seller"`
}

type chatNodePayload struct {
	Node     rawNode      `json:"node"`
	Messages []rawMessage `json:"messages"`
}

// empty сообщает, что площадка прислала пустые данные объекта (null или false).
func empty(data json.RawMessage) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) || bytes.Equal(trimmed, []byte("false"))
}

func (c *Client) postRunner(ctx context.Context, op string, objects []runnerRequest, request any) (runnerResponse, error) {
	encoded, err := json.Marshal(objects)
	if err != nil {
		return runnerResponse{}, fmt.Errorf("%s: encode objects: %w", op, err)
	}
	form := url.Values{}
	form.Set("objects", string(encoded))
	form.Set("csrf_token", c.csrf())
	if request == nil {
		form.Set("request", "false")
	} else {
		req, err := json.Marshal(request)
		if err != nil {
			return runnerResponse{}, fmt.Errorf("%s: encode request: %w", op, err)
		}
		form.Set("request", string(req))
	}

	body, err := c.do(ctx, http.MethodPost, "/runner/", form, true, op)
	if err != nil {
		return runnerResponse{}, err
	}
	var resp runnerResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return runnerResponse{}, domain.MalformedError(op, err)
	}
	return resp, nil
}

// Poll запрашивает закладки чатов и счётчики заказов одним запросом.
func (c *Client) Poll(ctx context.Context, chatTag, orderTag string) (domain.Snapshot, error) {
	const op = "runner"
	self := c.UserID()
	resp, err := c.postRunner(ctx, op, []runnerRequest{
		{Type: "orders_counters", ID: self, Tag: orderTag, Data: false},
		{Type: "chat_bookmarks", ID: self, Tag: chatTag, Data: false},
	}, nil)
	if err != nil {
		return domain.Snapshot{}, err
	}
	if resp.Objects == nil {
		return domain.Snapshot{}, domain.MalformedError(op, errors.New("нет поля objects"))
	}

	snap := domain.Snapshot{ReceivedAt: time.Now()}
	for _, obj := range resp.Objects {
		switch obj.Type {
		case "chat_bookmarks":
			var data bookmarksData
			if empty(obj.Data) {
				return domain.Snapshot{}, domain.MalformedError(op, errors.New("chat_bookmarks без данных"))
			}
			if err := json.Unmarshal(obj.Data, &data); err != nil {
				return domain.Snapshot{}, domain.MalformedError(op, err)
			}
			chats, err := parseChatBookmarks(data.HTML, c.classifier)
			if err != nil {
				return domain.Snapshot{}, err
			}
			snap.Chats = &domain.ChatFeed{Tag: obj.Tag, Chats: chats}
		case "orders_counters":
			var data countersData
			if empty(obj.Data) {
				return domain.Snapshot{}, domain.MalformedError(op, errors.New("orders_counters без данных"))
			}
			if err := json.Unmarshal(obj.Data, &data); err != nil {
				return domain.Snapshot{}, domain.MalformedError(op, err)
			}
			snap.Orders = &domain.OrderFeed{
				Tag:      obj.Tag,
				Counters: domain.OrderCounters{Purchases: data.Buyer, Sales: data.Seller},
			}
		}
	}
	return snap, nil
}

func chatNodeObject(chatID int64) runnerRequest {
	return runnerRequest{
		Type: "chat_node",
		ID:   chatID,
		Tag:  historyTag,
		Data: chatNodeData{Node: chatID, LastMessage: -1},
	}
}

// FetchHistories возвращает последние сообщения нескольких личных чатов.
func (c *Client) FetchHistories(ctx context.Context, chats map[int64]string) (map[int64][]domain.Message, error) {
	const op = "chat_histories"
	if len(chats) > maxHistoryChats {
		return nil, fmt.Errorf("%s: %d чатов: %w", op, len(chats), domain.ErrTooManyChats)
	}
	if len(chats) == 0 {
		return map[int64][]domain.Message{}, nil
	}
	objects := make([]runnerRequest, 0, len(chats))
	for id := range chats {
		objects = append(objects, chatNodeObject(id))
	}
	resp, err := c.postRunner(ctx, op, objects, nil)
	if err != nil {
		return nil, err
	}
	if resp.Objects == nil {
		return nil, domain.MalformedError(op, errors.New("нет поля objects"))
	}

	selfID, selfName := c.UserID(), c.Username()
	result := make(map[int64][]domain.Message, len(chats))
	for _, obj := range resp.Objects {
		chatID, err := strconv.ParseInt(string(bytes.Trim(obj.ID, `"`)), 10, 64)
		if err != nil {
			return nil, domain.MalformedError(op, fmt.Errorf("id объекта %s: %w", obj.ID, err))
		}
		if empty(obj.Data) {
			result[chatID] = nil
			continue
		}
		var payload chatNodePayload
		if err := json.Unmarshal(obj.Data, &payload); err != nil {
			return nil, domain.MalformedError(op, err)
		}
		peer, err := interlocutorID(payload.Node.Name, selfID)
		if err != nil {
			return nil, domain.MalformedError(op, err)
		}
		messages, err := parseMessages(payload.Messages, messageContext{
			chatID:         chatID,
			interlocutorID: peer,
			interlocutor:   chats[chatID],
			selfID:         selfID,
			selfName:       selfName,
			classifier:     c.classifier,
		})
		if err != nil {
			return nil, err
		}
		result[chatID] = messages
	}
	return result, nil
}

type sendResponse struct {
	Error *string `json:"error"`
}

// SendMessage отправляет текст в чат и возвращает созданное сообщение.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text, chatName string) (domain.Message, error) {
	const op = "chat_message"
	request := map[string]any{
		"action": "chat_message",
		"data":   chatNodeData{Node: chatID, LastMessage: -1, Content: text},
	}
	resp, err := c.postRunner(ctx, op, []runnerRequest{chatNodeObject(chatID)}, request)
	if err != nil {
		return domain.Message{}, err
	}
	if empty(resp.Response) {
		return domain.Message{}, fmt.Errorf("%s: чат %d: %w", op, chatID, domain.ErrMessageNotDelivered)
	}
	var sent sendResponse
	if err := json.Unmarshal(resp.Response, &sent); err != nil {
		return domain.Message{}, domain.MalformedError(op, err)
	}
	if sent.Error != nil {
		return domain.Message{}, fmt.Errorf("%s: чат %d: %s: %w", op, chatID, *sent.Error, domain.ErrMessageNotDelivered)
	}
	if len(resp.Objects) == 0 || empty(resp.Objects[0].Data) {
		return domain.Message{}, domain.MalformedError(op, errors.New("нет данных чата в ответе"))
	}
	var payload chatNodePayload
	if err := json.Unmarshal(resp.Objects[0].Data, &payload); err != nil {
		return domain.Message{}, domain.MalformedError(op, err)
	}
	if len(payload.Messages) == 0 {
		return domain.Message{}, domain.MalformedError(op, errors.New("пустой список сообщений"))
	}

	selfID, selfName := c.UserID(), c.Username()
	last := payload.Messages[len(payload.Messages)-1]
	msgs, err := parseMessages([]rawMessage{last}, messageContext{
		chatID:     chatID,
		selfID:     selfID,
		selfName:   selfName,
		classifier: c.classifier,
	})
	if err != nil {
		return domain.Message{}, err
	}
	msg := msgs[0]
	msg.AuthorID = selfID
	msg.Author = selfName
	msg.ChatName = chatName
	msg.Type = domain.MessageNonSystem
	return msg, nil
}
