package funpay

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"funpay-agent/internal/domain"
)

const accountPage = `<html><body data-app-data='{"userId":100,"csrf-token":"tok"}'>
<div class="user-link-name">seller</div></body></html>`

const bookmarksHTML = `<div>
<a class="contact-item unread" data-id="55"><div class="media-user-name">buyer</div><div class="contact-item-message">привет</div></a>
<a class="contact-item" data-id="56"><div class="media-user-name">other</div><div class="contact-item-message">Покупатель other написал отзыв к заказу #ABCD1234.</div></a>
</div>`

type fakeSite struct {
	handlers map[string]http.HandlerFunc

	mu    sync.Mutex
	forms map[string]url.Values
}

func (s *fakeSite) form(path string) url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.forms[path]
}

func newFakeSite(t *testing.T) (*fakeSite, *Client) {
	t.Helper()
	site := &fakeSite{handlers: map[string]http.HandlerFunc{}, forms: map[string]url.Values{}}
	site.handlers["/"] = func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "PHPSESSID", Value: "sess"})
		io.WriteString(w, accountPage)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if cookie, err := r.Cookie("golden_key"); err != nil || cookie.Value != "gk" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		_ = r.ParseForm()
		site.mu.Lock()
		site.forms[r.URL.Path] = r.PostForm
		site.mu.Unlock()
		h, ok := site.handlers[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		h(w, r)
	}))
	t.Cleanup(srv.Close)

	client := NewClient(Config{BaseURL: srv.URL, GoldenKey: "gk"}, nil, zerolog.Nop())
	require.NoError(t, client.Init(context.Background()))
	return site, client
}

func TestInitReadsAccount(t *testing.T) {
	_, client := newFakeSite(t)
	assert.Equal(t, int64(100), client.UserID())
	assert.Equal(t, "seller", client.Username())
	assert.Equal(t, "tok", client.csrf())
	assert.Equal(t, "sess", client.phpsessid)
}

func TestInitWithoutUserIsUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `<html><body></body></html>`)
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL}, nil, zerolog.Nop())
	err := client.Init(context.Background())
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestPollParsesSnapshot(t *testing.T) {
	site, client := newFakeSite(t)
	site.handlers["/runner/"] = func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"objects": []map[string]any{
				{"type": "orders_counters", "id": 100, "tag": "o2", "data": map[string]int{"buyer": 1, "seller": 3}},
				{"type": "chat_bookmarks", "id": 100, "tag": "c2", "data": map[string]any{"html": bookmarksHTML}},
			},
			"response": false,
		})
	}

	snap, err := client.Poll(context.Background(), "c1", "o1")
	require.NoError(t, err)

	form := site.form("/runner/")
	assert.Equal(t, "tok", form.Get("csrf_token"))
	assert.Equal(t, "false", form.Get("request"))
	var objects []map[string]any
	require.NoError(t, json.Unmarshal([]byte(form.Get("objects")), &objects))
	require.Len(t, objects, 2)
	assert.Equal(t, "o1", objects[0]["tag"])
	assert.Equal(t, "c1", objects[1]["tag"])

	require.NotNil(t, snap.Orders)
	assert.Equal(t, "o2", snap.Orders.Tag)
	assert.Equal(t, domain.OrderCounters{Purchases: 1, Sales: 3}, snap.Orders.Counters)

	require.NotNil(t, snap.Chats)
	assert.Equal(t, "c2", snap.Chats.Tag)
	require.Len(t, snap.Chats.Chats, 2)
	assert.Equal(t, int64(55), snap.Chats.Chats[0].ID)
	assert.Equal(t, "buyer", snap.Chats.Chats[0].Name)
	assert.True(t, snap.Chats.Chats[0].Unread)
	assert.Equal(t, domain.MessageNonSystem, snap.Chats.Chats[0].LastMessageType)
	assert.False(t, snap.Chats.Chats[1].Unread)
	assert.Equal(t, domain.MessageNewFeedback, snap.Chats.Chats[1].LastMessageType)
}

func TestPollPartialSnapshot(t *testing.T) {
	site, client := newFakeSite(t)
	site.handlers["/runner/"] = func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"objects":[{"type":"orders_counters","tag":"o2","data":{"buyer":0,"seller":2}}]}`)
	}
	snap, err := client.Poll(context.Background(), "c1", "o1")
	require.NoError(t, err)
	assert.Nil(t, snap.Chats)
	require.NotNil(t, snap.Orders)
}

func TestPollMalformed(t *testing.T) {
	cases := map[string]string{
		"не json":        `<html>`,
		"нет objects":    `{"response":false}`,
		"пустые данные":  `{"objects":[{"type":"chat_bookmarks","tag":"x","data":false}]}`,
		"кривой data-id": `{"objects":[{"type":"chat_bookmarks","tag":"x","data":{"html":"<a class=\"contact-item\" data-id=\"abc\"></a>"}}]}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			site, client := newFakeSite(t)
			site.handlers["/runner/"] = func(w http.ResponseWriter, r *http.Request) { io.WriteString(w, body) }
			_, err := client.Poll(context.Background(), "c", "o")
			assert.ErrorIs(t, err, domain.ErrMalformedPayload)
		})
	}
}

func TestPollStatusErrors(t *testing.T) {
	site, client := newFakeSite(t)
	status := http.StatusForbidden
	site.handlers["/runner/"] = func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(status) }

	_, err := client.Poll(context.Background(), "c", "o")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	status = http.StatusBadGateway
	_, err = client.Poll(context.Background(), "c", "o")
	assert.ErrorIs(t, err, domain.ErrRequestFailed)
	assert.NotErrorIs(t, err, domain.ErrUnauthorized)
}

func chatMessage(id, author int64, inner string) map[string]any {
	return map[string]any{"id": id, "author": author, "html": inner}
}

func TestFetchHistories(t *testing.T) {
	site, client := newFakeSite(t)
	site.handlers["/runner/"] = func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"objects": []map[string]any{
				{"type": "chat_node", "id": 55, "tag": "00000000", "data": map[string]any{
					"node": map[string]any{"name": "users-100-7"},
					"messages": []map[string]any{
						chatMessage(10, 7, `<div class="media-user-name"><a>buyer</a></div><div class="chat-msg-text">привет</div>`),
						chatMessage(11, 0, `<div class="alert alert-with-icon alert-info"> Покупатель buyer написал отзыв к заказу #ABCD1234. </div>`),
						chatMessage(12, 100, `<a class="chat-img-link" href="https://img/1.png"></a>`),
					},
				}},
				{"type": "chat_node", "id": "56", "tag": "00000000", "data": false},
			},
		})
	}

	histories, err := client.FetchHistories(context.Background(), map[int64]string{55: "", 56: "other"})
	require.NoError(t, err)

	var objects []map[string]any
	require.NoError(t, json.Unmarshal([]byte(site.form("/runner/").Get("objects")), &objects))
	require.Len(t, objects, 2)
	for _, obj := range objects {
		assert.Equal(t, "chat_node", obj["type"])
		assert.Equal(t, "00000000", obj["tag"])
	}

	msgs := histories[55]
	require.Len(t, msgs, 3)
	assert.Equal(t, "buyer", msgs[0].Author)
	assert.Equal(t, "привет", *msgs[0].Text)
	assert.Equal(t, domain.MessageNonSystem, msgs[0].Type)
	assert.Equal(t, "FunPay", msgs[1].Author)
	assert.Equal(t, domain.MessageNewFeedback, msgs[1].Type)
	assert.Nil(t, msgs[2].Text)
	assert.Equal(t, "https://img/1.png", *msgs[2].ImageURL)
	assert.Equal(t, "seller", msgs[2].Author)
	for _, m := range msgs {
		assert.Equal(t, "buyer", m.ChatName)
		assert.Equal(t, int64(55), m.ChatID)
	}

	list, ok := histories[56]
	assert.True(t, ok)
	assert.Empty(t, list)
}

func TestFetchHistoriesRejectsTooManyChats(t *testing.T) {
	_, client := newFakeSite(t)
	chats := make(map[int64]string)
	for i := int64(1); i <= 11; i++ {
		chats[i] = fmt.Sprint("user", i)
	}
	_, err := client.FetchHistories(context.Background(), chats)
	assert.ErrorIs(t, err, domain.ErrTooManyChats)
}

func TestSendMessage(t *testing.T) {
	site, client := newFakeSite(t)
	site.handlers["/runner/"] = func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"objects":[{"type":"chat_node","id":55,"data":{"node":{"name":"users-7-100"},
			"messages":[{"id":20,"author":100,"html":"<div class=\"chat-msg-text\">готово</div>"}]}}],
			"response":{"error":null}}`)
	}

	msg, err := client.SendMessage(context.Background(), 55, "готово", "buyer")
	require.NoError(t, err)
	assert.Equal(t, int64(20), msg.ID)
	assert.Equal(t, "готово", *msg.Text)
	assert.Equal(t, int64(100), msg.AuthorID)
	assert.Equal(t, "buyer", msg.ChatName)

	var request map[string]any
	require.NoError(t, json.Unmarshal([]byte(site.form("/runner/").Get("request")), &request))
	assert.Equal(t, "chat_message", request["action"])
	data := request["data"].(map[string]any)
	assert.Equal(t, "готово", data["content"])
}

func TestSendMessageNotDelivered(t *testing.T) {
	for name, body := range map[string]string{
		"без response":    `{"objects":[],"response":false}`,
		"ошибка площадки": `{"objects":[],"response":{"error":"Слишком часто"}}`,
	} {
		t.Run(name, func(t *testing.T) {
			site, client := newFakeSite(t)
			site.handlers["/runner/"] = func(w http.ResponseWriter, r *http.Request) { io.WriteString(w, body) }
			_, err := client.SendMessage(context.Background(), 55, "x", "buyer")
			assert.ErrorIs(t, err, domain.ErrMessageNotDelivered)
		})
	}
}

const ordersPage = `<html><body>
<input type="hidden" name="continue" value="NEXT0001">
<a class="tc-item info"><div class="tc-order">#AAAA0001</div>
  <div class="order-desc"><div>Ключ Steam, 2 шт.</div></div>
  <div class="tc-price">1 250.50 ₽</div>
  <div class="media-user-name"><span data-href="https://funpay.com/users/7/">buyer</span></div></a>
<a class="tc-item"><div class="tc-order">#AAAA0002</div>
  <div class="order-desc"><div>Аккаунт</div></div>
  <div class="tc-price">99 ₽</div>
  <div class="media-user-name"><span data-href="https://funpay.com/users/8/">other</span></div></a>
<a class="tc-item warning"><div class="tc-order">#AAAA0003</div>
  <div class="order-desc"><div>Золото</div></div>
  <div class="tc-price">10 ₽</div>
  <div class="media-user-name"><span data-href="https://funpay.com/users/9/">third</span></div></a>
</body></html>`

func TestFetchOrders(t *testing.T) {
	site, client := newFakeSite(t)
	site.handlers["/orders/trade"] = func(w http.ResponseWriter, r *http.Request) { io.WriteString(w, ordersPage) }

	page, err := client.FetchOrders(context.Background(), domain.DefaultOrderFilter())
	require.NoError(t, err)
	assert.Equal(t, "NEXT0001", page.Next)
	require.Len(t, page.Orders, 3)

	first := page.Orders[0]
	assert.Equal(t, "AAAA0001", first.ID)
	assert.Equal(t, domain.OrderPaid, first.Status)
	assert.Equal(t, "1250.5", first.Price.String())
	assert.Equal(t, int64(7), first.BuyerID)
	assert.Equal(t, 2, first.Amount())
	assert.Equal(t, "Ключ Steam", first.Title())
	assert.Equal(t, domain.OrderClosed, page.Orders[1].Status)
	assert.Equal(t, domain.OrderRefunded, page.Orders[2].Status)

	filter := domain.OrderFilter{IncludePaid: true, StartFrom: "NEXT0001"}
	page, err = client.FetchOrders(context.Background(), filter)
	require.NoError(t, err)
	require.Len(t, page.Orders, 1)
	assert.Equal(t, "NEXT0001", site.form("/orders/trade").Get("continue"))
}

func TestFetchOrdersLoginPageIsUnauthorized(t *testing.T) {
	site, client := newFakeSite(t)
	site.handlers["/orders/trade"] = func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `<div class="content-account content-account-login"></div>`)
	}
	_, err := client.FetchOrders(context.Background(), domain.DefaultOrderFilter())
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

const orderPage = `<html><body><div class="user-link-name">seller</div>
<ul class="nav navbar-nav navbar-right logged"><li class="active"><a>Продажи</a></li></ul>
<span class="text-success">Закрыт</span>
<div class="param-item"><h5>Краткое описание</h5><div>Ключ Steam</div></div>
<div class="param-item"><h5>Сумма</h5><div><span>150</span></div></div>
<div class="chat-header"><div class="media-user-name"><a href="https://funpay.com/users/7/">buyer</a></div></div>
<div class="order-review"><div class="rating"><div class="rating5"></div></div>
<div class="review-item-text"> Отлично </div></div>
</body></html>`

func TestGetOrder(t *testing.T) {
	site, client := newFakeSite(t)
	site.handlers["/orders/AAAA0001/"] = func(w http.ResponseWriter, r *http.Request) { io.WriteString(w, orderPage) }

	order, err := client.GetOrder(context.Background(), "AAAA0001")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderClosed, order.Status)
	assert.Equal(t, "Ключ Steam", order.ShortDescription)
	assert.Equal(t, "150", order.Sum.String())
	assert.Equal(t, int64(7), order.BuyerID)
	assert.Equal(t, "buyer", order.BuyerUsername)
	assert.Equal(t, int64(100), order.SellerID)
	require.NotNil(t, order.Review)
	assert.Equal(t, 5, order.Review.Stars)
	assert.Equal(t, "Отлично", order.Review.Text)
}

func TestSendReview(t *testing.T) {
	site, client := newFakeSite(t)
	site.handlers["/orders/review"] = func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"content":"<div></div>"}`)
	}
	require.NoError(t, client.SendReview(context.Background(), "AAAA0001", "Спасибо", 5))
	form := site.form("/orders/review")
	assert.Equal(t, "100", form.Get("authorId"))
	assert.Equal(t, "5", form.Get("rating"))
	assert.Equal(t, "AAAA0001", form.Get("orderId"))
}

func TestSendReviewRejected(t *testing.T) {
	site, client := newFakeSite(t)
	site.handlers["/orders/review"] = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"msg":"Нельзя ответить"}`)
	}
	err := client.SendReview(context.Background(), "AAAA0001", "Спасибо", 5)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "Нельзя ответить"))
	assert.ErrorIs(t, err, domain.ErrRequestFailed)
}

func TestInterlocutorID(t *testing.T) {
	id, err := interlocutorID("users-100-7", 100)
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)

	id, err = interlocutorID("users-7-100", 100)
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)

	_, err = interlocutorID("support-1", 100)
	assert.Error(t, err)
}
