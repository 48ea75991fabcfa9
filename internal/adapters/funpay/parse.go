package funpay

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"

	"funpay-agent/internal/domain"
)

var (
	userLinkPattern = regexp.MustCompile(`/users/(\d+)/?`)
	ratingPattern   = regexp.MustCompile(`rating(\d)`)
	priceCleaner    = regexp.MustCompile(`[^0-9.,-]`)
)

type accountInfo struct {
	UserID    int64
	Username  string
	CSRFToken string
}

type appData struct {
	UserID    int64  `json:"userId"`
	CSRFToken string `json:"csrf-token"`
}

func unauthorized(op string) error {
	return &domain.RequestError{Op: op, StatusCode: http.StatusForbidden}
}

func newDocument(op string, body []byte) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, domain.MalformedError(op, err)
	}
	return doc, nil
}

func parseAccountPage(body []byte) (accountInfo, error) {
	doc, err := newDocument("account", body)
	if err != nil {
		return accountInfo{}, err
	}
	name := doc.Find("div.user-link-name").First()
	if name.Length() == 0 {
		return accountInfo{}, unauthorized("account")
	}
	raw, ok := doc.Find("body").Attr("data-app-data")
	if !ok {
		return accountInfo{}, domain.MalformedError("account", errors.New("нет data-app-data"))
	}
	var data appData
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return accountInfo{}, domain.MalformedError("account", err)
	}
	if data.UserID == 0 || data.CSRFToken == "" {
		return accountInfo{}, domain.MalformedError("account", errors.New("неполные данные аккаунта"))
	}
	return accountInfo{
		UserID:    data.UserID,
		Username:  strings.TrimSpace(name.Text()),
		CSRFToken: data.CSRFToken,
	}, nil
}

// parseChatBookmarks разбирает HTML закладок чатов.
func parseChatBookmarks(html string, classifier *domain.Classifier) ([]domain.ChatShortcut, error) {
	doc, err := newDocument("chat_bookmarks", []byte(html))
	if err != nil {
		return nil, err
	}
	var (
		chats    []domain.ChatShortcut
		parseErr error
	)
	doc.Find("a.contact-item").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		rawID, _ := s.Attr("data-id")
		id, err := strconv.ParseInt(strings.TrimSpace(rawID), 10, 64)
		if err != nil {
			parseErr = domain.MalformedError("chat_bookmarks", fmt.Errorf("data-id %q: %w", rawID, err))
			return false
		}
		text := s.Find("div.contact-item-message").First().Text()
		text = domain.TruncatePreview(&text)
		outer, _ := goquery.OuterHtml(s)
		chats = append(chats, domain.ChatShortcut{
			ID:              id,
			Name:            strings.TrimSpace(s.Find("div.media-user-name").First().Text()),
			LastMessageText: text,
			LastMessageType: classifier.Classify(text),
			Unread:          s.HasClass("unread"),
			HTML:            outer,
		})
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	return chats, nil
}

type rawMessage struct {
	ID     int64  `json:"id"`
	Author int64  `json:"author"`
	HTML   string `json:"html"`
}

type rawNode struct {
	Name string `json:"name"`
}

// interlocutorID возвращает id собеседника из имени узла вида users-<id>-<id>.
func interlocutorID(nodeName string, self int64) (int64, error) {
	parts := strings.Split(nodeName, "-")
	if len(parts) != 3 || parts[0] != "users" {
		return 0, fmt.Errorf("неожиданное имя узла %q", nodeName)
	}
	a, errA := strconv.ParseInt(parts[1], 10, 64)
	b, errB := strconv.ParseInt(parts[2], 10, 64)
	if errA != nil || errB != nil {
		return 0, fmt.Errorf("неожиданное имя узла %q", nodeName)
	}
	if a == self {
		return b, nil
	}
	return a, nil
}

type messageContext struct {
	chatID         int64
	interlocutorID int64
	interlocutor   string
	selfID         int64
	selfName       string
	classifier     *domain.Classifier
}

func parseMessages(raw []rawMessage, mc messageContext) ([]domain.Message, error) {
	names := map[int64]string{
		domain.SystemAuthorID: "FunPay",
		mc.selfID:             mc.selfName,
	}
	if mc.interlocutor != "" {
		names[mc.interlocutorID] = mc.interlocutor
	}

	messages := make([]domain.Message, 0, len(raw))
	for _, item := range raw {
		doc, err := newDocument("chat_message", []byte(item.HTML))
		if err != nil {
			return nil, err
		}
		if _, known := names[item.Author]; !known {
			if author := strings.TrimSpace(doc.Find("div.media-user-name a").First().Text()); author != "" {
				names[item.Author] = author
			}
		}

		msg := domain.Message{
			ID:       item.ID,
			ChatID:   mc.chatID,
			AuthorID: item.Author,
			HTML:     item.HTML,
			Type:     domain.MessageNonSystem,
		}
		if href, ok := doc.Find("a.chat-img-link").First().Attr("href"); ok {
			msg.ImageURL = &href
		} else {
			var text string
			if item.Author == domain.SystemAuthorID {
				text = strings.TrimSpace(doc.Find("div.alert-with-icon").First().Text())
			} else {
				text = doc.Find("div.chat-msg-text").First().Text()
			}
			msg.Text = &text
			if item.Author == domain.SystemAuthorID {
				msg.Type = mc.classifier.Classify(text)
			}
		}
		messages = append(messages, msg)
	}

	chatName := names[mc.interlocutorID]
	for i := range messages {
		messages[i].Author = names[messages[i].AuthorID]
		messages[i].ChatName = chatName
	}
	return messages, nil
}

// parsePrice принимает строки вида "1 234.50 ₽".
func parsePrice(text string) (decimal.Decimal, error) {
	cleaned := priceCleaner.ReplaceAllString(text, "")
	cleaned = strings.ReplaceAll(cleaned, ",", ".")
	if cleaned == "" {
		return decimal.Zero, fmt.Errorf("пустая цена %q", text)
	}
	return decimal.NewFromString(cleaned)
}

func parseUserLink(link string) (int64, bool) {
	m := userLinkPattern.FindStringSubmatch(link)
	if len(m) < 2 {
		return 0, false
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	return id, err == nil
}

// parseOrdersPage разбирает страницу списка продаж.
func parseOrdersPage(body []byte, filter domain.OrderFilter) (domain.OrderPage, error) {
	const op = "orders"
	doc, err := newDocument(op, body)
	if err != nil {
		return domain.OrderPage{}, err
	}
	if doc.Find("div.content-account-login").Length() > 0 {
		return domain.OrderPage{}, unauthorized(op)
	}

	var page domain.OrderPage
	page.Next, _ = doc.Find(`input[type="hidden"][name="continue"]`).First().Attr("value")

	var parseErr error
	doc.Find("a.tc-item").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var status domain.OrderStatus
		switch {
		case s.HasClass("warning"):
			if !filter.IncludeRefunded {
				return true
			}
			status = domain.OrderRefunded
		case s.HasClass("info"):
			if !filter.IncludePaid {
				return true
			}
			status = domain.OrderPaid
		default:
			if !filter.IncludeClosed {
				return true
			}
			status = domain.OrderClosed
		}

		id := strings.TrimPrefix(strings.TrimSpace(s.Find("div.tc-order").First().Text()), "#")
		if id == "" {
			parseErr = domain.MalformedError(op, errors.New("строка заказа без номера"))
			return false
		}
		price, err := parsePrice(s.Find("div.tc-price").First().Text())
		if err != nil {
			parseErr = domain.MalformedError(op, fmt.Errorf("заказ %s: %w", id, err))
			return false
		}
		buyer := s.Find("div.media-user-name span").First()
		link, _ := buyer.Attr("data-href")
		buyerID, ok := parseUserLink(link)
		if !ok {
			parseErr = domain.MalformedError(op, fmt.Errorf("заказ %s: ссылка на покупателя %q", id, link))
			return false
		}
		outer, _ := goquery.OuterHtml(s)
		page.Orders = append(page.Orders, domain.OrderShortcut{
			ID:            id,
			Description:   strings.TrimSpace(s.Find("div.order-desc div").First().Text()),
			Price:         price,
			BuyerUsername: strings.TrimSpace(buyer.Text()),
			BuyerID:       buyerID,
			Status:        status,
			HTML:          outer,
		})
		return true
	})
	if parseErr != nil {
		return domain.OrderPage{}, parseErr
	}
	return page, nil
}

// parseOrderPage разбирает карточку заказа. selfID и selfName подставляются
// на сторону, которую занимает аккаунт.
func parseOrderPage(body []byte, orderID string, selfID int64, selfName string) (domain.Order, error) {
	const op = "order"
	doc, err := newDocument(op, body)
	if err != nil {
		return domain.Order{}, err
	}
	if doc.Find("div.user-link-name").Length() == 0 {
		return domain.Order{}, unauthorized(op)
	}

	order := domain.Order{ID: orderID, Status: domain.OrderPaid}
	switch {
	case strings.TrimSpace(doc.Find("span.text-warning").First().Text()) == "Возврат":
		order.Status = domain.OrderRefunded
	case strings.TrimSpace(doc.Find("span.text-success").First().Text()) == "Закрыт":
		order.Status = domain.OrderClosed
	}

	var parseErr error
	doc.Find("div.param-item").Each(func(_ int, s *goquery.Selection) {
		switch strings.TrimSpace(s.Find("h5").First().Text()) {
		case "Краткое описание":
			order.ShortDescription = strings.TrimSpace(s.Find("div").First().Text())
		case "Подробное описание":
			order.FullDescription = strings.TrimSpace(s.Find("div").First().Text())
		case "Сумма":
			sum, err := parsePrice(s.Find("span").First().Text())
			if err != nil {
				parseErr = domain.MalformedError(op, err)
				return
			}
			order.Sum = sum
		}
	})
	if parseErr != nil {
		return domain.Order{}, parseErr
	}

	peer := doc.Find("div.chat-header div.media-user-name a").First()
	peerLink, _ := peer.Attr("href")
	peerID, ok := parseUserLink(peerLink)
	if !ok {
		return domain.Order{}, domain.MalformedError(op, fmt.Errorf("ссылка на собеседника %q", peerLink))
	}
	peerName := strings.TrimSpace(peer.Text())

	active := doc.Find("ul.navbar-right li.active a").First().Text()
	if strings.Contains(active, "Продажи") {
		order.BuyerID, order.BuyerUsername = peerID, peerName
		order.SellerID, order.SellerUsername = selfID, selfName
	} else {
		order.BuyerID, order.BuyerUsername = selfID, selfName
		order.SellerID, order.SellerUsername = peerID, peerName
	}

	review := doc.Find("div.order-review").First()
	var rv domain.Review
	if class, ok := review.Find("div.rating div").First().Attr("class"); ok {
		if m := ratingPattern.FindStringSubmatch(class); len(m) == 2 {
			rv.Stars, _ = strconv.Atoi(m[1])
		}
		rv.Text = strings.TrimSpace(review.Find("div.review-item-text").First().Text())
	}
	rv.Reply = strings.TrimSpace(review.Find("div.review-compiled-reply div").First().Text())
	if rv.Text != "" || rv.Reply != "" {
		order.Review = &rv
	}
	return order, nil
}
