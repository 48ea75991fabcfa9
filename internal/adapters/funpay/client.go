package funpay

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"funpay-agent/internal/domain"
	"funpay-agent/internal/infra/metrics"
)

const maxBodySize = 8 << 20

// Config описывает подключение к площадке.
type Config struct {
	BaseURL    string
	GoldenKey  string
	UserAgent  string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client — сессия аккаунта площадки поверх её внутренних эндпоинтов.
type Client struct {
	http       *http.Client
	baseURL    string
	goldenKey  string
	userAgent  string
	classifier *domain.Classifier
	log        zerolog.Logger

	mu        sync.RWMutex
	phpsessid string
	csrfToken string
	userID    int64
	username  string
	chats     map[int64]domain.ChatShortcut
}

var (
	_ domain.Feed    = (*Client)(nil)
	_ domain.Account = (*Client)(nil)
)

// NewClient создаёт клиента. До вызова Init запросы к ленте не авторизованы.
func NewClient(cfg Config, classifier *domain.Classifier, log zerolog.Logger) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	if classifier == nil {
		classifier = domain.DefaultClassifier()
	}
	return &Client{
		http:       httpClient,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		goldenKey:  cfg.GoldenKey,
		userAgent:  cfg.UserAgent,
		classifier: classifier,
		log:        log,
		chats:      make(map[int64]domain.ChatShortcut),
	}
}

// Init загружает главную страницу и извлекает данные аккаунта.
func (c *Client) Init(ctx context.Context) error {
	body, err := c.do(ctx, http.MethodGet, "/", nil, false, "account")
	if err != nil {
		return fmt.Errorf("загрузка профиля: %w", err)
	}
	info, err := parseAccountPage(body)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.userID = info.UserID
	c.username = info.Username
	c.csrfToken = info.CSRFToken
	c.mu.Unlock()
	c.log.Info().Int64("user_id", info.UserID).Str("username", info.Username).Msg("funpay: сессия инициализирована")
	return nil
}

// UserID возвращает id аккаунта.
func (c *Client) UserID() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

// Username возвращает никнейм аккаунта.
func (c *Client) Username() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.username
}

func (c *Client) csrf() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.csrfToken
}

// SaveChats сохраняет карточки чатов.
func (c *Client) SaveChats(chats ...domain.ChatShortcut) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, chat := range chats {
		c.chats[chat.ID] = chat
	}
}

// Chat возвращает сохранённую карточку чата.
func (c *Client) Chat(id int64) (domain.ChatShortcut, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	chat, ok := c.chats[id]
	return chat, ok
}

// ChatByName ищет сохранённый чат по имени собеседника.
func (c *Client) ChatByName(name string) (domain.ChatShortcut, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, chat := range c.chats {
		if strings.EqualFold(chat.Name, name) {
			return chat, true
		}
	}
	return domain.ChatShortcut{}, false
}

func (c *Client) do(ctx context.Context, method, path string, form url.Values, xhr bool, op string) ([]byte, error) {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "*/*")
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
	}
	if xhr {
		req.Header.Set("X-Requested-With", "XMLHttpRequest")
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	req.AddCookie(&http.Cookie{Name: "golden_key", Value: c.goldenKey})
	c.mu.RLock()
	sessID := c.phpsessid
	c.mu.RUnlock()
	if sessID != "" {
		req.AddCookie(&http.Cookie{Name: "PHPSESSID", Value: sessID})
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ObserveNetworkRequest("funpay", op, method, start, err)
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	for _, cookie := range resp.Cookies() {
		if cookie.Name == "PHPSESSID" && cookie.Value != "" {
			c.mu.Lock()
			c.phpsessid = cookie.Value
			c.mu.Unlock()
		}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		metrics.ObserveNetworkRequest("funpay", op, method, start, err)
		return nil, fmt.Errorf("%s: read body: %w", op, err)
	}
	if resp.StatusCode != http.StatusOK {
		reqErr := &domain.RequestError{Op: op, StatusCode: resp.StatusCode}
		metrics.ObserveNetworkRequest("funpay", op, method, start, reqErr)
		// тело ошибочного ответа может содержать текст ошибки
		return data, reqErr
	}
	metrics.ObserveNetworkRequest("funpay", op, method, start, nil)
	return data, nil
}
