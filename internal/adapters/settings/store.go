package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"funpay-agent/internal/domain"
)

const (
	keyAuthorized = "settings:authorized_chats"
	keyBlockList  = "settings:block_list"
	prefixNotify  = "settings:notify:"
	prefixKnown   = "settings:known_chat:"
)

// Store хранит настройки агента поверх domain.Cache: авторизованные чаты
// бота, переключатели уведомлений, известных собеседников и чёрный список.
type Store struct {
	cache domain.Cache
	mu    sync.Mutex
}

// NewStore создаёт хранилище настроек.
func NewStore(cache domain.Cache) *Store {
	return &Store{cache: cache}
}

func (s *Store) readJSON(key string, dst any) error {
	data, err := s.cache.Get(key)
	if errors.Is(err, domain.ErrCacheMiss) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("settings: чтение %s: %w", key, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("settings: разбор %s: %w", key, err)
	}
	return nil
}

func (s *Store) writeJSON(key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if err := s.cache.Set(key, data, 0); err != nil {
		return fmt.Errorf("settings: запись %s: %w", key, err)
	}
	return nil
}

// Authorize добавляет чат бота в список получателей уведомлений.
func (s *Store) Authorize(chatID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var chats []int64
	if err := s.readJSON(keyAuthorized, &chats); err != nil {
		return err
	}
	for _, id := range chats {
		if id == chatID {
			return nil
		}
	}
	return s.writeJSON(keyAuthorized, append(chats, chatID))
}

// AuthorizedChats возвращает авторизованные чаты бота.
func (s *Store) AuthorizedChats() ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var chats []int64
	if err := s.readJSON(keyAuthorized, &chats); err != nil {
		return nil, err
	}
	return chats, nil
}

// IsAuthorized сообщает, авторизован ли чат. Ошибка хранилища считается отказом.
func (s *Store) IsAuthorized(chatID int64) bool {
	chats, err := s.AuthorizedChats()
	if err != nil {
		return false
	}
	for _, id := range chats {
		if id == chatID {
			return true
		}
	}
	return false
}

func notifyKey(chatID int64, kind domain.NotificationKind) string {
	return prefixNotify + strconv.FormatInt(chatID, 10) + ":" + string(kind)
}

// NotificationEnabled возвращает состояние переключателя, по умолчанию значение категории.
func (s *Store) NotificationEnabled(chatID int64, kind domain.NotificationKind) bool {
	data, err := s.cache.Get(notifyKey(chatID, kind))
	if err != nil {
		spec, ok := domain.LookupNotification(kind)
		return ok && spec.Default
	}
	return string(data) == "1"
}

// SetNotification включает или выключает категорию уведомлений для чата.
func (s *Store) SetNotification(chatID int64, kind domain.NotificationKind, enabled bool) error {
	value := "0"
	if enabled {
		value = "1"
	}
	return s.cache.Set(notifyKey(chatID, kind), []byte(value), 0)
}

// ToggleNotification переключает категорию и возвращает новое состояние.
func (s *Store) ToggleNotification(chatID int64, kind domain.NotificationKind) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	enabled := !s.NotificationEnabled(chatID, kind)
	if err := s.SetNotification(chatID, kind, enabled); err != nil {
		return false, err
	}
	return enabled, nil
}

// Block добавляет пользователя площадки в чёрный список.
func (s *Store) Block(username string) (bool, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return false, errors.New("settings: пустое имя пользователя")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var names []string
	if err := s.readJSON(keyBlockList, &names); err != nil {
		return false, err
	}
	for _, name := range names {
		if strings.EqualFold(name, username) {
			return false, nil
		}
	}
	return true, s.writeJSON(keyBlockList, append(names, username))
}

// Unblock убирает пользователя из чёрного списка.
func (s *Store) Unblock(username string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var names []string
	if err := s.readJSON(keyBlockList, &names); err != nil {
		return false, err
	}
	kept := names[:0]
	removed := false
	for _, name := range names {
		if strings.EqualFold(name, strings.TrimSpace(username)) {
			removed = true
			continue
		}
		kept = append(kept, name)
	}
	if !removed {
		return false, nil
	}
	return true, s.writeJSON(keyBlockList, kept)
}

// BlockList возвращает чёрный список в алфавитном порядке.
func (s *Store) BlockList() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var names []string
	if err := s.readJSON(keyBlockList, &names); err != nil {
		return nil, err
	}
	sort.Slice(names, func(i, j int) bool { return strings.ToLower(names[i]) < strings.ToLower(names[j]) })
	return names, nil
}

// IsBlocked проверяет пользователя по чёрному списку.
func (s *Store) IsBlocked(username string) bool {
	names, err := s.BlockList()
	if err != nil {
		return false
	}
	for _, name := range names {
		if strings.EqualFold(name, username) {
			return true
		}
	}
	return false
}

// RememberChat отмечает чат площадки как известный на ttl (0 — навсегда) и продлевает
// отметку при каждом вызове. Возвращает true, если чат не встречался или отметка истекла.
func (s *Store) RememberChat(chatID int64, ttl time.Duration) (bool, error) {
	key := prefixKnown + strconv.FormatInt(chatID, 10)
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.cache.Get(key)
	first := errors.Is(err, domain.ErrCacheMiss)
	if err != nil && !first {
		return false, fmt.Errorf("settings: чтение %s: %w", key, err)
	}
	if err := s.cache.Set(key, []byte("1"), ttl); err != nil {
		return false, fmt.Errorf("settings: запись %s: %w", key, err)
	}
	return first, nil
}
