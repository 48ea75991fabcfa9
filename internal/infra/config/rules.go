package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// Rules описывает правила автоматизации из YAML файла.
type Rules struct {
	Greetings    GreetingRules    `yaml:"greetings"`
	AutoResponse AutoResponseRule `yaml:"auto_response"`
	AutoDelivery DeliveryRules    `yaml:"auto_delivery"`
	OrderConfirm OrderConfirmRule `yaml:"order_confirm"`
	Reviews      ReviewRules      `yaml:"review_replies"`
	Raise        RaiseRules       `yaml:"raise"`
	LotState     LotStateRules    `yaml:"lot_state"`
}

// GreetingRules — приветствие новых покупателей.
type GreetingRules struct {
	Enabled      bool   `yaml:"enabled"`
	Text         string `yaml:"text"`
	// CooldownDays — сколько дней молчания собеседника нужно для повторного приветствия. 0 — приветствовать один раз.
	CooldownDays int    `yaml:"cooldown_days"`
}

// Cooldown возвращает окно, в течение которого чат считается знакомым.
func (g GreetingRules) Cooldown() time.Duration {
	return time.Duration(g.CooldownDays) * 24 * time.Hour
}

// AutoResponseRule — ответы на команды.
type AutoResponseRule struct {
	Enabled  bool          `yaml:"enabled"`
	Commands []CommandRule `yaml:"commands"`
}

// CommandRule описывает одну команду.
type CommandRule struct {
	Triggers     []string `yaml:"triggers"`
	Response     string   `yaml:"response"`
	Notify       bool     `yaml:"notify"`
	NotifyText   string   `yaml:"notify_text"`
	OwnerOnly    bool     `yaml:"owner_only"`
	DisableReply bool     `yaml:"disable_reply"`
}

// DeliveryRules — автовыдача товаров.
type DeliveryRules struct {
	Enabled       bool      `yaml:"enabled"`
	MultiDelivery bool      `yaml:"multi_delivery"`
	TestCommand   string    `yaml:"test_command"`
	Lots          []LotRule `yaml:"lots"`
}

// LotRule сопоставляет название лота с текстом выдачи.
type LotRule struct {
	Title        string `yaml:"title"`
	Response     string `yaml:"response"`
	ProductsFile string `yaml:"products_file"`
	DisableMulti bool   `yaml:"disable_multi"`

	// OfferID и NodeID привязывают правило к лоту на площадке для включения и отключения.
	OfferID            int64 `yaml:"offer_id"`
	NodeID             int64 `yaml:"node_id"`
	DisableAutoDisable bool  `yaml:"disable_auto_disable"`
	DisableAutoRestore bool  `yaml:"disable_auto_restore"`
}

// Managed сообщает, привязано ли правило к лоту на площадке.
func (l LotRule) Managed() bool {
	return l.OfferID > 0
}

// OrderConfirmRule — ответ на подтверждение заказа.
type OrderConfirmRule struct {
	Enabled bool   `yaml:"enabled"`
	Text    string `yaml:"text"`
}

// ReviewRules — ответы на отзывы по количеству звёзд.
type ReviewRules struct {
	Enabled bool           `yaml:"enabled"`
	Stars   map[int]string `yaml:"stars"`
}

// RaiseRules — периодическое поднятие лотов.
type RaiseRules struct {
	Enabled    bool            `yaml:"enabled"`
	Categories []RaiseCategory `yaml:"categories"`
}

// RaiseCategory — категория (игра) и любая её подкатегория с лотами аккаунта.
type RaiseCategory struct {
	GameID  int64   `yaml:"game_id"`
	NodeID  int64   `yaml:"node_id"`
	Exclude []int64 `yaml:"exclude"`
}

// LotStateRules — отключение лотов без товаров и включение после пополнения.
type LotStateRules struct {
	AutoDisable bool `yaml:"auto_disable"`
	AutoRestore bool `yaml:"auto_restore"`
}

// Enabled сообщает, включено ли хоть одно из действий.
func (l LotStateRules) Enabled() bool {
	return l.AutoDisable || l.AutoRestore
}

// LoadRules читает правила из файла. Отсутствующий файл даёт пустые правила.
func LoadRules(path string) (Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ParseRules(nil)
		}
		return Rules{}, fmt.Errorf("чтение правил: %w", err)
	}
	return ParseRules(data)
}

// ParseRules разбирает YAML и проверяет правила.
func ParseRules(data []byte) (Rules, error) {
	var rules Rules
	if err := yaml.UnmarshalStrict(data, &rules); err != nil {
		return Rules{}, fmt.Errorf("разбор правил: %w", err)
	}
	if rules.AutoDelivery.TestCommand == "" {
		rules.AutoDelivery.TestCommand = "!автовыдача"
	}
	if err := rules.Validate(); err != nil {
		return Rules{}, err
	}
	return rules, nil
}

// Validate проверяет согласованность правил.
func (r Rules) Validate() error {
	if r.Greetings.Enabled && strings.TrimSpace(r.Greetings.Text) == "" {
		return errors.New("greetings: пустой текст приветствия")
	}
	if r.Greetings.CooldownDays < 0 {
		return errors.New("greetings: отрицательный cooldown_days")
	}
	seen := make(map[string]struct{})
	for i, cmd := range r.AutoResponse.Commands {
		if len(cmd.Triggers) == 0 {
			return fmt.Errorf("auto_response: команда %d без триггеров", i)
		}
		for _, trigger := range cmd.Triggers {
			key := NormalizeCommand(trigger)
			if key == "" {
				return fmt.Errorf("auto_response: пустой триггер в команде %d", i)
			}
			if _, dup := seen[key]; dup {
				return fmt.Errorf("auto_response: триггер %q указан дважды", trigger)
			}
			seen[key] = struct{}{}
		}
		if cmd.Notify && strings.TrimSpace(cmd.NotifyText) == "" {
			return fmt.Errorf("auto_response: команда %q требует notify_text", cmd.Triggers[0])
		}
	}
	for i, lot := range r.AutoDelivery.Lots {
		if strings.TrimSpace(lot.Title) == "" {
			return fmt.Errorf("auto_delivery: лот %d без названия", i)
		}
		if strings.Contains(lot.Response, "$product") && lot.ProductsFile == "" {
			return fmt.Errorf("auto_delivery: лот %q использует $product без products_file", lot.Title)
		}
		if lot.OfferID < 0 || (lot.OfferID > 0 && lot.NodeID <= 0) {
			return fmt.Errorf("auto_delivery: лот %q требует offer_id и node_id", lot.Title)
		}
	}
	if r.Raise.Enabled && len(r.Raise.Categories) == 0 {
		return errors.New("raise: не указаны категории")
	}
	for i, c := range r.Raise.Categories {
		if c.GameID <= 0 || c.NodeID <= 0 {
			return fmt.Errorf("raise: категория %d требует game_id и node_id", i)
		}
	}
	for stars := range r.Reviews.Stars {
		if stars < 1 || stars > 5 {
			return fmt.Errorf("review_replies: недопустимое число звёзд %d", stars)
		}
	}
	return nil
}

// Command ищет команду по тексту сообщения.
func (r Rules) Command(text string) (CommandRule, bool) {
	key := NormalizeCommand(text)
	if key == "" {
		return CommandRule{}, false
	}
	for _, cmd := range r.AutoResponse.Commands {
		for _, trigger := range cmd.Triggers {
			if NormalizeCommand(trigger) == key {
				return cmd, true
			}
		}
	}
	return CommandRule{}, false
}

// Lot ищет правило автовыдачи по названию заказа.
func (r Rules) Lot(title string) (LotRule, bool) {
	key := strings.ToLower(strings.TrimSpace(title))
	for _, lot := range r.AutoDelivery.Lots {
		if strings.ToLower(strings.TrimSpace(lot.Title)) == key {
			return lot, true
		}
	}
	return LotRule{}, false
}

// ManagedLots возвращает правила, привязанные к лотам площадки.
func (r Rules) ManagedLots() []LotRule {
	var out []LotRule
	for _, lot := range r.AutoDelivery.Lots {
		if lot.Managed() {
			out = append(out, lot)
		}
	}
	return out
}

// NormalizeCommand приводит текст команды к ключу поиска.
func NormalizeCommand(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}
