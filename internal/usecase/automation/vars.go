package automation

import (
	"strconv"
	"strings"
	"time"

	"funpay-agent/internal/domain"
)

// Vars — значения переменных шаблона вида $name.
type Vars map[string]string

func timeVars(now time.Time) Vars {
	return Vars{
		"$date": now.Format("02.01.2006"),
		"$time": now.Format("15:04"),
	}
}

// MessageVars возвращает переменные для ответа на сообщение.
func MessageVars(msg domain.Message, now time.Time) Vars {
	v := timeVars(now)
	v["$username"] = msg.ChatName
	v["$chat_name"] = msg.ChatName
	v["$chat_id"] = strconv.FormatInt(msg.ChatID, 10)
	v["$message_text"] = msg.String()
	return v
}

// OrderVars возвращает переменные для текстов по заказу.
func OrderVars(order domain.OrderShortcut, now time.Time) Vars {
	v := timeVars(now)
	v["$username"] = order.BuyerUsername
	v["$order_id"] = order.ID
	v["$order_title"] = order.Title()
	v["$order_price"] = order.Price.String()
	return v
}

// Render подставляет переменные в шаблон. Неизвестные переменные остаются как есть.
func Render(template string, vars Vars) string {
	if len(vars) == 0 {
		return template
	}
	pairs := make([]string, 0, len(vars)*2)
	for name, value := range vars {
		pairs = append(pairs, name, value)
	}
	return strings.NewReplacer(pairs...).Replace(template)
}

// ReviewVars возвращает переменные для ответа на отзыв.
func ReviewVars(order domain.Order, now time.Time) Vars {
	v := timeVars(now)
	v["$username"] = order.BuyerUsername
	v["$order_id"] = order.ID
	v["$order_title"] = order.ShortDescription
	v["$order_price"] = order.Sum.String()
	return v
}

func (v Vars) with(name, value string) Vars {
	out := make(Vars, len(v)+1)
	for k, val := range v {
		out[k] = val
	}
	out[name] = value
	return out
}
