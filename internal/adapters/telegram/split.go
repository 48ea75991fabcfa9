package telegram

import (
	"html"
	"strings"
	"unicode"
)

// MessageLimit — максимальная длина текста одного сообщения бота в символах.
const MessageLimit = 4096

// SplitMessage режет текст на части не длиннее MessageLimit.
func SplitMessage(text string) []string {
	return Split(text, MessageLimit)
}

// Split режет текст на части не длиннее limit символов. Разрез ставится на
// последнем переводе строки в окне, затем на последнем пробеле, затем по limit.
func Split(text string, limit int) []string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) == 0 {
		return nil
	}
	if limit <= 0 || len(runes) <= limit {
		return []string{string(runes)}
	}

	var parts []string
	for len(runes) > 0 {
		if len(runes) <= limit {
			parts = appendChunk(parts, runes)
			break
		}
		cut := lastIndex(runes[:limit+1], func(r rune) bool { return r == '\n' })
		if cut <= 0 {
			cut = lastIndex(runes[:limit+1], unicode.IsSpace)
		}
		if cut <= 0 {
			cut = limit
		}
		parts = appendChunk(parts, runes[:cut])
		runes = []rune(strings.TrimLeftFunc(string(runes[cut:]), unicode.IsSpace))
	}
	return parts
}

func appendChunk(parts []string, chunk []rune) []string {
	trimmed := strings.TrimSpace(string(chunk))
	if trimmed == "" {
		return parts
	}
	return append(parts, trimmed)
}

func lastIndex(runes []rune, match func(rune) bool) int {
	for i := len(runes) - 1; i >= 0; i-- {
		if match(runes[i]) {
			return i
		}
	}
	return -1
}

// Escape экранирует пользовательский текст для parse_mode=HTML.
func Escape(text string) string {
	return html.EscapeString(text)
}
