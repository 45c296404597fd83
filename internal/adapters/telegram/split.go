package telegram

import "strings"

// MessageLimit — максимальная длина сообщения Telegram в символах.
const MessageLimit = 4096

// Split режет текст на части не длиннее limit символов.
// Сначала ищется перевод строки, затем пробел, и только потом режется по границе.
func Split(text string, limit int) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	if limit <= 0 {
		limit = MessageLimit
	}

	runes := []rune(trimmed)
	var parts []string
	for len(runes) > 0 {
		if len(runes) <= limit {
			parts = appendChunk(parts, string(runes))
			break
		}
		cut := lastIndex(runes[:limit], '\n')
		if cut <= 0 {
			cut = lastIndex(runes[:limit], ' ')
		}
		if cut <= 0 {
			cut = limit
		}
		parts = appendChunk(parts, string(runes[:cut]))
		runes = runes[cut:]
	}
	return parts
}

func appendChunk(parts []string, chunk string) []string {
	chunk = strings.TrimSpace(chunk)
	if chunk == "" {
		return parts
	}
	return append(parts, chunk)
}

func lastIndex(runes []rune, r rune) int {
	for i := len(runes) - 1; i >= 0; i-- {
		if runes[i] == r {
			return i
		}
	}
	return -1
}
