package telegramutil

import "strings"

const ParseModeMarkdown = "Markdown"

// Legacy Markdown only reserves these outside of entities.
var markdownEscapes = map[byte]bool{
	'_': true,
	'*': true,
	'`': true,
	'[': true,
}

func EscapeMarkdown(text string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	var b strings.Builder
	b.Grow(len(text) + 8)
	for i := 0; i < len(text); i++ {
		ch := text[i]
		if markdownEscapes[ch] {
			b.WriteByte('\\')
		}
		b.WriteByte(ch)
	}
	return b.String()
}
