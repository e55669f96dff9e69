package market

import (
	"strings"
	"unicode/utf8"

	md "github.com/JohannesKaufmann/html-to-markdown"
)

const excerptLength = 280

// newsExcerpt converts an HTML article body to markdown and cuts it to a
// short excerpt on a word boundary.
func newsExcerpt(converter *md.Converter, body string) string {
	if strings.TrimSpace(body) == "" {
		return ""
	}

	text := body
	if strings.Contains(body, "<") {
		if converted, err := converter.ConvertString(body); err == nil {
			text = converted
		}
	}
	text = strings.Join(strings.Fields(text), " ")

	if utf8.RuneCountInString(text) <= excerptLength {
		return text
	}
	runes := []rune(text)[:excerptLength]
	cut := string(runes)
	if idx := strings.LastIndex(cut, " "); idx > excerptLength/2 {
		cut = cut[:idx]
	}
	return cut + "..."
}
