package domain

import (
	"strings"
	"time"
	"unicode"
)

// Item represents a single to-do record
type Item struct {
	ID        int64     `json:"id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// NormalizeText trims surrounding whitespace, including a byte order mark,
// and leaves everything else byte-for-byte as submitted.
// It returns ErrValidation when nothing is left.
func NormalizeText(text string) (string, error) {
	text = strings.TrimFunc(text, isTrimmable)
	if text == "" {
		return "", ErrValidation
	}
	return text, nil
}

func isTrimmable(r rune) bool {
	return unicode.IsSpace(r) || r == '\ufeff'
}
