package extractor

import (
	"context"
	"strings"
	"unicode/utf8"
)

// PlainText passes UTF-8 text through, repairing invalid byte sequences so
// downstream rune-offset chunking stays well defined.
type PlainText struct{}

func NewPlainText() *PlainText {
	return &PlainText{}
}

func (p *PlainText) Extract(_ context.Context, data []byte, _, _ string) (string, error) {
	if len(data) == 0 {
		return "", nil
	}
	if utf8.Valid(data) {
		return string(data), nil
	}
	return strings.ToValidUTF8(string(data), "�"), nil
}
