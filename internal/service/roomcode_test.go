package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestCodeGenerator_Length(t *testing.T) {
	g := newCodeGenerator(4)
	for i := 0; i < 100; i++ {
		code := g.Next(0, 10)
		assert.Len(t, code, 4)
	}
}

func TestCodeGenerator_Charset(t *testing.T) {
	g := newCodeGenerator(4)
	for i := 0; i < 200; i++ {
		code := g.Next(0, 10)
		for _, ch := range code {
			assert.True(t,
				strings.ContainsRune(codeDigits, ch) || strings.ContainsRune(codeLetters, ch),
				"unexpected character %q in code %q", ch, code)
		}
	}
}

func TestCodeGenerator_LateAttemptsAllDigits(t *testing.T) {
	g := newCodeGenerator(4)
	for i := 0; i < 100; i++ {
		code := g.Next(5, 10)
		for _, ch := range code {
			assert.True(t, strings.ContainsRune(codeDigits, ch),
				"expected all digits after half the budget, got %q", code)
		}
	}
}

func TestCodeGenerator_DefaultLength(t *testing.T) {
	g := newCodeGenerator(0)
	assert.Len(t, g.Next(0, 10), 4)
}

func TestCodeGenerator_Properties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		length := rapid.IntRange(1, 8).Draw(t, "length")
		budget := rapid.IntRange(1, 20).Draw(t, "budget")
		attempt := rapid.IntRange(0, 19).Draw(t, "attempt")

		g := newCodeGenerator(length)
		code := g.Next(attempt, budget)

		if len(code) != length {
			t.Fatalf("code %q has length %d, want %d", code, len(code), length)
		}
		letters := 0
		for _, ch := range code {
			switch {
			case strings.ContainsRune(codeLetters, ch):
				letters++
			case strings.ContainsRune(codeDigits, ch):
			default:
				t.Fatalf("code %q contains unexpected character %q", code, ch)
			}
		}
		if letters > length/2 {
			t.Fatalf("code %q has %d letters, max is %d", code, letters, length/2)
		}
		if attempt*2 >= budget && letters != 0 {
			t.Fatalf("code %q should be all digits at attempt %d of %d", code, attempt, budget)
		}
	})
}
