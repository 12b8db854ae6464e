package service

import (
	"math/rand"
	"strings"
	"sync"
	"time"
)

const (
	codeDigits = "0123456789"
	// The letter alphabet is deliberately smaller than the digit
	// alphabet, so swapping a letter slot for a digit slot grows the
	// number of distinct codes.
	codeLetters = "ABCDEFGH"
)

// codeGenerator produces short mixed alphanumeric room codes. Codes mix
// digits with a random number of letters; when allocation keeps
// colliding the generator drops the letters entirely, which densifies
// the remaining namespace.
type codeGenerator struct {
	mu     sync.Mutex
	rng    *rand.Rand
	length int
}

func newCodeGenerator(length int) *codeGenerator {
	if length <= 0 {
		length = 4
	}
	return &codeGenerator{
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		length: length,
	}
}

// Next returns a candidate code for the given retry attempt. Once half
// the retry budget is spent the candidate is all digits.
func (g *codeGenerator) Next(attempt, budget int) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	maxLetters := g.length / 2
	letters := g.rng.Intn(maxLetters + 1)
	if budget > 0 && attempt*2 >= budget {
		letters = 0
	}

	var b strings.Builder
	b.Grow(g.length)
	letterSlots := make(map[int]bool, letters)
	for len(letterSlots) < letters {
		letterSlots[g.rng.Intn(g.length)] = true
	}
	for i := 0; i < g.length; i++ {
		if letterSlots[i] {
			b.WriteByte(codeLetters[g.rng.Intn(len(codeLetters))])
		} else {
			b.WriteByte(codeDigits[g.rng.Intn(len(codeDigits))])
		}
	}
	return b.String()
}
