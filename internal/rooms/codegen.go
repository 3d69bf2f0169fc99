// internal/rooms/codegen.go
package rooms

import (
	"context"
	"fmt"
	"math/rand"
)

// Room codes are fixed six-digit strings. The range starts at 100000 so
// a code never carries a leading zero that display layers could strip.
const (
	codeMin   = 100000
	codeSpace = 900000

	// CodeLength is the fixed length of every room code.
	CodeLength = 6

	defaultCodeAttempts = 10
)

// CodeChecker is the slice of the store the generator needs.
type CodeChecker interface {
	CodeExists(ctx context.Context, code string) (bool, error)
}

// CodeGenerator draws collision-checked room codes. Uniqueness is still
// ultimately enforced by the store's unique index; a racing generator
// that steals a drawn code surfaces as ErrCodeTaken on insert and the
// caller regenerates.
type CodeGenerator struct {
	store    CodeChecker
	attempts int

	// intn is the randomness source, injectable for deterministic tests.
	intn func(n int) int
}

func NewCodeGenerator(store CodeChecker) *CodeGenerator {
	return &CodeGenerator{
		store:    store,
		attempts: defaultCodeAttempts,
		intn:     rand.Intn,
	}
}

// WithRand replaces the randomness source. Returns the generator for chaining.
func (g *CodeGenerator) WithRand(intn func(n int) int) *CodeGenerator {
	g.intn = intn
	return g
}

// WithAttempts overrides the bounded attempt count.
func (g *CodeGenerator) WithAttempts(n int) *CodeGenerator {
	g.attempts = n
	return g
}

// Generate draws candidates uniformly from the code space and returns the
// first one unknown to the store. After the bounded attempt count it
// gives up with ErrCodeExhausted rather than looping forever.
func (g *CodeGenerator) Generate(ctx context.Context) (string, error) {
	for attempt := 0; attempt < g.attempts; attempt++ {
		code := FormatCode(g.intn(codeSpace))
		exists, err := g.store.CodeExists(ctx, code)
		if err != nil {
			return "", fmt.Errorf("code uniqueness check: %w", err)
		}
		if !exists {
			return code, nil
		}
	}
	return "", ErrCodeExhausted
}

// FormatCode maps an offset in [0, codeSpace) to its six-digit code.
func FormatCode(offset int) string {
	return fmt.Sprintf("%06d", codeMin+offset)
}
