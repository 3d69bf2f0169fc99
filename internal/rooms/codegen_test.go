package rooms

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubChecker reports every code as taken except those in free.
type stubChecker struct {
	free map[string]bool
}

func (c *stubChecker) CodeExists(ctx context.Context, code string) (bool, error) {
	return !c.free[code], nil
}

// seqRand replays a fixed sequence of draws.
func seqRand(draws ...int) func(n int) int {
	i := 0
	return func(n int) int {
		d := draws[i%len(draws)]
		i++
		return d % n
	}
}

func TestFormatCode(t *testing.T) {
	assert.Equal(t, "100000", FormatCode(0))
	assert.Equal(t, "100042", FormatCode(42))
	assert.Equal(t, "999999", FormatCode(codeSpace-1))
	assert.Len(t, FormatCode(0), CodeLength)
}

func TestGenerateReturnsFreeCode(t *testing.T) {
	store := NewMemoryStore()
	gen := NewCodeGenerator(store)

	code, err := gen.Generate(context.Background())
	require.NoError(t, err)
	assert.Len(t, code, CodeLength)
	assert.GreaterOrEqual(t, code, "100000")
	assert.LessOrEqual(t, code, "999999")
}

func TestGenerateSkipsTakenCodes(t *testing.T) {
	gen := NewCodeGenerator(&stubChecker{free: map[string]bool{FormatCode(7): true}}).
		WithRand(seqRand(5, 5, 7))

	code, err := gen.Generate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, FormatCode(7), code)
}

func TestGenerateNearExhaustion(t *testing.T) {
	// Two codes left in the whole space. With bounded random attempts the
	// generator may or may not land on one; either outcome is a clean
	// result, never a hang.
	free := map[string]bool{FormatCode(100): true, FormatCode(200): true}
	gen := NewCodeGenerator(&stubChecker{free: free}).
		WithRand(seqRand(1, 2, 3, 4, 5, 6, 7, 8, 9, 200))

	code, err := gen.Generate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, FormatCode(200), code)
}

func TestGenerateExhaustedSpace(t *testing.T) {
	gen := NewCodeGenerator(&stubChecker{free: map[string]bool{}})

	code, err := gen.Generate(context.Background())
	assert.ErrorIs(t, err, ErrCodeExhausted)
	assert.Empty(t, code)
}

func TestGenerateBoundedAttempts(t *testing.T) {
	calls := 0
	gen := NewCodeGenerator(&stubChecker{free: map[string]bool{}}).
		WithAttempts(3).
		WithRand(func(n int) int {
			calls++
			return calls
		})

	_, err := gen.Generate(context.Background())
	assert.ErrorIs(t, err, ErrCodeExhausted)
	assert.Equal(t, 3, calls)
}
