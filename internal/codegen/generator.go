// Package codegen issues the opaque registration codes members present to
// complete a training.
//
// A code is derived from the member's identity string: the identity is shifted
// by one code point, joined with a random alphanumeric run, shuffled, and
// shifted again by two. Candidates are checked against the persisted codes and
// regenerated on collision. The database uniqueness constraint stays the final
// arbiter; the check here only keeps the retry inside generation.
package codegen

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"github.com/ikatan-anggota/backend/internal/apperr"
)

const (
	// RandomRunLength is the number of random alphanumeric characters per candidate.
	RandomRunLength = 9
	// DefaultMaxAttempts bounds collision retries before generation gives up.
	DefaultMaxAttempts = 10

	identityShift = 1
	codeShift     = 2
	alphabet      = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

// Checker reports whether a code is already persisted.
type Checker interface {
	CodeExists(ctx context.Context, code string) (bool, error)
}

// Source yields uniform integers in [0, n).
type Source interface {
	IntN(n int) int
}

// Generator produces collision-checked registration codes. Safe for concurrent use
// when its Source is.
type Generator struct {
	src         Source
	maxAttempts int
}

// Option configures a Generator.
type Option func(*Generator)

// WithSource replaces the crypto/rand backed source (tests use a seeded one).
func WithSource(src Source) Option {
	return func(g *Generator) { g.src = src }
}

// New creates a Generator that tries at most maxAttempts candidates.
func New(maxAttempts int, opts ...Option) *Generator {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	g := &Generator{src: cryptoSource{}, maxAttempts: maxAttempts}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Generate returns a code unique against checker at the time of the check, together
// with the number of candidates tried. An empty identity fails fast with a
// configuration error; exhausting all attempts is an infrastructure error.
func (g *Generator) Generate(ctx context.Context, identity string, checker Checker) (string, int, error) {
	if strings.TrimSpace(identity) == "" {
		return "", 0, apperr.Configuration("member identity number is empty")
	}
	base := shift(identity, identityShift)

	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		candidate := g.candidate(base)
		exists, err := checker.CodeExists(ctx, candidate)
		if err != nil {
			return "", attempt, apperr.Infrastructure("check code uniqueness", err)
		}
		if !exists {
			return candidate, attempt, nil
		}
	}
	return "", g.maxAttempts, apperr.Infrastructure("generate code",
		fmt.Errorf("no unique code after %d attempts", g.maxAttempts))
}

func (g *Generator) candidate(shiftedIdentity string) string {
	runes := []rune(shiftedIdentity + g.randomRun(RandomRunLength))
	for i := len(runes) - 1; i > 0; i-- {
		j := g.src.IntN(i + 1)
		runes[i], runes[j] = runes[j], runes[i]
	}
	return shift(string(runes), codeShift)
}

func (g *Generator) randomRun(n int) string {
	var b strings.Builder
	b.Grow(n)
	for i := 0; i < n; i++ {
		b.WriteByte(alphabet[g.src.IntN(len(alphabet))])
	}
	return b.String()
}

func shift(s string, offset rune) string {
	return strings.Map(func(r rune) rune { return r + offset }, s)
}

type cryptoSource struct{}

func (cryptoSource) IntN(n int) int {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		panic(fmt.Sprintf("codegen: crypto/rand failed: %v", err))
	}
	return int(v.Int64())
}
