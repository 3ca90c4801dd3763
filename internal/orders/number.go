package orders

import (
	"context"
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"time"
)

const (
	orderNumberPrefix         = "ORD-"
	defaultOrderNumberRetries = 5
)

// NumberGenerator issues human-readable order numbers with a bounded
// uniqueness retry and a timestamp fallback.
type NumberGenerator struct {
	maxAttempts int
	now         func() time.Time
	random      func() (string, error)
}

// NewNumberGenerator builds a generator; maxAttempts <= 0 uses the default of 5.
func NewNumberGenerator(maxAttempts int) *NumberGenerator {
	if maxAttempts <= 0 {
		maxAttempts = defaultOrderNumberRetries
	}
	return &NumberGenerator{maxAttempts: maxAttempts, now: time.Now, random: randomSuffix}
}

// Next returns the first candidate exists reports as free.
func (g *NumberGenerator) Next(ctx context.Context, exists func(context.Context, string) (bool, error)) (string, error) {
	for attempt := 0; attempt < g.maxAttempts; attempt++ {
		suffix, err := g.random()
		if err != nil {
			return "", fmt.Errorf("generate order number: %w", err)
		}
		candidate := orderNumberPrefix + suffix
		taken, err := exists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("check order number: %w", err)
		}
		if !taken {
			return candidate, nil
		}
	}
	return fmt.Sprintf("%s%d", orderNumberPrefix, g.now().UnixMilli()), nil
}

// randomSuffix encodes 5 random bytes as exactly 8 base32 characters.
func randomSuffix() (string, error) {
	buf := make([]byte, 5)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base32.StdEncoding.EncodeToString(buf), nil
}
