// Package embedding turns normalized text into validated fixed-length vectors
// through an external provider.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// Provider is an external embedding API.
type Provider interface {
	Embed(ctx context.Context, text string) (Result, error)
	Model() string
}

// Result is one embedding returned by a provider.
type Result struct {
	Vector       []float32
	Model        string
	PromptTokens int
}

var (
	// ErrTextTooShort rejects input below the minimum length. Never retried.
	ErrTextTooShort = errors.New("text too short to embed")
	// ErrInvalidVector marks a provider response that failed validation. Never retried.
	ErrInvalidVector = errors.New("invalid embedding vector")
)

// ValidateVector checks length, finiteness and that at least one value is non-zero.
// dims <= 0 skips the length check.
func ValidateVector(v []float32, dims int) error {
	if len(v) == 0 {
		return fmt.Errorf("%w: empty", ErrInvalidVector)
	}
	if dims > 0 && len(v) != dims {
		return fmt.Errorf("%w: got %d dimensions, want %d", ErrInvalidVector, len(v), dims)
	}
	allZero := true
	for i, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%w: non-finite value at index %d", ErrInvalidVector, i)
		}
		if x != 0 {
			allZero = false
		}
	}
	if allZero {
		return fmt.Errorf("%w: all values are zero", ErrInvalidVector)
	}
	return nil
}
