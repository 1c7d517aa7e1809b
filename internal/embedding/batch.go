package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/spherical/slide-pipeline/internal/domain"
)

// Outcome is the per-item result of an embedding attempt. Exactly one of
// Vector and Err is set.
type Outcome struct {
	Vector []float64
	Err    error
}

// OK reports whether the attempt produced a vector.
func (o Outcome) OK() bool {
	return o.Err == nil
}

// errNoVector marks an item the service answered without a vector.
var errNoVector = errors.New("no embedding returned")

// EmbedBatch embeds texts with one batch call. When the batch call fails it
// falls back to one call per text. The result always has len(texts)
// entries; batchFailed reports whether the fallback ran.
func EmbedBatch(ctx context.Context, e Embedder, texts []string) (outcomes []Outcome, batchFailed bool) {
	outcomes = make([]Outcome, len(texts))
	if len(texts) == 0 {
		return outcomes, false
	}

	vectors, err := e.Embed(ctx, texts)
	if err == nil {
		for i := range texts {
			outcomes[i] = outcomeAt(vectors, i)
		}
		return outcomes, false
	}

	for i, text := range texts {
		single, err := e.Embed(ctx, []string{text})
		if err != nil {
			outcomes[i] = Outcome{Err: err}
			continue
		}
		outcomes[i] = outcomeAt(single, 0)
	}
	return outcomes, true
}

func outcomeAt(vectors [][]float64, i int) Outcome {
	if i >= len(vectors) || len(vectors[i]) == 0 {
		return Outcome{Err: errNoVector}
	}
	return Outcome{Vector: vectors[i]}
}

// ValidateVector checks that v is non-empty, has exactly dimension elements
// and that every element is finite once narrowed to float32. It returns the
// narrowed vector.
func ValidateVector(v []float64, dimension int) ([]float32, error) {
	if len(v) == 0 {
		return nil, domain.ValidationError("empty vector", nil)
	}
	if len(v) != dimension {
		return nil, domain.ValidationError(fmt.Sprintf("vector has dimension %d, want %d", len(v), dimension), nil)
	}

	out := make([]float32, len(v))
	for i, x := range v {
		f := float32(x)
		if math.IsNaN(x) || math.IsInf(float64(f), 0) {
			return nil, domain.ValidationError(fmt.Sprintf("vector element %d is not finite", i), nil)
		}
		out[i] = f
	}
	return out, nil
}
