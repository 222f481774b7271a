// Package analyzer содержит заглушку анализатора изображений.
// Настоящей модели нет: состояние выбирается по размеру изображения из фиксированного списка.
package analyzer

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"  // регистрация формата
	_ "image/jpeg" // регистрация формата
	_ "image/png"  // регистрация формата
	"math"
	"math/rand/v2"
	"os"
	"sync"
	"time"

	"github.com/magabrotheeeer/zdravscan/internal/models"
)

// Разброс и границы уверенности.
const (
	jitter        = 0.1
	minConfidence = 0.5
	maxConfidence = 0.99
)

// Stub - анализатор-заглушка. Безопасен для конкурентного использования.
type Stub struct {
	delay time.Duration

	mu  sync.Mutex
	rnd *rand.Rand
}

// Option настраивает Stub.
type Option func(*Stub)

// WithSeed фиксирует генератор случайных чисел.
func WithSeed(seed uint64) Option {
	return func(s *Stub) { s.rnd = rand.New(rand.NewPCG(seed, seed)) }
}

// NewStub создаёт заглушку, которая отвечает не раньше чем через delay.
func NewStub(delay time.Duration, opts ...Option) *Stub {
	s := &Stub{
		delay: delay,
		rnd:   rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Analyze возвращает одно из заранее заданных состояний для файла inputRef.
func (s *Stub) Analyze(ctx context.Context, inputRef string) (*models.AnalysisResult, error) {
	const op = "analyzer.Analyze"

	f, err := os.Open(inputRef)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	cfg, _, decodeErr := image.DecodeConfig(f)
	f.Close()

	if s.delay > 0 {
		t := time.NewTimer(s.delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%s: %w", op, ctx.Err())
		case <-t.C:
		}
	}

	s.mu.Lock()
	var idx int
	if decodeErr == nil {
		idx = (cfg.Width + cfg.Height) % len(conditions)
	} else {
		idx = s.rnd.IntN(len(conditions))
	}
	delta := (s.rnd.Float64()*2 - 1) * jitter
	s.mu.Unlock()

	c := conditions[idx]
	return &models.AnalysisResult{
		Label:           c.label,
		Description:     c.description,
		Confidence:      confidence(c.confidence + delta),
		Recommendations: append([]string(nil), c.recommendations...),
	}, nil
}

func confidence(v float64) float64 {
	v = math.Max(minConfidence, math.Min(maxConfidence, v))
	return math.Round(v*100) / 100
}
