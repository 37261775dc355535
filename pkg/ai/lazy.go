package ai

import (
	"context"
	"sync"

	"github.com/BillK181/wedding-website/pkg/domain"
)

// LazyGenerator builds its underlying generator on first use and shares it
// afterwards. A construction failure is remembered and returned by every call,
// so a missing credential only breaks chat and never process startup.
type LazyGenerator struct {
	build func() (ChatGenerator, error)

	once sync.Once
	gen  ChatGenerator
	err  error
}

// NewLazyGenerator wraps a constructor.
func NewLazyGenerator(build func() (ChatGenerator, error)) *LazyGenerator {
	return &LazyGenerator{build: build}
}

// Get returns the shared generator, constructing it once.
func (l *LazyGenerator) Get() (ChatGenerator, error) {
	l.once.Do(func() {
		l.gen, l.err = l.build()
	})
	return l.gen, l.err
}

// Generate implements ChatGenerator.
func (l *LazyGenerator) Generate(ctx context.Context, turns []domain.Turn) (string, error) {
	gen, err := l.Get()
	if err != nil {
		return "", err
	}
	return gen.Generate(ctx, turns)
}
