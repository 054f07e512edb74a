package llm

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Fallback wraps a primary provider with a lazily-built local fallback.
//
// Every call tries the primary first, so a recovered upstream is picked up
// without intervention. When the primary fails, the same prompt is replayed
// against the fallback and the returned metadata is annotated with the
// original provider and error.
type Fallback struct {
	primary Provider
	logger  *slog.Logger

	buildOnce sync.Once
	build     func() Provider
	fallback  Provider

	usingFallback   atomic.Bool
	fallbackCount   atomic.Int64
	primaryFailures atomic.Int64
}

var _ Provider = (*Fallback)(nil)

// NewFallback wraps primary with a fallback built on first use.
// The build function is called at most once, on the first primary failure.
func NewFallback(primary Provider, build func() Provider, logger *slog.Logger) *Fallback {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fallback{
		primary: primary,
		build:   build,
		logger:  logger.With("component", "llm.fallback"),
	}
}

// NewOllamaFallback wraps primary with a local Ollama fallback.
func NewOllamaFallback(primary Provider, baseURL, model string, logger *slog.Logger) *Fallback {
	return NewFallback(primary, func() Provider {
		return NewOllama(baseURL, model)
	}, logger)
}

// Name reports the primary provider's name.
func (f *Fallback) Name() string { return f.primary.Name() }

// Stats reports fallback usage counters.
func (f *Fallback) Stats() (usingFallback bool, fallbackCount, primaryFailures int64) {
	return f.usingFallback.Load(), f.fallbackCount.Load(), f.primaryFailures.Load()
}

// Generate tries the primary provider, then the fallback.
func (f *Fallback) Generate(ctx context.Context, system, user string, opts ...GenOption) (string, Metadata, error) {
	content, md, primaryErr := f.primary.Generate(ctx, system, user, opts...)
	if primaryErr == nil {
		if f.usingFallback.Swap(false) {
			f.logger.Info("primary provider recovered", "provider", f.primary.Name())
		}
		return content, md, nil
	}

	f.primaryFailures.Add(1)
	if ctx.Err() != nil {
		return "", Metadata{}, primaryErr
	}

	f.buildOnce.Do(func() { f.fallback = f.build() })
	f.logger.Warn("primary provider failed, using fallback",
		"provider", f.primary.Name(),
		"fallback", f.fallback.Name(),
		"err", primaryErr)

	content, md, err := f.fallback.Generate(ctx, system, user, opts...)
	if err != nil {
		return "", Metadata{}, primaryErr
	}

	f.usingFallback.Store(true)
	f.fallbackCount.Add(1)
	md.FallbackUsed = true
	md.OriginalProvider = f.primary.Name()
	md.OriginalError = primaryErr.Error()
	return content, md, nil
}
