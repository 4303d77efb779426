// Package analysis composes the model client and the offline heuristics into
// per-aspect operations. Every aspect degrades independently: a model failure
// or an empty answer yields a Fallback result, never an error.
package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/starford/notegraph/internal/checksum"
	"github.com/starford/notegraph/internal/heuristics"
	"github.com/starford/notegraph/internal/llm"
	"github.com/starford/notegraph/internal/models"
)

// ErrEmptyAnswer is the fallback cause when the model returned nothing usable.
var ErrEmptyAnswer = errors.New("analysis: empty or malformed model answer")

// Cache is the analysis result cache. Misses and expired entries report ok=false.
type Cache interface {
	CacheGet(ctx context.Context, key string) ([]byte, bool, error)
	CacheSet(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// TTLs per cached operation.
type TTLs struct {
	Default  time.Duration
	Category time.Duration
	Summary  time.Duration
	Full     time.Duration
}

// Config tunes the analyzer.
type Config struct {
	// ConnectionWindow bounds how many recent notes connection finding compares against.
	ConnectionWindow int
	// MaxConnections caps suggestions per note.
	MaxConnections int
	TTL            TTLs
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		ConnectionWindow: 20,
		MaxConnections:   5,
		TTL: TTLs{
			Default:  24 * time.Hour,
			Category: 30 * 24 * time.Hour,
			Summary:  30 * 24 * time.Hour,
			Full:     7 * 24 * time.Hour,
		},
	}
}

// Analyzer runs per-aspect analysis with cache-through and fallbacks.
type Analyzer struct {
	llm    *llm.Client
	rules  *heuristics.Analyzer
	cache  Cache
	cfg    Config
	logger *slog.Logger
}

// New creates an analyzer. cache may be nil.
func New(client *llm.Client, rules *heuristics.Analyzer, cache Cache, cfg Config, logger *slog.Logger) *Analyzer {
	def := DefaultConfig()
	if cfg.ConnectionWindow <= 0 {
		cfg.ConnectionWindow = def.ConnectionWindow
	}
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = def.MaxConnections
	}
	if cfg.TTL.Default <= 0 {
		cfg.TTL.Default = def.TTL.Default
	}
	if cfg.TTL.Category <= 0 {
		cfg.TTL.Category = def.TTL.Category
	}
	if cfg.TTL.Summary <= 0 {
		cfg.TTL.Summary = def.TTL.Summary
	}
	if cfg.TTL.Full <= 0 {
		cfg.TTL.Full = def.TTL.Full
	}
	if client == nil {
		client = llm.NewClient(nil)
	}
	if rules == nil {
		rules = heuristics.New(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{llm: client, rules: rules, cache: cache, cfg: cfg, logger: logger}
}

// Config returns the effective configuration.
func (a *Analyzer) Config() Config { return a.cfg }

// Heuristics exposes the offline analyzer.
func (a *Analyzer) Heuristics() *heuristics.Analyzer { return a.rules }

// LLM exposes the model client.
func (a *Analyzer) LLM() *llm.Client { return a.llm }

// through is the cache-through skeleton shared by every aspect. compute
// reports valid=false for empty or malformed answers. Only model answers
// are cached; fallbacks are recomputed next time.
func through[T any](ctx context.Context, a *Analyzer, op, content string, ttl time.Duration,
	compute func(context.Context) (T, bool, error), fallback func() T) Result[T] {
	key := checksum.Key(op, content)
	if a.cache != nil {
		if raw, ok, err := a.cache.CacheGet(ctx, key); err == nil && ok {
			var v T
			if json.Unmarshal(raw, &v) == nil {
				return Ok(v)
			}
		}
	}

	v, valid, err := compute(ctx)
	if err != nil || !valid {
		if err == nil {
			err = ErrEmptyAnswer
		}
		a.logger.Warn("analysis: fallback", slog.String("aspect", op), slog.String("error", err.Error()))
		return Fallback(fallback(), err)
	}
	if a.cache != nil {
		if raw, mErr := json.Marshal(v); mErr == nil {
			if sErr := a.cache.CacheSet(ctx, key, raw, ttl); sErr != nil {
				a.logger.Warn("analysis: cache set failed", slog.String("aspect", op), slog.String("error", sErr.Error()))
			}
		}
	}
	return Ok(v)
}

// Category returns one of the configured categories, never an empty string.
func (a *Analyzer) Category(ctx context.Context, content string) Result[string] {
	if utf8.RuneCountInString(content) < 10 {
		return Fallback(a.rules.Categorize(content), ErrEmptyAnswer)
	}
	return through(ctx, a, llm.OpCategorize, content, a.cfg.TTL.Category,
		func(ctx context.Context) (string, bool, error) {
			c, err := a.llm.Categorize(ctx, content, a.rules.Rules().CategoryNames())
			return c, c != "", err
		},
		func() string { return a.rules.Categorize(content) })
}

// Importance returns a score in [1,10].
func (a *Analyzer) Importance(ctx context.Context, content string) Result[int] {
	return through(ctx, a, llm.OpImportance, content, a.cfg.TTL.Category,
		func(ctx context.Context) (int, bool, error) {
			v, err := a.llm.Importance(ctx, content)
			return v, v >= models.MinImportance && v <= models.MaxImportance, err
		},
		func() int { return a.rules.Importance(content) })
}

// Summary returns a short summary.
func (a *Analyzer) Summary(ctx context.Context, content string) Result[string] {
	return through(ctx, a, llm.OpSummary, content, a.cfg.TTL.Summary,
		func(ctx context.Context) (string, bool, error) {
			s, err := a.llm.Summarize(ctx, content)
			return s, s != "", err
		},
		func() string { return a.rules.Summary(content) })
}

// Tags returns up to seven tags.
func (a *Analyzer) Tags(ctx context.Context, content string) Result[[]string] {
	return through(ctx, a, llm.OpTags, content, a.cfg.TTL.Default,
		func(ctx context.Context) ([]string, bool, error) {
			t, err := a.llm.Tags(ctx, content)
			return t, len(t) > 0, err
		},
		func() []string { return a.rules.Tags(content) })
}

// Topics returns up to five topics.
func (a *Analyzer) Topics(ctx context.Context, content string) Result[[]string] {
	return through(ctx, a, llm.OpTopics, content, a.cfg.TTL.Default,
		func(ctx context.Context) ([]string, bool, error) {
			t, err := a.llm.Topics(ctx, content)
			return t, len(t) > 0, err
		},
		func() []string { return a.rules.Topics(content) })
}

// Keywords returns distinct keywords.
func (a *Analyzer) Keywords(ctx context.Context, content string) Result[[]string] {
	return through(ctx, a, llm.OpKeywords, content, a.cfg.TTL.Default,
		func(ctx context.Context) ([]string, bool, error) {
			k, err := a.llm.Keywords(ctx, content)
			return k, len(k) > 0, err
		},
		func() []string {
			k := a.rules.Keywords(content)
			if len(k) > 10 {
				k = k[:10]
			}
			return k
		})
}

// Sentiment returns the polarity; neutral when nothing else applies.
func (a *Analyzer) Sentiment(ctx context.Context, content string) Result[heuristics.Sentiment] {
	return through(ctx, a, llm.OpSentiment, content, a.cfg.TTL.Default,
		func(ctx context.Context) (heuristics.Sentiment, bool, error) {
			s, err := a.llm.Sentiment(ctx, content)
			return heuristics.Sentiment{Label: s.Label, Confidence: s.Confidence}, s.Label != "", err
		},
		func() heuristics.Sentiment { return a.rules.Sentiment(content) })
}

// ActionItems returns the tasks found in content. An empty model list falls
// back to the regex extractor.
func (a *Analyzer) ActionItems(ctx context.Context, content string) Result[[]string] {
	return through(ctx, a, llm.OpActionItems, content, a.cfg.TTL.Default,
		func(ctx context.Context) ([]string, bool, error) {
			items, err := a.llm.ActionItems(ctx, content)
			return items, len(items) > 0, err
		},
		func() []string { return a.rules.ActionItems(content) })
}

// Language returns "ru" or "en".
func (a *Analyzer) Language(ctx context.Context, content string) Result[string] {
	return through(ctx, a, llm.OpLanguage, content, a.cfg.TTL.Category,
		func(ctx context.Context) (string, bool, error) {
			l, err := a.llm.DetectLanguage(ctx, content)
			return l, l != "", err
		},
		func() string { return a.rules.DetectLanguage(content) })
}

// Title returns a short title; the fallback is the first words of content.
func (a *Analyzer) Title(ctx context.Context, content, lang string) Result[string] {
	return through(ctx, a, llm.OpTitle, content, a.cfg.TTL.Default,
		func(ctx context.Context) (string, bool, error) {
			t, err := a.llm.Title(ctx, content)
			return t, t != "", err
		},
		func() string { return a.rules.Title(content, lang) })
}
