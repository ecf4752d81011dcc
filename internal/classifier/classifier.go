// Package classifier decides, once per request, what kind of message arrived
// and whether a specialist must handle it.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/falachefe/consultant/internal/llm"
	"github.com/falachefe/consultant/internal/metrics"
	"github.com/falachefe/consultant/internal/models"
	"github.com/zoobzio/capitan"
	"github.com/zoobzio/pipz"
)

var (
	// ErrDegraded marks a classification produced by the keyword fallback.
	// It is logged and emitted as an event, never returned.
	ErrDegraded = errors.New("classification degraded")

	// ErrMalformedResponse is returned when model output cannot be used.
	ErrMalformedResponse = errors.New("malformed classification response")
)

// Completer is the text completion capability the classifier needs.
type Completer interface {
	ClassifyRaw(ctx context.Context, systemPrompt, userText string) (string, error)
}

// Options bounds the model call.
type Options struct {
	// Timeout applies to each attempt. Zero disables it.
	Timeout time.Duration
	// Retries is the total number of attempts. Values below 1 mean a single attempt.
	Retries int
}

type call struct {
	text    string
	history []models.Turn
	raw     string
	result  models.Classification
}

// Classifier produces a Classification for every message. It never fails.
type Classifier struct {
	chain   pipz.Chainable[*call]
	logger  *slog.Logger
	metrics *metrics.Collector
}

// New builds a classifier over completer.
func New(completer Completer, opts Options, logger *slog.Logger, m *metrics.Collector) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}

	invoke := pipz.Apply("classify-llm", func(ctx context.Context, c *call) (*call, error) {
		raw, err := completer.ClassifyRaw(ctx, systemPrompt, buildUserPrompt(c.text, c.history))
		if err != nil {
			return c, err
		}
		c.raw = raw
		return c, nil
	})

	var attempt pipz.Chainable[*call] = invoke
	if opts.Timeout > 0 {
		attempt = pipz.NewTimeout("classify-timeout", attempt, opts.Timeout)
	}
	if opts.Retries > 1 {
		attempt = pipz.NewRetry("classify-retry", attempt, opts.Retries)
	}

	parse := pipz.Apply("classify-parse", func(_ context.Context, c *call) (*call, error) {
		result, err := parseResponse(c.raw)
		if err != nil {
			return c, err
		}
		c.result = result
		return c, nil
	})

	return &Classifier{
		chain:   pipz.NewSequence("classify", attempt, parse),
		logger:  logger,
		metrics: m,
	}
}

// Classify returns the classification for text. Model failures of any kind
// are absorbed by the keyword fallback.
func (c *Classifier) Classify(ctx context.Context, text string, history []models.Turn) models.Classification {
	start := time.Now()
	out, err := c.chain.Process(ctx, &call{text: text, history: history})

	var result models.Classification
	if err != nil {
		reason := fmt.Errorf("%w: %w", ErrDegraded, err)
		if llm.IsFatal(err) {
			c.logger.Error("model provider rejected the request, check credentials", "error", err)
		}
		c.logger.Warn("classification degraded, using keyword fallback", "error", reason)
		c.metrics.Increment(metrics.CounterClassifierFallback)
		capitan.Error(ctx, ClassificationDegraded, ReasonKey.Field(err.Error()))
		result = Fallback(text)
	} else {
		result = out.result
	}

	c.metrics.RecordTiming(metrics.OpClassify, time.Since(start))
	c.logger.Info("message classified",
		"intent", result.Intent,
		"specialist", result.Specialist,
		"confidence", result.Confidence,
		"needs_specialist", result.NeedsSpecialist,
		"degraded", result.Degraded)
	capitan.Info(ctx, ClassificationCompleted,
		IntentKey.Field(string(result.Intent)),
		SpecialistKey.Field(string(result.Specialist)),
		ConfidenceKey.Field(result.Confidence),
	)
	return result
}
