// Package pipeline runs one inbound message through classification, an
// optional specialist, memory and delivery.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/falachefe/consultant/internal/classifier"
	"github.com/falachefe/consultant/internal/delivery"
	"github.com/falachefe/consultant/internal/metrics"
	"github.com/falachefe/consultant/internal/models"
	"github.com/falachefe/consultant/internal/specialist"
	"github.com/google/uuid"
	"github.com/zoobzio/capitan"
)

// ApologyText replaces the response when a specialist cannot answer.
const ApologyText = "Desculpe, houve um erro ao processar sua mensagem. Tente novamente em alguns instantes."

// Delivery modes reported in metadata.
const (
	ModePush   = "push"
	ModeInline = "inline"
)

// Metadata keys.
const (
	MetaProcessedAt      = "processed_at"
	MetaProcessingTimeMs = "processing_time_ms"
	MetaUserID           = "user_id"
	MetaPhoneNumber      = "phone_number"
	MetaRequestID        = "request_id"
	MetaIntent           = "intent"
	MetaSpecialist       = "specialist"
	MetaConfidence       = "confidence"
	MetaState            = "state"
	MetaDelivered        = "delivered"
	MetaDeliveryMode     = "delivery_mode"
	MetaChannelMessageID = "channel_message_id"
	MetaDeliveryError    = "delivery_error"
	MetaError            = "error"
	MetaErrorType        = "error_type"
	MetaMemoryError      = "memory_error"
)

// orchestratorAgent owns memories of exchanges answered without a specialist.
const orchestratorAgent = "orchestrator"

// Classifier assigns an intent to a message. It never fails.
type Classifier interface {
	Classify(ctx context.Context, text string, history []models.Turn) models.Classification
}

// Enricher fetches business context. Failures come back as placeholders.
type Enricher interface {
	Profile(ctx context.Context, userID string) map[string]string
	FinancialSummary(ctx context.Context, userID string) string
}

// Specialists resolves a specialist id to its executor.
type Specialists interface {
	Lookup(id models.SpecialistID) (specialist.Executor, error)
}

// Recorder persists an exchange.
type Recorder interface {
	Save(ctx context.Context, content any, metadata map[string]any, agentID string) (string, error)
}

// Deps are the collaborators of a pipeline.
type Deps struct {
	Classifier  Classifier
	Enricher    Enricher
	Specialists Specialists
	Memory      Recorder
	Gateway     delivery.Gateway
}

// Options tune a pipeline. Zero timeouts disable the bound.
type Options struct {
	EnrichTimeout     time.Duration
	SpecialistTimeout time.Duration
	MemoryTimeout     time.Duration
	DeliveryTimeout   time.Duration

	// DefaultSpecialist answers intents that map to no specialist.
	DefaultSpecialist models.SpecialistID
	// InlineSources are channel sources whose responses are not pushed.
	InlineSources []string

	Logger  *slog.Logger
	Metrics *metrics.Collector
}

// Pipeline handles inbound requests. Runs share no mutable state.
type Pipeline struct {
	deps    Deps
	opts    Options
	logger  *slog.Logger
	metrics *metrics.Collector
	now     func() time.Time
}

// New creates a pipeline.
func New(deps Deps, opts Options) *Pipeline {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.DefaultSpecialist == "" || opts.DefaultSpecialist == models.SpecialistNone {
		opts.DefaultSpecialist = models.SpecialistFinancial
	}
	return &Pipeline{
		deps:    deps,
		opts:    opts,
		logger:  logger,
		metrics: opts.Metrics,
		now:     time.Now,
	}
}

type run struct {
	req       models.Request
	state     State
	text      string
	agentID   string
	cls       models.Classification
	inline    bool
	recipient string
	meta      models.Metadata
	logger    *slog.Logger
}

// Handle processes one request to completion.
func (p *Pipeline) Handle(ctx context.Context, req models.Request) models.Response {
	start := p.now()
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	if req.ReceivedAt.IsZero() {
		req.ReceivedAt = start
	}

	r := &run{
		req:       req,
		state:     StateReceived,
		inline:    Inline(req, p.opts.InlineSources),
		recipient: strings.TrimSpace(req.Channel(models.ChannelKeyPhoneNumber)),
		meta: models.Metadata{
			MetaUserID:    req.UserID,
			MetaRequestID: req.RequestID,
		},
		logger: p.logger.With("request_id", req.RequestID, "user_id", req.UserID),
	}
	if r.recipient != "" {
		r.meta[MetaPhoneNumber] = r.recipient
	}
	r.meta[MetaDeliveryMode] = ModePush
	if r.inline {
		r.meta[MetaDeliveryMode] = ModeInline
	}
	r.logger.Info("message received", "conversation_id", req.ConversationID, "mode", r.meta[MetaDeliveryMode])

	p.classify(ctx, r)
	if r.cls.NeedsSpecialist {
		p.dispatch(ctx, r)
	} else {
		p.directReply(ctx, r)
	}

	success := true
	if r.state == StateErrored {
		success = p.apologize(ctx, r)
	} else {
		p.remember(ctx, r)
		p.deliver(ctx, r)
		p.transition(ctx, r, StateDone)
	}

	elapsed := p.now().Sub(start)
	p.metrics.RecordTiming(metrics.OpPipeline, elapsed)
	r.meta[MetaState] = string(r.state)
	r.meta[MetaProcessedAt] = p.now().UTC().Format(time.RFC3339)
	r.meta[MetaProcessingTimeMs] = elapsed.Milliseconds()
	r.logger.Info("message processed", "state", r.state, "success", success, "duration_ms", elapsed.Milliseconds())

	return models.Response{Success: success, ResponseText: r.text, Metadata: r.meta}
}

func (p *Pipeline) classify(ctx context.Context, r *run) {
	r.cls = p.deps.Classifier.Classify(ctx, r.req.RawText, r.req.History)
	r.meta[MetaIntent] = string(r.cls.Intent)
	r.meta[MetaConfidence] = r.cls.Confidence
	p.transition(ctx, r, StateClassified)
}

func (p *Pipeline) directReply(ctx context.Context, r *run) {
	p.transition(ctx, r, StateDirectReply)
	r.text = models.Deref(r.cls.DirectReply)
	if r.text == "" {
		r.text = classifier.GeneralGuidanceReply
	}
	r.agentID = orchestratorAgent
	r.meta[MetaSpecialist] = string(models.SpecialistNone)
	p.transition(ctx, r, StateResponseReady)
}

func (p *Pipeline) dispatch(ctx context.Context, r *run) {
	target := Route(r.cls, p.opts.DefaultSpecialist)
	r.meta[MetaSpecialist] = string(target)
	r.agentID = string(target)

	p.transition(ctx, r, StateSpecialistDispatched)

	defer func() {
		if rec := recover(); rec != nil {
			p.fail(ctx, r, fmt.Errorf("%w: panic: %v", specialist.ErrExecutionFailed, rec))
		}
	}()

	exec, err := p.deps.Specialists.Lookup(target)
	if err != nil {
		p.fail(ctx, r, err)
		return
	}
	task := models.SpecialistTask{
		SpecialistID: target,
		Input:        TaskInput(r.req, r.cls, p.enrich(ctx, r)),
		ProducedBy:   r.req.RequestID,
	}

	sctx, cancel := bounded(ctx, p.opts.SpecialistTimeout)
	defer cancel()
	result, err := exec.Execute(sctx, task)
	if err == nil && !result.Succeeded {
		err = fmt.Errorf("%w: %s", specialist.ErrExecutionFailed, models.Deref(result.Error))
	}
	if err == nil && strings.TrimSpace(result.Text) == "" {
		err = fmt.Errorf("%w: empty response", specialist.ErrExecutionFailed)
	}
	if err != nil {
		if !errors.Is(err, specialist.ErrExecutionFailed) && !errors.Is(err, specialist.ErrIterationLimit) {
			err = fmt.Errorf("%w: %w", specialist.ErrExecutionFailed, err)
		}
		p.fail(ctx, r, err)
		return
	}

	r.text = result.Text
	p.transition(ctx, r, StateResponseReady)
}

func (p *Pipeline) enrich(ctx context.Context, r *run) map[string]string {
	if p.deps.Enricher == nil {
		return nil
	}
	ectx, cancel := bounded(ctx, p.opts.EnrichTimeout)
	defer cancel()

	out := map[string]string{}
	for k, v := range p.deps.Enricher.Profile(ectx, r.req.UserID) {
		out[k] = v
	}
	out[models.TaskKeyFinancialSummary] = p.deps.Enricher.FinancialSummary(ectx, r.req.UserID)
	return out
}

func (p *Pipeline) fail(ctx context.Context, r *run, err error) {
	r.text = ApologyText
	r.meta[MetaError] = err.Error()
	r.meta[MetaErrorType] = specialist.ErrorType(err)
	r.logger.Error("specialist failed, answering with apology", "specialist", r.meta[MetaSpecialist], "error", err)
	p.transition(ctx, r, StateErrored)
}

// apologize pushes the apology once and reports whether the caller sees success.
func (p *Pipeline) apologize(ctx context.Context, r *run) bool {
	if r.inline {
		r.meta[MetaDelivered] = false
		return true
	}
	if r.recipient == "" {
		r.meta[MetaDelivered] = false
		r.meta[MetaDeliveryError] = delivery.ErrNoRecipient.Error()
		r.logger.Warn("no recipient for apology")
		return false
	}
	out := p.send(ctx, r)
	if !out.Succeeded {
		r.logger.Warn("apology delivery failed", "error", models.Deref(out.Error))
	}
	return out.Succeeded
}

func (p *Pipeline) remember(ctx context.Context, r *run) {
	if p.deps.Memory != nil {
		mctx, cancel := bounded(ctx, p.opts.MemoryTimeout)
		defer cancel()

		elapsed := p.now().Sub(r.req.ReceivedAt).Milliseconds()
		content := map[string]any{
			"user_message": r.req.RawText,
			"response":     r.text,
		}
		metadata := map[string]any{
			"user_id":         r.req.UserID,
			"conversation_id": r.req.ConversationID,
			"memory_type":     models.MemoryTypeConversation,
			"request_id":      r.req.RequestID,
			"intent":          string(r.cls.Intent),
			"specialist":      r.meta.String(MetaSpecialist),
			"elapsed_ms":      elapsed,
		}
		if _, err := p.deps.Memory.Save(mctx, content, metadata, r.agentID); err != nil {
			p.metrics.Increment(metrics.CounterMemoryFailed)
			r.meta[MetaMemoryError] = err.Error()
			r.logger.Warn("memory not recorded", "error", err)
		}
	}
	p.transition(ctx, r, StateMemoryRecorded)
}

func (p *Pipeline) deliver(ctx context.Context, r *run) {
	switch {
	case r.inline:
		r.meta[MetaDelivered] = false
	case r.recipient == "":
		r.meta[MetaDelivered] = false
		r.meta[MetaDeliveryError] = delivery.ErrNoRecipient.Error()
		r.logger.Warn("no recipient, response not pushed")
	default:
		p.send(ctx, r)
	}
	p.transition(ctx, r, StateDelivered)
}

func (p *Pipeline) send(ctx context.Context, r *run) models.DeliveryOutcome {
	dctx, cancel := bounded(ctx, p.opts.DeliveryTimeout)
	defer cancel()

	out := p.deps.Gateway.Send(dctx, r.recipient, r.text)
	r.meta[MetaDelivered] = out.Succeeded
	if out.ChannelMessageID != nil {
		r.meta[MetaChannelMessageID] = *out.ChannelMessageID
	}
	if !out.Succeeded {
		msg := models.Deref(out.Error)
		if msg == "" {
			msg = delivery.ErrDeliveryFailed.Error()
		}
		r.meta[MetaDeliveryError] = msg
	}
	return out
}

func (p *Pipeline) transition(ctx context.Context, r *run, to State) {
	from := r.state
	if !CanTransition(from, to) {
		r.logger.Error("illegal state transition", "from", from, "to", to)
		return
	}
	r.state = to
	r.logger.Debug("state transition", "from", from, "to", to)

	fields := []capitan.Field{
		RequestIDKey.Field(r.req.RequestID),
		FromKey.Field(string(from)),
		ToKey.Field(string(to)),
	}
	if to == StateErrored {
		capitan.Error(ctx, Transition, fields...)
		return
	}
	capitan.Info(ctx, Transition, fields...)
}

func bounded(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
