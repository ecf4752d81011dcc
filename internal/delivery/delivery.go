// Package delivery pushes response text to the user's messaging channel.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/falachefe/consultant/internal/client"
	"github.com/falachefe/consultant/internal/metrics"
	"github.com/falachefe/consultant/internal/models"
	"github.com/zoobzio/pipz"
)

var (
	// ErrDeliveryFailed is recorded in DeliveryOutcome.Error when a send fails.
	ErrDeliveryFailed = errors.New("delivery failed")

	// ErrNoRecipient is returned for an empty or non-numeric recipient.
	ErrNoRecipient = errors.New("no recipient")
)

// Gateway sends a message. It never returns an error; failures are reported
// in the outcome.
type Gateway interface {
	Send(ctx context.Context, recipient, text string) models.DeliveryOutcome
}

// Status values reported in DeliveryOutcome.Status.
const (
	StatusSent    = "sent"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

type sendRequest struct {
	number    string
	text      string
	messageID string
	status    string
}

// UAZAPI delivers WhatsApp text messages through the UAZAPI gateway.
type UAZAPI struct {
	chain   pipz.Chainable[*sendRequest]
	logger  *slog.Logger
	metrics *metrics.Collector
}

// Options configures the UAZAPI gateway.
type Options struct {
	Timeout time.Duration
	// Attempts is the total number of tries. Values below 1 mean one.
	Attempts int
	Logger   *slog.Logger
	Metrics  *metrics.Collector
}

// NewUAZAPI creates a gateway posting to {baseURL}/send/text with the instance token.
func NewUAZAPI(baseURL, token string, opts Options) *UAZAPI {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clientOpts := []client.Option{client.WithHeader("token", token)}
	if opts.Timeout > 0 {
		clientOpts = append(clientOpts, client.WithTimeout(opts.Timeout))
	}
	api := client.New(baseURL, clientOpts...)

	var chain pipz.Chainable[*sendRequest] = pipz.Apply("uazapi-send", func(ctx context.Context, req *sendRequest) (*sendRequest, error) {
		res, err := api.Post(ctx, "/send/text", map[string]any{
			"number":   req.number,
			"text":     req.text,
			"readchat": true,
		})
		if err != nil {
			return req, err
		}
		req.messageID = res.Get("messageid").String()
		req.status = res.Get("status").String()
		return req, nil
	})
	if opts.Attempts > 1 {
		chain = pipz.NewRetry("uazapi-retry", chain, opts.Attempts)
	}

	return &UAZAPI{chain: chain, logger: logger, metrics: opts.Metrics}
}

// Send delivers text to recipient.
func (u *UAZAPI) Send(ctx context.Context, recipient, text string) models.DeliveryOutcome {
	number := NormalizeNumber(recipient)
	if number == "" {
		return failed(ErrNoRecipient, false)
	}

	start := time.Now()
	res, err := u.chain.Process(ctx, &sendRequest{number: number, text: text})
	u.metrics.RecordOutcome(metrics.OpDelivery, time.Since(start), err)
	if err != nil {
		u.metrics.Increment(metrics.CounterDeliveryFailed)
		u.logger.Error("message delivery failed", "number", maskNumber(number), "error", err)
		return failed(err, true)
	}

	u.logger.Info("message delivered", "number", maskNumber(number), "message_id", res.messageID)
	status := res.status
	if status == "" {
		status = StatusSent
	}
	out := models.DeliveryOutcome{Attempted: true, Succeeded: true, Status: status}
	if res.messageID != "" {
		out.ChannelMessageID = models.Ptr(res.messageID)
	}
	return out
}

func failed(err error, attempted bool) models.DeliveryOutcome {
	status := StatusFailed
	if !attempted {
		status = StatusSkipped
	}
	return models.DeliveryOutcome{
		Attempted: attempted,
		Status:    status,
		Error:     models.Ptr(fmt.Errorf("%w: %w", ErrDeliveryFailed, err).Error()),
	}
}

// NormalizeNumber keeps only the digits of a phone handle, dropping any
// WhatsApp JID suffix such as "@s.whatsapp.net".
func NormalizeNumber(recipient string) string {
	if at := strings.IndexByte(recipient, '@'); at >= 0 {
		recipient = recipient[:at]
	}
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, recipient)
}

func maskNumber(number string) string {
	if len(number) <= 4 {
		return number
	}
	return strings.Repeat("*", len(number)-4) + number[len(number)-4:]
}
