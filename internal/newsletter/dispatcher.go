package newsletter

import (
	"context"
	"log/slog"
	"time"

	"dailybrief/internal/types"
)

// successMessage is recorded in the outcome of every successful send.
const successMessage = "Email sent successfully"

// CustomizationLoader yields a recipient's prior free-text customization
// requests. Implementations never fail: absence and errors both yield an
// empty slice.
type CustomizationLoader interface {
	Load(ctx context.Context, email string) []string
}

// Generator produces one newsletter body, optionally steered by
// customizations.
type Generator interface {
	Generate(ctx context.Context, customizations []string) (string, error)
}

// Sender submits one recipient's message.
type Sender interface {
	Send(ctx context.Context, r types.Recipient, html string) error
}

// BatchDispatcher orchestrates the per-recipient pipeline: customization
// lookup, content generation, send, record. Processing is strictly
// sequential; recipient i+1 does not begin until recipient i's outcome is
// recorded. This trades throughput for simplicity and for staying inside the
// generation and mail providers' unstated rate limits.
type BatchDispatcher struct {
	customizations CustomizationLoader
	generator      Generator
	sender         Sender
	metrics        RunMetrics
	logger         *slog.Logger
}

// BatchDispatcherConfig holds the dependencies for a BatchDispatcher.
// Customizations may be nil when no store is configured; the feature is
// purely additive and its absence is indistinguishable from an empty store.
type BatchDispatcherConfig struct {
	Customizations CustomizationLoader
	Generator      Generator
	Sender         Sender
	Metrics        RunMetrics
	Logger         *slog.Logger
}

// NewBatchDispatcher creates a new BatchDispatcher.
func NewBatchDispatcher(cfg BatchDispatcherConfig) *BatchDispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = NoopRunMetrics{}
	}
	return &BatchDispatcher{
		customizations: cfg.Customizations,
		generator:      cfg.Generator,
		sender:         cfg.Sender,
		metrics:        metrics,
		logger:         logger,
	}
}

// Run processes every recipient sequentially and returns exactly one
// SendOutcome per recipient, in audience order. A failure at any stage of one
// recipient's pipeline is converted into a status "error" outcome and the
// loop advances; it is never allowed to escape the iteration, and no partial
// state leaks into another recipient's processing.
func (d *BatchDispatcher) Run(ctx context.Context, recipients []types.Recipient) []types.SendOutcome {
	d.logger.InfoContext(ctx, "starting newsletter dispatch", "recipients", len(recipients))

	outcomes := make([]types.SendOutcome, 0, len(recipients))
	for _, r := range recipients {
		start := time.Now()
		outcome := d.processRecipient(ctx, r)
		outcomes = append(outcomes, outcome)

		d.metrics.RecordSend(ctx, outcome.Status)
		d.metrics.RecordSendLatency(ctx, time.Since(start))

		if outcome.Status == types.OutcomeSuccess {
			d.logger.InfoContext(ctx, "recipient processed", "email", r.Email)
		} else {
			d.logger.ErrorContext(ctx, "recipient failed", "email", r.Email, "reason", outcome.Message)
		}
	}

	d.logger.InfoContext(ctx, "newsletter dispatch finished",
		"recipients", len(recipients),
		"failures", countFailures(outcomes),
	)

	return outcomes
}

// processRecipient runs one recipient's state machine
// (CustomizationLookup -> ContentGeneration -> Send -> Recorded) and returns
// the recorded outcome. It returns a tagged result instead of an error so the
// aggregator cannot accidentally let a failure unwind the loop.
func (d *BatchDispatcher) processRecipient(ctx context.Context, r types.Recipient) types.SendOutcome {
	// Customization lookup never fails the recipient; a nil loader is the
	// functioning-but-empty store.
	var customizations []string
	if d.customizations != nil {
		customizations = d.customizations.Load(ctx, r.Email)
	}

	// Content is generated fresh per recipient; see ContentGenerator.Generate.
	html, err := d.generator.Generate(ctx, customizations)
	if err != nil {
		return types.SendOutcome{
			Email:   r.Email,
			Status:  types.OutcomeError,
			Message: err.Error(),
		}
	}

	if err := d.sender.Send(ctx, r, html); err != nil {
		return types.SendOutcome{
			Email:   r.Email,
			Status:  types.OutcomeError,
			Message: err.Error(),
		}
	}

	return types.SendOutcome{
		Email:   r.Email,
		Status:  types.OutcomeSuccess,
		Message: successMessage,
	}
}

// countFailures returns the number of error outcomes in a run.
func countFailures(outcomes []types.SendOutcome) int {
	n := 0
	for _, o := range outcomes {
		if o.Status == types.OutcomeError {
			n++
		}
	}
	return n
}
