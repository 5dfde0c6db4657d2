// Package main is the entrypoint for the Newsletter Worker Lambda function.
//
// The worker is invoked once per day by an EventBridge schedule. One
// invocation runs the full batch: fetch the mailing-list audience (paginated),
// then for each recipient sequentially load customizations, generate a fresh
// newsletter body, and send it, recording a per-recipient outcome. One
// recipient's failure never aborts the batch.
//
// Cold Start (main):
//  1. Initialize structured logger.
//  2. Load and validate configuration from the environment.
//  3. Initialize the customization store (S3) and CloudWatch metrics.
//  4. Initialize provider clients (SendGrid mail + contacts, Perplexity),
//     substituting stubs in local mode when credentials are absent.
//  5. Wire AudienceSource, ContentGenerator, Mailer, BatchDispatcher.
//  6. Register the handler and call lambda.Start.
//
// The handler returns {statusCode: 200, body: audience JSON} when the
// audience was retrieved and dispatch completed, independent of individual
// send outcomes, and {statusCode: 500, body: error JSON} only when the outer
// orchestration itself fails.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/google/uuid"

	"dailybrief/internal/config"
	"dailybrief/internal/external"
	"dailybrief/internal/newsletter"
	"dailybrief/internal/store"
	"dailybrief/internal/types"
)

// Response is the invocation result envelope. It mirrors the scheduler's
// expectations: an HTTP-ish status code plus a JSON string body.
type Response struct {
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body"`
}

// audienceFetcher is the slice of AudienceSource the handler needs.
type audienceFetcher interface {
	FetchAudience(ctx context.Context) []types.Recipient
}

// dispatcher is the slice of BatchDispatcher the handler needs.
type dispatcher interface {
	Run(ctx context.Context, recipients []types.Recipient) []types.SendOutcome
}

// Handler holds the dependencies for the newsletter worker Lambda handler.
type Handler struct {
	audience audienceFetcher
	batch    dispatcher
	metrics  newsletter.RunMetrics
	logger   *slog.Logger
}

// Handle runs one newsletter batch. No input payload is required; the
// EventBridge event is ignored.
//
// Per-recipient failures are recorded in the outcome sequence and logged;
// they never reach the response status. Only a failure of the orchestration
// itself yields a 500 response.
func (h *Handler) Handle(ctx context.Context) (Response, error) {
	runID := uuid.NewString()
	ctx = types.WithRunID(ctx, runID)
	logger := h.logger.With("run_id", runID)

	logger.InfoContext(ctx, "newsletter run starting")

	recipients := h.audience.FetchAudience(ctx)
	h.metrics.RecordAudienceSize(ctx, len(recipients))

	outcomes := h.batch.Run(ctx, recipients)

	for _, o := range outcomes {
		if o.Status == types.OutcomeError {
			logger.WarnContext(ctx, "recipient outcome",
				"email", o.Email,
				"status", string(o.Status),
				"message", o.Message,
			)
		}
	}

	body, err := json.Marshal(recipients)
	if err != nil {
		return errorResponse(fmt.Errorf("failed to encode audience response: %w", err)), nil
	}

	logger.InfoContext(ctx, "newsletter run finished",
		"recipients", len(recipients),
		"outcomes", len(outcomes),
	)

	return Response{
		StatusCode: http.StatusOK,
		Body:       string(body),
	}, nil
}

// errorResponse builds the 500 envelope with a JSON string body describing
// the orchestration failure.
func errorResponse(err error) Response {
	body, marshalErr := json.Marshal("Error in newsletter run: " + err.Error())
	if marshalErr != nil {
		body = []byte(`"Error in newsletter run"`)
	}
	return Response{
		StatusCode: http.StatusInternalServerError,
		Body:       string(body),
	}
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("Newsletter Worker Lambda initializing (cold start)")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	// Customization store: optional. Without a bucket the dispatcher runs
	// with a nil loader, which behaves exactly like an empty store.
	var customizations newsletter.CustomizationLoader
	if cfg.Store.Bucket != "" {
		s, err := store.New(ctx, store.Config{
			Bucket:    cfg.Store.Bucket,
			Region:    cfg.Store.Region,
			Endpoint:  cfg.Store.Endpoint,
			AccessKey: cfg.Store.AccessKey,
			SecretKey: cfg.Store.SecretKey.Unmask(),
		}, logger)
		if err != nil {
			logger.Error("failed to initialize customization store", "error", err)
			os.Exit(1)
		}
		customizations = s
	} else {
		logger.Warn("CUSTOMIZATION_BUCKET not set, running without customizations")
	}

	// Run metrics: CloudWatch outside local mode, otherwise a no-op sink.
	var metrics newsletter.RunMetrics = newsletter.NoopRunMetrics{}
	if cfg.Observability.EnableMetrics && !cfg.IsLocal() {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			logger.Error("failed to load AWS SDK config", "error", err)
			os.Exit(1)
		}
		metrics = newsletter.NewCloudWatchRunMetrics(
			cloudwatch.NewFromConfig(awsCfg),
			cfg.Observability.MetricNamespace,
			logger,
		)
	}

	// Provider clients. Local mode substitutes stubs for any integration
	// whose credentials are absent; config validation guarantees the keys
	// exist outside local mode.
	var mailProvider external.EmailProvider
	var audienceProvider external.AudienceProvider
	if cfg.Email.APIKey.Unmask() == "" {
		logger.Warn("SENDGRID_API_KEY not set, using stub mail and audience providers")
		mailProvider = external.NewStubEmailProvider(logger)
		audienceProvider = external.NewStubAudienceProvider(logger, nil)
	} else {
		sg := external.NewSendGridClient(
			&http.Client{Timeout: cfg.Email.Timeout},
			external.SendGridClientConfig{
				APIKey: cfg.Email.APIKey.Unmask(),
				Logger: logger,
			},
		)
		mailProvider = sg
		audienceProvider = sg
	}

	var completionProvider external.CompletionProvider
	if cfg.Generation.APIKey.Unmask() == "" {
		logger.Warn("PERPLEXITY_API_KEY not set, using stub completion provider")
		completionProvider = external.NewStubCompletionProvider(logger)
	} else {
		completionProvider = external.NewPerplexityClient(
			&http.Client{Timeout: cfg.Generation.Timeout},
			external.PerplexityClientConfig{
				APIKey:        cfg.Generation.APIKey.Unmask(),
				Model:         cfg.Generation.Model,
				Temperature:   cfg.Generation.Temperature,
				TopP:          cfg.Generation.TopP,
				RecencyFilter: cfg.Generation.RecencyFilter,
				Logger:        logger,
			},
		)
	}

	audience := newsletter.NewAudienceSource(newsletter.AudienceSourceConfig{
		Contacts: audienceProvider,
		ListID:   cfg.Audience.ListID,
		PageSize: cfg.Audience.PageSize,
		MaxPages: cfg.Audience.MaxPages,
		Logger:   logger,
	})

	generator := newsletter.NewContentGenerator(completionProvider, logger)

	mailer := newsletter.NewMailer(newsletter.MailerConfig{
		Provider:   mailProvider,
		From:       types.SenderIdentity{Name: cfg.Email.FromName, Address: cfg.Email.FromAddress},
		ReplyTo:    types.SenderIdentity{Address: cfg.Email.ReplyToAddress},
		TemplateID: cfg.Email.TemplateID,
		Logger:     logger,
	})

	batch := newsletter.NewBatchDispatcher(newsletter.BatchDispatcherConfig{
		Customizations: customizations,
		Generator:      generator,
		Sender:         mailer,
		Metrics:        metrics,
		Logger:         logger,
	})

	handler := &Handler{
		audience: audience,
		batch:    batch,
		metrics:  metrics,
		logger:   logger,
	}

	logger.Info("Newsletter Worker Lambda initialized",
		"environment", cfg.Environment,
		"list_id", cfg.Audience.ListID,
		"template_send", cfg.Email.TemplateID != "",
	)

	// Local mode: run the batch once and print the result instead of
	// starting the Lambda runtime.
	if cfg.IsLocal() {
		resp, err := handler.Handle(ctx)
		if err != nil {
			logger.Error("handler execution failed", "error", err)
			os.Exit(1)
		}
		out, _ := json.MarshalIndent(resp, "", "  ")
		fmt.Println(string(out))
		return
	}

	lambda.Start(func(ctx context.Context) (Response, error) {
		resp, err := handler.Handle(ctx)
		if err != nil {
			// Handle converts failures into 500 responses itself; an
			// error here means something escaped that path.
			return errorResponse(err), nil
		}
		return resp, nil
	})
}
