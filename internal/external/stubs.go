package external

import (
	"context"
	"fmt"
	"log/slog"

	"dailybrief/internal/types"
)

// ---------------------------------------------------------------------------
// Stub Implementations
//
// Stub implementations allow the worker to boot in local mode without real
// provider credentials. They log all actions and return predictable, safe
// default values.
// ---------------------------------------------------------------------------

// StubEmailProvider implements EmailProvider by logging the send and
// returning a fake message ID. No mail leaves the process.
type StubEmailProvider struct {
	logger *slog.Logger
}

// NewStubEmailProvider creates a new StubEmailProvider.
func NewStubEmailProvider(logger *slog.Logger) *StubEmailProvider {
	return &StubEmailProvider{logger: logger}
}

func (s *StubEmailProvider) Send(ctx context.Context, input types.SendInput) (string, error) {
	s.logger.InfoContext(ctx, "stub: Send called",
		"to", input.To,
		"subject", input.Subject,
		"template_id", input.TemplateID,
		"html_bytes", len(input.HTML),
	)
	return fmt.Sprintf("stub-msg-%s", input.To), nil
}

// StubCompletionProvider implements CompletionProvider by returning a small
// canned HTML fragment, wrapped in the fence artifact real provider responses
// sometimes carry so local runs exercise the post-processing path.
type StubCompletionProvider struct {
	logger *slog.Logger
}

// NewStubCompletionProvider creates a new StubCompletionProvider.
func NewStubCompletionProvider(logger *slog.Logger) *StubCompletionProvider {
	return &StubCompletionProvider{logger: logger}
}

func (s *StubCompletionProvider) Complete(ctx context.Context, req types.CompletionRequest) (string, error) {
	s.logger.InfoContext(ctx, "stub: Complete called",
		"system_bytes", len(req.System),
		"user_bytes", len(req.User),
	)
	return "```html\n<div><h1>Your daily newsletter</h1><p>Stub content for local runs.</p></div>\n```", nil
}

// StubAudienceProvider implements AudienceProvider with a fixed in-memory
// contact list served as a single page.
type StubAudienceProvider struct {
	logger     *slog.Logger
	recipients []types.Recipient
}

// NewStubAudienceProvider creates a new StubAudienceProvider serving the
// given recipients. A nil slice yields a valid empty audience.
func NewStubAudienceProvider(logger *slog.Logger, recipients []types.Recipient) *StubAudienceProvider {
	return &StubAudienceProvider{logger: logger, recipients: recipients}
}

func (s *StubAudienceProvider) ContactsPage(ctx context.Context, req types.ContactsPageRequest) (types.ContactsPage, error) {
	s.logger.InfoContext(ctx, "stub: ContactsPage called",
		"list_id", req.ListID,
		"page_token", req.PageToken,
	)
	return types.ContactsPage{Recipients: s.recipients}, nil
}

// Compile-time assertions for the stub providers.
var (
	_ EmailProvider      = (*StubEmailProvider)(nil)
	_ CompletionProvider = (*StubCompletionProvider)(nil)
	_ AudienceProvider   = (*StubAudienceProvider)(nil)
)
