package external

import (
	"context"

	"dailybrief/internal/types"
)

// EmailProvider abstracts the transactional mail provider (SendGrid).
// Implementations translate the domain SendInput into the vendor payload and
// submit exactly one send per call.
type EmailProvider interface {
	// Send transmits a single email and returns the provider's message ID
	// for correlation.
	Send(ctx context.Context, input types.SendInput) (providerMsgID string, err error)
}

// AudienceProvider abstracts the marketing-contacts provider. One call
// retrieves one page; the pagination loop lives in the newsletter package.
type AudienceProvider interface {
	ContactsPage(ctx context.Context, req types.ContactsPageRequest) (types.ContactsPage, error)
}

// CompletionProvider abstracts the generative-content provider (Perplexity).
// Implementations own the model and sampling configuration; callers supply
// only the prompt pair.
type CompletionProvider interface {
	// Complete performs one non-streaming chat completion and returns the
	// raw assistant message content.
	Complete(ctx context.Context, req types.CompletionRequest) (string, error)
}
