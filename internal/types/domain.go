// Package types defines the shared domain types for the dailybrief newsletter
// worker: recipients, send outcomes, provider request/response shapes, and the
// application error taxonomy. It has no dependencies on other internal packages
// so every layer can import it freely.
package types

// Recipient is a single mailing-list member as returned by the audience
// provider. Recipients are read-only for the duration of a run.
type Recipient struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
}

// OutcomeStatus is the terminal state of one recipient's generate-and-send
// attempt.
type OutcomeStatus string

const (
	OutcomeSuccess OutcomeStatus = "success"
	OutcomeError   OutcomeStatus = "error"
)

// SendOutcome records the result of one recipient's pipeline. The dispatcher
// produces exactly one SendOutcome per recipient, in audience order; the
// outcome slice is the unit of observability for a whole run.
type SendOutcome struct {
	Email   string        `json:"email"`
	Status  OutcomeStatus `json:"status"`
	Message string        `json:"message"`
}

// SenderIdentity is a display name plus address pair used for the from and
// reply-to headers of an outbound message.
type SenderIdentity struct {
	Name    string
	Address string
}

// SendInput is the provider-agnostic description of a single outbound email.
// When TemplateID is set the provider performs a template-bound send and
// Subject/HTML are carried inside TemplateData; otherwise the message is sent
// inline with Subject and HTML verbatim.
type SendInput struct {
	To           string
	ToName       string
	From         SenderIdentity
	ReplyTo      SenderIdentity
	Subject      string
	HTML         string
	TemplateID   string
	TemplateData map[string]interface{}
	// ReferenceID correlates the send with the run that produced it
	// (surfaced to the provider as a custom argument).
	ReferenceID string
}

// ContactsPageRequest describes one page request against the marketing
// contacts provider.
type ContactsPageRequest struct {
	ListID    string
	PageSize  int
	PageToken string
}

// ContactsPage is one page of audience results. NextPageToken is the opaque
// cursor for the following page; empty means the list is exhausted. The
// cursor lives and dies inside a single FetchAudience call.
type ContactsPage struct {
	Recipients    []Recipient
	NextPageToken string
}

// CompletionRequest is a single non-streaming chat-completion request to the
// generation provider. Sampling parameters live in the provider client
// configuration, not here.
type CompletionRequest struct {
	System string
	User   string
}
