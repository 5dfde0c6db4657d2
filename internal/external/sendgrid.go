package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"dailybrief/internal/types"
)

// sendGridAPIBase is the default SendGrid API base URL.
// Overridable in tests via SendGridClientConfig.BaseURL.
const sendGridAPIBase = "https://api.sendgrid.com"

// SendGridClientConfig holds the configuration for creating a SendGridClient.
type SendGridClientConfig struct {
	APIKey  string
	BaseURL string // Override for testing; defaults to sendGridAPIBase
	Logger  *slog.Logger
}

// SendGridClient implements EmailProvider and AudienceProvider by making
// direct HTTP calls to the SendGrid v3 Mail Send and Marketing Contacts APIs
// through BaseClient. Routing through BaseClient gives every call the shared
// resilience behavior (circuit breaker, error mapping) and makes testing with
// httptest straightforward.
type SendGridClient struct {
	mailBase     *BaseClient
	contactsBase *BaseClient
	apiKey       string
	baseURL      string
	logger       *slog.Logger
}

// NewSendGridClient creates a new SendGridClient. The mail send path is wired
// with SingleAttemptPolicy: a recipient's message is submitted once and the
// outcome recorded, never re-sent. Contacts paging is idempotent and keeps the
// default retry policy.
func NewSendGridClient(
	httpClient *http.Client,
	cfg SendGridClientConfig,
) *SendGridClient {
	mailBase := NewBaseClient(
		httpClient,
		"sendgrid-mail",
		SingleAttemptPolicy(),
		"DailyBrief/1.0",
		WithSleepFunc(time.Sleep),
	)
	contactsBase := NewBaseClient(
		httpClient,
		"sendgrid-contacts",
		DefaultRetryPolicy(),
		"DailyBrief/1.0",
		WithSleepFunc(time.Sleep),
	)

	c := NewSendGridClientWithBase(mailBase, cfg)
	c.contactsBase = contactsBase
	return c
}

// NewSendGridClientWithBase creates a SendGridClient with a pre-configured
// BaseClient used for both operations. Useful in tests to control retry
// behavior.
func NewSendGridClientWithBase(
	base *BaseClient,
	cfg SendGridClientConfig,
) *SendGridClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = sendGridAPIBase
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &SendGridClient{
		mailBase:     base,
		contactsBase: base,
		apiKey:       cfg.APIKey,
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		logger:       logger,
	}
}

// ---------------------------------------------------------------------------
// EmailProvider Implementation
// ---------------------------------------------------------------------------

// Send transmits an email using SendGrid's v3 Mail Send API. When the input
// carries a TemplateID the payload is template-bound (dynamic template data
// plus a dedicated reply-to); otherwise the subject and HTML body are sent
// inline. Returns the provider message ID (X-Message-Id response header) on
// success.
//
// Error mapping:
//   - 403 Forbidden -> types.ErrCodeEmailBlocked (recipient on suppression list)
//   - 429 Too Many Requests -> handled by BaseClient (ErrCodeUpstreamRateLimited)
//   - 5xx -> handled by BaseClient (ErrCodeUpstreamUnavailable)
//   - Other 4xx -> types.ErrCodeUpstreamEmailProvider
func (s *SendGridClient) Send(ctx context.Context, input types.SendInput) (string, error) {
	payload := s.buildMailPayload(input)

	body, err := json.Marshal(payload)
	if err != nil {
		return "", types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to marshal SendGrid mail payload",
			err,
		)
	}

	reqURL := s.baseURL + "/v3/mail/send"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return "", types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to create SendGrid mail send request",
			err,
		)
	}

	req.Header.Set("Content-Type", "application/json")
	s.setAuthHeaders(req)

	resp, err := s.mailBase.Do(req)
	if err != nil {
		return "", s.wrapSendGridError("Send", types.ErrCodeUpstreamEmailProvider, err)
	}
	defer resp.Body.Close()

	// SendGrid returns 202 Accepted on success.
	if resp.StatusCode == http.StatusAccepted {
		return resp.Header.Get("X-Message-Id"), nil
	}

	return "", s.handleMailErrorResponse(resp)
}

// ---------------------------------------------------------------------------
// AudienceProvider Implementation
// ---------------------------------------------------------------------------

// marketingContactsResponse is the SendGrid Marketing Contacts list response.
// The _metadata.next field is an opaque cursor; its absence signals the final
// page.
type marketingContactsResponse struct {
	Result []struct {
		Email     string `json:"email"`
		FirstName string `json:"first_name"`
	} `json:"result"`
	Metadata struct {
		Next string `json:"next"`
	} `json:"_metadata"`
}

// ContactsPage fetches one page of contacts for the configured list,
// requesting only the email and first_name fields. A non-2xx response or
// transport failure surfaces as ErrCodeUpstreamAudience; the caller decides
// how much of the accumulated audience to keep.
func (s *SendGridClient) ContactsPage(ctx context.Context, pageReq types.ContactsPageRequest) (types.ContactsPage, error) {
	q := url.Values{}
	q.Set("list_ids", pageReq.ListID)
	q.Set("page_size", strconv.Itoa(pageReq.PageSize))
	q.Set("fields", "email,first_name")
	if pageReq.PageToken != "" {
		q.Set("page_token", pageReq.PageToken)
	}

	reqURL := s.baseURL + "/v3/marketing/contacts?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return types.ContactsPage{}, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to create SendGrid contacts request",
			err,
		)
	}

	s.setAuthHeaders(req)

	resp, err := s.contactsBase.Do(req)
	if err != nil {
		return types.ContactsPage{}, s.wrapSendGridError("ContactsPage", types.ErrCodeUpstreamAudience, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return types.ContactsPage{}, types.NewAppError(
			types.ErrCodeUpstreamAudience,
			fmt.Sprintf("ContactsPage: SendGrid returned %d: %s", resp.StatusCode, firstErrorMessage(body)),
			nil,
		)
	}

	var parsed marketingContactsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return types.ContactsPage{}, types.NewAppError(
			types.ErrCodeUpstreamAudience,
			"ContactsPage: failed to decode SendGrid contacts response",
			err,
		)
	}

	page := types.ContactsPage{
		Recipients:    make([]types.Recipient, 0, len(parsed.Result)),
		NextPageToken: parsed.Metadata.Next,
	}
	for _, c := range parsed.Result {
		page.Recipients = append(page.Recipients, types.Recipient{
			Email:     c.Email,
			FirstName: c.FirstName,
		})
	}

	return page, nil
}

// ---------------------------------------------------------------------------
// Payload Construction
// ---------------------------------------------------------------------------

// sendGridMailPayload represents the SendGrid v3 mail/send JSON request body.
// It covers both the inline and the dynamic-template form; unused fields are
// omitted from the wire.
type sendGridMailPayload struct {
	Personalizations []sendGridPersonalization `json:"personalizations"`
	From             sendGridAddress           `json:"from"`
	ReplyTo          *sendGridAddress          `json:"reply_to,omitempty"`
	Subject          string                    `json:"subject,omitempty"`
	Content          []sendGridContent         `json:"content,omitempty"`
	TemplateID       string                    `json:"template_id,omitempty"`
	// custom_args allows correlation with the run that produced the send.
	CustomArgs map[string]string `json:"custom_args,omitempty"`
}

type sendGridPersonalization struct {
	To          []sendGridAddress      `json:"to"`
	DynamicData map[string]interface{} `json:"dynamic_template_data,omitempty"`
}

type sendGridAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sendGridContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// buildMailPayload maps a domain types.SendInput to the SendGrid v3 payload.
func (s *SendGridClient) buildMailPayload(input types.SendInput) sendGridMailPayload {
	personalization := sendGridPersonalization{
		To: []sendGridAddress{
			{Email: input.To, Name: input.ToName},
		},
	}

	payload := sendGridMailPayload{
		From: sendGridAddress{
			Email: input.From.Address,
			Name:  input.From.Name,
		},
	}

	if input.TemplateID != "" {
		// Template-bound send: subject and body travel as template
		// variables, and replies route to a dedicated inbox.
		personalization.DynamicData = input.TemplateData
		payload.TemplateID = input.TemplateID
		if input.ReplyTo.Address != "" {
			payload.ReplyTo = &sendGridAddress{
				Email: input.ReplyTo.Address,
				Name:  input.ReplyTo.Name,
			}
		}
	} else {
		payload.Subject = input.Subject
		payload.Content = []sendGridContent{
			{Type: "text/html", Value: input.HTML},
		}
	}

	payload.Personalizations = []sendGridPersonalization{personalization}

	if input.ReferenceID != "" {
		payload.CustomArgs = map[string]string{
			"reference_id": input.ReferenceID,
		}
	}

	return payload
}

// ---------------------------------------------------------------------------
// HTTP Helpers
// ---------------------------------------------------------------------------

// setAuthHeaders sets the SendGrid API authentication headers.
func (s *SendGridClient) setAuthHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
}

// ---------------------------------------------------------------------------
// Error Handling
// ---------------------------------------------------------------------------

// sendGridErrorResponse represents the JSON error body returned by SendGrid.
type sendGridErrorResponse struct {
	Errors []sendGridErrorDetail `json:"errors"`
}

type sendGridErrorDetail struct {
	Message string `json:"message"`
	Field   string `json:"field"`
	Help    string `json:"help"`
}

// firstErrorMessage extracts the first error message from a SendGrid error
// body, falling back to the raw body when it does not parse.
func firstErrorMessage(body []byte) string {
	var sgErr sendGridErrorResponse
	if err := json.Unmarshal(body, &sgErr); err == nil && len(sgErr.Errors) > 0 {
		return sgErr.Errors[0].Message
	}
	return string(body)
}

// handleMailErrorResponse reads a SendGrid mail send error response and maps
// it to a types.AppError.
func (s *SendGridClient) handleMailErrorResponse(resp *http.Response) error {
	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return types.NewAppError(
			types.ErrCodeUpstreamEmailProvider,
			fmt.Sprintf("Send: SendGrid returned status %d and response body was unreadable", resp.StatusCode),
			readErr,
		)
	}

	message := firstErrorMessage(body)

	switch {
	case resp.StatusCode == http.StatusForbidden:
		// 403: recipient is on a suppression list / blocked.
		return types.NewAppError(
			types.ErrCodeEmailBlocked,
			fmt.Sprintf("Send: SendGrid blocked delivery: %s", message),
			nil,
		)
	default:
		return types.NewAppError(
			types.ErrCodeUpstreamEmailProvider,
			fmt.Sprintf("Send: SendGrid error (%d): %s", resp.StatusCode, message),
			nil,
		)
	}
}

// wrapSendGridError wraps a BaseClient transport error with context. Errors
// that are already AppErrors (circuit breaker, retries exhausted) pass
// through with their original code.
func (s *SendGridClient) wrapSendGridError(operation string, code types.ErrorCode, err error) error {
	if _, ok := err.(*types.AppError); ok {
		return err
	}
	return types.NewAppError(
		code,
		fmt.Sprintf("%s: SendGrid request failed: %v", operation, err),
		err,
	)
}

// ---------------------------------------------------------------------------
// Interface Compliance
// ---------------------------------------------------------------------------

// Compile-time assertions that SendGridClient satisfies its provider roles.
var (
	_ EmailProvider    = (*SendGridClient)(nil)
	_ AudienceProvider = (*SendGridClient)(nil)
)
