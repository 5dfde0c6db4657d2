package external

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"dailybrief/internal/types"
)

func newTestSendGridClient(t *testing.T, serverURL string) *SendGridClient {
	t.Helper()
	base := NewBaseClient(
		&http.Client{Timeout: 5 * time.Second},
		"test-sendgrid",
		RetryPolicy{MaxRetries: 0, MinWait: time.Millisecond, MaxWait: 10 * time.Millisecond},
		"DailyBrief-Test/1.0",
		WithSleepFunc(noopSleep),
	)
	return NewSendGridClientWithBase(base, SendGridClientConfig{
		APIKey:  "SG.test_api_key",
		BaseURL: serverURL,
	})
}

// ---------------------------------------------------------------------------
// Mail Send
// ---------------------------------------------------------------------------

func TestSendGridSend_InlinePayload(t *testing.T) {
	var receivedPayload sendGridMailPayload
	var receivedAuth string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/v3/mail/send" {
			t.Errorf("expected path /v3/mail/send, got %s", r.URL.Path)
		}
		receivedAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&receivedPayload); err != nil {
			t.Fatalf("failed to decode request body: %v", err)
		}
		w.Header().Set("X-Message-Id", "sg_msg_abc123")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	client := newTestSendGridClient(t, server.URL)

	input := types.SendInput{
		To:     "ada@example.com",
		ToName: "Ada",
		From: types.SenderIdentity{
			Name:    "AI Daily",
			Address: "mynews@aidaily.me",
		},
		Subject:     "Hi Ada, here's your daily newsletter!",
		HTML:        "<div><p>Today's edition</p></div>",
		ReferenceID: "run-001",
	}

	msgID, err := client.Send(context.Background(), input)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if msgID != "sg_msg_abc123" {
		t.Errorf("expected message ID sg_msg_abc123, got %s", msgID)
	}
	if receivedAuth != "Bearer SG.test_api_key" {
		t.Errorf("expected Bearer SG.test_api_key, got %s", receivedAuth)
	}

	if len(receivedPayload.Personalizations) != 1 {
		t.Fatalf("expected 1 personalization, got %d", len(receivedPayload.Personalizations))
	}
	p := receivedPayload.Personalizations[0]
	if len(p.To) != 1 || p.To[0].Email != "ada@example.com" {
		t.Errorf("unexpected to addresses: %+v", p.To)
	}
	if p.DynamicData != nil {
		t.Error("inline send must not carry dynamic template data")
	}
	if receivedPayload.TemplateID != "" {
		t.Errorf("inline send must not carry a template ID, got %s", receivedPayload.TemplateID)
	}
	if receivedPayload.Subject != "Hi Ada, here's your daily newsletter!" {
		t.Errorf("unexpected subject %q", receivedPayload.Subject)
	}
	if len(receivedPayload.Content) != 1 ||
		receivedPayload.Content[0].Type != "text/html" ||
		receivedPayload.Content[0].Value != "<div><p>Today's edition</p></div>" {
		t.Errorf("unexpected content: %+v", receivedPayload.Content)
	}
	if receivedPayload.CustomArgs["reference_id"] != "run-001" {
		t.Errorf("expected reference_id custom arg, got %v", receivedPayload.CustomArgs)
	}
}

func TestSendGridSend_TemplatePayload(t *testing.T) {
	var receivedPayload sendGridMailPayload

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&receivedPayload); err != nil {
			t.Fatalf("failed to decode request body: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	client := newTestSendGridClient(t, server.URL)

	input := types.SendInput{
		To:         "ada@example.com",
		ToName:     "Ada",
		From:       types.SenderIdentity{Name: "AI Daily", Address: "mynews@aidaily.me"},
		ReplyTo:    types.SenderIdentity{Address: "replies@aidaily.me"},
		Subject:    "Hi Ada, here's your daily newsletter!",
		HTML:       "<div>body</div>",
		TemplateID: "d-template-123",
		TemplateData: map[string]interface{}{
			"subject":    "Hi Ada, here's your daily newsletter!",
			"first_name": "Ada",
			"content":    "<div>body</div>",
		},
	}

	if _, err := client.Send(context.Background(), input); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if receivedPayload.TemplateID != "d-template-123" {
		t.Errorf("expected template ID, got %q", receivedPayload.TemplateID)
	}
	if receivedPayload.ReplyTo == nil || receivedPayload.ReplyTo.Email != "replies@aidaily.me" {
		t.Errorf("expected dedicated reply-to, got %+v", receivedPayload.ReplyTo)
	}
	if receivedPayload.Subject != "" {
		t.Errorf("template send must not carry an inline subject, got %q", receivedPayload.Subject)
	}
	if len(receivedPayload.Content) != 0 {
		t.Errorf("template send must not carry inline content, got %+v", receivedPayload.Content)
	}

	data := receivedPayload.Personalizations[0].DynamicData
	if data["first_name"] != "Ada" || data["content"] != "<div>body</div>" {
		t.Errorf("unexpected dynamic template data: %v", data)
	}
}

func TestSendGridSend_ForbiddenMapsToEmailBlocked(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"errors":[{"message":"recipient suppressed"}]}`))
	}))
	defer server.Close()

	client := newTestSendGridClient(t, server.URL)

	_, err := client.Send(context.Background(), types.SendInput{To: "x@example.com"})
	if err == nil {
		t.Fatal("expected error for 403")
	}

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *types.AppError, got %T", err)
	}
	if appErr.Code != types.ErrCodeEmailBlocked {
		t.Errorf("expected %s, got %s", types.ErrCodeEmailBlocked, appErr.Code)
	}
}

func TestSendGridSend_BadRequestMapsToEmailProvider(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"errors":[{"message":"invalid from address"}]}`))
	}))
	defer server.Close()

	client := newTestSendGridClient(t, server.URL)

	_, err := client.Send(context.Background(), types.SendInput{To: "x@example.com"})
	if err == nil {
		t.Fatal("expected error for 400")
	}

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *types.AppError, got %T", err)
	}
	if appErr.Code != types.ErrCodeUpstreamEmailProvider {
		t.Errorf("expected %s, got %s", types.ErrCodeUpstreamEmailProvider, appErr.Code)
	}
}

// ---------------------------------------------------------------------------
// Marketing Contacts
// ---------------------------------------------------------------------------

func TestSendGridContactsPage_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v3/marketing/contacts" {
			t.Errorf("expected path /v3/marketing/contacts, got %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("list_ids") != "list-1" {
			t.Errorf("expected list_ids=list-1, got %s", q.Get("list_ids"))
		}
		if q.Get("page_size") != "1000" {
			t.Errorf("expected page_size=1000, got %s", q.Get("page_size"))
		}
		if q.Get("fields") != "email,first_name" {
			t.Errorf("expected fields=email,first_name, got %s", q.Get("fields"))
		}
		if q.Get("page_token") != "" {
			t.Errorf("first page must not send a page_token, got %s", q.Get("page_token"))
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"result": [
				{"email": "a@example.com", "first_name": "Ada"},
				{"email": "b@example.com", "first_name": "Blaise"}
			],
			"_metadata": {"next": "token-2"}
		}`))
	}))
	defer server.Close()

	client := newTestSendGridClient(t, server.URL)

	page, err := client.ContactsPage(context.Background(), types.ContactsPageRequest{
		ListID:   "list-1",
		PageSize: 1000,
	})
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if len(page.Recipients) != 2 {
		t.Fatalf("expected 2 recipients, got %d", len(page.Recipients))
	}
	if page.Recipients[0].Email != "a@example.com" || page.Recipients[0].FirstName != "Ada" {
		t.Errorf("unexpected first recipient: %+v", page.Recipients[0])
	}
	if page.NextPageToken != "token-2" {
		t.Errorf("expected cursor token-2, got %q", page.NextPageToken)
	}
}

func TestSendGridContactsPage_SendsCursor(t *testing.T) {
	var gotToken string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.URL.Query().Get("page_token")
		_, _ = w.Write([]byte(`{"result": [], "_metadata": {}}`))
	}))
	defer server.Close()

	client := newTestSendGridClient(t, server.URL)

	page, err := client.ContactsPage(context.Background(), types.ContactsPageRequest{
		ListID:    "list-1",
		PageSize:  500,
		PageToken: "token-2",
	})
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if gotToken != "token-2" {
		t.Errorf("expected page_token=token-2, got %q", gotToken)
	}
	if page.NextPageToken != "" {
		t.Errorf("absent _metadata.next must yield an empty cursor, got %q", page.NextPageToken)
	}
	if len(page.Recipients) != 0 {
		t.Errorf("expected empty page, got %d recipients", len(page.Recipients))
	}
}

func TestSendGridContactsPage_ErrorMapsToAudienceCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"errors":[{"message":"invalid api key"}]}`))
	}))
	defer server.Close()

	client := newTestSendGridClient(t, server.URL)

	_, err := client.ContactsPage(context.Background(), types.ContactsPageRequest{ListID: "list-1", PageSize: 10})
	if err == nil {
		t.Fatal("expected error for 401")
	}

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *types.AppError, got %T", err)
	}
	if appErr.Code != types.ErrCodeUpstreamAudience {
		t.Errorf("expected %s, got %s", types.ErrCodeUpstreamAudience, appErr.Code)
	}
}
