package newsletter

import (
	"context"
	"fmt"
	"log/slog"

	"dailybrief/internal/external"
	"dailybrief/internal/types"
)

// Mailer builds the provider payload for one recipient and submits it.
// Exactly one send attempt per recipient; no retry.
type Mailer struct {
	provider   external.EmailProvider
	from       types.SenderIdentity
	replyTo    types.SenderIdentity
	templateID string
	logger     *slog.Logger
}

// MailerConfig holds the settings for constructing a Mailer.
//
// When TemplateID is set, sends are template-bound: subject and content
// travel as dynamic template variables and replies route to the ReplyTo
// inbox, which is intentionally distinct from the from-address so replies can
// later feed the customization store out-of-band. When TemplateID is empty,
// the message is a fully inline HTML send.
type MailerConfig struct {
	Provider   external.EmailProvider
	From       types.SenderIdentity
	ReplyTo    types.SenderIdentity
	TemplateID string
	Logger     *slog.Logger
}

// NewMailer creates a new Mailer.
func NewMailer(cfg MailerConfig) *Mailer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Mailer{
		provider:   cfg.Provider,
		from:       cfg.From,
		replyTo:    cfg.ReplyTo,
		templateID: cfg.TemplateID,
		logger:     logger,
	}
}

// subjectFor builds the personalized subject line for a recipient.
func subjectFor(r types.Recipient) string {
	return fmt.Sprintf("Hi %s, here's your daily newsletter!", r.FirstName)
}

// Send binds the recipient and generated content into a provider payload and
// submits it once. Errors carry ErrCodeUpstreamEmailProvider or
// ErrCodeEmailBlocked and are fatal to this recipient only.
func (m *Mailer) Send(ctx context.Context, r types.Recipient, html string) error {
	input := types.SendInput{
		To:          r.Email,
		ToName:      r.FirstName,
		From:        m.from,
		Subject:     subjectFor(r),
		HTML:        html,
		ReferenceID: types.GetRunID(ctx),
	}

	if m.templateID != "" {
		input.TemplateID = m.templateID
		input.ReplyTo = m.replyTo
		input.TemplateData = map[string]interface{}{
			"subject":    subjectFor(r),
			"first_name": r.FirstName,
			"content":    html,
		}
		// Inline fields are ignored on the template path; keeping the
		// subject set makes stub/provider logs readable either way.
	}

	msgID, err := m.provider.Send(ctx, input)
	if err != nil {
		return err
	}

	m.logger.InfoContext(ctx, "email sent",
		"to", r.Email,
		"provider_message_id", msgID,
	)
	return nil
}
