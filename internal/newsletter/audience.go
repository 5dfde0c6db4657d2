// Package newsletter implements the recipient-batch processing pipeline:
// paginated audience retrieval, per-recipient content generation, and
// resilient sequential fan-out dispatch with isolated per-item failure
// handling.
package newsletter

import (
	"context"
	"log/slog"

	"dailybrief/internal/external"
	"dailybrief/internal/types"
)

// AudienceSource retrieves the full recipient list from the marketing
// contacts provider, transparently paging until exhausted.
type AudienceSource struct {
	contacts external.AudienceProvider
	listID   string
	pageSize int
	maxPages int
	logger   *slog.Logger
}

// AudienceSourceConfig holds the settings for constructing an AudienceSource.
type AudienceSourceConfig struct {
	Contacts external.AudienceProvider
	ListID   string
	PageSize int
	// MaxPages caps pagination against a provider bug that never stops
	// returning cursors.
	MaxPages int
	Logger   *slog.Logger
}

// NewAudienceSource creates a new AudienceSource.
func NewAudienceSource(cfg AudienceSourceConfig) *AudienceSource {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 || pageSize > 1000 {
		pageSize = 1000
	}
	maxPages := cfg.MaxPages
	if maxPages <= 0 {
		maxPages = 50
	}
	return &AudienceSource{
		contacts: cfg.Contacts,
		listID:   cfg.ListID,
		pageSize: pageSize,
		maxPages: maxPages,
		logger:   logger,
	}
}

// FetchAudience returns the configured list's recipients, accumulated across
// pages until the provider reports no further cursor.
//
// If any single page request fails, pagination stops and whatever has been
// accumulated so far is returned. This is a deliberate
// availability-over-completeness tradeoff: a transient provider error
// mid-pagination should not block the day's newsletter for already-known
// recipients. An empty list is a valid, non-error result.
func (a *AudienceSource) FetchAudience(ctx context.Context) []types.Recipient {
	// Non-nil so an empty audience serializes as a JSON array.
	all := []types.Recipient{}
	pageToken := ""

	for page := 0; page < a.maxPages; page++ {
		result, err := a.contacts.ContactsPage(ctx, types.ContactsPageRequest{
			ListID:    a.listID,
			PageSize:  a.pageSize,
			PageToken: pageToken,
		})
		if err != nil {
			a.logger.ErrorContext(ctx, "audience page fetch failed, truncating pagination",
				"page", page,
				"accumulated", len(all),
				"error", err.Error(),
			)
			break
		}

		all = append(all, result.Recipients...)

		if result.NextPageToken == "" {
			break
		}
		pageToken = result.NextPageToken
	}

	a.logger.InfoContext(ctx, "audience retrieved",
		"list_id", a.listID,
		"recipients", len(all),
	)

	return all
}
