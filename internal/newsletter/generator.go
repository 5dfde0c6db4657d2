package newsletter

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"dailybrief/internal/external"
	"dailybrief/internal/types"
)

// systemPrompt sets the voice of the newsletter.
const systemPrompt = `Be friendly, interesting and scientific.`

// baseUserPrompt is the fixed section checklist every edition follows.
const baseUserPrompt = `Pretend you are the creator of a daily email newsletter. Craft an email with basic HTML formatting, that includes the following sections:
 - An inspirational quote
 - A 1-2 paragraph write-up of a current event or interesting topic from technology, politics, fashion, entertainment, or science.
 - A link to information where I can learn more about the topic above
 - A human interest story about a real person with a relevant connection to today's newsletter topic
 - A link to learn more about this person's work or life
 - An embedded YouTube video I might enjoy, related to the same topic as the email so far
 - A podcast I might enjoy listening to
The newsletter should be returned as the body of a simple HTML email, with no additional commentary, in a <div> container tag.`

// allowedTags is the HTML tag allow-list applied (as a prompt-level
// instruction only, not an enforced parse) when customization-aware
// generation is used.
const allowedTags = "div, strong, em, blockquote, table, tr, td, tbody, h1, h2, h3, p, a"

// fencePattern matches the fenced-code-block wrapper the provider is known to
// sometimes emit around its answer: a leading "```html\n" or a trailing
// "\n```".
var fencePattern = regexp.MustCompile("^```html\n|\n```$")

// ContentGenerator assembles a prompt from the base instructions plus any
// recipient customizations, calls the generation provider, and post-processes
// the raw text into a bare HTML fragment.
type ContentGenerator struct {
	completions external.CompletionProvider
	logger      *slog.Logger
}

// NewContentGenerator creates a new ContentGenerator.
func NewContentGenerator(completions external.CompletionProvider, logger *slog.Logger) *ContentGenerator {
	if logger == nil {
		logger = slog.Default()
	}
	return &ContentGenerator{
		completions: completions,
		logger:      logger,
	}
}

// Generate produces one fresh newsletter body. Content is never cached or
// reused across recipients, even for identical customizations: each call
// reflects this run's recency window and is recipient-addressed.
//
// When customizations are non-empty they are appended verbatim as additional
// directives and the output is restricted to the tag allow-list; an empty set
// takes the unrestricted base-prompt path, so the two cases are observably
// different.
//
// Errors carry ErrCodeUpstreamGeneration or ErrCodeGenerationMalformed and
// are fatal to the one recipient being processed, never to the batch.
func (g *ContentGenerator) Generate(ctx context.Context, customizations []string) (string, error) {
	raw, err := g.completions.Complete(ctx, types.CompletionRequest{
		System: systemPrompt,
		User:   g.buildUserPrompt(customizations),
	})
	if err != nil {
		return "", err
	}

	return stripFence(raw), nil
}

// buildUserPrompt appends any customizations to the base checklist.
func (g *ContentGenerator) buildUserPrompt(customizations []string) string {
	if len(customizations) == 0 {
		return baseUserPrompt
	}

	var b strings.Builder
	b.WriteString(baseUserPrompt)
	b.WriteString("\nAdditionally, the reader has sent these requests about the newsletter; follow them where they apply:\n")
	for _, c := range customizations {
		fmt.Fprintf(&b, " - %s\n", c)
	}
	fmt.Fprintf(&b, "Use only the following HTML tags: %s.", allowedTags)
	return b.String()
}

// stripFence removes the markdown code-fence wrapper artifact, leaving a bare
// HTML fragment. No other sanitization is performed; the allow-list is a
// prompt-level constraint and downstream rendering is trusted to show the
// HTML only to the intended recipient.
func stripFence(raw string) string {
	return fencePattern.ReplaceAllString(raw, "")
}
