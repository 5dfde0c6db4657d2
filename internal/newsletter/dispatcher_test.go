package newsletter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dailybrief/internal/types"
)

type scriptedGenerator struct {
	// errFor maps an invocation index (0-based) to an error; other
	// invocations succeed.
	errFor map[int]error
	calls  int
	seen   [][]string
}

func (g *scriptedGenerator) Generate(_ context.Context, customizations []string) (string, error) {
	idx := g.calls
	g.calls++
	g.seen = append(g.seen, customizations)
	if err, ok := g.errFor[idx]; ok {
		return "", err
	}
	return "<div>edition</div>", nil
}

type scriptedSender struct {
	errFor map[string]error
	sent   []string
}

func (s *scriptedSender) Send(_ context.Context, r types.Recipient, _ string) error {
	s.sent = append(s.sent, r.Email)
	return s.errFor[r.Email]
}

type mapLoader map[string][]string

func (m mapLoader) Load(_ context.Context, email string) []string { return m[email] }

type recordingMetrics struct {
	sends     []types.OutcomeStatus
	latencies int
	audience  []int
}

func (m *recordingMetrics) RecordSend(_ context.Context, status types.OutcomeStatus) {
	m.sends = append(m.sends, status)
}

func (m *recordingMetrics) RecordSendLatency(_ context.Context, _ time.Duration) {
	m.latencies++
}

func (m *recordingMetrics) RecordAudienceSize(_ context.Context, n int) {
	m.audience = append(m.audience, n)
}

func testRecipients() []types.Recipient {
	return []types.Recipient{
		{Email: "a@example.com", FirstName: "Ada"},
		{Email: "b@example.com", FirstName: "Blaise"},
		{Email: "c@example.com", FirstName: "Curie"},
	}
}

func TestRun_OneOutcomePerRecipientInOrder(t *testing.T) {
	gen := &scriptedGenerator{}
	sender := &scriptedSender{}
	d := NewBatchDispatcher(BatchDispatcherConfig{Generator: gen, Sender: sender})

	outcomes := d.Run(context.Background(), testRecipients())

	require.Len(t, outcomes, 3)
	for i, email := range []string{"a@example.com", "b@example.com", "c@example.com"} {
		assert.Equal(t, email, outcomes[i].Email)
		assert.Equal(t, types.OutcomeSuccess, outcomes[i].Status)
		assert.Equal(t, successMessage, outcomes[i].Message)
	}
	assert.Equal(t, 3, gen.calls, "content must be generated fresh per recipient")
}

func TestRun_FailureIsolatedToOneRecipient(t *testing.T) {
	gen := &scriptedGenerator{
		errFor: map[int]error{
			1: types.NewAppError(types.ErrCodeUpstreamGeneration, "generation failed", errors.New("boom")),
		},
	}
	sender := &scriptedSender{}
	d := NewBatchDispatcher(BatchDispatcherConfig{Generator: gen, Sender: sender})

	outcomes := d.Run(context.Background(), testRecipients())

	require.Len(t, outcomes, 3)
	assert.Equal(t, types.OutcomeSuccess, outcomes[0].Status)
	assert.Equal(t, types.OutcomeError, outcomes[1].Status)
	assert.Contains(t, outcomes[1].Message, "generation failed")
	assert.Equal(t, types.OutcomeSuccess, outcomes[2].Status, "a failure must not affect later recipients")

	// No send is attempted for the recipient whose generation failed.
	assert.Equal(t, []string{"a@example.com", "c@example.com"}, sender.sent)
}

func TestRun_SendFailureRecordedAsErrorOutcome(t *testing.T) {
	gen := &scriptedGenerator{}
	sender := &scriptedSender{
		errFor: map[string]error{
			"b@example.com": types.NewAppError(types.ErrCodeUpstreamEmailProvider, "mail provider rejected the message", nil),
		},
	}
	d := NewBatchDispatcher(BatchDispatcherConfig{Generator: gen, Sender: sender})

	outcomes := d.Run(context.Background(), testRecipients())

	require.Len(t, outcomes, 3)
	assert.Equal(t, types.OutcomeError, outcomes[1].Status)
	assert.Contains(t, outcomes[1].Message, "mail provider rejected")
	assert.Equal(t, types.OutcomeSuccess, outcomes[2].Status)
}

func TestRun_CustomizationsFlowIntoGeneration(t *testing.T) {
	gen := &scriptedGenerator{}
	sender := &scriptedSender{}
	loader := mapLoader{"b@example.com": {"make it shorter"}}
	d := NewBatchDispatcher(BatchDispatcherConfig{
		Customizations: loader,
		Generator:      gen,
		Sender:         sender,
	})

	d.Run(context.Background(), testRecipients())

	require.Len(t, gen.seen, 3)
	assert.Empty(t, gen.seen[0])
	assert.Equal(t, []string{"make it shorter"}, gen.seen[1])
	assert.Empty(t, gen.seen[2])
}

func TestRun_NilLoaderBehavesAsEmptyStore(t *testing.T) {
	gen := &scriptedGenerator{}
	d := NewBatchDispatcher(BatchDispatcherConfig{Generator: gen, Sender: &scriptedSender{}})

	outcomes := d.Run(context.Background(), testRecipients()[:1])

	require.Len(t, outcomes, 1)
	assert.Equal(t, types.OutcomeSuccess, outcomes[0].Status)
	assert.Empty(t, gen.seen[0])
}

func TestRun_EmptyAudience(t *testing.T) {
	d := NewBatchDispatcher(BatchDispatcherConfig{Generator: &scriptedGenerator{}, Sender: &scriptedSender{}})

	outcomes := d.Run(context.Background(), nil)

	assert.Empty(t, outcomes)
}

func TestRun_RecordsMetricsPerRecipient(t *testing.T) {
	metrics := &recordingMetrics{}
	gen := &scriptedGenerator{
		errFor: map[int]error{2: errors.New("boom")},
	}
	d := NewBatchDispatcher(BatchDispatcherConfig{
		Generator: gen,
		Sender:    &scriptedSender{},
		Metrics:   metrics,
	})

	d.Run(context.Background(), testRecipients())

	require.Len(t, metrics.sends, 3)
	assert.Equal(t, []types.OutcomeStatus{
		types.OutcomeSuccess,
		types.OutcomeSuccess,
		types.OutcomeError,
	}, metrics.sends)
	assert.Equal(t, 3, metrics.latencies)
}
