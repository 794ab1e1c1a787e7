package mlrcontent_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/mlr-content/pkg/mlrcontent"
	"github.com/tendant/mlr-content/pkg/mlrcontent/repo/memory"
)

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func TestParseWebhookEvent_Variants(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"processed", `{"event":"proof.processed","proof":{"id":"p-1","name":"Spring","status":"processed"}}`, mlrcontent.EventProofProcessed},
		{"stage", `{"event":"proof.stage_changed","proof":{"id":"p-1","current_stage":"Legal"}}`, mlrcontent.EventProofStageChanged},
		{"decision", `{"event":"proof.decision","proof":{"id":"p-1","decision":"approved"}}`, mlrcontent.EventProofDecision},
		{"comment", `{"event":"proof.commented","proof":{"id":"p-1"},"comments":[]}`, mlrcontent.EventProofCommented},
		{"unknown", `{"event":"proof.archived","proof":{"id":"p-1"}}`, "proof.archived"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ev, err := mlrcontent.ParseWebhookEvent([]byte(tc.body), fixedNow)
			require.NoError(t, err)
			assert.Equal(t, tc.want, ev.EventName())
			assert.Equal(t, "p-1", ev.ProofRef().ID)
			assert.Equal(t, fixedNow, ev.OccurredAt(), "missing timestamp defaults to now")
		})
	}

	ev, err := mlrcontent.ParseWebhookEvent([]byte(`{"event":"proof.archived","proof":{"id":"p-1"}}`), fixedNow)
	require.NoError(t, err)
	_, ok := ev.(*mlrcontent.UnrecognizedEvent)
	assert.True(t, ok)
}

func TestParseWebhookEvent_Validation(t *testing.T) {
	bodies := map[string]string{
		"missing proof":     `{"event":"proof.processed"}`,
		"missing proof id":  `{"event":"proof.processed","proof":{"name":"x"}}`,
		"missing event":     `{"proof":{"id":"p-1"}}`,
		"bad json":          `{"event":`,
		"invalid timestamp": `{"event":"proof.processed","proof":{"id":"p-1"},"timestamp":"yesterday"}`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			_, err := mlrcontent.ParseWebhookEvent([]byte(body), fixedNow)
			var verr *mlrcontent.ValidationError
			assert.ErrorAs(t, err, &verr)
		})
	}

	_, err := mlrcontent.ParseWebhookEvent([]byte(`{"event":"proof.processed","proof":{}}`), fixedNow)
	assert.ErrorIs(t, err, mlrcontent.ErrMissingProofID)
}

func TestParseWebhookEvent_Details(t *testing.T) {
	body := `{
		"event": "proof.commented",
		"proof": {"id": 12345, "name": "Spring"},
		"timestamp": "2025-03-01T10:00:00Z",
		"comments": [
			{"id": "c-1", "content": "Shorten headline", "author": {"name": "Rev", "email": "rev@example.com"}, "page": 1, "x": 0.5, "y": 0.25},
			{"text": "No id here", "author_name": "Other"}
		]
	}`
	ev, err := mlrcontent.ParseWebhookEvent([]byte(body), fixedNow)
	require.NoError(t, err)

	commented, ok := ev.(*mlrcontent.ProofCommented)
	require.True(t, ok)
	assert.Equal(t, "12345", commented.Proof.ID, "numeric proof ids are accepted")
	assert.Equal(t, time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC), commented.Timestamp)
	require.Len(t, commented.Comments, 2)

	first := commented.Comments[0]
	assert.Equal(t, "c-1", first.ExternalCommentID)
	assert.Equal(t, "Rev", first.AuthorName)
	assert.Equal(t, "rev@example.com", first.AuthorEmail)
	require.NotNil(t, first.Page)
	assert.Equal(t, 1, *first.Page)

	second := commented.Comments[1]
	assert.Equal(t, "No id here", second.Content)
	assert.NotEmpty(t, second.ExternalCommentID)

	again, err := mlrcontent.ParseWebhookEvent([]byte(body), fixedNow.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, second.ExternalCommentID, again.(*mlrcontent.ProofCommented).Comments[1].ExternalCommentID,
		"derived comment ids are stable across deliveries")
}

func TestNormalizeDecision(t *testing.T) {
	cases := map[string]mlrcontent.Decision{
		"approved":              mlrcontent.DecisionApproved,
		"Approved":              mlrcontent.DecisionApproved,
		"rejected":              mlrcontent.DecisionRejected,
		"not approved":          mlrcontent.DecisionRejected,
		"changes_requested":     mlrcontent.DecisionChangesRequested,
		"approved-with-changes": mlrcontent.DecisionChangesRequested,
		"changes required":      mlrcontent.DecisionChangesRequested,
	}
	for raw, want := range cases {
		got, ok := mlrcontent.NormalizeDecision(raw)
		assert.True(t, ok, raw)
		assert.Equal(t, want, got, raw)
	}
	got, ok := mlrcontent.NormalizeDecision("None")
	assert.True(t, ok)
	assert.Equal(t, mlrcontent.DecisionNone, got)

	_, ok = mlrcontent.NormalizeDecision("")
	assert.False(t, ok)
}

func newIngestor(t *testing.T) (*mlrcontent.WebhookIngestor, *memory.Repository, *mlrcontent.ContentStore) {
	t.Helper()
	repo := memory.New()
	store, err := mlrcontent.NewContentStore(repo)
	require.NoError(t, err)
	ing, err := mlrcontent.NewWebhookIngestor(repo,
		mlrcontent.WithDecisionPropagation(store),
		mlrcontent.WithIngestorClock(func() time.Time { return fixedNow }),
	)
	require.NoError(t, err)
	return ing, repo, store
}

func TestWebhookIngestor_DuplicateDeliveryIsIdempotent(t *testing.T) {
	ing, repo, _ := newIngestor(t)
	ctx := context.Background()

	decision := []byte(`{"event":"proof.decision","proof":{"id":"p-123","status":"reviewed","decision":"changes_requested"},"timestamp":"2025-03-01T10:00:00Z"}`)
	first, err := ing.Ingest(ctx, decision)
	require.NoError(t, err)
	second, err := ing.Ingest(ctx, decision)
	require.NoError(t, err)
	assert.Equal(t, first.FeedbackID, second.FeedbackID)
	assert.Equal(t, "p-123", first.ProofID)
	assert.Equal(t, mlrcontent.EventProofDecision, first.Event)

	all, err := repo.ListFeedback(ctx, mlrcontent.ListFeedbackFilters{})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, mlrcontent.DecisionChangesRequested, all[0].Decision)

	comment := []byte(`{"event":"proof.commented","proof":{"id":"p-123"},"comments":[{"id":"c-1","content":"Shorten headline"},{"id":"c-2","content":"Fix color"}]}`)
	res, err := ing.Ingest(ctx, comment)
	require.NoError(t, err)
	assert.Equal(t, 2, res.CommentsAdded)
	res, err = ing.Ingest(ctx, comment)
	require.NoError(t, err)
	assert.Equal(t, 0, res.CommentsAdded)

	fb, err := ing.GetFeedback(ctx, "p-123")
	require.NoError(t, err)
	assert.Len(t, fb.Comments, 2)
}

func TestWebhookIngestor_OutOfOrderEvents(t *testing.T) {
	ing, _, _ := newIngestor(t)
	ctx := context.Background()

	_, err := ing.Ingest(ctx, []byte(`{"event":"proof.decision","proof":{"id":"p-1","status":"reviewed","current_stage":"Final","decision":"approved"},"timestamp":"2025-03-01T10:00:00Z"}`))
	require.NoError(t, err)

	// older stage change arrives late
	_, err = ing.Ingest(ctx, []byte(`{"event":"proof.stage_changed","proof":{"id":"p-1","status":"in_review","current_stage":"Medical"},"timestamp":"2025-03-01T09:00:00Z"}`))
	require.NoError(t, err)

	fb, err := ing.GetFeedback(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, "Final", fb.CurrentStage)
	assert.Equal(t, "reviewed", fb.Status)
	assert.Equal(t, mlrcontent.EventProofDecision, fb.LastEvent)
	assert.Equal(t, mlrcontent.DecisionApproved, fb.Decision)

	// newer non-decision event updates fields but keeps the decision
	_, err = ing.Ingest(ctx, []byte(`{"event":"proof.processed","proof":{"id":"p-1","status":"complete"},"timestamp":"2025-03-01T11:00:00Z"}`))
	require.NoError(t, err)
	fb, err = ing.GetFeedback(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, "complete", fb.Status)
	assert.Equal(t, mlrcontent.EventProofProcessed, fb.LastEvent)
	assert.Equal(t, mlrcontent.DecisionApproved, fb.Decision)
}

func TestWebhookIngestor_PropagatesDecisionToContent(t *testing.T) {
	ing, _, store := newIngestor(t)
	ctx := context.Background()

	item, err := store.SaveContent(ctx, mlrcontent.SaveContentRequest{ContentType: mlrcontent.ContentTypeEmail, Audience: mlrcontent.AudienceHCP, HTML: "<p>A</p>"})
	require.NoError(t, err)
	_, err = store.UpdateContentStatus(ctx, item.ID, mlrcontent.ContentStatusPendingReview, "p-55")
	require.NoError(t, err)

	_, err = ing.Ingest(ctx, []byte(`{"event":"proof.decision","proof":{"id":"p-55","decision":"changes_requested"}}`))
	require.NoError(t, err)

	got, err := store.GetContent(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, mlrcontent.ContentStatusChangesRequested, got.Status)
}

func TestWebhookIngestor_UnrecognizedEventIsStored(t *testing.T) {
	ing, _, _ := newIngestor(t)
	ctx := context.Background()

	res, err := ing.Ingest(ctx, []byte(`{"event":"proof.archived","proof":{"id":"p-9","status":"archived"}}`))
	require.NoError(t, err)
	assert.Equal(t, "proof.archived", res.Event)

	fb, err := ing.GetFeedback(ctx, "p-9")
	require.NoError(t, err)
	assert.Equal(t, "proof.archived", fb.LastEvent)
	assert.Equal(t, mlrcontent.DecisionNone, fb.Decision)
}

func TestWebhookIngestor_QueryAndDelete(t *testing.T) {
	ing, _, _ := newIngestor(t)
	ctx := context.Background()

	_, err := ing.Ingest(ctx, []byte(`{"event":"proof.decision","proof":{"id":"p-a","decision":"approved"}}`))
	require.NoError(t, err)
	_, err = ing.Ingest(ctx, []byte(`{"event":"proof.decision","proof":{"id":"p-b","decision":"rejected"}}`))
	require.NoError(t, err)

	approved, err := ing.ListFeedback(ctx, mlrcontent.ListFeedbackFilters{Decision: mlrcontent.DecisionApproved})
	require.NoError(t, err)
	require.Len(t, approved, 1)
	assert.Equal(t, "p-a", approved[0].ProofID)

	_, err = ing.ListFeedback(ctx, mlrcontent.ListFeedbackFilters{Decision: "maybe"})
	var verr *mlrcontent.ValidationError
	assert.ErrorAs(t, err, &verr)

	require.NoError(t, ing.DeleteFeedback(ctx, "p-a"))
	_, err = ing.GetFeedback(ctx, "p-a")
	assert.ErrorIs(t, err, mlrcontent.ErrFeedbackNotFound)
	assert.ErrorIs(t, ing.DeleteFeedback(ctx, "p-a"), mlrcontent.ErrFeedbackNotFound)
}

func TestWebhookIngestor_ListFeedbackPagination(t *testing.T) {
	ing, _, _ := newIngestor(t)
	ctx := context.Background()

	for i := 0; i < 120; i++ {
		_, err := ing.Ingest(ctx, []byte(fmt.Sprintf(`{"event":"proof.processed","proof":{"id":"p-%d"}}`, i)))
		require.NoError(t, err)
	}

	page, err := ing.ListFeedback(ctx, mlrcontent.ListFeedbackFilters{})
	require.NoError(t, err)
	assert.Len(t, page, mlrcontent.DefaultListLimit)

	page, err = ing.ListFeedback(ctx, mlrcontent.ListFeedbackFilters{Limit: 1000})
	require.NoError(t, err)
	assert.Len(t, page, mlrcontent.MaxListLimit)

	page, err = ing.ListFeedback(ctx, mlrcontent.ListFeedbackFilters{Offset: 110})
	require.NoError(t, err)
	assert.Len(t, page, 10, "offset applies without an explicit limit")
}

func TestWebhookIngestor_DecisionWithoutKnownOutcomeIsRecorded(t *testing.T) {
	bodies := map[string]string{
		"missing": `{"event":"proof.decision","proof":{"id":"p-9","status":"reviewed","current_stage":"Legal"},"timestamp":"2025-03-01T10:00:00Z"}`,
		"none":    `{"event":"proof.decision","proof":{"id":"p-9","status":"reviewed","current_stage":"Legal","decision":"none"},"timestamp":"2025-03-01T10:00:00Z"}`,
		"unknown": `{"event":"proof.decision","proof":{"id":"p-9","status":"reviewed","current_stage":"Legal","decision":"approved_with_conditions"},"timestamp":"2025-03-01T10:00:00Z"}`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			ev, err := mlrcontent.ParseWebhookEvent([]byte(body), fixedNow)
			require.NoError(t, err)
			decided, ok := ev.(*mlrcontent.ProofDecision)
			require.True(t, ok)
			assert.Equal(t, mlrcontent.DecisionNone, decided.Decision)

			ing, _, store := newIngestor(t)
			ctx := context.Background()
			item, err := store.SaveContent(ctx, mlrcontent.SaveContentRequest{
				ContentType: mlrcontent.ContentTypeEmail,
				Audience:    mlrcontent.AudienceHCP,
				HTML:        "<p>A</p>",
			})
			require.NoError(t, err)
			_, err = store.UpdateContentStatus(ctx, item.ID, mlrcontent.ContentStatusPendingReview, "p-9")
			require.NoError(t, err)

			res, err := ing.Ingest(ctx, []byte(body))
			require.NoError(t, err)
			assert.Equal(t, "p-9", res.ProofID)

			fb, err := ing.GetFeedback(ctx, "p-9")
			require.NoError(t, err)
			assert.Equal(t, mlrcontent.DecisionNone, fb.Decision)
			assert.Equal(t, "reviewed", fb.Status)
			assert.Equal(t, "Legal", fb.CurrentStage)
			assert.Equal(t, mlrcontent.EventProofDecision, fb.LastEvent)

			got, err := store.GetContent(ctx, item.ID)
			require.NoError(t, err)
			assert.Equal(t, mlrcontent.ContentStatusPendingReview, got.Status, "content status is untouched")
		})
	}
}
