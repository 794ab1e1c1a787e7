package mlrcontent

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMergeFeedback(t *testing.T) {
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	fb := MergeFeedback(nil, FeedbackUpdate{ProofID: "p", ProofName: "Name", Status: "processing", Event: EventProofProcessed, Timestamp: t0})
	assert.Equal(t, DecisionNone, fb.Decision)
	assert.Equal(t, "Name", fb.ProofName)
	assert.Nil(t, fb.DecidedAt)

	t.Run("decision applies", func(t *testing.T) {
		next := MergeFeedback(&fb, FeedbackUpdate{ProofID: "p", Event: EventProofDecision, Decision: DecisionRejected, Status: "reviewed", Timestamp: t0.Add(time.Hour)})
		assert.Equal(t, DecisionRejected, next.Decision)
		assert.Equal(t, "reviewed", next.Status)
		assert.Equal(t, "Name", next.ProofName, "empty payload fields keep stored values")
		assert.Equal(t, fb.ID, next.ID)

		again := MergeFeedback(&next, FeedbackUpdate{ProofID: "p", Event: EventProofDecision, Decision: DecisionRejected, Status: "reviewed", Timestamp: t0.Add(time.Hour)})
		assert.Equal(t, next, again, "reapplying the same update is a no-op")
	})

	t.Run("stale fields are skipped", func(t *testing.T) {
		current := MergeFeedback(&fb, FeedbackUpdate{ProofID: "p", Event: EventProofStageChanged, CurrentStage: "Legal", Timestamp: t0.Add(2 * time.Hour)})
		stale := MergeFeedback(&current, FeedbackUpdate{ProofID: "p", Event: EventProofStageChanged, CurrentStage: "Medical", Timestamp: t0.Add(time.Hour)})
		assert.Equal(t, "Legal", stale.CurrentStage)
		assert.Equal(t, current.UpdatedAt, stale.UpdatedAt)
	})

	t.Run("late decision still recorded", func(t *testing.T) {
		current := MergeFeedback(&fb, FeedbackUpdate{ProofID: "p", Event: EventProofStageChanged, CurrentStage: "Legal", Timestamp: t0.Add(2 * time.Hour)})
		late := MergeFeedback(&current, FeedbackUpdate{ProofID: "p", Event: EventProofDecision, Decision: DecisionApproved, CurrentStage: "Old", Timestamp: t0.Add(time.Hour)})
		assert.Equal(t, DecisionApproved, late.Decision)
		assert.Equal(t, EventProofDecision, late.LastEvent)
		assert.Equal(t, "Legal", late.CurrentStage)
	})

	t.Run("older decision does not replace newer", func(t *testing.T) {
		newer := MergeFeedback(&fb, FeedbackUpdate{ProofID: "p", Event: EventProofDecision, Decision: DecisionApproved, Timestamp: t0.Add(3 * time.Hour)})
		older := MergeFeedback(&newer, FeedbackUpdate{ProofID: "p", Event: EventProofDecision, Decision: DecisionRejected, Timestamp: t0.Add(2 * time.Hour)})
		assert.Equal(t, DecisionApproved, older.Decision)
	})

	t.Run("non decision never clears decision", func(t *testing.T) {
		decided := MergeFeedback(&fb, FeedbackUpdate{ProofID: "p", Event: EventProofDecision, Decision: DecisionApproved, Timestamp: t0.Add(time.Hour)})
		later := MergeFeedback(&decided, FeedbackUpdate{ProofID: "p", Event: EventProofProcessed, Timestamp: t0.Add(4 * time.Hour)})
		assert.Equal(t, DecisionApproved, later.Decision)
		assert.Equal(t, EventProofProcessed, later.LastEvent)
	})
}
