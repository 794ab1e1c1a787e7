package mlrcontent

import (
	"github.com/google/uuid"
)

// MergeFeedback applies u to existing, or starts a new row when existing is nil.
//
// Payload fields (name, status, stage, last event) only apply when the event
// is not older than the stored UpdatedAt. A decision applies when it is not
// older than the decision already recorded, and is never cleared by
// non-decision events. Applying the same update twice yields the same row.
func MergeFeedback(existing *ReviewFeedback, u FeedbackUpdate) ReviewFeedback {
	var fb ReviewFeedback
	fresh := true
	if existing == nil {
		fb = ReviewFeedback{
			ID:        uuid.New(),
			ProofID:   u.ProofID,
			Decision:  DecisionNone,
			CreatedAt: u.Timestamp,
		}
	} else {
		fb = *existing
		fb.Comments = nil
		fresh = !u.Timestamp.Before(existing.UpdatedAt)
	}

	decided := false
	if u.Decision != "" && u.Decision != DecisionNone {
		if fb.DecidedAt == nil || !u.Timestamp.Before(*fb.DecidedAt) {
			ts := u.Timestamp
			fb.Decision = u.Decision
			fb.DecidedAt = &ts
			decided = true
		}
	}

	if fresh {
		if u.ProofName != "" {
			fb.ProofName = u.ProofName
		}
		if u.Status != "" {
			fb.Status = u.Status
		}
		if u.CurrentStage != "" {
			fb.CurrentStage = u.CurrentStage
		}
		fb.LastEvent = u.Event
		fb.UpdatedAt = u.Timestamp
	} else if decided {
		fb.LastEvent = u.Event
	}

	return fb
}
