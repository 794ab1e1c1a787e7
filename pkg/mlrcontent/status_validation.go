package mlrcontent

import "fmt"

var allowedTransitions = map[ContentStatus][]ContentStatus{
	ContentStatusDraft:            {ContentStatusPendingReview},
	ContentStatusPendingReview:    {ContentStatusApproved, ContentStatusRejected, ContentStatusChangesRequested},
	ContentStatusChangesRequested: {ContentStatusDraft, ContentStatusPendingReview},
	ContentStatusApproved:         nil,
	ContentStatusRejected:         nil,
}

// CanTransition checks whether an item may move from one status to another.
// Moving to the current status is always allowed and is a no-op.
func CanTransition(from, to ContentStatus) error {
	if !to.IsValid() {
		return &ValidationError{Field: "status", Err: fmt.Errorf("%w: %s", ErrInvalidStatus, to)}
	}
	if from == to {
		return nil
	}
	for _, next := range allowedTransitions[from] {
		if next == to {
			return nil
		}
	}
	return &ValidationError{Field: "status", Err: fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)}
}

// IsTerminal reports whether no further transition is possible from s.
func IsTerminal(s ContentStatus) bool {
	return s == ContentStatusApproved || s == ContentStatusRejected
}

// canEditHTML checks whether a new version may be appended in status s.
func canEditHTML(s ContentStatus) error {
	if IsTerminal(s) {
		return &ValidationError{Field: "htmlContent", Err: fmt.Errorf("%w: content is %s", ErrInvalidTransition, s)}
	}
	return nil
}
