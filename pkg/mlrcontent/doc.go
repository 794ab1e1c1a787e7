// Package mlrcontent implements the content lifecycle and approval workflow
// for regulated marketing material that passes through an external
// Medical/Legal/Regulatory (MLR) review.
//
// Content is stored as an immutable version chain behind a Repository. The
// ApprovalWorkflow submits stored content to the external review service
// (a ReviewService), the WebhookIngestor records the review service's
// asynchronous lifecycle events, and the FeedbackOptimizer turns reviewer
// comments into a revised artifact that re-enters the cycle as a new version.
//
// Storage backends (memory, Postgres), the review service client, generation
// clients, upload sinks, caches and event sinks live in subpackages and are
// wired together by the config package.
//
// Status lifecycle
//
//	draft -> pending_review -> approved | rejected | changes_requested
//	changes_requested -> draft (new version) -> pending_review
//
// approved and rejected are terminal for an item; a derivative item (one
// created with a ParentID) starts a fresh cycle.
package mlrcontent
