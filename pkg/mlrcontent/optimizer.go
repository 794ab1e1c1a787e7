package mlrcontent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// FeedbackOptimizer asks a generation backend to revise HTML according to reviewer feedback.
type FeedbackOptimizer struct {
	generator Generator
	timeout   time.Duration
}

// NewFeedbackOptimizer creates an optimizer. timeout <= 0 selects DefaultUpstreamTimeout.
func NewFeedbackOptimizer(generator Generator, timeout time.Duration) (*FeedbackOptimizer, error) {
	if generator == nil {
		return nil, &ConfigurationError{Key: "generator"}
	}
	if timeout <= 0 {
		timeout = DefaultUpstreamTimeout
	}
	return &FeedbackOptimizer{generator: generator, timeout: timeout}, nil
}

// Optimize returns a revised artifact. The safety-information constraint is
// part of the prompt only; ISIPreserved reports the post-hoc comparison.
func (o *FeedbackOptimizer) Optimize(ctx context.Context, req OptimizeRequest) (*OptimizeResult, error) {
	if strings.TrimSpace(req.OriginalHTML) == "" {
		return nil, NewValidationError("originalContent", "original content is required")
	}
	if req.ContentType != "" && !req.ContentType.IsValid() {
		return nil, &ValidationError{Field: "contentType", Err: fmt.Errorf("%w: %q", ErrInvalidContentType, req.ContentType)}
	}
	var feedback []FeedbackItem
	for _, f := range req.Feedback {
		if strings.TrimSpace(f.Content) != "" {
			feedback = append(feedback, f)
		}
	}
	if len(feedback) == 0 {
		return nil, NewValidationError("feedback", "at least one feedback item is required")
	}
	req.Feedback = feedback

	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	text, err := o.generator.Generate(callCtx, RevisionPrompt(req))
	if err != nil {
		return nil, asTimeout("optimize content", o.timeout, err)
	}

	optimized := StripCodeFence(text)
	if optimized == "" {
		return nil, &UpstreamServiceError{Service: "generation", Op: "optimize content", Err: errors.New("empty response")}
	}

	addressed := make([]string, 0, len(feedback))
	for _, f := range feedback {
		addressed = append(addressed, f.Content)
	}

	return &OptimizeResult{
		OptimizedHTML:     optimized,
		ChangesSummary:    SummarizeChanges(req.OriginalHTML, optimized),
		FeedbackAddressed: addressed,
		ISIPreserved:      ISIPreserved(req.OriginalHTML, optimized),
	}, nil
}

// RevisionPrompt builds the instruction sent to the generation backend.
func RevisionPrompt(req OptimizeRequest) string {
	var b strings.Builder
	contentType := req.ContentType
	if contentType == "" {
		contentType = ContentTypeEmail
	}
	fmt.Fprintf(&b, "You are revising a pharmaceutical marketing %s for %s based on MLR reviewer feedback.\n\n",
		contentType, req.Audience.Label())

	b.WriteString("Rules:\n")
	b.WriteString("1. Preserve the Important Safety Information (ISI) markup exactly, byte for byte.\n")
	b.WriteString("2. Preserve the overall HTML structure, layout and styling.\n")
	b.WriteString("3. Change only the elements the feedback refers to.\n")
	b.WriteString("4. Return only the complete revised HTML document, with no commentary.\n\n")

	b.WriteString("Reviewer feedback:\n")
	for i, f := range req.Feedback {
		author := f.Author
		if author == "" {
			author = "Reviewer"
		}
		fmt.Fprintf(&b, "%d. %s: %s\n", i+1, author, f.Content)
	}

	b.WriteString("\nOriginal HTML:\n")
	b.WriteString(req.OriginalHTML)
	return b.String()
}

// StripCodeFence removes an optional ``` or ```html wrapper around a response.
func StripCodeFence(text string) string {
	s := strings.TrimSpace(text)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		// drop the language tag line
		if tag := strings.TrimSpace(s[:nl]); !strings.ContainsAny(tag, "<>") {
			s = s[nl+1:]
		}
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
