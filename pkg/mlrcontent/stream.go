package mlrcontent

import (
	"context"
	"iter"
	"sync/atomic"
	"time"
	"unicode/utf8"
)

// DefaultChunkSize is the chunk length, in runes, used when none is given.
const DefaultChunkSize = 64

// Chunks splits text into pieces of at most size runes and yields them one
// at a time, waiting pace between pieces. The sequence is lazy and finite,
// and it can be ranged over only once: later iterations yield nothing.
// Iteration stops early when ctx is done.
func Chunks(ctx context.Context, text string, size int, pace time.Duration) iter.Seq[string] {
	if size <= 0 {
		size = DefaultChunkSize
	}
	var started atomic.Bool

	return func(yield func(string) bool) {
		if !started.CompareAndSwap(false, true) {
			return
		}

		rest := text
		for first := true; rest != ""; first = false {
			if !first && pace > 0 {
				timer := time.NewTimer(pace)
				select {
				case <-ctx.Done():
					timer.Stop()
					return
				case <-timer.C:
				}
			}
			if ctx.Err() != nil {
				return
			}

			n := runePrefixLen(rest, size)
			if !yield(rest[:n]) {
				return
			}
			rest = rest[n:]
		}
	}
}

// runePrefixLen returns the byte length of the first n runes of s.
func runePrefixLen(s string, n int) int {
	i := 0
	for count := 0; count < n && i < len(s); count++ {
		_, w := utf8.DecodeRuneInString(s[i:])
		i += w
	}
	return i
}
