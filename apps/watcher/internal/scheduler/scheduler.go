// Package scheduler splits a block interval into bounded sub-ranges.
package scheduler

import (
	"iter"

	"transferwatch/apps/watcher/internal/model"
)

// Ranges yields ascending, non-overlapping ranges [s, e] with e-s <= maxSpan
// that cover [start, head] exactly once. Nothing is yielded when start > head.
func Ranges(start, head, maxSpan uint64) iter.Seq[model.BlockRange] {
	return func(yield func(model.BlockRange) bool) {
		if start > head {
			return
		}
		s := start
		for {
			e := head
			if maxSpan < head-s {
				e = s + maxSpan
			}
			if !yield(model.BlockRange{Start: s, End: e}) {
				return
			}
			if e == head {
				return
			}
			s = e + 1
		}
	}
}

// Count returns how many ranges Ranges(start, head, maxSpan) yields.
func Count(start, head, maxSpan uint64) uint64 {
	if start > head {
		return 0
	}
	if maxSpan >= head-start {
		return 1
	}
	return (head-start)/(maxSpan+1) + 1
}
