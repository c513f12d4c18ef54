// Package schedule computes send-time offsets for outbound email batches.
//
// Spreading a batch over a handful of pacing lanes with jittered per-lane
// delays keeps the send pattern from looking like a burst to provider
// spam heuristics, while bounding how many messages are ever due at the
// same instant.
package schedule

import (
	"fmt"
	"math/rand"
	"time"
)

// WithLanes assigns a start offset to each of taskCount tasks across
// laneCount virtual lanes. Each task is placed on the lane that frees up
// earliest (ties go to the lowest lane index), takes that lane's current
// available-at time as its offset, and pushes the lane forward by a
// uniformly random delay in [minDelaySeconds, maxDelaySeconds].
//
// Offsets are returned in task order, index-aligned with the caller's
// recipient list, not grouped by lane.
func WithLanes(taskCount, laneCount int, minDelaySeconds, maxDelaySeconds float64) ([]time.Duration, error) {
	if taskCount < 0 {
		return nil, fmt.Errorf("schedule: task count must be >= 0, got %d", taskCount)
	}
	if laneCount < 1 {
		return nil, fmt.Errorf("schedule: lane count must be >= 1, got %d", laneCount)
	}
	if minDelaySeconds < 0 || minDelaySeconds > maxDelaySeconds {
		return nil, fmt.Errorf("schedule: delay range [%v, %v] is invalid", minDelaySeconds, maxDelaySeconds)
	}

	minMS := int64(minDelaySeconds * 1000)
	maxMS := int64(maxDelaySeconds * 1000)

	lanes := make([]int64, laneCount)
	offsets := make([]time.Duration, taskCount)

	for i := 0; i < taskCount; i++ {
		lane := 0
		for l := 1; l < laneCount; l++ {
			if lanes[l] < lanes[lane] {
				lane = l
			}
		}

		offsets[i] = time.Duration(lanes[lane]) * time.Millisecond

		delay := minMS
		if maxMS > minMS {
			delay += rand.Int63n(maxMS - minMS + 1)
		}
		lanes[lane] += delay
	}

	return offsets, nil
}
