// Package schedule computes available meeting slots from busy calendar
// intervals.
//
// The scan is a greedy first-overlap walk over each day's working hours:
// busy ranges are checked in input order, and the cursor jumps to the end of
// the first overlapping range it finds. Busy sets are small (one calendar,
// one week), so no pre-sorting or interval merging is done. A merge-based
// scan can disagree with this one on which slot is offered first when busy
// ranges overlap each other, so the greedy semantics here are load-bearing.
package schedule

import (
	"fmt"
	"time"

	"github.com/mkarlin/mailpilot/internal/types"
)

// WorkingHours bounds slot generation to [Start, End) hours of each day,
// interpreted in the requested timezone.
type WorkingHours struct {
	Start int // 24h clock, e.g. 9
	End   int // e.g. 17
}

// Request describes one free-slot computation.
type Request struct {
	Busy            []types.BusyRange
	StartDate       time.Time // defaults to today (midnight, local)
	EndDate         time.Time // defaults to StartDate + 7 days
	Hours           WorkingHours
	DurationMinutes int
	Location        *time.Location

	// Now is the clock used for today's cursor. Zero means time.Now; tests
	// inject a fixed instant.
	Now time.Time
}

// DefaultDuration is the slot size used when the caller does not specify one.
const DefaultDuration = 30

// FindFreeSlots returns available slots of exactly DurationMinutes within
// working hours, disjoint from every busy range. Results are ordered
// ascending by start time, grouped by day.
//
// A slot whose end would run past the working-hours end is still emitted as
// long as its start is in bounds; only the start side of the window is
// enforced.
func FindFreeSlots(req Request) ([]types.FreeSlot, error) {
	loc := req.Location
	if loc == nil {
		loc = time.UTC
	}
	if req.Hours.Start == 0 && req.Hours.End == 0 {
		req.Hours = WorkingHours{Start: 9, End: 17}
	}
	if req.Hours.End <= req.Hours.Start {
		return nil, fmt.Errorf("working hours end (%d) must be after start (%d)", req.Hours.End, req.Hours.Start)
	}
	duration := req.DurationMinutes
	if duration <= 0 {
		duration = DefaultDuration
	}

	now := req.Now
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()

	startDate := req.StartDate
	if startDate.IsZero() {
		y, m, d := now.In(loc).Date()
		startDate = time.Date(y, m, d, 0, 0, 0, 0, loc)
	}
	endDate := req.EndDate
	if endDate.IsZero() {
		endDate = startDate.AddDate(0, 0, 7)
	}

	slotLen := time.Duration(duration) * time.Minute

	var slots []types.FreeSlot
	for day := startDate; day.Before(endDate); day = day.AddDate(0, 0, 1) {
		y, m, d := day.In(loc).Date()
		workStart := time.Date(y, m, d, req.Hours.Start, 0, 0, 0, loc).UTC()
		workEnd := time.Date(y, m, d, req.Hours.End, 0, 0, 0, loc).UTC()

		// The whole day is already over.
		if now.After(workEnd) {
			continue
		}

		cursor := workStart
		if sameDay(day, now, loc) && now.After(workStart) {
			// Floor to the half hour, then step to the next boundary.
			cursor = now.Truncate(30 * time.Minute).Add(30 * time.Minute)
		}

		for cursor.Before(workEnd) {
			slotEnd := cursor.Add(slotLen)

			free := true
			for _, busy := range req.Busy {
				if cursor.Before(busy.End) && slotEnd.After(busy.Start) {
					free = false
					cursor = busy.End
					break
				}
			}
			if !free {
				continue
			}

			slots = append(slots, types.FreeSlot{
				Start:           cursor.In(loc),
				End:             slotEnd.In(loc),
				DurationMinutes: duration,
			})
			cursor = slotEnd
		}
	}

	return slots, nil
}

func sameDay(day, now time.Time, loc *time.Location) bool {
	y1, m1, d1 := day.In(loc).Date()
	y2, m2, d2 := now.In(loc).Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}
