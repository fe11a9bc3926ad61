package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkarlin/mailpilot/internal/types"
)

func utc(year int, month time.Month, day, hour, min int) time.Time {
	return time.Date(year, month, day, hour, min, 0, 0, time.UTC)
}

// A fixed "now" well before the window so no today-rounding applies.
var longAgo = utc(2024, time.January, 1, 0, 0)

func TestFindFreeSlots_SkipsBusyRangeExactly(t *testing.T) {
	day := utc(2024, time.March, 4, 0, 0) // a Monday
	slots, err := FindFreeSlots(Request{
		Busy: []types.BusyRange{
			{Start: utc(2024, time.March, 4, 10, 0), End: utc(2024, time.March, 4, 10, 30)},
		},
		StartDate:       day,
		EndDate:         day.AddDate(0, 0, 1),
		Hours:           WorkingHours{Start: 9, End: 17},
		DurationMinutes: 30,
		Now:             longAgo,
	})
	require.NoError(t, err)
	require.NotEmpty(t, slots)

	assert.Equal(t, utc(2024, time.March, 4, 9, 0), slots[0].Start.UTC())
	assert.Equal(t, utc(2024, time.March, 4, 9, 30), slots[0].End.UTC())

	// 9:30–10:00 is free, 10:00 overlaps the busy range, so the next slot
	// after it starts exactly at the busy range's end.
	assert.Equal(t, utc(2024, time.March, 4, 9, 30), slots[1].Start.UTC())
	assert.Equal(t, utc(2024, time.March, 4, 10, 30), slots[2].Start.UTC())
	assert.Equal(t, utc(2024, time.March, 4, 11, 0), slots[2].End.UTC())
}

func TestFindFreeSlots_DisjointFromEveryBusyRange(t *testing.T) {
	day := utc(2024, time.March, 4, 0, 0)
	busy := []types.BusyRange{
		// Unsorted and overlapping on purpose.
		{Start: utc(2024, time.March, 4, 14, 0), End: utc(2024, time.March, 4, 15, 0)},
		{Start: utc(2024, time.March, 4, 9, 15), End: utc(2024, time.March, 4, 9, 45)},
		{Start: utc(2024, time.March, 4, 14, 30), End: utc(2024, time.March, 4, 16, 0)},
	}
	slots, err := FindFreeSlots(Request{
		Busy:            busy,
		StartDate:       day,
		EndDate:         day.AddDate(0, 0, 2),
		Hours:           WorkingHours{Start: 9, End: 17},
		DurationMinutes: 30,
		Now:             longAgo,
	})
	require.NoError(t, err)
	require.NotEmpty(t, slots)

	for _, slot := range slots {
		for _, b := range busy {
			overlaps := slot.Start.Before(b.End) && slot.End.After(b.Start)
			assert.Falsef(t, overlaps, "slot %v-%v overlaps busy %v-%v",
				slot.Start, slot.End, b.Start, b.End)
		}
	}
}

func TestFindFreeSlots_ExactDurationAndOrdering(t *testing.T) {
	day := utc(2024, time.March, 4, 0, 0)
	slots, err := FindFreeSlots(Request{
		StartDate:       day,
		EndDate:         day.AddDate(0, 0, 3),
		Hours:           WorkingHours{Start: 9, End: 17},
		DurationMinutes: 45,
		Now:             longAgo,
	})
	require.NoError(t, err)
	require.NotEmpty(t, slots)

	for i, slot := range slots {
		assert.Equal(t, 45*time.Minute, slot.End.Sub(slot.Start))
		assert.Equal(t, 45, slot.DurationMinutes)
		assert.GreaterOrEqual(t, slot.Start.Hour(), 9)
		if i > 0 {
			assert.True(t, slot.Start.After(slots[i-1].Start), "slots must be ascending")
		}
	}
}

func TestFindFreeSlots_EndNotClippedToWorkEnd(t *testing.T) {
	// 45-minute slots in a 9-10 window: the second slot starts at 9:45
	// (inside the window) and runs to 10:30. It is emitted uncapped.
	day := utc(2024, time.March, 4, 0, 0)
	slots, err := FindFreeSlots(Request{
		StartDate:       day,
		EndDate:         day.AddDate(0, 0, 1),
		Hours:           WorkingHours{Start: 9, End: 10},
		DurationMinutes: 45,
		Now:             longAgo,
	})
	require.NoError(t, err)
	require.Len(t, slots, 2)
	assert.Equal(t, utc(2024, time.March, 4, 9, 45), slots[1].Start.UTC())
	assert.Equal(t, utc(2024, time.March, 4, 10, 30), slots[1].End.UTC())
}

func TestFindFreeSlots_SkipsDayWhenPastWorkEnd(t *testing.T) {
	day := utc(2024, time.March, 4, 0, 0)
	slots, err := FindFreeSlots(Request{
		StartDate:       day,
		EndDate:         day.AddDate(0, 0, 2),
		Hours:           WorkingHours{Start: 9, End: 17},
		DurationMinutes: 30,
		Now:             utc(2024, time.March, 4, 18, 30), // past today's work end
	})
	require.NoError(t, err)
	require.NotEmpty(t, slots)
	// Everything on the 4th is gone; the first slot is the next morning.
	assert.Equal(t, utc(2024, time.March, 5, 9, 0), slots[0].Start.UTC())
}

func TestFindFreeSlots_TodayStartsAtNextHalfHourBoundary(t *testing.T) {
	day := utc(2024, time.March, 4, 0, 0)
	slots, err := FindFreeSlots(Request{
		StartDate:       day,
		EndDate:         day.AddDate(0, 0, 1),
		Hours:           WorkingHours{Start: 9, End: 17},
		DurationMinutes: 30,
		Now:             utc(2024, time.March, 4, 10, 17),
	})
	require.NoError(t, err)
	require.NotEmpty(t, slots)
	assert.Equal(t, utc(2024, time.March, 4, 10, 30), slots[0].Start.UTC())
}

func TestFindFreeSlots_FirstOverlapWins(t *testing.T) {
	// Two overlapping busy ranges in input order: the scan must jump to the
	// end of the FIRST one it encounters, not the widest or earliest-ending.
	day := utc(2024, time.March, 4, 0, 0)
	busy := []types.BusyRange{
		{Start: utc(2024, time.March, 4, 9, 0), End: utc(2024, time.March, 4, 11, 0)},
		{Start: utc(2024, time.March, 4, 9, 0), End: utc(2024, time.March, 4, 10, 0)},
	}
	slots, err := FindFreeSlots(Request{
		Busy:            busy,
		StartDate:       day,
		EndDate:         day.AddDate(0, 0, 1),
		Hours:           WorkingHours{Start: 9, End: 17},
		DurationMinutes: 30,
		Now:             longAgo,
	})
	require.NoError(t, err)
	require.NotEmpty(t, slots)
	// Cursor jumps straight to 11:00, never offering 10:00 even though the
	// second range ends there.
	assert.Equal(t, utc(2024, time.March, 4, 11, 0), slots[0].Start.UTC())
}

func TestFindFreeSlots_LocalTimezoneConversion(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	day := time.Date(2024, time.March, 4, 0, 0, 0, 0, loc)
	slots, err := FindFreeSlots(Request{
		StartDate:       day,
		EndDate:         day.AddDate(0, 0, 1),
		Hours:           WorkingHours{Start: 9, End: 17},
		DurationMinutes: 30,
		Location:        loc,
		Now:             longAgo,
	})
	require.NoError(t, err)
	require.NotEmpty(t, slots)

	first := slots[0]
	assert.Equal(t, loc.String(), first.Start.Location().String())
	assert.Equal(t, 9, first.Start.Hour())
	// 9 AM Eastern in March (EST) is 14:00 UTC.
	assert.Equal(t, 14, first.Start.UTC().Hour())
}

func TestFindFreeSlots_RejectsInvertedWorkingHours(t *testing.T) {
	_, err := FindFreeSlots(Request{
		Hours:           WorkingHours{Start: 17, End: 9},
		DurationMinutes: 30,
	})
	assert.Error(t, err)
}
