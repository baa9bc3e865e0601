// Package schedule computes shared free time from weekly busy blocks.
package schedule

import (
	"fmt"
	"sort"

	"teamhub/api/internal/store"
)

// The search window is a working day from 09:00 to 22:00, Monday
// through Friday. Gaps shorter than half an hour are not worth
// proposing.
const (
	windowStart = 9 * 60
	windowEnd   = 22 * 60
	minSlot     = 30

	firstDay = 1 // Monday
	lastDay  = 5 // Friday
)

// Slot is a stretch of time on one weekday where nobody is busy.
type Slot struct {
	DayOfWeek int    `json:"day_of_week"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type interval struct {
	start int
	end   int
}

// FreeSlots merges everyone's busy blocks and returns the gaps inside
// the working window, per weekday. Blocks outside the window are
// clipped; malformed times are skipped.
func FreeSlots(schedules []store.Schedule) []Slot {
	busyByDay := make(map[int][]interval)
	for _, sch := range schedules {
		if sch.DayOfWeek < firstDay || sch.DayOfWeek > lastDay {
			continue
		}
		start, err := parseMinutes(sch.StartTime)
		if err != nil {
			continue
		}
		end, err := parseMinutes(sch.EndTime)
		if err != nil || end <= start {
			continue
		}
		if start < windowStart {
			start = windowStart
		}
		if end > windowEnd {
			end = windowEnd
		}
		if end <= start {
			continue
		}
		busyByDay[sch.DayOfWeek] = append(busyByDay[sch.DayOfWeek], interval{start: start, end: end})
	}

	slots := make([]Slot, 0)
	for day := firstDay; day <= lastDay; day++ {
		for _, gap := range gaps(merge(busyByDay[day])) {
			slots = append(slots, Slot{
				DayOfWeek: day,
				StartTime: formatMinutes(gap.start),
				EndTime:   formatMinutes(gap.end),
			})
		}
	}
	return slots
}

// merge collapses overlapping and touching intervals.
func merge(busy []interval) []interval {
	if len(busy) == 0 {
		return nil
	}
	sort.Slice(busy, func(i, j int) bool { return busy[i].start < busy[j].start })

	merged := []interval{busy[0]}
	for _, iv := range busy[1:] {
		last := &merged[len(merged)-1]
		if iv.start <= last.end {
			if iv.end > last.end {
				last.end = iv.end
			}
			continue
		}
		merged = append(merged, iv)
	}
	return merged
}

// gaps returns the free stretches of the window around the merged busy
// intervals, dropping anything shorter than minSlot.
func gaps(busy []interval) []interval {
	free := make([]interval, 0)
	cursor := windowStart
	for _, iv := range busy {
		if iv.start-cursor >= minSlot {
			free = append(free, interval{start: cursor, end: iv.start})
		}
		if iv.end > cursor {
			cursor = iv.end
		}
	}
	if windowEnd-cursor >= minSlot {
		free = append(free, interval{start: cursor, end: windowEnd})
	}
	return free
}

func parseMinutes(value string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(value, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("parse time %q: %w", value, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("time %q out of range", value)
	}
	return h*60 + m, nil
}

func formatMinutes(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}
