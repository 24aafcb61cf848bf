package recurrence

import (
	"fmt"
	"slices"
	"time"
)

// Options bounds a single expansion run.
type Options struct {
	// MaxIterations caps the number of candidate dates and period blocks
	// examined before a termination bound is reached. Exceeding the cap
	// surfaces ErrInvalidRule instead of silently truncating. The default
	// covers several centuries of daily candidates.
	MaxIterations int
}

// DefaultOptions is suitable for interactive query workloads.
var DefaultOptions = Options{MaxIterations: 100_000}

// Expand materializes the occurrence dates of rule in [rangeStart, rangeEnd].
//
// The returned sequence is strictly ascending with no duplicates. Candidates
// are generated from the anchor forward, so a count bound is consumed by
// occurrences before rangeStart as well. Occurrences never extend past an
// until bound (inclusive) or past rangeEnd. Months that lack a requested day
// yield nothing and do not consume a count slot.
func Expand(rule Rule, anchor Date, rangeStart, rangeEnd Date, opts Options) ([]Date, error) {
	if rangeEnd.Before(rangeStart) {
		return nil, fmt.Errorf("%w: %s is after %s", ErrInvalidRange, rangeStart, rangeEnd)
	}
	rule = rule.Normalize(anchor)
	if err := rule.Validate(); err != nil {
		return nil, err
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = DefaultOptions.MaxIterations
	}

	e := &expansion{
		anchor:    anchor,
		start:     rangeStart,
		end:       rangeEnd,
		remaining: -1,
		maxIter:   opts.MaxIterations,
	}
	if c, ok := rule.Count.Get(); ok {
		e.remaining = c
	}
	if u, ok := rule.Until.Get(); ok {
		e.until, e.hasUntil = u, true
	}

	switch rule.Freq {
	case FreqDaily:
		e.expandDaily(rule)
	case FreqWeekly:
		e.expandWeekly(rule)
	case FreqMonthly:
		e.expandMonthly(rule)
	case FreqYearly:
		e.expandYearly(rule)
	}

	if e.capHit {
		return nil, fmt.Errorf("%w: expansion exceeded %d iterations before reaching a bound",
			ErrInvalidRule, opts.MaxIterations)
	}
	return e.out, nil
}

// expansion accumulates occurrence dates. Candidates must be offered in
// ascending order; the collector handles anchor/count/until/range bounds.
type expansion struct {
	anchor   Date
	start    Date
	end      Date
	until    Date
	hasUntil bool

	remaining  int // count slots left, -1 when unbounded
	maxIter    int
	iterations int

	out    []Date
	done   bool
	capHit bool
}

// tick charges one unit against the iteration cap. It reports false when
// expansion must stop.
func (e *expansion) tick() bool {
	e.iterations++
	if e.iterations > e.maxIter {
		e.capHit = true
		e.done = true
	}
	return !e.done
}

// offer feeds the next candidate date. It reports false when expansion is
// finished and no further candidates are needed.
func (e *expansion) offer(d Date) bool {
	if !e.tick() {
		return false
	}
	if d.Before(e.anchor) {
		// Dates before the series anchor are not occurrences and do
		// not consume a count slot.
		return true
	}
	if e.hasUntil && d.After(e.until) {
		e.done = true
		return false
	}
	if d.After(e.end) {
		e.done = true
		return false
	}
	if e.remaining == 0 {
		e.done = true
		return false
	}
	if e.remaining > 0 {
		e.remaining--
	}
	if !d.Before(e.start) {
		if n := len(e.out); n == 0 || !e.out[n-1].Equal(d) {
			e.out = append(e.out, d)
		}
	}
	return true
}

// pastEnd reports whether every candidate at or after d is out of bounds,
// which terminates the period loop.
func (e *expansion) pastEnd(d Date) bool {
	if d.After(e.end) {
		return true
	}
	return e.hasUntil && d.After(e.until)
}

func (e *expansion) expandDaily(rule Rule) {
	for k := 0; ; k++ {
		if !e.offer(e.anchor.AddDays(k * rule.Interval)) {
			return
		}
	}
}

func (e *expansion) expandWeekly(rule Rule) {
	base := startOfWeek(e.anchor, rule.WeekStart)
	offsets := weekdayOffsets(rule.ByWeekday, rule.WeekStart)
	for k := 0; ; k++ {
		if !e.tick() {
			return
		}
		block := base.AddDays(7 * rule.Interval * k)
		if e.pastEnd(block) {
			return
		}
		for _, off := range offsets {
			if !e.offer(block.AddDays(off)) {
				return
			}
		}
	}
}

func (e *expansion) expandMonthly(rule Rule) {
	startIdx := monthIndex(e.anchor.Year, e.anchor.Month)
	for k := 0; ; k++ {
		if !e.tick() {
			return
		}
		year, month := monthAt(startIdx + k*rule.Interval)
		if e.pastEnd(NewDate(year, month, 1)) {
			return
		}
		for _, d := range resolveInMonth(rule.Monthly, year, month) {
			if !e.offer(d) {
				return
			}
		}
	}
}

func (e *expansion) expandYearly(rule Rule) {
	months := slices.Clone(rule.ByMonth)
	slices.Sort(months)
	months = slices.Compact(months)
	for k := 0; ; k++ {
		if !e.tick() {
			return
		}
		year := e.anchor.Year + k*rule.Interval
		if e.pastEnd(NewDate(year, months[0], 1)) {
			return
		}
		for _, month := range months {
			for _, d := range resolveInMonth(rule.Monthly, year, month) {
				if !e.offer(d) {
					return
				}
			}
		}
	}
}

// resolveInMonth returns the ascending, deduplicated dates the selector
// matches within one month. A month without matches is simply skipped.
func resolveInMonth(sel MonthlyBy, year int, month time.Month) []Date {
	var out []Date
	switch s := sel.(type) {
	case OnMonthDays:
		last := daysIn(year, month)
		for _, day := range s.Days {
			switch {
			case day == -1:
				out = append(out, NewDate(year, month, last))
			case day >= 1 && day <= last:
				out = append(out, NewDate(year, month, day))
			}
		}
	case OnWeekdayPos:
		matching := weekdayDatesInMonth(year, month, s.Weekdays)
		for _, pos := range s.Pos {
			switch {
			case pos == -1 && len(matching) > 0:
				out = append(out, matching[len(matching)-1])
			case pos >= 1 && pos <= len(matching):
				out = append(out, matching[pos-1])
			}
		}
	}
	slices.SortFunc(out, Date.Compare)
	return slices.CompactFunc(out, Date.Equal)
}

// weekdayDatesInMonth lists every date in the month whose weekday is in wds,
// in ascending order.
func weekdayDatesInMonth(year int, month time.Month, wds []time.Weekday) []Date {
	var out []Date
	for day := 1; day <= daysIn(year, month); day++ {
		d := NewDate(year, month, day)
		if slices.Contains(wds, d.Weekday()) {
			out = append(out, d)
		}
	}
	return out
}

// startOfWeek returns the latest date on or before d whose weekday is ws.
func startOfWeek(d Date, ws time.Weekday) Date {
	return d.AddDays(-int((d.Weekday() - ws + 7) % 7))
}

// weekdayOffsets converts weekdays into ascending day offsets from the week
// start, so candidates within a block come out in week order rather than
// insertion order.
func weekdayOffsets(wds []time.Weekday, ws time.Weekday) []int {
	var out []int
	for _, wd := range wds {
		out = append(out, int((wd-ws+7)%7))
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func monthIndex(year int, month time.Month) int {
	return year*12 + int(month) - 1
}

func monthAt(idx int) (int, time.Month) {
	return idx / 12, time.Month(idx%12 + 1)
}
