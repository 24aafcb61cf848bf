package recurrence

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/samber/mo"
)

// ErrInvalidRule is returned for malformed recurrence rules, and when the
// defensive iteration cap is exhausted before any termination bound is
// reached. Use errors.Is to test for it.
var ErrInvalidRule = errors.New("invalid recurrence rule")

// ErrInvalidRange is returned when a query range is empty or reversed.
var ErrInvalidRange = errors.New("invalid query range")

// Frequency is the base unit of a recurrence rule.
type Frequency int

const (
	FreqDaily Frequency = iota
	FreqWeekly
	FreqMonthly
	FreqYearly
)

var frequencyNames = map[Frequency]string{
	FreqDaily:   "DAILY",
	FreqWeekly:  "WEEKLY",
	FreqMonthly: "MONTHLY",
	FreqYearly:  "YEARLY",
}

// String returns the iCalendar name of the frequency.
func (f Frequency) String() string {
	if name, ok := frequencyNames[f]; ok {
		return name
	}
	return fmt.Sprintf("Frequency(%d)", int(f))
}

// ParseFrequency parses an iCalendar frequency name.
func ParseFrequency(s string) (Frequency, error) {
	for f, name := range frequencyNames {
		if name == s {
			return f, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown frequency %q", ErrInvalidRule, s)
}

// MonthlyBy selects which days a MONTHLY (or YEARLY, within each selected
// month) rule matches. Exactly one variant is active; the "both set" state
// that a pair of optional field sets would allow is unrepresentable here.
type MonthlyBy interface {
	monthlyBy()
}

// OnMonthDays matches fixed days of the month. A day of -1 means the last
// day of the month. Months lacking a requested day (day 31 in a 30-day
// month) are skipped entirely, never clamped or rolled over.
type OnMonthDays struct {
	Days []int
}

func (OnMonthDays) monthlyBy() {}

// OnWeekdayPos matches the n-th (or, with -1, the last) occurrence of the
// given weekdays within the month, e.g. "2nd Tuesday".
type OnWeekdayPos struct {
	Pos      []int
	Weekdays []time.Weekday
}

func (OnWeekdayPos) monthlyBy() {}

// Rule describes a recurrence pattern in the RRULE style: frequency,
// interval, by-* filters and at most one termination bound. A Rule is an
// immutable value; draft state belongs to whatever UI builds it, the engine
// only ever sees committed rules that passed Validate.
type Rule struct {
	Freq     Frequency
	Interval int // step size in units of Freq, 0 is normalized to 1

	// ByWeekday lists the weekdays a WEEKLY rule matches. Empty means
	// "the anchor's weekday", filled in by Normalize.
	ByWeekday []time.Weekday

	// ByMonth restricts a YEARLY rule to the given months. Empty means
	// "the anchor's month", filled in by Normalize.
	ByMonth []time.Month

	// Monthly selects days within each month for MONTHLY and YEARLY
	// rules. Nil means "the anchor's day of month", filled in by
	// Normalize.
	Monthly MonthlyBy

	// WeekStart defines week boundaries for WEEKLY interval counting.
	// The zero value is time.Sunday; wire formats default it to Monday.
	WeekStart time.Weekday

	// Count and Until are mutually exclusive termination bounds. Count is
	// the total number of occurrences including the first; Until is the
	// inclusive last eligible date. With neither set the rule is
	// open-ended and expansion is bounded only by the query range.
	Count mo.Option[int]
	Until mo.Option[Date]
}

// Normalize returns a copy of r with anchor-derived defaults filled in, so
// that expansion never has to fall back to the anchor mid-computation.
// Normalizing an already-normalized rule is a no-op.
func (r Rule) Normalize(anchor Date) Rule {
	if r.Interval == 0 {
		r.Interval = 1
	}
	switch r.Freq {
	case FreqWeekly:
		if len(r.ByWeekday) == 0 {
			r.ByWeekday = []time.Weekday{anchor.Weekday()}
		}
	case FreqMonthly:
		if r.Monthly == nil {
			r.Monthly = OnMonthDays{Days: []int{anchor.Day}}
		}
	case FreqYearly:
		if len(r.ByMonth) == 0 {
			r.ByMonth = []time.Month{anchor.Month}
		}
		if r.Monthly == nil {
			r.Monthly = OnMonthDays{Days: []int{anchor.Day}}
		}
	}
	return r
}

// Validate checks structural soundness. It is meant to run once at rule
// construction time, after Normalize.
func (r Rule) Validate() error {
	if _, ok := frequencyNames[r.Freq]; !ok {
		return fmt.Errorf("%w: unknown frequency %d", ErrInvalidRule, int(r.Freq))
	}
	if r.Interval < 1 {
		return fmt.Errorf("%w: interval must be positive, got %d", ErrInvalidRule, r.Interval)
	}
	if r.Count.IsPresent() && r.Until.IsPresent() {
		return fmt.Errorf("%w: count and until are mutually exclusive", ErrInvalidRule)
	}
	if c, ok := r.Count.Get(); ok && c < 1 {
		return fmt.Errorf("%w: count must be positive, got %d", ErrInvalidRule, c)
	}
	for _, wd := range r.ByWeekday {
		if wd < time.Sunday || wd > time.Saturday {
			return fmt.Errorf("%w: invalid weekday %d", ErrInvalidRule, int(wd))
		}
	}
	for _, m := range r.ByMonth {
		if m < time.January || m > time.December {
			return fmt.Errorf("%w: invalid month %d", ErrInvalidRule, int(m))
		}
	}
	switch sel := r.Monthly.(type) {
	case nil:
	case OnMonthDays:
		if len(sel.Days) == 0 {
			return fmt.Errorf("%w: byMonthDay must not be empty", ErrInvalidRule)
		}
		for _, day := range sel.Days {
			if day != -1 && (day < 1 || day > 31) {
				return fmt.Errorf("%w: invalid month day %d", ErrInvalidRule, day)
			}
		}
	case OnWeekdayPos:
		if len(sel.Pos) == 0 || len(sel.Weekdays) == 0 {
			return fmt.Errorf("%w: bySetPos requires both positions and weekdays", ErrInvalidRule)
		}
		for _, pos := range sel.Pos {
			if pos != -1 && (pos < 1 || pos > 4) {
				return fmt.Errorf("%w: invalid set position %d", ErrInvalidRule, pos)
			}
		}
		for _, wd := range sel.Weekdays {
			if wd < time.Sunday || wd > time.Saturday {
				return fmt.Errorf("%w: invalid weekday %d", ErrInvalidRule, int(wd))
			}
		}
	default:
		return fmt.Errorf("%w: unknown monthly selector %T", ErrInvalidRule, r.Monthly)
	}
	if r.Freq == FreqWeekly && len(r.ByWeekday) == 0 {
		return fmt.Errorf("%w: weekly rule requires byWeekday (normalize first)", ErrInvalidRule)
	}
	if (r.Freq == FreqMonthly || r.Freq == FreqYearly) && r.Monthly == nil {
		return fmt.Errorf("%w: %s rule requires a day selector (normalize first)", ErrInvalidRule, r.Freq)
	}
	return nil
}

// Bounded reports whether the rule terminates on its own via count or until.
func (r Rule) Bounded() bool {
	return r.Count.IsPresent() || r.Until.IsPresent()
}

var weekdayCodes = map[time.Weekday]string{
	time.Monday:    "MO",
	time.Tuesday:   "TU",
	time.Wednesday: "WE",
	time.Thursday:  "TH",
	time.Friday:    "FR",
	time.Saturday:  "SA",
	time.Sunday:    "SU",
}

// ParseWeekday parses a two-letter iCalendar weekday code.
func ParseWeekday(code string) (time.Weekday, error) {
	for wd, c := range weekdayCodes {
		if c == code {
			return wd, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown weekday code %q", ErrInvalidRule, code)
}

// WeekdayCode returns the two-letter iCalendar code for wd.
func WeekdayCode(wd time.Weekday) string {
	return weekdayCodes[wd]
}

// ruleJSON is the flat wire representation of a Rule. byMonthDay and
// bySetPos map onto the MonthlyBy variant; carrying both is rejected.
type ruleJSON struct {
	Frequency  string   `json:"frequency"`
	Interval   int      `json:"interval,omitempty"`
	ByWeekday  []string `json:"byWeekday,omitempty"`
	ByMonthDay []int    `json:"byMonthDay,omitempty"`
	BySetPos   []int    `json:"bySetPos,omitempty"`
	ByMonth    []int    `json:"byMonth,omitempty"`
	WeekStart  string   `json:"weekStart,omitempty"`
	Count      *int     `json:"count,omitempty"`
	Until      *Date    `json:"until,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (r Rule) MarshalJSON() ([]byte, error) {
	out := ruleJSON{
		Frequency: r.Freq.String(),
		Interval:  r.Interval,
	}
	for _, wd := range r.ByWeekday {
		out.ByWeekday = append(out.ByWeekday, WeekdayCode(wd))
	}
	switch sel := r.Monthly.(type) {
	case OnMonthDays:
		out.ByMonthDay = sel.Days
	case OnWeekdayPos:
		out.BySetPos = sel.Pos
		for _, wd := range sel.Weekdays {
			out.ByWeekday = append(out.ByWeekday, WeekdayCode(wd))
		}
	}
	for _, m := range r.ByMonth {
		out.ByMonth = append(out.ByMonth, int(m))
	}
	if r.Freq == FreqWeekly {
		out.WeekStart = WeekdayCode(r.WeekStart)
	}
	if c, ok := r.Count.Get(); ok {
		out.Count = &c
	}
	if u, ok := r.Until.Get(); ok {
		out.Until = &u
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *Rule) UnmarshalJSON(b []byte) error {
	var in ruleJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	freq, err := ParseFrequency(in.Frequency)
	if err != nil {
		return err
	}
	if len(in.ByMonthDay) > 0 && len(in.BySetPos) > 0 {
		return fmt.Errorf("%w: byMonthDay and bySetPos are mutually exclusive", ErrInvalidRule)
	}

	var weekdays []time.Weekday
	for _, code := range in.ByWeekday {
		wd, err := ParseWeekday(code)
		if err != nil {
			return err
		}
		weekdays = append(weekdays, wd)
	}

	parsed := Rule{
		Freq:      freq,
		Interval:  in.Interval,
		WeekStart: time.Monday,
	}
	if in.WeekStart != "" {
		ws, err := ParseWeekday(in.WeekStart)
		if err != nil {
			return err
		}
		parsed.WeekStart = ws
	}
	switch {
	case len(in.BySetPos) > 0:
		parsed.Monthly = OnWeekdayPos{Pos: in.BySetPos, Weekdays: weekdays}
	case len(in.ByMonthDay) > 0:
		parsed.Monthly = OnMonthDays{Days: in.ByMonthDay}
		parsed.ByWeekday = weekdays
	default:
		parsed.ByWeekday = weekdays
	}
	for _, m := range in.ByMonth {
		parsed.ByMonth = append(parsed.ByMonth, time.Month(m))
	}
	if in.Count != nil && in.Until != nil {
		return fmt.Errorf("%w: count and until are mutually exclusive", ErrInvalidRule)
	}
	if in.Count != nil {
		parsed.Count = mo.Some(*in.Count)
	}
	if in.Until != nil {
		parsed.Until = mo.Some(*in.Until)
	}
	*r = parsed
	return nil
}
