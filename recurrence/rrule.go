package recurrence

import (
	"fmt"
	"time"

	"github.com/samber/mo"
	"github.com/teambition/rrule-go"
)

// Conversion to and from iCalendar RRULE strings, for the ICS feed and for
// clients that submit rules in RRULE form. Backed by rrule-go so the wire
// syntax stays RFC 5545 compliant.

var toRRuleFreq = map[Frequency]rrule.Frequency{
	FreqDaily:   rrule.DAILY,
	FreqWeekly:  rrule.WEEKLY,
	FreqMonthly: rrule.MONTHLY,
	FreqYearly:  rrule.YEARLY,
}

var fromRRuleFreq = map[rrule.Frequency]Frequency{
	rrule.DAILY:   FreqDaily,
	rrule.WEEKLY:  FreqWeekly,
	rrule.MONTHLY: FreqMonthly,
	rrule.YEARLY:  FreqYearly,
}

var toRRuleWeekday = map[time.Weekday]rrule.Weekday{
	time.Monday:    rrule.MO,
	time.Tuesday:   rrule.TU,
	time.Wednesday: rrule.WE,
	time.Thursday:  rrule.TH,
	time.Friday:    rrule.FR,
	time.Saturday:  rrule.SA,
	time.Sunday:    rrule.SU,
}

// rrule-go numbers weekdays from Monday=0.
var fromRRuleWeekday = [7]time.Weekday{
	time.Monday, time.Tuesday, time.Wednesday, time.Thursday,
	time.Friday, time.Saturday, time.Sunday,
}

// RRule renders the rule as an RFC 5545 RRULE value (without the "RRULE:"
// property prefix).
func (r Rule) RRule() (string, error) {
	if err := r.Validate(); err != nil {
		return "", err
	}
	opt := rrule.ROption{
		Freq:     toRRuleFreq[r.Freq],
		Interval: r.Interval,
		Wkst:     toRRuleWeekday[r.WeekStart],
	}
	for _, wd := range r.ByWeekday {
		opt.Byweekday = append(opt.Byweekday, toRRuleWeekday[wd])
	}
	switch sel := r.Monthly.(type) {
	case OnMonthDays:
		opt.Bymonthday = sel.Days
	case OnWeekdayPos:
		opt.Bysetpos = sel.Pos
		for _, wd := range sel.Weekdays {
			opt.Byweekday = append(opt.Byweekday, toRRuleWeekday[wd])
		}
	}
	for _, m := range r.ByMonth {
		opt.Bymonth = append(opt.Bymonth, int(m))
	}
	if c, ok := r.Count.Get(); ok {
		opt.Count = c
	}
	if u, ok := r.Until.Get(); ok {
		opt.Until = u.Time(time.UTC)
	}
	return opt.String(), nil
}

// ParseRRule parses an RFC 5545 RRULE value into a Rule. The result is not
// normalized; call Normalize with the series anchor before expanding.
func ParseRRule(s string) (Rule, error) {
	opt, err := rrule.StrToROption(s)
	if err != nil {
		return Rule{}, fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}
	freq, ok := fromRRuleFreq[opt.Freq]
	if !ok {
		return Rule{}, fmt.Errorf("%w: unsupported frequency in %q", ErrInvalidRule, s)
	}
	out := Rule{
		Freq:      freq,
		Interval:  opt.Interval,
		WeekStart: weekdayFromRRule(opt.Wkst),
	}

	// BYDAY entries may carry an ordinal prefix ("2TU"); those fold into
	// the positional selector together with BYSETPOS.
	pos := append([]int(nil), opt.Bysetpos...)
	var weekdays []time.Weekday
	for _, wd := range opt.Byweekday {
		if n := wd.N(); n != 0 {
			pos = append(pos, n)
		}
		weekdays = append(weekdays, weekdayFromRRule(wd))
	}

	switch {
	case len(opt.Bymonthday) > 0 && len(pos) > 0:
		return Rule{}, fmt.Errorf("%w: BYMONTHDAY and BYSETPOS are mutually exclusive", ErrInvalidRule)
	case len(pos) > 0:
		out.Monthly = OnWeekdayPos{Pos: pos, Weekdays: weekdays}
	case len(opt.Bymonthday) > 0:
		out.Monthly = OnMonthDays{Days: opt.Bymonthday}
		out.ByWeekday = weekdays
	default:
		out.ByWeekday = weekdays
	}
	for _, m := range opt.Bymonth {
		out.ByMonth = append(out.ByMonth, time.Month(m))
	}
	if opt.Count > 0 && !opt.Until.IsZero() {
		return Rule{}, fmt.Errorf("%w: COUNT and UNTIL are mutually exclusive", ErrInvalidRule)
	}
	if opt.Count > 0 {
		out.Count = mo.Some(opt.Count)
	}
	if !opt.Until.IsZero() {
		out.Until = mo.Some(DateOf(opt.Until.UTC()))
	}
	return out, nil
}

func weekdayFromRRule(wd rrule.Weekday) time.Weekday {
	return fromRRuleWeekday[wd.Day()%7]
}
