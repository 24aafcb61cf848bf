package postgres

import (
	"github.com/samber/mo"

	"github.com/zemetia/eventcal/recurrence"
)

// Helpers translating between nullable columns and mo.Option fields.

func optString(p *string) mo.Option[string] {
	if p == nil {
		return mo.None[string]()
	}
	return mo.Some(*p)
}

func strPtr(opt mo.Option[string]) *string {
	if v, ok := opt.Get(); ok {
		return &v
	}
	return nil
}

func optTime(p *string) (mo.Option[recurrence.TimeOfDay], error) {
	if p == nil {
		return mo.None[recurrence.TimeOfDay](), nil
	}
	t, err := recurrence.ParseTimeOfDay(*p)
	if err != nil {
		return mo.None[recurrence.TimeOfDay](), err
	}
	return mo.Some(t), nil
}

func timePtr(opt mo.Option[recurrence.TimeOfDay]) *string {
	if v, ok := opt.Get(); ok {
		s := v.String()
		return &s
	}
	return nil
}
