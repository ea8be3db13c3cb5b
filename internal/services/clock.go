package services

import "time"

// Clock supplies the current instant. Implementations return UTC so that
// stored timestamps never carry a local offset.
type Clock interface {
	Now() time.Time
}

// ZoneClock is the wall clock of the configured site zone. Now is UTC;
// Location is used only for civil-date arithmetic such as "permissions
// starting today".
type ZoneClock struct {
	loc *time.Location
}

// NewZoneClock returns a clock for loc (UTC when nil).
func NewZoneClock(loc *time.Location) ZoneClock {
	if loc == nil {
		loc = time.UTC
	}
	return ZoneClock{loc: loc}
}

func (c ZoneClock) Now() time.Time { return time.Now().UTC() }

// Location returns the site time zone.
func (c ZoneClock) Location() *time.Location {
	if c.loc == nil {
		return time.UTC
	}
	return c.loc
}

// ClockFunc adapts a function to Clock. Tests use it to pin time.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f().UTC() }

// locationOf returns the civil zone of c when it has one.
func locationOf(c Clock) *time.Location {
	if z, ok := c.(interface{ Location() *time.Location }); ok {
		return z.Location()
	}
	return time.UTC
}

// dayBounds returns the UTC instants of local midnight on the civil date of
// day in loc and of the following midnight.
func dayBounds(day time.Time, loc *time.Location) (time.Time, time.Time) {
	d := day.In(loc)
	start := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc)
	end := start.AddDate(0, 0, 1)
	return start.UTC(), end.UTC()
}
