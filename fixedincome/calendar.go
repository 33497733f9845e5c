package fixedincome

// =============================================================================
// BUSINESS CALENDAR - Business-day counting against an injected holiday set
// =============================================================================

// HolidaySet answers whether a given date is a designated holiday for the
// relevant jurisdiction. It is injected configuration, not hard-coded logic;
// see the calendar package for a Brazilian implementation.
type HolidaySet interface {
	IsHoliday(d Date) bool
}

// MapHolidays is a fixed holiday set backed by a map. Convenient for tests
// and for jurisdictions with a small, static list.
type MapHolidays map[Date]bool

func (m MapHolidays) IsHoliday(d Date) bool { return m[d] }

// NoHolidays treats every weekday as a business day.
type NoHolidays struct{}

func (NoHolidays) IsHoliday(Date) bool { return false }

// Calendar counts business days between dates. Pure; no side effects.
type Calendar struct {
	holidays HolidaySet
}

func NewCalendar(holidays HolidaySet) *Calendar {
	if holidays == nil {
		holidays = NoHolidays{}
	}
	return &Calendar{holidays: holidays}
}

// BusinessDaysBetween counts dates strictly after start, up to and including
// end, that are neither weekend days nor holidays. Returns 0 when end <= start.
func (c *Calendar) BusinessDaysBetween(start, end Date) int {
	days := 0
	for cur := start.AddDays(1); cur.BeforeOrEqual(end); cur = cur.AddDays(1) {
		if cur.IsWeekend() || c.holidays.IsHoliday(cur) {
			continue
		}
		days++
	}
	return days
}
