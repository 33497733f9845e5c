/*
Package calendar provides concrete holiday sets for the business-day
calendar.

PURPOSE:
  The engine counts business days against an injected holiday set
  (fixedincome.HolidaySet). This package supplies jurisdictions as data:
  currently Brazil, whose national holidays drive Selic/CDI day counting.

BRAZILIAN HOLIDAYS:
  Fixed-date: New Year, Tiradentes, Labour Day, Independence, Our Lady of
  Aparecida, All Souls, Republic Proclamation, Black Awareness (national
  since 2024), Christmas.
  Moveable (Easter-derived): Carnival Monday/Tuesday, Good Friday, Corpus
  Christi. Easter is computed with the Gregorian computus, so no lookup
  table ages out.
*/
package calendar

import (
	"sync"
	"time"

	"github.com/warp/portfolio-engine/fixedincome"
)

// =============================================================================
// BRAZIL - National holiday set
// =============================================================================

// Brazil implements fixedincome.HolidaySet for Brazilian national holidays.
// Safe for concurrent use; per-year sets are computed once and cached.
type Brazil struct {
	mu    sync.Mutex
	years map[int]map[fixedincome.Date]bool
}

var _ fixedincome.HolidaySet = (*Brazil)(nil)

func NewBrazil() *Brazil {
	return &Brazil{years: make(map[int]map[fixedincome.Date]bool)}
}

func (b *Brazil) IsHoliday(d fixedincome.Date) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	year := d.Year()
	set, ok := b.years[year]
	if !ok {
		set = brazilHolidays(year)
		b.years[year] = set
	}
	return set[d]
}

func brazilHolidays(year int) map[fixedincome.Date]bool {
	set := map[fixedincome.Date]bool{
		fixedincome.NewDate(year, time.January, 1):   true, // Confraternização Universal
		fixedincome.NewDate(year, time.April, 21):    true, // Tiradentes
		fixedincome.NewDate(year, time.May, 1):       true, // Dia do Trabalho
		fixedincome.NewDate(year, time.September, 7): true, // Independência
		fixedincome.NewDate(year, time.October, 12):  true, // Nossa Senhora Aparecida
		fixedincome.NewDate(year, time.November, 2):  true, // Finados
		fixedincome.NewDate(year, time.November, 15): true, // Proclamação da República
		fixedincome.NewDate(year, time.December, 25): true, // Natal
	}
	if year >= 2024 {
		set[fixedincome.NewDate(year, time.November, 20)] = true // Consciência Negra
	}

	e := easter(year)
	set[e.AddDays(-48)] = true // Carnival Monday
	set[e.AddDays(-47)] = true // Carnival Tuesday
	set[e.AddDays(-2)] = true  // Good Friday
	set[e.AddDays(60)] = true  // Corpus Christi
	return set
}

// easter returns Easter Sunday for a Gregorian year (Meeus/Jones/Butcher).
func easter(year int) fixedincome.Date {
	a := year % 19
	b := year / 100
	c := year % 100
	d := b / 4
	e := b % 4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i := c / 4
	k := c % 4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451
	month := (h + l - 7*m + 114) / 31
	day := (h+l-7*m+114)%31 + 1
	return fixedincome.NewDate(year, time.Month(month), day)
}
