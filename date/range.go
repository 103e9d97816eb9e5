package date

import (
	"fmt"
	"strings"
)

// Range represents a range of dates, boundaries included.
type Range struct{ From, To Date }

// Around returns the range spanning 'before' days before d and 'after' days after d.
func Around(d Date, before, after int) Range {
	return Range{From: d.Add(-before), To: d.Add(after)}
}

// Contains return true date is included in the range (boundaries included)
func (r Range) Contains(date Date) bool { return !date.Before(r.From) && !date.After(r.To) }

// Days returns the number of days in the range.
func (r Range) Days() int { return r.To.Sub(r.From) + 1 }

func (r Range) String() string { return fmt.Sprintf("%s..%s", r.From, r.To) }

// Period is a calendar period used to bucket dates.
type Period int

const (
	Daily Period = iota
	Weekly
	Monthly
)

func (p Period) String() string {
	switch p {
	case Daily:
		return "daily"
	case Weekly:
		return "weekly"
	case Monthly:
		return "monthly"
	default:
		panic(fmt.Sprintf("unknown period %d", p))
	}
}

func ParsePeriod(p string) (Period, error) {
	switch strings.ToLower(p) {
	case "daily", "day", "":
		return Daily, nil
	case "weekly", "week":
		return Weekly, nil
	case "monthly", "month":
		return Monthly, nil
	default:
		return Daily, fmt.Errorf("unknown period %s", p)
	}
}

// Identifier returns a short name for the period containing d.
// Two dates share an identifier iff they are in the same period.
func (p Period) Identifier(d Date) string {
	switch p {
	case Weekly:
		y, week := d.ISOWeek()
		return fmt.Sprintf("%d-W%02d", y, week)
	case Monthly:
		return d.Format("2006-01")
	default:
		return d.String()
	}
}
