package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// CronExpression is a parsed standard 5-field cron expression:
// minute hour day-of-month month day-of-week.
// Each field supports *, n, n-m, */s, n-m/s and comma-separated lists.
// Examples:
//   - "*/5 * * * *"  - every 5 minutes
//   - "0 3 * * *"    - every day at 03:00
//   - "30 2 * * 1-5" - weekdays at 02:30
type CronExpression struct {
	raw      string
	location *time.Location
	minutes  fieldSet
	hours    fieldSet
	days     fieldSet
	months   fieldSet
	weekdays fieldSet
}

// fieldSet marks the allowed values of one cron field.
type fieldSet [60]bool

type fieldSpec struct {
	name     string
	min, max int
}

var cronFields = [5]fieldSpec{
	{"minute", 0, 59},
	{"hour", 0, 23},
	{"day-of-month", 1, 31},
	{"month", 1, 12},
	{"day-of-week", 0, 6},
}

// ParseCronExpression parses a cron expression evaluated in UTC.
func ParseCronExpression(expr string) (*CronExpression, error) {
	return ParseCronExpressionIn(expr, time.UTC)
}

// ParseCronExpressionIn parses a cron expression evaluated in loc.
func ParseCronExpressionIn(expr string, loc *time.Location) (*CronExpression, error) {
	fields := strings.Fields(expr)
	if len(fields) != len(cronFields) {
		return nil, fmt.Errorf("invalid cron expression %q: expected 5 fields, got %d", expr, len(fields))
	}
	if loc == nil {
		loc = time.UTC
	}

	sets := make([]fieldSet, len(cronFields))
	for i, spec := range cronFields {
		set, err := parseField(fields[i], spec)
		if err != nil {
			return nil, fmt.Errorf("invalid %s field: %w", spec.name, err)
		}
		sets[i] = set
	}

	return &CronExpression{
		raw:      expr,
		location: loc,
		minutes:  sets[0],
		hours:    sets[1],
		days:     sets[2],
		months:   sets[3],
		weekdays: sets[4],
	}, nil
}

// MustParseCronExpression is like ParseCronExpression but panics on error.
func MustParseCronExpression(expr string) *CronExpression {
	ce, err := ParseCronExpression(expr)
	if err != nil {
		panic(err)
	}
	return ce
}

func parseField(field string, spec fieldSpec) (fieldSet, error) {
	var set fieldSet
	for _, part := range strings.Split(field, ",") {
		if err := parsePart(part, spec, &set); err != nil {
			return set, err
		}
	}
	return set, nil
}

func parsePart(part string, spec fieldSpec, set *fieldSet) error {
	rangePart, stepPart, hasStep := strings.Cut(part, "/")

	step := 1
	if hasStep {
		s, err := strconv.Atoi(stepPart)
		if err != nil || s <= 0 {
			return fmt.Errorf("invalid step %q", stepPart)
		}
		step = s
	}

	start, end := spec.min, spec.max
	switch {
	case rangePart == "*":
	case strings.Contains(rangePart, "-"):
		lo, hi, _ := strings.Cut(rangePart, "-")
		var err error
		if start, err = bound(lo, spec); err != nil {
			return err
		}
		if end, err = bound(hi, spec); err != nil {
			return err
		}
		if start > end {
			return fmt.Errorf("invalid range %q", rangePart)
		}
	default:
		v, err := bound(rangePart, spec)
		if err != nil {
			return err
		}
		start = v
		if !hasStep {
			end = v
		}
	}

	for v := start; v <= end; v += step {
		set[v] = true
	}
	return nil
}

func bound(s string, spec fieldSpec) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid value %q", s)
	}
	if v < spec.min || v > spec.max {
		return 0, fmt.Errorf("value %d out of range [%d-%d]", v, spec.min, spec.max)
	}
	return v, nil
}

// String returns the original cron expression.
func (ce *CronExpression) String() string {
	return ce.raw
}

// Next returns the first matching minute strictly after t, or the zero time
// if nothing matches within a year (e.g. "0 0 31 2 *").
func (ce *CronExpression) Next(t time.Time) time.Time {
	next := t.In(ce.location).Truncate(time.Minute).Add(time.Minute)

	const horizon = 366 * 24 * 60
	for i := 0; i < horizon; i++ {
		if ce.matches(next) {
			return next
		}
		next = next.Add(time.Minute)
	}
	return time.Time{}
}

func (ce *CronExpression) matches(t time.Time) bool {
	return ce.minutes[t.Minute()] &&
		ce.hours[t.Hour()] &&
		ce.days[t.Day()] &&
		ce.months[int(t.Month())] &&
		ce.weekdays[int(t.Weekday())]
}

// ParseSchedule accepts either "@every <duration>" or a 5-field cron
// expression.
func ParseSchedule(spec string, loc *time.Location) (Schedule, error) {
	spec = strings.TrimSpace(spec)
	if rest, ok := strings.CutPrefix(spec, "@every "); ok {
		d, err := time.ParseDuration(strings.TrimSpace(rest))
		if err != nil {
			return nil, fmt.Errorf("invalid interval %q: %w", rest, err)
		}
		interval, err := NewIntervalSchedule(d)
		if err != nil {
			return nil, err
		}
		return interval, nil
	}
	return ParseCronExpressionIn(spec, loc)
}
