package chrono

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidCronExpr is returned when a cron expression is malformed.
var ErrInvalidCronExpr = errors.New("chrono: invalid cron expression")

// predefinedSchedules maps cron macros to their 5-field equivalents.
var predefinedSchedules = map[string]string{
	"@yearly":   "0 0 1 1 *",
	"@annually": "0 0 1 1 *",
	"@monthly":  "0 0 1 * *",
	"@weekly":   "0 0 * * 0",
	"@daily":    "0 0 * * *",
	"@midnight": "0 0 * * *",
	"@hourly":   "0 * * * *",
}

// CronExpression is a parsed 5-field cron expression:
//
//	┌───────────── minute (0 - 59)
//	│ ┌───────────── hour (0 - 23)
//	│ │ ┌───────────── day of month (1 - 31)
//	│ │ │ ┌───────────── month (1 - 12)
//	│ │ │ │ ┌───────────── day of week (0 - 6, 0 = Sunday)
//	│ │ │ │ │
//	* * * * *
//
// Field syntax:
//   - * : all values
//   - */n : every nth value
//   - n : specific value
//   - n-m : range from n to m (inclusive)
//   - n-m/s : range with step
//   - n,m,o : comma-separated list
//
// Predefined macros: @yearly, @annually, @monthly, @weekly, @daily, @midnight, @hourly
type CronExpression struct {
	minutes     []int
	hours       []int
	daysOfMonth []int
	months      []int
	daysOfWeek  []int
	expr        string
}

// ParseCronExpression parses a cron expression string into a CronExpression.
// Returns ErrInvalidCronExpr if the expression is malformed.
func ParseCronExpression(expr string) (*CronExpression, error) {
	expr = strings.TrimSpace(expr)

	if replacement, ok := predefinedSchedules[strings.ToLower(expr)]; ok {
		expr = replacement
	}

	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return nil, fmt.Errorf("%w: expected 5 fields, got %d", ErrInvalidCronExpr, len(fields))
	}

	ce := &CronExpression{expr: expr}
	var err error

	ce.minutes, err = parseCronField(fields[0], 0, 59)
	if err != nil {
		return nil, fmt.Errorf("%w: minute field: %v", ErrInvalidCronExpr, err)
	}

	ce.hours, err = parseCronField(fields[1], 0, 23)
	if err != nil {
		return nil, fmt.Errorf("%w: hour field: %v", ErrInvalidCronExpr, err)
	}

	ce.daysOfMonth, err = parseCronField(fields[2], 1, 31)
	if err != nil {
		return nil, fmt.Errorf("%w: day-of-month field: %v", ErrInvalidCronExpr, err)
	}

	ce.months, err = parseCronField(fields[3], 1, 12)
	if err != nil {
		return nil, fmt.Errorf("%w: month field: %v", ErrInvalidCronExpr, err)
	}

	ce.daysOfWeek, err = parseCronField(fields[4], 0, 6)
	if err != nil {
		return nil, fmt.Errorf("%w: day-of-week field: %v", ErrInvalidCronExpr, err)
	}

	return ce, nil
}

// NextInstantAfter returns the next activation time strictly after from, in
// loc. It searches up to 4 years ahead to account for leap-year edge cases
// and returns the zero time if nothing is found within that window. It is a
// pure function of (expression, from, loc).
func (ce *CronExpression) NextInstantAfter(from time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	t := from.In(loc)
	t = t.Add(time.Minute - time.Duration(t.Second())*time.Second -
		time.Duration(t.Nanosecond())).Truncate(time.Minute)

	limit := t.Add(4 * 365 * 24 * time.Hour)

	for t.Before(limit) {
		if !intSliceContains(ce.months, int(t.Month())) {
			t = time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, loc)
			continue
		}
		if !intSliceContains(ce.daysOfMonth, t.Day()) {
			t = time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, loc)
			continue
		}
		if !intSliceContains(ce.daysOfWeek, int(t.Weekday())) {
			t = time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, loc)
			continue
		}
		if !intSliceContains(ce.hours, t.Hour()) {
			t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour()+1, 0, 0, 0, loc)
			continue
		}
		if !intSliceContains(ce.minutes, t.Minute()) {
			t = t.Add(time.Minute)
			continue
		}
		return t
	}

	return time.Time{}
}

// String returns the original cron expression text.
func (ce *CronExpression) String() string {
	return ce.expr
}

func parseCronField(field string, min, max int) ([]int, error) {
	if field == "*" {
		return makeRange(min, max, 1), nil
	}

	var values []int
	for _, part := range strings.Split(field, ",") {
		partValues, err := parseCronPart(part, min, max)
		if err != nil {
			return nil, err
		}
		values = append(values, partValues...)
	}

	values = uniqueInts(values)
	sort.Ints(values)

	if len(values) == 0 {
		return nil, fmt.Errorf("no values resolved for field: %s", field)
	}

	return values, nil
}

func parseCronPart(part string, min, max int) ([]int, error) {
	stepParts := strings.SplitN(part, "/", 2)

	step := 1
	if len(stepParts) == 2 {
		var err error
		step, err = strconv.Atoi(stepParts[1])
		if err != nil || step <= 0 {
			return nil, fmt.Errorf("invalid step value: %s", stepParts[1])
		}
	}

	rangeStr := stepParts[0]

	if rangeStr == "*" {
		return makeRange(min, max, step), nil
	}

	rangeParts := strings.SplitN(rangeStr, "-", 2)
	if len(rangeParts) == 2 {
		rangeMin, err := strconv.Atoi(rangeParts[0])
		if err != nil {
			return nil, fmt.Errorf("invalid range start: %s", rangeParts[0])
		}
		rangeMax, err := strconv.Atoi(rangeParts[1])
		if err != nil {
			return nil, fmt.Errorf("invalid range end: %s", rangeParts[1])
		}
		if rangeMin < min || rangeMax > max || rangeMin > rangeMax {
			return nil, fmt.Errorf("range %d-%d out of bounds [%d, %d]", rangeMin, rangeMax, min, max)
		}
		return makeRange(rangeMin, rangeMax, step), nil
	}

	val, err := strconv.Atoi(rangeStr)
	if err != nil {
		return nil, fmt.Errorf("invalid value: %s", rangeStr)
	}
	if val < min || val > max {
		return nil, fmt.Errorf("value %d out of bounds [%d, %d]", val, min, max)
	}

	return []int{val}, nil
}

func makeRange(start, end, step int) []int {
	var result []int
	for i := start; i <= end; i += step {
		result = append(result, i)
	}
	return result
}

func intSliceContains(slice []int, val int) bool {
	idx := sort.SearchInts(slice, val)
	return idx < len(slice) && slice[idx] == val
}

func uniqueInts(slice []int) []int {
	seen := make(map[int]bool, len(slice))
	result := make([]int, 0, len(slice))
	for _, v := range slice {
		if !seen[v] {
			seen[v] = true
			result = append(result, v)
		}
	}
	return result
}
