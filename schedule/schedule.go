// Copyright 2021, Square, Inc.

// Package schedule provides the triggers that start a workflow or function
// without a direct call: schedule expressions (rate and cron) and event
// patterns. Expressions are validated when a trigger is made so a bad
// expression fails the synthesis rather than the deployment.
package schedule

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	oerr "github.com/square/orkestra/errors"
)

// Trigger starts a target either on a schedule or when a matching event
// arrives. Exactly one of Schedule and Pattern is set.
type Trigger struct {
	Name        string
	Description string
	Schedule    string        // rate(...) or cron(...)
	Pattern     *EventPattern // event pattern
}

// NewSchedule returns a trigger named name for the rate or cron expression.
func NewSchedule(name, expr string) (Trigger, error) {
	expr, err := Parse(expr)
	if err != nil {
		return Trigger{}, err
	}
	return Trigger{Name: name, Schedule: expr}, nil
}

// NewEvents returns a trigger named name for events matching p.
func NewEvents(name string, p EventPattern) (Trigger, error) {
	if p.IsZero() {
		return Trigger{}, fmt.Errorf("trigger %s: event pattern matches nothing: set at least one field", name)
	}
	return Trigger{Name: name, Pattern: &p}, nil
}

func (t Trigger) IsSchedule() bool { return t.Schedule != "" }

// EventPattern selects events by their envelope fields and detail.
type EventPattern struct {
	Source     []string               `json:"source,omitempty" yaml:"source,omitempty"`
	DetailType []string               `json:"detail-type,omitempty" yaml:"detail-type,omitempty"`
	Account    []string               `json:"account,omitempty" yaml:"account,omitempty"`
	Region     []string               `json:"region,omitempty" yaml:"region,omitempty"`
	Resources  []string               `json:"resources,omitempty" yaml:"resources,omitempty"`
	Detail     map[string]interface{} `json:"detail,omitempty" yaml:"detail,omitempty"`
}

func (p EventPattern) IsZero() bool {
	return len(p.Source) == 0 && len(p.DetailType) == 0 && len(p.Account) == 0 &&
		len(p.Region) == 0 && len(p.Resources) == 0 && len(p.Detail) == 0
}

// Map returns p as it appears in a resource template.
func (p EventPattern) Map() (map[string]interface{}, error) {
	bytes, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	m := map[string]interface{}{}
	if err := json.Unmarshal(bytes, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// --------------------------------------------------------------------------

// Rate returns the rate expression for d, which must be a positive whole
// number of minutes. The largest whole unit is used: 48h is "rate(2 days)".
func Rate(d time.Duration) (string, error) {
	if d < time.Minute || d%time.Minute != 0 {
		return "", oerr.InvalidSchedule{
			Expression: d.String(),
			Reason:     "rate must be a positive whole number of minutes",
		}
	}
	value, unit := int64(d/time.Minute), "minute"
	switch {
	case d%(24*time.Hour) == 0:
		value, unit = int64(d/(24*time.Hour)), "day"
	case d%time.Hour == 0:
		value, unit = int64(d/time.Hour), "hour"
	}
	if value > 1 {
		unit += "s"
	}
	return fmt.Sprintf("rate(%d %s)", value, unit), nil
}

// Cron returns the cron expression for the six fields. Exactly one of
// dayOfMonth and dayOfWeek must be "?".
func Cron(minutes, hours, dayOfMonth, month, dayOfWeek, year string) (string, error) {
	return Parse(fmt.Sprintf("cron(%s %s %s %s %s %s)", minutes, hours, dayOfMonth, month, dayOfWeek, year))
}

// Parse validates a rate or cron expression and returns it with surrounding
// space removed.
func Parse(expr string) (string, error) {
	expr = strings.TrimSpace(expr)
	var err error
	switch {
	case strings.HasPrefix(expr, "rate(") && strings.HasSuffix(expr, ")"):
		err = checkRate(strings.TrimSpace(expr[len("rate(") : len(expr)-1]))
	case strings.HasPrefix(expr, "cron(") && strings.HasSuffix(expr, ")"):
		err = checkCron(strings.Fields(expr[len("cron(") : len(expr)-1]))
	default:
		err = fmt.Errorf("expected rate(...) or cron(...)")
	}
	if err != nil {
		return "", oerr.InvalidSchedule{Expression: expr, Reason: err.Error()}
	}
	return expr, nil
}

/* ========================================================================== */

/* `rate(value unit)`: value is a positive integer; unit is singular for 1. */
func checkRate(body string) error {
	parts := strings.Fields(body)
	if len(parts) != 2 {
		return fmt.Errorf("rate has %d parts, expected 2 (value and unit)", len(parts))
	}
	value, err := strconv.Atoi(parts[0])
	if err != nil || value < 1 {
		return fmt.Errorf("rate value %s is not a positive integer", parts[0])
	}
	unit := parts[1]
	switch unit {
	case "minute", "hour", "day":
		if value != 1 {
			return fmt.Errorf("rate value %d needs plural unit %ss", value, unit)
		}
	case "minutes", "hours", "days":
		if value == 1 {
			return fmt.Errorf("rate value 1 needs singular unit %s", strings.TrimSuffix(unit, "s"))
		}
	default:
		return fmt.Errorf("unknown rate unit %s, expected minute(s), hour(s) or day(s)", unit)
	}
	return nil
}

/* ========================================================================== */

const cronChars = "0123456789*?,-/LW#ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

var cronFieldNames = []string{"minutes", "hours", "day-of-month", "month", "day-of-week", "year"}

/* `cron(minutes hours day-of-month month day-of-week year)` */
func checkCron(fields []string) error {
	if len(fields) != len(cronFieldNames) {
		return fmt.Errorf("cron has %d fields, expected %d", len(fields), len(cronFieldNames))
	}
	for i, f := range fields {
		if strings.Trim(f, cronChars) != "" {
			return fmt.Errorf("%s field %s has invalid characters", cronFieldNames[i], f)
		}
		if f != "?" && strings.Contains(f, "?") {
			return fmt.Errorf("%s field %s: ? must stand alone", cronFieldNames[i], f)
		}
	}

	dom, dow := fields[2] == "?", fields[4] == "?"
	if dom == dow {
		return fmt.Errorf("exactly one of day-of-month and day-of-week must be ?")
	}
	for i, f := range fields {
		if f == "?" && i != 2 && i != 4 {
			return fmt.Errorf("%s field cannot be ?", cronFieldNames[i])
		}
	}

	if err := checkRange(fields[0], cronFieldNames[0], 0, 59); err != nil {
		return err
	}
	return checkRange(fields[1], cronFieldNames[1], 0, 23)
}

/* Plain numbers in a list, range or step must be within [min, max]. */
func checkRange(field, name string, min, max int) error {
	for _, part := range strings.FieldsFunc(field, func(r rune) bool { return r == ',' || r == '-' || r == '/' }) {
		if part == "*" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return fmt.Errorf("%s field %s: %s is not a number", name, field, part)
		}
		if n < min || n > max {
			return fmt.Errorf("%s field %s: %d is out of range %d-%d", name, field, n, min, max)
		}
	}
	return nil
}
