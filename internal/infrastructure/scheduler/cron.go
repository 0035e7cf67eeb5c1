package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron"
)

// Common schedules.
const (
	EveryFiveMinutes = "*/5 * * * *"
	EveryHour        = "0 * * * *"
	EveryDayMidnight = "0 0 * * *"
)

// CronSchedule is a Schedule driven by a standard 5-field cron expression
// (minute hour day-of-month month day-of-week).
type CronSchedule struct {
	raw   string
	sched cron.Schedule
}

// ParseCronExpression parses a 5-field cron expression or a descriptor such
// as "@hourly".
func ParseCronExpression(expr string) (*CronSchedule, error) {
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return &CronSchedule{raw: expr, sched: sched}, nil
}

// MustParseCronExpression parses a cron expression or panics.
// Use only for compile-time constants.
func MustParseCronExpression(expr string) *CronSchedule {
	cs, err := ParseCronExpression(expr)
	if err != nil {
		panic(err)
	}
	return cs
}

// Next returns the first matching time after t.
func (c *CronSchedule) Next(t time.Time) time.Time {
	return c.sched.Next(t)
}

// String returns the original expression.
func (c *CronSchedule) String() string {
	return c.raw
}
