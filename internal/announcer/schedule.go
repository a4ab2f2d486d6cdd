package announcer

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultSchedule is used when the config omits a schedule.
const DefaultSchedule = "5s"

// cronParser accepts both 5-field and 6-field (with seconds) specs plus
// descriptors like "@hourly" and "@every 5m".
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Schedule is a parsed announce schedule: either a fixed interval or a cron
// expression. The zero value is not usable; build one with ParseSchedule.
type Schedule struct {
	cron   cron.Schedule
	every  time.Duration
	source string
}

// ParseSchedule parses a schedule string.
//
// Supported forms:
//   - Go duration: "5s", "2m30s"
//   - Cron (crontab.guru-style): "*/5 * * * *", "@hourly", "@every 55m"
//
// Heuristic: whitespace or a leading '@' means cron, anything else is parsed
// as a duration.
func ParseSchedule(raw string) (Schedule, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		s = DefaultSchedule
	}

	if strings.ContainsAny(s, " \t\n\r") || strings.HasPrefix(s, "@") {
		cs, err := cronParser.Parse(s)
		if err != nil {
			return Schedule{}, fmt.Errorf("invalid cron schedule %q: %w", raw, err)
		}
		return Schedule{cron: cs, source: s}, nil
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return Schedule{}, fmt.Errorf(
			"invalid schedule %q (use a duration like '5s' or cron like '*/5 * * * *')", raw)
	}
	if d <= 0 {
		return Schedule{}, fmt.Errorf("schedule interval must be > 0")
	}
	return Schedule{every: d, source: s}, nil
}

// Wait returns how long to sleep after a tick that ended at now.
func (s Schedule) Wait(now time.Time) time.Duration {
	if s.cron != nil {
		return s.cron.Next(now).Sub(now)
	}
	return s.every
}

func (s Schedule) String() string { return s.source }
