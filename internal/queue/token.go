package queue

import (
	"fmt"
	"strings"
	"time"
)

// QueueDay returns midnight of now's calendar day in loc. Queue numbers
// restart at 1 on each new day.
func QueueDay(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	t := now.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// FormatToken builds the display token CODE-YYYYMMDD-NNN.
func FormatToken(departmentCode string, day time.Time, seq int) string {
	code := strings.ToUpper(strings.TrimSpace(departmentCode))
	return fmt.Sprintf("%s-%s-%03d", code, day.Format("20060102"), seq)
}
