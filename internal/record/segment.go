// internal/record/segment.go

package record

import (
	"fmt"
	"path/filepath"
	"time"
)

// Segment files land at
//
//	<root>/<camera>/<DD-MM-YY>/<start HH_MM>__<end HH_MM>.<container>
//
// with the day folder taken from the segment start.

// DayFolderLayout is the day directory name format under each camera
// root. The retention sweeper parses folder names with it.
const DayFolderLayout = "02-01-06"

func dayDir(t time.Time) string {
	return t.Format(DayFolderLayout)
}

func clockLabel(t time.Time) string {
	return t.Format("15_04")
}

func segmentPath(root, camera string, start, end time.Time, container string) string {
	name := fmt.Sprintf("%s__%s.%s", clockLabel(start), clockLabel(end), container)
	return filepath.Join(root, camera, dayDir(start), name)
}

// dayEnd returns 23:59:00 on t's calendar day, the hard cap for any
// planned end.
func dayEnd(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 0, 0, t.Location())
}

func sameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}

// planEnd places the planned end one rotation period after start,
// truncated to 23:59 when that would land on a later day. A start
// inside the final minute of the day gets an end at or before itself;
// callers treat that as "hold recording until tomorrow".
func planEnd(start time.Time, period time.Duration) time.Time {
	end := start.Add(period)
	if !sameDay(start, end) {
		return dayEnd(start)
	}
	return end
}
