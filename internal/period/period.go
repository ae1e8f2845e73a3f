// Package period turns user-supplied duration tokens such as "7d", "2w" or
// "3m" into time windows. Parsing never fails: anything it does not
// recognise yields the caller's default.
package period

import (
	"regexp"
	"strconv"
	"time"
)

// Window is a trailing time range of whole days ending now.
type Window struct {
	Days  int
	Label string
}

var (
	SummaryDefault = Window{Days: 7, Label: "7d"}
	StoryDefault   = Window{Days: 30, Label: "30d"}
)

var tokenPattern = regexp.MustCompile(`^(\d+)([dwm])$`)

// maxDays caps absurd tokens like "999999999m" so that Since stays in range.
const maxDays = 100 * 365

var unitDays = map[string]int{
	"d": 1,
	"w": 7,
	"m": 30,
}

// Parse returns the window named by token, or def when token is empty, does
// not match <integer><d|w|m>, or describes zero days.
func Parse(token string, def Window) Window {
	m := tokenPattern.FindStringSubmatch(token)
	if m == nil {
		return def
	}
	value, err := strconv.Atoi(m[1])
	if err != nil || value <= 0 {
		return def
	}
	days := value * unitDays[m[2]]
	if days > maxDays || days/unitDays[m[2]] != value {
		return def
	}
	return Window{Days: days, Label: token}
}

// Since returns the start of the window relative to now.
func (w Window) Since(now time.Time) time.Time {
	return now.Add(-w.Duration())
}

// Duration is the window length.
func (w Window) Duration() time.Duration {
	return time.Duration(w.Days) * 24 * time.Hour
}
