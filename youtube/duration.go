package youtube

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

var durationRegex = regexp.MustCompile(`^PT(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?$`)

// ParseDuration converts an ISO-8601 video duration ("PT1H2M3S") into a
// time.Duration. Date components never appear in video durations, so only
// the time part is handled.
func ParseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, fmt.Errorf("youtube: empty duration")
	}
	m := durationRegex.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("youtube: malformed duration %q", s)
	}

	var total time.Duration
	units := []time.Duration{time.Hour, time.Minute, time.Second}
	for i, u := range units {
		if m[i+1] == "" {
			continue
		}
		n, err := strconv.Atoi(m[i+1])
		if err != nil {
			return 0, fmt.Errorf("youtube: malformed duration %q: %w", s, err)
		}
		total += time.Duration(n) * u
	}
	return total, nil
}
