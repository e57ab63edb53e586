package transcript

import (
	"fmt"
	"strconv"
	"strings"
)

// FormatTimestamp renders seconds as "HH:MM:SS.mmm", the timestamp form
// used in merged transcripts and analyzer responses.
func FormatTimestamp(sec float64) string {
	if sec < 0 {
		sec = 0
	}
	h := int(sec) / 3600
	m := (int(sec) % 3600) / 60
	s := sec - float64(h*3600+m*60)
	return fmt.Sprintf("%02d:%02d:%06.3f", h, m, s)
}

// ParseTimestamp accepts "HH:MM:SS.mmm", "MM:SS" and bare seconds.
func ParseTimestamp(ts string) (float64, error) {
	ts = strings.TrimSpace(ts)
	if ts == "" {
		return 0, fmt.Errorf("empty timestamp")
	}
	parts := strings.Split(ts, ":")
	total := 0.0
	for _, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid timestamp %q: %w", ts, err)
		}
		total = total*60 + v
	}
	return total, nil
}
