package utils

import "time"

// rfc3339Millis is RFC3339 with a fixed millisecond fraction, matching the
// precision the document store keeps.
const rfc3339Millis = "2006-01-02T15:04:05.000Z07:00"

func NowUTC() time.Time {
	return time.Now().UTC()
}

func RFC3339(t time.Time) string {
	return t.UTC().Format(rfc3339Millis)
}

// ParseRFC3339 accepts both second and sub-second precision.
func ParseRFC3339(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
