package db

import "time"

const sqliteTimeLayout = "2006-01-02 15:04:05"

// ParseTime reads a CURRENT_TIMESTAMP column value.
func ParseTime(value string) (time.Time, error) {
	t, err := time.ParseInLocation(sqliteTimeLayout, value, time.UTC)
	if err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, value)
}

// Placeholders returns "?, ?, ?" for n bind parameters.
func Placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	b := make([]byte, 0, n*3)
	for i := 0; i < n; i++ {
		if i > 0 {
			b = append(b, ',', ' ')
		}
		b = append(b, '?')
	}
	return string(b)
}
