package repository

import "time"

// Drivers hand back timestamps in different locations; rows compare in UTC
func normaliseTime(t *time.Time) {
	*t = t.UTC()
}

func normaliseTimePtr(t *time.Time) {
	if t != nil {
		*t = t.UTC()
	}
}
