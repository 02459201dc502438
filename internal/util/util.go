package util

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang/geo/s2"
)

// earthRadiusMeters is the mean Earth radius.
const earthRadiusMeters = 6371008.8

// NormalizeUsername lower-cases a Telegram username and drops the leading @.
func NormalizeUsername(s string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), "@"))
}

// DistanceMeters is the great-circle distance between two coordinates.
func DistanceMeters(lat1, lng1, lat2, lng2 float64) float64 {
	a := s2.LatLngFromDegrees(lat1, lng1)
	b := s2.LatLngFromDegrees(lat2, lng2)
	return a.Distance(b).Radians() * earthRadiusMeters
}

// FormatDuration renders d as "1h 2min 3s".
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int64(d / time.Second)
	return fmt.Sprintf("%dh %dmin %ds", secs/3600, (secs%3600)/60, secs%60)
}
