// Package testutils provides SBS wire-line builders and polling helpers
// shared by package tests.
package testutils

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

// stamp renders the generated/logged date and time column pairs for ts.
func stamp(ts time.Time) string {
	ts = ts.UTC()
	return fmt.Sprintf("%s,%s,%s,%s",
		ts.Format("2006/01/02"), ts.Format("15:04:05.000000"),
		ts.Format("2006/01/02"), ts.Format("15:04:05.000000"))
}

// PositionLine builds a well-formed type 3 (airborne position) MSG line.
func PositionLine(hexIdent string, ts time.Time, lat, lon float64, altitude int) string {
	return fmt.Sprintf("MSG,3,1,1,%s,1,%s,,%d,,,%s,%s,,,,,,",
		hexIdent, stamp(ts), altitude,
		strconv.FormatFloat(lat, 'f', -1, 64),
		strconv.FormatFloat(lon, 'f', -1, 64))
}

// IdentLine builds a well-formed type 1 (identification) MSG line.
func IdentLine(hexIdent string, ts time.Time, callsign string) string {
	return fmt.Sprintf("MSG,1,1,1,%s,1,%s,%s,,,,,,,,,,,", hexIdent, stamp(ts), callsign)
}

// VelocityLine builds a well-formed type 4 (airborne velocity) MSG line.
func VelocityLine(hexIdent string, ts time.Time, groundSpeed, track float64, verticalRate int) string {
	return fmt.Sprintf("MSG,4,1,1,%s,1,%s,,,%s,%s,,,%d,,,,,",
		hexIdent, stamp(ts),
		strconv.FormatFloat(groundSpeed, 'f', -1, 64),
		strconv.FormatFloat(track, 'f', -1, 64),
		verticalRate)
}

// AltitudeLine builds a well-formed type 5 (surveillance altitude) MSG line.
func AltitudeLine(hexIdent string, ts time.Time, altitude int) string {
	return fmt.Sprintf("MSG,5,1,1,%s,1,%s,,%d,,,,,,,,,,", hexIdent, stamp(ts), altitude)
}

// WaitForCondition polls condition until it returns true or the timeout
// elapses.
func WaitForCondition(condition func() bool, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for condition")
		case <-ticker.C:
			if condition() {
				return nil
			}
		}
	}
}
