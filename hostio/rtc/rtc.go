// Package rtc implements hostio.Clock.
package rtc

import "time"

// System reports the real wall clock, for the desktop dev-harness.
type System struct{}

// NowUnix implements hostio.Clock.
func (System) NowUnix() int64 { return time.Now().UTC().Unix() }

// None reports 0 always, modelling a device with no RTC battery.
type None struct{}

// NowUnix implements hostio.Clock.
func (None) NowUnix() int64 { return 0 }
