package common

import "time"

// ConnectAttemptEntry - One connection attempt, for the attempt history.
type ConnectAttemptEntry struct {
	Time        time.Time
	DeviceIndex int
	Device      string // Device address, if known
	Duration    time.Duration
	Success     bool
}
