package host

import "time"

// Clock is the only source of time for the managers so tests can drive it.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type Timer interface {
	Stop() bool
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Millis converts t to the unix-millisecond form used in stored documents.
func Millis(t time.Time) int64 {
	return t.UnixMilli()
}
