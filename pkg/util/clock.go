package util

import "time"

// Clock abstracts wall-clock reads so engine tests can drive expiry and
// funding accrual deterministically.
type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }
