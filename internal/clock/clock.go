package clock

import "time"

// Clock abstracts wall-clock reads so expiry logic stays deterministic in
// tests. All timestamps the service writes or compares are UTC.
type Clock interface {
	Now() time.Time
}

type System struct{}

func (System) Now() time.Time {
	return time.Now().UTC()
}
