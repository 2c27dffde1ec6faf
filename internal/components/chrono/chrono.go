package chrono

import (
	"fmt"
	"time"
)

// API is the interface that anything depending on the system clock should use.
type API interface {
	Now() time.Time
	Location() *time.Location
}

// StandardImpl reads the system clock in a fixed location.
type StandardImpl struct {
	location *time.Location
}

// NewStandardImpl takes an IANA location name, empty means the local timezone.
func NewStandardImpl(location string) (StandardImpl, error) {
	if location == "" {
		location = "Local"
	}
	loc, err := time.LoadLocation(location)
	if err != nil {
		return StandardImpl{}, fmt.Errorf("load location %q: %w", location, err)
	}
	return StandardImpl{location: loc}, nil
}

func (s StandardImpl) Now() time.Time {
	return time.Now().In(s.location)
}

func (s StandardImpl) Location() *time.Location {
	return s.location
}

// FixedImpl is a clock that never moves.
type FixedImpl struct {
	At time.Time
}

func (f FixedImpl) Now() time.Time {
	return f.At
}

func (f FixedImpl) Location() *time.Location {
	return f.At.Location()
}
