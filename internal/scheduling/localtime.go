package scheduling

import (
	"fmt"
	"time"
)

// The pipeline runs two clocks: the zone clients think in and the zone the
// calendar stores events under. Keeping them as distinct types means a value
// can never cross from one to the other without an explicit conversion.

// Zones holds the two locations the scheduling pipeline converts between.
type Zones struct {
	Display *time.Location
	Storage *time.Location
}

// LoadZones resolves both IANA zone names.
func LoadZones(display, storage string) (Zones, error) {
	d, err := time.LoadLocation(display)
	if err != nil {
		return Zones{}, fmt.Errorf("scheduling: load display timezone %q: %w", display, err)
	}
	s, err := time.LoadLocation(storage)
	if err != nil {
		return Zones{}, fmt.Errorf("scheduling: load storage timezone %q: %w", storage, err)
	}
	return Zones{Display: d, Storage: s}, nil
}

// DisplayTime is an instant pinned to the display zone's wall clock.
type DisplayTime struct {
	t time.Time
}

// StorageTime is an instant pinned to the storage zone's wall clock.
type StorageTime struct {
	t time.Time
}

// DisplayAt interprets a wall-clock reading as display-zone local time.
func (z Zones) DisplayAt(year int, month time.Month, day, hour, minute int) DisplayTime {
	return DisplayTime{time.Date(year, month, day, hour, minute, 0, 0, z.Display)}
}

// DisplayNow returns the current moment on the display clock.
func (z Zones) DisplayNow() DisplayTime {
	return DisplayTime{time.Now().In(z.Display)}
}

// InDisplay re-pins an arbitrary instant to the display zone.
func (z Zones) InDisplay(t time.Time) DisplayTime {
	return DisplayTime{t.In(z.Display)}
}

// ToStorage converts the same instant onto the storage clock.
func (z Zones) ToStorage(d DisplayTime) StorageTime {
	return StorageTime{d.t.In(z.Storage)}
}

func (d DisplayTime) Before(other DisplayTime) bool { return d.t.Before(other.t) }

func (d DisplayTime) Add(dur time.Duration) DisplayTime { return DisplayTime{d.t.Add(dur)} }

// Format renders on the display wall clock.
func (d DisplayTime) Format(layout string) string { return d.t.Format(layout) }

// Zone returns the display zone's IANA name for user-facing labels.
func (d DisplayTime) Zone() string { return d.t.Location().String() }

func (s StorageTime) Add(dur time.Duration) StorageTime { return StorageTime{s.t.Add(dur)} }

// Format renders on the storage wall clock.
func (s StorageTime) Format(layout string) string { return s.t.Format(layout) }

// UTC exposes the instant for range queries against the calendar API.
func (s StorageTime) UTC() time.Time { return s.t.UTC() }

// Zone returns the storage zone's IANA name, the label the calendar event
// carries.
func (s StorageTime) Zone() string { return s.t.Location().String() }

// RFC3339 renders the storage-zone timestamp with offset, the form the
// calendar API expects alongside the zone label.
func (s StorageTime) RFC3339() string { return s.t.Format(time.RFC3339) }
