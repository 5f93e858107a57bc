// -----------------------------------------------------------------------
// Clock - Fixed reference-zone time source for all schedule math
// -----------------------------------------------------------------------

package scheduler

import (
	"fmt"
	"time"

	"github.com/ternarybob/venator/internal/interfaces"
)

// referenceClock evaluates "now" in a fixed zone so schedule math is
// independent of the host machine's locale.
type referenceClock struct {
	location *time.Location
}

// NewClock loads the reference zone by name (e.g. "America/New_York").
func NewClock(timeZone string) (interfaces.Clock, error) {
	loc, err := time.LoadLocation(timeZone)
	if err != nil {
		return nil, fmt.Errorf("failed to load time zone %q: %w", timeZone, err)
	}
	return &referenceClock{location: loc}, nil
}

func (c *referenceClock) Now() time.Time {
	return time.Now().In(c.location)
}

// fixedClock pins Now for tests.
type fixedClock struct {
	now time.Time
}

func (c *fixedClock) Now() time.Time { return c.now }
