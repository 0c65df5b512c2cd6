package cluster

import (
	"time"

	"github.com/srhthu/GPU-Calendar-Monitor/internal/models"
)

// calendarFreshWindow bounds how recent a successful calendar refresh must
// be for the snapshot to advertise the calendar as live.
const calendarFreshWindow = 2 * time.Minute

// storeBookings replaces one calendar source's record table in full.
// Sources are re-fetched wholesale because bookings are edited and deleted
// upstream; merging would resurrect removed events. Must hold c.mu.
func (c *Cluster) storeBookings(calendarID string, records []models.BookingRecord, dates []string, now time.Time) {
	c.bookings[calendarID] = records
	c.dates = dates
	c.calendarAt = now
}

// copyBookings concatenates all sources' current tables into one slice.
// Must hold c.mu.
func (c *Cluster) copyBookings() []models.BookingRecord {
	var n int
	for _, recs := range c.bookings {
		n += len(recs)
	}
	out := make([]models.BookingRecord, 0, n)
	for _, id := range c.cfg.CalendarIDs {
		out = append(out, c.bookings[id]...)
	}
	return out
}

// calendarFresh reports whether any calendar source refreshed recently.
// Must hold c.mu.
func (c *Cluster) calendarFresh(now time.Time) bool {
	return !c.calendarAt.IsZero() && now.Sub(c.calendarAt) < calendarFreshWindow
}
