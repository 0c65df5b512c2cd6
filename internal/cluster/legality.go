package cluster

import (
	"strings"

	"github.com/srhthu/GPU-Calendar-Monitor/internal/models"
)

// Quotas are the booking limits applied during classification.
type Quotas struct {
	MaxGPUPerUser int
	MaxDaysPerGPU int
}

type slotKey struct {
	Hostname string
	Index    int
}

type groupKey struct {
	Title    string
	Hostname string
	Index    int
}

// Classify assigns exactly one violation code to every booking record.
// A record matching several rules gets the highest-priority one:
// invalid user, then GPU quota, then day quota. The result depends only
// on the inputs, so re-running over an unchanged table yields identical
// codes.
func Classify(records []models.BookingRecord, validUsers map[string]bool, q Quotas) []models.ClassifiedBooking {
	// Distinct (host, index) pairs per title across the whole window.
	gpusByTitle := make(map[string]map[slotKey]struct{})
	// Distinct days per (title, host, index).
	daysByGroup := make(map[groupKey]map[int]struct{})
	for _, r := range records {
		slot := slotKey{r.Hostname, r.Index}
		if gpusByTitle[r.Title] == nil {
			gpusByTitle[r.Title] = make(map[slotKey]struct{})
		}
		gpusByTitle[r.Title][slot] = struct{}{}

		grp := groupKey{r.Title, r.Hostname, r.Index}
		if daysByGroup[grp] == nil {
			daysByGroup[grp] = make(map[int]struct{})
		}
		daysByGroup[grp][r.Day] = struct{}{}
	}

	out := make([]models.ClassifiedBooking, len(records))
	for i, r := range records {
		code := models.BookingOK
		switch {
		case !validUsers[r.Title]:
			code = models.BookingInvalidUser
		case len(gpusByTitle[r.Title]) > q.MaxGPUPerUser:
			code = models.BookingExceedsGPUQuota
		case len(daysByGroup[groupKey{r.Title, r.Hostname, r.Index}]) > q.MaxDaysPerGPU:
			code = models.BookingExceedsDayQuota
		}
		out[i] = models.ClassifiedBooking{BookingRecord: r, Code: code}
	}
	return out
}

// bookedNames maps each (host, gpu) slot to the concatenation of title+who
// of every OK-coded booking for today. Duplicate pairs collapse, keeping
// first-seen order.
func bookedNames(table []models.ClassifiedBooking) map[slotKey]string {
	seen := make(map[slotKey]map[string]struct{})
	parts := make(map[slotKey][]string)
	for _, b := range table {
		if b.Day != 0 || b.Code != models.BookingOK {
			continue
		}
		slot := slotKey{b.Hostname, b.Index}
		name := b.Title + b.Who
		if seen[slot] == nil {
			seen[slot] = make(map[string]struct{})
		}
		if _, dup := seen[slot][name]; dup {
			continue
		}
		seen[slot][name] = struct{}{}
		parts[slot] = append(parts[slot], name)
	}
	out := make(map[slotKey]string, len(parts))
	for slot, names := range parts {
		out[slot] = strings.Join(names, " ")
	}
	return out
}

// processIllegal reports whether a live process has no valid booking
// covering its GPU today. Matching is deliberately substring-based: the
// process owner only needs to appear somewhere in the booked title+who
// text, which tolerates display-name variants on the calendar.
func processIllegal(username, booked string) bool {
	return !strings.Contains(booked, username)
}
