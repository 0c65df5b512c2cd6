package models

// ViolationCode classifies one booking record against the quota rules.
// Exactly one code applies per record; lower codes take priority when a
// record matches several rules.
type ViolationCode int

const (
	BookingOK ViolationCode = iota
	BookingInvalidUser
	BookingExceedsGPUQuota
	BookingExceedsDayQuota
)

func (c ViolationCode) String() string {
	switch c {
	case BookingOK:
		return "ok"
	case BookingInvalidUser:
		return "invalid_user"
	case BookingExceedsGPUQuota:
		return "exceeds_gpu_quota"
	case BookingExceedsDayQuota:
		return "exceeds_day_quota"
	}
	return "unknown"
}

// BookingRecord is one user's claim on one GPU for one day. Multi-day,
// multi-GPU calendar events are exploded into these atomic tuples before
// they reach the ledger.
type BookingRecord struct {
	Title    string `json:"title"` // claimed username
	Who      string `json:"who"`   // display name on the calendar
	Day      int    `json:"day"`   // offset from today, 0 = today
	Hostname string `json:"hostname"`
	Index    int    `json:"index"`
}

// ClassifiedBooking is a booking record with its violation code attached.
type ClassifiedBooking struct {
	BookingRecord
	Code ViolationCode `json:"code"`
}
