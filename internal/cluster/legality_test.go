package cluster

import (
	"reflect"
	"testing"

	"github.com/srhthu/GPU-Calendar-Monitor/internal/models"
)

var testQuotas = Quotas{MaxGPUPerUser: 4, MaxDaysPerGPU: 3}

func record(title, host string, index, day int) models.BookingRecord {
	return models.BookingRecord{Title: title, Who: " by " + title, Day: day, Hostname: host, Index: index}
}

func codesOf(table []models.ClassifiedBooking) []models.ViolationCode {
	out := make([]models.ViolationCode, len(table))
	for i, b := range table {
		out[i] = b.Code
	}
	return out
}

func TestClassifyInvalidUser(t *testing.T) {
	records := []models.BookingRecord{
		record("alice", "node1", 0, 0),
		record("mallory", "node1", 1, 0),
	}
	table := Classify(records, map[string]bool{"alice": true}, testQuotas)

	if table[0].Code != models.BookingOK {
		t.Errorf("alice: got %v, want OK", table[0].Code)
	}
	if table[1].Code != models.BookingInvalidUser {
		t.Errorf("mallory: got %v, want invalid user", table[1].Code)
	}
}

func TestClassifyGPUQuota(t *testing.T) {
	// 5 distinct (host, index) pairs with quota 4 flags every record.
	var records []models.BookingRecord
	for i := 0; i < 5; i++ {
		records = append(records, record("alice", "node1", i, 0))
	}
	table := Classify(records, map[string]bool{"alice": true}, testQuotas)
	for i, b := range table {
		if b.Code != models.BookingExceedsGPUQuota {
			t.Errorf("record %d: got %v, want gpu quota", i, b.Code)
		}
	}
}

func TestClassifyGPUQuotaCountsDistinctPairs(t *testing.T) {
	// Same GPU booked on 3 days is one pair, not three.
	records := []models.BookingRecord{
		record("alice", "node1", 0, 0),
		record("alice", "node1", 0, 1),
		record("alice", "node1", 0, 2),
		record("alice", "node2", 0, 0),
	}
	table := Classify(records, map[string]bool{"alice": true}, testQuotas)
	for i, b := range table {
		if b.Code != models.BookingOK {
			t.Errorf("record %d: got %v, want OK", i, b.Code)
		}
	}
}

func TestClassifyDayQuota(t *testing.T) {
	// 4 distinct days on one GPU with quota 3 flags the whole group,
	// but not a sibling group within quota.
	var records []models.BookingRecord
	for day := 0; day < 4; day++ {
		records = append(records, record("alice", "node1", 0, day))
	}
	records = append(records, record("alice", "node1", 1, 0))
	table := Classify(records, map[string]bool{"alice": true}, testQuotas)

	for i := 0; i < 4; i++ {
		if table[i].Code != models.BookingExceedsDayQuota {
			t.Errorf("record %d: got %v, want day quota", i, table[i].Code)
		}
	}
	if table[4].Code != models.BookingOK {
		t.Errorf("sibling group: got %v, want OK", table[4].Code)
	}
}

func TestClassifyPriorityOrder(t *testing.T) {
	// An unknown user over both quotas is reported as invalid user only.
	var records []models.BookingRecord
	for i := 0; i < 5; i++ {
		for day := 0; day < 4; day++ {
			records = append(records, record("ghost", "node1", i, day))
		}
	}
	table := Classify(records, map[string]bool{}, testQuotas)
	for i, b := range table {
		if b.Code != models.BookingInvalidUser {
			t.Errorf("record %d: got %v, want invalid user", i, b.Code)
		}
	}
}

func TestClassifyIdempotent(t *testing.T) {
	records := []models.BookingRecord{
		record("alice", "node1", 0, 0),
		record("ghost", "node2", 1, 2),
		record("bob", "node1", 3, 1),
	}
	users := map[string]bool{"alice": true, "bob": true}
	first := Classify(records, users, testQuotas)
	second := Classify(records, users, testQuotas)
	if !reflect.DeepEqual(codesOf(first), codesOf(second)) {
		t.Errorf("codes changed between runs: %v vs %v", codesOf(first), codesOf(second))
	}
}

func TestBookedNamesOnlyOKToday(t *testing.T) {
	users := map[string]bool{"alice": true}
	records := []models.BookingRecord{
		record("alice", "node1", 0, 0),
		record("alice", "node1", 0, 1), // tomorrow, excluded
		record("ghost", "node1", 0, 0), // invalid, excluded
	}
	table := Classify(records, users, testQuotas)
	booked := bookedNames(table)

	got := booked[slotKey{"node1", 0}]
	want := "alice by alice"
	if got != want {
		t.Errorf("booked names: got %q, want %q", got, want)
	}
}

func TestProcessIllegalSubstringMatch(t *testing.T) {
	booked := "alice Alice Tan bob2024 Bob"
	cases := []struct {
		username string
		illegal  bool
	}{
		{"alice", false},
		// Substring semantics: the owner may appear inside a longer
		// calendar display name.
		{"bob", false},
		{"carol", true},
		{"", false}, // empty username matches anything
	}
	for _, tc := range cases {
		if got := processIllegal(tc.username, booked); got != tc.illegal {
			t.Errorf("processIllegal(%q): got %v, want %v", tc.username, got, tc.illegal)
		}
	}
}
