// Package teamup turns a Teamup calendar into atomic booking records.
// Each GPU of the cluster is one subcalendar; an event booking several
// GPUs over several days is exploded into (user, day, gpu) tuples.
package teamup

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/srhthu/GPU-Calendar-Monitor/internal/models"
)

const (
	defaultBaseURL = "https://teamup.com"
	dateFormat     = "2006-01-02"
	axisFormat     = "2006 01 02"
	queryTZ        = "Asia/Shanghai"
)

// calendarsRe extracts the subcalendar list embedded in the calendar page.
var calendarsRe = regexp.MustCompile(`(?s)var calendars =.*?(\[.*?\])`)

// TranslateFunc maps a subcalendar node name (e.g. "asus 1") to the node
// hostname used by the agents. Nil leaves names untouched.
type TranslateFunc func(string) string

// TranslateNeXT maps NExT lab calendar names to hostnames,
// e.g. "ASUS 1" -> "next-asus-01".
func TranslateNeXT(name string) string {
	prefix, id, ok := strings.Cut(strings.ToLower(name), " ")
	if !ok {
		return name
	}
	table := map[string]string{
		"asus": "next-asus-0",
		"dgx1": "next-dgx1-0",
		"node": "next-gpu",
	}
	if p, known := table[prefix]; known {
		prefix = p
	}
	return prefix + id
}

// Client fetches bookings from Teamup. It implements cluster.BookingFetcher.
type Client struct {
	BaseURL   string
	Translate TranslateFunc
	// TZ is the calendar's local timezone; "today" is computed in it.
	TZ     *time.Location
	client *http.Client
}

// NewClient builds a Teamup client with a bounded-timeout HTTP client.
func NewClient(translate TranslateFunc) *Client {
	return &Client{
		BaseURL:   defaultBaseURL,
		Translate: translate,
		TZ:        time.FixedZone("SGT", 8*3600),
		client:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Slot is one GPU as named on the calendar.
type Slot struct {
	Hostname string
	Index    int
}

// FetchBookings returns the exploded booking records for the visible
// window starting today, plus the date axis. Events referencing unknown
// subcalendars are dropped for the cycle rather than failing the fetch.
func (c *Client) FetchBookings(ctx context.Context, calendarID string, windowDays int) ([]models.BookingRecord, []string, error) {
	slots, err := c.subcalendars(ctx, calendarID)
	if err != nil {
		return nil, nil, err
	}

	now := time.Now().In(c.TZ)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, c.TZ)
	end := today.AddDate(0, 0, windowDays-1)

	events, err := c.events(ctx, calendarID, today, end)
	if err != nil {
		return nil, nil, err
	}

	records := make([]models.BookingRecord, 0, len(events))
	for _, ev := range events {
		startDay, endDay, err := ev.dayRange(today, windowDays)
		if err != nil {
			// Malformed timestamps drop the event, not the cycle.
			continue
		}
		for _, subID := range ev.SubcalendarIDs {
			slot, ok := slots[subID]
			if !ok {
				continue
			}
			for day := startDay; day <= endDay; day++ {
				records = append(records, models.BookingRecord{
					Title:    ev.Title,
					Who:      ev.Who,
					Day:      day,
					Hostname: slot.Hostname,
					Index:    slot.Index,
				})
			}
		}
	}

	dates := make([]string, windowDays)
	for i := range dates {
		dates[i] = today.AddDate(0, 0, i).Format(axisFormat)
	}
	return records, dates, nil
}

// subcalendars scrapes the calendar page for the map from subcalendar id
// to (hostname, gpu index). Subcalendars are named like "ASUS 1 > GPU 0".
func (c *Client) subcalendars(ctx context.Context, calendarID string) (map[int64]Slot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/"+calendarID, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("calendar page %s: status %d", calendarID, resp.StatusCode)
	}
	page, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}
	return ParseSubcalendars(string(page), c.Translate)
}

var digitsRe = regexp.MustCompile(`[0-9]+`)

// ParseSubcalendars extracts subcalendar ids and their GPU slots from the
// calendar page HTML.
func ParseSubcalendars(page string, translate TranslateFunc) (map[int64]Slot, error) {
	m := calendarsRe.FindStringSubmatch(page)
	if m == nil {
		return nil, fmt.Errorf("calendar page: subcalendar list not found")
	}
	var entries []struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	}
	if err := json.Unmarshal([]byte(m[1]), &entries); err != nil {
		return nil, fmt.Errorf("calendar page: %w", err)
	}

	slots := make(map[int64]Slot, len(entries))
	for _, e := range entries {
		nodePart, gpuPart, ok := strings.Cut(e.Name, ">")
		if !ok {
			continue
		}
		node := strings.Join(strings.Fields(strings.ToLower(nodePart)), " ")
		digits := digitsRe.FindString(gpuPart)
		if node == "" || digits == "" {
			continue
		}
		index, err := strconv.Atoi(digits)
		if err != nil {
			continue
		}
		if translate != nil {
			node = translate(node)
		}
		slots[e.ID] = Slot{Hostname: node, Index: index}
	}
	return slots, nil
}

type event struct {
	SubcalendarIDs []int64 `json:"subcalendar_ids"`
	Title          string  `json:"title"`
	Who            string  `json:"who"`
	StartDT        string  `json:"start_dt"`
	EndDT          string  `json:"end_dt"`
}

// dayRange clamps the event's day span to [0, windowDays-1] offsets from
// the window start. Both edge days are inclusive.
func (e event) dayRange(start time.Time, windowDays int) (int, int, error) {
	if len(e.StartDT) < len(dateFormat) || len(e.EndDT) < len(dateFormat) {
		return 0, 0, fmt.Errorf("event %q: short timestamp", e.Title)
	}
	from, err := time.ParseInLocation(dateFormat, e.StartDT[:len(dateFormat)], start.Location())
	if err != nil {
		return 0, 0, err
	}
	to, err := time.ParseInLocation(dateFormat, e.EndDT[:len(dateFormat)], start.Location())
	if err != nil {
		return 0, 0, err
	}
	startDay := int(from.Sub(start).Hours() / 24)
	if startDay < 0 {
		startDay = 0
	}
	endDay := int(to.Sub(start).Hours() / 24)
	if endDay > windowDays-1 {
		endDay = windowDays - 1
	}
	return startDay, endDay, nil
}

// events fetches the raw events overlapping [start, end].
func (c *Client) events(ctx context.Context, calendarID string, start, end time.Time) ([]event, error) {
	q := url.Values{
		"startDate": {start.Format(dateFormat)},
		"endDate":   {end.Format(dateFormat)},
		"tz":        {queryTZ},
	}
	u := fmt.Sprintf("%s/%s/events?%s", c.BaseURL, calendarID, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("calendar %s events: status %d", calendarID, resp.StatusCode)
	}
	var payload struct {
		Events []event `json:"events"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("calendar %s events: %w", calendarID, err)
	}
	return payload.Events, nil
}
