// Package calendar implements the HTTP client for the external municipal
// calendar API described in spec.md §6, the sole data source the Discovery
// Service polls.
package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Entry is one element of the calendar API's `{d: [...]}` response,
// keeping only the fields spec.md §6 names as relevant.
type Entry struct {
	ID          string `json:"ID"`
	MeetingName string `json:"MeetingName"`
	StartDate   string `json:"StartDate"`
	HasVideo    bool   `json:"HasVideo"`
}

type requestBody struct {
	CalendarStartDate string `json:"calendarStartDate"`
	CalendarEndDate   string `json:"calendarEndDate"`
}

type responseBody struct {
	D []Entry `json:"d"`
}

// Client is a thin HTTP client for the calendar endpoint, deliberately
// free of any filtering or business logic — that belongs to the discovery
// package, which is the actual consumer.
type Client struct {
	baseURL string
	offset  string
	http    *http.Client
}

// New builds a Client. offset is the fixed UTC offset (e.g. "-04:00")
// applied to every request's date range, per spec.md §6.
func New(baseURL, offset string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		offset:  offset,
		http:    &http.Client{Timeout: timeout},
	}
}

// FetchMeetings calls POST <baseURL>/MeetingsCalendarView.aspx/GetCalendarMeetings
// with the given [from, to) range, formatted as ISO-8601 with this
// client's fixed offset.
func (c *Client) FetchMeetings(ctx context.Context, from, to time.Time) ([]Entry, error) {
	body := requestBody{
		CalendarStartDate: formatWithOffset(from, c.offset),
		CalendarEndDate:   formatWithOffset(to, c.offset),
	}

	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("calendar: encoding request body: %w", err)
	}

	url := c.baseURL + "/MeetingsCalendarView.aspx/GetCalendarMeetings"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("calendar: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calendar: calling %q: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("calendar: %q returned status %s", url, resp.Status)
	}

	var decoded responseBody
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("calendar: decoding response from %q: %w", url, err)
	}

	return decoded.D, nil
}

func formatWithOffset(t time.Time, offset string) string {
	loc := parseOffsetLocation(offset)
	return t.In(loc).Format("2006-01-02T15:04:05-07:00")
}

// parseOffsetLocation builds a fixed-offset *time.Location from a string
// like "-04:00". On malformed input it falls back to UTC rather than
// failing the whole discovery run over a configuration typo.
func parseOffsetLocation(offset string) *time.Location {
	t, err := time.Parse("-07:00", offset)
	if err != nil {
		return time.UTC
	}
	_, secondsEastOfUTC := t.Zone()
	return time.FixedZone(offset, secondsEastOfUTC)
}

// DateRangeForCurrentMonth computes the default poll window spec.md §4.5
// specifies: the first instant of the current month through the first
// instant of the next month, in the given location.
func DateRangeForCurrentMonth(now time.Time, loc *time.Location) (from, to time.Time) {
	n := now.In(loc)
	from = time.Date(n.Year(), n.Month(), 1, 0, 0, 0, 0, loc)
	to = from.AddDate(0, 1, 0)
	return from, to
}
