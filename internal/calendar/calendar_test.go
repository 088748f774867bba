package calendar

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchMeetings_FiltersNone_ReturnsAllEntries(t *testing.T) {
	var gotPath string
	var gotBody requestBody

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(responseBody{D: []Entry{
			{ID: "1", MeetingName: "Commission Meeting", StartDate: "2025-06-05", HasVideo: true},
			{ID: "2", MeetingName: "No Video Meeting", StartDate: "2025-06-06", HasVideo: false},
		}})
	}))
	defer srv.Close()

	c := New(srv.URL, "-04:00", 5*time.Second)
	from := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)

	entries, err := c.FetchMeetings(context.Background(), from, to)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "/MeetingsCalendarView.aspx/GetCalendarMeetings", gotPath)
	assert.Contains(t, gotBody.CalendarStartDate, "-04:00")
}

func TestFetchMeetings_NonOKStatus_IsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, "-04:00", 5*time.Second)
	_, err := c.FetchMeetings(context.Background(), time.Now(), time.Now())
	assert.Error(t, err)
}

func TestDateRangeForCurrentMonth(t *testing.T) {
	loc := time.UTC
	now := time.Date(2025, 6, 15, 10, 30, 0, 0, loc)

	from, to := DateRangeForCurrentMonth(now, loc)
	assert.Equal(t, time.Date(2025, 6, 1, 0, 0, 0, 0, loc), from)
	assert.Equal(t, time.Date(2025, 7, 1, 0, 0, 0, 0, loc), to)
}
