// Package discovery implements the Discovery Service (spec.md §4.5): the
// operation that polls the external calendar, inserts newly observed
// meetings, and seeds their first download job. The poller itself (a
// timer or cron-like scheduler) is external to this package; Run is the
// single operation it calls.
package discovery

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jonchurch/gnv-city-meetings/internal/calendar"
	"github.com/jonchurch/gnv-city-meetings/internal/meeting"
	"github.com/jonchurch/gnv-city-meetings/internal/queue"
	"github.com/jonchurch/gnv-city-meetings/internal/state"
)

// Service wires the calendar client, state store, and job queue producer
// together into the single discovery operation.
type Service struct {
	calendar *calendar.Client
	store    *state.Store
	producer *queue.Producer
	log      *logrus.Logger
}

func New(cal *calendar.Client, store *state.Store, producer *queue.Producer, log *logrus.Logger) *Service {
	return &Service{calendar: cal, store: store, producer: producer, log: log}
}

// Result summarizes one discovery run for logging.
type Result struct {
	Fetched  int
	Inserted int
	Skipped  int
}

// Run executes one discovery pass over [from, to): fetch, filter to
// HasVideo entries, insertIfAbsent each, and enqueue a download job for
// every meeting newly inserted. Already-present meetings are silently
// skipped, making Run safe to call at any cadence.
func (s *Service) Run(ctx context.Context, from, to time.Time) (Result, error) {
	entries, err := s.calendar.FetchMeetings(ctx, from, to)
	if err != nil {
		return Result{}, fmt.Errorf("discovery: fetching calendar entries: %w", err)
	}

	result := Result{Fetched: len(entries)}

	for _, e := range entries {
		if !e.HasVideo {
			continue
		}

		startDate, err := parseStartDate(e.StartDate)
		if err != nil {
			return result, fmt.Errorf("discovery: parsing start date %q for meeting %q: %w", e.StartDate, e.ID, err)
		}

		m := meeting.Meeting{
			ID:        e.ID,
			Title:     e.MeetingName,
			Date:      startDate,
			SourceURL: fmt.Sprintf("Meeting.aspx?Id=%s&Agenda=Agenda&lang=English", e.ID),
		}

		outcome, err := s.store.InsertIfAbsent(ctx, m)
		if err != nil {
			return result, fmt.Errorf("discovery: inserting meeting %q: %w", e.ID, err)
		}

		if outcome == state.AlreadyPresent {
			result.Skipped++
			continue
		}

		if err := s.producer.Enqueue(ctx, queue.Download, e.ID); err != nil {
			return result, fmt.Errorf("discovery: enqueuing download job for %q: %w", e.ID, err)
		}

		result.Inserted++
		s.log.WithFields(logrus.Fields{"meetingId": e.ID, "title": e.MeetingName}).Info("discovered new meeting")
	}

	return result, nil
}

// startDateLayouts lists every format the calendar API is observed to use
// for StartDate, tried in order. The API returns plain "<date> <time>" or
// "/"-separated dates, not RFC3339, so RFC3339 alone under-parses the
// common case.
var startDateLayouts = []string{
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"01/02/2006 15:04",
	"01/02/2006",
}

// parseStartDate tries every known layout in turn, returning an error
// rather than a zero time.Time if none match — a meeting with a zeroed
// date would silently corrupt downstream chapter-date formatting.
func parseStartDate(raw string) (time.Time, error) {
	for _, layout := range startDateLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, fmt.Errorf("no known layout matches %q", raw)
}
