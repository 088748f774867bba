// Package agenda parses a municipal meeting's agenda page (spec.md §6)
// and generates the chapter-annotated description the extract worker
// writes as a derived artifact.
package agenda

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Bookmark is one element of the `Bookmarks: [...]` JSON literal embedded
// in the agenda page. Times are milliseconds from the start of the video.
type Bookmark struct {
	AgendaItemID int `json:"AgendaItemId"`
	TimeStart    int `json:"TimeStart"`
	TimeEnd      int `json:"TimeEnd"`
}

// Item is a single agenda entry after joining bookmarks with titles: the
// title is always present (from the AgendaItemTitle divs); the bookmark
// fields are present only if that item has an associated timestamp.
type Item struct {
	AgendaItemID int
	Title        string
	HasTime      bool
	TimeStart    int
	TimeEnd      int
}

var bookmarksLiteral = regexp.MustCompile(`(?s)Bookmarks:\s*(\[.*?\])`)

// ParseBookmarks extracts the `Bookmarks: [...]` JSON array embedded in
// the raw agenda page HTML.
func ParseBookmarks(html string) ([]Bookmark, error) {
	m := bookmarksLiteral.FindStringSubmatch(html)
	if m == nil {
		// No bookmarks literal present is not an error: some agendas have
		// no video timestamps at all.
		return nil, nil
	}

	var bookmarks []Bookmark
	if err := json.Unmarshal([]byte(m[1]), &bookmarks); err != nil {
		return nil, fmt.Errorf("agenda: parsing Bookmarks literal: %w", err)
	}
	return bookmarks, nil
}

var agendaItemClass = regexp.MustCompile(`(?i)\bAgendaItem(\d+)\b`)

// ParseTitles extracts the agenda-item titles, as a map keyed by
// AgendaItemId (so in no particular order), from the repeated
// `<DIV class="AgendaItem AgendaItemN">...<DIV class="AgendaItemTitle">...<a>title</a>`
// blocks described in spec.md §6.
func ParseTitles(html string) (map[int]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("agenda: parsing HTML: %w", err)
	}

	titles := make(map[int]string)
	doc.Find("div.AgendaItem").Each(func(_ int, s *goquery.Selection) {
		class, _ := s.Attr("class")
		var id = -1
		for _, token := range strings.Fields(class) {
			if m := agendaItemClass.FindStringSubmatch(token); m != nil {
				if n, err := strconv.Atoi(m[1]); err == nil {
					id = n
				}
			}
		}
		if id < 0 {
			return
		}

		title := strings.TrimSpace(s.Find("div.AgendaItemTitle a").First().Text())
		if title == "" {
			title = strings.TrimSpace(s.Find("div.AgendaItemTitle").First().Text())
		}
		if title != "" {
			titles[id] = title
		}
	})
	return titles, nil
}

// Join merges parsed bookmarks and titles into a single ordered item list:
// every titled agenda item appears once, carrying its bookmark's times if
// one exists, sorted ascending by TimeStart with untimed items sorted
// last (spec.md §4.6, testable property 8's "Infinity-last" rule).
func Join(bookmarks []Bookmark, titles map[int]string) []Item {
	byID := make(map[int]Bookmark, len(bookmarks))
	for _, b := range bookmarks {
		byID[b.AgendaItemID] = b
	}

	items := make([]Item, 0, len(titles))
	for id, title := range titles {
		item := Item{AgendaItemID: id, Title: title}
		if b, ok := byID[id]; ok {
			item.HasTime = true
			item.TimeStart = b.TimeStart
			item.TimeEnd = b.TimeEnd
		}
		items = append(items, item)
	}

	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.HasTime != b.HasTime {
			return a.HasTime // timestamped items sort before untimed ones
		}
		if a.HasTime && b.HasTime && a.TimeStart != b.TimeStart {
			return a.TimeStart < b.TimeStart
		}
		return a.AgendaItemID < b.AgendaItemID
	})

	return items
}

const preMeetingTitle = "Pre-meeting"

// Chapters renders the chapter-description document described in
// spec.md §4.6: a title/date header, a blank line, "Chapters:", then one
// "HH:MM:SS title" line per timestamped item, with a synthetic
// "00:00:00 Pre-meeting" line prepended whenever the first timestamped
// item does not already start at the origin.
func Chapters(meetingTitle string, meetingDate string, items []Item) string {
	var b strings.Builder

	b.WriteString(meetingTitle)
	b.WriteString(" - ")
	b.WriteString(chapterDate(meetingDate))
	b.WriteString("\n\n")
	b.WriteString("Chapters:\n")

	timed := make([]Item, 0, len(items))
	for _, it := range items {
		if it.HasTime {
			timed = append(timed, it)
		}
	}

	if len(timed) > 0 && timed[0].TimeStart != 0 {
		b.WriteString(formatTimestamp(0))
		b.WriteString(" ")
		b.WriteString(preMeetingTitle)
		b.WriteString("\n")
	}

	for _, it := range timed {
		b.WriteString(formatTimestamp(it.TimeStart))
		b.WriteString(" ")
		b.WriteString(it.Title)
		b.WriteString("\n")
	}

	return strings.TrimRight(b.String(), "\n") + "\n"
}

// chapterDate takes the meeting's stored date string and returns just its
// first token (spec.md says "first token, slashes→dashes") — the donor
// calendar API returns dates like "2025-06-05 19:00" or "06/05/2025", and
// only the date portion belongs in the chapter header.
func chapterDate(raw string) string {
	first := strings.Fields(raw)
	token := raw
	if len(first) > 0 {
		token = first[0]
	}
	return strings.ReplaceAll(token, "/", "-")
}

// formatTimestamp renders milliseconds-from-start as HH:MM:SS.
func formatTimestamp(ms int) string {
	totalSeconds := ms / 1000
	h := totalSeconds / 3600
	m := (totalSeconds % 3600) / 60
	s := totalSeconds % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// Metadata is the derived metadata record the extract worker writes
// alongside the chapter description (spec.md §4.6).
type Metadata struct {
	MeetingID   string     `json:"meetingId"`
	Title       string     `json:"title"`
	Date        string     `json:"date"`
	AgendaData  AgendaData `json:"agendaData"`
	ExtractedAt string     `json:"extractedAt"`
}

// AgendaData carries the raw bookmarks used to build Metadata, so the
// round trip of encoding then decoding reproduces the same ordered item
// list (testable property: round-trip law in spec.md §8).
type AgendaData struct {
	Bookmarks []Bookmark `json:"bookmarks"`
}

// EncodeMetadata renders a Metadata record as indented JSON.
func EncodeMetadata(m Metadata) ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}
