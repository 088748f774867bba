// Package artifact defines the content-addressed layout for files the
// pipeline produces and consumes, independent of where those files
// actually live (local disk or a remote file server).
package artifact

import (
	"fmt"
	"regexp"
	"strings"
)

// Kind is a tagged variant identifying the category of a pipeline
// artifact. Adding a new kind means extending this list and the
// exhaustive switch in PathFor — a compile-time-checked change, unlike a
// source-language map-of-strings.
type Kind string

const (
	RawVideo        Kind = "RAW_VIDEO"
	RawAgenda       Kind = "RAW_AGENDA"
	DerivedAudio    Kind = "DERIVED_AUDIO"
	DerivedChapters Kind = "DERIVED_CHAPTERS"
	DerivedMetadata Kind = "DERIVED_METADATA"
	DerivedDiarized Kind = "DERIVED_DIARIZED"
)

// All enumerates every defined artifact kind. Used by the file server to
// validate an incoming upload's kind against the fixed enumeration.
var All = []Kind{RawVideo, RawAgenda, DerivedAudio, DerivedChapters, DerivedMetadata, DerivedDiarized}

// Valid reports whether k is one of the fixed set of defined kinds.
func (k Kind) Valid() bool {
	for _, v := range All {
		if v == k {
			return true
		}
	}
	return false
}

var disallowedInID = regexp.MustCompile(`[^A-Za-z0-9_]+`)

// Sanitize reduces a meeting identifier to the character class
// [A-Za-z0-9_] before it is used in a storage path, per spec.md §3. It is
// a total function: any input, including the empty string, yields a
// string matching ^[A-Za-z0-9_]*$ (callers that require a non-empty
// result should validate separately).
func Sanitize(meetingID string) string {
	return disallowedInID.ReplaceAllString(meetingID, "")
}

// PathFor returns the canonical relative storage path for an artifact of
// the given kind belonging to the given meeting. It is pure: given the
// same (kind, meetingId) it always returns the same path, and performs no
// I/O. The returned path is relative to a storage root and uses forward
// slashes regardless of host OS, so it is safe to embed directly in URLs.
func PathFor(kind Kind, meetingID string) (string, error) {
	id := Sanitize(meetingID)
	if id == "" {
		return "", fmt.Errorf("artifact: sanitized meeting id is empty for input %q", meetingID)
	}

	switch kind {
	case RawVideo:
		return fmt.Sprintf("raw/videos/%s.mp4", id), nil
	case RawAgenda:
		return fmt.Sprintf("raw/agendas/%s_agenda.html", id), nil
	case DerivedAudio:
		return fmt.Sprintf("derived/audio/%s.m4a", id), nil
	case DerivedChapters:
		return fmt.Sprintf("derived/chapters/%s_chapters.txt", id), nil
	case DerivedMetadata:
		return fmt.Sprintf("derived/metadata/%s_metadata.json", id), nil
	case DerivedDiarized:
		return fmt.Sprintf("derived/diarized/%s_diarized.json", id), nil
	default:
		return "", fmt.Errorf("artifact: unknown kind %q", kind)
	}
}

// MustPathFor is PathFor for call sites that have already validated kind
// and meetingID and want to avoid threading an error through, such as
// constructing directory trees at startup.
func MustPathFor(kind Kind, meetingID string) string {
	p, err := PathFor(kind, meetingID)
	if err != nil {
		panic(err)
	}
	return p
}

// ParseKind validates a string against the fixed kind enumeration, for
// use by the remote file server when decoding the `:kind` path parameter
// of an upload request.
func ParseKind(s string) (Kind, bool) {
	k := Kind(strings.ToUpper(s))
	if k.Valid() {
		return k, true
	}
	return "", false
}
