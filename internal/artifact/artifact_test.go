package artifact

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitize(t *testing.T) {
	valid := regexp.MustCompile(`^[A-Za-z0-9_]*$`)

	cases := []string{
		"m1",
		"abc-123",
		"../../etc/passwd",
		"id with spaces",
		"",
		"emoji😀id",
		"semi;colon",
	}

	for _, c := range cases {
		got := Sanitize(c)
		assert.Regexp(t, valid, got, "sanitize(%q) = %q must match character class", c, got)
	}
}

func TestPathFor_Deterministic(t *testing.T) {
	p1, err := PathFor(RawVideo, "m1")
	require.NoError(t, err)
	p2, err := PathFor(RawVideo, "m1")
	require.NoError(t, err)
	assert.Equal(t, p1, p2)
	assert.Equal(t, "raw/videos/m1.mp4", p1)
}

func TestPathFor_AllKinds(t *testing.T) {
	want := map[Kind]string{
		RawVideo:        "raw/videos/m1.mp4",
		RawAgenda:       "raw/agendas/m1_agenda.html",
		DerivedAudio:    "derived/audio/m1.m4a",
		DerivedChapters: "derived/chapters/m1_chapters.txt",
		DerivedMetadata: "derived/metadata/m1_metadata.json",
		DerivedDiarized: "derived/diarized/m1_diarized.json",
	}
	for kind, expected := range want {
		got, err := PathFor(kind, "m1")
		require.NoError(t, err)
		assert.Equal(t, expected, got)
	}
}

func TestPathFor_SanitizesMeetingID(t *testing.T) {
	got, err := PathFor(RawVideo, "../../etc/m1")
	require.NoError(t, err)
	assert.Equal(t, "raw/videos/etcm1.mp4", got)
}

func TestPathFor_UnknownKind(t *testing.T) {
	_, err := PathFor(Kind("BOGUS"), "m1")
	assert.Error(t, err)
}

func TestPathFor_EmptyAfterSanitize(t *testing.T) {
	_, err := PathFor(RawVideo, "...")
	assert.Error(t, err)
}

func TestParseKind(t *testing.T) {
	k, ok := ParseKind("raw_video")
	assert.True(t, ok)
	assert.Equal(t, RawVideo, k)

	_, ok = ParseKind("not_a_kind")
	assert.False(t, ok)
}
