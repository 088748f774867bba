// Package meeting defines the pipeline's central entity and the phase
// state machine that governs its lifecycle.
package meeting

import "time"

// Phase is a tagged variant identifying a meeting's position in the
// ingestion pipeline. DIARIZED and FAILED are terminal.
type Phase string

const (
	Discovered Phase = "DISCOVERED"
	Downloaded Phase = "DOWNLOADED"
	Extracted  Phase = "EXTRACTED"
	Uploaded   Phase = "UPLOADED"
	Diarized   Phase = "DIARIZED"
	Failed     Phase = "FAILED"
)

// Valid reports whether p is one of the six defined phases.
func (p Phase) Valid() bool {
	switch p {
	case Discovered, Downloaded, Extracted, Uploaded, Diarized, Failed:
		return true
	default:
		return false
	}
}

// Terminal reports whether a meeting in phase p can make no further
// automatic transition.
func (p Phase) Terminal() bool {
	return p == Diarized || p == Failed
}

// transitions is the authoritative phase transition table from spec.md §3.
// It is the single source of truth consulted by the orchestrator; workers
// and tests must never hard-code it separately.
var transitions = map[Phase]struct {
	Queue string
	Next  Phase
}{
	Discovered: {Queue: "download", Next: Downloaded},
	Downloaded: {Queue: "extract", Next: Extracted},
	Extracted:  {Queue: "upload", Next: Uploaded},
	Uploaded:   {Queue: "diarize", Next: Diarized},
}

// NextQueue returns the name of the queue that drives the transition out of
// phase p, and whether such a transition exists (false for terminal phases
// or for an unrecognized phase).
func NextQueue(p Phase) (queue string, ok bool) {
	t, ok := transitions[p]
	if !ok {
		return "", false
	}
	return t.Queue, true
}

// NextPhase returns the phase a meeting in phase p advances to on success
// of the transition driven by p's queue, and whether such a transition
// exists.
func NextPhase(p Phase) (next Phase, ok bool) {
	t, ok := transitions[p]
	if !ok {
		return "", false
	}
	return t.Next, true
}

// QueueForPhase returns the name of the queue whose workers expect meetings
// to be in phase p (i.e. the queue that performs the transition OUT of p).
// It is the inverse lookup used when seeding or restarting a meeting at a
// given phase.
func QueueForPhase(p Phase) (queue string, ok bool) {
	return NextQueue(p)
}

// Meeting is the central entity of the pipeline: a public body session
// discovered from an external calendar, tracked through each phase of
// download, extraction, upload, and diarization.
type Meeting struct {
	ID        string
	Title     string
	Date      time.Time
	SourceURL string
	Phase     Phase

	RawVideoPath      string
	DerivedChaptersPath string
	DerivedMetadataPath string
	DerivedAudioPath    string
	DerivedDiarizedPath string
	PublishedURL        string

	ErrorMessage  string
	FailedAtPhase Phase

	CreatedAt time.Time
	UpdatedAt time.Time
}

// FieldPatch describes a partial update to a Meeting's artifact/error
// fields, applied atomically alongside a phase change by the state store.
// Nil pointers mean "leave unchanged".
type FieldPatch struct {
	RawVideoPath        *string
	DerivedChaptersPath *string
	DerivedMetadataPath *string
	DerivedAudioPath    *string
	DerivedDiarizedPath *string
	PublishedURL        *string
	ErrorMessage        *string
	FailedAtPhase       *Phase
	AgendaBlob          *string
	ChaptersBlob        *string
}

func strp(s string) *string { return &s }

// Patch is a small builder used by workers to construct a FieldPatch
// without repeating the pointer-taking boilerplate at every call site.
type Patch struct{ p FieldPatch }

func NewPatch() *Patch { return &Patch{} }

func (b *Patch) RawVideoPath(v string) *Patch        { b.p.RawVideoPath = strp(v); return b }
func (b *Patch) DerivedChaptersPath(v string) *Patch { b.p.DerivedChaptersPath = strp(v); return b }
func (b *Patch) DerivedMetadataPath(v string) *Patch { b.p.DerivedMetadataPath = strp(v); return b }
func (b *Patch) DerivedAudioPath(v string) *Patch    { b.p.DerivedAudioPath = strp(v); return b }
func (b *Patch) DerivedDiarizedPath(v string) *Patch { b.p.DerivedDiarizedPath = strp(v); return b }
func (b *Patch) PublishedURL(v string) *Patch        { b.p.PublishedURL = strp(v); return b }
func (b *Patch) ErrorMessage(v string) *Patch        { b.p.ErrorMessage = strp(v); return b }
func (b *Patch) FailedAtPhase(v Phase) *Patch        { b.p.FailedAtPhase = &v; return b }
func (b *Patch) AgendaBlob(v string) *Patch          { b.p.AgendaBlob = strp(v); return b }
func (b *Patch) ChaptersBlob(v string) *Patch        { b.p.ChaptersBlob = strp(v); return b }

func (b *Patch) Build() FieldPatch { return b.p }
