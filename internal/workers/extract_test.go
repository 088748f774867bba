package workers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonchurch/gnv-city-meetings/internal/artifact"
	"github.com/jonchurch/gnv-city-meetings/internal/meeting"
	"github.com/jonchurch/gnv-city-meetings/internal/orchestrator"
	"github.com/jonchurch/gnv-city-meetings/internal/queue"
	"github.com/jonchurch/gnv-city-meetings/internal/state"
	"github.com/jonchurch/gnv-city-meetings/internal/storage"
)

const extractTestAgendaHTML = `
<html><body>
<script>
Bookmarks: [
  {"AgendaItemId": 1, "TimeStart": 5000, "TimeEnd": 60000}
];
</script>
<div class="AgendaItem AgendaItem1">
  <div class="AgendaItemTitle"><a href="#">Call to Order</a></div>
</div>
</body></html>
`

func TestExtractWorker_ParsesAgendaAndAdvances(t *testing.T) {
	agendaServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(extractTestAgendaHTML))
	}))
	defer agendaServer.Close()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	store := state.New(db)

	mr := miniredis.RunT(t)
	producer := queue.NewProducer(mr.Addr(), testLogger())
	defer producer.Close()
	orch := orchestrator.New(store, producer, testLogger())

	artifacts, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "title", "scheduled_date", "source_url", "phase",
		"raw_video_path", "derived_chapters_path", "derived_metadata_path",
		"derived_audio_path", "derived_diarized_path", "published_url",
		"error_message", "failed_at_phase", "created_at", "updated_at",
	}).AddRow("m1", "City Commission", now, "agenda", string(meeting.Downloaded),
		nil, nil, nil, nil, nil, nil, nil, nil, now, now)
	mock.ExpectQuery(`SELECT .* FROM meetings WHERE id = \$1`).WithArgs("m1").WillReturnRows(rows)

	mock.ExpectExec(`UPDATE meetings SET phase = \$1, updated_at = now\(\), derived_chapters_path = \$2, derived_metadata_path = \$3, agenda_blob = \$4, chapters_blob = \$5 WHERE id = \$6`).
		WithArgs(string(meeting.Extracted), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), "m1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := NewExtractWorker(store, artifacts, orch, agendaServer.URL, 5*time.Second, t.TempDir(), testLogger())

	err = w.Process(context.Background(), queue.Payload{MeetingID: "m1"})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	exists, err := artifacts.Exists(context.Background(), artifact.DerivedChapters, "m1")
	require.NoError(t, err)
	assert.True(t, exists)
}
