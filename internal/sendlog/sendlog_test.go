package sendlog

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"

	"github.com/certforge/certmailer/internal/batch"
)

func TestRecordBatch_OneRowPerOutcome(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	res := &batch.Result{
		Sent:   1,
		Failed: 1,
		Results: []batch.Outcome{
			{Email: "a@x.com", Name: "Alice", Status: batch.StatusSuccess},
			{Email: "b@x.com", Name: "Bob", Status: batch.StatusFailed, Error: "certificate not found"},
		},
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO certmailer_send_log").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO certmailer_send_log").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	log := New(db)
	if err := log.RecordBatch(context.Background(), uuid.New(), "Hi", res); err != nil {
		t.Fatalf("RecordBatch() error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestRecordBatch_NilLogIsNoop(t *testing.T) {
	var log *Log
	err := log.RecordBatch(context.Background(), uuid.New(), "Hi", &batch.Result{})
	if err != nil {
		t.Errorf("nil log RecordBatch() error: %v", err)
	}
}

func TestRecentBatches(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	id := uuid.New()
	rows := sqlmock.NewRows([]string{"batch_id", "subject", "sent", "failed", "recorded_at"}).
		AddRow(id.String(), "Hi", 4, 1, time.Now())

	mock.ExpectQuery("SELECT batch_id").
		WithArgs(10).
		WillReturnRows(rows)

	log := New(db)
	got, err := log.RecentBatches(context.Background(), 10)
	if err != nil {
		t.Fatalf("RecentBatches() error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d summaries, want 1", len(got))
	}
	if got[0].Sent != 4 || got[0].Failed != 1 {
		t.Errorf("summary counts = %d/%d, want 4/1", got[0].Sent, got[0].Failed)
	}
}
