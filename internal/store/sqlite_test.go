package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/seantiz/anvil/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func makeTestRecord(id int64, finished time.Time) *model.ActionRecord {
	started := finished.Add(-250 * time.Millisecond)
	return &model.ActionRecord{
		Ref:        model.NewRef(),
		ActionID:   id,
		Name:       fmt.Sprintf("action-%d", id),
		Discipline: model.DisciplineGlobal,
		Outcome:    model.OutcomeSucceeded,
		WorkerID:   1,
		QueuedAt:   started.Add(-time.Second),
		StartedAt:  &started,
		FinishedAt: finished,
		DurationMS: 250,
	}
}

func TestRecordAndGetAction(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	rec := makeTestRecord(1, time.Now().UTC().Truncate(time.Second))

	if err := s.RecordAction(ctx, rec); err != nil {
		t.Fatalf("RecordAction: %v", err)
	}

	got, err := s.GetAction(ctx, rec.Ref)
	if err != nil {
		t.Fatalf("GetAction: %v", err)
	}

	if got.Ref != rec.Ref {
		t.Errorf("Ref = %q, want %q", got.Ref, rec.Ref)
	}
	if got.ActionID != rec.ActionID {
		t.Errorf("ActionID = %d, want %d", got.ActionID, rec.ActionID)
	}
	if got.Name != rec.Name {
		t.Errorf("Name = %q, want %q", got.Name, rec.Name)
	}
	if got.Outcome != rec.Outcome {
		t.Errorf("Outcome = %q, want %q", got.Outcome, rec.Outcome)
	}
	if got.WorkerID != rec.WorkerID {
		t.Errorf("WorkerID = %d, want %d", got.WorkerID, rec.WorkerID)
	}
	if got.DurationMS != rec.DurationMS {
		t.Errorf("DurationMS = %d, want %d", got.DurationMS, rec.DurationMS)
	}
	if got.StartedAt == nil || !got.StartedAt.Equal(*rec.StartedAt) {
		t.Errorf("StartedAt = %v, want %v", got.StartedAt, rec.StartedAt)
	}
	if !got.FinishedAt.Equal(rec.FinishedAt) {
		t.Errorf("FinishedAt = %v, want %v", got.FinishedAt, rec.FinishedAt)
	}
}

func TestRecordActionWithoutStart(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := makeTestRecord(2, time.Now().UTC().Truncate(time.Second))
	rec.StartedAt = nil
	rec.DurationMS = 0
	rec.Outcome = model.OutcomeFailed
	rec.Error = "action callback failed"

	if err := s.RecordAction(ctx, rec); err != nil {
		t.Fatalf("RecordAction: %v", err)
	}

	got, err := s.GetAction(ctx, rec.Ref)
	if err != nil {
		t.Fatalf("GetAction: %v", err)
	}
	if got.StartedAt != nil {
		t.Errorf("StartedAt = %v, want nil", got.StartedAt)
	}
	if got.Error != rec.Error {
		t.Errorf("Error = %q, want %q", got.Error, rec.Error)
	}
}

func TestGetActionNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetAction(context.Background(), "nonexistent")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetAction error = %v, want ErrNotFound", err)
	}
}

func TestListActionsPagination(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	for i := 0; i < 5; i++ {
		rec := makeTestRecord(int64(i), base.Add(time.Duration(i)*time.Second))
		if err := s.RecordAction(ctx, rec); err != nil {
			t.Fatalf("RecordAction[%d]: %v", i, err)
		}
	}

	page1, total, err := s.ListActions(ctx, 2, 0)
	if err != nil {
		t.Fatalf("ListActions: %v", err)
	}
	if total != 5 {
		t.Errorf("total = %d, want 5", total)
	}
	if len(page1) != 2 {
		t.Errorf("len(page1) = %d, want 2", len(page1))
	}

	page3, _, err := s.ListActions(ctx, 2, 4)
	if err != nil {
		t.Fatalf("ListActions page 3: %v", err)
	}
	if len(page3) != 1 {
		t.Errorf("len(page3) = %d, want 1", len(page3))
	}
}

func TestListActionsOrdering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		rec := makeTestRecord(int64(i), time.Date(2026, 1, 1+i, 0, 0, 0, 0, time.UTC))
		if err := s.RecordAction(ctx, rec); err != nil {
			t.Fatalf("RecordAction: %v", err)
		}
	}

	records, _, err := s.ListActions(ctx, 10, 0)
	if err != nil {
		t.Fatalf("ListActions: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("len(records) = %d, want 3", len(records))
	}
	for i, want := range []int64{2, 1, 0} {
		if records[i].ActionID != want {
			t.Errorf("records[%d].ActionID = %d, want %d", i, records[i].ActionID, want)
		}
	}
}

func TestListActionsEmpty(t *testing.T) {
	s := newTestStore(t)

	records, total, err := s.ListActions(context.Background(), 10, 0)
	if err != nil {
		t.Fatalf("ListActions: %v", err)
	}
	if total != 0 {
		t.Errorf("total = %d, want 0", total)
	}
	if len(records) != 0 {
		t.Errorf("len(records) = %d, want 0", len(records))
	}
}

func TestGetActionStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	ok1 := makeTestRecord(1, now)
	ok1.DurationMS = 100
	ok2 := makeTestRecord(2, now)
	ok2.DurationMS = 200
	ok2.Discipline = model.DisciplineChained
	failed := makeTestRecord(3, now)
	failed.Outcome = model.OutcomeFailed
	failed.DurationMS = 150
	unstarted := makeTestRecord(4, now)
	unstarted.Outcome = model.OutcomeFailed
	unstarted.StartedAt = nil
	unstarted.DurationMS = 0

	for _, rec := range []*model.ActionRecord{ok1, ok2, failed, unstarted} {
		if err := s.RecordAction(ctx, rec); err != nil {
			t.Fatalf("RecordAction: %v", err)
		}
	}

	stats, err := s.GetActionStats(ctx)
	if err != nil {
		t.Fatalf("GetActionStats: %v", err)
	}

	if stats.Total != 4 {
		t.Errorf("Total = %d, want 4", stats.Total)
	}
	if stats.CountByOutcome[model.OutcomeSucceeded] != 2 {
		t.Errorf("succeeded count = %d, want 2", stats.CountByOutcome[model.OutcomeSucceeded])
	}
	if stats.CountByOutcome[model.OutcomeFailed] != 2 {
		t.Errorf("failed count = %d, want 2", stats.CountByOutcome[model.OutcomeFailed])
	}
	if stats.CountByDiscipline[model.DisciplineChained] != 1 {
		t.Errorf("chained count = %d, want 1", stats.CountByDiscipline[model.DisciplineChained])
	}
	// Rows without a start are excluded from the average.
	if stats.AvgDurationMS != 150 {
		t.Errorf("AvgDurationMS = %f, want 150", stats.AvgDurationMS)
	}
}

func TestGetActionStatsEmpty(t *testing.T) {
	s := newTestStore(t)

	stats, err := s.GetActionStats(context.Background())
	if err != nil {
		t.Fatalf("GetActionStats: %v", err)
	}
	if stats.Total != 0 {
		t.Errorf("Total = %d, want 0", stats.Total)
	}
	if stats.AvgDurationMS != 0 {
		t.Errorf("AvgDurationMS = %f, want 0", stats.AvgDurationMS)
	}
}
