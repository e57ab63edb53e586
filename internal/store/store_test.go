package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/mediacut/highlightd/internal/types"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "jobs.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUpsertGetRoundTrip(t *testing.T) {
	t.Parallel()
	s := openTest(t)
	ctx := context.Background()

	job := types.Job{
		ID:     "job-1",
		Status: types.JobStatusPending,
		Payload: types.JobPayload{
			Videos: []types.VideoRef{{Filename: "a.mp4", Path: "/media/a.mp4"}},
			Text:   "keep the funny parts",
		},
		OutputDir: "/out/job-1",
		CreatedAt: time.Now(),
	}
	if err := s.Upsert(ctx, job); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	got, err := s.Get(ctx, "job-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != types.JobStatusPending {
		t.Errorf("status = %q, want pending", got.Status)
	}
	if len(got.Payload.Videos) != 1 || got.Payload.Videos[0].Filename != "a.mp4" {
		t.Errorf("payload videos = %+v", got.Payload.Videos)
	}
	if got.Payload.Text != "keep the funny parts" {
		t.Errorf("payload text = %q", got.Payload.Text)
	}
	if got.StartedAt != nil || got.CompletedAt != nil {
		t.Errorf("pending job should have no started/completed timestamps")
	}
}

func TestGetUnknown(t *testing.T) {
	t.Parallel()
	s := openTest(t)
	if _, err := s.Get(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get unknown = %v, want ErrNotFound", err)
	}
}

func TestTimestampsSetOnce(t *testing.T) {
	t.Parallel()
	s := openTest(t)
	ctx := context.Background()

	job := types.Job{ID: "job-1", Status: types.JobStatusPending, CreatedAt: time.Now()}
	if err := s.Upsert(ctx, job); err != nil {
		t.Fatal(err)
	}

	job.Status = types.JobStatusProcessing
	if err := s.Upsert(ctx, job); err != nil {
		t.Fatal(err)
	}
	first, err := s.Get(ctx, "job-1")
	if err != nil {
		t.Fatal(err)
	}
	if first.StartedAt == nil {
		t.Fatal("startedAt not set on transition into processing")
	}

	time.Sleep(5 * time.Millisecond)
	// a redundant processing upsert must not move startedAt
	if err := s.Upsert(ctx, job); err != nil {
		t.Fatal(err)
	}
	again, err := s.Get(ctx, "job-1")
	if err != nil {
		t.Fatal(err)
	}
	if !again.StartedAt.Equal(*first.StartedAt) {
		t.Errorf("startedAt moved: %v -> %v", first.StartedAt, again.StartedAt)
	}

	job.Status = types.JobStatusCompleted
	if err := s.Upsert(ctx, job); err != nil {
		t.Fatal(err)
	}
	done, err := s.Get(ctx, "job-1")
	if err != nil {
		t.Fatal(err)
	}
	if done.CompletedAt == nil {
		t.Fatal("completedAt not set on terminal transition")
	}
	time.Sleep(5 * time.Millisecond)
	job.Status = types.JobStatusError
	job.Error = "late failure"
	if err := s.Upsert(ctx, job); err != nil {
		t.Fatal(err)
	}
	after, err := s.Get(ctx, "job-1")
	if err != nil {
		t.Fatal(err)
	}
	if !after.CompletedAt.Equal(*done.CompletedAt) {
		t.Errorf("completedAt moved: %v -> %v", done.CompletedAt, after.CompletedAt)
	}
}

func TestListPendingOrder(t *testing.T) {
	t.Parallel()
	s := openTest(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i, st := range []types.JobStatus{
		types.JobStatusProcessing,
		types.JobStatusPending,
		types.JobStatusCompleted,
		types.JobStatusPending,
	} {
		job := types.Job{
			ID:        []string{"a", "b", "c", "d"}[i],
			Status:    st,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := s.Upsert(ctx, job); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.ListPending(ctx)
	if err != nil {
		t.Fatal(err)
	}
	ids := make([]string, len(got))
	for i, j := range got {
		ids[i] = j.ID
	}
	want := []string{"a", "b", "d"}
	if len(ids) != len(want) {
		t.Fatalf("ListPending ids = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("ListPending ids = %v, want %v", ids, want)
		}
	}
}

func TestListByStatusNewestFirst(t *testing.T) {
	t.Parallel()
	s := openTest(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i, id := range []string{"old", "mid", "new"} {
		job := types.Job{ID: id, Status: types.JobStatusCompleted, CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := s.Upsert(ctx, job); err != nil {
			t.Fatal(err)
		}
	}
	got, err := s.ListByStatus(ctx, types.JobStatusCompleted, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != "new" || got[1].ID != "mid" {
		t.Fatalf("ListByStatus = %+v, want new,mid", got)
	}
}

func TestDelete(t *testing.T) {
	t.Parallel()
	s := openTest(t)
	ctx := context.Background()

	if err := s.Upsert(ctx, types.Job{ID: "x", Status: types.JobStatusCompleted, CreatedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}
	ok, err := s.Delete(ctx, "x")
	if err != nil || !ok {
		t.Fatalf("Delete existing = %v, %v", ok, err)
	}
	ok, err = s.Delete(ctx, "x")
	if err != nil || ok {
		t.Fatalf("Delete missing = %v, %v", ok, err)
	}
}

func TestPurgeOlderThan(t *testing.T) {
	t.Parallel()
	s := openTest(t)
	ctx := context.Background()

	// old terminal job, completedAt forced into the past
	if err := s.Upsert(ctx, types.Job{ID: "old", Status: types.JobStatusCompleted, CreatedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}
	past := time.Now().Add(-48 * time.Hour).UnixMilli()
	if _, err := s.db.Exec(`UPDATE jobs SET completed_at = ? WHERE id = 'old'`, past); err != nil {
		t.Fatal(err)
	}
	// fresh terminal job and a live pending one
	if err := s.Upsert(ctx, types.Job{ID: "fresh", Status: types.JobStatusError, CreatedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}
	if err := s.Upsert(ctx, types.Job{ID: "live", Status: types.JobStatusPending, CreatedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}

	n, err := s.PurgeOlderThan(ctx, 24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("purged %d jobs, want 1", n)
	}
	if _, err := s.Get(ctx, "old"); !errors.Is(err, ErrNotFound) {
		t.Errorf("old job survived purge")
	}
	if _, err := s.Get(ctx, "fresh"); err != nil {
		t.Errorf("fresh job purged: %v", err)
	}
	if _, err := s.Get(ctx, "live"); err != nil {
		t.Errorf("pending job purged: %v", err)
	}
}

func TestDisabledStoreNoOps(t *testing.T) {
	t.Parallel()
	s := Disabled()
	ctx := context.Background()

	if err := s.Upsert(ctx, types.Job{ID: "x", Status: types.JobStatusPending}); err != nil {
		t.Fatalf("Upsert on disabled store: %v", err)
	}
	if _, err := s.Get(ctx, "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get on disabled store = %v, want ErrNotFound", err)
	}
	if jobs, err := s.ListPending(ctx); err != nil || len(jobs) != 0 {
		t.Fatalf("ListPending on disabled store = %v, %v", jobs, err)
	}
	if ok, err := s.Delete(ctx, "x"); err != nil || ok {
		t.Fatalf("Delete on disabled store = %v, %v", ok, err)
	}
	if n, err := s.PurgeOlderThan(ctx, time.Hour); err != nil || n != 0 {
		t.Fatalf("PurgeOlderThan on disabled store = %v, %v", n, err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close on disabled store: %v", err)
	}
}
