package sqlite_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/minetick/ticket-store/internal/errs"
	"github.com/minetick/ticket-store/internal/model"
	"github.com/minetick/ticket-store/internal/storage/sqlite"
)

func openCached(t *testing.T, path string) *sqlite.CachedStore {
	t.Helper()
	s := sqlite.NewCached(path, zap.NewNop())
	if err := s.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}
	return s
}

func TestCachedReadsComeFromCache(t *testing.T) {
	ctx := context.Background()
	s := openCached(t, filepath.Join(t.TempDir(), "tickets.db"))
	defer s.Close(ctx)

	id, err := s.InsertTicket(ctx, model.NewTicket(alex, "xray suspect", 100, model.Location{Server: "hub"}))
	if err != nil {
		t.Fatal(err)
	}

	// Visible immediately, before the write queue has necessarily drained.
	got, err := s.GetTicket(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != id || len(got.Actions) != 1 {
		t.Fatalf("cache read = %+v", got)
	}
}

func TestCachedCloseDrainsQueueToFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tickets.db")

	s := openCached(t, path)
	for i := 0; i < 20; i++ {
		if _, err := s.InsertTicket(ctx, model.NewTicket(alex, "bulk", int64(i), model.Location{})); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.SetAssignment(ctx, 7, "::helpers"); err != nil {
		t.Fatal(err)
	}
	if err := s.InsertAction(ctx, 7, model.NewAssignAction(model.Console(), "::helpers", 50, model.Location{})); err != nil {
		t.Fatal(err)
	}
	if err := s.MassCloseTickets(ctx, 1, 5, model.Console(), model.Location{}); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(ctx); err != nil {
		t.Fatal(err)
	}

	// Everything queued must be in the file: reopen with the direct backend.
	direct := openStore(t, path)
	defer direct.Close(ctx)

	got, err := direct.GetTicket(ctx, 7)
	if err != nil {
		t.Fatal(err)
	}
	if got.AssignedTo != "::helpers" || len(got.Actions) != 2 {
		t.Fatalf("queued writes lost: %+v", got)
	}
	n, err := direct.CountOpenTickets(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 15 {
		t.Fatalf("open count after drain = %d, want 15", n)
	}
}

func TestCachedInitializeLoadsExistingFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tickets.db")

	s := openCached(t, path)
	id, err := s.InsertTicket(ctx, model.NewTicket(alex, "persisted", 1, model.Location{}))
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Close(ctx); err != nil {
		t.Fatal(err)
	}

	s2 := openCached(t, path)
	defer s2.Close(ctx)
	got, err := s2.GetTicket(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Creator.Equal(alex) {
		t.Fatal("cache warmed from file lost the creator")
	}

	next, err := s2.InsertTicket(ctx, model.NewTicket(alex, "after reopen", 2, model.Location{}))
	if err != nil {
		t.Fatal(err)
	}
	if next != id+1 {
		t.Fatalf("allocator after reopen = %d, want %d", next, id+1)
	}
}

func TestCachedWritesRejectedAfterClose(t *testing.T) {
	ctx := context.Background()
	s := openCached(t, filepath.Join(t.TempDir(), "tickets.db"))
	if _, err := s.InsertTicket(ctx, model.NewTicket(alex, "x", 1, model.Location{})); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(ctx); err != nil {
		t.Fatal(err)
	}

	if _, err := s.InsertTicket(ctx, model.NewTicket(alex, "too late", 2, model.Location{})); !errors.Is(err, errs.ErrStoreClosed) {
		t.Fatalf("insert after close = %v, want ErrStoreClosed", err)
	}
	if err := s.Close(ctx); !errors.Is(err, errs.ErrStoreClosed) {
		t.Fatalf("second close = %v, want ErrStoreClosed", err)
	}
}
