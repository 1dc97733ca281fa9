package server

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/sadopc/tempo/internal/engine"
	"github.com/sadopc/tempo/internal/logging"
	"github.com/sadopc/tempo/internal/remote"
	"github.com/sadopc/tempo/internal/report"
	"github.com/sadopc/tempo/internal/store"
)

// TestEngineAgainstServer drives a controller through a full session with
// the real client and server in between.
func TestEngineAgainstServer(t *testing.T) {
	srv, st := newTestServer(t, "secret")
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	local, err := store.NewMemory()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { local.Close() })

	c := engine.New(local, remote.New(ts.URL, "secret"),
		engine.WithLogger(logging.Discard()),
		engine.WithAsync(func(fn func()) { fn() }))
	t.Cleanup(func() { c.Close() })

	s, err := c.CreateSession("Morning Focus", []store.TaskSpec{
		{Name: "Write report", PlannedMinutes: 25},
		{Name: "Review PR", PlannedMinutes: 15},
	})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if out, err := c.CompleteCurrentTask(report.Form{Status: store.ReportCompleted}); err != nil || !out.Applied {
			t.Fatalf("complete %d: %+v %v", i, out, err)
		}
	}

	canon, err := st.GetSession(s.ID)
	if err != nil {
		t.Fatalf("session not on server: %v", err)
	}
	if canon.Status != store.SessionCompleted || canon.CompletedTaskCount != 2 {
		t.Fatalf("unexpected canonical session %+v", canon)
	}
	if status, _ := c.SyncStatus(s.ID); status.Pending {
		t.Fatalf("expected synced session, got %+v", status)
	}

	if err := c.Sync(context.Background()); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	reports, err := local.ListReports(store.ReportFilter{SessionID: s.ID})
	if err != nil {
		t.Fatal(err)
	}
	if len(reports) != 2 {
		t.Fatalf("persisted reports = %d, want 2", len(reports))
	}
}

func TestEngineSeesRejectedToken(t *testing.T) {
	srv, _ := newTestServer(t, "secret")
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	var rejected int
	c := engine.New(nil, remote.New(ts.URL, "wrong"),
		engine.WithLogger(logging.Discard()),
		engine.WithAsync(func(fn func()) { fn() }),
		engine.WithAuthObserver(engine.AuthObserverFunc(func(error) { rejected++ })))
	t.Cleanup(func() { c.Close() })

	if _, err := c.CreateSession("Focus", []store.TaskSpec{{Name: "a", PlannedMinutes: 5}}); err != nil {
		t.Fatal(err)
	}
	if rejected != 1 {
		t.Fatalf("rejections = %d, want 1", rejected)
	}
}
