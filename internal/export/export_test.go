package export

import (
	"bytes"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/sadopc/tempo/internal/store"
)

var now = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func sampleState() store.State {
	started := now.Add(-40 * time.Minute)
	done := now.Add(-10 * time.Minute)
	session := store.Session{
		ID:   "s1",
		Name: "Morning Focus",
		Tasks: []store.TaskSpec{
			{Name: "Write report", Priority: store.PriorityHigh, PlannedMinutes: 25},
			{Name: "Review PR", Priority: store.PriorityMedium, PlannedMinutes: 15},
		},
		Status:              store.SessionInProgress,
		CurrentTaskIndex:    1,
		CompletedTaskCount:  1,
		TotalPlannedSeconds: 2400,
		ActualTimeSeconds:   1500,
		Executions: []store.Execution{
			{StartedAt: started, EndedAt: done, DurationSeconds: 1500, Completed: true, TaskIndex: 0},
		},
		CreatedAt: started,
		StartedAt: &started,
		UpdatedAt: &done,
	}
	return store.State{
		Tasks: []store.Task{{
			ID:             "t1",
			Name:           "Inbox zero",
			Priority:       store.PriorityLow,
			PlannedSeconds: 900,
			Status:         store.TaskPending,
			CreatedAt:      started,
		}},
		Sessions:                []store.Session{session},
		ActiveTask:              store.ActiveFromSpec(&session, 1),
		ActiveSession:           session.Clone(),
		CurrentSessionTaskIndex: 1,
		Timer:                   store.TimerState{Running: true, RemainingSeconds: 600, TotalSeconds: 900},
	}
}

func sampleReports() []store.CompletionReport {
	return []store.CompletionReport{
		{
			ID: "r1", TaskID: "s1-task-0", TaskName: "Write report", SessionID: "s1", TaskIndex: 0,
			Status: store.ReportCompleted, CompletionPercentage: 100, PlannedMinutes: 25, ActualMinutes: 25,
			Difficulty: store.DifficultyAsExpected, Quality: 4, ReportedAt: now,
		},
		{
			ID: "r2", TaskID: "t1", TaskName: `Inbox "zero"`, TaskIndex: -1,
			Status: store.ReportPartial, CompletionPercentage: 60, PlannedMinutes: 15, ActualMinutes: 20,
			DelayReason: "too many, emails", Difficulty: store.DifficultyHarder, Quality: 2, ReportedAt: now,
		},
	}
}

// ============================================================
// JSON
// ============================================================

func TestJSONRoundTrip(t *testing.T) {
	st := sampleState()
	var buf bytes.Buffer
	if err := WriteJSON(&buf, st, now); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	doc, err := ReadJSON(&buf)
	if err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if doc.Version != DocumentVersion || !doc.ExportedAt.Equal(now) {
		t.Fatalf("header = %q %v", doc.Version, doc.ExportedAt)
	}

	got := doc.State()
	if !reflect.DeepEqual(got.Tasks, st.Tasks) {
		t.Fatalf("tasks differ:\n%+v\n%+v", got.Tasks, st.Tasks)
	}
	if !reflect.DeepEqual(got.Sessions, st.Sessions) {
		t.Fatalf("sessions differ:\n%+v\n%+v", got.Sessions, st.Sessions)
	}
	if !reflect.DeepEqual(got.ActiveTask, st.ActiveTask) {
		t.Fatalf("active task differs: %+v", got.ActiveTask)
	}
	if !reflect.DeepEqual(got.ActiveSession, st.ActiveSession) {
		t.Fatal("active session differs")
	}
	if got.CurrentSessionTaskIndex != 1 {
		t.Fatalf("index = %d", got.CurrentSessionTaskIndex)
	}
	if got.Timer.Running || got.Timer.RemainingSeconds != 600 {
		t.Fatalf("timer = %+v", got.Timer)
	}
}

func TestJSONFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tempo.json")
	if err := ToJSON(sampleState(), path); err != nil {
		t.Fatalf("ToJSON: %v", err)
	}
	doc, err := FromJSON(path)
	if err != nil {
		t.Fatalf("FromJSON: %v", err)
	}
	if len(doc.Tasks) != 1 || len(doc.Sessions) != 1 {
		t.Fatalf("unexpected document %+v", doc)
	}
}

func TestJSONEmptyState(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteJSON(&buf, store.State{}, now); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"tasks": []`) || !strings.Contains(buf.String(), `"activeTask": null`) {
		t.Fatalf("unexpected empty export:\n%s", buf.String())
	}
	if strings.Contains(buf.String(), `"timer"`) {
		t.Fatal("timer should be omitted without an active task")
	}
}

func TestReadJSONTolerant(t *testing.T) {
	doc, err := ReadJSON(strings.NewReader(`{"tasks":[{"id":"a","name":"A","status":"pending"}]}`))
	if err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	st := doc.State()
	if len(st.Tasks) != 1 || st.ActiveTask != nil || st.Sessions != nil {
		t.Fatalf("unexpected state %+v", st)
	}
}

func TestReadJSONDropsOrphanActiveSession(t *testing.T) {
	doc, err := ReadJSON(strings.NewReader(`{"version":"1.2","activeSession":{"id":"s"}}`))
	if err != nil {
		t.Fatal(err)
	}
	if doc.ActiveSession != nil {
		t.Fatal("active session without active task should be dropped")
	}
}

func TestReadJSONRejects(t *testing.T) {
	if _, err := ReadJSON(strings.NewReader(`{"version":"2.0"}`)); !errors.Is(err, ErrUnsupportedVersion) {
		t.Fatalf("expected version error, got %v", err)
	}
	if _, err := ReadJSON(strings.NewReader(`{not json`)); err == nil {
		t.Fatal("expected decode error")
	}
	if _, err := FromJSON("/nonexistent/dir/file.json"); err == nil {
		t.Fatal("expected error for bad path")
	}
}

// ============================================================
// CSV
// ============================================================

func TestReportsCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports.csv")
	if err := ReportsToCSV(sampleReports(), path); err != nil {
		t.Fatalf("ReportsToCSV: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("CSV should be valid even with special chars: %v", err)
	}

	if len(records) != 3 {
		t.Fatalf("expected 3 rows (1 header + 2 data), got %d", len(records))
	}
	if records[0][4] != "Status" || records[0][7] != "Actual (min)" {
		t.Fatalf("unexpected header %v", records[0])
	}
	first := records[1]
	if first[1] != "Write report" || first[3] != "0" || first[4] != "completed" || first[5] != "100" {
		t.Fatalf("unexpected first row %v", first)
	}
	second := records[2]
	if second[1] != `Inbox "zero"` || second[3] != "" || second[10] != "too many, emails" {
		t.Fatalf("unexpected second row %v", second)
	}
}

func TestReportsCSVEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteReportsCSV(&buf, nil); err != nil {
		t.Fatal(err)
	}
	records, _ := csv.NewReader(&buf).ReadAll()
	if len(records) != 1 {
		t.Fatalf("expected 1 row (header only), got %d", len(records))
	}
}

func TestSessionsCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSessionsCSV(&buf, sampleState().Sessions); err != nil {
		t.Fatal(err)
	}
	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	row := records[1]
	if row[5] != "00:40:00" || row[6] != "00:25:00" {
		t.Fatalf("durations = %q/%q", row[5], row[6])
	}
	if row[8] != "" {
		t.Fatalf("unfinished session should have empty finish, got %q", row[8])
	}
}

func TestCSVBadPath(t *testing.T) {
	if err := ReportsToCSV(nil, "/nonexistent/dir/file.csv"); err == nil {
		t.Fatal("expected error for bad path")
	}
}

func TestFormatDuration(t *testing.T) {
	cases := map[int64]string{0: "00:00:00", 59: "00:00:59", 3600: "01:00:00", 3661: "01:01:01", 90000: "25:00:00"}
	for in, want := range cases {
		if got := formatDuration(in); got != want {
			t.Fatalf("formatDuration(%d) = %q, want %q", in, got, want)
		}
	}
}

// ============================================================
// Plans
// ============================================================

func TestParsePlan(t *testing.T) {
	src := `
name: Morning Focus
tasks:
  - name: Write report
    priority: high
    minutes: 25
  - name: Review PR
    minutes: 15
`
	p, err := ParsePlan(strings.NewReader(src))
	if err != nil {
		t.Fatalf("ParsePlan: %v", err)
	}
	if p.Name != "Morning Focus" || len(p.Tasks) != 2 {
		t.Fatalf("unexpected plan %+v", p)
	}
	specs := p.Specs()
	if specs[0].Priority != store.PriorityHigh || specs[0].PlannedMinutes != 25 {
		t.Fatalf("unexpected spec %+v", specs[0])
	}
	if specs[1].Priority != "" || specs[1].PlannedSeconds() != 900 {
		t.Fatalf("unexpected spec %+v", specs[1])
	}
}

func TestParsePlanRejects(t *testing.T) {
	if _, err := ParsePlan(strings.NewReader("name: x\ntasks:\n  - name: a\n    mins: 5\n")); err == nil {
		t.Fatal("expected unknown field to be rejected")
	}
	if _, err := ParsePlan(strings.NewReader("")); err == nil {
		t.Fatal("expected empty document to be rejected")
	}
	if _, err := LoadPlan("/nonexistent/plan.yaml"); err == nil {
		t.Fatal("expected error for bad path")
	}
}
