package report

import (
	"errors"
	"testing"
	"time"

	"github.com/sadopc/tempo/internal/store"
)

var now = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func intPtr(v int) *int { return &v }

func subject() Subject {
	return Subject{TaskID: "t1", TaskName: "Write report", SessionID: "s1", TaskIndex: 0, PlannedSeconds: 1500, ActualSeconds: 1500}
}

func TestBuildCompletedForcesFullPercentage(t *testing.T) {
	r, err := Build(subject(), Form{Status: store.ReportCompleted, CompletionPercentage: intPtr(40)}, now)
	if err != nil {
		t.Fatal(err)
	}
	if r.CompletionPercentage != 100 {
		t.Fatalf("percentage = %d, want 100", r.CompletionPercentage)
	}
	if r.PlannedMinutes != 25 || r.ActualMinutes != 25 {
		t.Fatalf("minutes = %d/%d", r.PlannedMinutes, r.ActualMinutes)
	}
	if r.Difficulty != store.DifficultyAsExpected || r.Quality != DefaultQuality {
		t.Fatalf("defaults not applied: %+v", r)
	}
	if r.ID == "" || !r.ReportedAt.Equal(now) || r.Skipped {
		t.Fatalf("unexpected report %+v", r)
	}
}

func TestBuildRequiresReason(t *testing.T) {
	for _, status := range []store.ReportStatus{store.ReportDelayed, store.ReportPartial} {
		_, err := Build(subject(), Form{Status: status, DelayReason: "   "}, now)
		var ve *ValidationError
		if !errors.As(err, &ve) {
			t.Fatalf("%s: expected ValidationError, got %v", status, err)
		}
		if ve.Field != "delayReason" {
			t.Fatalf("%s: field = %q", status, ve.Field)
		}
	}
}

func TestBuildDefaultsBySeverity(t *testing.T) {
	delayed, err := Build(subject(), Form{Status: store.ReportDelayed, DelayReason: "meetings"}, now)
	if err != nil {
		t.Fatal(err)
	}
	partial, err := Build(subject(), Form{Status: store.ReportPartial, DelayReason: "blocked"}, now)
	if err != nil {
		t.Fatal(err)
	}
	if delayed.CompletionPercentage != DefaultDelayedPercentage {
		t.Fatalf("delayed = %d", delayed.CompletionPercentage)
	}
	if partial.CompletionPercentage != DefaultPartialPercentage {
		t.Fatalf("partial = %d", partial.CompletionPercentage)
	}
	if !(100 > delayed.CompletionPercentage && delayed.CompletionPercentage > partial.CompletionPercentage) {
		t.Fatal("defaults must decrease with severity")
	}
}

func TestBuildSuppliedPercentage(t *testing.T) {
	r, err := Build(subject(), Form{Status: store.ReportPartial, DelayReason: "x", CompletionPercentage: intPtr(35)}, now)
	if err != nil {
		t.Fatal(err)
	}
	if r.CompletionPercentage != 35 {
		t.Fatalf("percentage = %d", r.CompletionPercentage)
	}

	_, err = Build(subject(), Form{Status: store.ReportPartial, DelayReason: "x", CompletionPercentage: intPtr(140)}, now)
	if err == nil {
		t.Fatal("expected out-of-range percentage to be rejected")
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name  string
		form  Form
		field string
	}{
		{"unknown status", Form{Status: "finished"}, "status"},
		{"empty status", Form{}, "status"},
		{"quality high", Form{Status: store.ReportCompleted, Quality: 6}, "qualityRating"},
		{"quality low", Form{Status: store.ReportCompleted, Quality: -1}, "qualityRating"},
		{"difficulty", Form{Status: store.ReportCompleted, Difficulty: "brutal"}, "difficultyLevel"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.form)
			var ve *ValidationError
			if !errors.As(err, &ve) || ve.Field != tt.field {
				t.Fatalf("expected %s error, got %v", tt.field, err)
			}
		})
	}
}

func TestSkip(t *testing.T) {
	sub := subject()
	sub.ActualSeconds = 100
	r := Skip(sub, now)
	if !r.Skipped || r.Status != store.ReportSkipped {
		t.Fatalf("unexpected skip report %+v", r)
	}
	if r.CompletionPercentage != 0 || r.ActualMinutes != 2 {
		t.Fatalf("unexpected numbers %+v", r)
	}
}

func TestResolveStatus(t *testing.T) {
	if got := ResolveStatus(1800, 1800); got != store.ReportCompleted {
		t.Fatalf("on time = %s", got)
	}
	if got := ResolveStatus(1000, 1800); got != store.ReportCompleted {
		t.Fatalf("early = %s", got)
	}
	if got := ResolveStatus(1801, 1800); got != store.ReportDelayed {
		t.Fatalf("late = %s", got)
	}
}

func TestMinutes(t *testing.T) {
	cases := map[int64]int{0: 0, -5: 0, 29: 0, 30: 1, 89: 1, 90: 2, 1800: 30}
	for in, want := range cases {
		if got := Minutes(in); got != want {
			t.Fatalf("Minutes(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestSubjectFor(t *testing.T) {
	a := &store.ActiveTask{ID: "a", Name: "A", PlannedSeconds: 600, SessionID: "s", SessionIndex: 2}
	sub := SubjectFor(a, 300)
	if sub.TaskIndex != 2 || sub.SessionID != "s" || sub.ActualSeconds != 300 || sub.PlannedSeconds != 600 {
		t.Fatalf("unexpected subject %+v", sub)
	}
}

func TestLogAppendOnly(t *testing.T) {
	l := NewLog(nil)
	l.Append(store.CompletionReport{ID: "1", SessionID: "s"})
	l.Append(store.CompletionReport{ID: "2"})

	all := l.All()
	if len(all) != 2 || l.Len() != 2 {
		t.Fatalf("expected 2 reports, got %d", len(all))
	}
	all[0].ID = "mutated"
	if l.All()[0].ID != "1" {
		t.Fatal("All must return a copy")
	}
	if got := l.ForSession("s"); len(got) != 1 || got[0].ID != "1" {
		t.Fatalf("ForSession = %+v", got)
	}
}
