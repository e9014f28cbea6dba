package cmd

import (
	"bufio"
	"bytes"
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/abhisek/retain/internal/answer"
	"github.com/abhisek/retain/internal/content"
	"github.com/abhisek/retain/internal/offline"
	"github.com/abhisek/retain/internal/queue"
	"github.com/abhisek/retain/internal/session"
	"github.com/abhisek/retain/internal/spacedrep"
)

func TestFormatDue(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		due  time.Time
		want string
	}{
		{"never scheduled", time.Time{}, "now"},
		{"past", now.Add(-time.Hour), "due"},
		{"exactly now", now, "due"},
		{"hours", now.Add(90 * time.Minute), "in 1h30m0s"},
		{"days", now.Add(72 * time.Hour), "in 3d"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatDue(tt.due, now); got != tt.want {
				t.Errorf("formatDue = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"a-very-long-item-id", 10, "a-very-..."},
		{"しししししし", 6, "しししししし"},
		{"ししししししし", 6, "ししし..."},
		{"kana-しすせそ", 8, "kana-..."},
	}
	for _, tt := range tests {
		got := truncate(tt.in, tt.n)
		if got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
		if !utf8.ValidString(got) {
			t.Errorf("truncate(%q, %d) split a rune: %q", tt.in, tt.n, got)
		}
	}
}

func TestPrintItems(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	overdue := spacedrep.ScheduleState{ItemID: "osaka", State: spacedrep.StateReview, TotalReviews: 3, IntervalDays: 2, NextDue: now.Add(-48 * time.Hour)}
	later := spacedrep.ScheduleState{ItemID: "kyoto", State: spacedrep.StateLearning, TotalReviews: 1, IntervalDays: 3, NextDue: now.Add(60 * time.Hour)}
	soon := spacedrep.ScheduleState{ItemID: "nara", State: spacedrep.StateLearning, TotalReviews: 1, IntervalDays: 1.0 / 24, NextDue: now.Add(time.Hour)}

	var buf bytes.Buffer
	printItems(&buf, []spacedrep.ScheduleState{spacedrep.NewState("u1", "tokyo"), overdue, later, soon}, now)

	rows := map[string][]string{
		"tokyo": {"new", "now", "-"},
		"osaka": {"overdue", "now", "2.0d"},
		"kyoto": {"scheduled", "3d", "3.0d"},
		"nara":  {"scheduled", "1d", "1h"},
	}
	lines := strings.Split(buf.String(), "\n")
	for id, cells := range rows {
		var line string
		for _, l := range lines {
			if strings.HasPrefix(l, id+" ") {
				line = l
			}
		}
		if line == "" {
			t.Errorf("no row for %s:\n%s", id, buf.String())
			continue
		}
		for _, c := range cells {
			if !strings.Contains(line, c) {
				t.Errorf("row %q missing %q", line, c)
			}
		}
	}

	buf.Reset()
	printItems(&buf, nil, now)
	if !strings.Contains(buf.String(), "No items") {
		t.Errorf("empty list printed %q", buf.String())
	}
}

func TestStartOfDay(t *testing.T) {
	got := startOfDay(time.Date(2026, 3, 2, 17, 45, 3, 9, time.UTC))
	want := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("startOfDay = %v, want %v", got, want)
	}
}

func batchCmd(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "test"}
	addBatchFlags(cmd)
	if err := cmd.Flags().Parse(args); err != nil {
		t.Fatalf("parse: %v", err)
	}
	return cmd
}

func TestBatchRequestFromFlags(t *testing.T) {
	req, err := batchRequestFromFlags(batchCmd(t,
		"--user", "u1", "--limit", "5", "--seed", "42",
		"--pin", "paris=1", "--pin", "tokyo=0", "--pin", "kyoto=1"))
	if err != nil {
		t.Fatalf("batchRequestFromFlags: %v", err)
	}
	if req.User != "u1" || req.Limit != 5 || req.Seed != 42 || req.Consumed != -1 {
		t.Errorf("req = %+v", req)
	}
	want := []queue.Pin{{ItemID: "tokyo", Position: 0}, {ItemID: "kyoto", Position: 1}, {ItemID: "paris", Position: 1}}
	if len(req.Pins) != len(want) {
		t.Fatalf("pins = %+v, want %+v", req.Pins, want)
	}
	for i := range want {
		if req.Pins[i] != want[i] {
			t.Errorf("pin %d = %+v, want %+v", i, req.Pins[i], want[i])
		}
	}
}

func TestBatchRequestFromFlags_Rejects(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"missing user", nil},
		{"negative pin", []string{"--user", "u1", "--pin", "tokyo=-1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := batchRequestFromFlags(batchCmd(t, tt.args...)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestPrintReport(t *testing.T) {
	var buf bytes.Buffer
	printReport(&buf, offline.Report{Applied: 3, Retried: 1, BreakerOpen: true})
	out := buf.String()
	if !strings.Contains(out, "applied 3, retried 1") {
		t.Errorf("report = %q", out)
	}
	if !strings.Contains(out, "breaker open") {
		t.Errorf("report missing breaker line: %q", out)
	}

	buf.Reset()
	printReport(&buf, offline.Report{Skipped: true})
	if !strings.Contains(buf.String(), "offline") {
		t.Errorf("report = %q", buf.String())
	}
}

// memSink applies committed schedules to an in-memory map.
type memSink struct {
	states  map[string]spacedrep.ScheduleState
	batches int
}

func (m *memSink) GetScheduleState(_ context.Context, userID, itemID string) (spacedrep.ScheduleState, bool, error) {
	st, ok := m.states[spacedrep.Key(userID, itemID)]
	return st, ok, nil
}

func (m *memSink) Commit(_ context.Context, b offline.Batch) error {
	for _, u := range b.Schedules {
		m.states[u.State.Key()] = u.State
	}
	m.batches++
	return nil
}

func newLoop(t *testing.T, input string) (*reviewLoop, *memSink, *bytes.Buffer) {
	t.Helper()
	v, err := answer.New(answer.Config{})
	if err != nil {
		t.Fatalf("answer.New: %v", err)
	}
	sink := &memSink{states: make(map[string]spacedrep.ScheduleState)}
	cfg := session.DefaultConfig()
	cfg.MaxAttempts = 2
	m, err := session.NewManager(answer.NewRegistry(v), spacedrep.Default(), sink, sink, cfg)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	items := []content.Item{
		{ID: "tokyo", Prompt: "Capital of Japan?", Answer: "Tokyo", Difficulty: 0.2},
		{ID: "paris", Prompt: "Capital of France?", Answer: "Paris", Difficulty: 0.5},
	}
	s, err := m.Start(context.Background(), "u1", items, content.ModeRecall)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	var out bytes.Buffer
	return &reviewLoop{
		sessions: m,
		id:       s.ID,
		total:    len(items),
		in:       bufio.NewScanner(strings.NewReader(input)),
		out:      &out,
	}, sink, &out
}

func TestReviewLoop_CompletesSession(t *testing.T) {
	loop, sink, out := newLoop(t, ":hint\nKyoto\nTokyo\n:pause\nParis\n:resume\nParis\n")
	if err := loop.run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	text := out.String()
	for _, want := range []string{
		"Capital of Japan?",
		"hint: T",
		"1 attempts left",
		"paused",
		"Capital of France?",
		"Session summary",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q:\n%s", want, text)
		}
	}

	s, err := loop.sessions.Get(loop.id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if s.Status != session.StatusCompleted {
		t.Errorf("status = %s, want completed", s.Status)
	}
	if s.Stats.Correct != 2 {
		t.Errorf("correct = %d, want 2", s.Stats.Correct)
	}
	if len(sink.states) != 2 {
		t.Errorf("scheduled %d items, want 2", len(sink.states))
	}
}

func TestReviewLoop_EndEarly(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		status session.Status
	}{
		{"quit", "Tokyo\n:quit\n", session.StatusAbandoned},
		{"done", "Tokyo\n:done\n", session.StatusCompleted},
		{"input closed", "Tokyo\n", session.StatusAbandoned},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loop, _, _ := newLoop(t, tt.input)
			if err := loop.run(context.Background()); err != nil {
				t.Fatalf("run: %v", err)
			}
			s, err := loop.sessions.Get(loop.id)
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if s.Status != tt.status {
				t.Errorf("status = %s, want %s", s.Status, tt.status)
			}
			if s.Stats.Answered != 1 {
				t.Errorf("answered = %d, want 1", s.Stats.Answered)
			}
		})
	}
}
