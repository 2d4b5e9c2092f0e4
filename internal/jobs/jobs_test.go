package jobs

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"kpi-backend/internal/kpi"
	"kpi-backend/internal/slackbot"
)

type fakeSnapshots struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeSnapshots) SaveSparse(context.Context) (kpi.SnapshotResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return kpi.SnapshotResult{}, nil
}

type fakeReports struct {
	mu       sync.Mutex
	channels []string
}

func (f *fakeReports) Send(_ context.Context, channel string) (slackbot.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channels = append(f.channels, channel)
	return slackbot.Report{Title: "Viikkopalaveri"}, nil
}

var defaultSpecs = Specs{
	DatabaseSave:  "0 2 * * *",
	WeeklySlack:   "0 5 * * MON",
	DebugSlack:    "10 5/3 * * MON-FRI",
	WeeklyChannel: "CWEEKLY",
	DebugChannel:  "CDEBUG",
}

func TestRegisterDefaults(t *testing.T) {
	helsinki, err := time.LoadLocation("Europe/Helsinki")
	if err != nil {
		t.Fatal(err)
	}
	s := New(helsinki)
	if err := RegisterDefaults(s, defaultSpecs, &fakeSnapshots{}, &fakeReports{}, nil); err != nil {
		t.Fatal(err)
	}

	// Sunday evening in Helsinki.
	now := time.Date(2024, time.March, 17, 20, 0, 0, 0, helsinki)
	status := s.Status(now)
	lines := strings.Split(strings.TrimSpace(status), "\n")
	if len(lines) != 4 {
		t.Fatalf("status:\n%s", status)
	}
	if !strings.HasPrefix(lines[0], "3 jobs, time zone Europe/Helsinki") {
		t.Errorf("header = %q", lines[0])
	}
	tests := []struct {
		line      int
		name      string
		nextLocal string
	}{
		{1, DatabaseSave, "2024-03-18 02:00"},
		{2, WeeklySlackMsg, "2024-03-18 05:00"},
		{3, DebugSlackMsg, "2024-03-18 05:10"},
	}
	for _, tt := range tests {
		l := lines[tt.line]
		if !strings.HasPrefix(l, tt.name) || !strings.Contains(l, tt.nextLocal) || !strings.Contains(l, "from now") {
			t.Errorf("line %d = %q, want %s at %s", tt.line, l, tt.name, tt.nextLocal)
		}
	}
}

func TestRegisterDefaultsWithoutSlack(t *testing.T) {
	s := New(time.UTC)
	if err := RegisterDefaults(s, defaultSpecs, &fakeSnapshots{}, nil, nil); err != nil {
		t.Fatal(err)
	}
	if status := s.Status(time.Now()); !strings.HasPrefix(status, "1 jobs") {
		t.Fatalf("status = %q", status)
	}
}

func TestAddRejectsBadSpec(t *testing.T) {
	s := New(time.UTC)
	if err := s.Add("broken", "every tuesday", func(context.Context) error { return nil }); err == nil {
		t.Fatal("expected a parse error")
	}
}

func TestJobsRun(t *testing.T) {
	s := New(time.UTC)
	snapshots := &fakeSnapshots{}
	reports := &fakeReports{}
	var mailed atomic.Int32
	mail := func(slackbot.Report) error {
		mailed.Add(1)
		return errors.New("smtp down")
	}
	specs := defaultSpecs
	specs.DatabaseSave, specs.WeeklySlack, specs.DebugSlack = "@every 1s", "@every 1s", "@every 1s"
	if err := RegisterDefaults(s, specs, snapshots, reports, mail); err != nil {
		t.Fatal(err)
	}

	s.Start()
	time.Sleep(1500 * time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.Stop(ctx)

	if snapshots.calls == 0 || len(reports.channels) < 2 || mailed.Load() == 0 {
		t.Fatalf("snapshots = %d reports = %v mailed = %d", snapshots.calls, reports.channels, mailed.Load())
	}
}
