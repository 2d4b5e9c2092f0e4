// Package jobs runs the named background jobs on cron schedules.
package jobs

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

const jobTimeout = 30 * time.Minute

type job struct {
	name string
	spec string
	id   cron.EntryID
}

type Scheduler struct {
	cron *cron.Cron
	loc  *time.Location

	mu   sync.Mutex
	jobs []job
}

func New(loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	logger := cron.PrintfLogger(log.WithField("source", "cron"))
	return &Scheduler{
		loc: loc,
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
	}
}

// Add schedules fn under name. Each run gets its own timeout and is
// logged with its duration.
func (s *Scheduler) Add(name, spec string, fn func(ctx context.Context) error) error {
	id, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()

		started := time.Now()
		entry := log.WithField("source", name)
		entry.Info("job started")
		if err := fn(ctx); err != nil {
			entry.WithError(err).WithField("took", time.Since(started).Round(time.Millisecond).String()).Error("job failed")
			return
		}
		entry.WithField("took", time.Since(started).Round(time.Millisecond).String()).Info("job finished")
	})
	if err != nil {
		return fmt.Errorf("schedule %s (%q): %w", name, spec, err)
	}

	s.mu.Lock()
	s.jobs = append(s.jobs, job{name: name, spec: spec, id: id})
	s.mu.Unlock()
	log.WithFields(log.Fields{"job": name, "spec": spec}).Info("job scheduled")
	return nil
}

func (s *Scheduler) Start() { s.cron.Start() }

// Stop stops scheduling and waits for running jobs up to ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		log.Warn("jobs still running at shutdown")
	}
}

// Status lists the jobs and their next runs, soonest first.
func (s *Scheduler) Status(now time.Time) string {
	s.mu.Lock()
	jobs := append([]job(nil), s.jobs...)
	s.mu.Unlock()

	type line struct {
		job  job
		next time.Time
	}
	lines := make([]line, 0, len(jobs))
	for _, j := range jobs {
		next := s.cron.Entry(j.id).Next
		if next.IsZero() {
			if schedule, err := cron.ParseStandard(j.spec); err == nil {
				next = schedule.Next(now.In(s.loc))
			}
		}
		lines = append(lines, line{job: j, next: next})
	}
	sort.SliceStable(lines, func(i, k int) bool { return lines[i].next.Before(lines[k].next) })

	var b strings.Builder
	fmt.Fprintf(&b, "%d jobs, time zone %s\n", len(lines), s.loc)
	for _, l := range lines {
		fmt.Fprintf(&b, "%-18s %-22s next %s (%s)\n",
			l.job.name, l.job.spec, l.next.In(s.loc).Format("2006-01-02 15:04 MST"),
			humanize.RelTime(l.next, now, "ago", "from now"))
	}
	return b.String()
}
