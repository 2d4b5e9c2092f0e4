package jobs

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"

	"kpi-backend/internal/kpi"
	"kpi-backend/internal/slackbot"
)

// Job names.
const (
	DatabaseSave   = "database-save"
	WeeklySlackMsg = "weekly-slack-msg"
	DebugSlackMsg  = "debug-slack-msg"
)

type Snapshotter interface {
	SaveSparse(ctx context.Context) (kpi.SnapshotResult, error)
}

type ReportSender interface {
	Send(ctx context.Context, channel string) (slackbot.Report, error)
}

// Mailer sends a report by mail. It may be nil.
type Mailer func(report slackbot.Report) error

type Specs struct {
	DatabaseSave  string
	WeeklySlack   string
	DebugSlack    string
	WeeklyChannel string
	DebugChannel  string
}

// RegisterDefaults schedules the nightly snapshot and the weekly reports.
// Report jobs without a channel or a sender are left out.
func RegisterDefaults(s *Scheduler, specs Specs, snapshots Snapshotter, reports ReportSender, mail Mailer) error {
	err := s.Add(DatabaseSave, specs.DatabaseSave, func(ctx context.Context) error {
		_, err := snapshots.SaveSparse(ctx)
		return err
	})
	if err != nil {
		return err
	}

	if reports == nil {
		log.Warn("slack not configured, weekly reports disabled")
		return nil
	}

	if specs.WeeklyChannel != "" {
		err := s.Add(WeeklySlackMsg, specs.WeeklySlack, func(ctx context.Context) error {
			report, err := reports.Send(ctx, specs.WeeklyChannel)
			if mail == nil {
				return err
			}
			return errors.Join(err, mail(report))
		})
		if err != nil {
			return err
		}
	}
	if specs.DebugChannel != "" {
		err := s.Add(DebugSlackMsg, specs.DebugSlack, func(ctx context.Context) error {
			_, err := reports.Send(ctx, specs.DebugChannel)
			return err
		})
		if err != nil {
			return err
		}
	}
	return nil
}
