package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"whosout/internal/config"
	"whosout/internal/domain"
	slackbot "whosout/internal/integrations/slack"
	"whosout/internal/integrations/timesheets"
	"whosout/internal/pipeline"
	"whosout/internal/readiness"
	"whosout/internal/report"
	"whosout/internal/roster"
	"whosout/internal/storage/sqlite"
)

const (
	KindDaily  = "daily"
	KindWeekly = "weekly"
)

var ErrUnknownKind = errors.New("unknown run kind")

// Sender delivers one message. *slackbot.Client implements it.
type Sender interface {
	Send(ctx context.Context, req slackbot.DeliveryRequest) error
}

// PageFactory opens a fresh page for one run. Each run gets its own session.
type PageFactory func(runID string) pipeline.Page

type artifactDumper interface {
	DumpArtifact(stage string) (string, error)
}

// Request describes one run. Zero dates mean today / this week.
type Request struct {
	ID     string
	Kind   string
	Date   domain.Date
	DryRun bool
}

type Outcome struct {
	RunID   string
	Kind    string
	Target  domain.Date
	Message string
	Entries []domain.AggregatedEntry
	// Delivered is false for dry runs.
	Delivered bool
}

type Service struct {
	cfg    config.Config
	db     *sql.DB
	sender Sender
	pages  PageFactory
	log    logrus.FieldLogger
	out    io.Writer
	now    func() time.Time
}

func NewService(cfg config.Config, db *sql.DB, sender Sender, pages PageFactory, log logrus.FieldLogger, out io.Writer) *Service {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if out == nil {
		out = io.Discard
	}
	return &Service{cfg: cfg, db: db, sender: sender, pages: pages, log: log, out: out, now: time.Now}
}

// PagesFor picks the live timesheets session or the offline snapshot.
func PagesFor(cfg config.Config, log logrus.FieldLogger) PageFactory {
	if !cfg.LiveTimesheets() {
		return func(string) pipeline.Page {
			return timesheets.NewSnapshot(cfg.SnapshotPath, cfg.TimesheetsSelectors)
		}
	}
	return func(runID string) pipeline.Page {
		return timesheets.NewClient(timesheets.ClientConfig{
			BaseURL:      cfg.TimesheetsBaseURL,
			Username:     cfg.TimesheetsUsername,
			Password:     cfg.TimesheetsPassword,
			Paths:        cfg.TimesheetsPaths,
			Selectors:    cfg.TimesheetsSelectors,
			ArtifactsDir: cfg.ArtifactsDir,
			RunID:        runID,
		}, log.WithField("run_id", runID))
	}
}

func PipelineOptions(cfg config.Config) pipeline.Options {
	return pipeline.Options{
		Zone:              cfg.Location,
		Roster:            roster.New(cfg.TeamMembers),
		FullDayThreshold:  cfg.FullDayHours,
		DefaultBlockHours: cfg.DefaultBlockHours,
		Policy:            cfg.Policy(),
		Readiness: readiness.Options{
			Timeout:      cfg.ReadinessTimeout(),
			PollInterval: cfg.ReadinessPollInterval(),
		},
		Retry: pipeline.RetryPolicy{
			Attempts:    cfg.RetryAttempts,
			Backoff:     cfg.RetryBackoff(),
			Incremental: cfg.RetryIncremental,
		},
		RunTimeout: cfg.RunTimeout(),
		WeeklyDays: cfg.WeeklyDays,
	}
}

func (s *Service) reportOptions() report.Options {
	return report.Options{Mention: s.cfg.Mention, FullDayThreshold: s.cfg.FullDayHours}
}

// Run executes one daily or weekly run end to end and journals it.
func (s *Service) Run(ctx context.Context, req Request) (Outcome, error) {
	if req.Kind != KindDaily && req.Kind != KindWeekly {
		return Outcome{}, fmt.Errorf("%w: %q", ErrUnknownKind, req.Kind)
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	dryRun := req.DryRun || s.cfg.DryRun
	log := s.log.WithFields(logrus.Fields{"run_id": req.ID, "kind": req.Kind})
	started := s.now()
	log.WithField("dry_run", dryRun).Info("run started")

	s.journalStart(log, req, started)

	out := Outcome{RunID: req.ID, Kind: req.Kind}
	page := s.pages(req.ID)
	runner := pipeline.NewRunner(PipelineOptions(s.cfg), log)

	var (
		channel string
		err     error
	)
	switch req.Kind {
	case KindDaily:
		var res pipeline.DailyResult
		res, err = runner.Daily(ctx, page, req.Date)
		if err == nil {
			out.Target = res.Date
			out.Entries = res.Entries
			out.Message = report.DailyMessage(res.Entries, s.reportOptions())
		}
		channel = s.cfg.SlackChannelID
	case KindWeekly:
		var res pipeline.WeeklyResult
		res, err = runner.Weekly(ctx, page, req.Date)
		if err == nil {
			out.Target = res.WeekStart
			out.Entries = res.Entries()
			days := make([]report.WeekDay, 0, len(res.Days))
			for _, d := range res.Days {
				days = append(days, report.WeekDay{Date: d.Date, Entries: d.Entries})
			}
			out.Message = report.WeeklyMessage(days, s.reportOptions())
		}
		channel = s.cfg.LeadsChannel()
	}

	if err != nil {
		if d, ok := page.(artifactDumper); ok {
			if path, dumpErr := d.DumpArtifact(stageOf(err)); dumpErr != nil {
				log.WithError(dumpErr).Warn("could not write artifact")
			} else if path != "" {
				log.WithField("artifact", path).Info("wrote page artifact")
			}
		}
		log.WithError(err).Error("run failed")
		s.notifyFailure(ctx, log, req.Kind, dryRun, err)
		s.journalFinish(log, req.ID, domain.Date{}, sqlite.StatusFailed, err, "", nil)
		return out, err
	}

	log.WithFields(logrus.Fields{"target": out.Target.String(), "entries": len(out.Entries)}).Info("report built")

	if dryRun {
		fmt.Fprintf(s.out, "[dry-run] channel=%s\n%s\n", channel, out.Message)
		s.journalFinish(log, req.ID, out.Target, sqlite.StatusDryRun, nil, out.Message, out.Entries)
		return out, nil
	}

	if err := s.sender.Send(ctx, slackbot.DeliveryRequest{ChannelID: channel, Text: out.Message}); err != nil {
		err = fmt.Errorf("deliver report: %w", err)
		log.WithError(err).Error("delivery failed")
		s.notifyFailure(ctx, log, req.Kind, dryRun, err)
		s.journalFinish(log, req.ID, out.Target, sqlite.StatusFailed, err, out.Message, out.Entries)
		return out, err
	}
	out.Delivered = true
	s.journalFinish(log, req.ID, out.Target, sqlite.StatusDelivered, nil, out.Message, out.Entries)
	log.WithField("elapsed", s.now().Sub(started).Round(time.Millisecond)).Info("run delivered")
	return out, nil
}

func (s *Service) notifyFailure(ctx context.Context, log logrus.FieldLogger, kind string, dryRun bool, runErr error) {
	if dryRun || s.cfg.SlackFailureChannelID == "" || s.sender == nil {
		return
	}
	// The run context may already be spent.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	msg := report.FailureMessage(kind, runErr)
	if err := s.sender.Send(ctx, slackbot.DeliveryRequest{ChannelID: s.cfg.SlackFailureChannelID, Text: msg}); err != nil {
		log.WithError(err).Error("failure notice not delivered")
	}
}

func (s *Service) journalStart(log logrus.FieldLogger, req Request, started time.Time) {
	if s.db == nil {
		return
	}
	target := ""
	if !req.Date.IsZero() {
		target = req.Date.String()
	}
	if err := sqlite.InsertRun(s.db, sqlite.Run{ID: req.ID, Kind: req.Kind, Target: target, StartedAt: started}); err != nil {
		log.WithError(err).Warn("journal insert failed")
	}
}

func (s *Service) journalFinish(log logrus.FieldLogger, id string, target domain.Date, status string, runErr error, message string, entries []domain.AggregatedEntry) {
	if s.db == nil {
		return
	}
	run := sqlite.Run{ID: id, Status: status, Message: message, FinishedAt: s.now()}
	if !target.IsZero() {
		run.Target = target.String()
	}
	if runErr != nil {
		run.Error = runErr.Error()
	}
	if err := sqlite.FinishRun(s.db, run, entries); err != nil {
		log.WithError(err).Warn("journal update failed")
	}
}

// stageOf names the artifact after the pipeline stage that failed.
func stageOf(err error) string {
	var timeout *readiness.TimeoutError
	switch {
	case errors.As(err, &timeout):
		return "readiness"
	case errors.Is(err, timesheets.ErrLoginFailed):
		return "login"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "extract"
	}
}
