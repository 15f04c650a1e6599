package app

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/slack-go/slack"

	"whosout/internal/config"
	"whosout/internal/domain"
	"whosout/internal/httpapi"
	"whosout/internal/httpx"
	slackbot "whosout/internal/integrations/slack"
	"whosout/internal/logging"
	"whosout/internal/schedule"
	"whosout/internal/storage/sqlite"
)

const usage = `usage:
  whosout daily  [-date YYYY-MM-DD] [-dry-run]
  whosout weekly [-week-start YYYY-MM-DD] [-dry-run]
  whosout serve`

func Main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, usage)
		return 2
	}
	cmd, rest := args[0], args[1:]

	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(stderr)
	var dateFlag string
	dryRun := fs.Bool("dry-run", false, "print the message instead of posting it")
	switch cmd {
	case KindDaily:
		fs.StringVar(&dateFlag, "date", "", "business date to report (default today)")
	case KindWeekly:
		fs.StringVar(&dateFlag, "week-start", "", "first day of the week to report (default this Monday)")
	case "serve":
	default:
		fmt.Fprintln(stderr, usage)
		return 2
	}
	if err := fs.Parse(rest); err != nil {
		return 2
	}

	if *dryRun {
		// Slack settings are optional for dry runs; config validation reads this.
		os.Setenv("DRY_RUN", "true")
	}
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return 1
	}
	log, closer, err := logging.New(logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Output: cfg.LogOutput,
		Path:   cfg.LogPath,
		Stdout: stdout,
	})
	if err != nil {
		fmt.Fprintf(stderr, "logging: %v\n", err)
		return 1
	}
	defer closer.Close()

	appliedHTTPTimeout := httpx.ConfigureExternalHTTPClient(cfg.ExternalHTTPTimeoutSeconds)
	log.WithFields(logrus.Fields{
		"team_members": len(cfg.TeamMembers),
		"timezone":     cfg.Timezone,
		"policy":       cfg.AggregationPolicy,
		"full_day":     cfg.FullDayHours,
		"live":         cfg.LiveTimesheets(),
		"http_timeout": appliedHTTPTimeout,
	}).Info("config loaded")

	db, err := sqlite.InitDB(cfg.DBPath)
	if err != nil {
		log.WithError(err).Error("failed to init run journal")
		return 1
	}
	defer db.Close()

	sender := slackbot.New(cfg.SlackBotToken, log, slack.OptionHTTPClient(httpx.ExternalHTTPClient()))
	svc := NewService(cfg, db, sender, PagesFor(cfg, log), log, stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case KindDaily, KindWeekly:
		date := cfg.Date
		if cmd == KindWeekly {
			date = cfg.Week
		}
		if dateFlag != "" {
			d, err := domain.ParseDate(dateFlag)
			if err != nil {
				fmt.Fprintf(stderr, "invalid date %q: %v\n", dateFlag, err)
				return 2
			}
			date = d
		}
		if _, err := svc.Run(ctx, Request{Kind: cmd, Date: date, DryRun: *dryRun}); err != nil {
			return 1
		}
		return 0
	default:
		if err := serve(ctx, cfg, db, svc, log); err != nil {
			log.WithError(err).Error("serve stopped")
			return 1
		}
		return 0
	}
}

func serve(ctx context.Context, cfg config.Config, db *sql.DB, svc *Service, log *logrus.Logger) error {
	sched := schedule.New(cfg.Location, log)
	if err := sched.Add(KindDaily, cfg.DailySchedule, func(ctx context.Context) {
		_, _ = svc.Run(ctx, Request{Kind: KindDaily})
	}); err != nil {
		return err
	}
	if err := sched.Add(KindWeekly, cfg.WeeklySchedule, func(ctx context.Context) {
		_, _ = svc.Run(ctx, Request{Kind: KindWeekly})
	}); err != nil {
		return err
	}
	sched.Start(ctx)

	router := mux.NewRouter()
	httpapi.NewHandler(db, svc.Trigger(ctx), log).RegisterRoutes(router)
	err := httpapi.Serve(ctx, cfg.HTTPAddr, router, log)
	sched.Wait()
	return err
}

// Trigger adapts Run for the HTTP API: the run continues in the background
// under ctx after the request returns.
func (s *Service) Trigger(ctx context.Context) httpapi.Trigger {
	return func(kind string, date domain.Date, dryRun bool) (string, error) {
		if kind != KindDaily && kind != KindWeekly {
			return "", fmt.Errorf("%w: %q", ErrUnknownKind, kind)
		}
		id := uuid.NewString()
		go func() {
			_, _ = s.Run(ctx, Request{ID: id, Kind: kind, Date: date, DryRun: dryRun})
		}()
		return id, nil
	}
}
