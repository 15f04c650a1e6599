// Package schedule runs the daily and weekly reports on cron expressions.
package schedule

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Standard 5-field cron (minute hour day-of-month month day-of-week).
// Examples: "0 7 * * 1-5" (weekdays 7am), "0 8 * * 1" (Mondays 8am).
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

type job struct {
	name  string
	spec  string
	sched cron.Schedule
	run   func(ctx context.Context)
}

type Scheduler struct {
	loc  *time.Location
	log  logrus.FieldLogger
	jobs []job
	wg   sync.WaitGroup

	now   func() time.Time
	after func(time.Duration) <-chan time.Time
}

func New(loc *time.Location, log logrus.FieldLogger) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Scheduler{loc: loc, log: log, now: time.Now, after: time.After}
}

// Add registers run under a cron spec. An empty spec leaves the job disabled.
func (s *Scheduler) Add(name, spec string, run func(ctx context.Context)) error {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		s.log.WithField("job", name).Info("schedule disabled (no cron expression)")
		return nil
	}
	sched, err := parser.Parse(spec)
	if err != nil {
		return fmt.Errorf("invalid %s schedule '%s': %w", name, spec, err)
	}
	s.jobs = append(s.jobs, job{name: name, spec: spec, sched: sched, run: run})
	return nil
}

func (s *Scheduler) Len() int { return len(s.jobs) }

// Start launches one loop per job. Loops end when ctx is cancelled; a run
// in progress is not interrupted by the scheduler itself.
func (s *Scheduler) Start(ctx context.Context) {
	for _, j := range s.jobs {
		s.wg.Add(1)
		go func(j job) {
			defer s.wg.Done()
			s.loop(ctx, j)
		}(j)
	}
}

// Wait blocks until every loop started by Start has returned.
func (s *Scheduler) Wait() { s.wg.Wait() }

func (s *Scheduler) loop(ctx context.Context, j job) {
	log := s.log.WithField("job", j.name)
	log.WithField("cron", j.spec).Info("scheduled")
	for {
		now := s.now().In(s.loc)
		next := j.sched.Next(now)
		wait := next.Sub(now)
		log.Infof("next run at %s (in %s)", next.Format("Mon Jan 2 15:04"), wait.Round(time.Minute))

		select {
		case <-ctx.Done():
			return
		case <-s.after(wait):
		}
		j.run(ctx)
	}
}
