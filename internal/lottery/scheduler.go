package lottery

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"kyatlotto/internal/eventlog"
	"kyatlotto/internal/store"
)

const (
	DefaultSchedulerInterval = "@every 1m"
	hourlySpec               = "0 * * * *"
	defaultTickTimeout       = 30 * time.Second
)

// Advancer is the round operation the scheduler drives.
type Advancer interface {
	Advance(ctx context.Context) (*store.RoundResult, error)
}

// Scheduler polls the active round on a fixed interval and on the hour.
// A failing tick is logged and the next one runs as usual.
type Scheduler struct {
	advancer Advancer
	logger   eventlog.Logger
	cron     *cron.Cron
	timeout  time.Duration
}

func NewScheduler(a Advancer, interval string, logger eventlog.Logger) (*Scheduler, error) {
	if interval == "" {
		interval = DefaultSchedulerInterval
	}
	logger = eventlog.OrNop(logger)

	cl := cron.PrintfLogger(logger)
	s := &Scheduler{
		advancer: a,
		logger:   logger,
		timeout:  defaultTickTimeout,
		cron: cron.New(cron.WithChain(
			cron.Recover(cl),
			cron.SkipIfStillRunning(cl),
		)),
	}

	for _, spec := range []string{interval, hourlySpec} {
		if _, err := s.cron.AddFunc(spec, s.Tick); err != nil {
			return nil, fmt.Errorf("schedule %q: %w", spec, err)
		}
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the schedule and waits for a running tick, or for ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

// Tick runs one advance attempt.
func (s *Scheduler) Tick() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	res, err := s.advancer.Advance(ctx)
	if err != nil {
		schedulerTicks.WithLabelValues("error").Inc()
		eventlog.Event(s.logger, "scheduler_tick_failed", map[string]any{
			"error": err.Error(),
		})
		return
	}
	if res == nil {
		schedulerTicks.WithLabelValues("idle").Inc()
		return
	}
	schedulerTicks.WithLabelValues("advanced").Inc()
}
