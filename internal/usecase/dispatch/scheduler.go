package dispatch

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// DefaultSchedule — интервал циклов рассылки по умолчанию.
const DefaultSchedule = "@every 30m"

// CycleRunner выполняет один цикл рассылки.
type CycleRunner interface {
	RunCycle(ctx context.Context) (Report, error)
}

// Scheduler запускает циклы по расписанию и один раз сразу при старте.
type Scheduler struct {
	runner   CycleRunner
	schedule cron.Schedule
	spec     string
	log      zerolog.Logger
}

// NewScheduler разбирает расписание в формате cron или дескриптор вида "@every 30m".
func NewScheduler(runner CycleRunner, spec string, logger zerolog.Logger) (*Scheduler, error) {
	if spec == "" {
		spec = DefaultSchedule
	}
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("dispatch: неверное расписание %q: %w", spec, err)
	}
	return &Scheduler{runner: runner, schedule: schedule, spec: spec, log: logger}, nil
}

// Run блокируется до отмены ctx. После отмены дожидается завершения текущего цикла.
func (s *Scheduler) Run(ctx context.Context) {
	job := cron.NewChain(
		cron.SkipIfStillRunning(cronLogger{log: s.log}),
		cron.Recover(cronLogger{log: s.log}),
	).Then(cron.FuncJob(func() { s.runOnce(ctx) }))

	c := cron.New(cron.WithLogger(cronLogger{log: s.log}))
	c.Schedule(s.schedule, job)

	s.log.Info().Str("schedule", s.spec).Msg("scheduler: первый цикл при старте")
	job.Run()

	c.Start()
	<-ctx.Done()
	s.log.Info().Msg("scheduler: остановка, ждём текущий цикл")
	<-c.Stop().Done()
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := s.runner.RunCycle(ctx); err != nil {
		s.log.Error().Err(err).Msg("scheduler: цикл рассылки не выполнен")
	}
}

type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
