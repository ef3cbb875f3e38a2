package game

import (
	"time"

	"github.com/go-co-op/gocron/v2"
)

// StartSweeper runs Sweep(retention) every interval until the returned
// scheduler is shut down.
func StartSweeper(m *Manager, interval, retention time.Duration, opts ...gocron.SchedulerOption) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler(opts...)
	if err != nil {
		return nil, err
	}
	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() { m.Sweep(retention) }),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = sched.Shutdown()
		return nil, err
	}
	sched.Start()
	return sched, nil
}
