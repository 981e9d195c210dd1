// Package scheduler runs tasks on independent periods from one sequential
// loop.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultLoopPeriod is the sleep between loop iterations.
const DefaultLoopPeriod = 421 * time.Second

// Task is one periodic unit of work.
type Task struct {
	Name   string
	Period time.Duration
	Run    func(ctx context.Context) error
}

type entry struct {
	task Task
	next time.Time
}

// Scheduler runs due tasks in registration order. No two tasks run at once.
type Scheduler struct {
	tasks []*entry
	loop  time.Duration
	log   logrus.FieldLogger
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func New(loop time.Duration, log logrus.FieldLogger) *Scheduler {
	if loop <= 0 {
		loop = DefaultLoopPeriod
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Scheduler{loop: loop, log: log, now: time.Now, sleep: sleepCtx}
}

// Add registers a task. It is due on the first tick.
func (s *Scheduler) Add(t Task) error {
	if t.Name == "" || t.Run == nil {
		return errors.New("scheduler: task needs a name and a run func")
	}
	if t.Period <= 0 {
		return fmt.Errorf("scheduler: task %s: period must be positive", t.Name)
	}
	s.tasks = append(s.tasks, &entry{task: t})
	return nil
}

// Tick runs every task that is due at the current time and returns how many
// ran. A task error is logged and does not stop the others.
func (s *Scheduler) Tick(ctx context.Context) int {
	ran := 0
	for _, e := range s.tasks {
		if ctx.Err() != nil {
			return ran
		}
		now := s.now()
		if now.Before(e.next) {
			continue
		}
		e.next = now.Add(e.task.Period)
		ran++
		if err := e.task.Run(ctx); err != nil {
			if ctx.Err() != nil {
				return ran
			}
			s.log.WithError(err).WithField("task", e.task.Name).Error("task failed")
		}
	}
	return ran
}

// Run ticks, then sleeps the loop period, until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.WithFields(logrus.Fields{"tasks": len(s.tasks), "loop": s.loop}).Info("loop started")
	for {
		s.Tick(ctx)
		if err := s.sleep(ctx, s.loop); err != nil {
			s.log.Info("loop stopped")
			return nil
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
