// Package tasks runs one polling loop per enabled feed. Feeds are fully
// independent: each loop owns its timer and its backoff state, so a feed
// stuck behind a rate limit never delays the others.
package tasks

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/htbwatch/htb-relay/app/htb"
)

// FeedRunner pairs a poll task with its schedule.
type FeedRunner struct {
	Task     *PollFeedTask
	Interval time.Duration
}

type Scheduler struct {
	runners []FeedRunner
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewScheduler(runners []FeedRunner) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		runners: runners,
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (s *Scheduler) Start() {
	for _, runner := range s.runners {
		s.wg.Add(1)
		go s.runFeed(runner)
	}

	slog.Info("Scheduler started", "feeds", len(s.runners))
}

func (s *Scheduler) Stop() {
	slog.Debug("Stopping scheduler")

	s.cancel()
	s.wg.Wait()

	slog.Info("Scheduler stopped")
}

// runFeed polls immediately on startup, then on the configured interval.
// Cycles for the same feed never overlap; a failed cycle is retried with
// exponential backoff capped at the poll interval.
func (s *Scheduler) runFeed(runner FeedRunner) {
	defer s.wg.Done()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 5 * time.Second
	bo.MaxInterval = runner.Interval
	bo.MaxElapsedTime = 0

	for {
		wait := runner.Interval

		err := runner.Task.Execute(s.ctx)
		switch {
		case err == nil:
			bo.Reset()
		case errors.Is(err, context.Canceled):
			return
		case errors.Is(err, htb.ErrUnauthorized):
			// Retrying cannot help until the token is replaced, so fall back
			// to the regular interval instead of hammering the API.
			slog.Error("Feed poll rejected, check the bearer token",
				"feed", runner.Task.Kind, "error", err)
		default:
			wait = bo.NextBackOff()
			if errors.Is(err, htb.ErrRateLimited) {
				slog.Warn("Feed poll rate limited, backing off",
					"feed", runner.Task.Kind, "retry_in", wait)
			} else {
				slog.Error("Feed poll failed, backing off",
					"feed", runner.Task.Kind, "retry_in", wait, "error", err)
			}
		}

		select {
		case <-s.ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}
