package server

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/sirupsen/logrus"
)

type invitationPruner interface {
	PruneInvitations(ctx context.Context) (int, error)
}

// StartInvitationSweep drops expired invitations every interval. Expired
// invitations are already refused on accept; the sweep keeps them from
// piling up in the stored state.
func StartInvitationSweep(ctx context.Context, p invitationPruner, every time.Duration, log *logrus.Entry) (gocron.Scheduler, error) {
	log = log.WithField("component", "scheduler")
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("creating scheduler: %w", err)
	}
	_, err = sched.NewJob(
		gocron.DurationJob(every),
		gocron.NewTask(func() {
			n, err := p.PruneInvitations(ctx)
			if err != nil {
				log.WithError(err).Warn("pruning invitations")
				return
			}
			if n > 0 {
				log.WithField("removed", n).Info("pruned expired invitations")
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = sched.Shutdown()
		return nil, fmt.Errorf("scheduling invitation sweep: %w", err)
	}
	sched.Start()
	return sched, nil
}
