// services/scheduler.go
package services

import (
	"fmt"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// StartInvitationCleanup purges rejected invitations older than retention
// every interval. The caller owns the returned scheduler and shuts it down.
func (s *TeamService) StartInvitationCleanup(interval, retention time.Duration) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			purged, err := s.PurgeRejectedInvitations(time.Now().Add(-retention))
			if err != nil {
				log.Printf("[SCHEDULER] %v", err)
				return
			}
			if purged > 0 {
				log.Printf("[SCHEDULER] purged %d rejected invitations", purged)
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = sched.Shutdown()
		return nil, fmt.Errorf("schedule invitation cleanup: %w", err)
	}

	sched.Start()
	return sched, nil
}
