package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"tradepost/internal/usecase"
	"tradepost/pkg/logger"
)

// sweepTimeout bounds one sweep pass so a stuck upstream cannot pile up
// overlapping runs forever.
const sweepTimeout = 2 * time.Minute

// Scheduler drives the background sweeps: finalizing due auctions,
// recovering listings stuck in finalizing, and expiring or renewing due
// rental contracts.
type Scheduler struct {
	cron        *cron.Cron
	marketplace *usecase.Marketplace
	interval    time.Duration
}

func NewScheduler(marketplace *usecase.Marketplace, interval time.Duration) *Scheduler {
	return &Scheduler{
		cron:        cron.New(cron.WithSeconds()),
		marketplace: marketplace,
		interval:    interval,
	}
}

func (s *Scheduler) Start() error {
	spec := fmt.Sprintf("@every %s", s.interval)

	if _, err := s.cron.AddFunc(spec, s.runAuctionSweep); err != nil {
		return fmt.Errorf("failed to schedule auction sweep: %w", err)
	}
	if _, err := s.cron.AddFunc(spec, s.runRecoverySweep); err != nil {
		return fmt.Errorf("failed to schedule recovery sweep: %w", err)
	}
	if _, err := s.cron.AddFunc(spec, s.runRentalSweep); err != nil {
		return fmt.Errorf("failed to schedule rental sweep: %w", err)
	}

	s.cron.Start()
	logger.Info("Scheduler started with interval %s", s.interval)
	return nil
}

// Stop waits for any in-flight sweep to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	logger.Info("Scheduler stopped")
}

func (s *Scheduler) runAuctionSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	count, err := s.marketplace.FinalizeDueAuctions(ctx)
	if err != nil {
		logger.Error("Auction sweep failed: %v", err)
		return
	}
	if count > 0 {
		logger.Info("Auction sweep finalized %d listing(s)", count)
	}
}

func (s *Scheduler) runRecoverySweep() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	count, err := s.marketplace.RecoverFinalizing(ctx)
	if err != nil {
		logger.Error("Recovery sweep failed: %v", err)
		return
	}
	if count > 0 {
		logger.Info("Recovery sweep resolved %d listing(s)", count)
	}
}

func (s *Scheduler) runRentalSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	count, err := s.marketplace.ExpireDueRentals(ctx)
	if err != nil {
		logger.Error("Rental sweep failed: %v", err)
		return
	}
	if count > 0 {
		logger.Info("Rental sweep processed %d listing(s)", count)
	}
}
