package bidding

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/live-auction/internal/biddingerrors"
	"github.com/iliyamo/live-auction/internal/utils"
)

const sweepBatch = 100

// SweepResult counts the transitions a sweep performed.
type SweepResult struct {
	Started int `json:"started"`
	Ended   int `json:"ended"`
}

// Sweep starts every pending auction whose start time has passed and ends
// every active auction whose end time has passed.  Auctions another caller
// is already transitioning are skipped and picked up by the next sweep.
func (s *Service) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	now := s.clock()

	ids, err := s.store.DueForStart(ctx, now, sweepBatch)
	if err != nil {
		return res, err
	}
	for _, id := range ids {
		if _, err := s.StartAuction(ctx, id, ""); err != nil {
			s.sweepSkipped(id, "start", err)
			continue
		}
		res.Started++
	}

	ids, err = s.store.DueForEnd(ctx, now, sweepBatch)
	if err != nil {
		return res, err
	}
	for _, id := range ids {
		if _, err := s.EndAuction(ctx, id, ""); err != nil {
			s.sweepSkipped(id, "end", err)
			continue
		}
		res.Ended++
	}
	return res, nil
}

func (s *Service) sweepSkipped(id, op string, err error) {
	entry := s.log.WithError(err).WithFields(logrus.Fields{"auction_id": id, "op": op})
	if biddingerrors.IsRetryable(err) || errors.Is(err, biddingerrors.ErrInvalidTransition) {
		entry.Debug("sweep skipped auction")
		return
	}
	entry.Error("sweep transition failed")
}

// Scheduler runs Sweep periodically.
type Scheduler struct {
	svc      *Service
	interval time.Duration
	log      *logrus.Entry
}

// NewScheduler returns a scheduler ticking every interval.
func NewScheduler(svc *Service, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Scheduler{svc: svc, interval: interval, log: utils.Component("scheduler")}
}

// Run sweeps once immediately and then on every tick until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		s.tick(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	res, err := s.svc.Sweep(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.log.WithError(err).Error("sweep failed")
		}
		return
	}
	if res.Started > 0 || res.Ended > 0 {
		s.log.WithFields(logrus.Fields{"started": res.Started, "ended": res.Ended}).Info("sweep")
	}
}
