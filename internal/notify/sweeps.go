package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/riverqueue/river"
)

// OfferSweepArgs triggers a pass over offers past their expiry. Enqueued
// periodically; reads are already expiry-aware, so the sweep only settles
// bookkeeping.
type OfferSweepArgs struct{}

func (OfferSweepArgs) Kind() string { return "offer_expiry_sweep" }

func (OfferSweepArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{UniqueOpts: river.UniqueOpts{ByPeriod: time.Minute}}
}

// OfferExpirer is the distributor-side contract of the sweep.
type OfferExpirer interface {
	ExpireOffers(ctx context.Context, now time.Time) (int64, error)
}

type OfferSweepWorker struct {
	river.WorkerDefaults[OfferSweepArgs]
	expirer OfferExpirer
	logger  *slog.Logger
}

func NewOfferSweepWorker(expirer OfferExpirer, logger *slog.Logger) *OfferSweepWorker {
	return &OfferSweepWorker{expirer: expirer, logger: logger}
}

func (w *OfferSweepWorker) Work(ctx context.Context, _ *river.Job[OfferSweepArgs]) error {
	n, err := w.expirer.ExpireOffers(ctx, time.Now().UTC())
	if err != nil {
		return err
	}
	if n > 0 {
		w.logger.Info("offer expiry sweep", "expired", n)
	}
	return nil
}

// LotSweepArgs triggers forfeiture of expired credit lots.
type LotSweepArgs struct{}

func (LotSweepArgs) Kind() string { return "credit_lot_sweep" }

func (LotSweepArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{UniqueOpts: river.UniqueOpts{ByPeriod: time.Minute}}
}

// LotExpirer is the ledger-side contract of the sweep.
type LotExpirer interface {
	ExpireLots(ctx context.Context, now time.Time) (int, error)
}

type LotSweepWorker struct {
	river.WorkerDefaults[LotSweepArgs]
	expirer LotExpirer
	logger  *slog.Logger
}

func NewLotSweepWorker(expirer LotExpirer, logger *slog.Logger) *LotSweepWorker {
	return &LotSweepWorker{expirer: expirer, logger: logger}
}

func (w *LotSweepWorker) Work(ctx context.Context, _ *river.Job[LotSweepArgs]) error {
	n, err := w.expirer.ExpireLots(ctx, time.Now().UTC())
	if err != nil {
		return err
	}
	if n > 0 {
		w.logger.Info("credit lot sweep", "expired", n)
	}
	return nil
}
