package notify

import (
	"context"
	"errors"
	"sync"

	"github.com/jackc/pgx/v5"

	"github.com/tradematch/backend/internal/models"
)

// InsertOfferNotificationTxFunc inserts an offer notification into the queue
// inside the caller's transaction.
type InsertOfferNotificationTxFunc func(ctx context.Context, tx pgx.Tx, args OfferNotificationArgs) error

var errNotBound = errors.New("notification queue not wired")

// Enqueuer bridges the distributor to the job queue. The queue client cannot
// exist until its workers are registered, and the sweep workers need the
// distributor, so the insert function is bound late via Bind.
type Enqueuer struct {
	mu       sync.Mutex
	insertFn InsertOfferNotificationTxFunc
}

func NewEnqueuer() *Enqueuer {
	return &Enqueuer{}
}

// Bind installs the queue insert function once the client exists.
func (e *Enqueuer) Bind(fn InsertOfferNotificationTxFunc) {
	e.mu.Lock()
	e.insertFn = fn
	e.mu.Unlock()
}

func (e *Enqueuer) EnqueueOfferNotification(ctx context.Context, tx pgx.Tx, offer *models.Offer, job *models.Job) error {
	e.mu.Lock()
	fn := e.insertFn
	e.mu.Unlock()
	if fn == nil {
		return errNotBound
	}
	return fn(ctx, tx, OfferNotificationArgs{
		OfferID:    offer.ID,
		JobID:      job.ID,
		VendorID:   offer.VendorID,
		Rank:       offer.Rank,
		PricePence: offer.PricePence,
		Category:   job.Category,
		Postcode:   job.Postcode,
		Urgency:    job.Urgency,
		ExpiresAt:  offer.ExpiresAt,
	})
}
