package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river"
)

// OfferNotificationArgs carries everything the notification needs, captured
// at enqueue time so the worker never reads the database.
type OfferNotificationArgs struct {
	OfferID    uuid.UUID `json:"offer_id"`
	JobID      uuid.UUID `json:"job_id"`
	VendorID   uuid.UUID `json:"vendor_id"`
	Rank       int       `json:"rank"`
	PricePence int64     `json:"price_pence"`
	Category   string    `json:"category"`
	Postcode   string    `json:"postcode"`
	Urgency    string    `json:"urgency"`
	ExpiresAt  time.Time `json:"expires_at"`
}

func (OfferNotificationArgs) Kind() string { return "offer_notification" }

// LeadPreview is what the vendor sees before paying: enough to judge the
// lead, not enough to contact the requester directly.
type LeadPreview struct {
	Category   string    `json:"category"`
	Area       string    `json:"area"`
	Timeframe  string    `json:"timeframe"`
	PricePence int64     `json:"price_pence"`
	Rank       int       `json:"rank"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Sender delivers a lead preview to a vendor. Returning an error makes the
// queue retry, giving at-least-once delivery.
type Sender interface {
	SendOfferPreview(ctx context.Context, vendorID, offerID uuid.UUID, preview LeadPreview) error
}

type OfferNotifyWorker struct {
	river.WorkerDefaults[OfferNotificationArgs]
	sender Sender
}

func NewOfferNotifyWorker(sender Sender) *OfferNotifyWorker {
	return &OfferNotifyWorker{sender: sender}
}

func (w *OfferNotifyWorker) Work(ctx context.Context, job *river.Job[OfferNotificationArgs]) error {
	args := job.Args

	timeframe := args.Urgency
	if timeframe == "" {
		timeframe = "As soon as possible"
	}
	preview := LeadPreview{
		Category:   args.Category,
		Area:       HidePostcode(args.Postcode),
		Timeframe:  timeframe,
		PricePence: args.PricePence,
		Rank:       args.Rank,
		ExpiresAt:  args.ExpiresAt,
	}

	if err := w.sender.SendOfferPreview(ctx, args.VendorID, args.OfferID, preview); err != nil {
		return fmt.Errorf("send offer preview: %w", err)
	}
	return nil
}

// HidePostcode reduces a postcode to its sector: "SW1A 1AA" becomes
// "SW1A 1**". The full address is only revealed after the offer is paid for.
func HidePostcode(postcode string) string {
	postcode = strings.TrimSpace(postcode)
	if postcode == "" {
		return "Unknown area"
	}
	parts := strings.Fields(postcode)
	if len(parts) >= 2 && len(parts[1]) > 0 {
		return fmt.Sprintf("%s %c**", parts[0], parts[1][0])
	}
	if len(postcode) > 4 {
		postcode = postcode[:4]
	}
	return postcode + "**"
}

// LogSender writes previews to the structured log. It stands in for a real
// email or push channel in development.
type LogSender struct {
	Logger *slog.Logger
}

func (s *LogSender) SendOfferPreview(_ context.Context, vendorID, offerID uuid.UUID, preview LeadPreview) error {
	s.Logger.Info("offer preview",
		"vendor_id", vendorID,
		"offer_id", offerID,
		"category", preview.Category,
		"area", preview.Area,
		"timeframe", preview.Timeframe,
		"price_pence", preview.PricePence,
		"rank", preview.Rank,
		"expires_at", preview.ExpiresAt)
	return nil
}
