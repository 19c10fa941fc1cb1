package models

import (
	"time"

	"github.com/google/uuid"
)

// Ledger entry types.
const (
	EntryCharge      = "charge"
	EntryRefund      = "refund"
	EntryLotIssued   = "lot_issued"
	EntryLotConsumed = "lot_consumed"
	EntryLotExpired  = "lot_expired"
)

// Refund reason codes with their review severity.
const (
	RefundDuplicateCharge     = "duplicate_charge"
	RefundServiceNotDelivered = "service_not_delivered"
	RefundQualityIssue        = "quality_issue"
	RefundFraudSuspected      = "fraud_suspected"
	RefundGoodwill            = "goodwill"
	RefundPricingError        = "pricing_error"
	RefundVendorDispute       = "vendor_dispute"
	RefundOther               = "other"

	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// RefundReasonSeverity maps each refund reason to the severity used by
// downstream review tooling. Membership in this map defines the closed set of
// valid reasons.
var RefundReasonSeverity = map[string]string{
	RefundDuplicateCharge:     SeverityLow,
	RefundServiceNotDelivered: SeverityHigh,
	RefundQualityIssue:        SeverityMedium,
	RefundFraudSuspected:      SeverityCritical,
	RefundGoodwill:            SeverityLow,
	RefundPricingError:        SeverityMedium,
	RefundVendorDispute:       SeverityHigh,
	RefundOther:               SeverityLow,
}

// ValidRefundReason reports whether code is in the closed reason set.
func ValidRefundReason(code string) bool {
	_, ok := RefundReasonSeverity[code]
	return ok
}

// CreditLot is a discrete grant of credit. RemainingPence only ever
// decreases. Lots are consumed earliest-expiry-first, then oldest-first.
type CreditLot struct {
	ID             uuid.UUID  `json:"id"`
	VendorID       uuid.UUID  `json:"vendor_id"`
	OriginalPence  int64      `json:"original_pence"`
	RemainingPence int64      `json:"remaining_pence"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// LedgerEntry is an immutable record of a balance-affecting event. The ledger
// is the source of truth; the vendor balance is a derived projection.
type LedgerEntry struct {
	ID         uuid.UUID  `json:"id"`
	VendorID   uuid.UUID  `json:"vendor_id"`
	OfferID    *uuid.UUID `json:"offer_id,omitempty"`
	EntryType  string     `json:"entry_type"`
	// AmountPence is signed: negative for debits, positive for credits.
	AmountPence int64  `json:"amount_pence"`
	ReasonCode  string `json:"reason_code"`
	// PaymentRef correlates grants with an external payment, if any.
	PaymentRef *string   `json:"payment_ref,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
