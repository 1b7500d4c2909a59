package types

// Provider names the upstream system that delivered a webhook.
type Provider string

const (
	ProviderClickFunnels Provider = "clickfunnels"
)

// Providers lists every provider accepted on /webhooks/:provider.
var Providers = []Provider{ProviderClickFunnels}

func (p Provider) Valid() bool {
	for _, known := range Providers {
		if p == known {
			return true
		}
	}
	return false
}

type EventKind string

const (
	EventKindPurchase EventKind = "purchase"
	EventKindRefund   EventKind = "refund"
)

func (k EventKind) Valid() bool {
	return k == EventKindPurchase || k == EventKindRefund
}

type EnrollmentStatus string

const (
	EnrollmentStatusActive    EnrollmentStatus = "ACTIVE"
	EnrollmentStatusCompleted EnrollmentStatus = "COMPLETED"
	EnrollmentStatusCancelled EnrollmentStatus = "CANCELLED"
)

type BounceStatus string

const (
	BounceStatusPending     BounceStatus = "pending"
	BounceStatusNeedsManual BounceStatus = "needs_manual"
	BounceStatusAutoFixed   BounceStatus = "auto_fixed"
	BounceStatusManualFixed BounceStatus = "manual_fixed"
	BounceStatusIgnored     BounceStatus = "ignored"
)

// Open reports whether the bounce still waits for an operator decision.
func (s BounceStatus) Open() bool {
	return s == BounceStatusPending || s == BounceStatusNeedsManual
}

// Well-known user tags. Per-course tags are built with CoursePurchasedTag.
const (
	TagWelcomeEmailSent = "welcome_email_sent"
)

func CoursePurchasedTag(slug string) string { return slug + "_purchased" }

func ProviderPurchaseTag(provider Provider) string { return string(provider) + "_purchase" }

func ConversionReportedTag(transactionID string) string {
	return "conversion_reported_" + transactionID
}
