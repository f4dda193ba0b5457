package enums

// GiftCertificateStatus tracks the lifecycle of a stored-value certificate.
// Pending certificates were sold on an order that has not completed yet.
type GiftCertificateStatus string

const (
	GiftCertificateStatusPending   GiftCertificateStatus = "pending"
	GiftCertificateStatusActive    GiftCertificateStatus = "active"
	GiftCertificateStatusVoided    GiftCertificateStatus = "voided"
	GiftCertificateStatusExhausted GiftCertificateStatus = "exhausted"
)

var giftCertificateStatuses = newSet("gift certificate status",
	GiftCertificateStatusPending,
	GiftCertificateStatusActive,
	GiftCertificateStatusVoided,
	GiftCertificateStatusExhausted,
)

func (s GiftCertificateStatus) IsValid() bool { return giftCertificateStatuses.has(s) }

// Redeemable reports whether the certificate may still be tendered.
func (s GiftCertificateStatus) Redeemable() bool {
	return s == GiftCertificateStatusActive
}

func ParseGiftCertificateStatus(value string) (GiftCertificateStatus, error) {
	return giftCertificateStatuses.parse(value)
}
