package enums

// SellableType identifies the catalog source of an order line.
type SellableType string

const (
	SellableProduct         SellableType = "product"
	SellableService         SellableType = "service"
	SellableGiftCertificate SellableType = "gift_certificate"
)

// IsValid reports whether the value is a known SellableType.
func (s SellableType) IsValid() bool {
	switch s {
	case SellableProduct, SellableService, SellableGiftCertificate:
		return true
	}
	return false
}

// Discountable reports whether store discounts may target lines of this type.
func (s SellableType) Discountable() bool {
	return s == SellableProduct || s == SellableService
}
