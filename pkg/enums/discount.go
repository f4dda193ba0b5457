package enums

// DiscountType describes how a discount value is interpreted.
type DiscountType string

const (
	DiscountTypePercentage   DiscountType = "percentage"
	DiscountTypeFixedTotal   DiscountType = "fixed_total"
	DiscountTypeFixedPerItem DiscountType = "fixed_per_item"
)

var discountTypes = newSet("discount type",
	DiscountTypePercentage,
	DiscountTypeFixedTotal,
	DiscountTypeFixedPerItem,
)

func (t DiscountType) IsValid() bool { return discountTypes.has(t) }

func ParseDiscountType(value string) (DiscountType, error) {
	return discountTypes.parse(value)
}

// DiscountTargetType identifies what a DiscountItem entry points at.
type DiscountTargetType string

const (
	DiscountTargetProduct      DiscountTargetType = "product"
	DiscountTargetService      DiscountTargetType = "service"
	DiscountTargetProductGroup DiscountTargetType = "product_group"
)

// IsValid reports whether the value is a known DiscountTargetType.
func (t DiscountTargetType) IsValid() bool {
	switch t {
	case DiscountTargetProduct, DiscountTargetService, DiscountTargetProductGroup:
		return true
	}
	return false
}

// DiscountItemMode marks a DiscountItem as an allow or deny entry.
type DiscountItemMode string

const (
	DiscountItemAllowed DiscountItemMode = "allowed"
	DiscountItemDenied  DiscountItemMode = "denied"
)

// IsValid reports whether the value is a known DiscountItemMode.
func (m DiscountItemMode) IsValid() bool {
	return m == DiscountItemAllowed || m == DiscountItemDenied
}

// OrderDiscountScope describes which lines an order-level discount covers.
type OrderDiscountScope string

const (
	OrderDiscountScopeAllItems OrderDiscountScope = "all_items"
	// OrderDiscountScopeSpecificItems is the older linking-table scope; per-unit
	// exclusions on line discounts supersede it.
	OrderDiscountScopeSpecificItems OrderDiscountScope = "specific_items"
)

var orderDiscountScopes = newSet("order discount scope",
	OrderDiscountScopeAllItems,
	OrderDiscountScopeSpecificItems,
)

func (s OrderDiscountScope) IsValid() bool { return orderDiscountScopes.has(s) }

func ParseOrderDiscountScope(value string) (OrderDiscountScope, error) {
	return orderDiscountScopes.parse(value)
}
