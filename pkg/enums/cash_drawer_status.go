package enums

// CashDrawerStatus tracks whether a drawer session is still counting sales.
type CashDrawerStatus string

const (
	CashDrawerStatusOpen   CashDrawerStatus = "open"
	CashDrawerStatusClosed CashDrawerStatus = "closed"
)

// IsValid reports whether the value is a known CashDrawerStatus.
func (s CashDrawerStatus) IsValid() bool {
	return s == CashDrawerStatusOpen || s == CashDrawerStatusClosed
}
