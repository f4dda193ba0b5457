package enums

// PaymentMethod describes the tender used for an order payment.
type PaymentMethod string

const (
	PaymentMethodCash            PaymentMethod = "cash"
	PaymentMethodDebit           PaymentMethod = "debit"
	PaymentMethodCredit          PaymentMethod = "credit"
	PaymentMethodStoreCredit     PaymentMethod = "store_credit"
	PaymentMethodGiftCertificate PaymentMethod = "gift_certificate"
	PaymentMethodOther           PaymentMethod = "other"
)

var paymentMethods = newSet("payment method",
	PaymentMethodCash,
	PaymentMethodDebit,
	PaymentMethodCredit,
	PaymentMethodStoreCredit,
	PaymentMethodGiftCertificate,
	PaymentMethodOther,
)

func (p PaymentMethod) String() string { return string(p) }

func (p PaymentMethod) IsValid() bool { return paymentMethods.has(p) }

// IsElectronic reports whether the tender settles through the card terminal.
func (p PaymentMethod) IsElectronic() bool {
	switch p {
	case PaymentMethodDebit, PaymentMethodCredit:
		return true
	}
	return false
}

// IsCash reports whether the tender is physical cash, which is rounded to the
// smallest coin and counted in the drawer.
func (p PaymentMethod) IsCash() bool {
	return p == PaymentMethodCash
}

func ParsePaymentMethod(value string) (PaymentMethod, error) {
	return paymentMethods.parse(value)
}
