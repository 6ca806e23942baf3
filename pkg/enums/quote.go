package enums

import "fmt"

// QuoteStatus mirrors the quotes.status column.
type QuoteStatus string

const (
	QuoteStatusPending   QuoteStatus = "pending"
	QuoteStatusAccepted  QuoteStatus = "accepted"
	QuoteStatusRejected  QuoteStatus = "rejected"
	QuoteStatusExpired   QuoteStatus = "expired"
	QuoteStatusCancelled QuoteStatus = "cancelled"
)

var validQuoteStatuses = []QuoteStatus{
	QuoteStatusPending,
	QuoteStatusAccepted,
	QuoteStatusRejected,
	QuoteStatusExpired,
	QuoteStatusCancelled,
}

func (s QuoteStatus) String() string {
	return string(s)
}

func (s QuoteStatus) IsValid() bool {
	for _, candidate := range validQuoteStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// PriceType is the price tier a quote line was priced at.
type PriceType string

const (
	PriceTypeRetail    PriceType = "retail"
	PriceTypeWholesale PriceType = "wholesale"
)

func (p PriceType) String() string {
	return string(p)
}

func (p PriceType) IsValid() bool {
	return p == PriceTypeRetail || p == PriceTypeWholesale
}

// DeliveryMethod describes how the requester expects to receive goods.
type DeliveryMethod string

const (
	DeliveryMethodShipping DeliveryMethod = "shipping"
	DeliveryMethodPickup   DeliveryMethod = "pickup"
)

var validDeliveryMethods = []DeliveryMethod{
	DeliveryMethodShipping,
	DeliveryMethodPickup,
}

func (d DeliveryMethod) String() string {
	return string(d)
}

func (d DeliveryMethod) IsValid() bool {
	for _, candidate := range validDeliveryMethods {
		if candidate == d {
			return true
		}
	}
	return false
}

// ParseDeliveryMethod converts raw input into a DeliveryMethod.
func ParseDeliveryMethod(value string) (DeliveryMethod, error) {
	for _, candidate := range validDeliveryMethods {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid delivery method %q", value)
}
