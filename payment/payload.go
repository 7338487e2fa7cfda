package payment

import (
	"context"
	"errors"
	"fmt"
	"math"
)

const AddressPlaceholder = "Not provided"

var (
	ErrNegativeAmount = errors.New("amount must not be negative")
	ErrAmountOverflow = errors.New("amount overflows minor units")
)

// ToMinorUnits converts a whole-unit price into the smallest denomination
// (kobo for NGN). The conversion is an exact integer multiply.
func ToMinorUnits(major int64) (int64, error) {
	if major < 0 {
		return 0, ErrNegativeAmount
	}
	if major > math.MaxInt64/100 {
		return 0, ErrAmountOverflow
	}
	return major * 100, nil
}

type CustomField struct {
	DisplayName  string `json:"display_name"`
	VariableName string `json:"variable_name"`
	Value        string `json:"value"`
}

type Metadata struct {
	CustomFields []CustomField `json:"custom_fields"`
}

// Payload is handed to the hosted payment widget. It never carries card data.
type Payload struct {
	PublicKey   string   `json:"key"`
	Email       string   `json:"email"`
	AmountMinor int64    `json:"amount"`
	Currency    string   `json:"currency"`
	Reference   string   `json:"ref"`
	BuyerName   string   `json:"-"`
	BuyerPhone  string   `json:"-"`
	Address     string   `json:"-"`
	Metadata    Metadata `json:"metadata"`
}

// Buyer is the validated contact block of a checkout form.
type Buyer struct {
	Email   string
	Name    string
	Phone   string
	Address string
}

// BuildPayload packages a purchase for the widget. The address placeholder
// is applied here, never during validation.
func BuildPayload(publicKey, currency, productName string, priceMajor int64, buyer Buyer, reference string) (Payload, error) {
	amount, err := ToMinorUnits(priceMajor)
	if err != nil {
		return Payload{}, fmt.Errorf("failed to convert price of %q: %w", productName, err)
	}

	address := buyer.Address
	if address == "" {
		address = AddressPlaceholder
	}

	return Payload{
		PublicKey:   publicKey,
		Email:       buyer.Email,
		AmountMinor: amount,
		Currency:    currency,
		Reference:   reference,
		BuyerName:   buyer.Name,
		BuyerPhone:  buyer.Phone,
		Address:     address,
		Metadata: Metadata{
			CustomFields: []CustomField{
				{DisplayName: "Product Name", VariableName: "product_name", Value: productName},
				{DisplayName: "Customer Name", VariableName: "customer_name", Value: buyer.Name},
				{DisplayName: "Phone Number", VariableName: "phone_number", Value: buyer.Phone},
				{DisplayName: "Delivery Address", VariableName: "delivery_address", Value: address},
			},
		},
	}, nil
}

// Confirmation is what the widget reports on a successful charge.
type Confirmation struct {
	Reference string `json:"reference"`
	Status    string `json:"status,omitempty"`
	Message   string `json:"message,omitempty"`
}

// Widget is the hosted checkout. Open is fire-and-forget: the widget owns the
// payment UI afterwards and reports back through exactly one of the callbacks.
type Widget interface {
	Available(ctx context.Context) bool
	Open(ctx context.Context, payload Payload, onSuccess func(Confirmation), onCancel func()) error
}
