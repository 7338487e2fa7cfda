package models

// OpenCheckoutRequest carries what a catalog trigger exposes: either a
// catalog SKU or the product name and whole-unit price directly.
type OpenCheckoutRequest struct {
	SKU         string `json:"sku"`
	ProductName string `json:"product_name"`
	Price       int64  `json:"price"`
}

type UIEventRequest struct {
	Type string `json:"type" binding:"required,oneof=close overlay_click"`
}

type NewsletterRequest struct {
	Email string `json:"email"`
}
