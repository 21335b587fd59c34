package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/svenskhalsovard/storefront/core/catalog"
)

type Customer struct {
	FirstName      string `json:"firstName"`
	LastName       string `json:"lastName"`
	Email          string `json:"email"`
	Phone          string `json:"phone"`
	StreetAddress  string `json:"streetAddress"`
	PostalCode     string `json:"postalCode"`
	City           string `json:"city"`
	AdditionalInfo string `json:"additionalInfo,omitempty"`
}

type CheckoutItem struct {
	ServiceID    int64  `json:"serviceId"`
	Quantity     int    `json:"quantity"`
	PurchaseType string `json:"purchaseType"`
	Price        int    `json:"price"`
}

type CheckoutRequest struct {
	Customer    Customer       `json:"customer"`
	Items       []CheckoutItem `json:"items"`
	TotalAmount int            `json:"totalAmount"`
}

type CheckoutUI struct {
	HTML       string `json:"html,omitempty"`
	JavaScript string `json:"javascript,omitempty"`
	Snippet    string `json:"snippet,omitempty"`
}

type CheckoutResponse struct {
	PaymentID      int64      `json:"paymentId"`
	SveaOrderID    string     `json:"sveaOrderId,omitempty"`
	Status         string     `json:"status,omitempty"`
	OrderReference string     `json:"orderReference,omitempty"`
	CheckoutUI     CheckoutUI `json:"checkoutUI"`
}

// PaymentRequest is sent flat: Details are merged into the top-level object
// next to paymentId and paymentMethod.
type PaymentRequest struct {
	PaymentID     int64
	PaymentMethod string
	Details       map[string]any
}

func (p PaymentRequest) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(p.Details)+2)
	for k, v := range p.Details {
		m[k] = v
	}
	m["paymentId"] = p.PaymentID
	if p.PaymentMethod != "" {
		m["paymentMethod"] = p.PaymentMethod
	}
	return json.Marshal(m)
}

type PaymentResponse struct {
	ID             int64   `json:"id"`
	Status         string  `json:"status"`
	Amount         float64 `json:"amount,omitempty"`
	Currency       string  `json:"currency,omitempty"`
	PaymentMethod  string  `json:"paymentMethod,omitempty"`
	OrderReference string  `json:"orderReference,omitempty"`
	CreatedAt      string  `json:"createdAt,omitempty"`
}

type BookingItem struct {
	ServiceID    int64  `json:"serviceId"`
	Quantity     int    `json:"quantity"`
	PurchaseType string `json:"purchaseType"`
}

type BookingRequest struct {
	PaymentID int64         `json:"paymentId"`
	Customer  Customer      `json:"customer"`
	Items     []BookingItem `json:"items"`
}

// BookingResponse accepts the booking identifier as either bookingId or id.
type BookingResponse struct {
	ID            int64   `json:"id,omitempty"`
	BookingID     int64   `json:"bookingId,omitempty"`
	BookingNumber string  `json:"bookingNumber,omitempty"`
	Status        string  `json:"status,omitempty"`
	TotalAmount   float64 `json:"totalAmount,omitempty"`
}

func (b BookingResponse) Identifier() int64 {
	if b.BookingID != 0 {
		return b.BookingID
	}
	return b.ID
}

func (c *Client) InitiateCheckout(ctx context.Context, req CheckoutRequest) (CheckoutResponse, error) {
	var resp CheckoutResponse
	if err := c.call(ctx, http.MethodPost, "/checkout/initiate", "/checkout/initiate", req, &resp); err != nil {
		return CheckoutResponse{}, err
	}
	return resp, nil
}

func (c *Client) ProcessPayment(ctx context.Context, req PaymentRequest) (PaymentResponse, error) {
	var resp PaymentResponse
	if err := c.call(ctx, http.MethodPost, "/checkout/payment", "/checkout/payment", req, &resp); err != nil {
		return PaymentResponse{}, err
	}
	return resp, nil
}

func (c *Client) VerifyPayment(ctx context.Context, paymentID int64) (PaymentResponse, error) {
	var resp PaymentResponse
	path := fmt.Sprintf("/checkout/verify/%d", paymentID)
	if err := c.call(ctx, http.MethodGet, "/checkout/verify/{paymentId}", path, nil, &resp); err != nil {
		return PaymentResponse{}, err
	}
	return resp, nil
}

func (c *Client) CreateBooking(ctx context.Context, req BookingRequest) (BookingResponse, error) {
	var resp BookingResponse
	if err := c.call(ctx, http.MethodPost, "/bookings", "/bookings", req, &resp); err != nil {
		return BookingResponse{}, err
	}
	return resp, nil
}

// ListServices implements catalog.Lister.
func (c *Client) ListServices(ctx context.Context) ([]catalog.Service, error) {
	var resp struct {
		Services []catalog.Service `json:"services"`
		Count    int               `json:"count"`
	}
	if err := c.call(ctx, http.MethodGet, "/services", "/services", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Services, nil
}
