// Package checkout drives a single customer through payment and booking.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/svenskhalsovard/storefront/core/cart"
	"github.com/svenskhalsovard/storefront/gateway"
)

type PaymentStatus string

const (
	PaymentUnset   PaymentStatus = ""
	PaymentPending PaymentStatus = "pending"
	PaymentSuccess PaymentStatus = "success"
	PaymentFailed  PaymentStatus = "failed"
)

type BookingStatus string

const (
	BookingUnset     BookingStatus = ""
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingFailed    BookingStatus = "failed"
)

var (
	ErrNoPaymentSession     = errors.New("no payment session")
	ErrPaymentNotSuccessful = errors.New("payment has not succeeded")
	ErrInvalidState         = errors.New("operation not allowed in the current checkout state")
	ErrInProgress           = errors.New("another checkout operation is in progress")
	ErrReset                = errors.New("checkout was reset while the operation was running")
)

const (
	msgInitiateFailed = "an error occurred during the payment attempt"
	msgPaymentFailed  = "an error occurred during the payment"
	msgBookingFailed  = "an error occurred during the booking"
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

// CustomerUp is merged into the profile; nil fields are left untouched.
type CustomerUp struct {
	FirstName      *string `json:"firstName" validate:"omitempty,max=100"`
	LastName       *string `json:"lastName" validate:"omitempty,max=100"`
	Email          *string `json:"email" validate:"omitempty,email"`
	Phone          *string `json:"phone" validate:"omitempty,max=30"`
	StreetAddress  *string `json:"streetAddress" validate:"omitempty,max=200"`
	PostalCode     *string `json:"postalCode" validate:"omitempty,max=10"`
	City           *string `json:"city" validate:"omitempty,max=100"`
	AdditionalInfo *string `json:"additionalInfo" validate:"omitempty,max=500"`
}

type Payment struct {
	Status       PaymentStatus `json:"status"`
	ID           int64         `json:"paymentId,omitempty"`
	ErrorMessage string        `json:"errorMessage,omitempty"`
}

type Booking struct {
	Status        BookingStatus `json:"status"`
	ID            int64         `json:"bookingId,omitempty"`
	BookingNumber string        `json:"bookingNumber,omitempty"`
	ErrorMessage  string        `json:"errorMessage,omitempty"`
}

type State struct {
	Customer Customer `json:"customer"`
	Payment  Payment  `json:"payment"`
	Booking  Booking  `json:"booking"`
}

func (s State) Complete() bool {
	return s.Booking.Status == BookingConfirmed
}

// PaymentDetails are forwarded to the backend next to the payment id.
type PaymentDetails struct {
	Method string         `json:"paymentMethod" validate:"required,oneof=card invoice direct_debit swish"`
	Extra  map[string]any `json:"details,omitempty"`
}

// Result of ProcessPayment. Booking is nil when the payment failed.
type Result struct {
	Payment gateway.PaymentResponse  `json:"payment"`
	Booking *gateway.BookingResponse `json:"booking,omitempty"`
}

// Cart is the part of the ledger the machine reads and clears.
type Cart interface {
	Lines() []cart.Line
	Total() int
	Clear()
}

type Gateway interface {
	InitiateCheckout(ctx context.Context, req gateway.CheckoutRequest) (gateway.CheckoutResponse, error)
	ProcessPayment(ctx context.Context, req gateway.PaymentRequest) (gateway.PaymentResponse, error)
	VerifyPayment(ctx context.Context, paymentID int64) (gateway.PaymentResponse, error)
	CreateBooking(ctx context.Context, req gateway.BookingRequest) (gateway.BookingResponse, error)
}

// Machine holds the customer profile and the payment and booking state of
// one checkout. Only one gateway call runs at a time; State never waits for it.
// A submitted call outlives the caller's context and is bounded only by the
// gateway client's timeout.
type Machine struct {
	cart Cart
	gw   Gateway
	log  logrus.FieldLogger

	mu       sync.Mutex
	customer Customer
	payment  Payment
	booking  Booking
	attempt  uint64
	busy     bool
}

func New(c Cart, gw Gateway, log logrus.FieldLogger) *Machine {
	return &Machine{
		cart: c,
		gw:   gw,
		log:  log,
	}
}

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	return State{
		Customer: m.customer,
		Payment:  m.payment,
		Booking:  m.booking,
	}
}

func (m *Machine) UpdateCustomer(up CustomerUp) Customer {
	m.mu.Lock()
	defer m.mu.Unlock()

	merge := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	merge(&m.customer.FirstName, up.FirstName)
	merge(&m.customer.LastName, up.LastName)
	merge(&m.customer.Email, up.Email)
	merge(&m.customer.Phone, up.Phone)
	merge(&m.customer.StreetAddress, up.StreetAddress)
	merge(&m.customer.PostalCode, up.PostalCode)
	merge(&m.customer.City, up.City)
	merge(&m.customer.AdditionalInfo, up.AdditionalInfo)

	return m.customer
}

// Reset returns payment and booking to unset. The customer and the cart are
// kept. An operation still waiting on the backend will not record its result.
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.payment = Payment{}
	m.booking = Booking{}
	m.attempt++
	m.busy = false
}

// Restore resumes a payment that succeeded in an earlier machine so that its
// booking can be retried with CreateBooking. The machine must not have a
// payment of its own.
func (m *Machine) Restore(p Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.busy || m.payment.Status != PaymentUnset {
		return ErrInvalidState
	}
	if p.ID == 0 || p.Status != PaymentSuccess {
		return ErrPaymentNotSuccessful
	}

	m.payment = p
	m.booking = Booking{}
	return nil
}

// begin claims the machine for one operation. Must be called with mu held.
func (m *Machine) begin() (uint64, error) {
	if m.busy {
		return 0, ErrInProgress
	}
	m.busy = true
	return m.attempt, nil
}

// finish reports whether attempt is still current and releases the machine
// if it is. Must be called with mu held.
func (m *Machine) finish(attempt uint64) bool {
	if attempt != m.attempt {
		return false
	}
	m.busy = false
	return true
}

// InitiateCheckout opens a payment session for the current cart. It may be
// repeated while the payment is still pending.
func (m *Machine) InitiateCheckout(ctx context.Context) (gateway.CheckoutResponse, error) {
	m.mu.Lock()
	if m.payment.Status != PaymentUnset && m.payment.Status != PaymentPending {
		m.mu.Unlock()
		return gateway.CheckoutResponse{}, ErrInvalidState
	}
	attempt, err := m.begin()
	if err != nil {
		m.mu.Unlock()
		return gateway.CheckoutResponse{}, err
	}

	m.payment.Status = PaymentPending
	m.payment.ErrorMessage = ""
	req := gateway.CheckoutRequest{
		Customer:    gateway.Customer(m.customer),
		Items:       checkoutItems(m.cart.Lines()),
		TotalAmount: m.cart.Total(),
	}
	m.mu.Unlock()

	resp, err := m.gw.InitiateCheckout(context.WithoutCancel(ctx), req)

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.finish(attempt) {
		return gateway.CheckoutResponse{}, ErrReset
	}

	if err != nil {
		m.payment.ID = 0
		m.payment.Status = PaymentFailed
		m.payment.ErrorMessage = gateway.Message(err, msgInitiateFailed)
		m.log.WithError(err).Warn("initiating checkout")
		return gateway.CheckoutResponse{}, fmt.Errorf("initiating checkout: %w", err)
	}

	m.payment.ID = resp.PaymentID
	m.log.WithFields(logrus.Fields{
		"payment_id": resp.PaymentID,
		"amount":     req.TotalAmount,
	}).Info("checkout initiated")

	return resp, nil
}

// ProcessPayment pays the open session and, on success, books the cart in
// the same call. A booking failure is returned but leaves the payment
// successful; CreateBooking may then be retried.
func (m *Machine) ProcessPayment(ctx context.Context, details PaymentDetails) (Result, error) {
	m.mu.Lock()
	if m.payment.ID == 0 || m.payment.Status != PaymentPending {
		m.mu.Unlock()
		return Result{}, ErrNoPaymentSession
	}
	attempt, err := m.begin()
	if err != nil {
		m.mu.Unlock()
		return Result{}, err
	}

	req := gateway.PaymentRequest{
		PaymentID:     m.payment.ID,
		PaymentMethod: details.Method,
		Details:       details.Extra,
	}
	m.mu.Unlock()

	resp, err := m.gw.ProcessPayment(context.WithoutCancel(ctx), req)

	m.mu.Lock()
	if attempt != m.attempt {
		m.mu.Unlock()
		return Result{}, ErrReset
	}

	if err != nil {
		m.payment.Status = PaymentFailed
		m.payment.ErrorMessage = gateway.Message(err, msgPaymentFailed)
		m.finish(attempt)
		m.mu.Unlock()

		m.log.WithError(err).WithField("payment_id", req.PaymentID).Warn("processing payment")
		return Result{}, fmt.Errorf("processing payment[%d]: %w", req.PaymentID, err)
	}

	m.payment.Status = PaymentSuccess
	m.payment.ErrorMessage = ""
	m.mu.Unlock()

	m.log.WithFields(logrus.Fields{
		"payment_id": req.PaymentID,
		"method":     req.PaymentMethod,
	}).Info("payment succeeded")

	res := Result{Payment: resp}
	bk, err := m.book(ctx, attempt)
	if err != nil {
		return res, fmt.Errorf("booking after payment[%d]: %w", req.PaymentID, err)
	}
	res.Booking = &bk

	return res, nil
}

// CreateBooking books the cart against a successful payment.
func (m *Machine) CreateBooking(ctx context.Context) (gateway.BookingResponse, error) {
	m.mu.Lock()
	attempt, err := m.begin()
	m.mu.Unlock()
	if err != nil {
		return gateway.BookingResponse{}, err
	}

	return m.book(ctx, attempt)
}

// book runs with the machine already claimed by attempt and releases it.
func (m *Machine) book(ctx context.Context, attempt uint64) (gateway.BookingResponse, error) {
	m.mu.Lock()
	if attempt != m.attempt {
		m.mu.Unlock()
		return gateway.BookingResponse{}, ErrReset
	}
	if m.payment.Status != PaymentSuccess {
		m.finish(attempt)
		m.mu.Unlock()
		return gateway.BookingResponse{}, ErrPaymentNotSuccessful
	}
	if m.booking.Status == BookingPending || m.booking.Status == BookingConfirmed {
		m.finish(attempt)
		m.mu.Unlock()
		return gateway.BookingResponse{}, ErrInvalidState
	}

	m.booking = Booking{Status: BookingPending}
	req := gateway.BookingRequest{
		PaymentID: m.payment.ID,
		Customer:  gateway.Customer(m.customer),
		Items:     bookingItems(m.cart.Lines()),
	}
	m.mu.Unlock()

	resp, err := m.gw.CreateBooking(context.WithoutCancel(ctx), req)

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.finish(attempt) {
		return gateway.BookingResponse{}, ErrReset
	}

	if err != nil {
		m.booking.Status = BookingFailed
		m.booking.ErrorMessage = gateway.Message(err, msgBookingFailed)
		m.log.WithError(err).WithField("payment_id", req.PaymentID).Warn("creating booking")
		return gateway.BookingResponse{}, fmt.Errorf("creating booking for payment[%d]: %w", req.PaymentID, err)
	}

	m.booking.Status = BookingConfirmed
	m.booking.ID = resp.Identifier()
	m.booking.BookingNumber = resp.BookingNumber
	m.cart.Clear()

	m.log.WithFields(logrus.Fields{
		"payment_id":     req.PaymentID,
		"booking_id":     m.booking.ID,
		"booking_number": m.booking.BookingNumber,
	}).Info("booking confirmed")

	return resp, nil
}

// VerifyPayment asks the backend for the current status of the open payment.
// The machine's state is not changed.
func (m *Machine) VerifyPayment(ctx context.Context) (gateway.PaymentResponse, error) {
	m.mu.Lock()
	id := m.payment.ID
	m.mu.Unlock()

	if id == 0 {
		return gateway.PaymentResponse{}, ErrNoPaymentSession
	}

	resp, err := m.gw.VerifyPayment(ctx, id)
	if err != nil {
		return gateway.PaymentResponse{}, fmt.Errorf("verifying payment[%d]: %w", id, err)
	}
	return resp, nil
}

func checkoutItems(lines []cart.Line) []gateway.CheckoutItem {
	items := make([]gateway.CheckoutItem, 0, len(lines))
	for _, ln := range lines {
		items = append(items, gateway.CheckoutItem{
			ServiceID:    ln.Service.ID,
			Quantity:     ln.Quantity,
			PurchaseType: string(ln.PurchaseType),
			Price:        ln.Service.EffectivePrice(),
		})
	}
	return items
}

func bookingItems(lines []cart.Line) []gateway.BookingItem {
	items := make([]gateway.BookingItem, 0, len(lines))
	for _, ln := range lines {
		items = append(items, gateway.BookingItem{
			ServiceID:    ln.Service.ID,
			Quantity:     ln.Quantity,
			PurchaseType: string(ln.PurchaseType),
		})
	}
	return items
}
