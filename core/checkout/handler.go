package checkout

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/svenskhalsovard/storefront/api/web"
	"github.com/svenskhalsovard/storefront/api/weberr"
	"github.com/svenskhalsovard/storefront/core/cart"
	"github.com/svenskhalsovard/storefront/gateway"
	"github.com/svenskhalsovard/storefront/validate"
)

// profile is the customer as it must be before a checkout can be opened.
type profile struct {
	FirstName      string `json:"firstName" validate:"required"`
	LastName       string `json:"lastName" validate:"required"`
	Email          string `json:"email" validate:"required,email"`
	Phone          string `json:"phone" validate:"required"`
	StreetAddress  string `json:"streetAddress" validate:"required"`
	PostalCode     string `json:"postalCode" validate:"required"`
	City           string `json:"city" validate:"required"`
	AdditionalInfo string `json:"additionalInfo"`
}

// ValidateCustomer reports the profile fields that must be filled in before
// a checkout is opened.
func ValidateCustomer(c Customer) error {
	return validate.Check(profile(c))
}

type InitiateView struct {
	Session gateway.CheckoutResponse `json:"session"`
	State   State                    `json:"state"`
}

type PaymentView struct {
	Result Result `json:"result"`
	State  State  `json:"state"`
}

type BookingView struct {
	Booking gateway.BookingResponse `json:"booking"`
	State   State                   `json:"state"`
}

func HandleShow() web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		m, err := FromContext(ctx)
		if err != nil {
			return err
		}
		return web.Respond(ctx, w, m.State(), http.StatusOK)
	}
}

func HandleUpdateCustomer() web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		m, err := FromContext(ctx)
		if err != nil {
			return err
		}

		var up CustomerUp
		if err := web.Decode(w, r, &up); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
		}

		if err := validate.Check(up); err != nil {
			return weberr.Invalid(fmt.Errorf("validating data: %w", err))
		}

		m.UpdateCustomer(up)

		return web.Respond(ctx, w, m.State(), http.StatusOK)
	}
}

func HandleInitiate() web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		m, err := FromContext(ctx)
		if err != nil {
			return err
		}
		l, err := cart.FromContext(ctx)
		if err != nil {
			return err
		}

		if l.ItemCount() == 0 {
			err := errors.New("no items to checkout")
			return weberr.NewCodedError(err, "VALIDATION_ERROR", err.Error(), http.StatusUnprocessableEntity, nil)
		}

		if err := ValidateCustomer(m.State().Customer); err != nil {
			return weberr.Invalid(fmt.Errorf("validating customer: %w", err))
		}

		resp, err := m.InitiateCheckout(ctx)
		if err != nil {
			return respondError(err)
		}

		return web.Respond(ctx, w, InitiateView{Session: resp, State: m.State()}, http.StatusOK)
	}
}

func HandlePayment() web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		m, err := FromContext(ctx)
		if err != nil {
			return err
		}

		var in PaymentDetails
		if err := web.Decode(w, r, &in); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
		}

		if err := validate.Check(in); err != nil {
			return weberr.Invalid(fmt.Errorf("validating data: %w", err))
		}

		res, err := m.ProcessPayment(ctx, in)
		if err != nil {
			return respondError(err)
		}

		return web.Respond(ctx, w, PaymentView{Result: res, State: m.State()}, http.StatusOK)
	}
}

func HandleBooking() web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		m, err := FromContext(ctx)
		if err != nil {
			return err
		}

		bk, err := m.CreateBooking(ctx)
		if err != nil {
			return respondError(err)
		}

		return web.Respond(ctx, w, BookingView{Booking: bk, State: m.State()}, http.StatusOK)
	}
}

func HandleVerify() web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		m, err := FromContext(ctx)
		if err != nil {
			return err
		}

		resp, err := m.VerifyPayment(ctx)
		if err != nil {
			return respondError(err)
		}

		return web.Respond(ctx, w, resp, http.StatusOK)
	}
}

func HandleReset() web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		m, err := FromContext(ctx)
		if err != nil {
			return err
		}

		m.Reset()

		return web.Respond(ctx, w, m.State(), http.StatusOK)
	}
}

// respondError maps machine and gateway failures onto API errors. Backend
// client errors keep their status; everything else on the backend side is
// reported as a bad gateway.
func respondError(err error) error {
	switch {
	case errors.Is(err, ErrInProgress),
		errors.Is(err, ErrInvalidState),
		errors.Is(err, ErrNoPaymentSession),
		errors.Is(err, ErrPaymentNotSuccessful),
		errors.Is(err, ErrReset):
		return weberr.Conflict(err)
	}

	ge, ok := gateway.AsError(err)
	if !ok {
		return err
	}

	code := string(ge.Code)
	switch ge.Code {
	case gateway.CodeBadRequest, gateway.CodeUnauthorized, gateway.CodeNotFound, gateway.CodeValidation:
		return weberr.NewCodedError(err, code, ge.Message, ge.Status, ge.Fields)
	case gateway.CodeCircuitOpen:
		return weberr.NewCodedError(err, code, ge.Message, http.StatusServiceUnavailable, nil)
	case gateway.CodeRequest:
		return weberr.NewCodedError(err, code, ge.Message, http.StatusInternalServerError, nil)
	default:
		return weberr.NewCodedError(err, code, ge.Message, http.StatusBadGateway, nil)
	}
}
