package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/svenskhalsovard/storefront/core/checkout"
	"github.com/svenskhalsovard/storefront/gateway"
	"github.com/svenskhalsovard/storefront/storage"
	"github.com/svenskhalsovard/storefront/validate"
)

func newCheckoutCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkout",
		Short: "Pay for the cart and book its services",
		Long: `Pay for the cart and book its services.

The customer profile is saved locally, so it only has to be given once.

Examples:
  storefrontctl checkout customer --first-name Anna --last-name Svensson \
    --email anna@example.se --phone 0701234567 \
    --street "Storgatan 1" --postal-code 11122 --city Stockholm
  storefrontctl checkout --method card
  storefrontctl checkout book`,
		Args: cobra.NoArgs,
	}

	var method string
	cmd.Flags().StringVarP(&method, "method", "m", "card", "payment method (card, invoice, direct_debit, swish)")
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return a.checkout(cmd, method)
	}

	cmd.AddCommand(newCustomerCmd(a))
	cmd.AddCommand(newBookCmd(a))
	return cmd
}

func newCustomerCmd(a *app) *cobra.Command {
	var up checkout.CustomerUp

	cmd := &cobra.Command{
		Use:   "customer",
		Short: "Show or update the saved customer profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validate.Check(up); err != nil {
				return fmt.Errorf("invalid customer: %w", err)
			}

			c := a.store.Checkout.UpdateCustomer(up)
			if err := a.local.Set(cmd.Context(), customerKey, c, 0); err != nil {
				return fmt.Errorf("saving customer: %w", err)
			}

			a.printf("%s %s <%s>\n", c.FirstName, c.LastName, c.Email)
			a.printf("  %s\n  %s %s\n  %s\n", c.StreetAddress, c.PostalCode, c.City, c.Phone)
			if c.AdditionalInfo != "" {
				a.printf("  %s\n", c.AdditionalInfo)
			}
			return nil
		},
	}

	flag := func(dst **string, name, usage string) {
		cmd.Flags().Func(name, usage, func(v string) error {
			*dst = &v
			return nil
		})
	}
	flag(&up.FirstName, "first-name", "first name")
	flag(&up.LastName, "last-name", "last name")
	flag(&up.Email, "email", "email address")
	flag(&up.Phone, "phone", "phone number")
	flag(&up.StreetAddress, "street", "street address")
	flag(&up.PostalCode, "postal-code", "postal code")
	flag(&up.City, "city", "city")
	flag(&up.AdditionalInfo, "info", "additional information for the clinic")

	return cmd
}

func (a *app) checkout(cmd *cobra.Command, method string) error {
	ctx := cmd.Context()
	m := a.store.Checkout

	paid, err := a.paidPayment(ctx)
	if err != nil {
		return err
	}
	if paid != nil {
		return fmt.Errorf("payment %d is paid but not booked, run 'checkout book'", paid.ID)
	}

	if a.store.Cart.ItemCount() == 0 {
		return errors.New("no items to checkout")
	}

	if err := checkout.ValidateCustomer(m.State().Customer); err != nil {
		return fmt.Errorf("customer profile incomplete, run 'checkout customer': %w", err)
	}

	details := checkout.PaymentDetails{Method: method}
	if err := validate.Check(details); err != nil {
		return fmt.Errorf("invalid payment: %w", err)
	}

	total := a.store.Cart.Total()
	session, err := m.InitiateCheckout(ctx)
	if err != nil {
		return fmt.Errorf("opening payment: %s", m.State().Payment.ErrorMessage)
	}
	a.printf("payment %d opened for %d kr\n", session.PaymentID, total)

	res, err := m.ProcessPayment(ctx, details)
	st := m.State()
	if err != nil {
		if st.Payment.Status == checkout.PaymentSuccess {
			if err := a.local.Set(ctx, paymentKey, st.Payment, 0); err != nil {
				a.log.WithError(err).Error("saving payment")
			}
			return fmt.Errorf("payment %d succeeded but the booking failed: %s, run 'checkout book' to retry", st.Payment.ID, st.Booking.ErrorMessage)
		}
		return fmt.Errorf("payment failed: %s", st.Payment.ErrorMessage)
	}

	a.printf("payment %d %s\n", res.Payment.ID, res.Payment.Status)
	a.printf("booking %s confirmed\n", bookingRef(st.Booking))
	return nil
}

func newBookCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "book",
		Short: "Retry the booking of a payment whose booking failed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			m := a.store.Checkout

			paid, err := a.paidPayment(ctx)
			if err != nil {
				return err
			}
			if paid == nil {
				return errors.New("no payment is waiting for a booking")
			}

			if err := m.Restore(*paid); err != nil {
				return fmt.Errorf("resuming payment %d: %w", paid.ID, err)
			}

			if _, err := m.CreateBooking(ctx); err != nil {
				return fmt.Errorf("booking payment %d failed: %s", paid.ID, m.State().Booking.ErrorMessage)
			}

			if err := a.local.Remove(ctx, paymentKey); err != nil {
				return fmt.Errorf("removing saved payment: %w", err)
			}

			a.printf("booking %s confirmed\n", bookingRef(m.State().Booking))
			return nil
		},
	}
}

// paidPayment returns the saved payment whose booking failed, if any.
func (a *app) paidPayment(ctx context.Context) (*checkout.Payment, error) {
	var p checkout.Payment
	err := a.local.Get(ctx, paymentKey, &p)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("loading saved payment: %w", err)
	}
	return &p, nil
}

func bookingRef(b checkout.Booking) string {
	if b.BookingNumber != "" {
		return b.BookingNumber
	}
	return fmt.Sprint(b.ID)
}

func newVerifyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <payment-id>",
		Short: "Ask the backend for the status of a payment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid payment id %q", args[0])
			}

			p, err := a.gw.VerifyPayment(cmd.Context(), id)
			if err != nil {
				return errors.New(gateway.Message(err, "could not verify the payment"))
			}

			a.printf("payment %d: %s", p.ID, p.Status)
			if p.Amount > 0 {
				a.printf(", %.2f %s", p.Amount, p.Currency)
			}
			a.printf("\n")
			return nil
		},
	}
}
