package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/svenskhalsovard/storefront/config"
	"github.com/svenskhalsovard/storefront/core/cart"
	"github.com/svenskhalsovard/storefront/core/catalog"
	"github.com/svenskhalsovard/storefront/gateway"
	"github.com/svenskhalsovard/storefront/storage"
)

func intp(v int) *int { return &v }

func strp(v string) *string { return &v }

var (
	bloodBasic   = catalog.Service{ID: 3, Name: "Blodprov - Bas", Price: 995}
	bloodPremium = catalog.Service{ID: 4, Name: "Blodprov - Premium", Price: 2495, DiscountedPrice: intp(1995)}
)

var networkErr = &gateway.Error{
	Code:    gateway.CodeNetwork,
	Message: "could not connect to the server, check your internet connection",
	Err:     errors.New("dial tcp: connection refused"),
}

type fakeGateway struct {
	initiate func(gateway.CheckoutRequest) (gateway.CheckoutResponse, error)
	payment  func(gateway.PaymentRequest) (gateway.PaymentResponse, error)
	verify   func(int64) (gateway.PaymentResponse, error)
	booking  func(gateway.BookingRequest) (gateway.BookingResponse, error)

	bookings int
}

func (f *fakeGateway) InitiateCheckout(ctx context.Context, req gateway.CheckoutRequest) (gateway.CheckoutResponse, error) {
	if f.initiate != nil {
		return f.initiate(req)
	}
	return gateway.CheckoutResponse{PaymentID: 17, Status: "pending"}, nil
}

func (f *fakeGateway) ProcessPayment(ctx context.Context, req gateway.PaymentRequest) (gateway.PaymentResponse, error) {
	if f.payment != nil {
		return f.payment(req)
	}
	return gateway.PaymentResponse{ID: req.PaymentID, Status: "completed"}, nil
}

func (f *fakeGateway) VerifyPayment(ctx context.Context, id int64) (gateway.PaymentResponse, error) {
	if f.verify != nil {
		return f.verify(id)
	}
	return gateway.PaymentResponse{ID: id, Status: "completed"}, nil
}

func (f *fakeGateway) CreateBooking(ctx context.Context, req gateway.BookingRequest) (gateway.BookingResponse, error) {
	f.bookings++
	if f.booking != nil {
		return f.booking(req)
	}
	return gateway.BookingResponse{BookingID: 99, BookingNumber: "BK-0099", Status: "confirmed"}, nil
}

func testLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newLedger(t *testing.T) *cart.Ledger {
	t.Helper()

	b, err := storage.OpenBolt(filepath.Join(t.TempDir(), "checkout.db"))
	if err != nil {
		t.Fatalf("opening bolt: %v", err)
	}
	t.Cleanup(func() { b.Close() })

	l, err := cart.Open(context.Background(), b.Namespace("test"), nil, 0, testLogger())
	if err != nil {
		t.Fatalf("opening ledger: %v", err)
	}
	return l
}

func newMachine(t *testing.T, gw *fakeGateway) (*Machine, *cart.Ledger) {
	t.Helper()

	l := newLedger(t)
	l.Add(bloodBasic, cart.OneTime)
	l.Add(bloodBasic, cart.OneTime)
	l.Add(bloodPremium, cart.OneTime)

	m := New(l, gw, testLogger())
	m.UpdateCustomer(CustomerUp{
		FirstName:     strp("Anna"),
		LastName:      strp("Svensson"),
		Email:         strp("anna@example.se"),
		Phone:         strp("0701234567"),
		StreetAddress: strp("Storgatan 1"),
		PostalCode:    strp("11122"),
		City:          strp("Stockholm"),
	})
	return m, l
}

func TestUpdateCustomerMerges(t *testing.T) {
	m, _ := newMachine(t, &fakeGateway{})

	got := m.UpdateCustomer(CustomerUp{City: strp("Göteborg"), AdditionalInfo: strp("Porttelefon 12")})

	want := Customer{
		FirstName:      "Anna",
		LastName:       "Svensson",
		Email:          "anna@example.se",
		Phone:          "0701234567",
		StreetAddress:  "Storgatan 1",
		PostalCode:     "11122",
		City:           "Göteborg",
		AdditionalInfo: "Porttelefon 12",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("customer mismatch (-want +got):\n%s", diff)
	}
}

func TestInitiateCheckoutSendsCart(t *testing.T) {
	var sent gateway.CheckoutRequest
	gw := &fakeGateway{
		initiate: func(req gateway.CheckoutRequest) (gateway.CheckoutResponse, error) {
			sent = req
			return gateway.CheckoutResponse{PaymentID: 17}, nil
		},
	}
	m, _ := newMachine(t, gw)

	if _, err := m.InitiateCheckout(context.Background()); err != nil {
		t.Fatalf("initiate: %v", err)
	}

	wantItems := []gateway.CheckoutItem{
		{ServiceID: 3, Quantity: 2, PurchaseType: "one-time", Price: 995},
		{ServiceID: 4, Quantity: 1, PurchaseType: "one-time", Price: 1995},
	}
	if diff := cmp.Diff(wantItems, sent.Items); diff != "" {
		t.Fatalf("items mismatch (-want +got):\n%s", diff)
	}
	if sent.TotalAmount != 2*995+1995 {
		t.Fatalf("expected total %d, but got %d", 2*995+1995, sent.TotalAmount)
	}
	if sent.Customer.Email != "anna@example.se" {
		t.Fatalf("expected customer email to be sent, but got %q", sent.Customer.Email)
	}

	st := m.State()
	if st.Payment.Status != PaymentPending || st.Payment.ID != 17 {
		t.Fatalf("expected pending payment 17, but got %+v", st.Payment)
	}
}

func TestInitiateCheckoutNetworkError(t *testing.T) {
	gw := &fakeGateway{
		initiate: func(gateway.CheckoutRequest) (gateway.CheckoutResponse, error) {
			return gateway.CheckoutResponse{}, networkErr
		},
	}
	m, _ := newMachine(t, gw)

	_, err := m.InitiateCheckout(context.Background())
	if ge, ok := gateway.AsError(err); !ok || ge.Code != gateway.CodeNetwork {
		t.Fatalf("expected network error, but got %v", err)
	}

	st := m.State()
	if st.Payment.Status != PaymentFailed {
		t.Fatalf("expected payment failed, but got %q", st.Payment.Status)
	}
	if st.Payment.ErrorMessage != networkErr.Message {
		t.Fatalf("expected message %q, but got %q", networkErr.Message, st.Payment.ErrorMessage)
	}
	if st.Booking.Status != BookingUnset {
		t.Fatalf("expected booking unset, but got %q", st.Booking.Status)
	}

	if _, err := m.InitiateCheckout(context.Background()); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState after a failed payment, but got %v", err)
	}
}

func TestInitiateCheckoutFallbackMessage(t *testing.T) {
	gw := &fakeGateway{
		initiate: func(gateway.CheckoutRequest) (gateway.CheckoutResponse, error) {
			return gateway.CheckoutResponse{}, errors.New("boom")
		},
	}
	m, _ := newMachine(t, gw)

	if _, err := m.InitiateCheckout(context.Background()); err == nil {
		t.Fatal("expected initiate to fail")
	}
	if got := m.State().Payment.ErrorMessage; got != msgInitiateFailed {
		t.Fatalf("expected fallback message %q, but got %q", msgInitiateFailed, got)
	}
}

func TestProcessPaymentChainsBooking(t *testing.T) {
	var booked gateway.BookingRequest
	gw := &fakeGateway{
		booking: func(req gateway.BookingRequest) (gateway.BookingResponse, error) {
			booked = req
			return gateway.BookingResponse{ID: 99, BookingNumber: "BK-0099"}, nil
		},
	}
	m, l := newMachine(t, gw)

	if _, err := m.InitiateCheckout(context.Background()); err != nil {
		t.Fatalf("initiate: %v", err)
	}

	res, err := m.ProcessPayment(context.Background(), PaymentDetails{Method: "card"})
	if err != nil {
		t.Fatalf("payment: %v", err)
	}
	if res.Booking == nil || res.Booking.Identifier() != 99 {
		t.Fatalf("expected booking 99 in result, but got %+v", res.Booking)
	}

	if booked.PaymentID != 17 || len(booked.Items) != 2 {
		t.Fatalf("unexpected booking request %+v", booked)
	}

	st := m.State()
	if st.Payment.Status != PaymentSuccess {
		t.Fatalf("expected payment success, but got %q", st.Payment.Status)
	}
	if !st.Complete() || st.Booking.ID != 99 || st.Booking.BookingNumber != "BK-0099" {
		t.Fatalf("expected confirmed booking 99, but got %+v", st.Booking)
	}
	if got := l.ItemCount(); got != 0 {
		t.Fatalf("expected cart to be empty after booking, but got %d items", got)
	}
}

func TestProcessPaymentFailure(t *testing.T) {
	gw := &fakeGateway{
		payment: func(gateway.PaymentRequest) (gateway.PaymentResponse, error) {
			return gateway.PaymentResponse{}, &gateway.Error{Code: gateway.CodeBadRequest, Message: "card declined", Status: 400}
		},
	}
	m, l := newMachine(t, gw)

	if _, err := m.InitiateCheckout(context.Background()); err != nil {
		t.Fatalf("initiate: %v", err)
	}

	res, err := m.ProcessPayment(context.Background(), PaymentDetails{Method: "card"})
	if err == nil {
		t.Fatal("expected payment to fail")
	}
	if res.Booking != nil {
		t.Fatalf("expected no booking, but got %+v", res.Booking)
	}

	st := m.State()
	if st.Payment.Status != PaymentFailed || st.Payment.ErrorMessage != "card declined" {
		t.Fatalf("expected failed payment with backend message, but got %+v", st.Payment)
	}
	if st.Booking.Status != BookingUnset || gw.bookings != 0 {
		t.Fatalf("expected booking untouched, but got %+v after %d calls", st.Booking, gw.bookings)
	}
	if got := l.ItemCount(); got != 3 {
		t.Fatalf("expected cart intact, but got %d items", got)
	}
}

func TestBookingFailureKeepsCart(t *testing.T) {
	fail := true
	gw := &fakeGateway{
		booking: func(gateway.BookingRequest) (gateway.BookingResponse, error) {
			if fail {
				return gateway.BookingResponse{}, &gateway.Error{Code: gateway.CodeServer, Message: "a server error occurred", Status: 500}
			}
			return gateway.BookingResponse{BookingID: 5}, nil
		},
	}
	m, l := newMachine(t, gw)

	if _, err := m.InitiateCheckout(context.Background()); err != nil {
		t.Fatalf("initiate: %v", err)
	}

	res, err := m.ProcessPayment(context.Background(), PaymentDetails{Method: "invoice"})
	if err == nil {
		t.Fatal("expected booking failure to be returned")
	}
	if res.Payment.ID != 17 {
		t.Fatalf("expected payment result to be kept, but got %+v", res.Payment)
	}

	st := m.State()
	if st.Payment.Status != PaymentSuccess {
		t.Fatalf("expected payment to stay successful, but got %q", st.Payment.Status)
	}
	if st.Booking.Status != BookingFailed || st.Booking.ErrorMessage != "a server error occurred" {
		t.Fatalf("expected failed booking, but got %+v", st.Booking)
	}
	if got := l.ItemCount(); got != 3 {
		t.Fatalf("expected cart intact, but got %d items", got)
	}

	fail = false
	if _, err := m.CreateBooking(context.Background()); err != nil {
		t.Fatalf("retrying booking: %v", err)
	}
	if st := m.State(); !st.Complete() || st.Booking.ID != 5 {
		t.Fatalf("expected confirmed booking 5, but got %+v", st.Booking)
	}
	if got := l.ItemCount(); got != 0 {
		t.Fatalf("expected cart to be empty, but got %d items", got)
	}

	if _, err := m.CreateBooking(context.Background()); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState for a second booking, but got %v", err)
	}
}

func TestGuards(t *testing.T) {
	gw := &fakeGateway{}
	m, _ := newMachine(t, gw)

	if _, err := m.ProcessPayment(context.Background(), PaymentDetails{Method: "card"}); !errors.Is(err, ErrNoPaymentSession) {
		t.Fatalf("expected ErrNoPaymentSession, but got %v", err)
	}
	if _, err := m.VerifyPayment(context.Background()); !errors.Is(err, ErrNoPaymentSession) {
		t.Fatalf("expected ErrNoPaymentSession from verify, but got %v", err)
	}

	if _, err := m.InitiateCheckout(context.Background()); err != nil {
		t.Fatalf("initiate: %v", err)
	}

	if _, err := m.CreateBooking(context.Background()); !errors.Is(err, ErrPaymentNotSuccessful) {
		t.Fatalf("expected ErrPaymentNotSuccessful, but got %v", err)
	}
	if st := m.State(); st.Booking.Status != BookingUnset || gw.bookings != 0 {
		t.Fatalf("expected booking never to go pending, but got %+v", st.Booking)
	}

	// the guards must release the machine
	if _, err := m.InitiateCheckout(context.Background()); err != nil {
		t.Fatalf("re-initiate: %v", err)
	}
}

func TestVerifyPaymentLeavesState(t *testing.T) {
	gw := &fakeGateway{
		verify: func(id int64) (gateway.PaymentResponse, error) {
			return gateway.PaymentResponse{ID: id, Status: "completed"}, nil
		},
	}
	m, _ := newMachine(t, gw)

	if _, err := m.InitiateCheckout(context.Background()); err != nil {
		t.Fatalf("initiate: %v", err)
	}
	before := m.State()

	resp, err := m.VerifyPayment(context.Background())
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if resp.ID != 17 {
		t.Fatalf("expected payment 17 to be verified, but got %d", resp.ID)
	}
	if diff := cmp.Diff(before, m.State()); diff != "" {
		t.Fatalf("state changed (-before +after):\n%s", diff)
	}
}

func TestResetKeepsCustomerAndCart(t *testing.T) {
	gw := &fakeGateway{
		initiate: func(gateway.CheckoutRequest) (gateway.CheckoutResponse, error) {
			return gateway.CheckoutResponse{}, networkErr
		},
	}
	m, l := newMachine(t, gw)
	m.InitiateCheckout(context.Background())

	m.Reset()

	st := m.State()
	if diff := cmp.Diff(Payment{}, st.Payment); diff != "" {
		t.Fatalf("payment not reset (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(Booking{}, st.Booking); diff != "" {
		t.Fatalf("booking not reset (-want +got):\n%s", diff)
	}
	if st.Customer.FirstName != "Anna" {
		t.Fatalf("expected customer to be kept, but got %+v", st.Customer)
	}
	if got := l.ItemCount(); got != 3 {
		t.Fatalf("expected cart to be kept, but got %d items", got)
	}
}

func TestConcurrentOperationFailsFast(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	gw := &fakeGateway{
		initiate: func(gateway.CheckoutRequest) (gateway.CheckoutResponse, error) {
			close(started)
			<-release
			return gateway.CheckoutResponse{PaymentID: 17}, nil
		},
	}
	m, _ := newMachine(t, gw)

	done := make(chan error, 1)
	go func() {
		_, err := m.InitiateCheckout(context.Background())
		done <- err
	}()
	<-started

	if _, err := m.InitiateCheckout(context.Background()); !errors.Is(err, ErrInProgress) {
		t.Fatalf("expected ErrInProgress, but got %v", err)
	}
	if st := m.State(); st.Payment.Status != PaymentPending {
		t.Fatalf("expected pending payment while in flight, but got %q", st.Payment.Status)
	}

	close(release)
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("initiate: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("initiate did not return")
	}

	if st := m.State(); st.Payment.ID != 17 {
		t.Fatalf("expected payment 17, but got %+v", st.Payment)
	}
}

func TestResetDiscardsInFlightResult(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	gw := &fakeGateway{
		initiate: func(gateway.CheckoutRequest) (gateway.CheckoutResponse, error) {
			close(started)
			<-release
			return gateway.CheckoutResponse{PaymentID: 17}, nil
		},
	}
	m, _ := newMachine(t, gw)

	done := make(chan error, 1)
	go func() {
		_, err := m.InitiateCheckout(context.Background())
		done <- err
	}()
	<-started

	m.Reset()
	close(release)

	if err := <-done; !errors.Is(err, ErrReset) {
		t.Fatalf("expected ErrReset, but got %v", err)
	}
	if diff := cmp.Diff(Payment{}, m.State().Payment); diff != "" {
		t.Fatalf("expected result to be discarded (-want +got):\n%s", diff)
	}
}

func TestReinitiateFailureDropsPaymentID(t *testing.T) {
	calls := 0
	gw := &fakeGateway{
		initiate: func(gateway.CheckoutRequest) (gateway.CheckoutResponse, error) {
			calls++
			if calls == 1 {
				return gateway.CheckoutResponse{PaymentID: 17}, nil
			}
			return gateway.CheckoutResponse{}, networkErr
		},
	}
	m, _ := newMachine(t, gw)

	if _, err := m.InitiateCheckout(context.Background()); err != nil {
		t.Fatalf("initiate: %v", err)
	}
	if _, err := m.InitiateCheckout(context.Background()); err == nil {
		t.Fatal("expected second initiate to fail")
	}

	want := Payment{Status: PaymentFailed, ErrorMessage: networkErr.Message}
	if diff := cmp.Diff(want, m.State().Payment); diff != "" {
		t.Fatalf("payment mismatch (-want +got):\n%s", diff)
	}
	if _, err := m.VerifyPayment(context.Background()); !errors.Is(err, ErrNoPaymentSession) {
		t.Fatalf("expected ErrNoPaymentSession, but got %v", err)
	}
}

func TestCallerCancelDoesNotAbortPayment(t *testing.T) {
	var charged atomic.Bool

	r := mux.NewRouter()
	r.HandleFunc("/api/checkout/initiate", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"data":    map[string]any{"paymentId": 17, "status": "created"},
		})
	}).Methods(http.MethodPost)
	r.HandleFunc("/api/checkout/payment", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		charged.Store(true)
		writeJSON(w, http.StatusOK, map[string]any{"id": 17, "status": "completed"})
	}).Methods(http.MethodPost)
	r.HandleFunc("/api/bookings", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusCreated, map[string]any{"bookingId": 99, "bookingNumber": "BK-0099"})
	}).Methods(http.MethodPost)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	gw := gateway.New(config.Gateway{URL: srv.URL + "/api", Timeout: 5 * time.Second}, testLogger())

	l := newLedger(t)
	l.Add(bloodBasic, cart.OneTime)
	m := New(l, gw, testLogger())

	if _, err := m.InitiateCheckout(context.Background()); err != nil {
		t.Fatalf("initiate: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	res, err := m.ProcessPayment(ctx, PaymentDetails{Method: "card"})
	if err != nil {
		t.Fatalf("expected payment to complete, but got %v", err)
	}
	if !charged.Load() {
		t.Fatal("expected backend to have charged")
	}
	if res.Booking == nil || res.Booking.BookingNumber != "BK-0099" {
		t.Fatalf("expected booking BK-0099, but got %+v", res.Booking)
	}

	st := m.State()
	if st.Payment.Status != PaymentSuccess {
		t.Fatalf("expected payment success, but got %+v", st.Payment)
	}
	if st.Booking.Status != BookingConfirmed {
		t.Fatalf("expected booking confirmed, but got %+v", st.Booking)
	}
	if n := l.ItemCount(); n != 0 {
		t.Fatalf("expected cleared cart, but got %d items", n)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func TestRestoreRetriesBooking(t *testing.T) {
	m, l := newMachine(t, &fakeGateway{})

	if err := m.Restore(Payment{ID: 17, Status: PaymentPending}); !errors.Is(err, ErrPaymentNotSuccessful) {
		t.Fatalf("expected ErrPaymentNotSuccessful, but got %v", err)
	}

	paid := Payment{ID: 17, Status: PaymentSuccess}
	if err := m.Restore(paid); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if err := m.Restore(paid); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState on a second restore, but got %v", err)
	}

	bk, err := m.CreateBooking(context.Background())
	if err != nil {
		t.Fatalf("booking: %v", err)
	}
	if bk.BookingNumber != "BK-0099" {
		t.Fatalf("expected booking BK-0099, but got %+v", bk)
	}
	if st := m.State(); st.Booking.Status != BookingConfirmed || st.Payment.ID != 17 {
		t.Fatalf("expected confirmed booking for payment 17, but got %+v", st)
	}
	if n := l.ItemCount(); n != 0 {
		t.Fatalf("expected cleared cart, but got %d items", n)
	}
}
