package cart

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/svenskhalsovard/storefront/api/web"
	"github.com/svenskhalsovard/storefront/api/weberr"
	"github.com/svenskhalsovard/storefront/core/catalog"
	"github.com/svenskhalsovard/storefront/validate"
)

type ItemNew struct {
	ServiceID    int64        `json:"serviceId" validate:"required,min=1"`
	PurchaseType PurchaseType `json:"purchaseType" validate:"required,oneof=one-time subscription"`
}

type ItemUp struct {
	Quantity int `json:"quantity" validate:"min=1,max=10"`
}

// View is the cart as rendered to the storefront.
type View struct {
	Items                []Line `json:"items"`
	Total                int    `json:"total"`
	ItemCount            int    `json:"itemCount"`
	HasSubscriptionItems bool   `json:"hasSubscriptionItems"`
}

func Summarize(l *Ledger) View {
	return View{
		Items:                l.Lines(),
		Total:                l.Total(),
		ItemCount:            l.ItemCount(),
		HasSubscriptionItems: l.HasSubscriptionItems(),
	}
}

func HandleShow() web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		l, err := FromContext(ctx)
		if err != nil {
			return err
		}
		return web.Respond(ctx, w, Summarize(l), http.StatusOK)
	}
}

func HandleDelete() web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		l, err := FromContext(ctx)
		if err != nil {
			return err
		}
		l.Clear()
		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}
}

func HandleCreateItem(cat *catalog.Catalog) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		l, err := FromContext(ctx)
		if err != nil {
			return err
		}

		var in ItemNew
		if err := web.Decode(w, r, &in); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
		}

		if err := validate.Check(in); err != nil {
			return weberr.Invalid(fmt.Errorf("validating data: %w", err))
		}

		svc, ok := cat.Lookup(in.ServiceID)
		if !ok {
			return weberr.NotFound(fmt.Errorf("service[%d] not found", in.ServiceID))
		}

		if in.PurchaseType == Subscription && !svc.IsSubscription {
			err := fmt.Errorf("service[%d] cannot be bought as a subscription", svc.ID)
			return weberr.Validation(err, map[string]string{"purchaseType": err.Error()})
		}

		l.Add(svc, in.PurchaseType)

		return web.Respond(ctx, w, Summarize(l), http.StatusOK)
	}
}

func HandleUpdateItem() web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		l, err := FromContext(ctx)
		if err != nil {
			return err
		}

		lineID := web.Param(r, "id")
		if err := validate.CheckID(lineID); err != nil {
			return weberr.BadRequest(fmt.Errorf("passed id is not valid: %w", err))
		}

		var in ItemUp
		if err := web.Decode(w, r, &in); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
		}

		if err := validate.Check(in); err != nil {
			return weberr.Invalid(fmt.Errorf("validating data: %w", err))
		}

		if _, ok := l.Line(lineID); !ok {
			return weberr.NotFound(fmt.Errorf("cart line[%s] not found", lineID))
		}

		if err := l.UpdateQuantity(lineID, in.Quantity); err != nil {
			if errors.Is(err, ErrInvalidQuantity) {
				return weberr.Validation(err, map[string]string{"quantity": err.Error()})
			}
			return fmt.Errorf("updating cart line[%s]: %w", lineID, err)
		}

		return web.Respond(ctx, w, Summarize(l), http.StatusOK)
	}
}

func HandleDeleteItem() web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		l, err := FromContext(ctx)
		if err != nil {
			return err
		}

		lineID := web.Param(r, "id")
		if err := validate.CheckID(lineID); err != nil {
			return weberr.BadRequest(fmt.Errorf("passed id is not valid: %w", err))
		}

		l.Remove(lineID)

		return web.Respond(ctx, w, Summarize(l), http.StatusOK)
	}
}
