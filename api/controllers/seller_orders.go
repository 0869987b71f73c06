package controllers

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/zenergy-backend/api/responses"
	"github.com/angelmondragon/zenergy-backend/api/validators"
	"github.com/angelmondragon/zenergy-backend/internal/orders"
	"github.com/angelmondragon/zenergy-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/zenergy-backend/pkg/errors"
	"github.com/angelmondragon/zenergy-backend/pkg/logger"
)

type sellerStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// SellerListOrders lists orders containing the active store's items.
func SellerListOrders(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		storeID, err := storeIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		list, err := svc.ListStoreOrders(r.Context(), storeID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// SellerAdvanceStatus moves an order to SHIPPING or COMPLETED.
func SellerAdvanceStatus(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		userID, err := userIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		storeID, err := storeIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload sellerStatusRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.SellerAdvanceStatus(r.Context(), orders.SellerStatusInput{
			OrderID:     orderID,
			StoreID:     storeID,
			ActorUserID: userID,
			Status:      enums.OrderStatus(strings.ToUpper(strings.TrimSpace(payload.Status))),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}
