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

// AdminListOrders lists every order; ?status= and ?payment_method= narrow
// the page, so the payment queue is status=PENDING&payment_method=QR.
func AdminListOrders(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		params, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filters, err := parseAdminFilters(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		list, err := svc.ListAdminOrders(r.Context(), params, filters)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// AdminConfirmPayment marks a PENDING QR order as paid.
func AdminConfirmPayment(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		adminID, err := userIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.AdminConfirmPayment(r.Context(), orderID, adminID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

func parseAdminFilters(r *http.Request) (orders.AdminOrderFilters, error) {
	var filters orders.AdminOrderFilters
	query := r.URL.Query()
	if raw := strings.ToUpper(strings.TrimSpace(query.Get("status"))); raw != "" {
		status := enums.OrderStatus(raw)
		if !status.IsValid() {
			return filters, pkgerrors.New(pkgerrors.CodeValidation, "invalid status filter").WithDetails(map[string]any{"field": "status"})
		}
		filters.Status = &status
	}
	if raw := strings.ToUpper(strings.TrimSpace(query.Get("payment_method"))); raw != "" {
		method, err := enums.ParsePaymentMethod(raw)
		if err != nil {
			return filters, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment_method filter").WithDetails(map[string]any{"field": "payment_method"})
		}
		filters.PaymentMethod = &method
	}
	return filters, nil
}
