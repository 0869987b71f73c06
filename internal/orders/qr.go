package orders

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/zenergy-backend/pkg/config"
	"github.com/angelmondragon/zenergy-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/zenergy-backend/pkg/errors"
)

// PaymentQR renders the bank transfer QR for a QR order owned by userID.
func (s *service) PaymentQR(ctx context.Context, orderID, userID uuid.UUID) (*PaymentQRView, error) {
	order, err := s.ownedOrder(ctx, orderID, userID)
	if err != nil {
		return nil, err
	}
	if order.PaymentMethod != enums.PaymentMethodQR {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order is not paid by bank transfer QR")
	}
	if order.Status != enums.OrderStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("order payment already settled: order is %s", order.Status))
	}
	if !s.qr.Configured() {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payment QR account not configured")
	}

	amount := order.TotalAmount.Round(0).IntPart()
	if amount <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order amount must be positive")
	}
	description := PaymentDescription(order.ID)
	return &PaymentQRView{
		OrderID:     order.ID,
		Amount:      amount,
		Description: description,
		QRURL:       BuildVietQRURL(s.qr, decimal.NewFromInt(amount), description),
	}, nil
}

// PaymentDescription is the transfer memo admins match against bank statements.
func PaymentDescription(orderID uuid.UUID) string {
	return "ZENERGY ORDER #" + orderID.String()
}

// BuildVietQRURL renders an img.vietqr.io quick link for the receiving account.
func BuildVietQRURL(cfg config.VietQRConfig, amount decimal.Decimal, description string) string {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = "https://img.vietqr.io/image"
	}
	template := cfg.Template
	if template == "" {
		template = "compact2"
	}
	q := url.Values{}
	q.Set("amount", amount.String())
	q.Set("addInfo", description)
	if cfg.AccountName != "" {
		q.Set("accountName", cfg.AccountName)
	}
	return fmt.Sprintf("%s/%s-%s-%s.png?%s",
		base,
		url.PathEscape(strings.TrimSpace(cfg.BankBin)),
		url.PathEscape(strings.TrimSpace(cfg.AccountNo)),
		template,
		q.Encode(),
	)
}
