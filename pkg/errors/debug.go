package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// ErrorDump is the log-side view of an error chain, including any Postgres
// diagnostics found along it.
type ErrorDump struct {
	TopMessage string `json:"top_message"`
	Code       Code   `json:"code,omitempty"`

	Chain []string `json:"chain,omitempty"`

	PGCode       string `json:"pg_code,omitempty"`
	PGConstraint string `json:"pg_constraint,omitempty"`
	PGTable      string `json:"pg_table,omitempty"`
	PGColumn     string `json:"pg_column,omitempty"`
	PGDetail     string `json:"pg_detail,omitempty"`
	PGMessage    string `json:"pg_message,omitempty"`
}

type constraintRule struct {
	code Code
	msg  string
}

// constraintRules maps named schema constraints to the error a client sees
// when a write trips one.
var constraintRules = map[string]constraintRule{
	"products_stock_non_negative":       {code: CodeConflict, msg: "insufficient stock"},
	"products_price_non_negative":       {code: CodeValidation, msg: "price must not be negative"},
	"order_items_quantity_positive":     {code: CodeValidation, msg: "quantity must be positive"},
	"orders_status_check":               {code: CodeStateConflict, msg: "order status not allowed"},
	"orders_payment_method_check":       {code: CodeValidation, msg: "payment method not allowed"},
	"withdraw_requests_code_key":        {code: CodeConflict, msg: "withdrawal code already issued"},
	"withdraw_requests_amount_positive": {code: CodeValidation, msg: "withdrawal amount must be positive"},
	"withdraw_requests_status_check":    {code: CodeStateConflict, msg: "withdrawal status not allowed"},
}

func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}

	d := ErrorDump{TopMessage: err.Error()}
	if te := As(err); te != nil {
		d.Code = te.Code()
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}
	fillPG(&d, err)
	return d
}

// FromConstraint converts a Postgres integrity violation on a known
// constraint into a typed error. It returns nil for anything else.
func FromConstraint(err error) *Error {
	if err == nil {
		return nil
	}
	var d ErrorDump
	fillPG(&d, err)
	if d.PGConstraint == "" || len(d.PGCode) < 2 || d.PGCode[:2] != "23" {
		return nil
	}
	rule, ok := constraintRules[d.PGConstraint]
	if !ok {
		return nil
	}
	return Wrap(rule.code, err, rule.msg).WithDetails(map[string]any{"constraint": d.PGConstraint})
}

func fillPG(d *ErrorDump, err error) {
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		d.PGCode = pgxErr.Code
		d.PGConstraint = pgxErr.ConstraintName
		d.PGTable = pgxErr.TableName
		d.PGColumn = pgxErr.ColumnName
		d.PGDetail = pgxErr.Detail
		d.PGMessage = pgxErr.Message
		return
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		d.PGCode = string(pqErr.Code)
		d.PGConstraint = pqErr.Constraint
		d.PGTable = pqErr.Table
		d.PGColumn = pqErr.Column
		d.PGDetail = pqErr.Detail
		d.PGMessage = pqErr.Message
	}
}
