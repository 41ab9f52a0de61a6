package handler

import (
	"github.com/shopspring/decimal"

	dErrors "egireserve/pkg/domain-errors"
)

// createReservationRequest is the body of POST /items/{itemID}/reservations.
// The amount travels as a string so clients cannot lose cents to binary
// floating point.
type createReservationRequest struct {
	AmountEUR string `json:"amount_eur"`
}

func (r createReservationRequest) amount() (decimal.Decimal, error) {
	if r.AmountEUR == "" {
		return decimal.Zero, dErrors.New(dErrors.CodeInvalidInput, "amount_eur is required")
	}
	amt, err := decimal.NewFromString(r.AmountEUR)
	if err != nil {
		return decimal.Zero, dErrors.New(dErrors.CodeInvalidInput, "amount_eur must be a decimal number")
	}
	return amt, nil
}
