package types

import (
	"fmt"
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// Plan is a purchase description: an hourly rate and a whole number of
// hours. The charged price is always HourlyRate * DurationHours; the flat
// plan constructors below derive their advertised price from the same
// formula, so the advertised and charged amounts cannot diverge.
type Plan struct {
	HourlyRate    decimal.Decimal `json:"hourlyRate" validate:"required"`
	DurationHours int             `json:"durationHours" validate:"gte=1,lte=8760"`
}

// NewPlan builds and validates a plan.
func NewPlan(hourlyRate decimal.Decimal, durationHours int) (Plan, error) {
	p := Plan{HourlyRate: hourlyRate, DurationHours: durationHours}
	if err := Validate(&p); err != nil {
		return Plan{}, err
	}
	if hourlyRate.IsNegative() {
		return Plan{}, &Error{
			Code:    ErrInvalidPlan,
			Message: "hourly rate cannot be negative",
		}
	}
	return p, nil
}

// Flat plan constructors. Display names only; pricing stays hourly.
func HourPlan(hourlyRate decimal.Decimal) (Plan, error)  { return NewPlan(hourlyRate, 1) }
func DayPlan(hourlyRate decimal.Decimal) (Plan, error)   { return NewPlan(hourlyRate, 24) }
func WeekPlan(hourlyRate decimal.Decimal) (Plan, error)  { return NewPlan(hourlyRate, 7*24) }
func MonthPlan(hourlyRate decimal.Decimal) (Plan, error) { return NewPlan(hourlyRate, 30*24) }

// Price is the display-unit amount charged for the plan.
func (p Plan) Price() decimal.Decimal {
	return p.HourlyRate.Mul(decimal.NewFromInt(int64(p.DurationHours)))
}

// BaseUnits converts the price to integer base units for the given chain.
// The conversion must be exact; rates with more precision than the chain
// carries are rejected rather than rounded.
func (p Plan) BaseUnits(m Method) (*big.Int, error) {
	if !m.Valid() {
		return nil, &Error{
			Code:    ErrInvalidPlan,
			Message: fmt.Sprintf("unsupported payment method: %s", m),
		}
	}
	units := p.Price().Shift(m.Decimals())
	if !units.IsInteger() {
		return nil, &Error{
			Code:    ErrInvalidPlan,
			Message: fmt.Sprintf("price %s does not convert exactly to %s base units", p.Price(), m),
		}
	}
	return units.BigInt(), nil
}

// Duration is the entitlement extension the plan buys.
func (p Plan) Duration() time.Duration {
	return time.Duration(p.DurationHours) * time.Hour
}
