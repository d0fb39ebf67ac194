// Package bondyield converts bond futures prices into implied yields.
//
// The futures price is treated as the price of a synthetic bullet bond with
// an annual coupon, a whole number of years to maturity and a face value. The
// implied yield is the internal rate of return of buying that bond at the
// futures price and holding it to maturity.
package bondyield

import (
	"errors"
	"fmt"
	"math"
)

const (
	maxNewtonIterations    = 50
	maxBisectionIterations = 200
	tolerance              = 1e-10

	// Search bracket for the bisection fallback. Rates outside it are not
	// meaningful for a government bond.
	minRate = -0.99
	maxRate = 10.0
)

var (
	// ErrInvalidPrice is returned for non-positive or non-finite prices
	ErrInvalidPrice = errors.New("price must be a positive finite number")
	// ErrInvalidParams is returned when the bond schedule is malformed
	ErrInvalidParams = errors.New("invalid bond parameters")
	// ErrNoRoot is returned when no rate in the search bracket zeroes the NPV
	ErrNoRoot = errors.New("no internal rate of return in search bracket")
	// ErrNoConvergence is returned when the solver exhausts its iteration budget
	ErrNoConvergence = errors.New("internal rate of return did not converge")
)

// Params describes the synthetic bond behind a futures contract
type Params struct {
	Coupon float64 // annual coupon rate, 0.06 for 6%
	Years  int     // whole years to maturity
	Face   float64
}

// DefaultParams is the 6% coupon, 10 year, 100 face notional bond
func DefaultParams() Params {
	return Params{Coupon: 0.06, Years: 10, Face: 100}
}

// Validate checks the bond terms
func (p Params) Validate() error {
	switch {
	case p.Years < 1:
		return fmt.Errorf("%w: maturity must be at least one year, got %d", ErrInvalidParams, p.Years)
	case !(p.Face > 0) || math.IsInf(p.Face, 0):
		return fmt.Errorf("%w: face must be positive, got %v", ErrInvalidParams, p.Face)
	case !(p.Coupon >= 0) || math.IsInf(p.Coupon, 0):
		return fmt.Errorf("%w: coupon must be non-negative, got %v", ErrInvalidParams, p.Coupon)
	}
	return nil
}

// CashFlows returns {-price, cf1, ..., cfn}: n coupons of Coupon*Face with the
// face value added to the last one.
func (p Params) CashFlows(price float64) []float64 {
	flows := make([]float64, p.Years+1)
	flows[0] = -price
	for t := 1; t <= p.Years; t++ {
		flows[t] = p.Coupon * p.Face
	}
	flows[p.Years] += p.Face
	return flows
}

// ImpliedYield returns the implied yield, in percent, of a futures price
func ImpliedYield(price float64, p Params) (float64, error) {
	if !(price > 0) || math.IsInf(price, 0) {
		return 0, fmt.Errorf("%w: %v", ErrInvalidPrice, price)
	}
	if err := p.Validate(); err != nil {
		return 0, err
	}

	r, err := IRR(p.CashFlows(price))
	if err != nil {
		return 0, err
	}
	return r * 100, nil
}

// NPV returns the net present value of flows at rate, flows[0] being undiscounted
func NPV(rate float64, flows []float64) float64 {
	var npv float64
	for t, cf := range flows {
		npv += cf / math.Pow(1+rate, float64(t))
	}
	return npv
}

func dNPV(rate float64, flows []float64) float64 {
	var d float64
	for t, cf := range flows {
		if t == 0 {
			continue
		}
		d -= float64(t) * cf / math.Pow(1+rate, float64(t+1))
	}
	return d
}

// IRR solves NPV(r, flows) = 0. Newton's method is tried first from a 10%
// guess; if it leaves the bracket or stalls, bisection over [minRate, maxRate]
// takes over.
func IRR(flows []float64) (float64, error) {
	if len(flows) < 2 {
		return 0, fmt.Errorf("%w: need at least two cash flows", ErrInvalidParams)
	}

	if r, ok := newton(flows, 0.1); ok {
		return r, nil
	}
	return bisect(flows)
}

func newton(flows []float64, guess float64) (float64, bool) {
	r := guess
	for i := 0; i < maxNewtonIterations; i++ {
		f := NPV(r, flows)
		d := dNPV(r, flows)
		if d == 0 || math.IsNaN(d) || math.IsInf(d, 0) {
			return 0, false
		}

		next := r - f/d
		if math.IsNaN(next) || next <= minRate || next >= maxRate {
			return 0, false
		}
		if math.Abs(next-r) < tolerance {
			return next, true
		}
		r = next
	}
	return 0, false
}

func bisect(flows []float64) (float64, error) {
	lo, hi := minRate, maxRate
	flo, fhi := NPV(lo, flows), NPV(hi, flows)
	if math.IsNaN(flo) || math.IsNaN(fhi) || flo*fhi > 0 {
		return 0, ErrNoRoot
	}

	for i := 0; i < maxBisectionIterations; i++ {
		mid := (lo + hi) / 2
		fmid := NPV(mid, flows)
		if fmid == 0 || (hi-lo)/2 < tolerance {
			return mid, nil
		}
		if flo*fmid < 0 {
			hi = mid
		} else {
			lo, flo = mid, fmid
		}
	}
	return 0, ErrNoConvergence
}
