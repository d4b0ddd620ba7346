package generic

import "github.com/shopspring/decimal"

// =============================================================================
// POINT CREDIT CALCULATOR
// =============================================================================

var (
	standardPointDivisor = decimal.NewFromInt(100)
	builderPointDivisor  = decimal.NewFromInt(400)
)

// ComputePoints is the synchronous calculation run when a transaction is
// created: gross / 400 when the category is builder, gross / 100 otherwise.
//
// Not to be confused with the engine's builder discount, which looks at the
// partner of each transaction during a recomputation. This one answers "how
// many points does this one purchase earn right now" and its result is stored
// on the transaction; the engine never reads it back.
func ComputePoints(grossValue decimal.Decimal, actorCategoryIsBuilder bool) decimal.Decimal {
	if actorCategoryIsBuilder {
		return grossValue.Div(builderPointDivisor)
	}
	return grossValue.Div(standardPointDivisor)
}
