package generic

import (
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// PARTNER REPORT - Totals per partner company
// =============================================================================
//
// Unlike the actor reports this one does not recompute anything: it sums the
// raw gross values and the points stored at creation time, then derives the
// fee each partner owes the club.

var (
	feeThreshold = decimal.NewFromInt(100000)
	feeRate      = decimal.RequireFromString("0.0015")
	feeMinimum   = decimal.NewFromInt(500)
)

type PartnerRow struct {
	PartnerID   PartnerID
	PartnerName string
	TotalValue  decimal.Decimal
	TotalPoints decimal.Decimal
	Fee         decimal.Decimal
	Operations  []Transaction
}

type PartnerReport struct {
	Period   Period
	Detailed bool
	Rows     []PartnerRow
	Total    PartnerTotal
}

type PartnerTotal struct {
	Value   decimal.Decimal
	Points  decimal.Decimal
	Fee     decimal.Decimal
	Records int
}

// PartnerFee is 500 up to a total of 100 000, then 0.15% of the excess on top.
func PartnerFee(totalValue decimal.Decimal) decimal.Decimal {
	if totalValue.GreaterThan(feeThreshold) {
		return totalValue.Sub(feeThreshold).Mul(feeRate).Add(feeMinimum)
	}
	return feeMinimum
}

// AggregateByPartner groups transactions by partner, sorted by points descending.
func AggregateByPartner(txs []Transaction, includeOperations bool) PartnerReport {
	byPartner := make(map[PartnerID]*PartnerRow)
	var order []PartnerID

	for _, tx := range txs {
		row, ok := byPartner[tx.PartnerID]
		if !ok {
			row = &PartnerRow{
				PartnerID:   tx.PartnerID,
				PartnerName: tx.PartnerName,
				TotalValue:  decimal.Zero,
				TotalPoints: decimal.Zero,
			}
			byPartner[tx.PartnerID] = row
			order = append(order, tx.PartnerID)
		}
		row.TotalValue = row.TotalValue.Add(tx.grossOrZero())
		row.TotalPoints = row.TotalPoints.Add(tx.Points)
		if includeOperations {
			row.Operations = append(row.Operations, tx)
		}
	}

	rows := make([]PartnerRow, 0, len(order))
	for _, id := range order {
		row := byPartner[id]
		row.Fee = PartnerFee(row.TotalValue)
		rows = append(rows, *row)
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].TotalPoints.GreaterThan(rows[j].TotalPoints)
	})

	total := PartnerTotal{Value: decimal.Zero, Points: decimal.Zero, Fee: decimal.Zero, Records: len(txs)}
	for _, r := range rows {
		total.Value = total.Value.Add(r.TotalValue)
		total.Points = total.Points.Add(r.TotalPoints)
		total.Fee = total.Fee.Add(r.Fee)
	}

	return PartnerReport{Detailed: includeOperations, Rows: rows, Total: total}
}
