/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY:
  Monetary values are decimal strings ("7200.00"), never floats. Formatting
  with currency symbols is left to the client.

VALIDATION:
  Request bodies carry go-playground/validator tags and are checked by
  decodeJSONBody before a handler sees them.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/tiers.go: TierJSON type
*/
package api

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/loyalty-engine/factory"
	"github.com/warp/loyalty-engine/generic"
	"github.com/warp/loyalty-engine/store/sqlite"
)

// =============================================================================
// REPORTS
// =============================================================================

type AuditEntryDTO struct {
	TransactionID string          `json:"transaction_id"`
	OccurredAt    time.Time       `json:"occurred_at"`
	PartnerID     int64           `json:"partner_id"`
	PartnerName   string          `json:"partner_name,omitempty"`
	Note          string          `json:"note,omitempty"`
	OriginalValue decimal.Decimal `json:"original_value"`
	AdjustedValue decimal.Decimal `json:"adjusted_value"`
	BuilderRate   bool            `json:"builder_rate"`
}

type WarningDTO struct {
	TransactionID string          `json:"transaction_id"`
	Code          string          `json:"code"`
	Value         decimal.Decimal `json:"value"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

type ActorRowDTO struct {
	ActorID          string          `json:"actor_id"`
	Name             string          `json:"name"`
	TradeName        string          `json:"trade_name,omitempty"`
	AdjustedValue    decimal.Decimal `json:"adjusted_value"`
	IndexedValue     decimal.Decimal `json:"indexed_value"`
	DistinctPartners int             `json:"distinct_partners"`
	Points           int64           `json:"points"`
	Records          int             `json:"records"`
	Operations       []AuditEntryDTO `json:"operations,omitempty"`
}

type GrandTotalDTO struct {
	AdjustedValue    decimal.Decimal `json:"adjusted_value"`
	IndexedValue     decimal.Decimal `json:"indexed_value"`
	DistinctPartners int             `json:"distinct_partners"`
	Points           int64           `json:"points"`
	Records          int             `json:"records"`
}

type RankedReportDTO struct {
	Kind                string        `json:"kind"`
	Start               string        `json:"start"`
	End                 string        `json:"end"`
	Detailed            bool          `json:"detailed"`
	TierVersion         string        `json:"tier_version"`
	Rows                []ActorRowDTO `json:"rows"`
	Total               GrandTotalDTO `json:"total"`
	ConfigurationIssues []string      `json:"configuration_issues,omitempty"`
	Warnings            []WarningDTO  `json:"warnings,omitempty"`
}

type OperationDTO struct {
	TransactionID string           `json:"transaction_id"`
	ActorKind     string           `json:"actor_kind"`
	ActorID       string           `json:"actor_id"`
	OccurredAt    time.Time        `json:"occurred_at"`
	Value         *decimal.Decimal `json:"value"`
	Points        decimal.Decimal  `json:"points"`
	Note          string           `json:"note,omitempty"`
}

type PartnerRowDTO struct {
	PartnerID   int64           `json:"partner_id"`
	PartnerName string          `json:"partner_name"`
	TotalValue  decimal.Decimal `json:"total_value"`
	TotalPoints decimal.Decimal `json:"total_points"`
	Fee         decimal.Decimal `json:"fee"`
	Operations  []OperationDTO  `json:"operations,omitempty"`
}

type PartnerReportDTO struct {
	Start    string          `json:"start"`
	End      string          `json:"end"`
	Detailed bool            `json:"detailed"`
	Rows     []PartnerRowDTO `json:"rows"`
	Total    struct {
		Value   decimal.Decimal `json:"value"`
		Points  decimal.Decimal `json:"points"`
		Fee     decimal.Decimal `json:"fee"`
		Records int             `json:"records"`
	} `json:"total"`
}

type ReportRunDTO struct {
	ID           string          `json:"id"`
	Kind         string          `json:"kind"`
	PeriodStart  string          `json:"period_start"`
	PeriodEnd    string          `json:"period_end"`
	Status       string          `json:"status"`
	Actors       int             `json:"actors"`
	Points       int64           `json:"points"`
	IndexedValue decimal.Decimal `json:"indexed_value"`
	TierVersion  string          `json:"tier_version,omitempty"`
	Issues       []string        `json:"issues,omitempty"`
	Error        string          `json:"error,omitempty"`
	CompletedAt  string          `json:"completed_at,omitempty"`
}

// =============================================================================
// TIERS & SETTINGS
// =============================================================================

type TierTableDTO struct {
	Version string             `json:"version"`
	Tiers   []factory.TierJSON `json:"tiers"`
	Issues  []string           `json:"issues,omitempty"`
}

type CutoffDayDTO struct {
	CutoffDay int `json:"cutoff_day"`
}

type UpdateCutoffDayRequest struct {
	CutoffDay int    `json:"cutoff_day" validate:"min=1,max=31"`
	UserName  string `json:"user_name" validate:"max=120"`
}

// =============================================================================
// POINTS
// =============================================================================

// SubmitPointsRequest registers (or edits) a purchase credited to an actor.
type SubmitPointsRequest struct {
	ActorKind string          `json:"actor_kind" validate:"required,oneof=office professional"`
	ActorID   string          `json:"actor_id" validate:"required,max=64"`
	Value     decimal.Decimal `json:"value"`
	Note      string          `json:"note" validate:"max=500"`
}

type TransactionDTO struct {
	ID          string           `json:"id"`
	ActorKind   string           `json:"actor_kind"`
	ActorID     string           `json:"actor_id"`
	PartnerID   int64            `json:"partner_id"`
	PartnerName string           `json:"partner_name,omitempty"`
	OccurredAt  time.Time        `json:"occurred_at"`
	Value       *decimal.Decimal `json:"value"`
	Points      decimal.Decimal  `json:"points"`
	Note        string           `json:"note,omitempty"`
}

type PointsPreviewDTO struct {
	Value   decimal.Decimal `json:"value"`
	Builder bool            `json:"builder"`
	Points  decimal.Decimal `json:"points"`
}

// =============================================================================
// SCENARIOS & ERRORS
// =============================================================================

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

type ErrorResponse struct {
	Error   string            `json:"error"`
	Details string            `json:"details,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toRankedReportDTO(report generic.RankedReport) RankedReportDTO {
	dto := RankedReportDTO{
		Start:               report.Period.Start.Format(dateLayout),
		End:                 report.Period.End.Format(dateLayout),
		Detailed:            report.Detailed,
		TierVersion:         report.TierVersion,
		Rows:                make([]ActorRowDTO, 0, len(report.Rows)),
		ConfigurationIssues: report.ConfigurationIssues,
		Total: GrandTotalDTO{
			AdjustedValue:    report.Total.AdjustedValue,
			IndexedValue:     report.Total.IndexedValue,
			DistinctPartners: report.Total.DistinctPartners,
			Points:           report.Total.Points,
			Records:          report.Total.Records,
		},
	}
	if report.Kind != nil {
		dto.Kind = report.Kind.KindID()
	}

	for _, row := range report.Rows {
		r := ActorRowDTO{
			ActorID:          string(row.ActorID),
			Name:             row.Name,
			TradeName:        row.TradeName,
			AdjustedValue:    row.Result.TotalAdjustedValue,
			IndexedValue:     row.Result.TotalIndexedValue,
			DistinctPartners: row.Result.TotalDistinctPartners,
			Points:           row.Result.TotalPoints,
			Records:          row.Result.TransactionCount,
		}
		for _, a := range row.Result.Audit {
			r.Operations = append(r.Operations, AuditEntryDTO{
				TransactionID: string(a.TransactionID),
				OccurredAt:    a.Timestamp,
				PartnerID:     int64(a.PartnerID),
				PartnerName:   a.PartnerName,
				Note:          a.Note,
				OriginalValue: a.OriginalValue,
				AdjustedValue: a.AdjustedValue,
				BuilderRate:   a.BuilderRate,
			})
		}
		dto.Rows = append(dto.Rows, r)
	}

	for _, w := range report.Warnings {
		dto.Warnings = append(dto.Warnings, WarningDTO{
			TransactionID: string(w.TxID),
			Code:          w.Code,
			Value:         w.Value,
			OccurredAt:    w.At,
		})
	}
	return dto
}

func toPartnerReportDTO(report generic.PartnerReport) PartnerReportDTO {
	dto := PartnerReportDTO{
		Start:    report.Period.Start.Format(dateLayout),
		End:      report.Period.End.Format(dateLayout),
		Detailed: report.Detailed,
		Rows:     make([]PartnerRowDTO, 0, len(report.Rows)),
	}
	dto.Total.Value = report.Total.Value
	dto.Total.Points = report.Total.Points
	dto.Total.Fee = report.Total.Fee
	dto.Total.Records = report.Total.Records

	for _, row := range report.Rows {
		r := PartnerRowDTO{
			PartnerID:   int64(row.PartnerID),
			PartnerName: row.PartnerName,
			TotalValue:  row.TotalValue,
			TotalPoints: row.TotalPoints,
			Fee:         row.Fee,
		}
		for _, tx := range row.Operations {
			t := toTransactionDTO(tx)
			r.Operations = append(r.Operations, OperationDTO{
				TransactionID: t.ID,
				ActorKind:     t.ActorKind,
				ActorID:       t.ActorID,
				OccurredAt:    t.OccurredAt,
				Value:         t.Value,
				Points:        t.Points,
				Note:          t.Note,
			})
		}
		dto.Rows = append(dto.Rows, r)
	}
	return dto
}

func toTransactionDTO(tx generic.Transaction) TransactionDTO {
	dto := TransactionDTO{
		ID:          string(tx.ID),
		ActorID:     string(tx.ActorID),
		PartnerID:   int64(tx.PartnerID),
		PartnerName: tx.PartnerName,
		OccurredAt:  tx.Timestamp,
		Points:      tx.Points,
		Note:        tx.Note,
	}
	if tx.ActorKind != nil {
		dto.ActorKind = tx.ActorKind.KindID()
	}
	if tx.GrossValue.Valid {
		v := tx.GrossValue.Decimal
		dto.Value = &v
	}
	return dto
}

func toTierTableDTO(table generic.TierTable) TierTableDTO {
	dto := TierTableDTO{Version: table.Version, Tiers: make([]factory.TierJSON, 0, len(table.Tiers))}
	for _, t := range table.Tiers {
		dto.Tiers = append(dto.Tiers, factory.TierToJSON(t))
	}
	var cfgErr *generic.ConfigurationError
	if err := table.Validate(); err != nil && errors.As(err, &cfgErr) {
		dto.Issues = cfgErr.Problems
	}
	return dto
}

func toReportRunDTO(run sqlite.ReportRun) ReportRunDTO {
	dto := ReportRunDTO{
		ID:           run.ID,
		Kind:         run.Kind,
		PeriodStart:  run.PeriodStart.Format(dateLayout),
		PeriodEnd:    run.PeriodEnd.Format(dateLayout),
		Status:       run.Status,
		Actors:       run.Actors,
		Points:       run.Points,
		IndexedValue: run.IndexedValue,
		TierVersion:  run.TierVersion,
		Issues:       run.Issues,
		Error:        run.Error,
	}
	if run.CompletedAt != nil {
		dto.CompletedAt = run.CompletedAt.Format(time.RFC3339)
	}
	return dto
}
