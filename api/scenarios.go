/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	data for demos. Each scenario creates partner companies, offices,
	professionals, a tier table and purchase transactions that exercise a
	specific part of the recomputation.

AVAILABLE SCENARIOS:

	monthly-ranking:  Two offices and two professionals buying from three
	                  partners over two months, one partner a builder
	tier-gaps:        Same purchases with a tier table that leaves gaps, so
	                  reports carry configuration issues
	year-boundary:    Purchases in December and January of consecutive years

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Create companies and actors
 3. Install the tier table
 4. Insert transactions directly, bypassing the admission window

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "monthly-ranking"}

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: ResetDatabase
  - factory/tiers.go: DefaultTiersJSON
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/warp/loyalty-engine/factory"
	"github.com/warp/loyalty-engine/generic"
	"github.com/warp/loyalty-engine/office"
	"github.com/warp/loyalty-engine/professional"
	"github.com/warp/loyalty-engine/store/sqlite"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "monthly-ranking",
		Name:        "Monthly Ranking",
		Description: "Offices and professionals buying from three partners over two months",
	},
	{
		ID:          "tier-gaps",
		Name:        "Misconfigured Tiers",
		Description: "Tier table with gaps; reports fall back to 1.0 and list the problems",
	},
	{
		ID:          "year-boundary",
		Name:        "Year Boundary",
		Description: "December and January purchases, the case where month keys differ",
	},
}

// gappedTiersJSON leaves counts 3-4 uncovered and has no unbounded tier.
const gappedTiersJSON = `[
  {"range_min": 0, "range_max": 0, "multiplier": 1.0, "bonus_percent": 0},
  {"range_min": 1, "range_max": 2, "multiplier": 1.1, "bonus_percent": 10},
  {"range_min": 5, "range_max": 9, "multiplier": 1.3, "bonus_percent": 30}
]`

var demoCompanies = []sqlite.Company{
	{ID: 1, Name: "Casa Lumen Iluminação", TradeName: "Casa Lumen"},
	{ID: 2, Name: "Pedra Forte Construtora", TradeName: "Pedra Forte", Builder: true},
	{ID: 3, Name: "Ateliê Madeira Nobre", TradeName: "Madeira Nobre"},
}

var demoOffices = []generic.ActorInfo{
	{ID: "12", Name: "Ávila Arquitetura", TradeName: "Ávila Arq"},
	{ID: "15", Name: "Bento Studio", TradeName: "Bento"},
}

var demoProfessionals = []generic.ActorInfo{
	{ID: "7", Name: "Carla Nunes"},
	{ID: "9", Name: "Davi Ramos"},
}

// ListScenarios returns the available demo scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	current := h.scenario()
	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: current, Name: current})
}

// LoadScenario loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := decodeJSONBody(r, &req); err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	ctx := r.Context()
	var load func(context.Context) error
	switch req.ScenarioID {
	case "monthly-ranking":
		load = h.loadMonthlyRankingScenario
	case "tier-gaps":
		load = h.loadTierGapsScenario
	case "year-boundary":
		load = h.loadYearBoundaryScenario
	default:
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	if err := h.Store.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.setCurrentScenario("")

	if err := load(ctx); err != nil {
		h.Logger.Error(h.Logger.WithField(ctx, "scenario", req.ScenarioID), "failed to load scenario", err)
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}

	h.setCurrentScenario(req.ScenarioID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

func (h *Handler) scenario() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.currentScenario
}

func (h *Handler) setCurrentScenario(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.currentScenario = id
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

type seedPurchase struct {
	kind    generic.ActorKind
	actor   generic.ActorID
	company generic.PartnerID
	at      time.Time
	value   float64
	note    string
}

// twoMonthPurchases spreads purchases over the previous and current month.
func (h *Handler) twoMonthPurchases() []seedPurchase {
	now := h.now()
	thisMonth := time.Date(now.Year(), now.Month(), 1, 10, 0, 0, 0, h.Location)
	lastMonth := thisMonth.AddDate(0, -1, 0)
	day := func(base time.Time, d int) time.Time { return base.AddDate(0, 0, d-1) }

	return []seedPurchase{
		// Ávila: A, B, A last month (three distinct by last-seen), one builder purchase
		{office.Kind{}, "12", 1, day(lastMonth, 2), 3000, "Pendentes sala"},
		{office.Kind{}, "12", 2, day(lastMonth, 5), 4000, "Revestimento"},
		{office.Kind{}, "12", 1, day(lastMonth, 9), 1500, "Arandelas"},
		{office.Kind{}, "12", 3, day(thisMonth, 1), 2500, "Painel ripado"},

		// Bento: a single partner each month
		{office.Kind{}, "15", 3, day(lastMonth, 3), 1200, ""},
		{office.Kind{}, "15", 3, day(thisMonth, 1), 1200, ""},

		// Professionals
		{professional.Kind{}, "7", 1, day(lastMonth, 4), 800, "Spots"},
		{professional.Kind{}, "7", 3, day(lastMonth, 6), 1500, "Bancada"},
		{professional.Kind{}, "9", 2, day(lastMonth, 7), 8000, "Porcelanato"},
	}
}

func (h *Handler) loadMonthlyRankingScenario(ctx context.Context) error {
	if err := h.seedDirectory(ctx); err != nil {
		return err
	}
	if _, err := h.Store.SeedTiers(ctx, factory.DefaultTiers()); err != nil {
		return err
	}
	return h.seedPurchases(ctx, h.twoMonthPurchases())
}

func (h *Handler) loadTierGapsScenario(ctx context.Context) error {
	if err := h.seedDirectory(ctx); err != nil {
		return err
	}
	table, err := factory.ParseTierTable([]byte(gappedTiersJSON))
	if err != nil {
		return err
	}
	if _, err := h.Store.ReplaceTiers(ctx, table.Tiers); err != nil {
		return err
	}
	return h.seedPurchases(ctx, h.twoMonthPurchases())
}

func (h *Handler) loadYearBoundaryScenario(ctx context.Context) error {
	if err := h.seedDirectory(ctx); err != nil {
		return err
	}
	if _, err := h.Store.SeedTiers(ctx, factory.DefaultTiers()); err != nil {
		return err
	}

	year := h.now().Year() - 1
	dec := func(y, d int) time.Time { return time.Date(y, time.December, d, 10, 0, 0, 0, h.Location) }
	jan := func(y, d int) time.Time { return time.Date(y, time.January, d, 10, 0, 0, 0, h.Location) }

	return h.seedPurchases(ctx, []seedPurchase{
		{office.Kind{}, "12", 1, jan(year, 10), 2000, ""},
		{office.Kind{}, "12", 2, dec(year, 5), 4000, ""},
		{office.Kind{}, "12", 3, dec(year, 18), 3000, ""},
		{office.Kind{}, "12", 1, jan(year+1, 8), 5000, ""},
		{professional.Kind{}, "7", 3, dec(year, 11), 1800, ""},
		{professional.Kind{}, "7", 1, jan(year+1, 4), 900, ""},
	})
}

func (h *Handler) seedDirectory(ctx context.Context) error {
	for _, c := range demoCompanies {
		if err := h.Store.SaveCompany(ctx, c); err != nil {
			return fmt.Errorf("save company %d: %w", c.ID, err)
		}
	}
	for _, o := range demoOffices {
		if err := h.Store.SaveActor(ctx, office.Kind{}, o); err != nil {
			return fmt.Errorf("save office %s: %w", o.ID, err)
		}
	}
	for _, p := range demoProfessionals {
		if err := h.Store.SaveActor(ctx, professional.Kind{}, p); err != nil {
			return fmt.Errorf("save professional %s: %w", p.ID, err)
		}
	}
	return nil
}

func (h *Handler) seedPurchases(ctx context.Context, purchases []seedPurchase) error {
	builders := make(map[generic.PartnerID]bool, len(demoCompanies))
	for _, c := range demoCompanies {
		builders[c.ID] = c.Builder
	}

	for i, p := range purchases {
		value := generic.Value(p.value)
		tx := generic.Transaction{
			ID:         generic.TransactionID(fmt.Sprintf("demo-%03d", i+1)),
			ActorID:    p.actor,
			ActorKind:  p.kind,
			PartnerID:  p.company,
			Timestamp:  p.at,
			GrossValue: value,
			Points:     generic.ComputePoints(value.Decimal, builders[p.company]),
			Note:       p.note,
		}
		if err := h.Store.CreateTransaction(ctx, tx); err != nil {
			return fmt.Errorf("seed purchase %d: %w", i+1, err)
		}
	}
	return nil
}
