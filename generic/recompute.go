/*
recompute.go - Report fan-out across actors

PURPOSE:
  Drives one reporting request end to end:
    1. Load the tier table snapshot (once per run, never refreshed mid-run)
    2. Validate it; problems are logged and attached to the report
    3. Load the period's transactions, ascending by timestamp
    4. Group them by (kind, actor), preserving order
    5. Run the engine per actor on a bounded worker pool
    6. Aggregate into a ranked report

CONCURRENCY:
  Per-actor runs share nothing mutable: each goroutine reads its own slice of
  transactions and the immutable tier snapshot, and writes only its own slot
  of the results slice. The pool bounds how many run at once.

SEE ALSO:
  - engine.go: The per-actor algorithm
  - report.go: Aggregate
  - office/, professional/: Thin adapters selecting the actor kind
*/
package generic

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alitto/pond/v2"
	"golang.org/x/text/language"

	"github.com/warp/loyalty-engine/logger"
	"github.com/warp/loyalty-engine/metrics"
)

// DefaultReportWorkers bounds per-actor parallelism when none is configured.
const DefaultReportWorkers = 8

// =============================================================================
// RECOMPUTER
// =============================================================================

type Recomputer struct {
	Transactions TransactionSource
	Tiers        TierSource
	Directory    ActorDirectory
	Engine       *Engine
	Language     language.Tag
	Logger       *logger.Logger
	Metrics      *metrics.ReportMetrics

	pool pond.Pool
}

type RecomputerOptions struct {
	Workers  int
	MonthKey MonthKeyMode
	Language language.Tag
	Logger   *logger.Logger
	Metrics  *metrics.ReportMetrics
}

// NewRecomputer wires the sources to a worker pool. Call Close when done.
func NewRecomputer(txs TransactionSource, tiers TierSource, dir ActorDirectory, opts RecomputerOptions) *Recomputer {
	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultReportWorkers
	}
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &Recomputer{
		Transactions: txs,
		Tiers:        tiers,
		Directory:    dir,
		Engine:       NewEngine(opts.MonthKey),
		Language:     opts.Language,
		Logger:       log,
		Metrics:      opts.Metrics,
		pool:         pond.NewPool(workers, pond.WithQueueSize(workers*64)),
	}
}

// Close stops the worker pool after in-flight runs finish.
func (r *Recomputer) Close() {
	r.pool.StopAndWait()
}

type ReportRequest struct {
	Kind     ActorKind
	Period   Period
	ActorID  *ActorID
	Detailed bool
}

// Report recomputes every actor of req.Kind with transactions in the period.
// A nil Kind covers every kind; actors are still told apart by (kind, id).
func (r *Recomputer) Report(ctx context.Context, req ReportRequest) (RankedReport, error) {
	start := time.Now()
	kindID := kindOf(req.Kind)
	ctx = r.Logger.WithFields(ctx, map[string]any{"kind": kindID, "period": req.Period.String()})

	report, err := r.report(ctx, req)
	if err != nil {
		r.Metrics.IncFailure(kindID)
		r.Logger.Error(ctx, "report recomputation failed", err)
		return RankedReport{}, err
	}

	r.Metrics.ObserveReport(kindID, len(report.Rows), time.Since(start))
	for code, n := range countWarnings(report.Warnings) {
		r.Metrics.AddDataWarnings(code, n)
	}
	if len(report.ConfigurationIssues) > 0 {
		r.Metrics.IncConfigIssue(kindID)
	}
	return report, nil
}

func (r *Recomputer) report(ctx context.Context, req ReportRequest) (RankedReport, error) {
	tiers, err := r.Tiers.LoadTiers(ctx)
	if err != nil {
		return RankedReport{}, fmt.Errorf("load tier table: %w", err)
	}

	var issues []string
	if verr := tiers.Validate(); verr != nil {
		var cfgErr *ConfigurationError
		if errors.As(verr, &cfgErr) {
			issues = cfgErr.Problems
		}
		r.Logger.Error(ctx, "multiplier tier table is misconfigured, unmatched counts use 1.0", verr)
	}

	txs, err := r.Transactions.LoadTransactions(ctx, TransactionFilter{
		Period:  req.Period,
		Kind:    req.Kind,
		ActorID: req.ActorID,
	})
	if err != nil {
		return RankedReport{}, fmt.Errorf("load transactions: %w", err)
	}

	groups, dropped := groupByActor(txs, req.Kind)
	if dropped > 0 {
		r.Logger.Warn(r.Logger.WithField(ctx, "dropped", dropped), "transactions without actor excluded from report")
	}

	names, err := r.resolveNames(ctx, groups)
	if err != nil {
		return RankedReport{}, err
	}

	results, err := r.recomputeAll(ctx, groups, tiers, RecomputeOptions{IncludeAudit: req.Detailed})
	if err != nil {
		return RankedReport{}, err
	}

	for i, g := range groups {
		results[i].Kind = g.kind
		info, ok := names[g.key()]
		if ok && info.Name != "" {
			results[i].Name = info.Name
			results[i].TradeName = info.TradeName
		} else {
			results[i].Name = DisplayName(g.kind, g.id)
		}
	}

	report := Aggregate(results, AggregateOptions{Language: r.Language})
	report.Kind = req.Kind
	report.Period = req.Period
	report.Detailed = req.Detailed
	report.TierVersion = tiers.Version
	report.ConfigurationIssues = issues

	r.Logger.Info(r.Logger.WithFields(ctx, map[string]any{
		"actors":  len(report.Rows),
		"records": report.Total.Records,
		"points":  report.Total.Points,
	}), "report recomputed")
	return report, nil
}

// recomputeAll runs the engine once per actor on the pool.
func (r *Recomputer) recomputeAll(ctx context.Context, groups []*actorGroup, tiers TierTable, opts RecomputeOptions) ([]ActorResult, error) {
	results := make([]ActorResult, len(groups))
	errs := make([]error, len(groups))

	group := r.pool.NewGroupContext(ctx)
	groupCtx := group.Context()
	for i, g := range groups {
		i, g := i, g
		group.Submit(func() {
			if err := groupCtx.Err(); err != nil {
				errs[i] = err
				return
			}
			res, err := r.Engine.Recompute(g.txs, tiers, opts)
			if err != nil {
				errs[i] = fmt.Errorf("actor %s: %w", g.key(), err)
				return
			}
			results[i] = ActorResult{ActorID: g.id, Result: res}
		})
	}

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, pond.ErrGroupStopped) {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return results, nil
}

// PartnerReport sums stored values and points per partner company.
func (r *Recomputer) PartnerReport(ctx context.Context, period Period, partner *PartnerID, detailed bool) (PartnerReport, error) {
	txs, err := r.Transactions.LoadTransactions(ctx, TransactionFilter{Period: period, Partner: partner})
	if err != nil {
		return PartnerReport{}, fmt.Errorf("load transactions: %w", err)
	}
	report := AggregateByPartner(txs, detailed)
	report.Period = period
	return report, nil
}

// =============================================================================
// HELPERS
// =============================================================================

// actorGroup is one actor's slice of the stream. Actors are identified by
// (kind, id): an office and a professional may share an ID.
type actorGroup struct {
	kind ActorKind
	id   ActorID
	txs  []Transaction
}

type actorKey struct {
	kind string
	id   ActorID
}

func (k actorKey) String() string {
	if k.kind == "" {
		return string(k.id)
	}
	return k.kind + "/" + string(k.id)
}

func (g *actorGroup) key() actorKey {
	return actorKey{kind: kindOf(g.kind), id: g.id}
}

// groupByActor splits an ordered stream per (kind, id), keeping each actor's
// relative order. Rows without a kind take fallback. Rows without an actor
// are counted and dropped.
func groupByActor(txs []Transaction, fallback ActorKind) ([]*actorGroup, int) {
	index := make(map[actorKey]*actorGroup)
	var groups []*actorGroup
	dropped := 0
	for _, tx := range txs {
		if tx.ActorID == "" {
			dropped++
			continue
		}
		kind := tx.ActorKind
		if kind == nil {
			kind = fallback
		}
		g := &actorGroup{kind: kind, id: tx.ActorID}
		if existing, ok := index[g.key()]; ok {
			g = existing
		} else {
			index[g.key()] = g
			groups = append(groups, g)
		}
		g.txs = append(g.txs, tx)
	}
	return groups, dropped
}

// resolveNames asks the directory for every actor, one lookup per kind.
func (r *Recomputer) resolveNames(ctx context.Context, groups []*actorGroup) (map[actorKey]ActorInfo, error) {
	names := make(map[actorKey]ActorInfo)
	if r.Directory == nil || len(groups) == 0 {
		return names, nil
	}

	kinds := make(map[string]ActorKind)
	ids := make(map[string][]ActorID)
	var order []string
	for _, g := range groups {
		k := g.key()
		if _, ok := kinds[k.kind]; !ok {
			kinds[k.kind] = g.kind
			order = append(order, k.kind)
		}
		ids[k.kind] = append(ids[k.kind], g.id)
	}

	for _, kindID := range order {
		found, err := r.Directory.ActorNames(ctx, kinds[kindID], ids[kindID])
		if err != nil {
			return nil, fmt.Errorf("resolve actor names: %w", err)
		}
		for id, info := range found {
			names[actorKey{kind: kindID, id: id}] = info
		}
	}
	return names, nil
}

func countWarnings(ws []DataIntegrityWarning) map[string]int {
	counts := make(map[string]int)
	for _, w := range ws {
		counts[w.Code]++
	}
	return counts
}
