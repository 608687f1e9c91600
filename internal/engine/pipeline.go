package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/miradorstack/kpi-recon/internal/metrics"
	"github.com/miradorstack/kpi-recon/internal/models"
	"github.com/miradorstack/kpi-recon/internal/utils"
)

// KPISource defines the upstream fetch layer used by the pipeline.
type KPISource interface {
	FetchDefinitions(ctx context.Context, creds models.Credentials) ([]models.KPIDefinition, error)
	FetchInstantResults(ctx context.Context, creds models.Credentials, kpiID models.KPIID) ([]models.RawInstantResult, error)
	FetchHistoricalEntries(ctx context.Context, creds models.Credentials, kpiID models.KPIID) ([]models.RawHistoricalEntry, error)
}

// DefaultConcurrency bounds parallel per-KPI fetches when none is configured.
const DefaultConcurrency = 4

// Pipeline fetches every selected KPI in parallel, then reconciles them once all fetches are in.
type Pipeline struct {
	logger      *slog.Logger
	source      KPISource
	assembler   *Assembler
	concurrency int
	now         func() time.Time
}

// NewPipeline constructs a reconciliation pipeline.
func NewPipeline(logger *slog.Logger, source KPISource, assembler *Assembler, concurrency int) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if assembler == nil {
		assembler = NewAssembler(nil)
	}
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Pipeline{
		logger:      logger,
		source:      source,
		assembler:   assembler,
		concurrency: concurrency,
		now:         time.Now,
	}
}

// Definitions lists the KPI definitions visible to creds.
func (p *Pipeline) Definitions(ctx context.Context, creds models.Credentials) ([]models.KPIDefinition, error) {
	if p.source == nil {
		return nil, fmt.Errorf("kpi source not configured")
	}
	defs, err := p.source.FetchDefinitions(ctx, creds)
	if err != nil {
		return nil, utils.NewAppError("pipeline.definitions", "fetch definitions", err)
	}
	return defs, nil
}

type fetchResult struct {
	input KPIInput
	err   error
}

// Run reconciles the KPIs selected by req. Failures are isolated per KPI and
// reported on that KPI; only a definitions failure aborts the run.
func (p *Pipeline) Run(ctx context.Context, creds models.Credentials, req models.RunRequest) (models.Report, error) {
	defs, err := p.Definitions(ctx, creds)
	if err != nil {
		return models.Report{}, err
	}

	selected, unknown := selectDefinitions(defs, req.KPIs)
	for _, name := range unknown {
		p.logger.Warn("requested kpi not defined upstream", slog.String("kpi", name))
	}

	// Fan-out: each worker owns one slot, so no locking is needed.
	fetched := make([]fetchResult, len(selected))
	var g errgroup.Group
	g.SetLimit(p.concurrency)
	for i, def := range selected {
		i, def := i, def
		g.Go(func() error {
			fetched[i] = p.fetchKPI(ctx, creds, def)
			return nil
		})
	}
	_ = g.Wait()

	// Fan-in: reconcile only once every fetch of this run has completed.
	reports := make([]models.KPIReport, 0, len(fetched)+len(unknown))
	var skipped []models.RecordIssue
	for _, res := range fetched {
		def := res.input.Definition
		if res.err != nil {
			p.logger.Warn("kpi fetch failed", slog.String("kpi", string(def.KPIID)), slog.Any("error", res.err))
			metrics.ObserveKPI(metrics.OutcomeError)
			reports = append(reports, models.KPIReport{KPIID: def.KPIID, Name: def.Name, Error: res.err.Error()})
			continue
		}

		report, issues, err := p.assembler.BuildKPI(res.input, defs)
		for _, issue := range issues {
			p.logger.Warn("skipped record", slog.String("kpi", string(issue.KPIID)), slog.String("stage", issue.Stage), slog.String("reason", issue.Reason))
		}
		skipped = append(skipped, issues...)
		if err != nil {
			err = utils.NewKPIError("pipeline.reconcile", string(def.KPIID), "reconcile", err)
			p.logger.Error("kpi reconciliation failed", slog.Any("error", err))
			metrics.ObserveKPI(metrics.OutcomeError)
			report.Error = err.Error()
			reports = append(reports, report)
			continue
		}

		metrics.AddRecords(metrics.StageInstants, report.Instants)
		metrics.AddRecords(metrics.StageHistorical, report.HistoricalRecords)
		metrics.AddRecords(metrics.StageCompared, len(report.Rows))
		if len(report.Rows) == 0 {
			metrics.ObserveKPI(metrics.OutcomeNoData)
		} else {
			metrics.ObserveKPI(metrics.OutcomeSuccess)
		}
		p.logger.Debug("kpi reconciled",
			slog.String("kpi", string(def.KPIID)),
			slog.Int("instants", report.Instants),
			slog.Int("excluded_no_lead_time", report.ExcludedNoLead),
			slog.Int("aggregates", report.Aggregates),
			slog.Int("rows", len(report.Rows)),
		)
		reports = append(reports, report)
	}
	for _, name := range unknown {
		reports = append(reports, models.KPIReport{KPIID: models.KPIID(name), Error: "kpi not defined upstream"})
	}

	return AssembleReport(uuid.NewString(), p.now(), reports, skipped), nil
}

func (p *Pipeline) fetchKPI(ctx context.Context, creds models.Credentials, def models.KPIDefinition) fetchResult {
	res := fetchResult{input: KPIInput{Definition: def}}

	instants, err := p.source.FetchInstantResults(ctx, creds, def.KPIID)
	if err != nil {
		res.err = utils.NewKPIError("pipeline.fetch", string(def.KPIID), "fetch 24h results", err)
		return res
	}
	historical, err := p.source.FetchHistoricalEntries(ctx, creds, def.KPIID)
	if err != nil {
		res.err = utils.NewKPIError("pipeline.fetch", string(def.KPIID), "fetch historical stats", err)
		return res
	}

	res.input.Instants = instants
	res.input.Historical = historical
	return res
}

// selectDefinitions keeps definitions whose kpiId or name is in filter, in
// upstream order. An empty filter keeps everything.
func selectDefinitions(defs []models.KPIDefinition, filter []string) ([]models.KPIDefinition, []string) {
	if len(filter) == 0 {
		return defs, nil
	}

	wanted := make(map[string]bool, len(filter))
	for _, f := range filter {
		wanted[f] = false
	}
	selected := make([]models.KPIDefinition, 0, len(filter))
	for _, def := range defs {
		id := string(def.KPIID)
		_, byID := wanted[id]
		_, byName := wanted[def.Name]
		if !byID && !byName {
			continue
		}
		if byID {
			wanted[id] = true
		}
		if byName {
			wanted[def.Name] = true
		}
		selected = append(selected, def)
	}

	var unknown []string
	for _, f := range filter {
		if !wanted[f] {
			unknown = append(unknown, f)
			wanted[f] = true
		}
	}
	return selected, unknown
}
