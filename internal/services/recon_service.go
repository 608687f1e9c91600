package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/miradorstack/kpi-recon/internal/api"
	"github.com/miradorstack/kpi-recon/internal/engine"
	"github.com/miradorstack/kpi-recon/internal/metrics"
	"github.com/miradorstack/kpi-recon/internal/models"
	"github.com/miradorstack/kpi-recon/internal/repo"
	"github.com/miradorstack/kpi-recon/internal/utils"
)

// APIKeyMetadataKey is the gRPC metadata key carrying the caller's upstream API key.
const APIKeyMetadataKey = "apikey"

// ReconService implements the gRPC Reconciler service.
type ReconService struct {
	api.UnimplementedReconcilerServer

	logger        *slog.Logger
	pipeline      *engine.Pipeline
	defaultAPIKey string
	latencies     *utils.LatencyTracker
}

// NewReconService constructs the service facade. defaultAPIKey is used when a
// call carries no apikey metadata.
func NewReconService(logger *slog.Logger, pipeline *engine.Pipeline, defaultAPIKey string) *ReconService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReconService{
		logger:        logger,
		pipeline:      pipeline,
		defaultAPIKey: defaultAPIKey,
		latencies:     utils.NewLatencyTracker(1024),
	}
}

// ReconcileKPIs runs a full fetch and reconciliation for the requested KPIs.
func (s *ReconService) ReconcileKPIs(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request cannot be nil")
	}
	if s.pipeline == nil {
		return nil, status.Error(codes.FailedPrecondition, "pipeline not configured")
	}

	domainReq, err := api.FromProtoRunRequest(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	s.logger.Debug("ReconcileKPIs called", slog.Int("kpi_filters", len(domainReq.KPIs)))

	start := time.Now()
	report, err := s.pipeline.Run(ctx, s.credentials(ctx), domainReq)
	duration := time.Since(start)
	if err != nil {
		metrics.ObserveRun(duration, metrics.OutcomeError)
		s.logger.Error("reconciliation run failed", slog.Any("error", err))
		return nil, toStatus(err, "reconciliation failed")
	}
	s.latencies.Observe(duration)
	metrics.ObserveRun(duration, metrics.OutcomeSuccess)
	if count := s.latencies.Count(); count >= 20 && count%20 == 0 {
		s.logger.Info("reconciliation latency",
			slog.Duration("p95", s.latencies.Percentile(95)),
			slog.Duration("mean", s.latencies.Mean()),
			slog.Int("samples", count),
		)
	}
	s.logger.Info("reconciliation completed",
		slog.String("run_id", report.RunID),
		slog.Int("kpis", len(report.KPIs)),
		slog.Int("skipped_records", len(report.Skipped)),
		slog.Duration("duration", duration),
	)

	resp, err := api.ToProtoReport(report)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return resp, nil
}

// ListKPIs returns the KPI definitions visible to the caller.
func (s *ReconService) ListKPIs(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.pipeline == nil {
		return nil, status.Error(codes.FailedPrecondition, "pipeline not configured")
	}

	defs, err := s.pipeline.Definitions(ctx, s.credentials(ctx))
	if err != nil {
		s.logger.Error("list kpis failed", slog.Any("error", err))
		return nil, toStatus(err, "failed to list kpis")
	}

	resp, err := api.ToProtoDefinitions(defs)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return resp, nil
}

// LatencyP95 returns the current p95 run latency.
func (s *ReconService) LatencyP95() time.Duration {
	if s.latencies == nil {
		return 0
	}
	return s.latencies.Percentile(95)
}

func (s *ReconService) credentials(ctx context.Context) models.Credentials {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get(APIKeyMetadataKey); len(values) > 0 && strings.TrimSpace(values[0]) != "" {
			return models.Credentials{APIKey: strings.TrimSpace(values[0])}
		}
	}
	return models.Credentials{APIKey: s.defaultAPIKey}
}

func toStatus(err error, msg string) error {
	switch {
	case errors.Is(err, repo.ErrUnauthorized):
		return status.Error(codes.Unauthenticated, fmt.Sprintf("%s: %v", msg, err))
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, msg)
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, msg)
	default:
		return status.Error(codes.Unavailable, fmt.Sprintf("%s: %v", msg, err))
	}
}
