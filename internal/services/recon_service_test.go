package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/miradorstack/kpi-recon/internal/api"
	"github.com/miradorstack/kpi-recon/internal/cache"
	"github.com/miradorstack/kpi-recon/internal/config"
	"github.com/miradorstack/kpi-recon/internal/engine"
	"github.com/miradorstack/kpi-recon/internal/repo"
)

type upstream struct {
	mu      sync.Mutex
	apiKeys []string
}

func (u *upstream) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/kpieng/v1/instance/all", func(w http.ResponseWriter, r *http.Request) {
		u.record(r)
		if r.Header.Get("apiKey") == "revoked" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`[{"kpiId": 11, "name": "Traffic", "kpiInstanceParameters": {"parameters": {"timetostart": 900}}}]`))
	})
	mux.HandleFunc("/kpieng/v1/result/by-kpi-id", func(w http.ResponseWriter, r *http.Request) {
		u.record(r)
		_, _ = w.Write([]byte(`[{"timeStamp": "2024-01-01T10:02:00Z", "overallResult": {"value": 110, "progressive": 3}}]`))
	})
	mux.HandleFunc("/kpistats/v1/historical/result/by-kpi-id", func(w http.ResponseWriter, r *http.Request) {
		u.record(r)
		_, _ = w.Write([]byte(`[{"timeStamp": "2024-01-01T10:16:00Z", "results": [{"value": 100, "progressive": 3}]}]`))
	})
	return mux
}

func (u *upstream) record(r *http.Request) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.apiKeys = append(u.apiKeys, r.Header.Get("apiKey"))
}

func newTestService(t *testing.T) (*ReconService, *upstream) {
	t.Helper()
	up := &upstream{}
	srv := httptest.NewServer(up.handler())
	t.Cleanup(srv.Close)

	client := repo.NewKPIClient(repo.KPIClientConfig{
		BaseURL:         srv.URL,
		DefinitionsPath: "/kpieng/v1/instance/all",
		ResultsPath:     "/kpieng/v1/result/by-kpi-id",
		HistoricalPath:  "/kpistats/v1/historical/result/by-kpi-id",
		Timeout:         2 * time.Second,
	}, nil, nil)
	pipeline := engine.NewPipeline(nil, client, nil, 2)
	return NewReconService(nil, pipeline, "default-key"), up
}

func TestReconcileKPIsEndToEnd(t *testing.T) {
	svc, up := newTestService(t)
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(APIKeyMetadataKey, "caller-key"))

	req, err := structpb.NewStruct(map[string]any{"kpis": []any{"Traffic"}})
	require.NoError(t, err)

	resp, err := svc.ReconcileKPIs(ctx, req)
	require.NoError(t, err)

	report, err := api.FromProtoReport(resp)
	require.NoError(t, err)
	require.NotEmpty(t, report.RunID)
	require.Len(t, report.KPIs, 1)

	kpi := report.KPIs[0]
	require.Empty(t, kpi.Error)
	require.Len(t, kpi.Rows, 1)
	row := kpi.Rows[0]
	require.Equal(t, 110.0, row.ForecastValue)
	require.Equal(t, 100.0, row.ActualValue)
	require.Equal(t, 10.0, row.AbsDelta)
	require.True(t, row.ErrorPerc.Defined)
	require.InDelta(t, 10.0, row.ErrorPerc.Value, 1e-9)
	require.True(t, row.ForecastedTimestamp.Equal(time.Date(2024, 1, 1, 10, 15, 0, 0, time.UTC)))
	require.False(t, kpi.Morning.NoData)
	require.NotNil(t, kpi.Morning.Window)
	require.True(t, kpi.Afternoon.NoData)

	up.mu.Lock()
	defer up.mu.Unlock()
	require.NotEmpty(t, up.apiKeys)
	for _, key := range up.apiKeys {
		require.Equal(t, "caller-key", key)
	}
}

func TestReconcileKPIsFallsBackToDefaultKey(t *testing.T) {
	svc, up := newTestService(t)
	_, err := svc.ReconcileKPIs(context.Background(), &structpb.Struct{})
	require.NoError(t, err)

	up.mu.Lock()
	defer up.mu.Unlock()
	require.Equal(t, "default-key", up.apiKeys[0])
}

func TestReconcileKPIsErrors(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.ReconcileKPIs(context.Background(), nil)
	require.Equal(t, codes.InvalidArgument, status.Code(err))

	bad, _ := structpb.NewStruct(map[string]any{"kpis": "Traffic"})
	_, err = svc.ReconcileKPIs(context.Background(), bad)
	require.Equal(t, codes.InvalidArgument, status.Code(err))

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(APIKeyMetadataKey, "revoked"))
	_, err = svc.ReconcileKPIs(ctx, &structpb.Struct{})
	require.Equal(t, codes.Unauthenticated, status.Code(err))

	unconfigured := NewReconService(nil, nil, "")
	_, err = unconfigured.ReconcileKPIs(context.Background(), &structpb.Struct{})
	require.Equal(t, codes.FailedPrecondition, status.Code(err))
}

func TestListKPIs(t *testing.T) {
	svc, _ := newTestService(t)
	resp, err := svc.ListKPIs(context.Background(), &structpb.Struct{})
	require.NoError(t, err)

	defs, err := api.FromProtoDefinitions(resp)
	require.NoError(t, err)
	require.Len(t, defs, 1)
	require.Equal(t, "Traffic", defs[0].Name)
	require.NotNil(t, defs[0].LeadTimeSeconds)
	require.EqualValues(t, 900, *defs[0].LeadTimeSeconds)
}

func TestBootstrapFromConfig(t *testing.T) {
	up := &upstream{}
	srv := httptest.NewServer(up.handler())
	t.Cleanup(srv.Close)

	t.Setenv("KPI_RECON_CONFIG", "")
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Upstream.BaseURL = srv.URL
	cfg.Cache.Enabled = true
	cfg.Cache.Backend = "memory"
	cfg.Report.PeakRadius = 30 * time.Minute
	require.NoError(t, cfg.Validate())

	provider := NewCacheProvider(cfg.Cache, nil)
	_, isMemory := provider.(*cache.MemoryProvider)
	require.True(t, isMemory)

	pipeline := NewPipelineFromConfig(cfg, provider, nil)
	svc := NewReconService(nil, pipeline, "k")
	_, err = svc.ListKPIs(context.Background(), &structpb.Struct{})
	require.NoError(t, err)
	_, err = svc.ListKPIs(context.Background(), &structpb.Struct{})
	require.NoError(t, err)

	up.mu.Lock()
	defer up.mu.Unlock()
	require.Len(t, up.apiKeys, 1, "second listing should be served from the definitions cache")

	peaks := PeakConfigFrom(cfg.Report)
	require.Equal(t, 30*time.Minute, peaks.Radius)
	require.Equal(t, 6*time.Hour, peaks.Morning.Start)
}

func TestNewCacheProviderDisabledAndUnreachable(t *testing.T) {
	_, isNoop := NewCacheProvider(config.CacheConfig{}, nil).(cache.NoopProvider)
	require.True(t, isNoop)

	unreachable := NewCacheProvider(config.CacheConfig{
		Enabled:     true,
		Backend:     "valkey",
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
	}, nil)
	_, isNoop = unreachable.(cache.NoopProvider)
	require.True(t, isNoop)
}
