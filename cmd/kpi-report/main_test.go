package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/miradorstack/kpi-recon/internal/api"
	"github.com/miradorstack/kpi-recon/internal/config"
	"github.com/miradorstack/kpi-recon/internal/models"
	"github.com/miradorstack/kpi-recon/internal/services"
)

func newUpstream(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/kpieng/v1/instance/all", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("apiKey") != "cli-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`[
			{"kpiId": 11, "name": "Traffic", "kpiInstanceParameters": {"parameters": {"timetostart": 900}}},
			{"kpiId": 12, "name": "Speed", "kpiInstanceParameters": {"parameters": {}}}
		]`))
	})
	mux.HandleFunc("/kpieng/v1/result/by-kpi-id", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[
			{"timeStamp": "2024-01-01T10:02:00Z", "overallResult": {"value": 110, "progressive": 3}},
			{"timeStamp": "2024-01-01T14:00:00Z", "overallResult": {"value": 50, "progressive": 4}},
			{"timeStamp": "not-a-time", "overallResult": {"value": 1, "progressive": 1}}
		]`))
	})
	mux.HandleFunc("/kpistats/v1/historical/result/by-kpi-id", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[
			{"timeStamp": "2024-01-01T10:16:00Z", "results": [{"value": 100, "progressive": 3}]},
			{"timeStamp": "2024-01-01T14:15:00Z", "results": [{"value": 0, "progressive": 4}]}
		]`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("KPI_RECON_CONFIG", "")
	t.Setenv("KPI_RECON_API_KEY", "")
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd(&stdout, &stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestRunJSON(t *testing.T) {
	upstream := newUpstream(t)
	out, _, err := execute(t, "run", "--base-url", upstream.URL, "--api-key", "cli-key", "--format", "json", "--kpi", "Traffic")
	require.NoError(t, err)

	var report models.Report
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	require.Len(t, report.KPIs, 1)

	kpi := report.KPIs[0]
	require.Equal(t, models.KPIID("11"), kpi.KPIID)
	require.Len(t, kpi.Rows, 2)
	require.True(t, kpi.Rows[0].ErrorPerc.Defined)
	require.False(t, kpi.Rows[1].ErrorPerc.Defined, "zero actual leaves the percentage undefined")
	require.NotNil(t, kpi.Morning.Window)
	require.NotNil(t, kpi.Afternoon.Window)
	require.Len(t, report.Skipped, 1)
}

func TestRunTable(t *testing.T) {
	upstream := newUpstream(t)
	out, _, err := execute(t, "run", "--base-url", upstream.URL, "--api-key", "cli-key")
	require.NoError(t, err)
	require.Contains(t, out, "== Traffic (11) ==")
	require.Contains(t, out, "2024-01-01 10:15")
	require.Contains(t, out, "n/a")
	require.Contains(t, out, "== Speed (12) ==")
	require.Contains(t, out, "excluded_no_lead_time=2")
	require.Contains(t, out, "input records skipped")
}

func TestListRequiresValidKey(t *testing.T) {
	upstream := newUpstream(t)

	out, _, err := execute(t, "list", "--base-url", upstream.URL, "--api-key", "cli-key")
	require.NoError(t, err)
	require.Contains(t, out, "Traffic")
	require.Contains(t, out, "15m0s")

	_, stderr, err := execute(t, "list", "--base-url", upstream.URL, "--api-key", "wrong")
	require.Error(t, err)
	require.Contains(t, stderr, "command failed")
}

func TestChartSeries(t *testing.T) {
	upstream := newUpstream(t)
	out, _, err := execute(t, "chart", "11", "--base-url", upstream.URL, "--api-key", "cli-key", "--format", "json")
	require.NoError(t, err)

	var series models.ChartSeries
	require.NoError(t, json.Unmarshal([]byte(out), &series))
	require.Len(t, series.Timestamps, 2)
	require.NotNil(t, series.ErrorPerc[0])
	require.Nil(t, series.ErrorPerc[1])
}

func TestRejectsUnknownFormat(t *testing.T) {
	_, _, err := execute(t, "list", "--base-url", "http://127.0.0.1:1", "--format", "xml")
	require.Error(t, err)
}

func TestRemoteBackend(t *testing.T) {
	upstream := newUpstream(t)

	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Upstream.BaseURL = upstream.URL
	cfg.Server.Address = "127.0.0.1:0"

	svc := services.NewReconService(nil, services.NewPipelineFromConfig(cfg, nil, nil), "")
	server, err := api.NewServer(cfg.Server, svc)
	require.NoError(t, err)
	go func() { _ = server.Start() }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		server.Shutdown(ctx)
	})

	out, _, err := execute(t, "list", "--server", server.Address(), "--api-key", "cli-key", "--format", "json")
	require.NoError(t, err)

	var defs []models.KPIDefinition
	require.NoError(t, json.Unmarshal([]byte(out), &defs))
	require.Len(t, defs, 2)

	out, _, err = execute(t, "run", "--server", server.Address(), "--api-key", "cli-key", "--format", "json", "--kpi", "11")
	require.NoError(t, err)
	var report models.Report
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	require.Len(t, report.KPIs, 1)
	require.Len(t, report.KPIs[0].Rows, 2)
}
