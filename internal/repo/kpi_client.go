package repo

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/miradorstack/kpi-recon/internal/cache"
	"github.com/miradorstack/kpi-recon/internal/metrics"
	"github.com/miradorstack/kpi-recon/internal/models"
)

// Endpoint labels used in logs and metrics.
const (
	endpointDefinitions = "definitions"
	endpointResults     = "results"
	endpointHistorical  = "historical"
)

// ErrUnauthorized is returned when the upstream rejects the supplied API key.
var ErrUnauthorized = errors.New("upstream rejected credentials")

// KPIClientConfig configures the upstream KPI API client.
type KPIClientConfig struct {
	BaseURL         string
	DefinitionsPath string
	ResultsPath     string
	HistoricalPath  string
	Timeout         time.Duration
	DefinitionsTTL  time.Duration
	// RateLimit caps requests per second across all fetches; zero disables it.
	RateLimit float64
	RateBurst int
}

// KPIClient fetches KPI definitions, 24h results and historical statistics.
// It holds no credentials; each call receives them explicitly.
type KPIClient struct {
	baseURL         string
	definitionsPath string
	resultsPath     string
	historicalPath  string
	httpClient      *http.Client
	cache           cache.Provider
	definitionsTTL  time.Duration
	limiter         *rate.Limiter
	logger          *slog.Logger
}

// NewKPIClient constructs a client targeting the configured KPI API.
func NewKPIClient(cfg KPIClientConfig, cacheProvider cache.Provider, logger *slog.Logger) *KPIClient {
	if cacheProvider == nil {
		cacheProvider = cache.NoopProvider{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.DefinitionsTTL < 0 {
		cfg.DefinitionsTTL = 0
	}
	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		if cfg.RateBurst <= 0 {
			cfg.RateBurst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst)
	}
	return &KPIClient{
		baseURL:         strings.TrimRight(cfg.BaseURL, "/"),
		definitionsPath: cfg.DefinitionsPath,
		resultsPath:     cfg.ResultsPath,
		historicalPath:  cfg.HistoricalPath,
		httpClient:      &http.Client{Timeout: cfg.Timeout},
		cache:           cacheProvider,
		definitionsTTL:  cfg.DefinitionsTTL,
		limiter:         limiter,
		logger:          logger,
	}
}

type rawDefinition struct {
	KPIID                 models.KPIID    `json:"kpiId"`
	Name                  string          `json:"name"`
	KPIInstanceParameters json.RawMessage `json:"kpiInstanceParameters"`
	Parameters            json.RawMessage `json:"parameters"`
}

// FetchDefinitions lists every KPI instance. Results are cached per API key.
func (c *KPIClient) FetchDefinitions(ctx context.Context, creds models.Credentials) ([]models.KPIDefinition, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}

	cacheKey := definitionsCacheKey(c.baseURL, creds)
	if c.definitionsTTL > 0 {
		if data, err := c.cache.Get(ctx, cacheKey); err == nil {
			var defs []models.KPIDefinition
			if err := json.Unmarshal(data, &defs); err == nil {
				return defs, nil
			}
			c.logger.Warn("discarding undecodable cached definitions", slog.String("key", cacheKey))
		} else if !errors.Is(err, cache.ErrCacheMiss) {
			c.logger.Warn("definitions cache read failed", slog.Any("error", err))
		}
	}

	var raw []rawDefinition
	found, err := c.getJSON(ctx, endpointDefinitions, c.resolvePath(c.definitionsPath), creds, &raw)
	if err != nil {
		return nil, fmt.Errorf("kpi definitions request failed: %w", err)
	}
	if !found {
		return []models.KPIDefinition{}, nil
	}

	defs := make([]models.KPIDefinition, 0, len(raw))
	for _, r := range raw {
		params := r.Parameters
		if len(params) == 0 {
			params = r.KPIInstanceParameters
		}
		defs = append(defs, models.KPIDefinition{
			KPIID:           r.KPIID,
			Name:            r.Name,
			LeadTimeSeconds: extractTimeToStart(params),
		})
	}

	if c.definitionsTTL > 0 {
		if data, err := json.Marshal(defs); err == nil {
			if err := c.cache.Set(ctx, cacheKey, data, c.definitionsTTL); err != nil {
				c.logger.Warn("definitions cache write failed", slog.Any("error", err))
			}
		}
	}
	return defs, nil
}

// FetchInstantResults returns the last 24h of results for one KPI. A 404 means no data.
func (c *KPIClient) FetchInstantResults(ctx context.Context, creds models.Credentials, kpiID models.KPIID) ([]models.RawInstantResult, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}

	var results []models.RawInstantResult
	if _, err := c.getJSON(ctx, endpointResults, c.withKPI(c.resultsPath, kpiID), creds, &results); err != nil {
		return nil, fmt.Errorf("kpi results request failed: %w", err)
	}
	for i := range results {
		// The endpoint is keyed by kpiId; payloads do not always echo it.
		results[i].KPIID = kpiID
	}
	return results, nil
}

// FetchHistoricalEntries returns the historical envelopes for one KPI. A 404 means no data.
func (c *KPIClient) FetchHistoricalEntries(ctx context.Context, creds models.Credentials, kpiID models.KPIID) ([]models.RawHistoricalEntry, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}

	var entries []models.RawHistoricalEntry
	if _, err := c.getJSON(ctx, endpointHistorical, c.withKPI(c.historicalPath, kpiID), creds, &entries); err != nil {
		return nil, fmt.Errorf("kpi historical request failed: %w", err)
	}
	return entries, nil
}

func (c *KPIClient) ready() error {
	if c == nil {
		return fmt.Errorf("kpi client not initialised")
	}
	if c.baseURL == "" {
		return fmt.Errorf("kpi API base URL not configured")
	}
	return nil
}

func (c *KPIClient) withKPI(p string, kpiID models.KPIID) string {
	endpoint := c.resolvePath(p)
	u, err := url.Parse(endpoint)
	if err != nil {
		return endpoint + "?kpiId=" + url.QueryEscape(string(kpiID))
	}
	q := u.Query()
	q.Set("kpiId", string(kpiID))
	u.RawQuery = q.Encode()
	return u.String()
}

func (c *KPIClient) resolvePath(p string) string {
	if c.baseURL == "" {
		return ""
	}
	cleaned := "/" + strings.TrimLeft(p, "/")
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return c.baseURL + cleaned
	}
	u.Path = path.Join(u.Path, cleaned)
	return u.String()
}

// getJSON issues a GET and decodes the body into out. It reports found=false on 404.
func (c *KPIClient) getJSON(ctx context.Context, label, endpoint string, creds models.Credentials, out any) (bool, error) {
	if endpoint == "" {
		return false, fmt.Errorf("empty endpoint")
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return false, fmt.Errorf("rate limit wait: %w", err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", "*/*")
	if creds.APIKey != "" {
		req.Header.Set("apiKey", creds.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.ObserveUpstream(label, 0)
		return false, err
	}
	defer resp.Body.Close()
	metrics.ObserveUpstream(label, resp.StatusCode)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		c.logger.Debug("upstream has no data", slog.String("endpoint", label), slog.String("url", endpoint))
		return false, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return false, fmt.Errorf("%w: %s", ErrUnauthorized, resp.Status)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return false, fmt.Errorf("kpi API returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, fmt.Errorf("decode response: %w", err)
	}
	return true, nil
}

// extractTimeToStart reads parameters.timetostart. Anything that is not an
// integer number of seconds yields nil.
func extractTimeToStart(params json.RawMessage) *int64 {
	if len(params) == 0 {
		return nil
	}
	var wrapper struct {
		Parameters map[string]any `json:"parameters"`
	}
	if err := json.Unmarshal(params, &wrapper); err != nil || wrapper.Parameters == nil {
		var flat map[string]any
		if err := json.Unmarshal(params, &flat); err != nil {
			return nil
		}
		wrapper.Parameters = flat
	}

	switch v := wrapper.Parameters["timetostart"].(type) {
	case float64:
		seconds := int64(v)
		if float64(seconds) != v {
			return nil
		}
		return &seconds
	case string:
		seconds, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return nil
		}
		return &seconds
	default:
		return nil
	}
}

func definitionsCacheKey(baseURL string, creds models.Credentials) string {
	sum := sha256.Sum256([]byte(baseURL + "\x00" + creds.APIKey))
	return "kpi-recon:definitions:" + hex.EncodeToString(sum[:8])
}
