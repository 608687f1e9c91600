package main

import (
	"encoding/json"
	"log"
	"math"
	"net/http"
	"os"
	"strconv"
	"time"
)

const bucket = 5 * time.Minute

type kpi struct {
	ID          int
	Name        string
	LeadSeconds int64
	Base        float64
}

var kpis = []kpi{
	{ID: 101, Name: "Traffic volume", LeadSeconds: 900, Base: 1200},
	{ID: 102, Name: "Average speed", LeadSeconds: 1800, Base: 85},
	{ID: 103, Name: "Queue length", Base: 40},
}

type overallResult struct {
	Value       float64 `json:"value"`
	Progressive int64   `json:"progressive"`
}

type instantResult struct {
	KPIID         int           `json:"kpiId"`
	TimeStamp     string        `json:"timeStamp"`
	OverallResult overallResult `json:"overallResult"`
	Results       []any         `json:"results"`
	Source        string        `json:"source"`
}

type historicalValues struct {
	Value        float64 `json:"value"`
	DefaultValue float64 `json:"defaultValue"`
	AverageValue float64 `json:"averageValue"`
	UnusualValue float64 `json:"unusualValue"`
	Progressive  int64   `json:"progressive"`
}

type historicalEntry struct {
	TimeStamp string             `json:"timeStamp"`
	Results   []historicalValues `json:"results"`
}

func main() {
	addr := os.Getenv("MOCK_KPI_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	logger := log.New(log.Writer(), "kpi-mock ", log.LstdFlags|log.Lmicroseconds)
	srv := &http.Server{
		Addr:    addr,
		Handler: logRequests(logger, newHandler(time.Now, os.Getenv("MOCK_KPI_API_KEY"))),
	}

	logger.Printf("listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("server error: %v", err)
	}
}

func newHandler(now func() time.Time, apiKey string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/kpieng/v1/instance/all", func(w http.ResponseWriter, r *http.Request) {
		if !enforceGet(w, r) || !authorised(w, r, apiKey) {
			return
		}
		defs := make([]map[string]any, 0, len(kpis))
		for _, k := range kpis {
			params := map[string]any{}
			if k.LeadSeconds > 0 {
				params["timetostart"] = k.LeadSeconds
			}
			defs = append(defs, map[string]any{
				"kpiId":                 k.ID,
				"name":                  k.Name,
				"kpiInstanceParameters": map[string]any{"parameters": params},
			})
		}
		writeJSON(w, defs)
	})

	mux.HandleFunc("/kpieng/v1/result/by-kpi-id", func(w http.ResponseWriter, r *http.Request) {
		if !enforceGet(w, r) || !authorised(w, r, apiKey) {
			return
		}
		k, ok := lookup(r)
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writeJSON(w, instantResults(k, now()))
	})

	mux.HandleFunc("/kpistats/v1/historical/result/by-kpi-id", func(w http.ResponseWriter, r *http.Request) {
		if !enforceGet(w, r) || !authorised(w, r, apiKey) {
			return
		}
		k, ok := lookup(r)
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writeJSON(w, historicalEntries(k, now()))
	})
	return mux
}

// instantResults emits one forecast per bucket over the last 24h. Each value
// predicts the bucket LeadSeconds ahead.
func instantResults(k kpi, now time.Time) []instantResult {
	end := now.UTC().Truncate(bucket)
	out := make([]instantResult, 0, 288)
	for t := end.Add(-24 * time.Hour); t.Before(end); t = t.Add(bucket) {
		target := t.Add(time.Duration(k.LeadSeconds) * time.Second)
		out = append(out, instantResult{
			KPIID:     k.ID,
			TimeStamp: t.Add(37 * time.Second).Format(time.RFC3339),
			OverallResult: overallResult{
				Value:       round2(k.Base * shape(target) * (1 + 0.08*math.Sin(float64(t.Unix())/977))),
				Progressive: progressive(target),
			},
			Results: []any{},
			Source:  "mock",
		})
	}
	return out
}

// historicalEntries emits two partial records per bucket so that the
// aggregated value equals the recorded one.
func historicalEntries(k kpi, now time.Time) []historicalEntry {
	end := now.UTC().Truncate(bucket).Add(time.Hour)
	out := make([]historicalEntry, 0, 2*300)
	for t := end.Add(-25 * time.Hour); t.Before(end); t = t.Add(bucket) {
		actual := round2(k.Base * shape(t))
		half := historicalValues{
			Value:        actual / 2,
			DefaultValue: round2(k.Base / 2),
			AverageValue: round2(k.Base * shape(t) / 2),
			UnusualValue: 0,
			Progressive:  progressive(t),
		}
		for _, offset := range []time.Duration{time.Minute, 3 * time.Minute} {
			out = append(out, historicalEntry{
				TimeStamp: t.Add(offset).Format(time.RFC3339),
				Results:   []historicalValues{half},
			})
		}
	}
	return out
}

// shape is a two-hump daily profile peaking mid-morning and early evening.
func shape(t time.Time) float64 {
	h := float64(t.Hour()) + float64(t.Minute())/60
	morning := math.Exp(-math.Pow(h-9, 2) / 4)
	evening := math.Exp(-math.Pow(h-17.5, 2) / 5)
	return 0.25 + morning + 0.9*evening
}

func progressive(t time.Time) int64 {
	return int64(t.Hour()*60+t.Minute()) / int64(bucket/time.Minute)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func lookup(r *http.Request) (kpi, bool) {
	id := r.URL.Query().Get("kpiId")
	for _, k := range kpis {
		if id == strconv.Itoa(k.ID) {
			return k, true
		}
	}
	return kpi{}, false
}

func authorised(w http.ResponseWriter, r *http.Request, apiKey string) bool {
	if apiKey == "" || r.Header.Get("apiKey") == apiKey {
		return true
	}
	w.WriteHeader(http.StatusUnauthorized)
	return false
}

func enforceGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode error: %v", err)
	}
}

func logRequests(logger *log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		logger.Printf("%s %s %d %s", r.Method, r.URL.RequestURI(), rw.status, time.Since(start))
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
