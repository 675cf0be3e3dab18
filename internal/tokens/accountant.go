package tokens

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/robfig/cron/v3"

	"github.com/haasonsaas/coda/internal/toolexec"
	"github.com/haasonsaas/coda/pkg/model"
)

// defaultContextWindow is used for a model with no entry in the window
// table, conservative enough to trigger compaction rather than silently
// overrun a real, smaller window.
const defaultContextWindow = 128000

// PressureThresholds are the auto-compact and hard-warn fractions of a
// model's context window.
const (
	AutoCompactThreshold = 0.75
	HardWarnThreshold    = 0.90
)

// Price is a per-million-token rate, used only for cost reporting.
type Price struct {
	InputPerMillion  float64
	OutputPerMillion float64
}

// DefaultModelWindows is the fixed model-to-context-window mapping; it is
// updated at release time alongside new model support, same as the
// provider Models() lists it mirrors.
func DefaultModelWindows() map[string]int {
	return map[string]int{
		"claude-sonnet-4-20250514":  200000,
		"claude-opus-4-20250514":    200000,
		"claude-3-5-sonnet-20241022": 200000,
		"claude-3-haiku-20240307":   200000,
		"gpt-4o":                    128000,
		"gpt-4-turbo":               128000,
		"gpt-4":                     8192,
		"gpt-3.5-turbo":             16385,
	}
}

// DefaultPriceTable is a starter per-model price map; operators override
// it via config as prices change.
func DefaultPriceTable() map[string]Price {
	return map[string]Price{
		"claude-sonnet-4-20250514":  {InputPerMillion: 3, OutputPerMillion: 15},
		"claude-opus-4-20250514":    {InputPerMillion: 15, OutputPerMillion: 75},
		"claude-3-5-sonnet-20241022": {InputPerMillion: 3, OutputPerMillion: 15},
		"claude-3-haiku-20240307":   {InputPerMillion: 0.25, OutputPerMillion: 1.25},
		"gpt-4o":                    {InputPerMillion: 2.5, OutputPerMillion: 10},
		"gpt-4-turbo":               {InputPerMillion: 10, OutputPerMillion: 30},
	}
}

// Metrics holds the Prometheus collectors the accountant reports through.
// NewMetrics registers with the default registry and should be called
// once at application startup.
type Metrics struct {
	estimatedTokens *prometheus.HistogramVec
	pressure        *prometheus.GaugeVec
}

// NewMetrics creates and registers the token accountant's metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		estimatedTokens: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "coda_tokens_estimated",
			Help:    "Estimated token count per pressure check, by model.",
			Buckets: prometheus.ExponentialBuckets(1000, 2, 10),
		}, []string{"model"}),
		pressure: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "coda_context_pressure_ratio",
			Help: "Estimated tokens divided by the model's context window.",
		}, []string{"model"}),
	}
}

// Accountant estimates token pressure against a fixed per-model context
// window table and reports per-model cost from tallied usage counters.
type Accountant struct {
	mu      sync.RWMutex
	windows map[string]int
	prices  map[string]Price
	metrics *Metrics
	sweep   *cron.Cron
}

// NewAccountant builds an Accountant. A nil windows/prices map falls back
// to the package defaults; metrics may be nil to skip Prometheus
// reporting entirely (e.g. in tests).
func NewAccountant(windows map[string]int, prices map[string]Price, metrics *Metrics) *Accountant {
	if windows == nil {
		windows = DefaultModelWindows()
	}
	if prices == nil {
		prices = DefaultPriceTable()
	}
	return &Accountant{windows: windows, prices: prices, metrics: metrics}
}

func (a *Accountant) windowFor(modelID string) int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if w, ok := a.windows[modelID]; ok && w > 0 {
		return w
	}
	return defaultContextWindow
}

// Pressure estimates modelID's request size and returns it as a fraction
// of that model's context window, satisfying engine.Accountant.
func (a *Accountant) Pressure(modelID, system string, messages []*model.Message, tools []toolexec.Tool) float64 {
	estimated := EstimateConversation(system, messages, tools)
	window := a.windowFor(modelID)
	pressure := float64(estimated) / float64(window)

	if a.metrics != nil {
		a.metrics.estimatedTokens.WithLabelValues(modelID).Observe(float64(estimated))
		a.metrics.pressure.WithLabelValues(modelID).Set(pressure)
	}
	return pressure
}

// IsHardWarn reports whether pressure has crossed the hard-warn threshold,
// independent of whether auto-compact already fired at 75%.
func IsHardWarn(pressure float64) bool {
	return pressure >= HardWarnThreshold
}

// EstimateCost multiplies tallied usage counters by modelID's price
// entry; an unpriced model reports zero cost rather than an error, since
// cost is informational, not a billing source of truth.
func (a *Accountant) EstimateCost(modelID string, usage model.Usage) float64 {
	a.mu.RLock()
	price, ok := a.prices[modelID]
	a.mu.RUnlock()
	if !ok {
		return 0
	}
	return float64(usage.InputTokens)/1e6*price.InputPerMillion +
		float64(usage.OutputTokens)/1e6*price.OutputPerMillion
}

// StartPressureSweep schedules sweep to run on a cron spec (standard
// 5-field cron, or a "@every 30s"-style descriptor), for a daemon that
// wants to check idle conversations' token pressure between turns rather
// than only inline during one. Calling it twice replaces the previous
// schedule.
func (a *Accountant) StartPressureSweep(spec string, sweep func()) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.sweep != nil {
		a.sweep.Stop()
	}

	c := cron.New()
	if _, err := c.AddFunc(spec, sweep); err != nil {
		return err
	}
	c.Start()
	a.sweep = c
	return nil
}

// StopPressureSweep halts a previously started sweep, if any.
func (a *Accountant) StopPressureSweep() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sweep != nil {
		a.sweep.Stop()
		a.sweep = nil
	}
}
