package embedder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/plotline-go/internal/logging"
)

const (
	// DefaultMaxChars is the input length, in characters, beyond which text is
	// cut before being sent to a provider.
	DefaultMaxChars = 8000

	// DefaultTimeout bounds a single provider attempt. The fallback attempt
	// gets its own deadline.
	DefaultTimeout = 30 * time.Second

	// maxCallerBackends caps the per-caller backend cache.
	maxCallerBackends = 256
)

type callerKey struct{}

// WithCallerConfig returns a copy of ctx carrying the caller's own embedding
// provider configuration. The Adapter tries it before the default provider.
func WithCallerConfig(ctx context.Context, cfg ProviderConfig) context.Context {
	return context.WithValue(ctx, callerKey{}, cfg)
}

// CallerConfigFromContext returns the caller configuration attached with
// [WithCallerConfig], if any.
func CallerConfigFromContext(ctx context.Context) (ProviderConfig, bool) {
	cfg, ok := ctx.Value(callerKey{}).(ProviderConfig)
	return cfg, ok
}

// FallbackEvent describes a caller provider failure that was absorbed by the
// default provider.
type FallbackEvent struct {
	// From is the label of the caller provider that failed.
	From string
	// To is the label of the default provider used instead.
	To string
	// Err is the caller provider's failure.
	Err error
}

// AdapterConfig holds the settings for constructing an Adapter.
type AdapterConfig struct {
	// Default is the deployment-wide backend. Nil means no default provider.
	Default Backend

	// DefaultLabel names Default in logs and metrics (see ProviderConfig.Label).
	DefaultLabel string

	// MaxChars truncates input before submission. Defaults to DefaultMaxChars.
	MaxChars int

	// Timeout bounds each provider attempt. Defaults to DefaultTimeout.
	Timeout time.Duration

	// Factory builds backends for caller configurations. Defaults to New.
	Factory func(ProviderConfig) (Backend, error)

	// OnFallback, when set, is invoked after every fallback to the default provider.
	OnFallback func(ctx context.Context, ev FallbackEvent)

	// MetricsRegistry receives the adapter's Prometheus collectors. Nil leaves
	// them unregistered.
	MetricsRegistry prometheus.Registerer
}

// Adapter embeds single texts using the caller's provider when one is attached
// to the context, falling back once to the default provider on failure.
// It is safe for concurrent use.
type Adapter struct {
	// def is the default backend; nil when none is configured.
	def      Backend
	defLabel string
	maxChars int
	timeout  time.Duration

	// factory builds caller backends on first use.
	factory    func(ProviderConfig) (Backend, error)
	onFallback func(ctx context.Context, ev FallbackEvent)
	metrics    *adapterMetrics

	// mu guards callers.
	mu      sync.Mutex
	callers map[ProviderConfig]Backend
}

// NewAdapter constructs an Adapter from cfg, applying defaults for unset fields.
func NewAdapter(cfg *AdapterConfig) *Adapter {
	if cfg == nil {
		cfg = &AdapterConfig{}
	}
	a := &Adapter{
		def:        cfg.Default,
		defLabel:   cfg.DefaultLabel,
		maxChars:   cfg.MaxChars,
		timeout:    cfg.Timeout,
		factory:    cfg.Factory,
		onFallback: cfg.OnFallback,
		metrics:    newAdapterMetrics(cfg.MetricsRegistry),
		callers:    make(map[ProviderConfig]Backend),
	}
	if a.defLabel == "" {
		a.defLabel = "default"
	}
	if a.maxChars <= 0 {
		a.maxChars = DefaultMaxChars
	}
	if a.timeout <= 0 {
		a.timeout = DefaultTimeout
	}
	if a.factory == nil {
		a.factory = New
	}
	return a
}

// Configured reports whether the adapter has a default provider.
func (a *Adapter) Configured() bool { return a.def != nil }

// Embed returns the vector for text. Text is trimmed and cut to MaxChars
// characters first. The caller provider from ctx is tried first when it
// carries both a credential and a model; any failure there falls back to the
// default provider exactly once. Each attempt has its own Timeout, so a caller
// provider that hangs does not starve the fallback. Errors are *EmbeddingError.
func (a *Adapter) Embed(ctx context.Context, text string) ([]float32, error) {
	text = truncate(strings.TrimSpace(text), a.maxChars)
	if text == "" {
		return nil, &EmbeddingError{Err: ErrEmptyInput}
	}

	var tried []string
	if caller, ok := CallerConfigFromContext(ctx); ok && caller.Model != "" && caller.Usable() {
		label := caller.Label()
		tried = append(tried, label)

		vec, err := a.embedWithCaller(ctx, caller, label, text)
		if err == nil {
			return vec, nil
		}
		if a.def == nil {
			return nil, &EmbeddingError{Providers: tried, Err: err}
		}
		a.fallback(ctx, FallbackEvent{From: label, To: a.defLabel, Err: err})
	}

	if a.def == nil {
		return nil, &EmbeddingError{Providers: tried, Err: ErrNoProvider}
	}
	tried = append(tried, a.defLabel)
	vec, err := a.call(ctx, a.def, a.defLabel, text)
	if err != nil {
		return nil, &EmbeddingError{Providers: tried, Err: err}
	}
	return vec, nil
}

func (a *Adapter) embedWithCaller(ctx context.Context, cfg ProviderConfig, label, text string) ([]float32, error) {
	b, err := a.callerBackend(cfg)
	if err != nil {
		return nil, err
	}
	return a.call(ctx, b, label, text)
}

// callerBackend returns a cached backend for cfg, building one on first use.
func (a *Adapter) callerBackend(cfg ProviderConfig) (Backend, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if b, ok := a.callers[cfg]; ok {
		return b, nil
	}
	b, err := a.factory(cfg)
	if err != nil {
		return nil, err
	}
	if len(a.callers) >= maxCallerBackends {
		clear(a.callers)
	}
	a.callers[cfg] = b
	return b, nil
}

// call performs one provider request under its own deadline and records metrics.
func (a *Adapter) call(ctx context.Context, b Backend, label, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := time.Now()
	vecs, err := b.Embed(ctx, []string{text})
	a.metrics.durationSeconds.WithLabelValues(label).Observe(time.Since(start).Seconds())
	if err == nil {
		switch {
		case len(vecs) != 1:
			err = fmt.Errorf("expected 1 embedding, got %d", len(vecs))
		case len(vecs[0]) == 0:
			err = errors.New("provider returned an empty vector")
		}
	}
	if err != nil {
		a.metrics.requestsTotal.WithLabelValues(label, "error").Inc()
		return nil, err
	}
	a.metrics.requestsTotal.WithLabelValues(label, "ok").Inc()
	return vecs[0], nil
}

func (a *Adapter) fallback(ctx context.Context, ev FallbackEvent) {
	logging.FromContext(ctx).Warn("embedder: caller provider failed, using default provider",
		slog.String("event", "embedding_fallback"),
		slog.String("from", ev.From),
		slog.String("to", ev.To),
		slog.String("error", ev.Err.Error()),
	)
	a.metrics.fallbackTotal.WithLabelValues(ev.From, ev.To).Inc()
	if a.onFallback != nil {
		a.onFallback(ctx, ev)
	}
}

// truncate returns s cut to at most n runes.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
