package app

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"keybridge/internal/bridge"
	"keybridge/internal/gateway"
	"keybridge/internal/keycache"
	"keybridge/internal/metrics"
	"keybridge/internal/relay"
	"keybridge/internal/services/identity"
	"keybridge/internal/services/message"
	"keybridge/internal/store"
)

// Wire bundles all stores, services, and clients for the CLI.
type Wire struct {
	Config     Config
	Log        zerolog.Logger
	Registry   *prometheus.Registry
	Metrics    *metrics.Metrics
	Contacts   *store.ContactFileStore
	Identities *identity.Service
	Relay      *relay.Client
	Gateway    *gateway.Client
	Keys       *keycache.Cache
	Messages   *message.Service
	HTTP       *http.Client
}

// NewWire constructs the dependency graph from cfg, which must be valid.
func NewWire(cfg Config, log zerolog.Logger) (*Wire, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(reg, cfg.Metrics.Namespace)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	httpClient := &http.Client{Timeout: 30 * time.Second}

	contacts := store.NewContactFileStore(cfg.Home)
	ids := identity.New(contacts)

	rc, err := relay.NewClient(cfg.Relay.URL, ids,
		relay.WithHTTPClient(httpClient),
		relay.WithClientLogger(log.With().Str("component", "relay").Logger()),
	)
	if err != nil {
		return nil, err
	}

	gw, err := gateway.NewClient(cfg.Gateway.BaseURL,
		gateway.WithHTTPClient(httpClient),
		gateway.WithLogger(log.With().Str("component", "gateway").Logger()),
		gateway.WithRateLimit(cfg.Gateway.RateLimit, cfg.Gateway.Burst),
	)
	if err != nil {
		return nil, err
	}

	accounts, err := cfg.Gateway.MessageAccounts()
	if err != nil {
		return nil, err
	}
	keys := keycache.New(cfg.Gateway.KeyCacheSize)
	msgs := message.New(gw, keys, accounts,
		message.WithLogger(log.With().Str("component", "messages").Logger()),
		message.WithMetrics(m),
	)

	return &Wire{
		Config:     cfg,
		Log:        log,
		Registry:   reg,
		Metrics:    m,
		Contacts:   contacts,
		Identities: ids,
		Relay:      rc,
		Gateway:    gw,
		Keys:       keys,
		Messages:   msgs,
		HTTP:       httpClient,
	}, nil
}

// Supervisor returns a bridge supervisor over the relay network.
func (w *Wire) Supervisor() *bridge.Supervisor {
	return bridge.New(w.Relay,
		bridge.WithLogger(w.Log.With().Str("component", "bridge").Logger()),
		bridge.WithMetrics(w.Metrics),
		bridge.WithBackoff(w.Config.Bridge.Backoff),
		bridge.WithEventBuffer(w.Config.Bridge.EventBuffer),
	)
}

// MetricsHandler serves the registry in the Prometheus text format.
func (w *Wire) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(w.Registry, promhttp.HandlerOpts{})
}

// WebhookRouter routes gateway callbacks to sink. It also serves /metrics
// unless metrics have their own listener.
func (w *Wire) WebhookRouter(sink gateway.Sink) http.Handler {
	r := mux.NewRouter()
	h := gateway.NewWebhookHandler(w.Messages, sink, w.Log.With().Str("component", "webhook").Logger(), w.Metrics)
	r.Handle(w.Config.Webhook.Path, h).Methods(http.MethodPost)
	r.HandleFunc("/healthz", func(rw http.ResponseWriter, _ *http.Request) {
		rw.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)
	if w.Config.Metrics.Listen == "" {
		r.Handle("/metrics", w.MetricsHandler()).Methods(http.MethodGet)
	}
	return r
}
