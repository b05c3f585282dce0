package sl

import (
	"fmt"
	"maps"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jgulick48/cloud-bindings/internal/binding"
	"github.com/jgulick48/cloud-bindings/internal/scheduler"
	"github.com/jgulick48/cloud-bindings/internal/thing"
)

type Config struct {
	APIKey  string `json:"apiKey"`
	BaseURL string `json:"baseUrl"`
	Refresh int    `json:"refresh"`
}

func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Refresh <= 0 {
		c.Refresh = DefaultRefresh
	}
}

func (c Config) validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("apiKey is required")
	}
	return nil
}

// Bridge holds the API key and the queries of its departures things.
type Bridge struct {
	*binding.BridgeHandler
	httpClient *http.Client

	mu      sync.Mutex
	session *Session
	queries map[string]Query
}

func NewBridge(t thing.Thing, callback thing.Callback, sched scheduler.Scheduler, httpClient *http.Client) *Bridge {
	return &Bridge{
		BridgeHandler: binding.NewBridgeHandler(t, callback, sched),
		httpClient:    httpClient,
		queries:       make(map[string]Query),
	}
}

func (b *Bridge) Initialize() {
	var cfg Config
	if err := b.Thing().Configuration.As(&cfg); err != nil {
		b.Fail(thing.DetailConfigurationError, err.Error())
		return
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		b.Fail(thing.DetailConfigurationError, err.Error())
		return
	}
	session := NewSession(b.httpClient, cfg, b.Queries)
	b.mu.Lock()
	b.session = session
	b.mu.Unlock()
	log.Info().Str("bridge", string(b.Thing().UID)).Int("refresh", cfg.Refresh).Msg("Starting SL bridge")
	b.Start(session, time.Duration(cfg.Refresh)*time.Second)
}

// Watch adds or replaces the query polled for a departures thing.
func (b *Bridge) Watch(id string, q Query) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queries[binding.NormalizeID(id)] = q
}

func (b *Bridge) Unwatch(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.queries, binding.NormalizeID(id))
}

func (b *Bridge) Queries() map[string]Query {
	b.mu.Lock()
	defer b.mu.Unlock()
	return maps.Clone(b.queries)
}

func (b *Bridge) Session() *Session {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.session
}

func (b *Bridge) Registry() *binding.Registry[Board] {
	session := b.Session()
	if session == nil {
		return nil
	}
	return session.Registry()
}

func (b *Bridge) HandleCommand(channel thing.ChannelUID, command thing.Command) {
	if _, ok := command.(thing.RefreshType); ok {
		b.Refresh()
	}
}

func (b *Bridge) Dispose() {
	b.BridgeHandler.Dispose()
	b.mu.Lock()
	b.session = nil
	b.mu.Unlock()
}
