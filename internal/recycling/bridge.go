package recycling

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
	URL     string `json:"url"`
	Refresh int    `json:"refresh"`
}

func (c *Config) applyDefaults() {
	if c.Refresh <= 0 {
		c.Refresh = DefaultRefresh
	}
}

func (c Config) validate() error {
	if c.URL == "" {
		return fmt.Errorf("url is required")
	}
	return nil
}

// Provider is the bridge for one municipality's schedule page.
type Provider struct {
	*binding.BridgeHandler
	httpClient *http.Client

	mu        sync.Mutex
	session   *Session
	addresses map[string]string
}

func NewProvider(t thing.Thing, callback thing.Callback, sched scheduler.Scheduler, httpClient *http.Client) *Provider {
	return &Provider{
		BridgeHandler: binding.NewBridgeHandler(t, callback, sched),
		httpClient:    httpClient,
		addresses:     make(map[string]string),
	}
}

func (p *Provider) Initialize() {
	var cfg Config
	if err := p.Thing().Configuration.As(&cfg); err != nil {
		p.Fail(thing.DetailConfigurationError, err.Error())
		return
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		p.Fail(thing.DetailConfigurationError, err.Error())
		return
	}
	session := NewSession(p.httpClient, cfg, p.Addresses)
	p.mu.Lock()
	p.session = session
	p.mu.Unlock()
	log.Info().Str("bridge", string(p.Thing().UID)).Str("url", cfg.URL).Msg("Starting recycling provider")
	p.Start(session, time.Duration(cfg.Refresh)*time.Second)
}

func (p *Provider) Watch(id string, address string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.addresses[binding.NormalizeID(id)] = address
}

func (p *Provider) Unwatch(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.addresses, binding.NormalizeID(id))
}

func (p *Provider) Addresses() map[string]string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return maps.Clone(p.addresses)
}

func (p *Provider) Session() *Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.session
}

func (p *Provider) Registry() *binding.Registry[Schedule] {
	session := p.Session()
	if session == nil {
		return nil
	}
	return session.Registry()
}

func (p *Provider) HandleCommand(channel thing.ChannelUID, command thing.Command) {
	if _, ok := command.(thing.RefreshType); ok {
		p.Refresh()
	}
}

func (p *Provider) Dispose() {
	p.BridgeHandler.Dispose()
	p.mu.Lock()
	p.session = nil
	p.mu.Unlock()
}
