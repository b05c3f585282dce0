package unifi

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jgulick48/cloud-bindings/internal/binding"
	"github.com/jgulick48/cloud-bindings/internal/scheduler"
	"github.com/jgulick48/cloud-bindings/internal/thing"
)

type Config struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	Username     string `json:"username"`
	Password     string `json:"password"`
	Site         string `json:"site"`
	Refresh      int    `json:"refresh"`
	ConsiderHome int    `json:"considerHome"`
	// URL overrides host and port, mostly for controllers behind a proxy.
	URL string `json:"url"`
}

func (c *Config) applyDefaults() {
	if c.Port <= 0 {
		c.Port = DefaultPort
	}
	if c.Site == "" {
		c.Site = DefaultSite
	}
	if c.Refresh <= 0 {
		c.Refresh = DefaultRefresh
	}
	if c.ConsiderHome <= 0 {
		c.ConsiderHome = DefaultConsiderHome
	}
}

func (c Config) validate() error {
	if c.Host == "" && c.URL == "" {
		return fmt.Errorf("host is required")
	}
	if c.Username == "" || c.Password == "" {
		return fmt.Errorf("username and password are required")
	}
	return nil
}

func (c Config) baseURL() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf("https://%s:%d", c.Host, c.Port)
}

// Controller is the bridge for one controller site.
type Controller struct {
	*binding.BridgeHandler
	httpClient *http.Client

	mu      sync.Mutex
	session *Session
}

func NewController(t thing.Thing, callback thing.Callback, sched scheduler.Scheduler, httpClient *http.Client) *Controller {
	return &Controller{
		BridgeHandler: binding.NewBridgeHandler(t, callback, sched),
		httpClient:    httpClient,
	}
}

func (c *Controller) Initialize() {
	var cfg Config
	if err := c.Thing().Configuration.As(&cfg); err != nil {
		c.Fail(thing.DetailConfigurationError, err.Error())
		return
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		c.Fail(thing.DetailConfigurationError, err.Error())
		return
	}
	session := NewSession(c.httpClient, cfg)
	c.mu.Lock()
	c.session = session
	c.mu.Unlock()
	log.Info().Str("bridge", string(c.Thing().UID)).Str("site", cfg.Site).Int("refresh", cfg.Refresh).Msg("Starting UniFi controller")
	c.Start(session, time.Duration(cfg.Refresh)*time.Second)
}

func (c *Controller) Session() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

func (c *Controller) Registry() *binding.Registry[Client] {
	session := c.Session()
	if session == nil {
		return nil
	}
	return session.Registry()
}

func (c *Controller) HandleCommand(channel thing.ChannelUID, command thing.Command) {
	if _, ok := command.(thing.RefreshType); ok {
		c.Refresh()
	}
}

func (c *Controller) Dispose() {
	c.BridgeHandler.Dispose()
	c.mu.Lock()
	c.session = nil
	c.mu.Unlock()
}
