package weconnect

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
	Username    string `json:"username"`
	Password    string `json:"password"`
	PIN         string `json:"pin"`
	IdentityURL string `json:"identityUrl"`
	TokenURL    string `json:"tokenUrl"`
	APIURL      string `json:"apiUrl"`
	SecurityURL string `json:"securityUrl"`
	Refresh     int    `json:"refresh"`
}

func (c *Config) applyDefaults() {
	if c.IdentityURL == "" {
		c.IdentityURL = DefaultIdentityURL
	}
	if c.TokenURL == "" {
		c.TokenURL = DefaultTokenURL
	}
	if c.APIURL == "" {
		c.APIURL = DefaultAPIURL
	}
	if c.SecurityURL == "" {
		c.SecurityURL = DefaultSecurityURL
	}
	if c.Refresh <= 0 {
		c.Refresh = DefaultRefresh
	}
}

func (c Config) validate() error {
	if c.Username == "" || c.Password == "" {
		return fmt.Errorf("username and password are required")
	}
	return nil
}

// Bridge owns the We-Connect token session of one account.
type Bridge struct {
	*binding.BridgeHandler
	httpClient *http.Client

	mu      sync.Mutex
	config  Config
	session *Session
}

func NewBridge(t thing.Thing, callback thing.Callback, sched scheduler.Scheduler, httpClient *http.Client) *Bridge {
	return &Bridge{
		BridgeHandler: binding.NewBridgeHandler(t, callback, sched),
		httpClient:    httpClient,
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
	session := NewSession(b.httpClient, cfg)
	b.mu.Lock()
	b.config = cfg
	b.session = session
	b.mu.Unlock()
	log.Info().Str("bridge", string(b.Thing().UID)).Int("refresh", cfg.Refresh).Msg("Starting We-Connect bridge")
	b.Start(session, time.Duration(cfg.Refresh)*time.Second)
}

func (b *Bridge) Session() *Session {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.session
}

func (b *Bridge) Registry() *binding.Registry[Vehicle] {
	session := b.Session()
	if session == nil {
		return nil
	}
	return session.Registry()
}

func (b *Bridge) PIN() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.config.PIN
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
