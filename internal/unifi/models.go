package unifi

import (
	"time"

	"github.com/guregu/null"
)

// Client is one station known to the controller, either currently
// associated or remembered in the site's user list.
type Client struct {
	MAC      string
	Name     string
	Hostname string
	IP       string
	Site     string
	ESSID    string
	APMAC    string
	Wired    bool
	Blocked  bool
	Active   bool
	// Online is Active, or last seen within the controller's considerHome window.
	Online   bool
	Uptime   null.Int
	RSSI     null.Int
	LastSeen int64
}

func (c Client) DeviceID() string {
	return c.MAC
}

func (c Client) Equal(o Client) bool {
	return c == o
}

// Label prefers the alias an administrator gave the client.
func (c Client) Label() string {
	if c.Name != "" {
		return c.Name
	}
	return c.Hostname
}

func (c Client) LastSeenTime() (time.Time, bool) {
	if c.LastSeen <= 0 {
		return time.Time{}, false
	}
	return time.Unix(c.LastSeen, 0), true
}

type meta struct {
	RC  string `json:"rc"`
	Msg string `json:"msg"`
}

type envelope[T any] struct {
	Meta meta `json:"meta"`
	Data []T  `json:"data"`
}

type clientJSON struct {
	MAC      string   `json:"mac"`
	Name     string   `json:"name"`
	Hostname string   `json:"hostname"`
	IP       string   `json:"ip"`
	ESSID    string   `json:"essid"`
	APMAC    string   `json:"ap_mac"`
	IsWired  bool     `json:"is_wired"`
	Blocked  bool     `json:"blocked"`
	Uptime   null.Int `json:"uptime"`
	RSSI     null.Int `json:"rssi"`
	LastSeen int64    `json:"last_seen"`
}

type loginJSON struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Remember bool   `json:"remember"`
}

type stamgrJSON struct {
	Cmd string `json:"cmd"`
	MAC string `json:"mac"`
}
