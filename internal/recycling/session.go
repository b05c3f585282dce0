package recycling

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"

	"github.com/jgulick48/cloud-bindings/internal/binding"
)

var dateLayouts = []string{"2006-01-02", "02.01.2006", "2/1/2006"}

// Session scrapes the provider's schedule page for every watched address.
type Session struct {
	httpClient *http.Client
	baseURL    string
	addresses  func() map[string]string
	registry   *binding.Registry[Schedule]
	now        func() time.Time

	mu sync.Mutex
}

func NewSession(httpClient *http.Client, cfg Config, addresses func() map[string]string) *Session {
	return &Session{
		httpClient: binding.NewClient(httpClient, binding.DefaultTimeout),
		baseURL:    cfg.URL,
		addresses:  addresses,
		registry:   binding.NewRegistry[Schedule](),
		now:        time.Now,
	}
}

func (s *Session) Registry() *binding.Registry[Schedule] {
	return s.registry
}

func (s *Session) Initialize(ctx context.Context) bool {
	_, err := url.Parse(s.baseURL)
	return err == nil && s.baseURL != ""
}

func (s *Session) Refresh(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	addresses := s.addresses()
	schedules := make([]Schedule, 0, len(addresses))
	for id, address := range addresses {
		pickups, err := s.scrape(ctx, address)
		if err != nil {
			log.Warn().Err(err).Str("address", address).Msg("Recycling refresh failed")
			return false
		}
		schedules = append(schedules, Schedule{ID: id, Address: address, Pickups: pickups})
	}
	s.registry.Sync(schedules)
	return true
}

func (s *Session) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registry.Clear()
}

func (s *Session) scrape(ctx context.Context, address string) ([]Pickup, error) {
	target, err := url.Parse(s.baseURL)
	if err != nil {
		return nil, err
	}
	query := target.Query()
	query.Set("address", address)
	target.RawQuery = query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, binding.UnexpectedStatus(resp)
	}
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("unable to parse schedule page: %w", err)
	}
	table := doc.Find("table.pickups")
	if table.Length() == 0 {
		return nil, fmt.Errorf("%w: no pickup table for %q", binding.ErrVendor, address)
	}

	today := truncateDay(s.now())
	pickups := make([]Pickup, 0)
	table.Find("tbody tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 2 {
			return
		}
		name := strings.TrimSpace(cells.Eq(0).Text())
		date, ok := parseDate(strings.TrimSpace(cells.Eq(1).Text()))
		if !ok {
			log.Debug().Str("row", strings.TrimSpace(row.Text())).Msg("Skipping pickup row without a date")
			return
		}
		if date.Before(today) {
			return
		}
		pickups = append(pickups, Pickup{Name: name, Fraction: ParseFraction(name), Date: date})
	})
	slices.SortStableFunc(pickups, func(a, b Pickup) int {
		return a.Date.Compare(b.Date)
	})
	return pickups, nil
}

func parseDate(value string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, value, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func truncateDay(t time.Time) time.Time {
	t = t.In(time.Local)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.Local)
}
