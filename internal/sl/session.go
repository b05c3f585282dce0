package sl

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
	_ "time/tzdata"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"github.com/jgulick48/cloud-bindings/internal/binding"
)

// The API reports local Stockholm time without an offset.
var stockholm = loadStockholm()

func loadStockholm() *time.Location {
	loc, err := time.LoadLocation("Europe/Stockholm")
	if err != nil {
		return time.Local
	}
	return loc
}

const timeLayout = "2006-01-02T15:04:05"

// Session polls the realtime departures API for every watched query. There
// is no login; the API key travels on each request.
type Session struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	queries    func() map[string]Query
	registry   *binding.Registry[Board]

	mu sync.Mutex
}

func NewSession(httpClient *http.Client, cfg Config, queries func() map[string]Query) *Session {
	return &Session{
		httpClient: binding.NewClient(httpClient, binding.DefaultTimeout),
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		queries:    queries,
		registry:   binding.NewRegistry[Board](),
	}
}

func (s *Session) Registry() *binding.Registry[Board] {
	return s.registry
}

func (s *Session) Initialize(ctx context.Context) bool {
	return s.apiKey != ""
}

func (s *Session) Refresh(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	boards, err := s.poll(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("SL refresh failed")
		return false
	}
	s.registry.Sync(boards)
	return true
}

func (s *Session) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registry.Clear()
}

type siteKey struct {
	site   string
	window int
}

func (s *Session) poll(ctx context.Context) ([]Board, error) {
	queries := s.queries()
	responses := make(map[siteKey]responseJSON)
	boards := make([]Board, 0, len(queries))
	for id, q := range queries {
		key := siteKey{site: q.SiteID, window: q.TimeWindow}
		resp, ok := responses[key]
		if !ok {
			var err error
			if resp, err = s.departures(ctx, q.SiteID, q.TimeWindow); err != nil {
				return nil, err
			}
			responses[key] = resp
		}
		boards = append(boards, board(id, q, resp))
	}
	return boards, nil
}

func board(id string, q Query, resp responseJSON) Board {
	b := Board{ID: id, SiteID: q.SiteID, Departures: make([]Departure, 0)}
	for _, d := range resp.all() {
		departure := Departure{
			Mode:        d.TransportMode,
			Line:        d.LineNumber,
			Destination: d.Destination,
			Direction:   d.JourneyDirection,
			DisplayTime: d.DisplayTime,
			Scheduled:   parseTime(d.TimeTabledDateTime),
			Expected:    parseTime(d.ExpectedDateTime),
		}
		if !q.Matches(departure) {
			continue
		}
		b.Departures = append(b.Departures, departure)
		for _, deviation := range d.Deviations {
			b.Deviations = appendUnique(b.Deviations, deviation.Text)
		}
	}
	for _, deviation := range resp.ResponseData.StopPointDeviations {
		b.Deviations = appendUnique(b.Deviations, deviation.Deviation.Text)
	}
	slices.SortStableFunc(b.Departures, func(a, o Departure) int {
		return a.When().Compare(o.When())
	})
	return b
}

func appendUnique(list []string, value string) []string {
	value = strings.TrimSpace(value)
	if value == "" || slices.Contains(list, value) {
		return list
	}
	return append(list, value)
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	t, err := time.ParseInLocation(timeLayout, value, stockholm)
	if err != nil {
		log.Debug().Err(err).Str("value", value).Msg("Unparseable departure time")
		return time.Time{}
	}
	return t
}

func (s *Session) departures(ctx context.Context, siteID string, window int) (responseJSON, error) {
	var result responseJSON
	query := url.Values{
		"key":        {s.apiKey},
		"siteid":     {siteID},
		"timewindow": {strconv.Itoa(window)},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/realtimedeparturesV4.json?"+query.Encode(), nil)
	if err != nil {
		return result, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return result, fmt.Errorf("site %s: %w", siteID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return result, binding.UnexpectedStatus(resp)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return result, err
	}
	if code := gjson.GetBytes(body, "StatusCode").Int(); code != 0 {
		return result, fmt.Errorf("%w: site %s status %d: %s", binding.ErrVendor, siteID, code, gjson.GetBytes(body, "Message").String())
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return result, fmt.Errorf("unable to decode departures for site %s: %w", siteID, err)
	}
	return result, nil
}
