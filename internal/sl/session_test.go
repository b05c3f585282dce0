package sl

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/jgulick48/cloud-bindings/internal/binding"
	"github.com/jgulick48/cloud-bindings/internal/scheduler"
	"github.com/jgulick48/cloud-bindings/internal/thing"
	"github.com/jgulick48/cloud-bindings/internal/thing/thingtest"
)

const (
	apiKey   = "key-1"
	siteID   = "9192"
	metroDep = `{"TransportMode":"METRO","LineNumber":"17","Destination":"Åkeshov","JourneyDirection":1,"DisplayTime":"4 min","TimeTabledDateTime":"2024-03-01T12:04:00","ExpectedDateTime":"2024-03-01T12:04:30"}`
	busDep   = `{"TransportMode":"BUS","LineNumber":"4","Destination":"Radiohuset","JourneyDirection":2,"DisplayTime":"Nu","TimeTabledDateTime":"2024-03-01T12:00:00","ExpectedDateTime":"2024-03-01T12:01:00","Deviations":[{"Text":"Kortare tåg"}]}`
	laterBus = `{"TransportMode":"BUS","LineNumber":"4","Destination":"Radiohuset","JourneyDirection":2,"DisplayTime":"12:20","TimeTabledDateTime":"2024-03-01T12:20:00"}`
)

type fakeAPI struct {
	*http.ServeMux
	mu       sync.Mutex
	requests int
	status   int
	buses    string
}

func newFakeAPI() *fakeAPI {
	f := &fakeAPI{ServeMux: http.NewServeMux(), buses: busDep + "," + laterBus}
	f.HandleFunc("/realtimedeparturesV4.json", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.requests++
		q := r.URL.Query()
		if q.Get("key") != apiKey {
			fmt.Fprint(w, `{"StatusCode":1002,"Message":"Key is invalid","ResponseData":null}`)
			return
		}
		if f.status != 0 {
			fmt.Fprintf(w, `{"StatusCode":%d,"Message":"Backend down","ResponseData":null}`, f.status)
			return
		}
		if q.Get("siteid") != siteID {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fmt.Fprintf(w, `{"StatusCode":0,"ResponseData":{"LatestUpdate":"2024-03-01T11:59:40","Metros":[%s],"Buses":[%s],"Trains":[],"StopPointDeviations":[{"Deviation":{"Text":"Hiss ur funktion"}}]}}`, metroDep, f.buses)
	})
	return f
}

func (f *fakeAPI) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests
}

func newTestSession(t *testing.T, fake *fakeAPI, key string, queries map[string]Query) *Session {
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)
	cfg := Config{APIKey: key, BaseURL: server.URL}
	cfg.applyDefaults()
	return NewSession(server.Client(), cfg, func() map[string]Query { return queries })
}

func local(value string) time.Time {
	t, _ := time.ParseInLocation(timeLayout, value, stockholm)
	return t
}

func TestSession_RefreshSortsAndFilters(t *testing.T) {
	fake := newFakeAPI()
	session := newTestSession(t, fake, apiKey, map[string]Query{
		"all":   {SiteID: siteID, TimeWindow: 30},
		"buses": {SiteID: siteID, TimeWindow: 30, Modes: []string{"bus"}},
		"metro": {SiteID: siteID, TimeWindow: 30, Lines: []string{"17"}, Direction: 2},
	})

	require.True(t, session.Initialize(context.Background()))
	require.True(t, session.Refresh(context.Background()))
	assert.Equal(t, 1, fake.requestCount(), "queries on the same site share one request")

	all, ok := session.Registry().Get("all")
	require.True(t, ok)
	require.Len(t, all.Departures, 3)
	assert.Equal(t, "4", all.Departures[0].Line)
	assert.Equal(t, "17", all.Departures[1].Line)
	assert.Equal(t, local("2024-03-01T12:20:00"), all.Departures[2].When())
	assert.Equal(t, []string{"Kortare tåg", "Hiss ur funktion"}, all.Deviations)

	buses, _ := session.Registry().Get("buses")
	assert.Len(t, buses.Departures, 2)

	metro, _ := session.Registry().Get("metro")
	assert.Empty(t, metro.Departures)
}

func TestSession_InvalidKey(t *testing.T) {
	session := newTestSession(t, newFakeAPI(), "wrong", map[string]Query{"all": {SiteID: siteID, TimeWindow: 30}})
	assert.True(t, session.Initialize(context.Background()))
	assert.False(t, session.Refresh(context.Background()))
}

func TestSession_MissingKeyFailsInitialize(t *testing.T) {
	session := newTestSession(t, newFakeAPI(), "", nil)
	assert.False(t, session.Initialize(context.Background()))
}

func TestSession_VendorStatusFailsRefresh(t *testing.T) {
	fake := newFakeAPI()
	fake.status = 5321
	session := newTestSession(t, fake, apiKey, map[string]Query{"all": {SiteID: siteID, TimeWindow: 30}})
	assert.False(t, session.Refresh(context.Background()))
	assert.Equal(t, 0, session.Registry().Len())
}

func TestQuery_Matches(t *testing.T) {
	bus := Departure{Mode: "BUS", Line: "4", Direction: 2}
	assert.True(t, Query{}.Matches(bus))
	assert.True(t, Query{Modes: []string{"metro", "Bus"}}.Matches(bus))
	assert.False(t, Query{Modes: []string{"TRAIN"}}.Matches(bus))
	assert.False(t, Query{Lines: []string{"1", "3"}}.Matches(bus))
	assert.False(t, Query{Direction: 1}.Matches(bus))
}

func TestBoard_EqualComparesTimesByInstant(t *testing.T) {
	a := Board{ID: "b", Departures: []Departure{{Line: "4", Expected: local("2024-03-01T12:00:00")}}}
	b := Board{ID: "b", Departures: []Departure{{Line: "4", Expected: local("2024-03-01T12:00:00").UTC()}}}
	assert.True(t, a.Equal(b))
	b.Departures[0].DisplayTime = "Nu"
	assert.False(t, a.Equal(b))
}

type DeparturesHandlerTest struct {
	suite.Suite
	fake     *fakeAPI
	server   *httptest.Server
	sched    *scheduler.Manual
	callback *thingtest.Recorder
	bridge   *Bridge
	handler  *DeparturesHandler
}

func (s *DeparturesHandlerTest) SetupTest() {
	s.fake = newFakeAPI()
	s.server = httptest.NewServer(s.fake)
	s.sched = scheduler.NewManual(time.Unix(0, 0))
	s.callback = thingtest.NewRecorder()
	factory := NewFactory(s.sched, s.server.Client())

	bridge, err := factory.Create(thing.Thing{
		UID:           "sl:bridge:api",
		Type:          ThingTypeBridge,
		Configuration: thing.Configuration{"apiKey": apiKey, "baseUrl": s.server.URL},
	}, nil, s.callback)
	s.Require().NoError(err)
	s.bridge = bridge.(*Bridge)
	s.bridge.Initialize()
	s.sched.RunPending()

	handler, err := factory.Create(thing.Thing{
		UID:           "sl:departures:api:home",
		Type:          ThingTypeDepartures,
		Bridge:        "sl:bridge:api",
		Configuration: thing.Configuration{"siteId": siteID, "transportModes": "BUS"},
	}, s.bridge, s.callback)
	s.Require().NoError(err)
	s.handler = handler.(*DeparturesHandler)
	s.handler.Initialize()
}

func (s *DeparturesHandlerTest) TearDownTest() {
	s.bridge.Dispose()
	s.server.Close()
}

func (s *DeparturesHandlerTest) state(channel string) thing.State {
	state, _ := s.callback.State(s.handler.Thing().UID, channel)
	return state
}

func (s *DeparturesHandlerTest) Test_NewThingTriggersImmediateRefresh() {
	s.Equal(1, s.sched.PendingOneOff())
	s.sched.Advance(binding.DefaultImmediateRefreshDelay)

	s.Equal(thing.Decimal(2), s.state(ChannelDepartureCount))
	s.Equal(thing.NewDateTime(local("2024-03-01T12:01:00")), s.state(ChannelNextDeparture))
	s.Equal(thing.String("4"), s.state(ChannelNextLine))
	s.Equal(thing.String("Radiohuset"), s.state(ChannelNextDestination))
	s.Equal(thing.String("Nu"), s.state(ChannelNextDisplayTime))
	s.Equal(thing.NewDateTime(local("2024-03-01T12:20:00")), s.state(ChannelFollowingDeparture))
	s.Equal(thing.String("Kortare tåg; Hiss ur funktion"), s.state(ChannelDeviations))
}

func (s *DeparturesHandlerTest) Test_NoDeparturesPublishesUndef() {
	s.fake.mu.Lock()
	s.fake.buses = ""
	s.fake.mu.Unlock()
	s.sched.Advance(binding.DefaultImmediateRefreshDelay)

	s.Equal(thing.Decimal(0), s.state(ChannelDepartureCount))
	s.Equal(thing.Undef, s.state(ChannelNextDeparture))
	s.Equal(thing.Undef, s.state(ChannelFollowingDeparture))
	s.Equal(thing.String("Hiss ur funktion"), s.state(ChannelDeviations))
}

func (s *DeparturesHandlerTest) Test_DisposeStopsPolling() {
	s.sched.Advance(binding.DefaultImmediateRefreshDelay)
	s.handler.Dispose()
	s.Empty(s.bridge.Queries())

	s.sched.Advance(DefaultRefresh * time.Second)
	s.Equal(0, s.bridge.Registry().Len())
}

func TestDeparturesHandler(t *testing.T) {
	suite.Run(t, new(DeparturesHandlerTest))
}
