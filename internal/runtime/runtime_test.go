package runtime

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/jgulick48/cloud-bindings/internal/scheduler"
	"github.com/jgulick48/cloud-bindings/internal/thing"
)

type journal struct {
	mu     sync.Mutex
	events []string
}

func (j *journal) add(event string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = append(j.events, event)
}

func (j *journal) list() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.events...)
}

type fakeHandler struct {
	t        thing.Thing
	bridge   thing.Handler
	callback thing.Callback
	journal  *journal
	commands []thing.Command
	bridged  []thing.StatusInfo
}

func (h *fakeHandler) Thing() thing.Thing { return h.t }

func (h *fakeHandler) Initialize() {
	h.journal.add("init " + string(h.t.UID))
	h.callback.StatusUpdated(h.t.UID, thing.Unknown())
}

func (h *fakeHandler) Dispose() {
	h.journal.add("dispose " + string(h.t.UID))
}

func (h *fakeHandler) HandleCommand(channel thing.ChannelUID, command thing.Command) {
	h.commands = append(h.commands, command)
}

func (h *fakeHandler) BridgeStatusChanged(info thing.StatusInfo) {
	h.bridged = append(h.bridged, info)
}

type fakeFactory struct {
	journal *journal
}

func (f *fakeFactory) Supports(thingType thing.TypeUID) bool {
	return thingType == "fake:bridge" || thingType == "fake:device"
}

func (f *fakeFactory) Create(t thing.Thing, bridge thing.Handler, callback thing.Callback) (thing.Handler, error) {
	return &fakeHandler{t: t, bridge: bridge, callback: callback, journal: f.journal}, nil
}

type recordingSink struct {
	statuses map[thing.UID]thing.StatusInfo
	states   map[thing.ChannelUID]thing.State
}

func (s *recordingSink) StatusUpdated(uid thing.UID, info thing.StatusInfo) {
	s.statuses[uid] = info
}

func (s *recordingSink) StateUpdated(channel thing.ChannelUID, state thing.State) {
	s.states[channel] = state
}

type savedStatuses map[thing.UID]thing.StatusInfo

func (s savedStatuses) LastStatus(uid thing.UID) (thing.StatusInfo, bool, error) {
	info, ok := s[uid]
	return info, ok, nil
}

type denyLinker map[string]bool

func (d denyLinker) IsLinked(channel thing.ChannelUID) bool {
	return !d[channel.ID]
}

type RuntimeTest struct {
	suite.Suite
	sched   *scheduler.Manual
	journal *journal
	runtime *Runtime
	sink    *recordingSink
}

func (s *RuntimeTest) SetupTest() {
	s.sched = scheduler.NewManual(time.Unix(0, 0))
	s.journal = &journal{}
	s.runtime = New(s.sched, &fakeFactory{journal: s.journal})
	s.sink = &recordingSink{statuses: map[thing.UID]thing.StatusInfo{}, states: map[thing.ChannelUID]thing.State{}}
	s.runtime.AddSink(s.sink)
	s.Require().NoError(s.runtime.Load([]thing.Thing{
		{UID: "fake:device:home:lock", Type: "fake:device", Bridge: "fake:bridge:home"},
		{UID: "fake:bridge:home", Type: "fake:bridge"},
		{UID: "fake:device:home:plug", Type: "fake:device", Bridge: "fake:bridge:home"},
		{UID: "fake:bridge:cabin", Type: "fake:bridge"},
	}))
}

func (s *RuntimeTest) handler(uid thing.UID) *fakeHandler {
	h, ok := s.runtime.Handler(uid)
	s.Require().True(ok)
	return h.(*fakeHandler)
}

func (s *RuntimeTest) Test_BridgesAreCreatedFirst() {
	s.Same(s.handler("fake:bridge:home"), s.handler("fake:device:home:lock").bridge)
	s.Nil(s.handler("fake:bridge:home").bridge)

	s.runtime.Start()
	s.Equal([]string{
		"init fake:bridge:home",
		"init fake:bridge:cabin",
		"init fake:device:home:lock",
		"init fake:device:home:plug",
	}, s.journal.list())
}

func (s *RuntimeTest) Test_BridgeStatusReachesChildren() {
	s.runtime.StatusUpdated("fake:bridge:home", thing.Online())

	s.Equal([]thing.StatusInfo{thing.Online()}, s.handler("fake:device:home:lock").bridged)
	s.Equal([]thing.StatusInfo{thing.Online()}, s.handler("fake:device:home:plug").bridged)
	s.Equal(thing.Online(), s.sink.statuses["fake:bridge:home"])
	status, ok := s.runtime.Status("fake:bridge:home")
	s.True(ok)
	s.Equal(thing.StatusOnline, status.Status)

	s.runtime.StatusUpdated("fake:bridge:cabin", thing.Online())
	s.Len(s.handler("fake:device:home:lock").bridged, 1)
}

func (s *RuntimeTest) Test_StatesFanOut() {
	channel := thing.NewChannelUID("fake:device:home:plug", "power")
	s.runtime.StateUpdated(channel, thing.On)

	s.Equal(thing.On, s.sink.states[channel])
	state, ok := s.runtime.State(channel)
	s.True(ok)
	s.Equal(thing.On, state)
}

func (s *RuntimeTest) Test_CommandRunsOnScheduler() {
	channel := thing.NewChannelUID("fake:device:home:plug", "power")
	s.Require().NoError(s.runtime.HandleCommand(channel, thing.Off))
	s.Empty(s.handler("fake:device:home:plug").commands)

	s.sched.RunPending()
	s.Equal([]thing.Command{thing.Off}, s.handler("fake:device:home:plug").commands)

	s.Error(s.runtime.HandleCommand(thing.NewChannelUID("fake:device:home:tv", "power"), thing.On))
}

func (s *RuntimeTest) Test_RestoreSeedsSavedStatuses() {
	s.runtime.StatusUpdated("fake:bridge:cabin", thing.Online())
	s.runtime.Restore(savedStatuses{
		"fake:bridge:home":    thing.Offline(thing.DetailCommunicationError, "Refresh failed"),
		"fake:bridge:cabin":   thing.Offline(thing.DetailBridgeOffline, ""),
		"fake:device:home:tv": thing.Online(),
	})

	status, ok := s.runtime.Status("fake:bridge:home")
	s.True(ok)
	s.Equal(thing.Offline(thing.DetailCommunicationError, "Refresh failed"), status)
	status, _ = s.runtime.Status("fake:bridge:cabin")
	s.Equal(thing.Online(), status)
	_, ok = s.runtime.Status("fake:device:home:tv")
	s.False(ok)
	_, ok = s.runtime.Status("fake:device:home:plug")
	s.False(ok)
	s.NotContains(s.sink.statuses, thing.UID("fake:bridge:home"))

	s.runtime.Start()
	status, _ = s.runtime.Status("fake:bridge:home")
	s.Equal(thing.Unknown(), status)
}

func (s *RuntimeTest) Test_IsLinked() {
	channel := thing.NewChannelUID("fake:device:home:plug", "power")
	s.True(s.runtime.IsLinked(channel))

	s.runtime.AddLinker(denyLinker{"power": true})
	s.False(s.runtime.IsLinked(channel))
	s.True(s.runtime.IsLinked(thing.NewChannelUID("fake:device:home:plug", "energy")))
}

func (s *RuntimeTest) Test_StopDisposesChildrenBeforeBridge() {
	s.Require().NoError(s.runtime.Stop(context.Background()))

	events := s.journal.list()
	s.Len(events, 4)
	index := func(event string) int {
		for i, e := range events {
			if e == event {
				return i
			}
		}
		return -1
	}
	s.Less(index("dispose fake:device:home:lock"), index("dispose fake:bridge:home"))
	s.Less(index("dispose fake:device:home:plug"), index("dispose fake:bridge:home"))
	s.GreaterOrEqual(index("dispose fake:bridge:cabin"), 0)
}

func TestRuntime(t *testing.T) {
	suite.Run(t, new(RuntimeTest))
}

func TestLoad_UnsupportedTypeIsMarkedOffline(t *testing.T) {
	r := New(scheduler.NewManual(time.Unix(0, 0)), &fakeFactory{journal: &journal{}})
	require.NoError(t, r.Load([]thing.Thing{{UID: "other:thing:x", Type: "other:thing"}}))

	status, ok := r.Status("other:thing:x")
	assert.True(t, ok)
	assert.Equal(t, thing.DetailHandlerMissing, status.Detail)
	_, ok = r.Handler("other:thing:x")
	assert.False(t, ok)
}

func TestLoad_DuplicateThing(t *testing.T) {
	r := New(scheduler.NewManual(time.Unix(0, 0)), &fakeFactory{journal: &journal{}})
	err := r.Load([]thing.Thing{
		{UID: "fake:bridge:home", Type: "fake:bridge"},
		{UID: "fake:bridge:home", Type: "fake:bridge"},
	})
	assert.Error(t, err)
}
