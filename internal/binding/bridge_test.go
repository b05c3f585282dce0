package binding

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	"github.com/jgulick48/cloud-bindings/internal/scheduler"
	"github.com/jgulick48/cloud-bindings/internal/thing"
	"github.com/jgulick48/cloud-bindings/internal/thing/thingtest"
)

type mockSession struct {
	mock.Mock
}

func (m *mockSession) Initialize(ctx context.Context) bool {
	return m.Called().Bool(0)
}

func (m *mockSession) Refresh(ctx context.Context) bool {
	return m.Called().Bool(0)
}

func (m *mockSession) Dispose() {
	m.Called()
}

type BridgeHandlerTest struct {
	suite.Suite
	sched    *scheduler.Manual
	callback *thingtest.Recorder
	session  *mockSession
	bridge   *BridgeHandler
	uid      thing.UID
}

func (s *BridgeHandlerTest) SetupTest() {
	s.uid = "verisure:bridge:home"
	s.sched = scheduler.NewManual(time.Unix(0, 0))
	s.callback = thingtest.NewRecorder()
	s.session = &mockSession{}
	s.bridge = NewBridgeHandler(thing.Thing{UID: s.uid}, s.callback, s.sched)
}

func (s *BridgeHandlerTest) status() thing.StatusInfo {
	info, _ := s.callback.LastStatus(s.uid)
	return info
}

func (s *BridgeHandlerTest) Test_Start_GoesUnknownThenOnline() {
	s.session.On("Initialize").Return(true).Once()
	s.session.On("Refresh").Return(true)

	s.bridge.Start(s.session, time.Minute)
	s.Equal(thing.StatusUnknown, s.status().Status)

	s.sched.RunPending()
	s.Equal(thing.StatusOnline, s.status().Status)
	s.session.AssertNumberOfCalls(s.T(), "Refresh", 1)

	s.sched.Advance(time.Minute)
	s.session.AssertNumberOfCalls(s.T(), "Refresh", 2)
}

func (s *BridgeHandlerTest) Test_RefreshFailure_GoesOffline() {
	s.session.On("Initialize").Return(true).Once()
	s.session.On("Refresh").Return(false).Once()
	s.session.On("Refresh").Return(true).Once()

	s.bridge.Start(s.session, time.Minute)
	s.sched.RunPending()
	s.Equal(thing.Offline(thing.DetailCommunicationError, "Refresh failed"), s.status())

	s.sched.Advance(time.Minute)
	s.Equal(thing.StatusOnline, s.status().Status)
}

func (s *BridgeHandlerTest) Test_LoginFailure_RetriesOnNextTick() {
	s.session.On("Initialize").Return(false).Once()
	s.session.On("Refresh").Return(true).Once()

	s.bridge.Start(s.session, time.Minute)
	s.sched.RunPending()
	s.Equal(thing.StatusOffline, s.status().Status)
	s.Equal(thing.DetailConfigurationError, s.status().Detail)
	s.session.AssertNotCalled(s.T(), "Refresh")

	s.sched.Advance(time.Minute)
	s.Equal(thing.StatusOnline, s.status().Status)
}

func (s *BridgeHandlerTest) Test_ImmediateRefresh_Debounced() {
	s.session.On("Initialize").Return(true).Once()
	s.session.On("Refresh").Return(true)
	s.bridge.Start(s.session, 10*time.Minute)
	s.sched.RunPending()

	s.True(s.bridge.ScheduleImmediateRefresh(10 * time.Second))
	s.False(s.bridge.ScheduleImmediateRefresh(10 * time.Second))
	s.sched.Advance(5 * time.Second)
	s.False(s.bridge.ScheduleImmediateRefresh(10 * time.Second))
	s.Equal(1, s.sched.PendingOneOff())

	s.sched.Advance(5 * time.Second)
	s.session.AssertNumberOfCalls(s.T(), "Refresh", 2)
	s.Equal(0, s.sched.PendingOneOff())

	s.True(s.bridge.ScheduleImmediateRefresh(10 * time.Second))
	s.Equal(1, s.sched.PendingOneOff())
}

func (s *BridgeHandlerTest) Test_ImmediateRefresh_SkippedWhenRegularTickIsSooner() {
	s.session.On("Initialize").Return(true).Once()
	s.session.On("Refresh").Return(true)
	s.bridge.Start(s.session, time.Minute)
	s.sched.RunPending()

	s.sched.Advance(55 * time.Second)
	s.False(s.bridge.ScheduleImmediateRefresh(10 * time.Second))
	s.Equal(0, s.sched.PendingOneOff())
}

func (s *BridgeHandlerTest) Test_ImmediateRefresh_BeforeStart() {
	s.False(s.bridge.ScheduleImmediateRefresh(time.Second))
}

func (s *BridgeHandlerTest) Test_Dispose_CancelsJobsAndSession() {
	s.session.On("Initialize").Return(true).Once()
	s.session.On("Refresh").Return(true)
	s.session.On("Dispose").Return().Once()
	s.bridge.Start(s.session, time.Minute)
	s.sched.RunPending()
	s.bridge.ScheduleImmediateRefresh(10 * time.Second)

	s.bridge.Dispose()
	s.bridge.Dispose()
	s.Equal(0, s.sched.Pending())

	s.sched.Advance(time.Hour)
	s.session.AssertNumberOfCalls(s.T(), "Refresh", 1)
	s.session.AssertNumberOfCalls(s.T(), "Dispose", 1)
	s.False(s.bridge.ScheduleImmediateRefresh(time.Second))
}

func (s *BridgeHandlerTest) Test_Dispose_BeforeLogin() {
	s.session.On("Dispose").Return().Once()
	s.bridge.Start(s.session, time.Minute)
	s.bridge.Dispose()
	s.sched.RunPending()
	s.session.AssertNotCalled(s.T(), "Initialize")
}

func (s *BridgeHandlerTest) Test_Fail() {
	s.bridge.Fail(thing.DetailConfigurationError, "username missing")
	s.Equal(thing.Offline(thing.DetailConfigurationError, "username missing"), s.status())
}

func TestBridgeHandler(t *testing.T) {
	suite.Run(t, new(BridgeHandlerTest))
}
