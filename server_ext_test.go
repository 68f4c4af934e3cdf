package gatts_test

import (
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	logrustest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimgatt/gatts"
	"github.com/nimgatt/gatts/simstack"
)

var (
	heartRateSvcUUID  = gatts.UUID16(0x180d)
	measurementUUID   = gatts.UUID16(0x2a37)
	bodyLocationUUID  = gatts.UUID16(0x2a38)
	controlPointUUID  = gatts.UUID16(0x2a39)
	batterySvcUUID    = gatts.UUID16(0x180f)
	testPeerAddr      = "aa:bb:cc:dd:ee:01"
	otherTestPeerAddr = "aa:bb:cc:dd:ee:02"
)

func TestCreateServiceRejectsDuplicate(t *testing.T) {
	srv := gatts.NewServer(simstack.New())

	_, err := srv.CreateService(heartRateSvcUUID)
	require.NoError(t, err)

	_, err = srv.CreateService(heartRateSvcUUID)
	assert.ErrorIs(t, err, gatts.HSEAlready)
}

func TestCreateServiceAfterStart(t *testing.T) {
	srv := gatts.NewServer(simstack.New())
	require.NoError(t, srv.Start())

	_, err := srv.CreateService(heartRateSvcUUID)
	assert.ErrorIs(t, err, gatts.HSEAlready)
}

func TestStartBuildsSubscribableIndex(t *testing.T) {
	stack := simstack.New()
	srv := gatts.NewServer(stack)

	svc, err := srv.CreateService(heartRateSvcUUID)
	require.NoError(t, err)
	hr := svc.AddCharacteristic(measurementUUID, gatts.CharNotify)
	loc := svc.AddCharacteristic(bodyLocationUUID, gatts.CharRead)
	cp := svc.AddCharacteristic(controlPointUUID, gatts.CharWrite|gatts.CharIndicate)

	require.NoError(t, srv.Start())
	assert.True(t, srv.Started())
	assert.NotZero(t, svc.Handle())

	stack.Connect(1, testPeerAddr)

	// Subscribable characteristics receive CCCD updates through the
	// index; a read-only characteristic is not indexed, so a subscribe
	// referencing it is ignored.
	stack.Subscribe(1, hr.Handle(), true, false)
	notify, _ := hr.Subscribed(1)
	assert.True(t, notify)

	stack.Subscribe(1, loc.Handle(), true, false)
	notify, indicate := loc.Subscribed(1)
	assert.False(t, notify)
	assert.False(t, indicate)

	stack.Subscribe(1, cp.Handle(), false, true)
	_, indicate = cp.Subscribed(1)
	assert.True(t, indicate)
}

func TestStartIdempotent(t *testing.T) {
	stack := simstack.New()
	srv := gatts.NewServer(stack)
	_, err := srv.CreateService(heartRateSvcUUID)
	require.NoError(t, err)
	require.NoError(t, srv.Start())

	// A second Start must not touch the stack at all; a stack failure
	// planted after the first Start proves it.
	stack.StartErr = errors.New("boom")
	assert.NoError(t, srv.Start())
}

func TestStartAbortsOnCommitFailure(t *testing.T) {
	stack := simstack.New()
	srv := gatts.NewServer(stack)

	svc1, err := srv.CreateService(heartRateSvcUUID)
	require.NoError(t, err)
	hr := svc1.AddCharacteristic(measurementUUID, gatts.CharNotify)
	_, err = srv.CreateService(batterySvcUUID)
	require.NoError(t, err)

	stack.AddServiceErr = map[string]error{
		batterySvcUUID.String(): gatts.HSENoMem,
	}

	err = srv.Start()
	assert.ErrorIs(t, err, gatts.HSENoMem)
	assert.False(t, srv.Started())

	// The subscribable index stays empty: a subscribe for the first
	// service's characteristic goes nowhere.
	stack.Connect(1, testPeerAddr)
	stack.Subscribe(1, hr.Handle(), true, false)
	notify, _ := hr.Subscribed(1)
	assert.False(t, notify)
}

func TestStartAbortsOnServingFailure(t *testing.T) {
	stack := simstack.New()
	stack.StartErr = gatts.HSEBusy
	srv := gatts.NewServer(stack)
	_, err := srv.CreateService(heartRateSvcUUID)
	require.NoError(t, err)

	assert.ErrorIs(t, srv.Start(), gatts.HSEBusy)
	assert.False(t, srv.Started())

	// Activation is retryable once the stack recovers.
	stack.StartErr = nil
	assert.NoError(t, srv.Start())
	assert.True(t, srv.Started())
}

func TestStartAbortsOnHandleResolutionFailure(t *testing.T) {
	stack := simstack.New()
	srv := gatts.NewServer(stack)
	svc, err := srv.CreateService(heartRateSvcUUID)
	require.NoError(t, err)
	hr := svc.AddCharacteristic(measurementUUID, gatts.CharNotify)

	stack.FindServiceErr = map[string]error{
		heartRateSvcUUID.String(): gatts.HSENoEnt,
	}
	assert.ErrorIs(t, srv.Start(), gatts.HSENoEnt)
	assert.False(t, srv.Started())

	stack.FindServiceErr = nil
	require.NoError(t, srv.Start())

	// The retry must not leave the characteristic indexed twice: one
	// push per subscriber, not two.
	stack.Connect(1, testPeerAddr)
	stack.Subscribe(1, hr.Handle(), true, false)
	hr.SetValue([]byte{0x00, 0x3c})
	require.NoError(t, hr.Notify())
	assert.Len(t, stack.Sent(), 1)
}

func TestConnectTracksConnections(t *testing.T) {
	stack := simstack.New()
	var connected []*gatts.ConnDesc
	srv := gatts.NewServer(stack, gatts.Connect(func(c *gatts.ConnDesc) {
		connected = append(connected, c)
	}))
	require.NoError(t, srv.Start())

	stack.Connect(5, testPeerAddr)
	stack.Connect(6, otherTestPeerAddr)

	assert.Equal(t, 2, srv.ConnectedCount())
	assert.ElementsMatch(t, []uint16{5, 6}, srv.Connections())
	require.Len(t, connected, 2)
	assert.Equal(t, uint16(5), connected[0].ConnHandle)
	assert.Equal(t, testPeerAddr, connected[0].PeerAddr.String())
}

func TestFailedConnectIsIgnored(t *testing.T) {
	stack := simstack.New()
	calls := 0
	srv := gatts.NewServer(stack, gatts.Connect(func(c *gatts.ConnDesc) {
		calls++
	}))
	require.NoError(t, srv.Start())

	stack.FailConnect(5, 0x3d) // connection failed to establish

	assert.Zero(t, srv.ConnectedCount())
	assert.Zero(t, calls)
}

func TestDisconnectRemovesConnection(t *testing.T) {
	stack := simstack.New()
	var gone []uint16
	srv := gatts.NewServer(stack, gatts.Disconnect(func(c *gatts.ConnDesc) {
		gone = append(gone, c.ConnHandle)
	}))
	require.NoError(t, srv.Start())

	stack.Connect(5, testPeerAddr)
	stack.Disconnect(5, 0x13)

	assert.Zero(t, srv.ConnectedCount())
	assert.Equal(t, []uint16{5}, gone)
	assert.True(t, stack.Advertising(), "advertising should resume after disconnect")
}

func TestDisconnectUnknownHandleStillInvokesCallback(t *testing.T) {
	stack := simstack.New()
	var gone []uint16
	srv := gatts.NewServer(stack, gatts.Disconnect(func(c *gatts.ConnDesc) {
		gone = append(gone, c.ConnHandle)
	}))
	require.NoError(t, srv.Start())

	stack.Disconnect(9, 0x08)

	assert.Equal(t, []uint16{9}, gone)
	assert.Zero(t, srv.ConnectedCount())
}

func TestAdvertiseOnDisconnectDisabled(t *testing.T) {
	stack := simstack.New()
	srv := gatts.NewServer(stack, gatts.AdvertiseOnDisconnect(false))
	require.NoError(t, srv.Start())

	stack.Connect(5, testPeerAddr)
	stack.Disconnect(5, 0x13)

	assert.False(t, stack.Advertising())
}

func TestAdvertiseRestartFailureIsLoggedNotFatal(t *testing.T) {
	stack := simstack.New()
	stack.AdvertiseErr = errors.New("radio busy")

	logger, hook := logrustest.NewNullLogger()
	disconnects := 0
	srv := gatts.NewServer(stack,
		gatts.Logger(logger),
		gatts.Disconnect(func(c *gatts.ConnDesc) { disconnects++ }),
	)
	require.NoError(t, srv.Start())

	stack.Connect(5, testPeerAddr)
	stack.Disconnect(5, 0x13)

	assert.Equal(t, 1, disconnects, "disconnect callback must fire despite advertising failure")

	var warned bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel && e.Message == "can't restart advertising" {
			warned = true
		}
	}
	assert.True(t, warned, "advertising failure should be logged at warn level")
}

func TestEventsForUnknownHandlesAreIgnored(t *testing.T) {
	stack := simstack.New()
	srv := gatts.NewServer(stack)
	svc, err := srv.CreateService(heartRateSvcUUID)
	require.NoError(t, err)
	svc.AddCharacteristic(measurementUUID, gatts.CharNotify)
	require.NoError(t, srv.Start())

	stack.Connect(1, testPeerAddr)
	stack.Subscribe(1, 0xbeef, true, false)
	stack.ConfirmIndication(1, 0xbeef, 0)

	assert.Equal(t, 1, srv.ConnectedCount())
}

func TestDisconnectClearsSubscriptionState(t *testing.T) {
	stack := simstack.New()
	srv := gatts.NewServer(stack)
	svc, err := srv.CreateService(heartRateSvcUUID)
	require.NoError(t, err)
	hr := svc.AddCharacteristic(measurementUUID, gatts.CharNotify)
	require.NoError(t, srv.Start())

	stack.Connect(5, testPeerAddr)
	stack.Subscribe(5, hr.Handle(), true, false)
	require.Equal(t, 1, hr.SubscribedCount())

	stack.Disconnect(5, 0x13)

	// The handle may be reused for a new link; no delivery mode may
	// leak across.
	stack.Connect(5, otherTestPeerAddr)
	notify, indicate := hr.Subscribed(5)
	assert.False(t, notify)
	assert.False(t, indicate)
	assert.Zero(t, hr.SubscribedCount())
}

func TestNotifyPushesPerPeerDeliveryMode(t *testing.T) {
	stack := simstack.New()
	srv := gatts.NewServer(stack)
	svc, err := srv.CreateService(heartRateSvcUUID)
	require.NoError(t, err)
	hr := svc.AddCharacteristic(measurementUUID, gatts.CharNotify|gatts.CharIndicate)
	require.NoError(t, srv.Start())

	stack.Connect(1, testPeerAddr)
	stack.Connect(2, otherTestPeerAddr)
	stack.Subscribe(1, hr.Handle(), true, false)
	stack.Subscribe(2, hr.Handle(), false, true)

	hr.SetValue([]byte{0x00, 0x48})
	require.NoError(t, hr.Notify())

	sent := stack.Sent()
	require.Len(t, sent, 2)
	byConn := map[uint16]simstack.PDU{}
	for _, pdu := range sent {
		byConn[pdu.ConnHandle] = pdu
	}
	assert.False(t, byConn[1].Indication)
	assert.True(t, byConn[2].Indication)
	assert.Equal(t, []byte{0x00, 0x48}, byConn[1].Value)
	assert.Equal(t, hr.Handle(), byConn[1].AttrHandle)
}

func TestIndicationsSerializedPerConnection(t *testing.T) {
	stack := simstack.New()
	srv := gatts.NewServer(stack)
	svc, err := srv.CreateService(heartRateSvcUUID)
	require.NoError(t, err)
	cp := svc.AddCharacteristic(controlPointUUID, gatts.CharIndicate)
	require.NoError(t, srv.Start())

	stack.Connect(7, testPeerAddr)
	stack.Subscribe(7, cp.Handle(), false, true)

	cp.SetValue([]byte{0x01})
	require.NoError(t, cp.Notify())
	assert.Len(t, stack.Sent(), 1)

	// The first indication is unconfirmed; further pushes to the same
	// peer are skipped, not queued.
	require.NoError(t, cp.Notify())
	assert.Len(t, stack.Sent(), 1)

	// A failed confirmation frees the slot.
	stack.ConfirmIndication(7, cp.Handle(), int(gatts.HSETimeout))
	require.NoError(t, cp.Notify())
	assert.Len(t, stack.Sent(), 2)

	// So does a successful one.
	stack.ConfirmIndication(7, cp.Handle(), 0)
	require.NoError(t, cp.Notify())
	assert.Len(t, stack.Sent(), 3)
}

func TestServerLifecycleScenario(t *testing.T) {
	stack := simstack.New()
	var disconnected []uint16
	srv := gatts.NewServer(stack, gatts.Disconnect(func(c *gatts.ConnDesc) {
		disconnected = append(disconnected, c.ConnHandle)
	}))

	svc, err := srv.CreateService(heartRateSvcUUID)
	require.NoError(t, err)
	hr := svc.AddCharacteristic(measurementUUID, gatts.CharNotify)

	require.NoError(t, srv.Start())

	stack.Connect(5, testPeerAddr)
	assert.Equal(t, []uint16{5}, srv.Connections())

	stack.Subscribe(5, hr.Handle(), true, false)
	notify, indicate := hr.Subscribed(5)
	assert.True(t, notify)
	assert.False(t, indicate)

	stack.Disconnect(5, 0x13)
	assert.Empty(t, srv.Connections())
	assert.Equal(t, []uint16{5}, disconnected)
}
