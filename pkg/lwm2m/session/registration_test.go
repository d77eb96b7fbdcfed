package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhuga/lwm2mcore/pkg/lwm2m/coap"
	"github.com/dhuga/lwm2mcore/pkg/lwm2m/model"
	"github.com/dhuga/lwm2mcore/pkg/lwm2m/registry"
	"github.com/dhuga/lwm2mcore/pkg/lwm2m/transport"
)

// activateSSID3 seeds and runs activation for SSID 3 so registration
// tests can start from an already-active server.
func activateSSID3(t *testing.T, core *Core) *registry.ActiveServer {
	t.Helper()
	core.SeedInactive(3, 0)
	core.Scheduler.RunDue(context.Background())
	active := core.Registry.FindActive(3)
	require.NotNil(t, active)
	return active
}

// Scenario 2: Update rejected -> re-register.
func TestRegistration_UpdateRejectedReregisters(t *testing.T) {
	dm := newFakeDataModel()
	uri, mode, keys, binding := pskServer()
	dm.addServer(3, uri, mode, keys, binding)

	coapCtx := &fakeCoapContext{registerLifetimeS: 3600}
	bootstrap := &fakeBootstrap{}
	observe := &fakeObserve{}
	core := newTestCore(dm, coapCtx, bootstrap, observe, nil)

	active := activateSSID3(t, core)
	connTypeBefore := active.Registration.ConnType

	coapCtx.updateResult = coap.RegistrationUpdateRejected
	core.Scheduler.Cancel(active.SchedUpdateHandle)
	active.SchedUpdateHandle = core.Scheduler.ScheduleRetryable(time.Now(), core.sendUpdateSchedJob(updateJobArgs{SSID: 3, SocketNeeds: SocketNeedsNothing}))
	core.Scheduler.RunDue(context.Background())

	assert.Equal(t, 2, coapCtx.registerCalls, "rejected update triggers a second Register")
	assert.Equal(t, connTypeBefore, core.Registry.FindActive(3).Registration.ConnType)
	assert.NotNil(t, core.Registry.FindActive(3))
}

// Scenario 3: network error during Update suspends the connection.
func TestRegistration_NetworkErrorDuringUpdateSuspendsConnection(t *testing.T) {
	dm := newFakeDataModel()
	uri, mode, keys, binding := pskServer()
	dm.addServer(3, uri, mode, keys, binding)

	coapCtx := &fakeCoapContext{registerLifetimeS: 3600}
	bootstrap := &fakeBootstrap{}
	observe := &fakeObserve{}
	core := newTestCore(dm, coapCtx, bootstrap, observe, nil)

	active := activateSSID3(t, core)
	conn := active.Connections[model.ConnUDP]
	require.True(t, conn.IsOnline())

	coapCtx.updateErr = coap.ErrNetwork
	err := core.sendUpdate(context.Background(), active)

	assert.Error(t, err)
	assert.False(t, conn.IsOnline(), "connection must be suspended, not cleaned up")
	assert.NotNil(t, active.Connections[model.ConnUDP], "connection object is retained for later reconnect")
}

// Scenario 5: graceful deactivate.
func TestDeactivate_GracefulWithDelay(t *testing.T) {
	dm := newFakeDataModel()
	uri, mode, keys, binding := pskServer()
	dm.addServer(3, uri, mode, keys, binding)

	coapCtx := &fakeCoapContext{registerLifetimeS: 3600}
	bootstrap := &fakeBootstrap{}
	observe := &fakeObserve{}
	core := newTestCore(dm, coapCtx, bootstrap, observe, nil)

	activateSSID3(t, core)

	core.Deactivate(context.Background(), 3, 60*time.Second)

	assert.Nil(t, core.Registry.FindActive(3))
	inactive := core.Registry.FindInactive(3)
	require.NotNil(t, inactive)
	assert.Equal(t, 1, coapCtx.deregisterCalls)
	assert.True(t, core.Scheduler.Pending(inactive.SchedReactivateHandle))

	when, ok := core.Scheduler.NextDeadline()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(60*time.Second), when, 2*time.Second)
}

// Scenario 6: global reconnect.
func TestScheduleReconnect_ReschedulesAllActiveWithReconnectFlag(t *testing.T) {
	dm := newFakeDataModel()
	uri, mode, keys, binding := pskServer()
	dm.addServer(3, uri, mode, keys, binding)
	dm.addServer(4, uri, mode, keys, binding)

	coapCtx := &fakeCoapContext{registerLifetimeS: 3600}
	bootstrap := &fakeBootstrap{}
	observe := &fakeObserve{}
	core := newTestCore(dm, coapCtx, bootstrap, observe, nil)

	core.SeedInactive(3, 0)
	core.SeedInactive(4, 0)
	core.Scheduler.RunDue(context.Background())
	require.NotNil(t, core.Registry.FindActive(3))
	require.NotNil(t, core.Registry.FindActive(4))

	core.Registry.AddInactive(&registry.InactiveServer{SSID: model.SSIDBootstrap, NumICMPFailures: 7, ReactivateFailed: true})
	core.SetOffline(true)

	core.ScheduleReconnect()

	require.True(t, core.Scheduler.Pending(core.Registry.FindActive(3).SchedUpdateHandle))
	require.True(t, core.Scheduler.Pending(core.Registry.FindActive(4).SchedUpdateHandle))

	bootstrapInactive := core.Registry.FindInactive(model.SSIDBootstrap)
	require.NotNil(t, bootstrapInactive, "given-up bootstrap server stays inactive, just rescheduled")
	assert.True(t, core.Scheduler.Pending(bootstrapInactive.SchedReactivateHandle), "given-up server rescheduled for immediate reactivation")
	assert.False(t, bootstrapInactive.ReactivateFailed, "reactivation attempt resets give-up state")
	assert.Zero(t, bootstrapInactive.NumICMPFailures, "reactivation attempt resets the failure counter")

	assert.False(t, core.IsOffline())
}

// reschedule_update_for_server schedules at AVS_TIME_DURATION_ZERO, not
// at the lifetime-derived margin scheduleNextUpdate uses for routine
// updates.
func TestScheduleRegistrationUpdate_SchedulesImmediately(t *testing.T) {
	dm := newFakeDataModel()
	uri, mode, keys, binding := pskServer()
	dm.addServer(3, uri, mode, keys, binding)

	coapCtx := &fakeCoapContext{registerLifetimeS: 3600}
	bootstrap := &fakeBootstrap{}
	observe := &fakeObserve{}
	core := newTestCore(dm, coapCtx, bootstrap, observe, nil)

	active := activateSSID3(t, core)

	require.NoError(t, core.ScheduleRegistrationUpdate(model.SSIDAny))

	when, ok := core.Scheduler.NextDeadline()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now(), when, 2*time.Second, "update must be due immediately, not ~an hour out at the lifetime margin")
	assert.True(t, core.Scheduler.Pending(active.SchedUpdateHandle))
}

func TestSetupRegistrationConnection_PrefersUDPOverSMS(t *testing.T) {
	active := &registry.ActiveServer{
		Connections: map[model.ConnType]*transport.Connection{
			model.ConnSMS: onlineFakeConnection(),
			model.ConnUDP: onlineFakeConnection(),
		},
	}
	connType, ok := setupRegistrationConnection(active)
	require.True(t, ok)
	assert.Equal(t, model.ConnUDP, connType)
}

func onlineFakeConnection() *transport.Connection {
	c := transport.NewConnection(func(transport.ConnectionInfo) (transport.Socket, error) {
		return &fakeSocket{connected: true}, nil
	})
	_ = c.Refresh(context.Background(), model.ConnectionOnline, transport.ConnectionInfo{URI: model.ServerURI{Scheme: "coap", Host: "203.0.113.1", Port: "5683"}}, false)
	return c
}
