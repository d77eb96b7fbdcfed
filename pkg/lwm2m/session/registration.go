package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dhuga/lwm2mcore/internal/logger"
	"github.com/dhuga/lwm2mcore/pkg/lwm2m/coap"
	"github.com/dhuga/lwm2mcore/pkg/lwm2m/connbuild"
	"github.com/dhuga/lwm2mcore/pkg/lwm2m/model"
	"github.com/dhuga/lwm2mcore/pkg/lwm2m/registry"
)

// SocketNeeds describes what a scheduled Update job should do to the
// connection before attempting the exchange: NOTHING to leave it
// alone, RECONNECT to force a fresh socket.
type SocketNeeds int

const (
	SocketNeedsNothing SocketNeeds = iota
	SocketNeedsReconnect
)

// updateJobArgs is the typed successor to the original's
// (ssid, socket_needs) pointer-packed argument: a plain struct instead
// of a tagged integer, since Go closures don't need the C trick.
type updateJobArgs struct {
	SSID        model.SSID
	SocketNeeds SocketNeeds
}

// encodeUpdateArgs and decodeUpdateArgs exist purely so the argument
// round-trip the original relied on (pack then unpack without loss)
// remains a directly testable property here, even though Go needs no
// packing: they are identity operations over the struct.
func encodeUpdateArgs(args updateJobArgs) updateJobArgs { return args }
func decodeUpdateArgs(encoded updateJobArgs) updateJobArgs { return encoded }

// setupRegistrationConnection implements the fixed-order transport
// selection: the first connection type (UDP before SMS) whose
// connection reports online is adopted.
func setupRegistrationConnection(active *registry.ActiveServer) (model.ConnType, bool) {
	for _, connType := range model.AllConnTypes {
		conn, ok := active.Connections[connType]
		if ok && conn.IsOnline() {
			return connType, true
		}
	}
	return model.ConnUnset, false
}

// serverRegister implements server_register: pick an online transport,
// bind the CoAP stream to it, Register, and on success schedule the
// first Update and notify dependents that a connection is available.
func (c *Core) serverRegister(ctx context.Context, active *registry.ActiveServer) error {
	connType, ok := setupRegistrationConnection(active)
	if !ok {
		return fmt.Errorf("session: no online transport for SSID %d", active.SSID)
	}

	ref := coap.ConnectionRef{SSID: active.SSID, ConnType: connType}
	if err := c.Coap.BindServerStream(ctx, ref); err != nil {
		return fmt.Errorf("session: bind server stream for SSID %d: %w", active.SSID, err)
	}
	defer c.Coap.ReleaseServerStream(ref)

	lifetimeS, err := c.Coap.Register(ctx, ref)
	if err != nil {
		return fmt.Errorf("session: register SSID %d: %w", active.SSID, err)
	}

	active.Registration = registry.RegistrationInfo{
		ConnType:            connType,
		LastUpdateLifetimeS: lifetimeS,
		ExpiresAt:           time.Now().Add(time.Duration(lifetimeS) * time.Second),
	}

	c.Scheduler.Cancel(active.SchedUpdateHandle)
	c.scheduleNextUpdate(active)
	c.Observe.SchedFlushCurrentConnection(ref)
	if !isBootstrap(active.SSID) {
		c.Bootstrap.NotifyRegularConnectionAvailable(active.SSID)
	}
	return nil
}

// sendUpdate implements send_update: bind the stream on the server's
// current conn_type and invoke update_registration, translating its
// three outcomes into a typed error the caller can branch on.
var errUpdateRejected = errors.New("session: registration update rejected")

func (c *Core) sendUpdate(ctx context.Context, active *registry.ActiveServer) error {
	ref := coap.ConnectionRef{SSID: active.SSID, ConnType: active.Registration.ConnType}
	if err := c.Coap.BindServerStream(ctx, ref); err != nil {
		return fmt.Errorf("session: bind server stream for SSID %d: %w", active.SSID, err)
	}
	defer c.Coap.ReleaseServerStream(ref)

	result, err := c.Coap.UpdateRegistration(ctx, ref)
	if err != nil {
		if errors.Is(err, coap.ErrNetwork) {
			// Suspend rather than retransmit blind: the next job's
			// refresh_connection(force=false) will perform a real
			// reconnect, with the scheduler's own backoff introducing
			// delay so this doesn't become a tight reconnect loop.
			if conn, ok := active.Connections[active.Registration.ConnType]; ok {
				conn.Suspend()
			}
			return fmt.Errorf("session: update SSID %d: %w", active.SSID, err)
		}
		return fmt.Errorf("session: update SSID %d: %w", active.SSID, err)
	}
	if result == coap.RegistrationUpdateRejected {
		return errUpdateRejected
	}
	return nil
}

// sendUpdateSchedJob implements send_update_sched_job, the scheduled
// worker body behind every Update handle.
func (c *Core) sendUpdateSchedJob(args updateJobArgs) func(context.Context) error {
	return func(ctx context.Context) error {
		active := c.Registry.FindActive(args.SSID)
		if active == nil {
			return nil
		}

		forceReconnect := args.SocketNeeds == SocketNeedsReconnect
		if err := c.refreshActiveConnections(ctx, active, forceReconnect); err != nil {
			if c.registrationExpired(active) {
				c.connectionFailure(ctx, active.SSID)
				return nil
			}
			return err
		}

		if isBootstrap(active.SSID) {
			if args.SocketNeeds != SocketNeedsNothing {
				if err := c.Bootstrap.UpdateReconnected(ctx, active.SSID); err != nil {
					return err
				}
			}
			return nil
		}

		if c.registrationValid(active) {
			if err := c.sendUpdate(ctx, active); err == nil {
				c.Observe.SchedFlushCurrentConnection(coap.ConnectionRef{SSID: active.SSID, ConnType: active.Registration.ConnType})
				c.scheduleNextUpdate(active)
				return nil
			} else if !errors.Is(err, errUpdateRejected) && !c.registrationExpired(active) {
				return err
			}
			// Rejected, or expired since the check above: fall through
			// to re-register below.
		}

		connType, ok := setupRegistrationConnection(active)
		if !ok {
			c.connectionFailure(ctx, active.SSID)
			return nil
		}
		active.Registration.ConnType = connType

		if err := c.serverRegister(ctx, active); err != nil {
			c.connectionFailure(ctx, active.SSID)
			return nil
		}
		return nil
	}
}

// refreshActiveConnections refreshes every connection an active server
// owns, short-circuiting on the first failure.
func (c *Core) refreshActiveConnections(ctx context.Context, active *registry.ActiveServer, forceReconnect bool) error {
	result, err := connbuild.AssembleConnectionInfo(active.SSID, c.DataModel, active.Connections[model.ConnUDP], c.ConnOpts)
	if err != nil {
		return err
	}
	for connType, conn := range active.Connections {
		mode := modeForConnType(connType, result.UDPMode, result.SMSMode)
		refreshResult := conn.Refresh(ctx, mode, result.Info, forceReconnect)
		if refreshResult.Failed() {
			return fmt.Errorf("session: refresh %s connection for SSID %d: %s", connType, active.SSID, refreshResult.Error())
		}
	}
	return nil
}

func (c *Core) registrationValid(active *registry.ActiveServer) bool {
	conn := active.Connections[active.Registration.ConnType]
	return active.Registration.Valid(time.Now(), conn)
}

func (c *Core) registrationExpired(active *registry.ActiveServer) bool {
	return time.Now().After(active.Registration.ExpiresAt)
}

// connectionFailure implements connection_failure: clear conn_type so a
// later cleanup does not attempt a superfluous De-Register, then
// deactivate with no delay so the activation engine takes over from
// the inactive pool.
func (c *Core) connectionFailure(ctx context.Context, ssid model.SSID) {
	if active := c.Registry.FindActive(ssid); active != nil {
		active.Registration.ConnType = model.ConnUnset
	}
	c.Deactivate(ctx, ssid, 0)
}

// deregister implements deregister: best-effort, logging but never
// propagating failure, and skipped entirely when conn_type is already
// Unset or stream binding fails.
func (c *Core) deregister(ctx context.Context, active *registry.ActiveServer) {
	if active.Registration.ConnType == model.ConnUnset {
		return
	}
	ref := coap.ConnectionRef{SSID: active.SSID, ConnType: active.Registration.ConnType}
	if err := c.Coap.BindServerStream(ctx, ref); err != nil {
		logger.WarnCtx(ctx, "session: de-register stream bind failed, skipping", append(c.logField(active.SSID), logger.Err(err))...)
		return
	}
	defer c.Coap.ReleaseServerStream(ref)

	if err := c.Coap.Deregister(ctx, ref); err != nil {
		logger.WarnCtx(ctx, "session: de-register failed, best effort", append(c.logField(active.SSID), logger.Err(err))...)
	}
}

// getServerUpdateIntervalMargin computes margin = min(lifetime/2,
// CoAP max_transmit_wait), the ANJAY_UPDATE_INTERVAL_MARGIN_FACTOR
// divisor applied to lifetime.
func (c *Core) getServerUpdateIntervalMargin(active *registry.ActiveServer) time.Duration {
	half := time.Duration(active.Registration.LastUpdateLifetimeS) * time.Second / coap.UpdateIntervalMarginFactor
	maxWait := c.Coap.TxParamsForConnType(active.Registration.ConnType).MaxTransmitWait()
	if maxWait < half {
		return maxWait
	}
	return half
}

// scheduleNextUpdate implements schedule_next_update: compute
// remaining = max(expires_at - now - margin, MIN_UPDATE_INTERVAL_S) and
// install the scheduled Update job at that delay.
func (c *Core) scheduleNextUpdate(active *registry.ActiveServer) {
	margin := c.getServerUpdateIntervalMargin(active)
	remaining := active.Registration.ExpiresAt.Sub(time.Now()) - margin
	minInterval := time.Duration(coap.MinUpdateIntervalS) * time.Second
	if remaining < minInterval {
		remaining = minInterval
	}

	c.Scheduler.Cancel(active.SchedUpdateHandle)
	args := updateJobArgs{SSID: active.SSID, SocketNeeds: SocketNeedsNothing}
	active.SchedUpdateHandle = c.Scheduler.ScheduleRetryable(time.Now().Add(remaining), c.sendUpdateSchedJob(decodeUpdateArgs(encodeUpdateArgs(args))))
}
