package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dhuga/lwm2mcore/internal/logger"
	"github.com/dhuga/lwm2mcore/pkg/lwm2m/connbuild"
	"github.com/dhuga/lwm2mcore/pkg/lwm2m/model"
	"github.com/dhuga/lwm2mcore/pkg/lwm2m/registry"
	"github.com/dhuga/lwm2mcore/pkg/lwm2m/transport"
)

// errOffline is returned by tryInitializeActiveServer when the system
// is globally offline; it is always retryable and never counted.
var errOffline = errors.New("session: globally offline")

// SeedInactive registers ssid as a newly known, not-yet-active server
// and schedules its first activation attempt at the given delay.
func (c *Core) SeedInactive(ssid model.SSID, delay time.Duration) {
	inactive := &registry.InactiveServer{SSID: ssid}
	c.Registry.AddInactive(inactive)
	inactive.SchedReactivateHandle = c.Scheduler.ScheduleRetryable(time.Now().Add(delay), c.activateJob(ssid))
}

// activateJob builds the retryable job body for ssid's activation,
// following the original's activate_server_job: resolve and connect,
// register or prepare bootstrap, and on failure update the ICMP-style
// failure counter and decide whether to retry, give up, or fall back to
// bootstrap. The fallback check is only "a Bootstrap Security instance
// exists and canRetryWithNormalServer is false"; the bootstrap
// in-progress flag and the shape of the active pool are not consulted.
func (c *Core) activateJob(ssid model.SSID) func(context.Context) error {
	return func(ctx context.Context) error {
		inactive := c.Registry.FindInactive(ssid)
		if inactive == nil {
			// Some concurrent path (deactivate, cleanup) already handled
			// this SSID; nothing left for this job to do.
			return nil
		}

		active, class, err := c.tryInitializeActiveServer(ctx, ssid)
		if err == nil {
			c.Registry.RemoveInactive(ssid)
			c.Registry.AddActive(active)
			logger.InfoCtx(ctx, "session: server activated", c.logField(ssid)...)
			return nil
		}

		inactive.ReactivateFailed = true
		c.applyFailure(ssid, inactive, class)

		if inactive.NumICMPFailures < c.MaxICMPFailures {
			logger.WarnCtx(ctx, "session: activation failed, retrying", append(c.logField(ssid), logger.Err(err))...)
			return err
		}

		// Counter saturated: give up on this SSID's own retry loop and
		// decide what, if anything, takes over.
		if isBootstrap(ssid) {
			c.Bootstrap.Cleanup(ssid)
			logger.ErrorCtx(ctx, "session: bootstrap server given up", c.logField(ssid)...)
			return nil
		}
		if _, bootstrapConfigured := c.DataModel.FindSecurityIID(model.SSIDBootstrap); bootstrapConfigured {
			if !c.canRetryWithNormalServer() {
				if bsErr := c.Bootstrap.AccountPrepare(ctx, model.SSIDBootstrap); bsErr != nil {
					logger.ErrorCtx(ctx, "session: bootstrap fallback failed to start", logger.Err(bsErr))
				}
			}
		} else {
			logger.DebugCtx(ctx, "session: non-bootstrap server given up", c.logField(ssid)...)
		}
		return nil
	}
}

// applyFailure updates inactive's num_icmp_failures counter per the
// classification table in transport.ClassifyFailure, generalized to
// the non-transport failure paths (offline check, connection-info
// assembly, Register/bootstrap_account_prepare) that activation can
// also fail at.
func (c *Core) applyFailure(ssid model.SSID, inactive *registry.InactiveServer, class transport.FailureClass) {
	switch class {
	case transport.FailureCounted:
		inactive.NumICMPFailures++
	case transport.FailureSaturate:
		inactive.NumICMPFailures = c.MaxICMPFailures
	case transport.FailureRetryableUncounted:
		// counter untouched
	}
}

// classifyGenericError applies the same ErrForbidden-saturates,
// otherwise-uncounted rule transport.ClassifyFailure uses for its
// non-errno branch, to errors that don't come from a RefreshResult
// (offline checks, assembly failures, Register/bootstrap responses).
func classifyGenericError(err error) transport.FailureClass {
	if errors.Is(err, model.ErrForbidden) {
		return transport.FailureSaturate
	}
	return transport.FailureRetryableUncounted
}

// tryInitializeActiveServer implements initialize_active_server:
// assemble connection info, refresh every enabled transport, then
// either Register (non-bootstrap) or start bootstrap account
// preparation (bootstrap SSID).
func (c *Core) tryInitializeActiveServer(ctx context.Context, ssid model.SSID) (*registry.ActiveServer, transport.FailureClass, error) {
	if c.offline {
		return nil, transport.FailureRetryableUncounted, errOffline
	}

	result, err := connbuild.AssembleConnectionInfo(ssid, c.DataModel, nil, c.ConnOpts)
	if err != nil {
		// Resolution failure (e.g. no Security instance) is fatal for
		// this attempt but not distinguishable from a transient
		// misconfiguration window, so it is retried like any other
		// uncounted failure rather than given special-cased handling.
		return nil, classifyGenericError(err), err
	}

	active := &registry.ActiveServer{
		SSID:        ssid,
		URI:         result.Info.URI,
		Connections: map[model.ConnType]*transport.Connection{},
	}

	for _, connType := range connTypesEnabled(result.UDPMode, result.SMSMode) {
		factory, ok := c.SocketFactories[connType]
		if !ok {
			continue
		}
		conn := transport.NewConnection(factory)
		mode := modeForConnType(connType, result.UDPMode, result.SMSMode)
		refreshResult := conn.Refresh(ctx, mode, result.Info, false)
		if refreshResult.Failed() {
			return nil, transport.ClassifyFailure(refreshResult), fmt.Errorf("session: refresh %s connection for SSID %d: %s", connType, ssid, refreshResult.Error())
		}
		active.Connections[connType] = conn
	}

	if isBootstrap(ssid) {
		if err := c.Bootstrap.AccountPrepare(ctx, ssid); err != nil {
			return nil, classifyGenericError(err), fmt.Errorf("session: bootstrap account prepare SSID %d: %w", ssid, err)
		}
		return active, transport.FailureRetryableUncounted, nil
	}

	if err := c.serverRegister(ctx, active); err != nil {
		return nil, classifyGenericError(err), fmt.Errorf("session: register SSID %d: %w", ssid, err)
	}
	return active, transport.FailureRetryableUncounted, nil
}

// canRetryWithNormalServer implements the original's predicate: true
// iff any inactive, non-bootstrap server either has not yet failed or
// has a failure counter below the configured maximum.
func (c *Core) canRetryWithNormalServer() bool {
	for _, s := range c.Registry.Inactive() {
		if isBootstrap(s.SSID) {
			continue
		}
		if !s.ReactivateFailed || s.NumICMPFailures < c.MaxICMPFailures {
			return true
		}
	}
	return false
}

// AllConnectionsFailed implements all_connections_failed: true iff the
// active pool is empty and every inactive server has saturated its
// failure counter.
func (c *Core) AllConnectionsFailed() bool {
	if len(c.Registry.Active()) != 0 {
		return false
	}
	for _, s := range c.Registry.Inactive() {
		if s.NumICMPFailures < c.MaxICMPFailures {
			return false
		}
	}
	return true
}

// Deactivate implements deactivate(ssid, reactivate_delay): moves an
// active server to the inactive pool, performing a best-effort
// De-Register first. A negative delay means "cancel any reactivation";
// a non-negative delay (including zero, meaning immediately) schedules
// the next activate_job at that delay with standard backoff.
func (c *Core) Deactivate(ctx context.Context, ssid model.SSID, delay time.Duration) {
	if active := c.Registry.FindActive(ssid); active != nil {
		c.deregister(ctx, active)
		active.Cleanup(c.Scheduler)
		c.Registry.RemoveActive(ssid)

		inactive := &registry.InactiveServer{SSID: ssid}
		c.Registry.AddInactive(inactive)
		if delay >= 0 {
			c.scheduleReactivate(inactive, delay)
		}
		return
	}

	if inactive := c.Registry.FindInactive(ssid); inactive != nil {
		if delay < 0 {
			c.Scheduler.Cancel(inactive.SchedReactivateHandle)
			inactive.SchedReactivateHandle = ""
			return
		}
		c.scheduleReactivate(inactive, delay)
	}
}

// scheduleReactivate implements sched_reactivate_server: reset give-up
// state, cancel the stale handle, and install a fresh retryable
// activate_job at delay.
func (c *Core) scheduleReactivate(inactive *registry.InactiveServer, delay time.Duration) {
	c.Scheduler.Cancel(inactive.SchedReactivateHandle)
	inactive.ReactivateFailed = false
	inactive.NumICMPFailures = 0
	inactive.SchedReactivateHandle = c.Scheduler.ScheduleRetryable(time.Now().Add(delay), c.activateJob(inactive.SSID))
}
