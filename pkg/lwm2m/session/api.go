package session

import (
	"fmt"
	"time"

	"github.com/dhuga/lwm2mcore/pkg/lwm2m/model"
	"github.com/dhuga/lwm2mcore/pkg/lwm2m/registry"
)

// ScheduleRegistrationUpdate implements anjay_schedule_registration_update:
// SSIDAny reschedules the Update for every active server; a specific
// SSID reschedules only that one. Returns an error if the system is
// globally offline or if ssid does not name an active server (an
// inactive server is rejected too).
func (c *Core) ScheduleRegistrationUpdate(ssid model.SSID) error {
	if c.offline {
		return fmt.Errorf("session: cannot schedule update while offline")
	}
	if ssid == model.SSIDAny {
		for _, active := range c.Registry.Active() {
			c.rescheduleUpdateNow(active, SocketNeedsNothing)
		}
		return nil
	}
	active := c.Registry.FindActive(ssid)
	if active == nil {
		return fmt.Errorf("session: SSID %d is not active", ssid)
	}
	c.rescheduleUpdateNow(active, SocketNeedsNothing)
	return nil
}

// rescheduleUpdateNow implements reschedule_update_for_server: cancel
// whatever Update job is pending and install a fresh one at
// AVS_TIME_DURATION_ZERO, not at the lifetime-derived margin delay
// scheduleNextUpdate uses for routine updates.
func (c *Core) rescheduleUpdateNow(active *registry.ActiveServer, needs SocketNeeds) {
	c.Scheduler.Cancel(active.SchedUpdateHandle)
	args := updateJobArgs{SSID: active.SSID, SocketNeeds: needs}
	active.SchedUpdateHandle = c.Scheduler.ScheduleRetryable(time.Now(), c.sendUpdateSchedJob(args))
}

// ScheduleReconnect implements anjay_schedule_reconnect: force every
// active server's next Update job to reconnect its transports before
// the next exchange, reschedule every given-up inactive server for
// immediate reactivation, and clear the global offline flag.
func (c *Core) ScheduleReconnect() {
	for _, active := range c.Registry.Active() {
		c.rescheduleUpdateNow(active, SocketNeedsReconnect)
	}
	for _, inactive := range c.Registry.Inactive() {
		if inactive.ReactivateFailed && inactive.NumICMPFailures >= c.MaxICMPFailures {
			c.scheduleReactivate(inactive, 0)
		}
	}
	c.offline = false
}
