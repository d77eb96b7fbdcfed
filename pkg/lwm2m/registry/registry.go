// Package registry holds the two server pools the session core drives:
// active servers (registered or registering, with live transport
// connections) and inactive servers (retry state awaiting
// reactivation). Both lists are kept sorted by ascending SSID with no
// internal locking — every mutation is expected to run on the single
// cooperative scheduler goroutine that owns the whole session core;
// callers needing a different concurrency model provide their own
// external serialization, the same contract the dittofs portmap
// registry enforces with a sync.RWMutex instead. We drop that mutex
// deliberately: the session core's scheduler thread is the only writer
// by construction, so a lock would hide bugs rather than prevent them.
package registry

import (
	"fmt"
	"sort"
	"time"

	"github.com/dhuga/lwm2mcore/pkg/lwm2m/model"
	"github.com/dhuga/lwm2mcore/pkg/lwm2m/scheduler"
	"github.com/dhuga/lwm2mcore/pkg/lwm2m/transport"
)

// RegistrationInfo tracks the state of one active server's registration.
type RegistrationInfo struct {
	ConnType            model.ConnType
	LastUpdateLifetimeS int64
	ExpiresAt           time.Time
}

// Valid reports whether the registration has neither lapsed nor lost
// its carrying transport.
func (r RegistrationInfo) Valid(now time.Time, conn *transport.Connection) bool {
	return r.ConnType != model.ConnUnset && conn != nil && conn.IsOnline() && now.Before(r.ExpiresAt)
}

// ActiveServer is a registered (or registering) server: its transport
// connections, current registration state, and the scheduler handle for
// its next Update.
type ActiveServer struct {
	SSID              model.SSID
	URI               model.ServerURI
	Connections       map[model.ConnType]*transport.Connection
	Registration      RegistrationInfo
	SchedUpdateHandle scheduler.Handle
}

// Cleanup closes every connection's socket and cancels the scheduled
// update job. Called when a server is removed from the active list,
// whether on deactivation or final shutdown.
func (s *ActiveServer) Cleanup(sched *scheduler.Scheduler) {
	for _, conn := range s.Connections {
		conn.Cleanup()
	}
	sched.Cancel(s.SchedUpdateHandle)
}

// InactiveServer is a server awaiting reactivation: its give-up state
// and ICMP-style failure counter, plus the handle for its retryable
// activation job.
type InactiveServer struct {
	SSID                  model.SSID
	ReactivateFailed      bool
	NumICMPFailures       uint32
	SchedReactivateHandle scheduler.Handle
}

// Cleanup cancels the scheduled reactivation job.
func (s *InactiveServer) Cleanup(sched *scheduler.Scheduler) {
	sched.Cancel(s.SchedReactivateHandle)
}

// Registry holds the ordered, disjoint active/inactive server lists.
// Every exported method assumes single-threaded cooperative access; see
// the package doc comment.
type Registry struct {
	active   []*ActiveServer
	inactive []*InactiveServer
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{}
}

// FindActive returns the active server with the given SSID, or nil.
func (r *Registry) FindActive(ssid model.SSID) *ActiveServer {
	i, ok := r.activeIndex(ssid)
	if !ok {
		return nil
	}
	return r.active[i]
}

// FindInactive returns the inactive server with the given SSID, or nil.
func (r *Registry) FindInactive(ssid model.SSID) *InactiveServer {
	i, ok := r.inactiveIndex(ssid)
	if !ok {
		return nil
	}
	return r.inactive[i]
}

// Contains reports whether ssid is present in either list.
func (r *Registry) Contains(ssid model.SSID) bool {
	return r.FindActive(ssid) != nil || r.FindInactive(ssid) != nil
}

func (r *Registry) activeIndex(ssid model.SSID) (int, bool) {
	i := sort.Search(len(r.active), func(i int) bool { return r.active[i].SSID >= ssid })
	if i < len(r.active) && r.active[i].SSID == ssid {
		return i, true
	}
	return i, false
}

func (r *Registry) inactiveIndex(ssid model.SSID) (int, bool) {
	i := sort.Search(len(r.inactive), func(i int) bool { return r.inactive[i].SSID >= ssid })
	if i < len(r.inactive) && r.inactive[i].SSID == ssid {
		return i, true
	}
	return i, false
}

// AddActive inserts server into the active list in ascending-SSID
// order. It panics if the SSID already appears in either list: the
// session core never double-activates a server, so a collision here is
// a programming error in the caller, not a runtime condition to
// recover from.
func (r *Registry) AddActive(server *ActiveServer) {
	if r.Contains(server.SSID) {
		panic(fmt.Sprintf("registry: SSID %d already present", server.SSID))
	}
	i, _ := r.activeIndex(server.SSID)
	r.active = append(r.active, nil)
	copy(r.active[i+1:], r.active[i:])
	r.active[i] = server
}

// AddInactive inserts server into the inactive list in ascending-SSID
// order. Same uniqueness contract as AddActive.
func (r *Registry) AddInactive(server *InactiveServer) {
	if r.Contains(server.SSID) {
		panic(fmt.Sprintf("registry: SSID %d already present", server.SSID))
	}
	i, _ := r.inactiveIndex(server.SSID)
	r.inactive = append(r.inactive, nil)
	copy(r.inactive[i+1:], r.inactive[i:])
	r.inactive[i] = server
}

// RemoveActive removes and returns the active server with ssid, or nil
// if absent. It does not call Cleanup; callers that want that must do
// so explicitly before or after removal.
func (r *Registry) RemoveActive(ssid model.SSID) *ActiveServer {
	i, ok := r.activeIndex(ssid)
	if !ok {
		return nil
	}
	s := r.active[i]
	r.active = append(r.active[:i], r.active[i+1:]...)
	return s
}

// RemoveInactive removes and returns the inactive server with ssid, or
// nil if absent.
func (r *Registry) RemoveInactive(ssid model.SSID) *InactiveServer {
	i, ok := r.inactiveIndex(ssid)
	if !ok {
		return nil
	}
	s := r.inactive[i]
	r.inactive = append(r.inactive[:i], r.inactive[i+1:]...)
	return s
}

// Active returns the active list, in ascending-SSID order. The slice is
// owned by the Registry; callers must not retain it across a mutation.
func (r *Registry) Active() []*ActiveServer { return r.active }

// Inactive returns the inactive list, in ascending-SSID order.
func (r *Registry) Inactive() []*InactiveServer { return r.inactive }

// CleanupAll closes every connection and cancels every scheduled job
// across both lists, then empties them. Used on full shutdown.
func (r *Registry) CleanupAll(sched *scheduler.Scheduler) {
	for _, s := range r.active {
		s.Cleanup(sched)
	}
	for _, s := range r.inactive {
		s.Cleanup(sched)
	}
	r.active = nil
	r.inactive = nil
}

// Count returns the combined number of active and inactive servers.
func (r *Registry) Count() int { return len(r.active) + len(r.inactive) }
