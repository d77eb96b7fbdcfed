// Package session implements the registration lifecycle and activation
// engine that sit on top of the registry, transport, connbuild,
// scheduler, and coap packages: moving servers between the active and
// inactive pools, driving Register/Update/De-Register, and deciding
// when to retry, reconnect, or fall back to the Bootstrap Server.
//
// Every exported method is documented as callable only from the single
// cooperative scheduler goroutine that owns a Core, matching the
// concurrency model the registry and scheduler packages already commit
// to. An embedder integrating from another goroutine must serialize
// its own calls externally.
package session

import (
	"github.com/dhuga/lwm2mcore/internal/logger"
	"github.com/dhuga/lwm2mcore/pkg/lwm2m/coap"
	"github.com/dhuga/lwm2mcore/pkg/lwm2m/connbuild"
	"github.com/dhuga/lwm2mcore/pkg/lwm2m/model"
	"github.com/dhuga/lwm2mcore/pkg/lwm2m/registry"
	"github.com/dhuga/lwm2mcore/pkg/lwm2m/scheduler"
	"github.com/dhuga/lwm2mcore/pkg/lwm2m/transport"
)

// Core is the root of the session-management subsystem: the server
// pools, the job queue driving them, and the embedder collaborators
// (data model, CoAP engine, bootstrap, observe, socket factories) the
// activation and registration algorithms call into.
type Core struct {
	Registry  *registry.Registry
	Scheduler *scheduler.Scheduler

	DataModel connbuild.DataModel
	Coap      coap.Context
	Bootstrap coap.Bootstrap
	Observe   coap.Observe

	// SocketFactories supplies a transport.SocketFactory per connection
	// type; a transport absent from this map is treated as unsupported
	// and its connection mode as always Disabled.
	SocketFactories map[model.ConnType]transport.SocketFactory

	ConnOpts connbuild.Options

	// MaxICMPFailures is the configured ceiling on num_icmp_failures
	// before an inactive server is considered to have given up.
	MaxICMPFailures uint32

	offline bool
}

// New constructs a Core with an empty registry and a fresh scheduler.
// Tests that need a fake clock can overwrite the returned Core's
// Scheduler field with scheduler.New(fakeClock) before use.
func New(dm connbuild.DataModel, coapCtx coap.Context, bootstrap coap.Bootstrap, observe coap.Observe, factories map[model.ConnType]transport.SocketFactory, connOpts connbuild.Options, maxICMPFailures uint32) *Core {
	return &Core{
		Registry:        registry.New(),
		Scheduler:       scheduler.New(nil),
		DataModel:       dm,
		Coap:            coapCtx,
		Bootstrap:       bootstrap,
		Observe:         observe,
		SocketFactories: factories,
		ConnOpts:        connOpts,
		MaxICMPFailures: maxICMPFailures,
	}
}

// IsOffline reports whether activation attempts are currently
// suppressed.
func (c *Core) IsOffline() bool { return c.offline }

// SetOffline toggles the global offline flag; activate jobs already in
// flight will see it the next time they run, since a job only runs to
// completion once started and checks this flag at the top.
func (c *Core) SetOffline(offline bool) { c.offline = offline }

// isBootstrap reports whether ssid identifies the Bootstrap Server.
func isBootstrap(ssid model.SSID) bool { return ssid == model.SSIDBootstrap }

// connTypesEnabled returns the connection types whose mode is not
// Disabled, in the fixed UDP-before-SMS preference order.
func connTypesEnabled(udpMode, smsMode model.ConnectionMode) []model.ConnType {
	var out []model.ConnType
	if udpMode != model.ConnectionDisabled {
		out = append(out, model.ConnUDP)
	}
	if smsMode != model.ConnectionDisabled {
		out = append(out, model.ConnSMS)
	}
	return out
}

func modeForConnType(connType model.ConnType, udpMode, smsMode model.ConnectionMode) model.ConnectionMode {
	if connType == model.ConnUDP {
		return udpMode
	}
	return smsMode
}

func (c *Core) logField(ssid model.SSID) []any {
	return []any{logger.SSID(uint16(ssid))}
}
