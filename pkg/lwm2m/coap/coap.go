// Package coap declares the boundary between the session core and the
// CoAP message engine: the request/response operations Register,
// Update, and De-Register need, plus the Bootstrap and Observe
// collaborators the registration lifecycle calls into. This package
// does not implement a CoAP codec — only the interfaces and the
// constants and errors the session core's contract requires, plus a
// minimal logging reference implementation useful for local testing
// and as a template for a real transport-backed one.
package coap

import (
	"context"
	"errors"
	"time"

	"github.com/dhuga/lwm2mcore/pkg/lwm2m/model"
)

// UpdateResult is the outcome of an Update Registration exchange.
type UpdateResult int

const (
	// UpdateOK means the server accepted the Update.
	UpdateOK UpdateResult = 0
	// RegistrationUpdateRejected mirrors the original's
	// ANJAY_REGISTRATION_UPDATE_REJECTED: the server returned a 4.xx,
	// so the session core must re-Register instead of retransmitting.
	RegistrationUpdateRejected UpdateResult = 1
)

// UpdateIntervalMarginFactor and MinUpdateIntervalS are exposed under
// the names the registration-lifecycle scheduling formula uses:
// margin = min(lifetime / MarginFactor, max_transmit_wait), and the
// next Update is never scheduled sooner than MinUpdateIntervalS.
const (
	UpdateIntervalMarginFactor = 2
	MinUpdateIntervalS         = 1
)

// ErrNetwork is the network-failure sentinel, analogous to the
// original's AVS_COAP_CTX_ERR_NETWORK: the registration lifecycle
// responds by suspending the connection rather than retransmitting.
var ErrNetwork = errors.New("coap: network error")

// ConnectionRef identifies the transport carrying a server's CoAP
// exchanges, for BindServerStream/ReleaseServerStream.
type ConnectionRef struct {
	SSID     model.SSID
	ConnType model.ConnType
}

// TxParams are the CoAP retransmission parameters for one connection
// type; MaxTransmitWait derives the worst-case time a confirmable
// message may still be in flight, which bounds the Update scheduling
// margin.
type TxParams struct {
	AckTimeout     time.Duration
	AckRandomFactor float64
	MaxRetransmit  int
}

// MaxTransmitWait computes the maximum time a confirmable request may
// remain unacknowledged before CoAP itself gives up, following the
// standard exponential-backoff transmission model.
func (p TxParams) MaxTransmitWait() time.Duration {
	total := float64(p.AckTimeout) * p.AckRandomFactor
	span := float64(p.AckTimeout) * p.AckRandomFactor
	for i := 0; i < p.MaxRetransmit; i++ {
		span *= 2
		total += span
	}
	return time.Duration(total)
}

// Context is the request/response engine the session core drives to
// Register, Update, and De-Register a connection.
type Context interface {
	BindServerStream(ctx context.Context, ref ConnectionRef) error
	ReleaseServerStream(ref ConnectionRef)

	Register(ctx context.Context, ref ConnectionRef) (lifetimeS int64, err error)
	UpdateRegistration(ctx context.Context, ref ConnectionRef) (UpdateResult, error)
	Deregister(ctx context.Context, ref ConnectionRef) error

	TxParamsForConnType(connType model.ConnType) TxParams
}

// Bootstrap drives the Bootstrap Server interaction that provisions a
// device's Security/Server object instances.
type Bootstrap interface {
	AccountPrepare(ctx context.Context, ssid model.SSID) error
	Cleanup(ssid model.SSID)
	NotifyRegularConnectionAvailable(ssid model.SSID)
	UpdateReconnected(ctx context.Context, ssid model.SSID) error
	InProgress() bool
}

// Observe lets the registration lifecycle flush pending Observe
// notifications over whichever connection just came back online.
type Observe interface {
	SchedFlushCurrentConnection(ref ConnectionRef)
}
