package coap

import (
	"context"
	"time"

	"github.com/dhuga/lwm2mcore/internal/logger"
	"github.com/dhuga/lwm2mcore/pkg/lwm2m/model"
)

// LoggingContext is a minimal Context that always succeeds and logs
// every call instead of exchanging real CoAP messages. It exists as a
// template for a transport-backed Context and to let the session core
// be exercised end-to-end without a full CoAP stack.
type LoggingContext struct {
	DefaultLifetimeS int64
	DefaultTxParams  TxParams
}

// NewLoggingContext returns a LoggingContext with reasonable CoAP
// transmission defaults (CoAP's own CONFIRMABLE retransmission
// parameters: 2s initial ACK timeout, factor 1.5, 4 retransmits).
func NewLoggingContext(defaultLifetimeS int64) *LoggingContext {
	return &LoggingContext{
		DefaultLifetimeS: defaultLifetimeS,
		DefaultTxParams: TxParams{
			AckTimeout:      2 * time.Second,
			AckRandomFactor: 1.5,
			MaxRetransmit:   4,
		},
	}
}

func (c *LoggingContext) BindServerStream(_ context.Context, ref ConnectionRef) error {
	logger.Info("coap: bind server stream", logger.SSID(uint16(ref.SSID)), logger.ConnType(ref.ConnType.String()))
	return nil
}

func (c *LoggingContext) ReleaseServerStream(ref ConnectionRef) {
	logger.Info("coap: release server stream", logger.SSID(uint16(ref.SSID)), logger.ConnType(ref.ConnType.String()))
}

func (c *LoggingContext) Register(_ context.Context, ref ConnectionRef) (int64, error) {
	logger.Info("coap: register", logger.SSID(uint16(ref.SSID)), logger.ConnType(ref.ConnType.String()))
	return c.DefaultLifetimeS, nil
}

func (c *LoggingContext) UpdateRegistration(_ context.Context, ref ConnectionRef) (UpdateResult, error) {
	logger.Info("coap: update registration", logger.SSID(uint16(ref.SSID)), logger.ConnType(ref.ConnType.String()))
	return UpdateOK, nil
}

func (c *LoggingContext) Deregister(_ context.Context, ref ConnectionRef) error {
	logger.Info("coap: deregister", logger.SSID(uint16(ref.SSID)), logger.ConnType(ref.ConnType.String()))
	return nil
}

func (c *LoggingContext) TxParamsForConnType(model.ConnType) TxParams {
	return c.DefaultTxParams
}

// NoopBootstrap is a Bootstrap that never has anything in progress;
// suitable when an embedder has no Bootstrap Server configured.
type NoopBootstrap struct{}

func (NoopBootstrap) AccountPrepare(context.Context, model.SSID) error { return nil }
func (NoopBootstrap) Cleanup(model.SSID)                               {}
func (NoopBootstrap) NotifyRegularConnectionAvailable(model.SSID)      {}
func (NoopBootstrap) UpdateReconnected(context.Context, model.SSID) error { return nil }
func (NoopBootstrap) InProgress() bool                                 { return false }

// NoopObserve is an Observe that does nothing; suitable when the
// embedder has no Observe subsystem wired in yet.
type NoopObserve struct{}

func (NoopObserve) SchedFlushCurrentConnection(ConnectionRef) {}
