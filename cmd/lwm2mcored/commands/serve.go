package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dhuga/lwm2mcore/internal/config"
	"github.com/dhuga/lwm2mcore/internal/logger"
	"github.com/dhuga/lwm2mcore/internal/seedmodel"
	"github.com/dhuga/lwm2mcore/pkg/lwm2m/coap"
	"github.com/dhuga/lwm2mcore/pkg/lwm2m/connbuild"
	"github.com/dhuga/lwm2mcore/pkg/lwm2m/model"
	"github.com/dhuga/lwm2mcore/pkg/lwm2m/session"
	"github.com/dhuga/lwm2mcore/pkg/lwm2m/transport"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the lwm2mcored session daemon",
	Long: `Run the registration/activation engine for every server listed in
the configuration file, reconnecting and re-registering as needed until
interrupted with SIGINT or SIGTERM.`,
	RunE: runServe,
}

// idleTick bounds how long the run loop waits when the scheduler queue
// is empty, so a signal delivered between jobs is noticed promptly.
const idleTick = time.Second

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := InitLogger(cfg); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	logger.Info("lwm2mcored starting", "config", configSource(GetConfigFile()), "servers", len(cfg.Servers))

	dm, err := seedmodel.FromConfig(cfg.Servers)
	if err != nil {
		return fmt.Errorf("build data model: %w", err)
	}

	core := session.New(
		dm,
		coap.NewLoggingContext(int64(cfg.Session.DefaultLifetimeS)),
		coap.NoopBootstrap{},
		coap.NoopObserve{},
		map[model.ConnType]transport.SocketFactory{
			model.ConnUDP: udpOrDTLSSocketFactory,
			model.ConnSMS: transport.NewPseudoSocket,
		},
		connbuild.Options{
			ConfiguredUDPListenPort: cfg.Session.UDPListenPort,
			DTLSVersion:             cfg.Session.DTLSVersion,
		},
		cfg.Session.MaxICMPFailures,
	)

	for _, ssid := range dm.SSIDs() {
		if ssid == model.SSIDBootstrap && !cfg.Bootstrap.Enabled {
			continue
		}
		core.SeedInactive(ssid, 0)
		logger.Info("server seeded", logger.SSID(uint16(ssid)))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("lwm2mcored running, press Ctrl+C to stop")
	runLoop(ctx, core)
	logger.Info("lwm2mcored stopped")
	return nil
}

// runLoop drives the scheduler from this single cooperative goroutine:
// run whatever is due, then sleep until the next deadline or the next
// idle tick, whichever is sooner, until ctx is cancelled.
func runLoop(ctx context.Context, core *session.Core) {
	for {
		core.Scheduler.RunDue(ctx)

		wait := idleTick
		if when, ok := core.Scheduler.NextDeadline(); ok {
			if d := time.Until(when); d < wait {
				wait = d
			}
		}
		if wait < 0 {
			wait = 0
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// udpOrDTLSSocketFactory picks the pion/dtls socket for any connection
// whose info carries PSK or Certificate security and the plain UDP
// socket otherwise; connbuild.AssembleConnectionInfo fills in Security
// per server on every refresh, so one factory serves every UDP server
// regardless of its individual security mode.
func udpOrDTLSSocketFactory(info transport.ConnectionInfo) (transport.Socket, error) {
	if info.Security == model.SecurityNoSec {
		return transport.NewUDPSocket(info)
	}
	return transport.NewDTLSSocket(info)
}
