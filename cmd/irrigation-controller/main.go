// Command irrigation-controller drives a pump relay from a push button,
// measures flow from a pulse-output meter, and publishes transitions to MQTT.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sweeney/irrigation-controller/internal/clock"
	"github.com/sweeney/irrigation-controller/internal/config"
	"github.com/sweeney/irrigation-controller/internal/gpio"
	"github.com/sweeney/irrigation-controller/internal/logic"
	"github.com/sweeney/irrigation-controller/internal/mqtt"
	"github.com/sweeney/irrigation-controller/internal/status"
	"github.com/sweeney/irrigation-controller/internal/web"
)

func main() {
	opts, err := parseFlags(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}
	if err := run(opts); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

type options struct {
	envFile     string
	printConfig bool
	cfg         config.Config
}

// parseFlags resolves configuration as defaults, then the -config file, then
// any flag given explicitly on the command line.
func parseFlags(args []string) (options, error) {
	def := config.Default()
	fs := flag.NewFlagSet("irrigation-controller", flag.ContinueOnError)

	configPath := fs.String("config", "", "YAML config file (optional)")
	envFile := fs.String("env-file", config.DefaultEnvFile, "Environment file with network details (empty to skip)")
	printConfig := fs.Bool("print-config", false, "Print resolved configuration and exit")
	chip := fs.String("chip", def.Chip, "GPIO character device")
	poll := fs.Duration("poll", def.Poll, "Main loop interval")
	settle := fs.Duration("settle", def.Settle, "Time inputs must be stable before events are published")
	heartbeat := fs.Duration("heartbeat", def.Heartbeat, "Heartbeat interval (0 to disable)")
	dryRun := fs.Duration("dry-run", def.DryRun, "Switch the pump off after running this long without flow (0 to disable)")
	broker := fs.String("broker", def.Broker, "MQTT broker address")
	clientID := fs.String("client-id", def.ClientID, "MQTT client ID")
	httpAddr := fs.String("http", def.HTTPAddr, "HTTP status address (empty to disable)")
	pinButton := fs.Int("pin-button", def.Pins.Button, "BCM pin number for the push button")
	pinFlow := fs.Int("pin-flow", def.Pins.Flow, "BCM pin number for the flow meter")
	pinRelay := fs.Int("pin-relay", def.Pins.Relay, "BCM pin number for the pump relay")
	policy := fs.String("policy", def.Flow.Policy, `Flow accounting policy ("exclude-noise" or "include-noise")`)
	threshold := fs.Uint("threshold", uint(def.Flow.Threshold), "Pulses a run needs before it counts as flow")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return options{}, err
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "chip":
			cfg.Chip = *chip
		case "poll":
			cfg.Poll = *poll
		case "settle":
			cfg.Settle = *settle
		case "heartbeat":
			cfg.Heartbeat = *heartbeat
		case "dry-run":
			cfg.DryRun = *dryRun
		case "broker":
			cfg.Broker = *broker
		case "client-id":
			cfg.ClientID = *clientID
		case "http":
			cfg.HTTPAddr = *httpAddr
		case "pin-button":
			cfg.Pins.Button = *pinButton
		case "pin-flow":
			cfg.Pins.Flow = *pinFlow
		case "pin-relay":
			cfg.Pins.Relay = *pinRelay
		case "policy":
			cfg.Flow.Policy = *policy
		case "threshold":
			cfg.Flow.Threshold = uint32(*threshold)
		}
	})
	if err := cfg.Validate(); err != nil {
		return options{}, err
	}

	return options{envFile: *envFile, printConfig: *printConfig, cfg: cfg}, nil
}

func run(opts options) error {
	cfg := opts.cfg

	if opts.printConfig {
		out, err := cfg.Marshal()
		if err != nil {
			return err
		}
		fmt.Print(string(out))
		return nil
	}

	if err := config.LoadEnv(opts.envFile); err != nil {
		log.Printf("env file: %v", err)
	}

	ctrl, err := gpio.NewRealController(cfg.Chip)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer ctrl.Close()

	dev, err := newDevice(ctrl, clock.NewSystem(), cfg)
	if err != nil {
		return fmt.Errorf("init device: %w", err)
	}

	publisher := mqtt.NewRealPublisher(cfg.Broker, cfg.ClientID)
	defer publisher.Close()

	// Tracker exists before STARTUP so the snapshot is available.
	tracker := status.NewTracker(time.Now(), status.Config{
		PollMs:      cfg.Poll.Milliseconds(),
		HeartbeatMs: cfg.Heartbeat.Milliseconds(),
		DryRunMs:    cfg.DryRun.Milliseconds(),
		Broker:      cfg.Broker,
		HTTPAddr:    cfg.HTTPAddr,
		Policy:      cfg.Flow.Policy,
		Threshold:   dev.flow.Threshold(),
		PinButton:   cfg.Pins.Button,
		PinFlow:     cfg.Pins.Flow,
		PinRelay:    cfg.Pins.Relay,
	})
	tracker.Update(dev.readings(), false, logic.EventCounts{})
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startupEvent); err != nil {
		log.Printf("failed to publish startup event: %v", err)
	} else {
		log.Printf("published startup event")
	}

	log.Printf("started: poll=%v settle=%v broker=%s heartbeat=%v dry-run=%v policy=%s threshold=%d",
		cfg.Poll, cfg.Settle, cfg.Broker, cfg.Heartbeat, cfg.DryRun, dev.flow.Policy(), dev.flow.Threshold())

	ticker := time.NewTicker(cfg.Poll)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	g, ctx := errgroup.WithContext(context.Background())

	var srv *web.Server
	if cfg.HTTPAddr != "" {
		srv = web.New(cfg.HTTPAddr, tracker)
		g.Go(func() error {
			log.Printf("http status server listening on %s", cfg.HTTPAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		if srv != nil {
			defer srv.Shutdown(context.Background())
		}
		loopOpts := loopOptions{settle: cfg.Settle, heartbeat: cfg.Heartbeat, dryRun: cfg.DryRun}
		return runLoop(ctx, dev, publisher, publisher, tracker, loopOpts, time.Now, ticker.C, sigCh)
	})

	return g.Wait()
}

type loopOptions struct {
	settle    time.Duration
	heartbeat time.Duration
	dryRun    time.Duration
}

func runLoop(ctx context.Context, dev *device, publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, opts loopOptions, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal) error {
	startTime := now()
	detector := logic.NewDetector(opts.settle, startTime)
	guard := logic.NewDryRunGuard(opts.dryRun)

	presses := 0
	dev.button.OnPressed(func() {
		presses++
		if err := dev.toggleRelay(); err != nil {
			log.Printf("relay toggle error: %v", err)
		}
	})

	updateTracker := func() {
		if tracker == nil {
			return
		}
		tracker.Update(dev.readings(), detector.IsBaselined(), detector.EventCountsSnapshot())
		if mqttStatus != nil {
			tracker.SetMQTTConnected(mqttStatus.IsConnected())
		}
	}

	shutdown := func(reason string) {
		if err := dev.relay.Deactivate(); err != nil {
			log.Printf("relay off error: %v", err)
		}
		event := mqtt.SystemEvent{
			Timestamp: now(),
			Event:     "SHUTDOWN",
			Reason:    reason,
			Retained:  true,
		}
		if tracker != nil {
			updateTracker()
			snap := tracker.Snapshot()
			event.RawPayload = status.FormatStatusEvent(snap, "SHUTDOWN", reason)
		}
		if err := publisher.PublishSystem(event); err != nil {
			log.Printf("failed to publish shutdown event: %v", err)
		} else {
			log.Printf("published shutdown event")
		}
	}

	for {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			shutdown(signalName)
			return nil

		case <-ctx.Done():
			log.Printf("stopping: %v", context.Cause(ctx))
			shutdown("ERROR")
			return nil

		case <-tick:
			t := now()

			presses = 0
			dev.button.Read()
			dev.serviceFlow()

			if guard.Check(t, dev.relay.IsOn(), dev.flow.IsFlowing()) {
				log.Printf("dry-run: pump on for %v without flow, switching off", guard.Grace())
				if err := dev.relay.Deactivate(); err != nil {
					log.Printf("relay off error: %v", err)
				} else {
					cutoff := mqtt.SystemEvent{Timestamp: t, Event: "PUMP_CUTOFF", Reason: "DRY_RUN"}
					if err := publisher.PublishSystem(cutoff); err != nil {
						log.Printf("cutoff publish error: %v", err)
					}
				}
			}

			events := detector.Process(logic.Input{
				Flowing: dev.flow.IsFlowing(),
				RelayOn: dev.relay.IsOn(),
				Presses: presses,
				Time:    t,
			})

			for _, event := range events {
				log.Printf("event: %s (flow=%s relay=%s)", event.Type, event.FlowState, event.RelayState)
				if err := publisher.Publish(event); err != nil {
					log.Printf("publish error: %v", err)
				}
				if tracker != nil {
					tracker.RecordEvent(event)
				}
			}

			if detector.IsBaselined() {
				if hbData := detector.CheckHeartbeat(t, opts.heartbeat); hbData != nil {
					log.Printf("heartbeat: uptime=%v flow_start=%d flow_stop=%d relay_on=%d relay_off=%d presses=%d",
						hbData.Uptime, hbData.Counts.FlowStart, hbData.Counts.FlowStop,
						hbData.Counts.RelayOn, hbData.Counts.RelayOff, hbData.Counts.Presses)

					hbEvent := mqtt.SystemEvent{
						Timestamp: hbData.Timestamp,
						Event:     "HEARTBEAT",
					}
					if tracker != nil {
						if net := readNetworkInfo(); net != nil {
							tracker.SetNetwork(net)
						}
						updateTracker()
						snap := tracker.Snapshot()
						hbEvent.RawPayload = status.FormatStatusEvent(snap, "HEARTBEAT", "")
					}
					if err := publisher.PublishSystem(hbEvent); err != nil {
						log.Printf("heartbeat publish error: %v", err)
					}
				}
			}

			updateTracker()
		}
	}
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
