// cmd/ina219-monitor/main.go
package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"periph.io/x/conn/v3/physic"

	"github.com/pilab/busguard/internal/busclient"
	"github.com/pilab/busguard/internal/config"
	"github.com/pilab/busguard/internal/daemon"
	"github.com/pilab/busguard/internal/device/ina219"
	"github.com/pilab/busguard/internal/i2cbus"
	"github.com/pilab/busguard/internal/poller"
	"github.com/pilab/busguard/internal/publish"
)

const deviceName = "ina219"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		cfgPath  string
		envFile  string
		busNum   int
		address  string
		interval float64
		noMQTT   bool
		logLevel string
	)

	cmd := &cobra.Command{
		Use:          "ina219-monitor",
		Short:        "Read an INA219 on the shared I2C bus and publish U, I and P",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var addr uint64
			if address != "" {
				var err error
				if addr, err = strconv.ParseUint(address, 0, 16); err != nil {
					return fmt.Errorf("--i2c-address: %w", err)
				}
			}

			cfg, err := daemon.LoadConfig(cfgPath, envFile, func(c *config.Config) {
				f := cmd.Flags()
				if f.Changed("i2c-bus") {
					c.Bus.Number = busNum
				}
				if address != "" {
					c.INA219.Address = uint16(addr)
				}
				if f.Changed("interval") {
					c.INA219.IntervalMs = int(interval * 1000)
				}
				if noMQTT {
					c.MQTT.Enabled = false
				}
				if logLevel != "" {
					c.Log.Level = logLevel
				}
			})
			if err != nil {
				return err
			}
			return run(cfg)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&cfgPath, "config", "c", "/etc/busguard/busguard.yaml", "YAML config file")
	f.StringVar(&envFile, "env-file", "/etc/busguard/ina219.env", ".env file with I2C_* and MQTT_* overrides")
	f.IntVar(&busNum, "i2c-bus", 1, "preferred I2C bus number")
	f.StringVar(&address, "i2c-address", "", "sensor address, e.g. 0x40 (default: scan 0x40-0x4F)")
	f.Float64Var(&interval, "interval", 1.0, "seconds between readings")
	f.BoolVar(&noMQTT, "no-mqtt", false, "disable MQTT publishing")
	f.StringVar(&logLevel, "log-level", "", "debug, info, warn or error")
	return cmd
}

func run(cfg *config.Config) error {
	env, err := daemon.New(cfg, os.Stderr)
	if err != nil {
		return err
	}
	defer env.Close()
	log := env.Logger

	ctx, stop := daemon.SignalContext()
	defer stop()
	env.Start(ctx)

	// --------------------
	// Sensor + bus client
	// --------------------

	cal, err := ina219.NewCalibration(cfg.INA219.MaxCurrentA, cfg.INA219.ShuntOhms)
	if err != nil {
		return err
	}
	binding := &ina219.Binding{
		Opener: i2cbus.Opener{
			DevDir:    cfg.Bus.DevDir,
			Preferred: cfg.Bus.Number,
			Frequency: physic.Frequency(cfg.Bus.FrequencyHz) * physic.Hertz,
		},
		Address:     cfg.INA219.Address,
		Calibration: cal,
		Logger:      log,
	}
	client := busclient.New[*ina219.Handle](deviceName, binding, env.Locker(deviceName),
		busclient.WithPolicy(cfg.INA219.Policy.Policy()),
		busclient.WithHardResetter(env.Reset),
		busclient.WithProgress(env.Progress),
		busclient.WithObserver(env.Metrics),
		busclient.WithLogger(log),
		busclient.WithThrottle(env.Throttle),
	)
	defer client.Close()

	// --------------------
	// Sinks
	// --------------------

	var pub *publish.Publisher
	if cfg.MQTT.Enabled {
		if pub, err = publish.New(cfg.MQTT, log); err != nil {
			return err
		}
		pub.Connect()
		defer pub.Close()
	}

	exp, err := newExporter(cfg.Export, log)
	if err != nil {
		return err
	}
	defer exp.Close()

	// --------------------
	// Init, then poll
	// --------------------

	p, err := poller.Build(cfg.INA219, client, env.Progress, log)
	if err != nil {
		return err
	}
	if err := p.WaitReady(ctx); err != nil {
		log.Info("stopped before the sensor came up")
		return nil
	}

	out := make(chan poller.Result)
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Run(ctx, out)
	}()

	secTicker := time.NewTicker(time.Second)
	defer secTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			<-done
			log.Info("shutting down")
			return nil

		case res := <-out:
			if res.OK() {
				m := res.Measurement
				fmt.Printf("U=%6.3f V | I=%6.3f A | P=%7.3f W\n", m.Voltage, m.Current, m.Power)
				if pub != nil {
					pub.Publish(m)
				}
			} else if !errors.Is(res.Err, busclient.ErrUnavailable) {
				env.Throttle.Warn(log, "poll", "reading failed", "error", res.Err)
			}
			exp.Observe(res)

		case <-secTicker.C:
			exp.Tick()
		}
	}
}
