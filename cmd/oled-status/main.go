// cmd/oled-status/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"periph.io/x/conn/v3/physic"

	"github.com/pilab/busguard/internal/busclient"
	"github.com/pilab/busguard/internal/config"
	"github.com/pilab/busguard/internal/daemon"
	"github.com/pilab/busguard/internal/display"
	"github.com/pilab/busguard/internal/i2cbus"
	"github.com/pilab/busguard/internal/sysinfo"
)

const (
	deviceName = "oled"

	// goodbyeBudget bounds the farewell frame and panel halt on shutdown.
	goodbyeBudget = 5 * time.Second
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		cfgPath  string
		envFile  string
		logLevel string
	)

	cmd := &cobra.Command{
		Use:          "oled-status",
		Short:        "Cycle system status pages on the SSD1306 of the SATA HAT",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := daemon.LoadConfig(cfgPath, envFile, func(c *config.Config) {
				if logLevel != "" {
					c.Log.Level = logLevel
				}
			})
			if err != nil {
				return err
			}
			return run(cfg, cfgPath, envFile)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&cfgPath, "config", "c", "/etc/busguard/busguard.yaml", "YAML config file")
	pf.StringVar(&envFile, "env-file", "/etc/busguard/oled.env", ".env file with I2C_* overrides")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error")

	cmd.AddCommand(newWhiteTestCmd(&cfgPath))
	return cmd
}

// newWhiteTestCmd toggles the all-white burn-in frame. The running daemon
// picks the edit up through its config watcher.
func newWhiteTestCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:       "white-test [on|off]",
		Short:     "Show or set the all-white panel test",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				on, err := config.GetBool(*cfgPath, "oled", "white_test")
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "white-test=%t\n", on)
				return nil
			}

			var on bool
			switch args[0] {
			case "on":
				on = true
			case "off":
			default:
				return fmt.Errorf("white-test: want on or off, got %q", args[0])
			}
			if err := config.SetBool(*cfgPath, "oled", "white_test", on); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "white-test set to %t\n", on)
			return nil
		},
	}
}

func settingsFrom(c *config.Config) display.Settings {
	return display.Settings{
		Auto:      c.OLED.Slider.Auto,
		Interval:  config.Duration(c.OLED.Slider.TimeMs),
		Rotate:    c.OLED.Rotate,
		Invert:    c.OLED.Invert,
		WhiteTest: c.OLED.WhiteTest,
	}
}

func run(cfg *config.Config, cfgPath, envFile string) error {
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
	// Live settings
	// --------------------

	var settings atomic.Pointer[display.Settings]
	initial := settingsFrom(cfg)
	settings.Store(&initial)

	go func() {
		err := config.Watch(ctx, cfgPath, envFile, log, func(c *config.Config) {
			s := settingsFrom(c)
			settings.Store(&s)
		})
		if err != nil {
			log.Warn("config watch unavailable, settings are fixed", "error", err)
		}
	}()

	// --------------------
	// Panel + bus client
	// --------------------

	binding := &display.Binding{
		Opener: i2cbus.Opener{
			DevDir:    cfg.Bus.DevDir,
			Preferred: cfg.Bus.Number,
			Frequency: physic.Frequency(cfg.OLED.FrequencyHz) * physic.Hertz,
		},
		Width:  cfg.OLED.Width,
		Height: cfg.OLED.Height,
	}
	binding.SetOrientation(initial.Rotate, initial.Invert)

	client := busclient.New[*display.Panel](deviceName, binding, env.Locker(deviceName),
		busclient.WithPolicy(cfg.OLED.Policy.Policy()),
		busclient.WithHardResetter(env.Reset),
		busclient.WithProgress(env.Progress),
		busclient.WithObserver(env.Metrics),
		busclient.WithLogger(log),
		busclient.WithThrottle(env.Throttle),
	)
	// Close halts the panel so it does not keep a stale frame lit.
	defer client.Close()

	src := &sysinfo.Source{
		Fahrenheit: cfg.OLED.Fahrenheit,
		Mounts:     cfg.OLED.Mounts,
	}
	slider := &display.Slider{
		Client:   client,
		Binding:  binding,
		Pages:    src.Pages,
		Settings: func() display.Settings { return *settings.Load() },
		Progress: env.Progress,
		Logger:   log,
		Throttle: env.Throttle,
	}

	slider.Welcome(ctx, cfg.OLED.Title)
	if err := slider.Run(ctx); err != nil {
		log.Error("slider stopped", "error", err)
	}

	log.Info("shutting down")
	byeCtx, cancel := context.WithTimeout(context.Background(), goodbyeBudget)
	defer cancel()
	slider.Goodbye(byeCtx)
	return nil
}
