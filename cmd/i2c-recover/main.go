// cmd/i2c-recover/main.go
package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pilab/busguard/internal/config"
	"github.com/pilab/busguard/internal/daemon"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		cfgPath     string
		envFile     string
		lockTimeout time.Duration
		unstick     string
	)

	cmd := &cobra.Command{
		Use:   "i2c-recover",
		Short: "Unstick and rebind a wedged I2C bus",
		Long: "Runs the same hard reset the daemons escalate to: nine clock pulses\n" +
			"and a STOP on the bus pins, then an unbind/bind of the bus driver.\n" +
			"The shared bus lock is held throughout. Needs root.",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := daemon.LoadConfig(cfgPath, envFile, func(c *config.Config) {
				if unstick != "" {
					c.Recovery.Unstick = unstick
				}
			})
			if err != nil {
				return err
			}
			return run(cfg, lockTimeout)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&cfgPath, "config", "c", "/etc/busguard/busguard.yaml", "YAML config file")
	f.StringVar(&envFile, "env-file", "", ".env file with I2C_* overrides")
	f.DurationVar(&lockTimeout, "lock-timeout", 10*time.Second, "how long to wait for the bus lock")
	f.StringVar(&unstick, "unstick", "", "command, gpio or none (default from config)")
	return cmd
}

func run(cfg *config.Config, lockTimeout time.Duration) error {
	env, err := daemon.New(cfg, os.Stderr)
	if err != nil {
		return err
	}
	defer env.Close()
	log := env.Logger

	if !env.Reset.Privileged() {
		return errors.New("i2c-recover: must run as root")
	}

	ctx, stop := daemon.SignalContext()
	defer stop()

	start := time.Now()
	err = env.Lock.WithLock(ctx, lockTimeout, func() error {
		log.Info("bus lock held, resetting bus", "lock", env.Lock.Path())
		return env.Reset.HardReset(ctx)
	})
	if err != nil {
		return fmt.Errorf("i2c-recover: %w", err)
	}
	log.Info("bus reset done", "took", time.Since(start).Round(time.Millisecond))
	return nil
}
