// internal/recovery/unstick.go
package recovery

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"time"

	"github.com/warthog618/gpiod"
)

const (
	DefaultSDA        = 2
	DefaultSCL        = 3
	DefaultPulses     = 9
	DefaultHalfPeriod = time.Millisecond
)

// ErrNoTool means neither pinctrl nor raspi-gpio is installed.
var ErrNoTool = errors.New("recovery: no pin control tool found")

// Runner executes an external command, discarding its output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) error
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) error {
	return exec.CommandContext(ctx, name, args...).Run()
}

// pinTool describes one pin control CLI and the alt function that routes
// pins 2/3 back to the I2C controller.
type pinTool struct {
	name string
	alt  string
}

var pinTools = []pinTool{
	{name: "pinctrl", alt: "a3"},
	{name: "raspi-gpio", alt: "a0"},
}

// CommandUnsticker clocks a stuck slave free through pinctrl, falling back
// to raspi-gpio on older systems.
type CommandUnsticker struct {
	SDA        int
	SCL        int
	Pulses     int
	HalfPeriod time.Duration

	Runner   Runner
	LookPath func(string) (string, error)
	sleep    func(time.Duration)
}

func (u CommandUnsticker) Unstick(ctx context.Context) error {
	lookPath := u.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	var tool *pinTool
	for i := range pinTools {
		if _, err := lookPath(pinTools[i].name); err == nil {
			tool = &pinTools[i]
			break
		}
	}
	if tool == nil {
		return ErrNoTool
	}

	run := u.Runner
	if run == nil {
		run = execRunner{}
	}
	sleep := u.sleep
	if sleep == nil {
		sleep = time.Sleep
	}
	sda, scl := strconv.Itoa(pinOr(u.SDA, DefaultSDA)), strconv.Itoa(pinOr(u.SCL, DefaultSCL))
	half := u.HalfPeriod
	if half <= 0 {
		half = DefaultHalfPeriod
	}
	pulses := u.Pulses
	if pulses <= 0 {
		pulses = DefaultPulses
	}

	// individual command failures are ignored: the sequence is best effort
	// and one stuck pin must not stop the STOP condition from being tried
	set := func(args ...string) {
		_ = run.Run(ctx, tool.name, append([]string{"set"}, args...)...)
	}

	set(sda, "ip", "pu")
	set(scl, "op", "dh")
	for i := 0; i < pulses; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		set(scl, "op", "dl")
		sleep(half)
		set(scl, "op", "dh")
		sleep(half)
	}

	// STOP: SDA low to high while SCL is high
	set(sda, "op", "dl")
	sleep(half)
	set(scl, "op", "dh")
	sleep(half)
	set(sda, "ip", "pu")

	set(sda, tool.alt)
	set(scl, tool.alt)
	return nil
}

// GPIOUnsticker drives the same sequence through the GPIO character device.
// It only works while the pins are not claimed by the I2C controller, for
// example on buses provided by the i2c-gpio overlay.
type GPIOUnsticker struct {
	Chip       string
	SDA        int
	SCL        int
	Pulses     int
	HalfPeriod time.Duration
}

func (u GPIOUnsticker) Unstick(ctx context.Context) error {
	name := u.Chip
	if name == "" {
		name = "gpiochip0"
	}
	chip, err := gpiod.NewChip(name, gpiod.WithConsumer("i2c-unstick"))
	if err != nil {
		return fmt.Errorf("open %s: %w", name, err)
	}
	defer chip.Close()

	sda, err := chip.RequestLine(pinOr(u.SDA, DefaultSDA), gpiod.AsInput, gpiod.WithPullUp)
	if err != nil {
		return fmt.Errorf("request sda: %w", err)
	}
	defer sda.Close()

	scl, err := chip.RequestLine(pinOr(u.SCL, DefaultSCL), gpiod.AsOpenDrain, gpiod.AsOutput(1))
	if err != nil {
		return fmt.Errorf("request scl: %w", err)
	}
	defer scl.Close()

	half := u.HalfPeriod
	if half <= 0 {
		half = DefaultHalfPeriod
	}
	pulses := u.Pulses
	if pulses <= 0 {
		pulses = DefaultPulses
	}

	for i := 0; i < pulses; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if v, err := sda.Value(); err == nil && v == 1 {
			break
		}
		if err := scl.SetValue(0); err != nil {
			return err
		}
		time.Sleep(half)
		if err := scl.SetValue(1); err != nil {
			return err
		}
		time.Sleep(half)
	}

	if err := sda.Reconfigure(gpiod.AsOpenDrain, gpiod.AsOutput(0)); err != nil {
		return fmt.Errorf("drive sda: %w", err)
	}
	time.Sleep(half)
	if err := sda.SetValue(1); err != nil {
		return err
	}
	time.Sleep(half)
	return nil
}

func pinOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
