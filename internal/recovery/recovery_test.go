// internal/recovery/recovery_test.go
package recovery

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cfg "github.com/pilab/busguard/internal/config"
)

type recordingRunner struct {
	cmds []string
}

func (r *recordingRunner) Run(_ context.Context, name string, args ...string) error {
	r.cmds = append(r.cmds, name+" "+strings.Join(args, " "))
	return nil
}

func only(names ...string) func(string) (string, error) {
	return func(n string) (string, error) {
		for _, x := range names {
			if x == n {
				return "/usr/bin/" + n, nil
			}
		}
		return "", exec.ErrNotFound
	}
}

func TestCommandUnstickerPrefersPinctrl(t *testing.T) {
	r := &recordingRunner{}
	u := CommandUnsticker{Runner: r, LookPath: only("pinctrl", "raspi-gpio"), sleep: func(time.Duration) {}}

	require.NoError(t, u.Unstick(context.Background()))

	require.NotEmpty(t, r.cmds)
	for _, c := range r.cmds {
		assert.True(t, strings.HasPrefix(c, "pinctrl set "), c)
	}

	var pulses int
	for _, c := range r.cmds {
		if c == "pinctrl set 3 op dl" {
			pulses++
		}
	}
	assert.Equal(t, 9, pulses)

	assert.Equal(t, "pinctrl set 2 ip pu", r.cmds[0])
	n := len(r.cmds)
	assert.Equal(t, []string{
		"pinctrl set 2 op dl",
		"pinctrl set 3 op dh",
		"pinctrl set 2 ip pu",
		"pinctrl set 2 a3",
		"pinctrl set 3 a3",
	}, r.cmds[n-5:])
}

func TestCommandUnstickerFallsBackToRaspiGPIO(t *testing.T) {
	r := &recordingRunner{}
	u := CommandUnsticker{Runner: r, LookPath: only("raspi-gpio"), sleep: func(time.Duration) {}}

	require.NoError(t, u.Unstick(context.Background()))
	assert.Equal(t, "raspi-gpio set 2 ip pu", r.cmds[0])
	assert.Equal(t, "raspi-gpio set 3 a0", r.cmds[len(r.cmds)-1])
}

func TestCommandUnstickerWithoutTools(t *testing.T) {
	r := &recordingRunner{}
	u := CommandUnsticker{Runner: r, LookPath: only()}

	assert.ErrorIs(t, u.Unstick(context.Background()), ErrNoTool)
	assert.Empty(t, r.cmds)
}

func fakeDriver(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for _, f := range []string{"bind", "unbind"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, f), nil, 0o200))
	}
	return dir
}

func TestSysfsRebinderWritesDevice(t *testing.T) {
	dir := fakeDriver(t)
	r := SysfsRebinder{DriverDir: dir, Device: "1f00074000.i2c", Gap: time.Millisecond}

	require.NoError(t, r.Rebind(context.Background()))

	for _, f := range []string{"bind", "unbind"} {
		require.NoError(t, os.Chmod(filepath.Join(dir, f), 0o600))
		b, err := os.ReadFile(filepath.Join(dir, f))
		require.NoError(t, err)
		assert.Equal(t, "1f00074000.i2c", string(b))
	}
}

func TestSysfsRebinderWithoutDriver(t *testing.T) {
	r := SysfsRebinder{DriverDir: filepath.Join(t.TempDir(), "missing")}
	assert.ErrorIs(t, r.Rebind(context.Background()), ErrNoDriver)
}

type stepFunc func(context.Context) error

func (f stepFunc) Unstick(ctx context.Context) error { return f(ctx) }
func (f stepFunc) Rebind(ctx context.Context) error  { return f(ctx) }

func TestStrategyRunsStepsInOrder(t *testing.T) {
	var steps []string
	s := &Strategy{
		Unsticker: stepFunc(func(context.Context) error {
			steps = append(steps, "unstick")
			return errors.New("pin busy")
		}),
		Rebinder: stepFunc(func(context.Context) error {
			steps = append(steps, "rebind")
			return nil
		}),
		Settle: time.Millisecond,
	}

	require.NoError(t, s.HardReset(context.Background()))
	assert.Equal(t, []string{"unstick", "rebind"}, steps)
}

func TestStrategyReportsRebindFailure(t *testing.T) {
	s := &Strategy{
		Rebinder: SysfsRebinder{DriverDir: t.TempDir() + "/none"},
		Settle:   time.Millisecond,
	}
	assert.ErrorIs(t, s.HardReset(context.Background()), ErrNoDriver)
}

func TestStrategyPrivilege(t *testing.T) {
	assert.True(t, (&Strategy{Euid: func() int { return 0 }}).Privileged())
	assert.False(t, (&Strategy{Euid: func() int { return 1000 }}).Privileged())
}

func TestBuildPicksUnsticker(t *testing.T) {
	c := cfg.Default().Recovery

	s := Build(c, nil)
	assert.IsType(t, CommandUnsticker{}, s.Unsticker)
	assert.Equal(t, 300*time.Millisecond, s.Settle)
	assert.Equal(t, SysfsRebinder{DriverDir: DefaultDriverDir, Device: DefaultDevice}, s.Rebinder)

	c.Unstick = "gpio"
	assert.IsType(t, GPIOUnsticker{}, Build(c, nil).Unsticker)

	c.Unstick = "none"
	assert.Nil(t, Build(c, nil).Unsticker)
}
