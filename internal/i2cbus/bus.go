// internal/i2cbus/bus.go
package i2cbus

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

const (
	DefaultDevDir    = "/dev"
	DefaultFrequency = 50 * physic.KiloHertz
)

// ErrNoBus means no /dev/i2c-N node exists.
var ErrNoBus = errors.New("i2cbus: no i2c bus found")

// PickBus returns preferred when /dev/i2c-<preferred> exists, else the
// lowest numbered bus present.
func PickBus(devDir string, preferred int) (int, error) {
	if devDir == "" {
		devDir = DefaultDevDir
	}
	if preferred >= 0 {
		if _, err := os.Stat(filepath.Join(devDir, "i2c-"+strconv.Itoa(preferred))); err == nil {
			return preferred, nil
		}
	}

	matches, err := filepath.Glob(filepath.Join(devDir, "i2c-*"))
	if err != nil {
		return 0, err
	}
	var found []int
	for _, m := range matches {
		n, err := strconv.Atoi(strings.TrimPrefix(filepath.Base(m), "i2c-"))
		if err == nil {
			found = append(found, n)
		}
	}
	if len(found) == 0 {
		return 0, fmt.Errorf("%w in %s", ErrNoBus, devDir)
	}
	sort.Ints(found)
	return found[0], nil
}

var hostInit = sync.OnceValue(func() error {
	_, err := host.Init()
	return err
})

// Opener opens a bus through periph's registry at a reduced clock.
type Opener struct {
	DevDir    string
	Preferred int
	Frequency physic.Frequency
}

// Open returns the bus and its number. The clock is applied best effort:
// many Linux adapters only take the rate from the device tree.
func (o Opener) Open() (i2c.BusCloser, int, error) {
	if err := hostInit(); err != nil {
		return nil, 0, fmt.Errorf("i2cbus: host init: %w", err)
	}
	n, err := PickBus(o.DevDir, o.Preferred)
	if err != nil {
		return nil, 0, err
	}
	b, err := i2creg.Open(strconv.Itoa(n))
	if err != nil {
		return nil, 0, fmt.Errorf("i2cbus: open bus %d: %w", n, err)
	}
	f := o.Frequency
	if f == 0 {
		f = DefaultFrequency
	}
	_ = b.SetSpeed(f)
	return b, n, nil
}
