// internal/poller/poller_test.go
package poller

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pilab/busguard/internal/busclient"
	"github.com/pilab/busguard/internal/device/ina219"
)

type fakeDevice struct {
	openErrs []error
	readErr  error
	disabled bool
	opens    int
	reads    int
}

func (f *fakeDevice) Open(context.Context) error {
	f.opens++
	if len(f.openErrs) == 0 {
		return nil
	}
	err := f.openErrs[0]
	f.openErrs = f.openErrs[1:]
	return err
}

func (f *fakeDevice) Read(context.Context) (ina219.Measurement, error) {
	f.reads++
	if f.readErr != nil {
		return ina219.Measurement{Voltage: 99}, f.readErr
	}
	return ina219.Measurement{Voltage: 12.1, Current: 0.5, Power: 6.05}, nil
}

func (f *fakeDevice) ProbeAllowed() bool { return !f.disabled }

func (f *fakeDevice) Stats() busclient.Stats {
	return busclient.Stats{Failures: f.reads - 1}
}

func testConfig() Config {
	return Config{Device: "ina219", Interval: time.Millisecond, InitRetry: time.Millisecond}
}

func TestNew_RejectsBadConfig(t *testing.T) {
	for _, cfg := range []Config{
		{Interval: time.Second, InitRetry: time.Second},
		{Device: "x", InitRetry: time.Second},
		{Device: "x", Interval: time.Second},
	} {
		if _, err := New(cfg, &fakeDevice{}, nil, nil); err == nil {
			t.Fatalf("New(%+v) expected error", cfg)
		}
	}
	if _, err := New(testConfig(), nil, nil, nil); err == nil {
		t.Fatalf("New() without device expected error")
	}
}

func TestPollOnce_Success(t *testing.T) {
	dev := &fakeDevice{}
	p, err := New(testConfig(), dev, nil, nil)
	if err != nil {
		t.Fatalf("New() err=%v", err)
	}

	res := p.PollOnce(context.Background())
	if !res.OK() {
		t.Fatalf("PollOnce err=%v", res.Err)
	}
	if res.Device != "ina219" {
		t.Fatalf("device=%q", res.Device)
	}
	if res.Measurement.Voltage != 12.1 {
		t.Fatalf("voltage=%v", res.Measurement.Voltage)
	}
	if res.At.IsZero() {
		t.Fatalf("timestamp not set")
	}
}

func TestPollOnce_FailureDropsMeasurement(t *testing.T) {
	dev := &fakeDevice{readErr: busclient.ErrUnavailable}
	p, _ := New(testConfig(), dev, nil, nil)

	res := p.PollOnce(context.Background())
	if !errors.Is(res.Err, busclient.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", res.Err)
	}
	if res.Measurement != (ina219.Measurement{}) {
		t.Fatalf("failed cycle leaked a measurement: %+v", res.Measurement)
	}
}

func TestPollOnce_DisabledSkipsBus(t *testing.T) {
	dev := &fakeDevice{disabled: true}
	p, _ := New(testConfig(), dev, nil, nil)

	res := p.PollOnce(context.Background())
	if !errors.Is(res.Err, busclient.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", res.Err)
	}
	if dev.reads != 0 {
		t.Fatalf("disabled device was read %d times", dev.reads)
	}
}

func TestWaitReady_RetriesUntilOpen(t *testing.T) {
	dev := &fakeDevice{openErrs: []error{errors.New("no sensor"), errors.New("no sensor")}}
	p, _ := New(testConfig(), dev, nil, nil)

	if err := p.WaitReady(context.Background()); err != nil {
		t.Fatalf("WaitReady err=%v", err)
	}
	if dev.opens != 3 {
		t.Fatalf("expected 3 opens, got %d", dev.opens)
	}
}

func TestWaitReady_StopsOnCancel(t *testing.T) {
	dev := &fakeDevice{openErrs: []error{errors.New("no sensor")}}
	cfg := testConfig()
	cfg.InitRetry = time.Hour
	p, _ := New(cfg, dev, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if err := p.WaitReady(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}
}

func TestRun_EmitsResults(t *testing.T) {
	p, _ := New(testConfig(), &fakeDevice{}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan Result)
	done := make(chan struct{})
	go func() {
		p.Run(ctx, out)
		close(done)
	}()

	for i := 0; i < 3; i++ {
		select {
		case res := <-out:
			if !res.OK() {
				t.Fatalf("cycle %d err=%v", i, res.Err)
			}
		case <-time.After(time.Second):
			t.Fatalf("no result for cycle %d", i)
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Run did not stop on cancel")
	}
}
