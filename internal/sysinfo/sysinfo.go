// internal/sysinfo/sysinfo.go
package sysinfo

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

const (
	DefaultProcDir  = "/proc"
	DefaultThermal  = "/sys/class/thermal/thermal_zone0/temp"
	cpuLoadCacheTTL = time.Second
)

// Mount is one filesystem shown on the disk page.
type Mount struct {
	Label string `yaml:"label"`
	Path  string `yaml:"path"`
}

// Source gathers the text for the status pages.
type Source struct {
	ProcDir    string
	Thermal    string
	Fahrenheit bool
	Mounts     []Mount

	mu      sync.Mutex
	cpuAt   time.Time
	cpuText string
	prev    cpuTimes
	hasPrev bool

	now   func() time.Time
	sleep func(time.Duration)
}

func (s *Source) procDir() string {
	if s.ProcDir == "" {
		return DefaultProcDir
	}
	return s.ProcDir
}

// Pages returns the slider pages. A value that cannot be read is shown as
// "--" so one bad source never blanks the panel.
func (s *Source) Pages() [][]string {
	pages := [][]string{
		{s.Uptime(), s.CPUTemp(), s.IP()},
		{s.CPULoad(), s.Memory()},
	}
	if len(s.Mounts) > 0 {
		var disks []string
		for _, m := range s.Mounts {
			disks = append(disks, DiskUsage(m))
		}
		pages = append(pages, disks)
	}
	return pages
}

// ---- uptime ----

func (s *Source) Uptime() string {
	b, err := os.ReadFile(filepath.Join(s.procDir(), "uptime"))
	if err != nil {
		return "Uptime: --"
	}
	f := strings.Fields(string(b))
	if len(f) == 0 {
		return "Uptime: --"
	}
	secs, err := strconv.ParseFloat(f[0], 64)
	if err != nil {
		return "Uptime: --"
	}
	return "Uptime: " + FormatUptime(time.Duration(secs)*time.Second)
}

// FormatUptime renders 1d02h, 02h03m or 5m.
func FormatUptime(d time.Duration) string {
	s := int64(d / time.Second)
	days, hours, mins := s/86400, (s%86400)/3600, (s%3600)/60
	switch {
	case days > 0:
		return fmt.Sprintf("%dd%02dh", days, hours)
	case hours > 0:
		return fmt.Sprintf("%02dh%02dm", hours, mins)
	default:
		return fmt.Sprintf("%dm", mins)
	}
}

// ---- temperature ----

func (s *Source) CPUTemp() string {
	path := s.Thermal
	if path == "" {
		path = DefaultThermal
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "CPU Temp: --"
	}
	milli, err := strconv.ParseFloat(strings.TrimSpace(string(b)), 64)
	if err != nil {
		return "CPU Temp: --"
	}
	return FormatTemp(milli/1000, s.Fahrenheit)
}

func FormatTemp(celsius float64, fahrenheit bool) string {
	if fahrenheit {
		return fmt.Sprintf("CPU Temp: %.0f°F", celsius*1.8+32)
	}
	return fmt.Sprintf("CPU Temp: %.1f°C", celsius)
}

// ---- network ----

func (s *Source) IP() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "IP --"
	}
	for _, a := range addrs {
		n, ok := a.(*net.IPNet)
		if !ok || n.IP.IsLoopback() {
			continue
		}
		if v4 := n.IP.To4(); v4 != nil {
			return "IP " + v4.String()
		}
	}
	return "IP --"
}

// ---- cpu ----

type cpuTimes struct {
	total uint64
	idle  uint64
}

func readCPUTimes(procDir string) (cpuTimes, error) {
	f, err := os.Open(filepath.Join(procDir, "stat"))
	if err != nil {
		return cpuTimes{}, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	if !sc.Scan() {
		return cpuTimes{}, errors.New("sysinfo: empty stat")
	}
	fields := strings.Fields(sc.Text())
	if len(fields) < 5 || fields[0] != "cpu" {
		return cpuTimes{}, errors.New("sysinfo: unexpected stat format")
	}
	var t cpuTimes
	for i, v := range fields[1:] {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return cpuTimes{}, fmt.Errorf("sysinfo: stat field %d: %w", i, err)
		}
		t.total += n
		// idle and iowait
		if i == 3 || i == 4 {
			t.idle += n
		}
	}
	return t, nil
}

// usage is the busy share between two samples, in percent.
func usage(a, b cpuTimes) float64 {
	if b.total <= a.total {
		return 0
	}
	total := float64(b.total - a.total)
	idle := float64(b.idle - a.idle)
	u := 100 * (1 - idle/total)
	return min(100, max(0, u))
}

// CPULoad is the load since the previous call, cached for a second. The
// first call samples twice, 100 ms apart.
func (s *Source) CPULoad() string {
	now, sleep := time.Now, time.Sleep
	if s.now != nil {
		now = s.now
	}
	if s.sleep != nil {
		sleep = s.sleep
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t := now()
	if s.cpuText != "" && t.Sub(s.cpuAt) < cpuLoadCacheTTL {
		return s.cpuText
	}

	if !s.hasPrev {
		first, err := readCPUTimes(s.procDir())
		if err != nil {
			return "CPU Load: -- %"
		}
		s.prev, s.hasPrev = first, true
		sleep(100 * time.Millisecond)
	}
	cur, err := readCPUTimes(s.procDir())
	if err != nil {
		return "CPU Load: -- %"
	}

	s.cpuText = fmt.Sprintf("CPU Load: %.0f %%", usage(s.prev, cur))
	s.cpuAt = t
	s.prev = cur
	return s.cpuText
}

// ---- memory ----

func (s *Source) Memory() string {
	f, err := os.Open(filepath.Join(s.procDir(), "meminfo"))
	if err != nil {
		return "RAM: --"
	}
	defer f.Close()

	var total, avail uint64
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		k, v, ok := strings.Cut(sc.Text(), ":")
		if !ok {
			continue
		}
		fields := strings.Fields(v)
		if len(fields) == 0 {
			continue
		}
		n, err := strconv.ParseUint(fields[0], 10, 64)
		if err != nil {
			continue
		}
		switch k {
		case "MemTotal":
			total = n
		case "MemAvailable":
			avail = n
		}
	}
	if total == 0 || avail > total {
		return "RAM: --"
	}
	return fmt.Sprintf("RAM: %d/%d MB", (total-avail)/1024, total/1024)
}

// ---- disk ----

func DiskUsage(m Mount) string {
	var st unix.Statfs_t
	if err := unix.Statfs(m.Path, &st); err != nil {
		return m.Label + ": --"
	}
	bs := uint64(st.Bsize)
	total := st.Blocks * bs
	used := (st.Blocks - st.Bfree) * bs
	return FormatDisk(m.Label, used, used+st.Bavail*bs, total)
}

// FormatDisk renders "Root: 12/58 GB, 21%" like df -h. The percentage is
// relative to the space available to unprivileged users, as df reports it.
func FormatDisk(label string, used, usable, total uint64) string {
	const (
		gib = 1 << 30
		tib = 1 << 40
	)
	pct := 0
	if usable > 0 {
		pct = int((used*100 + usable - 1) / usable)
	}
	if total >= tib {
		return fmt.Sprintf("%s: %.1f/%.1f TB, %d%%", label, float64(used)/tib, float64(total)/tib, pct)
	}
	return fmt.Sprintf("%s: %.0f/%.0f GB, %d%%", label, float64(used)/gib, float64(total)/gib, pct)
}
