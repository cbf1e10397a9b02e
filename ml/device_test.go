package ml

import (
	"runtime"
	"sync/atomic"
	"testing"
)

// fakeDetector simuliert einen Beschleuniger
type fakeDetector struct {
	backend   Backend
	available bool
}

func (f *fakeDetector) Detect() bool { return f.available }

func (f *fakeDetector) Backend() Backend { return f.backend }

func (f *fakeDetector) GetDevices() []DeviceInfo {
	if !f.available {
		return nil
	}
	return []DeviceInfo{{Backend: f.backend, DeviceName: "Fake " + string(f.backend), MemoryTotal: 8 << 30}}
}

func TestParseBackend(t *testing.T) {
	cases := map[string]struct {
		want    Backend
		wantErr bool
	}{
		"cpu":    {BackendCPU, false},
		" CUDA ": {BackendCUDA, false},
		"metal":  {BackendMetal, false},
		"tpu":    {"", true},
		"":       {"", true},
	}

	for input, tt := range cases {
		t.Run(input, func(t *testing.T) {
			got, err := ParseBackend(input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseBackend(%q) Fehler = %v, erwartet Fehler: %v", input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseBackend(%q) = %q, erwartet %q", input, got, tt.want)
			}
		})
	}
}

func TestDetectBackendsCPUOnly(t *testing.T) {
	backends := DetectBackends()
	if len(backends) == 0 || backends[0] != BackendCPU {
		t.Fatalf("CPU muss immer zuerst verfuegbar sein, bekommen %v", backends)
	}
	if got := SelectBestBackend(); got != BackendCPU {
		t.Errorf("SelectBestBackend() = %q, erwartet cpu", got)
	}
	if !IsBackendAvailable(BackendCPU) {
		t.Error("CPU muss verfuegbar sein")
	}
}

// registerFake haengt einen Detektor fuer die Dauer des Tests ein
func registerFake(t *testing.T, d Detector) {
	t.Helper()
	RegisterDetector(d)
	t.Cleanup(func() {
		detectorsMu.Lock()
		defer detectorsMu.Unlock()
		delete(registeredDetectors, d.Backend())
	})
}

func TestDetectedAcceleratorWithoutKernels(t *testing.T) {
	registerFake(t, &fakeDetector{backend: BackendMetal, available: true})

	if !IsBackendAvailable(BackendMetal) {
		t.Fatal("metal sollte erkannt werden")
	}
	if HasKernels(BackendMetal) {
		t.Fatal("fuer metal gibt es keine Kernel")
	}
	if got := SelectBestBackend(); got != BackendCPU {
		t.Errorf("SelectBestBackend() = %q, erwartet cpu", got)
	}

	for _, forced := range []string{"", "metal"} {
		dev := SelectDevice(forced, 2)
		if dev.Backend() != BackendCPU || dev.String() != "cpu" {
			t.Errorf("SelectDevice(%q) = %+v, erwartet cpu", forced, dev.Info())
		}
	}
	if got := NewDevice(BackendMetal, 1).Backend(); got != BackendCPU {
		t.Errorf("NewDevice(metal) = %q, erwartet cpu", got)
	}

	devices := GetDevices()
	if len(devices) != 2 || devices[1].DeviceName != "Fake metal" {
		t.Errorf("GetDevices() sollte CPU und Fake enthalten, bekommen %v", devices)
	}
}

func TestSelectWithKernels(t *testing.T) {
	registerFake(t, &fakeDetector{backend: BackendMetal, available: true})
	kernelBackends[BackendMetal] = true
	t.Cleanup(func() { delete(kernelBackends, BackendMetal) })

	if got := SelectBestBackend(); got != BackendMetal {
		t.Errorf("SelectBestBackend() = %q, erwartet metal", got)
	}
	if got := SelectBestBackendWithPriority(SelectionPriority{BackendCPU, BackendMetal}); got != BackendCPU {
		t.Errorf("Prioritaet wird ignoriert: %q", got)
	}
	if dev := SelectDevice("", 2); dev.Info().DeviceName != "Fake metal" {
		t.Errorf("SelectDevice() = %+v, erwartet Fake metal", dev.Info())
	}
}

func TestSelectDeviceFallback(t *testing.T) {
	cases := map[string]Backend{
		"":      BackendCPU,
		"cpu":   BackendCPU,
		"cuda":  BackendCPU, // nicht verfuegbar
		"metal": BackendCPU,
		"quark": BackendCPU, // unbekannt
	}

	for forced, want := range cases {
		t.Run(forced, func(t *testing.T) {
			if got := SelectDevice(forced, 0).Backend(); got != want {
				t.Errorf("SelectDevice(%q) = %q, erwartet %q", forced, got, want)
			}
		})
	}
}

func TestDeviceThreads(t *testing.T) {
	if got := NewDevice(BackendCPU, 0).Threads(); got != runtime.GOMAXPROCS(0) {
		t.Errorf("Threads() = %d, erwartet GOMAXPROCS", got)
	}
	if got := NewDevice(BackendCPU, 3).Threads(); got != 3 {
		t.Errorf("Threads() = %d, erwartet 3", got)
	}
	if got := CPU().String(); got != "cpu" {
		t.Errorf("String() = %q, erwartet cpu", got)
	}
}

func TestParallelVisitsAll(t *testing.T) {
	for _, dev := range []*Device{nil, NewDevice(BackendCPU, 1), NewDevice(BackendCPU, 4)} {
		var count atomic.Int64
		seen := make([]int32, 100)
		dev.parallel(len(seen), func(i int) {
			seen[i]++
			count.Add(1)
		})
		if count.Load() != 100 {
			t.Errorf("parallel hat %d statt 100 Aufrufe gemacht", count.Load())
		}
		for i, s := range seen {
			if s != 1 {
				t.Fatalf("Index %d wurde %d mal besucht", i, s)
			}
		}
	}
}
