// MODUL: device
// ZWECK: Compute-Geraete erkennen, auswaehlen und Kernel-Arbeit verteilen
// INPUT: Backend-Praeferenz (optional erzwungen), Thread-Anzahl
// OUTPUT: Device mit DeviceInfo und Worker-Limit
// NEBENEFFEKTE: Keine (Detektoren fragen nur ab)
// ABHAENGIGKEITEN: golang.org/x/sync/errgroup (extern)
// HINWEISE: CPU ist immer verfuegbar, Beschleuniger werden per RegisterDetector eingehaengt

package ml

import (
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

// ============================================================================
// Backend-Typ Definition
// ============================================================================

// Backend repraesentiert ein verfuegbares Compute-Backend.
type Backend string

// Verfuegbare Backend-Typen
const (
	BackendCPU   Backend = "cpu"
	BackendCUDA  Backend = "cuda"
	BackendMetal Backend = "metal"
)

// ParseBackend wandelt einen String in ein Backend um.
func ParseBackend(s string) (Backend, error) {
	switch b := Backend(strings.ToLower(strings.TrimSpace(s))); b {
	case BackendCPU, BackendCUDA, BackendMetal:
		return b, nil
	default:
		return "", fmt.Errorf("unknown backend %q", s)
	}
}

// ============================================================================
// DeviceInfo - Hardware-Informationen
// ============================================================================

// DeviceInfo enthaelt Informationen ueber ein verfuegbares Compute-Geraet.
type DeviceInfo struct {
	Backend     Backend // Backend-Typ (cpu, cuda, metal)
	DeviceID    int     // Geraete-Index (0 fuer CPU, GPU-Index sonst)
	DeviceName  string  // Lesbarer Geraetename
	MemoryTotal uint64  // Gesamter Speicher in Bytes
	MemoryFree  uint64  // Freier Speicher in Bytes
	IsDefault   bool    // Ob dies das Standard-Geraet ist
}

// ============================================================================
// Backend-Selection Optionen
// ============================================================================

// SelectionPriority definiert Praeferenzreihenfolge fuer Backend-Auswahl.
type SelectionPriority []Backend

// DefaultPriority gibt die Standard-Praeferenzreihenfolge zurueck.
func DefaultPriority() SelectionPriority {
	return SelectionPriority{BackendCUDA, BackendMetal, BackendCPU}
}

// ============================================================================
// Detection Interface
// ============================================================================

// Detector ist das Interface fuer Backend-Erkennung.
type Detector interface {
	// Detect prueft ob das Backend verfuegbar ist
	Detect() bool

	// GetDevices gibt alle verfuegbaren Geraete zurueck
	GetDevices() []DeviceInfo

	// Backend gibt den Backend-Typ zurueck
	Backend() Backend
}

var (
	detectorsMu sync.RWMutex

	// registeredDetectors haelt alle registrierten Backend-Detektoren.
	registeredDetectors = make(map[Backend]Detector)
)

// RegisterDetector registriert einen Detektor fuer ein Backend. Erkannte
// Geraete erscheinen in GetDevices; ausgewaehlt werden sie erst, wenn es
// Kernel fuer ihr Backend gibt (siehe HasKernels).
func RegisterDetector(d Detector) {
	detectorsMu.Lock()
	defer detectorsMu.Unlock()
	registeredDetectors[d.Backend()] = d
}

// kernelBackends sind die Backends, auf denen die Kernel dieses Pakets laufen
var kernelBackends = map[Backend]bool{BackendCPU: true}

// HasKernels meldet, ob Kernel auf Backend b ausgefuehrt werden koennen
func HasKernels(b Backend) bool {
	return kernelBackends[b]
}

// detector gibt den Detektor fuer ein Backend zurueck.
func detector(b Backend) (Detector, bool) {
	detectorsMu.RLock()
	defer detectorsMu.RUnlock()
	d, ok := registeredDetectors[b]
	return d, ok
}

// ============================================================================
// Globale Detection-Funktionen
// ============================================================================

// DetectBackends erkennt alle verfuegbaren Backends.
func DetectBackends() []Backend {
	// CPU ist immer verfuegbar
	available := []Backend{BackendCPU}

	for _, b := range []Backend{BackendCUDA, BackendMetal} {
		if d, ok := detector(b); ok && d.Detect() {
			available = append(available, b)
		}
	}

	return available
}

// GetDevices gibt alle verfuegbaren Geraete zurueck.
func GetDevices() []DeviceInfo {
	devices := []DeviceInfo{cpuDeviceInfo()}

	for _, b := range []Backend{BackendCUDA, BackendMetal} {
		if d, ok := detector(b); ok && d.Detect() {
			devices = append(devices, d.GetDevices()...)
		}
	}

	return devices
}

// SelectBestBackend waehlt das optimale Backend basierend auf Prioritaet.
func SelectBestBackend() Backend {
	return SelectBestBackendWithPriority(DefaultPriority())
}

// SelectBestBackendWithPriority waehlt Backend nach gegebener Prioritaet.
// In Frage kommen nur erkannte Backends mit Kernels.
func SelectBestBackendWithPriority(priority SelectionPriority) Backend {
	availableSet := make(map[Backend]bool)
	for _, b := range DetectBackends() {
		availableSet[b] = HasKernels(b)
	}

	for _, preferred := range priority {
		if availableSet[preferred] {
			return preferred
		}
	}

	return BackendCPU
}

// IsBackendAvailable prueft ob ein bestimmtes Backend verfuegbar ist.
func IsBackendAvailable(b Backend) bool {
	if b == BackendCPU {
		return true
	}
	if d, ok := detector(b); ok {
		return d.Detect()
	}
	return false
}

// cpuDeviceInfo gibt Informationen ueber die CPU zurueck.
func cpuDeviceInfo() DeviceInfo {
	return DeviceInfo{
		Backend:    BackendCPU,
		DeviceID:   0,
		DeviceName: fmt.Sprintf("CPU (%d cores)", runtime.NumCPU()),
		IsDefault:  true,
	}
}

// ============================================================================
// Device - ausgewaehltes Geraet fuer die Inferenz
// ============================================================================

// Device ist das Geraet, auf dem Kernel ausgefuehrt werden.
type Device struct {
	info    DeviceInfo
	threads int
}

// NewDevice erstellt ein Device fuer ein Backend. threads <= 0 bedeutet GOMAXPROCS.
// Ohne Kernel fuer b laeuft das Device auf der CPU.
func NewDevice(b Backend, threads int) *Device {
	if threads <= 0 {
		threads = runtime.GOMAXPROCS(0)
	}

	info := cpuDeviceInfo()
	if b != BackendCPU && HasKernels(b) {
		if d, ok := detector(b); ok {
			for _, dev := range d.GetDevices() {
				info = dev
				break
			}
		}
	}

	return &Device{info: info, threads: threads}
}

// CPU gibt ein CPU-Device mit allen verfuegbaren Threads zurueck.
func CPU() *Device {
	return NewDevice(BackendCPU, 0)
}

// SelectDevice waehlt ein Device. Ein leeres forced waehlt automatisch;
// ein unbekanntes oder nicht verfuegbares Backend faellt auf CPU zurueck.
func SelectDevice(forced string, threads int) *Device {
	if forced == "" {
		return NewDevice(SelectBestBackend(), threads)
	}

	b, err := ParseBackend(forced)
	if err != nil {
		slog.Warn("ignoring device override", "device", forced, "error", err)
		return NewDevice(SelectBestBackend(), threads)
	}

	if !IsBackendAvailable(b) {
		slog.Warn("requested device not available, falling back to cpu", "device", b)
		return NewDevice(BackendCPU, threads)
	}
	if !HasKernels(b) {
		slog.Warn("no kernels for requested device, running on cpu", "device", b)
		return NewDevice(BackendCPU, threads)
	}

	return NewDevice(b, threads)
}

// Backend gibt den Backend-Typ zurueck.
func (d *Device) Backend() Backend {
	return d.info.Backend
}

// Info gibt die Geraete-Informationen zurueck.
func (d *Device) Info() DeviceInfo {
	return d.info
}

// Threads gibt die Anzahl der Kernel-Worker zurueck.
func (d *Device) Threads() int {
	return d.threads
}

// String implementiert Stringer
func (d *Device) String() string {
	return string(d.info.Backend)
}

// parallel ruft fn fuer alle i in [0, n) auf. Jeder Aufruf muss in einen
// eigenen Ausgabebereich schreiben.
func (d *Device) parallel(n int, fn func(i int)) {
	if d == nil || d.threads <= 1 || n <= 1 {
		for i := range n {
			fn(i)
		}
		return
	}

	var g errgroup.Group
	g.SetLimit(d.threads)
	for i := range n {
		g.Go(func() error {
			fn(i)
			return nil
		})
	}
	_ = g.Wait()
}
