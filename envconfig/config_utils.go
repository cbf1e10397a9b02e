// config_utils.go - Utility-Funktionen und Export fuer Konfiguration
//
// Dieses Modul enthaelt:
// - Bool: Boolean-Getter
// - String/StringWithDefault: String-Getter
// - Uint/Uint64: Integer-Getter mit Default-Wert
// - EnvVar: Struktur fuer Environment-Variablen-Info
// - AsMap: Gibt alle Konfigurationen als Map zurueck
// - Values: Gibt alle Konfigurationswerte als String-Map zurueck
package envconfig

import (
	"fmt"
	"log/slog"
	"runtime"
	"strconv"
)

// =============================================================================
// Boolean-Getter
// =============================================================================

// Bool gibt eine Funktion zurueck, die einen Bool liest (Default: false).
// Ein gesetzter, nicht lesbarer Wert gilt als true.
func Bool(k string) func() bool {
	return func() bool {
		if s := Var(k); s != "" {
			b, err := strconv.ParseBool(s)
			if err != nil {
				return true
			}
			return b
		}
		return false
	}
}

// =============================================================================
// String-Getter
// =============================================================================

// String gibt eine Funktion zurueck, die einen String liest
func String(s string) func() string {
	return func() string {
		return Var(s)
	}
}

// StringWithDefault gibt eine Funktion zurueck, die einen String mit Default liest
func StringWithDefault(k, defaultValue string) func() string {
	return func() string {
		if s := Var(k); s != "" {
			return s
		}
		return defaultValue
	}
}

// =============================================================================
// Integer-Getter
// =============================================================================

// Uint gibt eine Funktion zurueck, die einen uint mit Default-Wert liest
func Uint(key string, defaultValue uint) func() uint {
	return func() uint {
		if s := Var(key); s != "" {
			if n, err := strconv.ParseUint(s, 10, 64); err != nil {
				slog.Warn("invalid environment variable, using default", "key", key, "value", s, "default", defaultValue)
			} else {
				return uint(n)
			}
		}
		return defaultValue
	}
}

// Uint64 gibt eine Funktion zurueck, die einen uint64 mit Default-Wert liest
func Uint64(key string, defaultValue uint64) func() uint64 {
	return func() uint64 {
		if s := Var(key); s != "" {
			if n, err := strconv.ParseUint(s, 10, 64); err != nil {
				slog.Warn("invalid environment variable, using default", "key", key, "value", s, "default", defaultValue)
			} else {
				return n
			}
		}
		return defaultValue
	}
}

// =============================================================================
// Export-Strukturen und -Funktionen
// =============================================================================

// EnvVar repraesentiert eine Environment-Variable mit Metadaten
type EnvVar struct {
	Name        string
	Value       any
	Description string
}

// AsMap gibt alle Konfigurationen als Map zurueck
// Enthaelt Namen, aktuelle Werte und Beschreibungen
func AsMap() map[string]EnvVar {
	ret := map[string]EnvVar{
		"SKETCHGAN_DEBUG":           {"SKETCHGAN_DEBUG", LogLevel(), "Show additional debug information (e.g. SKETCHGAN_DEBUG=1)"},
		"SKETCHGAN_DEVICE":          {"SKETCHGAN_DEVICE", Device(), "Force a compute backend (cpu, cuda, metal)"},
		"SKETCHGAN_HOME":            {"SKETCHGAN_HOME", Home(), "Directory for uploads, results and history"},
		"SKETCHGAN_HOST":            {"SKETCHGAN_HOST", Host(), "IP Address for the sketchgan server (default 127.0.0.1:5000)"},
		"SKETCHGAN_MAX_UPLOAD":      {"SKETCHGAN_MAX_UPLOAD", MaxUploadSize(), "Maximum upload size in bytes (default 10MiB)"},
		"SKETCHGAN_MAX_PIXELS":      {"SKETCHGAN_MAX_PIXELS", MaxImagePixels(), "Maximum decoded image size in pixels, 0 disables the check (default 16777216)"},
		"SKETCHGAN_MODEL":           {"SKETCHGAN_MODEL", Model(), "Default checkpoint (default \"model_epoch_100.pth\")"},
		"SKETCHGAN_NOHISTORY":       {"SKETCHGAN_NOHISTORY", NoHistory(), "Do not record processed sketches"},
		"SKETCHGAN_NUM_THREADS":     {"SKETCHGAN_NUM_THREADS", NumThreads(), "Number of kernel workers (default: all CPUs)"},
		"SKETCHGAN_ORIGINS":         {"SKETCHGAN_ORIGINS", AllowedOrigins(), "A comma separated list of allowed origins"},
		"SKETCHGAN_PROCESS_TIMEOUT": {"SKETCHGAN_PROCESS_TIMEOUT", ProcessTimeout(), "How long a single sketch may take (default \"60s\")"},
		"SKETCHGAN_SECTION":         {"SKETCHGAN_SECTION", Section(), "Checkpoint entry holding the generator (default \"G_sketch_to_real\")"},

		// Proxy-Einstellungen
		"HTTP_PROXY":  {"HTTP_PROXY", String("HTTP_PROXY")(), "HTTP proxy"},
		"HTTPS_PROXY": {"HTTPS_PROXY", String("HTTPS_PROXY")(), "HTTPS proxy"},
		"NO_PROXY":    {"NO_PROXY", String("NO_PROXY")(), "No proxy"},
	}

	// Nicht-Windows: Case-sensitive Proxy-Variablen
	if runtime.GOOS != "windows" {
		ret["http_proxy"] = EnvVar{"http_proxy", String("http_proxy")(), "HTTP proxy"}
		ret["https_proxy"] = EnvVar{"https_proxy", String("https_proxy")(), "HTTPS proxy"}
		ret["no_proxy"] = EnvVar{"no_proxy", String("no_proxy")(), "No proxy"}
	}

	return ret
}

// Values gibt alle Konfigurationswerte als String-Map zurueck
func Values() map[string]string {
	vals := make(map[string]string)
	for k, v := range AsMap() {
		vals[k] = fmt.Sprintf("%v", v.Value)
	}
	return vals
}
