// config_features.go - Modell-, Geraete- und Server-Konfiguration
//
// Dieses Modul enthaelt:
// - Modell-Variablen (Checkpoint-Pfad, Sektion)
// - Compute-Geraet und Thread-Anzahl
// - Server-Grenzen und Historie
package envconfig

// =============================================================================
// Modell-Konfiguration
// =============================================================================

var (
	// Model ist der Standard-Checkpoint, relativ zum Installationsverzeichnis
	Model = StringWithDefault("SKETCHGAN_MODEL", "model_epoch_100.pth")

	// Section ist der Checkpoint-Eintrag mit den Generator-Gewichten
	Section = StringWithDefault("SKETCHGAN_SECTION", "G_sketch_to_real")
)

// =============================================================================
// Geraete-Konfiguration
// =============================================================================

var (
	// Device erzwingt ein Compute-Backend (cpu, cuda, metal)
	Device = String("SKETCHGAN_DEVICE")

	// NumThreads begrenzt die Worker der Kernel (0 = GOMAXPROCS)
	NumThreads = Uint("SKETCHGAN_NUM_THREADS", 0)
)

// =============================================================================
// Server-Konfiguration
// =============================================================================

var (
	// MaxUploadSize begrenzt die Groesse hochgeladener Skizzen in Bytes
	MaxUploadSize = Uint64("SKETCHGAN_MAX_UPLOAD", 10<<20)

	// MaxImagePixels begrenzt Breite mal Hoehe eines Bildes vor dem
	// Dekodieren, 0 schaltet die Pruefung ab
	MaxImagePixels = Uint64("SKETCHGAN_MAX_PIXELS", 1<<24)

	// NoHistory deaktiviert die SQLite-Historie des Servers
	NoHistory = Bool("SKETCHGAN_NOHISTORY")
)
