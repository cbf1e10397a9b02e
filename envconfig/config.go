// config.go - Haupt-Konfigurationsfunktionen fuer sketchgan
//
// Dieses Modul enthaelt:
// - Host: Gibt Scheme und Host zurueck (SKETCHGAN_HOST)
// - AllowedOrigins: Gibt erlaubte Origins zurueck (SKETCHGAN_ORIGINS)
// - Home: Basisverzeichnis fuer Uploads, Ergebnisse und Historie (SKETCHGAN_HOME)
// - ProcessTimeout: Timeout pro Inferenz-Request (SKETCHGAN_PROCESS_TIMEOUT)
// - LogLevel: Gibt Log-Level zurueck (SKETCHGAN_DEBUG)
//
// Weitere Konfigurationen sind ausgelagert:
// - config_features.go: Modell-, Geraete- und Server-Variablen
// - config_utils.go: Utility-Funktionen und AsMap/Values
package envconfig

import (
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Host gibt Scheme und Host zurueck
// Konfigurierbar via SKETCHGAN_HOST
// Default: http://127.0.0.1:5000
func Host() *url.URL {
	defaultPort := "5000"

	s := strings.TrimSpace(Var("SKETCHGAN_HOST"))
	scheme, hostport, ok := strings.Cut(s, "://")
	switch {
	case !ok:
		scheme, hostport = "http", s
	case scheme == "http":
		defaultPort = "80"
	case scheme == "https":
		defaultPort = "443"
	}

	hostport, path, _ := strings.Cut(hostport, "/")
	host, port, err := net.SplitHostPort(hostport)
	if err != nil {
		host, port = "127.0.0.1", defaultPort
		if ip := net.ParseIP(strings.Trim(hostport, "[]")); ip != nil {
			host = ip.String()
		} else if hostport != "" {
			host = hostport
		}
	}

	if n, err := strconv.ParseInt(port, 10, 32); err != nil || n > 65535 || n < 0 {
		slog.Warn("invalid port, using default", "port", port, "default", defaultPort)
		port = defaultPort
	}

	return &url.URL{
		Scheme: scheme,
		Host:   net.JoinHostPort(host, port),
		Path:   path,
	}
}

// AllowedOrigins gibt erlaubte Origins zurueck
// Konfigurierbar via SKETCHGAN_ORIGINS (komma-separiert)
// Enthaelt Standard-Origins fuer localhost
func AllowedOrigins() (origins []string) {
	if s := Var("SKETCHGAN_ORIGINS"); s != "" {
		origins = strings.Split(s, ",")
	}

	for _, origin := range []string{"localhost", "127.0.0.1", "0.0.0.0"} {
		origins = append(origins,
			fmt.Sprintf("http://%s", origin),
			fmt.Sprintf("https://%s", origin),
			fmt.Sprintf("http://%s", net.JoinHostPort(origin, "*")),
			fmt.Sprintf("https://%s", net.JoinHostPort(origin, "*")),
		)
	}

	origins = append(origins,
		"app://*",
		"file://*",
	)

	return origins
}

// Home gibt das Basisverzeichnis zurueck
// Konfigurierbar via SKETCHGAN_HOME
// Default: $HOME/.sketchgan
func Home() string {
	if s := Var("SKETCHGAN_HOME"); s != "" {
		return s
	}

	home, err := os.UserHomeDir()
	if err != nil {
		panic(err)
	}

	return filepath.Join(home, ".sketchgan")
}

// Uploads gibt das Verzeichnis fuer hochgeladene Skizzen zurueck
func Uploads() string {
	return filepath.Join(Home(), "uploads")
}

// Results gibt das Verzeichnis fuer generierte Bilder zurueck
func Results() string {
	return filepath.Join(Home(), "results")
}

// Database gibt den Pfad der SQLite-Historie zurueck
func Database() string {
	return filepath.Join(Home(), "sketches.db")
}

// ProcessTimeout gibt das Timeout fuer eine Inferenz zurueck
// Konfigurierbar via SKETCHGAN_PROCESS_TIMEOUT
// 0 oder negative Werte = unendlich
// Default: 60 Sekunden
func ProcessTimeout() (timeout time.Duration) {
	timeout = 60 * time.Second
	if s := Var("SKETCHGAN_PROCESS_TIMEOUT"); s != "" {
		if d, err := time.ParseDuration(s); err == nil {
			timeout = d
		} else if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			timeout = time.Duration(n) * time.Second
		}
	}

	if timeout <= 0 {
		return time.Duration(math.MaxInt64)
	}

	return timeout
}

// LogLevel gibt das Log-Level zurueck
// Konfigurierbar via SKETCHGAN_DEBUG
// Werte: 0/false = INFO (Default), 1/true = DEBUG, 2 = TRACE
func LogLevel() slog.Level {
	level := slog.LevelInfo
	if s := Var("SKETCHGAN_DEBUG"); s != "" {
		if b, _ := strconv.ParseBool(s); b {
			level = slog.LevelDebug
		} else if i, _ := strconv.ParseInt(s, 10, 64); i != 0 {
			level = slog.Level(i * -4)
		}
	}

	return level
}

// Var gibt eine Environment-Variable zurueck
// Entfernt fuehrende/trailing Quotes und Leerzeichen
func Var(key string) string {
	return strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"'")
}
