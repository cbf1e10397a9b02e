// routes_serve.go - Server-Start und Lifecycle-Management
// Enthaelt: Serve() - Hauptfunktion zum Starten des HTTP-Servers

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sketchgan/sketchgan/envconfig"
	"github.com/sketchgan/sketchgan/imagegen"
	"github.com/sketchgan/sketchgan/logutil"
	"github.com/sketchgan/sketchgan/ml"
	"github.com/sketchgan/sketchgan/store"
	"github.com/sketchgan/sketchgan/version"
)

// Serve startet den HTTP-Server auf ln und blockiert bis SIGINT/SIGTERM
func Serve(ln net.Listener) error {
	slog.SetDefault(logutil.NewLogger(os.Stderr, envconfig.LogLevel()))
	slog.Info("server config", "env", envconfig.Values())

	proc := newLazyPipeline(envconfig.Model(), imagegen.Options{})
	defer proc.Close()

	opts := []Option{WithAddr(ln.Addr())}
	if !envconfig.NoHistory() {
		history := &store.Store{DBPath: envconfig.Database()}
		defer history.Close()
		opts = append(opts, WithHistory(history))
	}

	s := NewServer(proc, opts...)

	for _, d := range ml.GetDevices() {
		slog.Info("compute device", "backend", d.Backend, "name", d.DeviceName)
	}

	slog.Info(fmt.Sprintf("Listening on %s (version %s)", ln.Addr(), version.Version))
	srvr := &http.Server{Handler: s.GenerateRoutes()}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		srvr.Close()
	}()

	if err := srvr.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
