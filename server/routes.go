// Package server - HTTP-Dienst fuer die Skizzen-Verarbeitung
// Beinhaltet: Server-Struct, Router-Registrierung, Host-Pruefung
package server

import (
	"net"
	"net/http"
	"net/netip"
	"os"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/sketchgan/sketchgan/envconfig"
	"github.com/sketchgan/sketchgan/store"
	"github.com/sketchgan/sketchgan/version"
)

var mode string = gin.DebugMode

func init() {
	switch mode {
	case gin.DebugMode:
	case gin.ReleaseMode:
	case gin.TestMode:
	default:
		mode = gin.DebugMode
	}

	gin.SetMode(mode)
}

// Server verbindet den Router mit Verarbeitung und Historie
type Server struct {
	addr      net.Addr
	proc      Processor
	history   *store.Store // nil wenn SKETCHGAN_NOHISTORY gesetzt ist
	uploads   string
	results   string
	maxUpload int64
	timeout   time.Duration
}

// Option konfiguriert einen Server
type Option func(*Server)

// WithHistory aktiviert die Skizzen-Historie
func WithHistory(st *store.Store) Option {
	return func(s *Server) { s.history = st }
}

// WithDirs setzt die Verzeichnisse fuer Uploads und Ergebnisse
func WithDirs(uploads, results string) Option {
	return func(s *Server) {
		s.uploads = uploads
		s.results = results
	}
}

// WithAddr setzt die lokale Adresse fuer die Host-Pruefung
func WithAddr(addr net.Addr) Option {
	return func(s *Server) { s.addr = addr }
}

// NewServer erstellt einen Server. Ohne Optionen gelten die envconfig-Werte.
func NewServer(proc Processor, opts ...Option) *Server {
	s := &Server{
		proc:      proc,
		uploads:   envconfig.Uploads(),
		results:   envconfig.Results(),
		maxUpload: int64(envconfig.MaxUploadSize()),
		timeout:   envconfig.ProcessTimeout(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// isLocalIP prueft ob die IP-Adresse zu einem lokalen Interface gehoert
func isLocalIP(ip netip.Addr) bool {
	interfaces, err := net.Interfaces()
	if err != nil {
		return false
	}

	for _, iface := range interfaces {
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			if parsed, _, err := net.ParseCIDR(a.String()); err == nil && parsed.String() == ip.String() {
				return true
			}
		}
	}
	return false
}

// allowedHost prueft ob der Host-Header auf diese Maschine zeigt
func allowedHost(host string) bool {
	host = strings.ToLower(host)

	if host == "" || host == "localhost" {
		return true
	}

	if hostname, err := os.Hostname(); err == nil && host == strings.ToLower(hostname) {
		return true
	}

	for _, tld := range []string{"localhost", "local", "internal"} {
		if strings.HasSuffix(host, "."+tld) {
			return true
		}
	}
	return false
}

// allowedHostsMiddleware schuetzt einen Loopback-Server vor DNS-Rebinding
func allowedHostsMiddleware(addr net.Addr) gin.HandlerFunc {
	return func(c *gin.Context) {
		if addr == nil {
			c.Next()
			return
		}

		if addr, err := netip.ParseAddrPort(addr.String()); err == nil && !addr.Addr().IsLoopback() {
			c.Next()
			return
		}

		host, _, err := net.SplitHostPort(c.Request.Host)
		if err != nil {
			host = c.Request.Host
		}

		if addr, err := netip.ParseAddr(host); err == nil {
			if addr.IsLoopback() || addr.IsPrivate() || addr.IsUnspecified() || isLocalIP(addr) {
				c.Next()
				return
			}
		}

		if allowedHost(host) {
			if c.Request.Method == http.MethodOptions {
				c.AbortWithStatus(http.StatusNoContent)
				return
			}
			c.Next()
			return
		}

		c.AbortWithStatus(http.StatusForbidden)
	}
}

// GenerateRoutes erstellt und konfiguriert den HTTP-Router
func (s *Server) GenerateRoutes() http.Handler {
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowWildcard = true
	corsConfig.AllowBrowserExtensions = true
	corsConfig.AllowHeaders = []string{
		"Authorization",
		"Content-Type",
		"User-Agent",
		"Accept",
		"X-Requested-With",
	}
	corsConfig.AllowOrigins = envconfig.AllowedOrigins()

	r := gin.Default()
	r.HandleMethodNotAllowed = true
	r.MaxMultipartMemory = s.maxUpload
	r.Use(
		cors.New(corsConfig),
		allowedHostsMiddleware(s.addr),
	)

	// Allgemein
	r.HEAD("/", func(c *gin.Context) { c.String(http.StatusOK, "sketchgan is running") })
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, "sketchgan is running") })
	r.HEAD("/api/version", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"version": version.Version}) })
	r.GET("/api/version", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"version": version.Version}) })
	r.GET("/api/devices", s.DevicesHandler)

	// Verarbeitung
	r.POST("/api/process-sketch", s.ProcessSketchHandler)
	r.POST("/api/similarity", s.SimilarityHandler)
	r.Static("/results", s.results)

	// Historie
	r.GET("/api/sketches", s.ListSketchesHandler)
	r.GET("/api/sketches/:id", s.GetSketchHandler)
	r.DELETE("/api/sketches/:id", s.DeleteSketchHandler)

	return r
}
