package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sketchgan/sketchgan/api"
	"github.com/sketchgan/sketchgan/envconfig"
	"github.com/sketchgan/sketchgan/ml"
)

// DevicesHandler verarbeitet GET /api/devices
func (s *Server) DevicesHandler(c *gin.Context) {
	selected := ml.SelectDevice(envconfig.Device(), int(envconfig.NumThreads())).Backend()

	var resp api.DevicesResponse
	for _, d := range ml.GetDevices() {
		resp.Devices = append(resp.Devices, api.Device{
			Backend:     string(d.Backend),
			Name:        d.DeviceName,
			MemoryTotal: d.MemoryTotal,
			Selected:    d.Backend == selected,
		})
	}
	c.JSON(http.StatusOK, resp)
}
