package readings

import (
	"net/http"

	"sensorlog/internal/readings/controller"
	"sensorlog/internal/readings/repository"
	"sensorlog/internal/sensor"
)

// RegisterFeature mounts the dashboard and the /api reading routes on mux.
func RegisterFeature(mux *http.ServeMux, repo repository.ReadingRepository, source sensor.Source, defaultLimit int) {
	readingsController := controller.NewReadingsController(repo, source, defaultLimit)
	readingsController.RegisterRoutes(mux)
}
