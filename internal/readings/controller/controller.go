package controller

import (
	"net/http"

	"sensorlog/internal/readings/repository"
	"sensorlog/internal/readings/types"
	"sensorlog/internal/sensor"
)

type ReadingsController interface {
	RegisterRoutes(mux *http.ServeMux)
}

type readingsControllerImpl struct {
	repository   repository.ReadingRepository
	source       sensor.Source
	defaultLimit int
}

// NewReadingsController serves live readings from source and history from
// repo. defaultLimit is the history size when the request has no limit.
func NewReadingsController(repo repository.ReadingRepository, source sensor.Source, defaultLimit int) ReadingsController {
	if defaultLimit <= 0 {
		defaultLimit = types.DefaultQueryLimit
	}
	return &readingsControllerImpl{repository: repo, source: source, defaultLimit: defaultLimit}
}

func (c *readingsControllerImpl) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", c.handleDashboard)
	mux.HandleFunc("GET /api/sensor", c.handleSensor)
	mux.HandleFunc("GET /api/data", c.handleData)
	mux.HandleFunc("GET /api/log", c.handleData)
}
