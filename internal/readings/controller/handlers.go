package controller

import (
	"bytes"
	"log/slog"
	"net/http"

	"sensorlog/internal/readings/types"
	"sensorlog/internal/readings/views"
	"sensorlog/internal/utils"
)

type sensorResponse struct {
	Temperature float64 `json:"temperature"`
	Pressure    float64 `json:"pressure"`
	Humidity    float64 `json:"humidity"`
}

type dataEntry struct {
	Timestamp   string  `json:"timestamp"`
	Temperature float64 `json:"temperature"`
	Pressure    float64 `json:"pressure"`
	Humidity    float64 `json:"humidity"`
}

func (c *readingsControllerImpl) handleSensor(w http.ResponseWriter, r *http.Request) {
	s, err := c.source.Read()
	if err != nil {
		slog.Warn("live sensor read failed", "error", err)
		utils.WriteError(w, http.StatusBadGateway, "sensor read failed")
		return
	}
	utils.WriteJSON(w, http.StatusOK, sensorResponse{
		Temperature: s.Temperature,
		Pressure:    s.Pressure,
		Humidity:    s.Humidity,
	})
}

func (c *readingsControllerImpl) handleData(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r, c.defaultLimit)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	readings, err := c.repository.QueryRecent(r.Context(), limit)
	if err != nil {
		slog.Error("query recent readings failed", "limit", limit, "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to load readings")
		return
	}

	out := make([]dataEntry, 0, len(readings))
	for _, rec := range readings {
		out = append(out, dataEntry{
			Timestamp:   rec.Timestamp.UTC().Format(timestampLayout),
			Temperature: rec.Temperature,
			Pressure:    rec.Pressure,
			Humidity:    rec.Humidity,
		})
	}
	utils.WriteJSON(w, http.StatusOK, out)
}

func (c *readingsControllerImpl) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	ctx := r.Context()

	count, err := c.repository.Count(ctx)
	if err != nil {
		slog.Error("dashboard: count readings failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to load readings")
		return
	}
	latest, ok, err := c.repository.Latest(ctx)
	if err != nil {
		slog.Error("dashboard: latest reading failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to load readings")
		return
	}
	recent, err := c.repository.QueryRecent(ctx, dashboardRecent)
	if err != nil {
		slog.Error("dashboard: query recent readings failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to load readings")
		return
	}

	data := views.DashboardData{Count: count, RefreshSeconds: dashboardRefresh}
	for i := len(recent) - 1; i >= 0; i-- {
		data.Recent = append(data.Recent, toRow(recent[i]))
	}
	if ok {
		row := toRow(latest)
		data.Latest = &row
	}

	var buf bytes.Buffer
	if err := views.RenderDashboard(&buf, &data); err != nil {
		slog.Error("dashboard template render failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to render page")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := w.Write(buf.Bytes()); err != nil {
		slog.Error("dashboard: write response failed", "error", err)
	}
}

func toRow(r types.Reading) views.ReadingRow {
	return views.ReadingRow{
		Timestamp:   r.Timestamp,
		Temperature: r.Temperature,
		Pressure:    r.Pressure,
		Humidity:    r.Humidity,
	}
}
