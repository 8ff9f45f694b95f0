package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"sensorlog/internal/config"
	"sensorlog/internal/db"
	"sensorlog/internal/httpapi"
	"sensorlog/internal/migrate"
	"sensorlog/internal/mqtt"
	"sensorlog/internal/readings"
	"sensorlog/internal/readings/repository"
	"sensorlog/internal/readings/types"
	"sensorlog/internal/readings/views"
	"sensorlog/internal/sampler"
	"sensorlog/internal/sensor"
)

const (
	mqttConnectTimeout = 5 * time.Second
	shutdownTimeout    = 10 * time.Second
)

func Run(ctx context.Context, cfg config.Config) error {
	slog.Info("config loaded",
		"appEnv", cfg.AppEnv,
		"logLevel", cfg.LogLevel.String(),
		"runMode", cfg.RunMode,
		"httpAddr", cfg.HTTPAddr,
		"staticDir", cfg.StaticDir,
		"sqliteDriver", cfg.SQLiteDriver,
		"sqlitePath", cfg.SQLitePath,
		"sensorDriver", cfg.SensorDriver,
		"i2cBus", cfg.I2CBus,
		"bme280Address", fmt.Sprintf("%#x", cfg.BME280Address),
		"sampleInterval", cfg.SampleInterval,
		"retentionMaxRows", cfg.RetentionMaxRows,
		"retentionMaxAge", cfg.RetentionMaxAge,
		"mqttBroker", cfg.MQTTBroker,
		"mqttTopic", cfg.MQTTTopic,
	)

	dbConn, err := db.Open(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(dbConn); closeErr != nil {
			slog.Error("db close", "error", closeErr)
		}
	}()

	if err := migrate.Run(ctx, dbConn); err != nil {
		return err
	}

	var ok int
	if err := dbConn.QueryRowContext(ctx, `SELECT 1`).Scan(&ok); err != nil {
		return err
	}
	if ok != 1 {
		return errors.New("database connection failed")
	}
	slog.Info("database connection successful")

	source, err := sensor.New(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := source.Close(); closeErr != nil {
			slog.Error("sensor close", "error", closeErr)
		}
	}()

	repo := repository.NewRepository(dbConn)

	opts := []sampler.Option{
		sampler.WithInterval(cfg.SampleInterval),
		sampler.WithRetention(types.Retention{MaxRows: cfg.RetentionMaxRows, MaxAge: cfg.RetentionMaxAge}),
		sampler.WithLogger(slog.Default().With("component", "sampler")),
	}
	runSampler := cfg.RunMode != config.RunModeAPI
	if runSampler && cfg.MQTTEnabled() {
		publisher := mqtt.NewPublisher(cfg, slog.Default().With("component", "mqtt"))
		// Startup continues without the broker; paho keeps retrying in the background.
		connectCtx, connectCancel := context.WithTimeout(ctx, mqttConnectTimeout)
		err := publisher.Connect(connectCtx)
		connectCancel()
		if err != nil {
			slog.Warn("mqtt connection failed (continuing without mqtt)", "error", err)
		}
		defer publisher.Disconnect()
		opts = append(opts, sampler.WithPublisher(publisher))
	}
	smp := sampler.New(source, repo, opts...)

	if cfg.RunMode == config.RunModeOnce {
		rec, err := smp.Tick(ctx)
		if err != nil {
			return err
		}
		slog.Info("reading stored", "reading_id", rec.ID)
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	var wg sync.WaitGroup

	if runSampler {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := smp.Run(runCtx); err != nil && runCtx.Err() == nil {
				errCh <- err
			}
		}()
	}

	var srv *http.Server
	if cfg.RunMode != config.RunModeLogger {
		if err := views.LoadTemplates(); err != nil {
			cancel()
			wg.Wait()
			return err
		}
		mux := httpapi.NewMux(dbConn, cfg.StaticDir)
		readings.RegisterFeature(mux, repo, source, cfg.QueryLimit)
		srv = httpapi.NewServer(cfg, mux)

		go func() {
			slog.Info("http listening", "addr", cfg.HTTPAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	slog.Info("sampler stopping")
	cancel()
	wg.Wait()

	if srv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		slog.Info("http shutting down")
		if err := srv.Shutdown(shutdownCtx); err != nil && runErr == nil {
			runErr = err
		}
	}

	if runErr != nil {
		return runErr
	}
	return ctx.Err()
}
