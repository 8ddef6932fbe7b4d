package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sakashimaa/sales-pipeline/services/generator/internal/stream"
)

type StatusProvider interface {
	State() stream.State
	Stats() stream.Stats
	DestinationName() string
}

type StatusResponse struct {
	State       string `json:"state"`
	Destination string `json:"destination"`
	Published   int64  `json:"published"`
	Failed      int64  `json:"failed"`
}

func NewApp(status StatusProvider, reg *prometheus.Registry) *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	RegisterRoutes(app, status, reg)

	return app
}

func RegisterRoutes(app *fiber.App, status StatusProvider, reg *prometheus.Registry) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.SendString("Generator is alive!")
	})

	app.Get("/status", func(c *fiber.Ctx) error {
		stats := status.Stats()

		return c.JSON(StatusResponse{
			State:       status.State().String(),
			Destination: status.DestinationName(),
			Published:   stats.Published,
			Failed:      stats.Failed,
		})
	})

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		Registry: reg,
	})))
}
