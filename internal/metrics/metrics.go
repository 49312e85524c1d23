// Package metrics exposes Prometheus counters for trips, points and tracking
// samples.
package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Registry = prometheus.NewRegistry()

	TripsRecorded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "carbonsaver",
		Name:      "trips_recorded_total",
		Help:      "Completed trips recorded, by transportation type.",
	}, []string{"mode"})

	CarbonSavedKg = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "carbonsaver",
		Name:      "carbon_saved_kg_total",
		Help:      "Kilograms of CO2 avoided across all recorded trips.",
	})

	PointsAwarded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "carbonsaver",
		Name:      "points_awarded_total",
		Help:      "Points credited to accounts, by source.",
	}, []string{"source"})

	PointsRedeemed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "carbonsaver",
		Name:      "points_redeemed_total",
		Help:      "Points spent on rewards, by reward type.",
	}, []string{"reward"})

	TrackingSamples = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "carbonsaver",
		Name:      "tracking_samples_total",
		Help:      "Position samples received, by outcome.",
	}, []string{"outcome"})
)

func init() {
	Registry.MustRegister(TripsRecorded, CarbonSavedKg, PointsAwarded, PointsRedeemed, TrackingSamples)
}

// Handler serves the registry in the Prometheus text format.
func Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(Registry, promhttp.HandlerOpts{}))
}
