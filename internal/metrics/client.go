package metrics

import (
	"fmt"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/rs/zerolog/log"
)

var Metrics *statsd.Client
var StatsEnabled bool

// Init connects the DogStatsD client. An empty address leaves statsd off.
func Init(addr string, namespace string, tags []string) {
	if addr == "" {
		return
	}
	client, err := statsd.New(addr)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create DogStatsD client")
		return
	}
	client.Namespace = namespace
	client.Tags = tags
	Metrics = client
	StatsEnabled = true

	log.Info().
		Str("addr", addr).
		Str("namespace", namespace).
		Strs("tags", tags).
		Msg("Datadog metrics initialized")
}

func Close() {
	if Metrics != nil {
		if err := Metrics.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close DogStatsD client")
		}
	}
}

func FormatTag(key, value string) string {
	return fmt.Sprintf("%s:%s", key, value)
}

func SendGaugeMetric(name string, tags []string, value float64) {
	if StatsEnabled {
		err := Metrics.Gauge(name, value, tags, 1)
		if err != nil {
			log.Warn().Err(err).Str("metric", name).Msg("Failed to emit gauge metric")
		}
	}
}

func SendCountMetric(name string, tags []string, value int64) {
	if StatsEnabled {
		err := Metrics.Count(name, value, tags, 1)
		if err != nil {
			log.Warn().Err(err).Str("metric", name).Msg("Failed to emit count metric")
		}
	}
}
