package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	channelState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "channelState",
			Help: "Last numeric state published on a channel.",
		},
		[]string{
			"thing",
			"channel",
		},
	)
	thingStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "thingStatus",
			Help: "Thing status, 1 online, 0.5 unknown, 0 offline.",
		},
		[]string{
			"thing",
		},
	)
	refreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridgeRefreshTotal",
			Help: "Refresh cycles run by a bridge, by result.",
		},
		[]string{
			"bridge",
			"result",
		},
	)
	refreshDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bridgeRefreshSeconds",
			Help:    "Time spent in one refresh cycle.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{
			"bridge",
		},
	)
	commandTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "channelCommandTotal",
			Help: "Commands handed to thing handlers.",
		},
		[]string{
			"thing",
			"channel",
		},
	)
)

func init() {
	prometheus.MustRegister(channelState, thingStatus, refreshTotal, refreshDuration, commandTotal)
}

func ReportChannelState(thingUID string, channel string, value float64) {
	channelState.With(prometheus.Labels{"thing": thingUID, "channel": channel}).Set(value)
	SendGaugeMetric("channel_state", []string{FormatTag("thing", thingUID), FormatTag("channel", channel)}, value)
}

func ReportThingStatus(thingUID string, detail string, value float64) {
	thingStatus.With(prometheus.Labels{"thing": thingUID}).Set(value)
	SendGaugeMetric("thing_status", []string{FormatTag("thing", thingUID), FormatTag("detail", detail)}, value)
}

func ReportRefresh(bridgeUID string, ok bool, elapsed time.Duration) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	refreshTotal.With(prometheus.Labels{"bridge": bridgeUID, "result": result}).Inc()
	refreshDuration.With(prometheus.Labels{"bridge": bridgeUID}).Observe(elapsed.Seconds())
	SendCountMetric("bridge_refresh", []string{FormatTag("bridge", bridgeUID), FormatTag("result", result)}, 1)
}

func ReportCommand(thingUID string, channel string) {
	commandTotal.With(prometheus.Labels{"thing": thingUID, "channel": channel}).Inc()
	SendCountMetric("channel_command", []string{FormatTag("thing", thingUID), FormatTag("channel", channel)}, 1)
}
