package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HashesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "solominer",
		Name:      "hashes_total",
		Help:      "Total header hashes attempted.",
	})

	Hashrate = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "solominer",
		Name:      "hashrate",
		Help:      "Estimated local hashrate in H/s.",
	})

	TemplatesFetched = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "solominer",
		Name:      "templates_fetched_total",
		Help:      "Total block templates fetched from the node.",
	})

	ExtraNonceRolls = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "solominer",
		Name:      "extranonce_rolls_total",
		Help:      "Total extra-nonce rollovers after exhausting a nonce sweep.",
	})

	BlocksFound = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "solominer",
		Name:      "blocks_found_total",
		Help:      "Total blocks whose hash met the network target.",
	})

	BlockSubmissions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "solominer",
		Name:      "block_submissions_total",
		Help:      "Block submission attempts by result.",
	}, []string{"result"})

	UptimeSeconds = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "solominer",
		Name:      "uptime_seconds",
		Help:      "Miner uptime in seconds.",
	})
)

func init() {
	prometheus.MustRegister(
		HashesTotal,
		Hashrate,
		TemplatesFetched,
		ExtraNonceRolls,
		BlocksFound,
		BlockSubmissions,
		UptimeSeconds,
	)
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
