package metrics

import (
	"fmt"
	"log"

	"github.com/DataDog/datadog-go/v5/statsd"
)

var Metrics *statsd.Client
var StatsEnabled bool

// Init connects the statsd client. Metrics stay disabled when no server is
// configured or the connection fails.
func Init(statsServer string) {
	if statsServer == "" {
		return
	}
	client, err := statsd.New(statsServer)
	if err != nil {
		log.Printf("Unable to connect to stats server at %s: %s", statsServer, err)
		return
	}
	Metrics = client
	StatsEnabled = true
}

func FormatTag(key, value string) string {
	return fmt.Sprintf("%s:%s", key, value)
}

func SendGaugeMetric(name string, tags []string, value float64) {
	if StatsEnabled {
		err := Metrics.Gauge(name, value, tags, 1)
		if err != nil {
			log.Printf("Got error trying to send metric %s", err.Error())
		}
	}
}

func SendIncrMetric(name string, tags []string) {
	if StatsEnabled {
		err := Metrics.Incr(name, tags, 1)
		if err != nil {
			log.Printf("Got error trying to send metric %s", err.Error())
		}
	}
}
