package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_FormatTag(t *testing.T) {
	assert.Equal(t, "method:GET", FormatTag("method", "GET"))
	assert.Equal(t, "haId:BOSCH-HCS01OVN1-54E7EF9DEDBB", FormatTag("haId", "BOSCH-HCS01OVN1-54E7EF9DEDBB"))
}

func Test_MetricsDisabledByDefault(t *testing.T) {
	assert.False(t, StatsEnabled)
	assert.NotPanics(t, func() {
		SendGaugeMetric("appliance.doorOpen", []string{FormatTag("haId", "test")}, 1)
	})
	assert.NotPanics(t, func() {
		SendIncrMetric("homeconnect.api.calls", []string{FormatTag("method", "GET")})
	})
}

func Test_InitWithoutServerStaysDisabled(t *testing.T) {
	Init("")
	assert.False(t, StatsEnabled)
	assert.Nil(t, Metrics)
}
