package bridge

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bkremser/homeconnect-bridge/internal/appliance"
	"github.com/bkremser/homeconnect-bridge/internal/homeconnect"
	"github.com/bkremser/homeconnect-bridge/internal/metrics"
)

var (
	applianceDoorOpen = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "applianceDoorOpen",
			Help: "1 while the appliance door is open.",
		},
		[]string{
			"haId",
		},
	)
	appliancePowerOn = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "appliancePowerOn",
			Help: "1 while the appliance is powered on.",
		},
		[]string{
			"haId",
		},
	)
	applianceOperationActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "applianceOperationActive",
			Help: "1 while a program is running, paused or delayed.",
		},
		[]string{
			"haId",
		},
	)
	applianceRemoteStartAllowed = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "applianceRemoteStartAllowed",
			Help: "1 while the appliance accepts remote program starts.",
		},
		[]string{
			"haId",
		},
	)
	applianceProgramProgress = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "applianceProgramProgress",
			Help: "Progress of the active program in percent.",
		},
		[]string{
			"haId",
		},
	)
	applianceRemainingProgramTime = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "applianceRemainingProgramTime",
			Help: "Remaining run time of the active program in seconds.",
		},
		[]string{
			"haId",
		},
	)
	applianceSetpointTemperature = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "applianceSetpointTemperature",
			Help: "Target temperature of a cooling circuit in degrees celsius.",
		},
		[]string{
			"haId",
			"channel",
		},
	)
)

func init() {
	prometheus.MustRegister(
		applianceDoorOpen,
		appliancePowerOn,
		applianceOperationActive,
		applianceRemoteStartAllowed,
		applianceProgramProgress,
		applianceRemainingProgramTime,
		applianceSetpointTemperature,
	)
}

func reportChannelMetrics(haID, channel, state, unit string) {
	tags := []string{metrics.FormatTag("haId", haID)}
	switch channel {
	case appliance.ChannelDoorState:
		value := boolGauge(state == "OPEN")
		applianceDoorOpen.WithLabelValues(haID).Set(value)
		metrics.SendGaugeMetric("appliance.doorOpen", tags, value)
	case appliance.ChannelPowerState:
		value := boolGauge(state == "ON")
		appliancePowerOn.WithLabelValues(haID).Set(value)
		metrics.SendGaugeMetric("appliance.powerOn", tags, value)
	case appliance.ChannelOperationState:
		value := boolGauge(isActiveOperation(state))
		applianceOperationActive.WithLabelValues(haID).Set(value)
		metrics.SendGaugeMetric("appliance.operationActive", tags, value)
	case appliance.ChannelRemoteStartAllowance:
		value := boolGauge(state == "ON")
		applianceRemoteStartAllowed.WithLabelValues(haID).Set(value)
		metrics.SendGaugeMetric("appliance.remoteStartAllowed", tags, value)
	case appliance.ChannelProgramProgress:
		if value, err := strconv.ParseFloat(state, 64); err == nil {
			applianceProgramProgress.WithLabelValues(haID).Set(value)
			metrics.SendGaugeMetric("appliance.programProgress", tags, value)
		}
	case appliance.ChannelRemainingProgramTime:
		if value, err := strconv.ParseFloat(state, 64); err == nil {
			applianceRemainingProgramTime.WithLabelValues(haID).Set(value)
			metrics.SendGaugeMetric("appliance.remainingProgramTime", tags, value)
		}
	case appliance.ChannelFridgeSetpoint, appliance.ChannelFreezerSetpoint:
		if value, err := strconv.ParseFloat(state, 64); err == nil {
			celsius := toCelsius(value, unit)
			applianceSetpointTemperature.WithLabelValues(haID, channel).Set(celsius)
			metrics.SendGaugeMetric("appliance.setpointTemperature", append(tags, metrics.FormatTag("channel", channel)), celsius)
		}
	}
}

func isActiveOperation(state string) bool {
	switch state {
	case homeconnect.OperationStateRun, homeconnect.OperationStatePause, homeconnect.OperationStateDelayedStart:
		return true
	}
	return false
}

func boolGauge(value bool) float64 {
	if value {
		return 1
	}
	return 0
}
