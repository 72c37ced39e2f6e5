package appliance

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bkremser/homeconnect-bridge/internal/homeconnect"
)

const (
	celsiusUnit    = "°C"
	fahrenheitUnit = "°F"
)

// Fridge freezers expose their setpoint temperatures and super modes on
// top of the door channel. They have no programs and no power switch.
func (h *Handler) configureFridgeFreezer() {
	h.registerDoorChannel()

	h.registerChannel(ChannelFridgeSetpoint, h.updateFridgeSetpoint, h.commandFridgeSetpoint)
	h.registerChannel(ChannelFreezerSetpoint, h.updateFreezerSetpoint, h.commandFreezerSetpoint)
	h.registerChannel(ChannelFridgeSuperMode, h.updateFridgeSuperMode, h.commandFridgeSuperMode)
	h.registerChannel(ChannelFreezerSuperMode, h.updateFreezerSuperMode, h.commandFreezerSuperMode)

	h.registerEvent(homeconnect.SettingFridgeSetpoint, h.numericEvent(ChannelFridgeSetpoint))
	h.registerEvent(homeconnect.SettingFreezerSetpoint, h.numericEvent(ChannelFreezerSetpoint))
	h.registerEvent(homeconnect.SettingFridgeSuperMode, h.boolEvent(ChannelFridgeSuperMode))
	h.registerEvent(homeconnect.SettingFreezerSuperMode, h.boolEvent(ChannelFreezerSuperMode))
}

func (h *Handler) updateFridgeSetpoint() {
	data, err := h.client.GetFridgeSetpointTemperature(h.appliance.HaID)
	if err != nil {
		h.logUpdateError(ChannelFridgeSetpoint, err)
		return
	}
	h.updateState(ChannelFridgeSetpoint, strconv.Itoa(data.ValueAsInt()), data.Unit.ValueOrZero())
}

func (h *Handler) updateFreezerSetpoint() {
	data, err := h.client.GetFreezerSetpointTemperature(h.appliance.HaID)
	if err != nil {
		h.logUpdateError(ChannelFreezerSetpoint, err)
		return
	}
	h.updateState(ChannelFreezerSetpoint, strconv.Itoa(data.ValueAsInt()), data.Unit.ValueOrZero())
}

func (h *Handler) updateFridgeSuperMode() {
	data, err := h.client.GetFridgeSuperMode(h.appliance.HaID)
	if err != nil {
		h.logUpdateError(ChannelFridgeSuperMode, err)
		return
	}
	h.updateState(ChannelFridgeSuperMode, boolToState(data.ValueAsBool()), "")
}

func (h *Handler) updateFreezerSuperMode() {
	data, err := h.client.GetFreezerSuperMode(h.appliance.HaID)
	if err != nil {
		h.logUpdateError(ChannelFreezerSuperMode, err)
		return
	}
	h.updateState(ChannelFreezerSuperMode, boolToState(data.ValueAsBool()), "")
}

func (h *Handler) commandFridgeSetpoint(value string) error {
	temperature, unit, err := parseTemperature(value)
	if err != nil {
		return err
	}
	return h.client.SetFridgeSetpointTemperature(h.appliance.HaID, temperature, unit)
}

func (h *Handler) commandFreezerSetpoint(value string) error {
	temperature, unit, err := parseTemperature(value)
	if err != nil {
		return err
	}
	return h.client.SetFreezerSetpointTemperature(h.appliance.HaID, temperature, unit)
}

func (h *Handler) commandFridgeSuperMode(value string) error {
	return h.client.SetFridgeSuperMode(h.appliance.HaID, stateToBool(value))
}

func (h *Handler) commandFreezerSuperMode(value string) error {
	return h.client.SetFreezerSuperMode(h.appliance.HaID, stateToBool(value))
}

func stateToBool(value string) bool {
	return strings.EqualFold(value, "ON") || value == "true"
}

// parseTemperature splits a setpoint command into value and unit. The API
// accepts Celsius and Fahrenheit, bare numbers default to Celsius since
// that is what the API reports.
func parseTemperature(value string) (string, string, error) {
	fields := strings.Fields(value)
	if len(fields) == 0 || len(fields) > 2 {
		return "", "", fmt.Errorf("appliance: invalid temperature %q", value)
	}
	if _, err := strconv.Atoi(fields[0]); err != nil {
		return "", "", fmt.Errorf("appliance: invalid temperature %q", value)
	}
	if len(fields) == 1 {
		return fields[0], celsiusUnit, nil
	}
	if fields[1] != celsiusUnit && fields[1] != fahrenheitUnit {
		return "", "", fmt.Errorf("appliance: unsupported temperature unit %q", fields[1])
	}
	return fields[0], fields[1], nil
}
