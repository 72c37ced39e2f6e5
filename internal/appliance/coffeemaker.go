package appliance

import "github.com/bkremser/homeconnect-bridge/internal/homeconnect"

// Coffee makers have no door and do not support PowerState.Off, turning
// them off means standby.
func (h *Handler) configureCoffeeMaker() {
	h.registerPowerChannel()
	h.registerProgramChannels()
	h.powerOffState = homeconnect.PowerStateStandby
}
