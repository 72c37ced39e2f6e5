package appliance

const (
	optionOvenSetpoint = "Cooking.Oven.Option.SetpointTemperature"
	optionOvenDuration = "BSH.Common.Option.Duration"
)

// Oven option channels are read only, the temperature and duration come
// in through events and program options.
func (h *Handler) configureOven() {
	h.registerDoorChannel()
	h.registerPowerChannel()
	h.registerProgramChannels()

	h.registerChannel(ChannelOvenSetpoint, nil, nil)
	h.registerChannel(ChannelOvenDuration, nil, nil)
	h.registerEvent(optionOvenSetpoint, h.numericEvent(ChannelOvenSetpoint))
	h.registerEvent(optionOvenDuration, h.numericEvent(ChannelOvenDuration))
}
