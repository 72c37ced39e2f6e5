package appliance

const optionDryerDryingTarget = "LaundryCare.Dryer.Option.DryingTarget"

func (h *Handler) configureDryer() {
	h.registerDoorChannel()
	h.registerPowerChannel()
	h.registerProgramChannels()

	h.registerChannel(ChannelDryerDryingTarget, nil, h.optionCommand(optionDryerDryingTarget))
	h.registerEvent(optionDryerDryingTarget, h.stringEvent(ChannelDryerDryingTarget))
}
