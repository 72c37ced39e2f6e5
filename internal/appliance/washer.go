package appliance

const (
	optionWasherTemperature = "LaundryCare.Washer.Option.Temperature"
	optionWasherSpinSpeed   = "LaundryCare.Washer.Option.SpinSpeed"
	optionWasherIDos1       = "LaundryCare.Washer.Option.IDos1DosingLevel"
	optionWasherIDos2       = "LaundryCare.Washer.Option.IDos2DosingLevel"
)

func (h *Handler) configureWasher() {
	h.registerDoorChannel()
	h.registerPowerChannel()
	h.registerProgramChannels()

	h.registerChannel(ChannelWasherTemperature, nil, h.optionCommand(optionWasherTemperature))
	h.registerChannel(ChannelWasherSpinSpeed, nil, h.optionCommand(optionWasherSpinSpeed))
	h.registerChannel(ChannelWasherIDos1, nil, h.optionCommand(optionWasherIDos1))
	h.registerChannel(ChannelWasherIDos2, nil, h.optionCommand(optionWasherIDos2))

	h.registerEvent(optionWasherTemperature, h.stringEvent(ChannelWasherTemperature))
	h.registerEvent(optionWasherSpinSpeed, h.stringEvent(ChannelWasherSpinSpeed))
	h.registerEvent(optionWasherIDos1, h.stringEvent(ChannelWasherIDos1))
	h.registerEvent(optionWasherIDos2, h.stringEvent(ChannelWasherIDos2))
}
