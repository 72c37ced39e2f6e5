package appliance

func (h *Handler) configureDishwasher() {
	h.registerDoorChannel()
	h.registerPowerChannel()
	h.registerProgramChannels()
}
