package appliance

// Appliance types as reported by the API.
const (
	TypeFridgeFreezer = "FridgeFreezer"
	TypeWasher        = "Washer"
	TypeDryer         = "Dryer"
	TypeDishwasher    = "Dishwasher"
	TypeOven          = "Oven"
	TypeCoffeeMaker   = "CoffeeMaker"
)

// Channel ids exposed to the hosts. Hosts address appliance state by
// haId and channel, never by vendor key.
const (
	ChannelConnected            = "connected"
	ChannelDoorState            = "door_state"
	ChannelOperationState       = "operation_state"
	ChannelPowerState           = "power_state"
	ChannelRemoteControlActive  = "remote_control_active"
	ChannelRemoteStartAllowance = "remote_start_allowance"
	ChannelLocalControlActive   = "local_control_active"
	ChannelActiveProgram        = "active_program"
	ChannelSelectedProgram      = "selected_program"
	ChannelRemainingProgramTime = "remaining_program_time"
	ChannelProgramProgress      = "program_progress"
	ChannelFridgeSetpoint       = "fridge_setpoint_temperature"
	ChannelFreezerSetpoint      = "freezer_setpoint_temperature"
	ChannelFridgeSuperMode      = "fridge_super_mode"
	ChannelFreezerSuperMode     = "freezer_super_mode"
	ChannelWasherTemperature    = "washer_temperature"
	ChannelWasherSpinSpeed      = "washer_spin_speed"
	ChannelWasherIDos1          = "washer_idos1"
	ChannelWasherIDos2          = "washer_idos2"
	ChannelDryerDryingTarget    = "dryer_drying_target"
	ChannelOvenSetpoint         = "oven_setpoint_temperature"
	ChannelOvenDuration         = "oven_duration"
)
