package homeconnect

// Setting and status keys the client has typed accessors for. Appliance
// specific program options live with the appliance handlers.
const (
	SettingPowerState       = "BSH.Common.Setting.PowerState"
	SettingFridgeSetpoint   = "Refrigeration.FridgeFreezer.Setting.SetpointTemperatureRefrigerator"
	SettingFreezerSetpoint  = "Refrigeration.FridgeFreezer.Setting.SetpointTemperatureFreezer"
	SettingFridgeSuperMode  = "Refrigeration.FridgeFreezer.Setting.SuperModeRefrigerator"
	SettingFreezerSuperMode = "Refrigeration.FridgeFreezer.Setting.SuperModeFreezer"

	StatusDoorState                 = "BSH.Common.Status.DoorState"
	StatusOperationState            = "BSH.Common.Status.OperationState"
	StatusRemoteControlActive       = "BSH.Common.Status.RemoteControlActive"
	StatusRemoteControlStartAllowed = "BSH.Common.Status.RemoteControlStartAllowed"
	StatusLocalControlActive        = "BSH.Common.Status.LocalControlActive"

	OptionRemainingProgramTime = "BSH.Common.Option.RemainingProgramTime"
	OptionProgramProgress      = "BSH.Common.Option.ProgramProgress"

	EventActiveProgram   = "BSH.Common.Root.ActiveProgram"
	EventSelectedProgram = "BSH.Common.Root.SelectedProgram"

	EventApplianceConnected    = "BSH.Common.Appliance.Connected"
	EventApplianceDisconnected = "BSH.Common.Appliance.Disconnected"
)

// Enum values seen on the keys above.
const (
	PowerStateOn      = "BSH.Common.EnumType.PowerState.On"
	PowerStateOff     = "BSH.Common.EnumType.PowerState.Off"
	PowerStateStandby = "BSH.Common.EnumType.PowerState.Standby"

	DoorStateOpen   = "BSH.Common.EnumType.DoorState.Open"
	DoorStateClosed = "BSH.Common.EnumType.DoorState.Closed"
	DoorStateLocked = "BSH.Common.EnumType.DoorState.Locked"

	OperationStateInactive       = "BSH.Common.EnumType.OperationState.Inactive"
	OperationStateReady          = "BSH.Common.EnumType.OperationState.Ready"
	OperationStateDelayedStart   = "BSH.Common.EnumType.OperationState.DelayedStart"
	OperationStateRun            = "BSH.Common.EnumType.OperationState.Run"
	OperationStatePause          = "BSH.Common.EnumType.OperationState.Pause"
	OperationStateActionRequired = "BSH.Common.EnumType.OperationState.ActionRequired"
	OperationStateFinished       = "BSH.Common.EnumType.OperationState.Finished"
	OperationStateError          = "BSH.Common.EnumType.OperationState.Error"
	OperationStateAborting       = "BSH.Common.EnumType.OperationState.Aborting"
)
