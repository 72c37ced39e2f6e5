package appliance

import (
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"

	"github.com/bkremser/homeconnect-bridge/internal/homeconnect"
)

// ChannelListener receives every channel state a handler publishes. The
// HomeKit bridge and the MQTT mirror both hang off this.
type ChannelListener interface {
	OnChannelState(haID, channel, state, unit string)
}

type eventFunc func(event homeconnect.Event)
type commandFunc func(value string) error

// Handler translates between the vendor API of one appliance and the flat
// channel states the hosts consume. Incoming events and outgoing commands
// are routed through per type dispatch tables built at construction.
type Handler struct {
	appliance homeconnect.HomeAppliance
	client    homeconnect.Client

	channelUpdates  map[string]func()
	eventHandlers   map[string]eventFunc
	commandHandlers map[string]commandFunc
	channels        []string
	powerOffState   string

	mu             sync.Mutex
	listeners      []ChannelListener
	operationState string
}

func NewHandler(app homeconnect.HomeAppliance, client homeconnect.Client) *Handler {
	h := &Handler{
		appliance:       app,
		client:          client,
		channelUpdates:  make(map[string]func()),
		eventHandlers:   make(map[string]eventFunc),
		commandHandlers: make(map[string]commandFunc),
		powerOffState:   homeconnect.PowerStateOff,
	}
	h.registerConnectedChannel()
	switch app.Type {
	case TypeFridgeFreezer:
		h.configureFridgeFreezer()
	case TypeWasher:
		h.configureWasher()
	case TypeDryer:
		h.configureDryer()
	case TypeDishwasher:
		h.configureDishwasher()
	case TypeOven:
		h.configureOven()
	case TypeCoffeeMaker:
		h.configureCoffeeMaker()
	default:
		log.Printf("No specific handling for appliance type %s, exposing common channels only", app.Type)
		h.registerDoorChannel()
		h.registerPowerChannel()
		h.registerProgramChannels()
	}
	return h
}

func (h *Handler) Appliance() homeconnect.HomeAppliance {
	return h.appliance
}

// Channels lists the channel ids this appliance exposes, in registration
// order.
func (h *Handler) Channels() []string {
	return append([]string(nil), h.channels...)
}

func (h *Handler) AddChannelListener(listener ChannelListener) {
	h.mu.Lock()
	h.listeners = append(h.listeners, listener)
	h.mu.Unlock()
}

// HaID implements homeconnect.EventListener.
func (h *Handler) HaID() string {
	return h.appliance.HaID
}

// OnEvent implements homeconnect.EventListener.
func (h *Handler) OnEvent(event homeconnect.Event) {
	if handler, ok := h.eventHandlers[event.Key]; ok {
		handler(event)
		return
	}
	log.Printf("No event handler for %s on %s", event.Key, h.appliance.HaID)
}

// OnReconnect implements homeconnect.EventListener. Channel states may
// have changed while the stream was down, so everything gets polled again.
func (h *Handler) OnReconnect() {
	h.RefreshChannels()
}

// RefreshChannels polls every channel that is backed by a readable
// resource and publishes the results.
func (h *Handler) RefreshChannels() {
	for _, channel := range h.channels {
		if update, ok := h.channelUpdates[channel]; ok {
			update()
		}
	}
}

// HandleCommand pushes a host side command to the appliance.
func (h *Handler) HandleCommand(channel, value string) error {
	command, ok := h.commandHandlers[channel]
	if !ok {
		return fmt.Errorf("appliance: channel %s of %s is not writable", channel, h.appliance.HaID)
	}
	return command(value)
}

func (h *Handler) OperationState() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.operationState
}

func (h *Handler) registerChannel(channel string, update func(), command commandFunc) {
	h.channels = append(h.channels, channel)
	if update != nil {
		h.channelUpdates[channel] = update
	}
	if command != nil {
		h.commandHandlers[channel] = command
	}
}

func (h *Handler) registerEvent(key string, handler eventFunc) {
	h.eventHandlers[key] = handler
}

func (h *Handler) updateState(channel, state, unit string) {
	h.mu.Lock()
	listeners := make([]ChannelListener, len(h.listeners))
	copy(listeners, h.listeners)
	h.mu.Unlock()
	for _, listener := range listeners {
		listener.OnChannelState(h.appliance.HaID, channel, state, unit)
	}
}

// registerConnectedChannel mirrors the appliance's cloud reachability. The
// stream reports drops and returns as dedicated frames, refresh polls the
// appliance resource.
func (h *Handler) registerConnectedChannel() {
	h.registerChannel(ChannelConnected, h.updateConnected, nil)
	h.registerEvent(homeconnect.EventApplianceConnected, func(homeconnect.Event) {
		h.updateState(ChannelConnected, "ON", "")
	})
	h.registerEvent(homeconnect.EventApplianceDisconnected, func(homeconnect.Event) {
		h.updateState(ChannelConnected, "OFF", "")
	})
}

func (h *Handler) registerDoorChannel() {
	h.registerChannel(ChannelDoorState, h.updateDoorState, nil)
	h.registerEvent(homeconnect.StatusDoorState, func(event homeconnect.Event) {
		h.updateState(ChannelDoorState, doorStateString(event.Value.ValueOrZero()), "")
	})
}

func (h *Handler) registerPowerChannel() {
	h.registerChannel(ChannelPowerState, h.updatePowerState, h.commandPowerState)
	h.registerEvent(homeconnect.SettingPowerState, func(event homeconnect.Event) {
		h.updateState(ChannelPowerState, powerStateString(event.Value.ValueOrZero()), "")
	})
}

func (h *Handler) registerProgramChannels() {
	h.registerChannel(ChannelOperationState, h.updateOperationState, nil)
	h.registerChannel(ChannelRemoteControlActive, h.updateRemoteControlActive, nil)
	h.registerChannel(ChannelRemoteStartAllowance, h.updateRemoteStartAllowance, nil)
	h.registerChannel(ChannelLocalControlActive, h.updateLocalControlActive, nil)
	h.registerChannel(ChannelActiveProgram, h.updateActiveProgram, h.commandActiveProgram)
	h.registerChannel(ChannelSelectedProgram, h.updateSelectedProgram, nil)
	h.registerChannel(ChannelRemainingProgramTime, nil, nil)
	h.registerChannel(ChannelProgramProgress, nil, nil)

	h.registerEvent(homeconnect.StatusOperationState, h.onOperationStateEvent)
	h.registerEvent(homeconnect.StatusRemoteControlActive, h.boolEvent(ChannelRemoteControlActive))
	h.registerEvent(homeconnect.StatusRemoteControlStartAllowed, h.boolEvent(ChannelRemoteStartAllowance))
	h.registerEvent(homeconnect.StatusLocalControlActive, h.boolEvent(ChannelLocalControlActive))
	h.registerEvent(homeconnect.EventActiveProgram, h.stringEvent(ChannelActiveProgram))
	h.registerEvent(homeconnect.EventSelectedProgram, h.onSelectedProgramEvent)
	h.registerEvent(homeconnect.OptionRemainingProgramTime, h.numericEvent(ChannelRemainingProgramTime))
	h.registerEvent(homeconnect.OptionProgramProgress, h.numericEvent(ChannelProgramProgress))
}

func (h *Handler) boolEvent(channel string) eventFunc {
	return func(event homeconnect.Event) {
		h.updateState(channel, boolToState(event.ValueAsBool()), "")
	}
}

func (h *Handler) stringEvent(channel string) eventFunc {
	return func(event homeconnect.Event) {
		h.updateState(channel, event.Value.ValueOrZero(), "")
	}
}

func (h *Handler) numericEvent(channel string) eventFunc {
	return func(event homeconnect.Event) {
		h.updateState(channel, strconv.Itoa(event.ValueAsInt()), event.Unit.ValueOrZero())
	}
}

func (h *Handler) updateConnected() {
	app, err := h.client.GetHomeAppliance(h.appliance.HaID)
	if err != nil {
		h.logUpdateError(ChannelConnected, err)
		return
	}
	h.updateState(ChannelConnected, boolToState(app.Connected), "")
}

func (h *Handler) updateDoorState() {
	data, err := h.client.GetDoorState(h.appliance.HaID)
	if err != nil {
		h.logUpdateError(ChannelDoorState, err)
		return
	}
	h.updateState(ChannelDoorState, doorStateString(data.Value.ValueOrZero()), "")
}

func (h *Handler) updatePowerState() {
	data, err := h.client.GetPowerState(h.appliance.HaID)
	if err != nil {
		h.logUpdateError(ChannelPowerState, err)
		return
	}
	h.updateState(ChannelPowerState, powerStateString(data.Value.ValueOrZero()), "")
}

func (h *Handler) updateOperationState() {
	data, err := h.client.GetOperationState(h.appliance.HaID)
	if err != nil {
		h.logUpdateError(ChannelOperationState, err)
		return
	}
	h.setOperationState(data.Value.ValueOrZero())
}

func (h *Handler) updateRemoteControlActive() {
	active, err := h.client.IsRemoteControlActive(h.appliance.HaID)
	if err != nil {
		h.logUpdateError(ChannelRemoteControlActive, err)
		return
	}
	h.updateState(ChannelRemoteControlActive, boolToState(active), "")
}

func (h *Handler) updateRemoteStartAllowance() {
	allowed, err := h.client.IsRemoteControlStartAllowed(h.appliance.HaID)
	if err != nil {
		h.logUpdateError(ChannelRemoteStartAllowance, err)
		return
	}
	h.updateState(ChannelRemoteStartAllowance, boolToState(allowed), "")
}

func (h *Handler) updateLocalControlActive() {
	active, err := h.client.IsLocalControlActive(h.appliance.HaID)
	if err != nil {
		h.logUpdateError(ChannelLocalControlActive, err)
		return
	}
	h.updateState(ChannelLocalControlActive, boolToState(active), "")
}

func (h *Handler) updateActiveProgram() {
	program, err := h.client.GetActiveProgram(h.appliance.HaID)
	if err != nil {
		h.logUpdateError(ChannelActiveProgram, err)
		return
	}
	if program == nil {
		h.resetProgramChannels()
		return
	}
	h.updateState(ChannelActiveProgram, program.Key, "")
	h.applyOptions(program.Options)
}

func (h *Handler) updateSelectedProgram() {
	program, err := h.client.GetSelectedProgram(h.appliance.HaID)
	if err != nil {
		h.logUpdateError(ChannelSelectedProgram, err)
		return
	}
	if program == nil {
		h.updateState(ChannelSelectedProgram, "", "")
		return
	}
	h.updateState(ChannelSelectedProgram, program.Key, "")
	if !h.programActive() {
		h.applyOptions(program.Options)
	}
}

// applyOptions routes program options through the same handlers that
// process their event counterparts, the keys match.
func (h *Handler) applyOptions(options []homeconnect.Option) {
	for _, option := range options {
		if handler, ok := h.eventHandlers[option.Key]; ok {
			handler(homeconnect.Event{Key: option.Key, Value: option.Value, Unit: option.Unit})
		}
	}
}

func (h *Handler) onOperationStateEvent(event homeconnect.Event) {
	state := event.Value.ValueOrZero()
	h.setOperationState(state)
	if state == homeconnect.OperationStateInactive || state == homeconnect.OperationStateReady {
		h.resetProgramChannels()
	}
}

// onSelectedProgramEvent also pulls the newly selected program's options,
// the event itself only carries the program key.
func (h *Handler) onSelectedProgramEvent(event homeconnect.Event) {
	h.updateState(ChannelSelectedProgram, event.Value.ValueOrZero(), "")
	if h.programActive() || !event.Value.Valid {
		return
	}
	program, err := h.client.GetSelectedProgram(h.appliance.HaID)
	if err != nil {
		h.logUpdateError(ChannelSelectedProgram, err)
		return
	}
	if program != nil {
		h.applyOptions(program.Options)
	}
}

func (h *Handler) setOperationState(state string) {
	h.mu.Lock()
	h.operationState = state
	h.mu.Unlock()
	h.updateState(ChannelOperationState, state, "")
}

// resetProgramChannels blanks the program bound channels once the program
// is gone so consumers do not keep showing the last run.
func (h *Handler) resetProgramChannels() {
	h.updateState(ChannelActiveProgram, "", "")
	h.updateState(ChannelRemainingProgramTime, "0", "seconds")
	h.updateState(ChannelProgramProgress, "0", "%")
}

func (h *Handler) commandPowerState(value string) error {
	switch strings.ToUpper(value) {
	case "ON":
		return h.client.SetPowerState(h.appliance.HaID, homeconnect.PowerStateOn)
	case "OFF":
		return h.client.SetPowerState(h.appliance.HaID, h.powerOffState)
	}
	return fmt.Errorf("appliance: invalid power command %q for %s", value, h.appliance.HaID)
}

func (h *Handler) commandActiveProgram(value string) error {
	if value == "" {
		return h.client.StopProgram(h.appliance.HaID)
	}
	return h.client.StartProgram(h.appliance.HaID, value)
}

// optionCommand writes a program option, routing it to the active program
// while one runs and to the selected program while the appliance idles.
// Commands arriving in transitional states are dropped.
func (h *Handler) optionCommand(key string) commandFunc {
	return func(value string) error {
		if h.programActive() {
			return h.client.SetProgramOption(h.appliance.HaID, key, value, "", true)
		}
		if h.programInactive() {
			return h.client.SetProgramOption(h.appliance.HaID, key, value, "", false)
		}
		log.Printf("Ignoring %s command for %s in operation state %s", key, h.appliance.HaID, h.OperationState())
		return nil
	}
}

func (h *Handler) programActive() bool {
	switch h.OperationState() {
	case homeconnect.OperationStateDelayedStart, homeconnect.OperationStateRun, homeconnect.OperationStatePause:
		return true
	}
	return false
}

func (h *Handler) programInactive() bool {
	switch h.OperationState() {
	case homeconnect.OperationStateInactive, homeconnect.OperationStateReady:
		return true
	}
	return false
}

func (h *Handler) logUpdateError(channel string, err error) {
	if homeconnect.IsNotFound(err) {
		return
	}
	log.Printf("Error updating %s for %s: %s", channel, h.appliance.HaID, err)
}

func boolToState(value bool) string {
	if value {
		return "ON"
	}
	return "OFF"
}

func powerStateString(value string) string {
	switch value {
	case homeconnect.PowerStateOn:
		return "ON"
	case homeconnect.PowerStateOff:
		return "OFF"
	case homeconnect.PowerStateStandby:
		return "STANDBY"
	}
	return strings.ToUpper(EnumSuffix(value))
}

func doorStateString(value string) string {
	switch value {
	case homeconnect.DoorStateOpen:
		return "OPEN"
	case homeconnect.DoorStateClosed:
		return "CLOSED"
	case homeconnect.DoorStateLocked:
		return "LOCKED"
	}
	return strings.ToUpper(EnumSuffix(value))
}

// EnumSuffix returns the last segment of a vendor enum value, for example
// Run for BSH.Common.EnumType.OperationState.Run.
func EnumSuffix(value string) string {
	if idx := strings.LastIndex(value, "."); idx >= 0 {
		return value[idx+1:]
	}
	return value
}
