package bridge

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"log"
	"math"
	"strconv"
	"sync"

	"github.com/jgulick48/hc/accessory"

	"github.com/bkremser/homeconnect-bridge/internal/appliance"
	"github.com/bkremser/homeconnect-bridge/internal/homeconnect"
	"github.com/bkremser/homeconnect-bridge/internal/models"
)

type Client interface {
	GetAccessoriesFromAppliances(appliances []homeconnect.HomeAppliance) []*accessory.Accessory
	OnChannelState(haID, channel, state, unit string)
}

type characteristicUpdate func(state, unit string)

type registrationFunc func(itemIDs map[string]uint64, maxID *uint64, handler *appliance.Handler, accessories []*accessory.Accessory) []*accessory.Accessory

type client struct {
	config   models.Config
	handlers map[string]*appliance.Handler

	mu      sync.Mutex
	updates map[string]map[string][]characteristicUpdate
}

func NewClient(config models.Config, handlers map[string]*appliance.Handler) Client {
	return &client{
		config:   config,
		handlers: handlers,
		updates:  make(map[string]map[string][]characteristicUpdate),
	}
}

// GetAccessoriesFromAppliances builds the HomeKit accessories for the
// paired appliances. Accessory IDs are kept sticky across restarts via
// items.json, HomeKit drops an accessory whose ID changes.
func (c *client) GetAccessoriesFromAppliances(appliances []homeconnect.HomeAppliance) []*accessory.Accessory {
	var itemIDs map[string]uint64
	itemConfigFile, err := ioutil.ReadFile("./items.json")
	if err != nil {
		log.Printf("No items file found. Making new IDs")
		itemIDs = make(map[string]uint64)
	}
	if err = json.Unmarshal(itemConfigFile, &itemIDs); err != nil {
		log.Printf("Invalid items file format. Starting new.")
		itemIDs = make(map[string]uint64)
	}
	maxID := uint64(2)
	for _, id := range itemIDs {
		if maxID < id {
			maxID = id
		}
	}
	accessories := make([]*accessory.Accessory, 0)
	for _, app := range appliances {
		handler, ok := c.handlers[app.HaID]
		if !ok {
			log.Printf("No handler for appliance %s, skipping", app.HaID)
			continue
		}
		registrationMethod := c.getRegistrationMethod(app)
		accessories = registrationMethod(itemIDs, &maxID, handler, accessories)
		handler.AddChannelListener(c)
	}
	itemConfigFile, err = json.Marshal(itemIDs)
	if err != nil {
		log.Printf("Error trying to create items file: %s", err)
	} else {
		err = ioutil.WriteFile("./items.json", itemConfigFile, 0644)
		if err != nil {
			log.Printf("Error trying to save items file: %s", err)
		}
	}
	return accessories
}

// OnChannelState implements appliance.ChannelListener and pushes channel
// states into the matching HomeKit characteristics.
func (c *client) OnChannelState(haID, channel, state, unit string) {
	c.mu.Lock()
	var updaters []characteristicUpdate
	if channels, ok := c.updates[haID]; ok {
		updaters = append(updaters, channels[channel]...)
	}
	c.mu.Unlock()
	if len(updaters) == 0 && c.config.Debug {
		log.Printf("No characteristic bound to %s on %s", channel, haID)
	}
	for _, update := range updaters {
		update(state, unit)
	}
	reportChannelMetrics(haID, channel, state, unit)
}

func (c *client) getRegistrationMethod(app homeconnect.HomeAppliance) registrationFunc {
	switch app.Type {
	case appliance.TypeFridgeFreezer:
		return c.registerFridgeFreezer
	case appliance.TypeWasher, appliance.TypeDryer, appliance.TypeDishwasher, appliance.TypeOven, appliance.TypeCoffeeMaker:
		return c.registerProgramAppliance
	default:
		return c.registerPowerSwitch
	}
}

func (c *client) registerPowerSwitch(itemIDs map[string]uint64, maxID *uint64, handler *appliance.Handler, accessories []*accessory.Accessory) []*accessory.Accessory {
	app := handler.Appliance()
	ac := accessory.NewSwitch(accessory.Info{
		Name:         app.Name,
		ID:           allocateID(itemIDs, app.HaID+":power", maxID),
		Manufacturer: app.Brand,
		Model:        app.VIB,
		SerialNumber: app.HaID,
	})
	ac.Switch.On.OnValueRemoteUpdate(func(on bool) {
		if err := handler.HandleCommand(appliance.ChannelPowerState, boolCommand(on)); err != nil {
			log.Printf("Error setting power state for %s: %s", app.Name, err)
		}
	})
	c.addUpdate(app.HaID, appliance.ChannelPowerState, func(state, unit string) {
		ac.Switch.On.SetValue(state == "ON")
	})
	return append(accessories, ac.Accessory)
}

func (c *client) registerProgramAppliance(itemIDs map[string]uint64, maxID *uint64, handler *appliance.Handler, accessories []*accessory.Accessory) []*accessory.Accessory {
	accessories = c.registerPowerSwitch(itemIDs, maxID, handler, accessories)
	app := handler.Appliance()
	progress := accessory.NewHumiditySensor(accessory.Info{
		Name: fmt.Sprintf("%s Progress", app.Name),
		ID:   allocateID(itemIDs, app.HaID+":progress", maxID),
	})
	progress.HumiditySensor.CurrentRelativeHumidity.SetMinValue(0)
	progress.HumiditySensor.CurrentRelativeHumidity.SetMaxValue(100)
	c.addUpdate(app.HaID, appliance.ChannelProgramProgress, func(state, unit string) {
		value, err := strconv.ParseFloat(state, 64)
		if err != nil {
			log.Printf("Invalid program progress for %s. Got %s", app.Name, state)
			return
		}
		progress.HumiditySensor.CurrentRelativeHumidity.SetValue(value)
	})
	return append(accessories, progress.Accessory)
}

func (c *client) registerFridgeFreezer(itemIDs map[string]uint64, maxID *uint64, handler *appliance.Handler, accessories []*accessory.Accessory) []*accessory.Accessory {
	app := handler.Appliance()
	accessories = append(accessories, c.registerSetpointThermostat(itemIDs, maxID, handler,
		fmt.Sprintf("%s Fridge", app.Name), app.HaID+":fridge", appliance.ChannelFridgeSetpoint, 4, 2, 8))
	accessories = append(accessories, c.registerSetpointThermostat(itemIDs, maxID, handler,
		fmt.Sprintf("%s Freezer", app.Name), app.HaID+":freezer", appliance.ChannelFreezerSetpoint, -18, -26, -16))
	accessories = append(accessories, c.registerSuperModeSwitch(itemIDs, maxID, handler,
		fmt.Sprintf("%s Super Cooling", app.Name), app.HaID+":superCooling", appliance.ChannelFridgeSuperMode))
	accessories = append(accessories, c.registerSuperModeSwitch(itemIDs, maxID, handler,
		fmt.Sprintf("%s Super Freezing", app.Name), app.HaID+":superFreezing", appliance.ChannelFreezerSuperMode))
	return accessories
}

func (c *client) registerSetpointThermostat(itemIDs map[string]uint64, maxID *uint64, handler *appliance.Handler, name, idKey, channel string, defaultTemp, min, max float64) *accessory.Accessory {
	app := handler.Appliance()
	ac := accessory.NewThermostat(accessory.Info{
		Name:         name,
		ID:           allocateID(itemIDs, idKey, maxID),
		Manufacturer: app.Brand,
		SerialNumber: app.HaID,
	}, defaultTemp, min, max, 1)
	ac.Thermostat.CurrentHeatingCoolingState.SetValue(2)
	ac.Thermostat.TargetHeatingCoolingState.SetValue(2)
	ac.Thermostat.TemperatureDisplayUnits.SetValue(0)
	ac.Thermostat.TargetTemperature.OnValueRemoteUpdate(func(target float64) {
		value := strconv.Itoa(int(math.Round(target)))
		if err := handler.HandleCommand(channel, value); err != nil {
			log.Printf("Error setting %s for %s: %s", channel, name, err)
		}
	})
	c.addUpdate(app.HaID, channel, func(state, unit string) {
		value, err := strconv.ParseFloat(state, 64)
		if err != nil {
			log.Printf("Invalid state for %s. Got %s", channel, state)
			return
		}
		value = toCelsius(value, unit)
		ac.Thermostat.CurrentTemperature.SetValue(value)
		ac.Thermostat.TargetTemperature.SetValue(value)
	})
	return ac.Accessory
}

func (c *client) registerSuperModeSwitch(itemIDs map[string]uint64, maxID *uint64, handler *appliance.Handler, name, idKey, channel string) *accessory.Accessory {
	ac := accessory.NewSwitch(accessory.Info{
		Name: name,
		ID:   allocateID(itemIDs, idKey, maxID),
	})
	ac.Switch.On.OnValueRemoteUpdate(func(on bool) {
		if err := handler.HandleCommand(channel, boolCommand(on)); err != nil {
			log.Printf("Error setting %s for %s: %s", channel, name, err)
		}
	})
	c.addUpdate(handler.HaID(), channel, func(state, unit string) {
		ac.Switch.On.SetValue(state == "ON")
	})
	return ac.Accessory
}

func (c *client) addUpdate(haID, channel string, update characteristicUpdate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.updates[haID]; !ok {
		c.updates[haID] = make(map[string][]characteristicUpdate)
	}
	c.updates[haID][channel] = append(c.updates[haID][channel], update)
}

func allocateID(itemIDs map[string]uint64, key string, maxID *uint64) uint64 {
	id, ok := itemIDs[key]
	if !ok {
		*maxID++
		id = *maxID
		itemIDs[key] = id
	}
	return id
}

func boolCommand(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}

func toCelsius(value float64, unit string) float64 {
	if unit == "°F" {
		return (value - 32) / 1.8
	}
	return value
}
