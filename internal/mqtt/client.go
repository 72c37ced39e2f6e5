package mqtt

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/bkremser/homeconnect-bridge/internal/appliance"
	"github.com/bkremser/homeconnect-bridge/internal/homeconnect"
	"github.com/bkremser/homeconnect-bridge/internal/models"
)

type Client interface {
	Close()
	Connect()
	IsEnabled() bool
	OnChannelState(haID, channel, state, unit string)
}

func NewClient(config models.MQTTConfiguration, handlers map[string]*appliance.Handler, debug bool) Client {
	if config.Host != "" {
		return &client{
			config:   config,
			handlers: handlers,
			done:     make(chan bool),
			messages: make(chan mqtt.Message),
			debug:    debug,
		}
	}
	return &client{config: config}
}

type client struct {
	config     models.MQTTConfiguration
	handlers   map[string]*appliance.Handler
	done       chan bool
	mqttClient mqtt.Client
	messages   chan mqtt.Message
	debug      bool
}

func (c *client) Close() {
	c.done <- true
}

func (c *client) IsEnabled() bool {
	return c.config.Host != ""
}

func (c *client) Connect() {
	go func() {
		for message := range c.messages {
			c.processCommand(message.Topic(), message.Payload())
		}
	}()
	log.Printf("Connecting to %s", fmt.Sprintf("tcp://%s:%d", c.config.Host, c.config.Port))
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", c.config.Host, c.config.Port))
	opts.SetClientID(fmt.Sprintf("homeconnect_bridge_%s", uuid.New().String()[:8]))
	opts.SetDefaultPublishHandler(c.messagePubHandler)
	if c.config.Username != "" && c.config.Password != "" {
		opts.SetUsername(c.config.Username)
		opts.SetPassword(c.config.Password)
	}
	opts.SetWill(c.availabilityTopic(), "offline", 0, true)
	opts.OnConnect = c.connectHandler
	opts.OnConnectionLost = connectLostHandler
	c.mqttClient = mqtt.NewClient(opts)
	if token := c.mqttClient.Connect(); token.Wait() && token.Error() != nil {
		log.Printf("Error connecting to mqtt client: %s", token.Error())
	}
	defer c.mqttClient.Disconnect(250)
	c.keepAlive()
}

// keepAlive refreshes the bridge availability topic until Close is called,
// then marks the bridge offline before disconnecting.
func (c *client) keepAlive() {
	ticker := time.NewTicker(30 * time.Second)
	for {
		select {
		case <-c.done:
			ticker.Stop()
			token := c.mqttClient.Publish(c.availabilityTopic(), 0, true, "offline")
			token.Wait()
			return
		case <-ticker.C:
			token := c.mqttClient.Publish(c.availabilityTopic(), 0, true, "online")
			token.Wait()
		}
	}
}

func (c *client) messagePubHandler(client mqtt.Client, msg mqtt.Message) {
	c.messages <- msg
}

func (c *client) connectHandler(client mqtt.Client) {
	log.Println("Connected")
	token := client.Publish(c.availabilityTopic(), 0, true, "online")
	token.Wait()
	c.subscribe(client)
	c.publishDiscovery(client)
}

var connectLostHandler mqtt.ConnectionLostHandler = func(client mqtt.Client, err error) {
	log.Printf("Connect lost: %v", err)
}

func (c *client) subscribe(client mqtt.Client) {
	topic := fmt.Sprintf("%s/+/+/set", c.config.TopicRoot)
	token := client.Subscribe(topic, 1, nil)
	token.Wait()
	log.Printf("Subscribed to topic: %s", topic)
}

// OnChannelState implements appliance.ChannelListener and mirrors channel
// states to retained topics. The connected channel feeds the per appliance
// availability topic instead of a state topic of its own.
func (c *client) OnChannelState(haID, channel, state, unit string) {
	if !c.IsEnabled() || c.mqttClient == nil {
		return
	}
	topic := c.stateTopic(haID, channel)
	payload := state
	if channel == appliance.ChannelConnected {
		topic = c.applianceAvailabilityTopic(haID)
		payload = availabilityPayload(state)
	}
	token := c.mqttClient.Publish(topic, 0, true, payload)
	token.Wait()
	if token.Error() != nil {
		log.Printf("Error publishing state for %s on %s: %s", channel, haID, token.Error())
	}
}

func availabilityPayload(state string) string {
	if state == "ON" {
		return "online"
	}
	return "offline"
}

// publishDiscovery announces every channel of every handled appliance to
// Home Assistant and seeds the per appliance availability topics. Runs on
// each connect so a restarted broker relearns the entities.
func (c *client) publishDiscovery(client mqtt.Client) {
	for _, handler := range c.handlers {
		app := handler.Appliance()
		availability := "offline"
		if app.Connected {
			availability = "online"
		}
		token := client.Publish(c.applianceAvailabilityTopic(app.HaID), 0, true, availability)
		token.Wait()
		for _, channel := range handler.Channels() {
			if channel == appliance.ChannelConnected {
				continue
			}
			payload, err := json.Marshal(c.discoveryConfig(app, channel))
			if err != nil {
				log.Printf("Error building discovery payload for %s on %s: %s", channel, app.HaID, err)
				continue
			}
			token = client.Publish(c.discoveryTopic(app.HaID, channel), 0, true, payload)
			token.Wait()
			if token.Error() != nil {
				log.Printf("Error publishing discovery for %s on %s: %s", channel, app.HaID, token.Error())
			}
		}
	}
}

func (c *client) processCommand(topic string, payload []byte) error {
	prefix := c.config.TopicRoot + "/"
	if !strings.HasPrefix(topic, prefix) {
		return nil
	}
	segments := strings.Split(strings.TrimPrefix(topic, prefix), "/")
	if len(segments) != 3 || segments[2] != "set" {
		if c.debug {
			log.Printf("Ignoring message on topic %s", topic)
		}
		return nil
	}
	haID, channel := segments[0], segments[1]
	handler, ok := c.handlers[haID]
	if !ok {
		log.Printf("Got command for unknown appliance %s", haID)
		return nil
	}
	if c.debug {
		log.Printf("Got command from topic: %s %s", topic, payload)
	}
	if err := handler.HandleCommand(channel, string(payload)); err != nil {
		log.Printf("Error handling command for %s on %s: %s", channel, haID, err)
		return err
	}
	return nil
}

func (c *client) discoveryConfig(app homeconnect.HomeAppliance, channel string) SensorJSON {
	config := SensorJSON{
		UniqueId:   fmt.Sprintf("%s_%s", app.HaID, channel),
		Name:       fmt.Sprintf("%s %s", app.Name, channelName(channel)),
		StateTopic: c.stateTopic(app.HaID, channel),
		Availability: []AvailabilityTopic{
			{Topic: c.availabilityTopic()},
			{Topic: c.applianceAvailabilityTopic(app.HaID)},
		},
		AvailabilityMode: "all",
		Device: SensorDevice{
			Manufacturer: app.Brand,
			Model:        app.VIB,
			Name:         app.Name,
			Identifiers:  []string{app.HaID},
		},
	}
	switch channel {
	case appliance.ChannelPowerState, appliance.ChannelFridgeSuperMode, appliance.ChannelFreezerSuperMode:
		config.CommandTopic = c.commandTopic(app.HaID, channel)
	case appliance.ChannelProgramProgress:
		config.UnitOfMeasurement = "%"
	case appliance.ChannelRemainingProgramTime:
		config.DeviceClass = "duration"
		config.UnitOfMeasurement = "s"
	case appliance.ChannelFridgeSetpoint:
		config.DeviceClass = "temperature"
		config.UnitOfMeasurement = "°C"
		config.CommandTopic = c.commandTopic(app.HaID, channel)
		config.Min, config.Max, config.Step = 2, 8, 1
	case appliance.ChannelFreezerSetpoint:
		config.DeviceClass = "temperature"
		config.UnitOfMeasurement = "°C"
		config.CommandTopic = c.commandTopic(app.HaID, channel)
		config.Min, config.Max, config.Step = -26, -16, 1
	case appliance.ChannelOvenSetpoint:
		config.DeviceClass = "temperature"
		config.UnitOfMeasurement = "°C"
	}
	return config
}

func (c *client) stateTopic(haID, channel string) string {
	return fmt.Sprintf("%s/%s/%s", c.config.TopicRoot, haID, channel)
}

func (c *client) commandTopic(haID, channel string) string {
	return fmt.Sprintf("%s/%s/%s/set", c.config.TopicRoot, haID, channel)
}

func (c *client) availabilityTopic() string {
	return fmt.Sprintf("%s/bridge/availability", c.config.TopicRoot)
}

func (c *client) applianceAvailabilityTopic(haID string) string {
	return fmt.Sprintf("%s/%s/availability", c.config.TopicRoot, haID)
}

func (c *client) discoveryTopic(haID, channel string) string {
	return fmt.Sprintf("%s/%s/%s/%s/config", c.config.DiscoveryPrefix, discoveryComponent(channel), haID, channel)
}

func discoveryComponent(channel string) string {
	switch channel {
	case appliance.ChannelPowerState, appliance.ChannelFridgeSuperMode, appliance.ChannelFreezerSuperMode:
		return "switch"
	case appliance.ChannelFridgeSetpoint, appliance.ChannelFreezerSetpoint:
		return "number"
	default:
		return "sensor"
	}
}

func channelName(channel string) string {
	words := strings.Split(channel, "_")
	for i, word := range words {
		if word == "" {
			continue
		}
		words[i] = strings.ToUpper(word[:1]) + word[1:]
	}
	return strings.Join(words, " ")
}
