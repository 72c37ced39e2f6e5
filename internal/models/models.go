package models

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"log"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	BridgeName      string            `json:"bridgeName" env:"HCB_BRIDGE_NAME"`
	PIN             string            `json:"pin" env:"HCB_PIN"`
	Port            string            `json:"port" env:"HCB_PORT"`
	MetricsPort     string            `json:"metricsPort" env:"HCB_METRICS_PORT"`
	StatsServer     string            `json:"statsServer" env:"HCB_STATS_SERVER"`
	Debug           bool              `json:"debug" env:"HCB_DEBUG"`
	RefreshInterval Duration          `json:"refreshInterval"`
	HomeConnect     HomeConnectConfig `json:"homeConnect"`
	MQTT            MQTTConfiguration `json:"mqtt"`
}

type HomeConnectConfig struct {
	ClientID      string `json:"clientId" env:"HCB_CLIENT_ID"`
	ClientSecret  string `json:"clientSecret" env:"HCB_CLIENT_SECRET"`
	RefreshToken  string `json:"refreshToken" env:"HCB_REFRESH_TOKEN"`
	Simulator     bool   `json:"simulator" env:"HCB_SIMULATOR"`
	APIServer     string `json:"apiServer" env:"HCB_API_SERVER"`
	EventLanguage string `json:"eventLanguage" env:"HCB_EVENT_LANGUAGE"`
	TokenFile     string `json:"tokenFile" env:"HCB_TOKEN_FILE"`
}

type MQTTConfiguration struct {
	Host            string `json:"host" env:"HCB_MQTT_HOST"`
	Port            int    `json:"port" env:"HCB_MQTT_PORT"`
	Username        string `json:"username" env:"HCB_MQTT_USERNAME"`
	Password        string `json:"password" env:"HCB_MQTT_PASSWORD"`
	TopicRoot       string `json:"topicRoot" env:"HCB_MQTT_TOPIC_ROOT"`
	DiscoveryPrefix string `json:"discoveryPrefix" env:"HCB_MQTT_DISCOVERY_PREFIX"`
}

// Duration wraps time.Duration so config files can say "30s" or "24h".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var value interface{}
	if err := json.Unmarshal(data, &value); err != nil {
		return err
	}
	switch typed := value.(type) {
	case float64:
		d.Duration = time.Duration(typed)
		return nil
	case string:
		parsed, err := time.ParseDuration(typed)
		if err != nil {
			return err
		}
		d.Duration = parsed
		return nil
	default:
		return fmt.Errorf("invalid duration %s", string(data))
	}
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Duration.String())
}

func LoadClientConfig(filename string) Config {
	if filename == "" {
		filename = "./config.json"
	}
	configFile, err := ioutil.ReadFile(filename)
	if err != nil {
		log.Printf("No config file found at %s", filename)
		panic(err)
	}
	var config Config
	err = json.Unmarshal(configFile, &config)
	if err != nil {
		log.Printf("Invalid config file provided")
		panic(err)
	}
	if err = applyEnv(&config); err != nil {
		log.Printf("Invalid environment override provided")
		panic(err)
	}
	config.applyDefaults()
	return config
}

func applyEnv(c *Config) error {
	return env.Parse(c)
}

func (c *Config) applyDefaults() {
	if c.BridgeName == "" {
		c.BridgeName = "Home Connect"
	}
	if c.RefreshInterval.Duration == 0 {
		c.RefreshInterval.Duration = 24 * time.Hour
	}
	if c.HomeConnect.TokenFile == "" {
		c.HomeConnect.TokenFile = "./tokens.json"
	}
	if c.MQTT.Port == 0 {
		c.MQTT.Port = 1883
	}
	if c.MQTT.TopicRoot == "" {
		c.MQTT.TopicRoot = "homeconnect"
	}
	if c.MQTT.DiscoveryPrefix == "" {
		c.MQTT.DiscoveryPrefix = "homeassistant"
	}
}
