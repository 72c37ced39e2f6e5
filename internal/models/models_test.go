package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var configString = `{
  "bridgeName": "Kitchen",
  "pin": "00102003",
  "port": "12321",
  "metricsPort": "2112",
  "debug": true,
  "refreshInterval": "12h",
  "homeConnect": {
    "clientId": "ABCDEF0123456789",
    "clientSecret": "FEDCBA9876543210",
    "refreshToken": "token-from-last-run",
    "simulator": true,
    "tokenFile": "/var/lib/hcb/tokens.json"
  },
  "mqtt": {
    "host": "192.168.1.4",
    "port": 8883,
    "username": "hcb",
    "password": "changeme",
    "topicRoot": "appliances",
    "discoveryPrefix": "homeassistant"
  }
}`

var expectedConfig = Config{
	BridgeName:      "Kitchen",
	PIN:             "00102003",
	Port:            "12321",
	MetricsPort:     "2112",
	Debug:           true,
	RefreshInterval: Duration{12 * time.Hour},
	HomeConnect: HomeConnectConfig{
		ClientID:     "ABCDEF0123456789",
		ClientSecret: "FEDCBA9876543210",
		RefreshToken: "token-from-last-run",
		Simulator:    true,
		TokenFile:    "/var/lib/hcb/tokens.json",
	},
	MQTT: MQTTConfiguration{
		Host:            "192.168.1.4",
		Port:            8883,
		Username:        "hcb",
		Password:        "changeme",
		TopicRoot:       "appliances",
		DiscoveryPrefix: "homeassistant",
	},
}

func Test_ConfigParse(t *testing.T) {
	var actualConfig Config
	err := json.Unmarshal([]byte(configString), &actualConfig)
	assert.NoError(t, err)
	assert.Equal(t, expectedConfig, actualConfig)
}

func Test_ConfigDefaults(t *testing.T) {
	var config Config
	err := json.Unmarshal([]byte(`{"pin": "00102003"}`), &config)
	assert.NoError(t, err)
	config.applyDefaults()
	assert.Equal(t, "Home Connect", config.BridgeName)
	assert.Equal(t, Duration{24 * time.Hour}, config.RefreshInterval)
	assert.Equal(t, "./tokens.json", config.HomeConnect.TokenFile)
	assert.Equal(t, 1883, config.MQTT.Port)
	assert.Equal(t, "homeconnect", config.MQTT.TopicRoot)
	assert.Equal(t, "homeassistant", config.MQTT.DiscoveryPrefix)
}

func Test_DurationParse(t *testing.T) {
	var duration Duration
	assert.NoError(t, json.Unmarshal([]byte(`"90s"`), &duration))
	assert.Equal(t, 90*time.Second, duration.Duration)
	assert.NoError(t, json.Unmarshal([]byte(`3000000000`), &duration))
	assert.Equal(t, 3*time.Second, duration.Duration)
	assert.Error(t, json.Unmarshal([]byte(`"not a duration"`), &duration))
	assert.Error(t, json.Unmarshal([]byte(`true`), &duration))
}

func Test_EnvOverrides(t *testing.T) {
	t.Setenv("HCB_CLIENT_ID", "from-env")
	t.Setenv("HCB_MQTT_PORT", "1884")
	var config Config
	err := json.Unmarshal([]byte(configString), &config)
	assert.NoError(t, err)
	assert.NoError(t, applyEnv(&config))
	assert.Equal(t, "from-env", config.HomeConnect.ClientID)
	assert.Equal(t, 1884, config.MQTT.Port)
	assert.Equal(t, "Kitchen", config.BridgeName)
}
