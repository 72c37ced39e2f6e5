package mqtt

type SensorJSON struct {
	UniqueId          string              `json:"unique_id"`
	Name              string              `json:"name"`
	StateTopic        string              `json:"state_topic"`
	CommandTopic      string              `json:"command_topic,omitempty"`
	DeviceClass       string              `json:"device_class,omitempty"`
	UnitOfMeasurement string              `json:"unit_of_measurement,omitempty"`
	Min               float64             `json:"min,omitempty"`
	Max               float64             `json:"max,omitempty"`
	Step              float64             `json:"step,omitempty"`
	Availability      []AvailabilityTopic `json:"availability"`
	AvailabilityMode  string              `json:"availability_mode"`
	Device            SensorDevice        `json:"device"`
}

type AvailabilityTopic struct {
	Topic string `json:"topic"`
}

type SensorDevice struct {
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
	Name         string   `json:"name"`
	Identifiers  []string `json:"identifiers"`
}
