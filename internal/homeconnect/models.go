package homeconnect

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/guregu/null"
)

// HomeAppliance is one paired appliance as reported by the account's
// /api/homeappliances resource.
type HomeAppliance struct {
	HaID      string `json:"haId"`
	Name      string `json:"name"`
	Brand     string `json:"brand"`
	VIB       string `json:"vib"`
	ENumber   string `json:"enumber"`
	Type      string `json:"type"`
	Connected bool   `json:"connected"`
}

// Data is a single key/value/unit triplet from a status or settings
// resource. Values arrive as strings, numbers or booleans depending on the
// key, so everything is kept as a nullable string and parsed where used.
type Data struct {
	Key   string
	Value null.String
	Unit  null.String
}

func (d *Data) UnmarshalJSON(data []byte) error {
	key, value, unit, err := unmarshalKeyValueUnit(data)
	if err != nil {
		return err
	}
	d.Key = key
	d.Value = value
	d.Unit = unit
	return nil
}

func (d Data) ValueAsInt() int {
	return stringToInt(d.Value)
}

func (d Data) ValueAsBool() bool {
	return d.Value.ValueOrZero() == "true"
}

// Event is one item from the appliance's server sent event stream. It has
// the same wire shape as Data but arrives unsolicited.
type Event struct {
	Key   string
	Value null.String
	Unit  null.String
}

func (e *Event) UnmarshalJSON(data []byte) error {
	key, value, unit, err := unmarshalKeyValueUnit(data)
	if err != nil {
		return err
	}
	e.Key = key
	e.Value = value
	e.Unit = unit
	return nil
}

func (e Event) ValueAsInt() int {
	return stringToInt(e.Value)
}

func (e Event) ValueAsBool() bool {
	return e.Value.ValueOrZero() == "true"
}

// Program is an appliance program with its current option values. Programs
// returned by the available programs resource carry a key only.
type Program struct {
	Key     string   `json:"key"`
	Options []Option `json:"options"`
}

// Option is a single program option, for example the spin speed of a
// washer program.
type Option struct {
	Key   string
	Value null.String
	Unit  null.String
}

func (o *Option) UnmarshalJSON(data []byte) error {
	key, value, unit, err := unmarshalKeyValueUnit(data)
	if err != nil {
		return err
	}
	o.Key = key
	o.Value = value
	o.Unit = unit
	return nil
}

func (o Option) ValueAsInt() int {
	return stringToInt(o.Value)
}

func (o Option) ValueAsBool() bool {
	return o.Value.ValueOrZero() == "true"
}

func unmarshalKeyValueUnit(data []byte) (string, null.String, null.String, error) {
	var raw struct {
		Key   string          `json:"key"`
		Value json.RawMessage `json:"value"`
		Unit  json.RawMessage `json:"unit"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return "", null.String{}, null.String{}, err
	}
	return raw.Key, rawToString(raw.Value), rawToString(raw.Unit), nil
}

// rawToString flattens a JSON scalar to its string form. Numbers and
// booleans keep their literal text, JSON null becomes an invalid string.
func rawToString(raw json.RawMessage) null.String {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return null.String{}
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return null.String{}
		}
		return null.StringFrom(s)
	}
	return null.StringFrom(string(raw))
}

func stringToInt(value null.String) int {
	parsed, err := strconv.Atoi(value.ValueOrZero())
	if err != nil {
		parsedFloat, err := strconv.ParseFloat(value.ValueOrZero(), 64)
		if err != nil {
			return 0
		}
		return int(parsedFloat)
	}
	return parsed
}

type appliancesEnvelope struct {
	Data struct {
		HomeAppliances []HomeAppliance `json:"homeappliances"`
	} `json:"data"`
}

type applianceEnvelope struct {
	Data HomeAppliance `json:"data"`
}

type dataEnvelope struct {
	Data Data `json:"data"`
}

type programEnvelope struct {
	Data Program `json:"data"`
}

type programsEnvelope struct {
	Data struct {
		Programs []Program `json:"programs"`
	} `json:"data"`
}

type errorEnvelope struct {
	Error APIError `json:"error"`
}

type eventPayload struct {
	Items []Event `json:"items"`
}

type dataPayload struct {
	Data struct {
		Key   string      `json:"key"`
		Value interface{} `json:"value"`
		Unit  string      `json:"unit,omitempty"`
	} `json:"data"`
}

type programPayload struct {
	Data struct {
		Key string `json:"key"`
	} `json:"data"`
}

func encodeData(key string, value interface{}, unit string) ([]byte, error) {
	var payload dataPayload
	payload.Data.Key = key
	payload.Data.Value = value
	payload.Data.Unit = unit
	return json.Marshal(payload)
}

func encodeProgram(key string) ([]byte, error) {
	var payload programPayload
	payload.Data.Key = key
	return json.Marshal(payload)
}

// typedValue maps the string states the handlers work with back to the
// JSON types the API expects on writes. Booleans and numbers have to go
// over the wire untyped or the API rejects the payload.
func typedValue(value string) interface{} {
	if value == "true" || value == "false" {
		return value == "true"
	}
	if parsed, err := strconv.Atoi(value); err == nil {
		return parsed
	}
	if parsed, err := strconv.ParseFloat(value, 64); err == nil {
		return parsed
	}
	return value
}
