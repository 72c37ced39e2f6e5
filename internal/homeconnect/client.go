package homeconnect

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/bkremser/homeconnect-bridge/internal/metrics"
	"github.com/bkremser/homeconnect-bridge/internal/models"
)

const (
	productionAPI = "https://api.home-connect.com"
	simulatorAPI  = "https://simulator.home-connect.com"

	mediaType   = "application/vnd.bsh.sdk.v1+json"
	apiBasePath = "/api/homeappliances"
)

// Client talks to the Home Connect cloud API for every appliance paired
// with the account.
type Client interface {
	GetHomeAppliances() ([]HomeAppliance, error)
	GetHomeAppliance(haID string) (HomeAppliance, error)

	GetStatus(haID, key string) (Data, error)
	GetDoorState(haID string) (Data, error)
	GetOperationState(haID string) (Data, error)
	IsRemoteControlActive(haID string) (bool, error)
	IsRemoteControlStartAllowed(haID string) (bool, error)
	IsLocalControlActive(haID string) (bool, error)

	GetSetting(haID, key string) (Data, error)
	PutSetting(haID, key, value string) error
	GetPowerState(haID string) (Data, error)
	SetPowerState(haID, state string) error
	GetFridgeSetpointTemperature(haID string) (Data, error)
	SetFridgeSetpointTemperature(haID, value, unit string) error
	GetFreezerSetpointTemperature(haID string) (Data, error)
	SetFreezerSetpointTemperature(haID, value, unit string) error
	GetFridgeSuperMode(haID string) (Data, error)
	SetFridgeSuperMode(haID string, enabled bool) error
	GetFreezerSuperMode(haID string) (Data, error)
	SetFreezerSuperMode(haID string, enabled bool) error

	GetActiveProgram(haID string) (*Program, error)
	GetSelectedProgram(haID string) (*Program, error)
	GetAvailablePrograms(haID string) ([]Program, error)
	StartProgram(haID, programKey string) error
	StopProgram(haID string) error
	SetProgramOption(haID, key, value, unit string, active bool) error

	RegisterEventListener(listener EventListener) error
	UnregisterEventListener(listener EventListener)
	Dispose()
}

type client struct {
	config     models.HomeConnectConfig
	apiURL     string
	httpClient *http.Client
	sseClient  *http.Client
	debug      bool

	authMu sync.Mutex
	token  Token
	store  TokenStore

	sseMu          sync.Mutex
	listeners      []EventListener
	streams        map[string]*eventStream
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

func NewClient(config models.HomeConnectConfig, debug bool) Client {
	apiURL := config.APIServer
	if apiURL == "" {
		if config.Simulator {
			apiURL = simulatorAPI
		} else {
			apiURL = productionAPI
		}
	}
	c := &client{
		config:     config,
		apiURL:     apiURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		// The event stream stays open for hours, it must not share the
		// request timeout.
		sseClient:      &http.Client{},
		debug:          debug,
		streams:        make(map[string]*eventStream),
		initialBackoff: time.Second,
		maxBackoff:     time.Minute,
	}
	if config.TokenFile != "" {
		c.store = NewFileTokenStore(config.TokenFile)
		if token, ok := c.store.Load(); ok {
			log.Printf("Loaded saved tokens from %s", config.TokenFile)
			c.token = token
		}
	}
	return c
}

func (c *client) GetHomeAppliances() ([]HomeAppliance, error) {
	payload, err := c.get(apiBasePath)
	if err != nil {
		return nil, err
	}
	var envelope appliancesEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		log.Printf("Unable to decode appliance list: %s", err)
		return nil, err
	}
	return envelope.Data.HomeAppliances, nil
}

func (c *client) GetHomeAppliance(haID string) (HomeAppliance, error) {
	payload, err := c.get(fmt.Sprintf("%s/%s", apiBasePath, haID))
	if err != nil {
		return HomeAppliance{}, err
	}
	var envelope applianceEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		log.Printf("Unable to decode appliance %s: %s", haID, err)
		return HomeAppliance{}, err
	}
	return envelope.Data, nil
}

func (c *client) GetStatus(haID, key string) (Data, error) {
	return c.getData(fmt.Sprintf("%s/%s/status/%s", apiBasePath, haID, key))
}

func (c *client) GetDoorState(haID string) (Data, error) {
	return c.GetStatus(haID, StatusDoorState)
}

func (c *client) GetOperationState(haID string) (Data, error) {
	return c.GetStatus(haID, StatusOperationState)
}

func (c *client) IsRemoteControlActive(haID string) (bool, error) {
	data, err := c.GetStatus(haID, StatusRemoteControlActive)
	if err != nil {
		return false, err
	}
	return data.ValueAsBool(), nil
}

func (c *client) IsRemoteControlStartAllowed(haID string) (bool, error) {
	data, err := c.GetStatus(haID, StatusRemoteControlStartAllowed)
	if err != nil {
		return false, err
	}
	return data.ValueAsBool(), nil
}

func (c *client) IsLocalControlActive(haID string) (bool, error) {
	data, err := c.GetStatus(haID, StatusLocalControlActive)
	if err != nil {
		return false, err
	}
	return data.ValueAsBool(), nil
}

func (c *client) GetSetting(haID, key string) (Data, error) {
	return c.getData(fmt.Sprintf("%s/%s/settings/%s", apiBasePath, haID, key))
}

func (c *client) PutSetting(haID, key, value string) error {
	return c.putSetting(haID, key, typedValue(value), "")
}

func (c *client) GetPowerState(haID string) (Data, error) {
	return c.GetSetting(haID, SettingPowerState)
}

func (c *client) SetPowerState(haID, state string) error {
	return c.putSetting(haID, SettingPowerState, state, "")
}

func (c *client) GetFridgeSetpointTemperature(haID string) (Data, error) {
	return c.GetSetting(haID, SettingFridgeSetpoint)
}

func (c *client) SetFridgeSetpointTemperature(haID, value, unit string) error {
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("homeconnect: setpoint temperature %q is not a number", value)
	}
	return c.putSetting(haID, SettingFridgeSetpoint, parsed, unit)
}

func (c *client) GetFreezerSetpointTemperature(haID string) (Data, error) {
	return c.GetSetting(haID, SettingFreezerSetpoint)
}

func (c *client) SetFreezerSetpointTemperature(haID, value, unit string) error {
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("homeconnect: setpoint temperature %q is not a number", value)
	}
	return c.putSetting(haID, SettingFreezerSetpoint, parsed, unit)
}

func (c *client) GetFridgeSuperMode(haID string) (Data, error) {
	return c.GetSetting(haID, SettingFridgeSuperMode)
}

func (c *client) SetFridgeSuperMode(haID string, enabled bool) error {
	return c.putSetting(haID, SettingFridgeSuperMode, enabled, "")
}

func (c *client) GetFreezerSuperMode(haID string) (Data, error) {
	return c.GetSetting(haID, SettingFreezerSuperMode)
}

func (c *client) SetFreezerSuperMode(haID string, enabled bool) error {
	return c.putSetting(haID, SettingFreezerSuperMode, enabled, "")
}

func (c *client) GetActiveProgram(haID string) (*Program, error) {
	return c.getProgram(fmt.Sprintf("%s/%s/programs/active", apiBasePath, haID))
}

func (c *client) GetSelectedProgram(haID string) (*Program, error) {
	return c.getProgram(fmt.Sprintf("%s/%s/programs/selected", apiBasePath, haID))
}

func (c *client) GetAvailablePrograms(haID string) ([]Program, error) {
	payload, err := c.get(fmt.Sprintf("%s/%s/programs/available", apiBasePath, haID))
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	var envelope programsEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		log.Printf("Unable to decode available programs for %s: %s", haID, err)
		return nil, err
	}
	return envelope.Data.Programs, nil
}

func (c *client) StartProgram(haID, programKey string) error {
	body, err := encodeProgram(programKey)
	if err != nil {
		return err
	}
	_, err = c.do(http.MethodPut, fmt.Sprintf("%s/%s/programs/active", apiBasePath, haID), body)
	return err
}

func (c *client) StopProgram(haID string) error {
	_, err := c.do(http.MethodDelete, fmt.Sprintf("%s/%s/programs/active", apiBasePath, haID), nil)
	return err
}

func (c *client) SetProgramOption(haID, key, value, unit string, active bool) error {
	target := "selected"
	if active {
		target = "active"
	}
	body, err := encodeData(key, typedValue(value), unit)
	if err != nil {
		return err
	}
	_, err = c.do(http.MethodPut, fmt.Sprintf("%s/%s/programs/%s/options/%s", apiBasePath, haID, target, key), body)
	return err
}

func (c *client) Dispose() {
	c.closeEventStreams()
}

func (c *client) getData(path string) (Data, error) {
	payload, err := c.get(path)
	if err != nil {
		return Data{}, err
	}
	var envelope dataEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		log.Printf("Unable to decode response from %s: %s", path, err)
		return Data{}, err
	}
	return envelope.Data, nil
}

// getProgram returns nil without an error when the API reports that no
// program is active or selected.
func (c *client) getProgram(path string) (*Program, error) {
	payload, err := c.get(path)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	var envelope programEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		log.Printf("Unable to decode response from %s: %s", path, err)
		return nil, err
	}
	return &envelope.Data, nil
}

func (c *client) putSetting(haID, key string, value interface{}, unit string) error {
	body, err := encodeData(key, value, unit)
	if err != nil {
		return err
	}
	_, err = c.do(http.MethodPut, fmt.Sprintf("%s/%s/settings/%s", apiBasePath, haID, key), body)
	return err
}

func (c *client) get(path string) ([]byte, error) {
	return c.do(http.MethodGet, path, nil)
}

// do sends one API request. A 401 answer triggers a single token refresh
// and retry before the error is handed to the caller.
func (c *client) do(method, path string, body []byte) ([]byte, error) {
	payload, err := c.doOnce(method, path, body)
	if err != nil && IsAuthorization(err) {
		log.Printf("Request to %s was rejected, refreshing access token and retrying", path)
		c.invalidateToken()
		return c.doOnce(method, path, body)
	}
	return payload, err
}

func (c *client) doOnce(method, path string, body []byte) ([]byte, error) {
	if err := c.checkCredentials(); err != nil {
		return nil, err
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequest(method, c.apiURL+path, reader)
	if err != nil {
		log.Printf("Error creating request for %s: %s", path, err)
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken())
	req.Header.Set("Accept", mediaType)
	if c.config.EventLanguage != "" {
		req.Header.Set("Accept-Language", c.config.EventLanguage)
	}
	if body != nil {
		req.Header.Set("Content-Type", mediaType)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("Error making request to %s: %s", path, err)
		return nil, err
	}
	defer resp.Body.Close()
	metrics.SendIncrMetric("homeconnect.api.calls", []string{
		metrics.FormatTag("method", method),
		metrics.FormatTag("status", strconv.Itoa(resp.StatusCode)),
	})
	payload, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if c.debug {
		log.Printf("%s %s returned %d: %s", method, path, resp.StatusCode, string(payload))
	}
	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		return payload, nil
	}
	return nil, apiError(resp.StatusCode, payload, resp.Header.Get("Retry-After"))
}

func apiError(status int, payload []byte, retryAfter string) error {
	apiErr := &APIError{StatusCode: status}
	if seconds, err := strconv.Atoi(retryAfter); err == nil && seconds > 0 {
		apiErr.RetryAfter = seconds
	}
	var envelope errorEnvelope
	if err := json.Unmarshal(payload, &envelope); err == nil {
		apiErr.Key = envelope.Error.Key
		apiErr.Description = envelope.Error.Description
	}
	return apiErr
}
