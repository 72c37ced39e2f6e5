package bridge

import (
	"encoding/json"
	"io/ioutil"
	"os"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/bkremser/homeconnect-bridge/internal/appliance"
	"github.com/bkremser/homeconnect-bridge/internal/homeconnect"
	"github.com/bkremser/homeconnect-bridge/internal/models"
)

// stubClient satisfies homeconnect.Client for registration tests, which
// never issue API calls.
type stubClient struct {
	homeconnect.Client
}

var testWasher = homeconnect.HomeAppliance{
	HaID:  "SIEMENS-WM14T6H9NL-AB1234567890",
	Name:  "Washer",
	Brand: "SIEMENS",
	VIB:   "WM14T6H9NL",
	Type:  appliance.TypeWasher,
}

var testFridge = homeconnect.HomeAppliance{
	HaID:  "BOSCH-HCS05FRF1-7DE47F1427A5",
	Name:  "Fridge Freezer",
	Brand: "BOSCH",
	VIB:   "HCS05FRF1",
	Type:  appliance.TypeFridgeFreezer,
}

func newTestBridge(appliances ...homeconnect.HomeAppliance) *client {
	handlers := make(map[string]*appliance.Handler, len(appliances))
	for _, app := range appliances {
		handlers[app.HaID] = appliance.NewHandler(app, stubClient{})
	}
	return NewClient(models.Config{}, handlers).(*client)
}

func chdirTemp(t *testing.T) {
	t.Helper()
	previous, err := os.Getwd()
	assert.NoError(t, err)
	assert.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() {
		_ = os.Chdir(previous)
	})
}

func Test_ProgramApplianceAccessories(t *testing.T) {
	chdirTemp(t)
	c := newTestBridge(testWasher)
	accessories := c.GetAccessoriesFromAppliances([]homeconnect.HomeAppliance{testWasher})
	assert.Len(t, accessories, 2)
	channels := c.updates[testWasher.HaID]
	assert.Contains(t, channels, appliance.ChannelPowerState)
	assert.Contains(t, channels, appliance.ChannelProgramProgress)
}

func Test_FridgeFreezerAccessories(t *testing.T) {
	chdirTemp(t)
	c := newTestBridge(testFridge)
	accessories := c.GetAccessoriesFromAppliances([]homeconnect.HomeAppliance{testFridge})
	assert.Len(t, accessories, 4)
	channels := c.updates[testFridge.HaID]
	assert.Contains(t, channels, appliance.ChannelFridgeSetpoint)
	assert.Contains(t, channels, appliance.ChannelFreezerSetpoint)
	assert.Contains(t, channels, appliance.ChannelFridgeSuperMode)
	assert.Contains(t, channels, appliance.ChannelFreezerSuperMode)
}

func Test_ApplianceWithoutHandlerSkipped(t *testing.T) {
	chdirTemp(t)
	c := newTestBridge(testWasher)
	accessories := c.GetAccessoriesFromAppliances([]homeconnect.HomeAppliance{testWasher, testFridge})
	assert.Len(t, accessories, 2)
	assert.NotContains(t, c.updates, testFridge.HaID)
}

func Test_AccessoryIDsStableAcrossRestarts(t *testing.T) {
	chdirTemp(t)
	first := newTestBridge(testWasher, testFridge).
		GetAccessoriesFromAppliances([]homeconnect.HomeAppliance{testWasher, testFridge})

	second := newTestBridge(testFridge, testWasher).
		GetAccessoriesFromAppliances([]homeconnect.HomeAppliance{testFridge, testWasher})

	firstIDs := make(map[uint64]bool, len(first))
	for _, ac := range first {
		assert.False(t, firstIDs[ac.ID], "accessory ID %d allocated twice", ac.ID)
		firstIDs[ac.ID] = true
	}
	assert.Len(t, second, len(first))
	for _, ac := range second {
		assert.True(t, firstIDs[ac.ID], "accessory ID %d changed after restart", ac.ID)
	}
}

func Test_ItemsFileWritten(t *testing.T) {
	chdirTemp(t)
	c := newTestBridge(testWasher)
	c.GetAccessoriesFromAppliances([]homeconnect.HomeAppliance{testWasher})

	contents, err := ioutil.ReadFile("./items.json")
	assert.NoError(t, err)
	var itemIDs map[string]uint64
	assert.NoError(t, json.Unmarshal(contents, &itemIDs))
	assert.Contains(t, itemIDs, testWasher.HaID+":power")
	assert.Contains(t, itemIDs, testWasher.HaID+":progress")
}

func Test_AllocateID(t *testing.T) {
	itemIDs := map[string]uint64{"existing": 7}
	maxID := uint64(7)
	assert.Equal(t, uint64(7), allocateID(itemIDs, "existing", &maxID))
	assert.Equal(t, uint64(7), maxID)
	assert.Equal(t, uint64(8), allocateID(itemIDs, "new", &maxID))
	assert.Equal(t, uint64(8), itemIDs["new"])
	assert.Equal(t, uint64(9), allocateID(itemIDs, "another", &maxID))
}

func Test_OnChannelStateDispatch(t *testing.T) {
	c := NewClient(models.Config{}, nil).(*client)
	var gotState, gotUnit string
	c.addUpdate("appliance-1", appliance.ChannelDoorState, func(state, unit string) {
		gotState = state
		gotUnit = unit
	})

	c.OnChannelState("appliance-1", appliance.ChannelDoorState, "OPEN", "")
	assert.Equal(t, "OPEN", gotState)
	assert.Equal(t, "", gotUnit)

	c.OnChannelState("appliance-2", appliance.ChannelDoorState, "CLOSED", "")
	assert.Equal(t, "OPEN", gotState)
}

func Test_ChannelMetrics(t *testing.T) {
	reportChannelMetrics("metrics-test", appliance.ChannelDoorState, "OPEN", "")
	assert.Equal(t, float64(1), testutil.ToFloat64(applianceDoorOpen.WithLabelValues("metrics-test")))

	reportChannelMetrics("metrics-test", appliance.ChannelDoorState, "CLOSED", "")
	assert.Equal(t, float64(0), testutil.ToFloat64(applianceDoorOpen.WithLabelValues("metrics-test")))

	reportChannelMetrics("metrics-test", appliance.ChannelOperationState, homeconnect.OperationStateRun, "")
	assert.Equal(t, float64(1), testutil.ToFloat64(applianceOperationActive.WithLabelValues("metrics-test")))

	reportChannelMetrics("metrics-test", appliance.ChannelOperationState, homeconnect.OperationStateReady, "")
	assert.Equal(t, float64(0), testutil.ToFloat64(applianceOperationActive.WithLabelValues("metrics-test")))

	reportChannelMetrics("metrics-test", appliance.ChannelRemoteStartAllowance, "ON", "")
	assert.Equal(t, float64(1), testutil.ToFloat64(applianceRemoteStartAllowed.WithLabelValues("metrics-test")))

	reportChannelMetrics("metrics-test", appliance.ChannelRemoteStartAllowance, "OFF", "")
	assert.Equal(t, float64(0), testutil.ToFloat64(applianceRemoteStartAllowed.WithLabelValues("metrics-test")))

	reportChannelMetrics("metrics-test", appliance.ChannelFreezerSetpoint, "0", "°F")
	assert.InDelta(t, -17.78, testutil.ToFloat64(applianceSetpointTemperature.WithLabelValues("metrics-test", appliance.ChannelFreezerSetpoint)), 0.01)

	reportChannelMetrics("metrics-test", appliance.ChannelProgramProgress, "not-a-number", "%")
	assert.Equal(t, float64(0), testutil.ToFloat64(applianceProgramProgress.WithLabelValues("metrics-test")))
}

func Test_ToCelsius(t *testing.T) {
	assert.Equal(t, float64(4), toCelsius(4, "°C"))
	assert.InDelta(t, 3.89, toCelsius(39, "°F"), 0.01)
	assert.Equal(t, float64(-18), toCelsius(-18, ""))
}
