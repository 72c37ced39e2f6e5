package main

import (
	"fmt"
	"io/ioutil"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/jgulick48/hc"
	"github.com/jgulick48/hc/accessory"
	"github.com/mitchellh/panicwrap"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bkremser/homeconnect-bridge/internal/appliance"
	"github.com/bkremser/homeconnect-bridge/internal/bridge"
	"github.com/bkremser/homeconnect-bridge/internal/homeconnect"
	"github.com/bkremser/homeconnect-bridge/internal/metrics"
	"github.com/bkremser/homeconnect-bridge/internal/models"
	"github.com/bkremser/homeconnect-bridge/internal/mqtt"
)

func main() {
	exitStatus, err := panicwrap.BasicWrap(panicHandler)
	if err != nil {
		panic(err)
	}
	if exitStatus >= 0 {
		os.Exit(exitStatus)
	}
	run()
}

func panicHandler(output string) {
	log.Printf("The bridge crashed: %s", output)
	if err := ioutil.WriteFile("./crash.log", []byte(output), 0644); err != nil {
		log.Printf("Error trying to save crash log: %s", err)
	}
	os.Exit(1)
}

func run() {
	config := models.LoadClientConfig("")
	metrics.Init(config.StatsServer)

	hcClient := homeconnect.NewClient(config.HomeConnect, config.Debug)
	appliances, err := hcClient.GetHomeAppliances()
	if err != nil {
		panic(err)
	}
	log.Printf("Found %v appliances", len(appliances))

	handlers := make(map[string]*appliance.Handler, len(appliances))
	for _, app := range appliances {
		handlers[app.HaID] = appliance.NewHandler(app, hcClient)
	}

	bridgeClient := bridge.NewClient(config, handlers)
	accessories := bridgeClient.GetAccessoriesFromAppliances(appliances)
	log.Printf("Registered %v accessories", len(accessories))

	mqttClient := mqtt.NewClient(config.MQTT, handlers, config.Debug)
	if mqttClient.IsEnabled() {
		for _, handler := range handlers {
			handler.AddChannelListener(mqttClient)
		}
		go mqttClient.Connect()
	}

	for _, handler := range handlers {
		if err := hcClient.RegisterEventListener(handler); err != nil {
			log.Printf("Error registering event listener for %s: %s", handler.HaID(), err)
		}
		go handler.RefreshChannels()
	}

	if config.MetricsPort != "" {
		go func() {
			http.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(fmt.Sprintf(":%s", config.MetricsPort), nil); err != nil {
				log.Printf("Error starting metrics server: %s", err)
			}
		}()
	}

	go refreshPeriodically(handlers, config.RefreshInterval.Duration)

	homekitBridge := accessory.NewBridge(accessory.Info{
		Name: config.BridgeName,
		ID:   1,
	})
	hcConfig := hc.Config{
		Pin:  config.PIN,
		Port: config.Port,
	}
	t, err := hc.NewIPTransport(hcConfig, homekitBridge.Accessory, accessories...)
	if err != nil {
		log.Panic(err)
	}

	hc.OnTermination(func() {
		hcClient.Dispose()
		if mqttClient.IsEnabled() {
			mqttClient.Close()
		}
		<-t.Stop()
	})
	t.Start()
}

// refreshPeriodically re-polls every channel as a safety net. The event
// stream is the primary update path so the interval can be long.
func refreshPeriodically(handlers map[string]*appliance.Handler, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	for range ticker.C {
		for _, handler := range handlers {
			handler.RefreshChannels()
		}
	}
}
