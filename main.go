package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jgulick48/hc"
	"github.com/mitchellh/panicwrap"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/jgulick48/cloud-bindings/internal/homekit"
	"github.com/jgulick48/cloud-bindings/internal/logging"
	"github.com/jgulick48/cloud-bindings/internal/metrics"
	"github.com/jgulick48/cloud-bindings/internal/models"
	"github.com/jgulick48/cloud-bindings/internal/mqtt"
	"github.com/jgulick48/cloud-bindings/internal/openHab"
	"github.com/jgulick48/cloud-bindings/internal/recycling"
	"github.com/jgulick48/cloud-bindings/internal/runtime"
	"github.com/jgulick48/cloud-bindings/internal/scheduler"
	"github.com/jgulick48/cloud-bindings/internal/sl"
	"github.com/jgulick48/cloud-bindings/internal/store"
	"github.com/jgulick48/cloud-bindings/internal/unifi"
	"github.com/jgulick48/cloud-bindings/internal/verisure"
	"github.com/jgulick48/cloud-bindings/internal/vw/carnet"
	"github.com/jgulick48/cloud-bindings/internal/vw/weconnect"
)

const defaultDatabase = "./cloud-bindings.db"

var configLocation = flag.String("configFile", "./config.json", "Location for the configuration file.")
var logLevel = flag.String("logLevel", "", "Overrides the log level from the configuration file.")

func main() {
	exitStatus, err := panicwrap.BasicWrap(panicHandler)
	if err != nil {
		panic(err)
	}
	if exitStatus >= 0 {
		os.Exit(exitStatus)
	}

	flag.Parse()
	config, err := models.LoadConfig(*configLocation)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	level := config.LogLevel
	if *logLevel != "" {
		level = *logLevel
	}
	logging.Init(logging.ParseLevel(level), config.LogFile)

	metrics.Init(config.StatsServer, "cloudbindings.", nil)
	defer metrics.Close()
	if config.MetricsPort != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(":"+config.MetricsPort, mux); err != nil {
				log.Error().Err(err).Msg("Metrics server stopped")
			}
		}()
	}

	sched := scheduler.New()
	rt := runtime.New(sched,
		verisure.NewFactory(sched, http.DefaultClient),
		carnet.NewFactory(sched, http.DefaultClient),
		weconnect.NewFactory(sched, http.DefaultClient),
		unifi.NewFactory(sched, http.DefaultClient),
		sl.NewFactory(sched, http.DefaultClient),
		recycling.NewFactory(sched, http.DefaultClient),
	)

	if config.OpenHabServer != "" {
		sink := openHab.NewSink(openHab.NewClient(config.OpenHabServer, http.DefaultClient))
		if err := sink.LoadItems(); err != nil {
			log.Fatal().Err(err).Msg("Unable to load items from openHAB")
		}
		rt.AddSink(sink)
		rt.AddLinker(sink)
	}

	mqttClient := mqtt.NewClient(config.MQTT, rt.HandleCommand)
	if mqttClient.IsEnabled() {
		if err := mqttClient.Connect(); err != nil {
			log.Fatal().Err(err).Msg("Unable to connect to MQTT broker")
		}
		defer mqttClient.Close()
		rt.AddSink(mqttClient)
	}

	database := config.Database
	if database == "" {
		database = defaultDatabase
	}
	db, err := store.Open(database)
	if err != nil {
		log.Fatal().Err(err).Str("database", database).Msg("Unable to open database")
	}
	defer db.Close()
	rt.AddSink(db)

	var transport hc.Transport
	if config.PIN != "" {
		bridge, err := homekit.NewBridge(config.BridgeName, config.HomeKit, db, rt.HandleCommand)
		if err != nil {
			log.Fatal().Err(err).Msg("Unable to create HomeKit bridge")
		}
		rt.AddSink(bridge)
		transport, err = bridge.Transport(config.PIN, config.Port, config.HomeKit.StoragePath)
		if err != nil {
			log.Fatal().Err(err).Msg("Unable to start HomeKit")
		}
	}

	if err := rt.Load(config.Things); err != nil {
		log.Fatal().Err(err).Msg("Invalid thing configuration")
	}
	rt.Restore(db)
	rt.Start()
	log.Info().Int("things", len(config.Things)).Msg("Bindings started")

	shutdown := func() {
		ctx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout.Duration)
		defer cancel()
		if err := rt.Stop(ctx); err != nil {
			log.Error().Err(err).Msg("Bindings did not stop cleanly")
		}
	}

	if transport != nil {
		hc.OnTermination(func() {
			shutdown()
			<-transport.Stop()
		})
		transport.Start()
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	shutdown()
}

func panicHandler(output string) {
	log.Error().Str("panic", output).Msg("Process panicked")
	os.Exit(1)
}
