package main

import (
	"context"
	"log"

	"github.com/ecortez91/sentinel-sub001/config"
	"github.com/ecortez91/sentinel-sub001/internal/agent"
	"github.com/ecortez91/sentinel-sub001/internal/alerts"
	"github.com/ecortez91/sentinel-sub001/internal/history"
	"github.com/ecortez91/sentinel-sub001/internal/notify"
	"github.com/ecortez91/sentinel-sub001/internal/power"
	"github.com/ecortez91/sentinel-sub001/internal/server"
	"github.com/ecortez91/sentinel-sub001/internal/system"
	"github.com/ecortez91/sentinel-sub001/internal/thermal"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	client := thermal.NewClient(cfg.Thermal.URL, cfg.Thermal.Username, cfg.Thermal.Password)

	manager := thermal.NewManager(thermal.ManagerSettings{
		ConfigEnabled:      cfg.Thermal.AutoShutdownEnabled,
		EmergencyThreshold: cfg.Thermal.EmergencyThreshold,
		CriticalThreshold:  cfg.Thermal.CriticalThreshold,
		SustainedSecs:      cfg.Thermal.SustainedSecs,
		GraceSecs:          cfg.Thermal.GraceSecs,
		ScheduleStartHour:  cfg.Thermal.ScheduleStartHour,
		ScheduleEndHour:    cfg.Thermal.ScheduleEndHour,
	})

	var notifier *notify.Notifier
	if cfg.EmailEnabled {
		n, ok := notify.FromEnv()
		if !ok {
			log.Printf("email enabled but SMTP credentials incomplete, notifications disabled")
		} else {
			notifier = n
		}
	}

	detector := alerts.NewDetector(alerts.Thresholds{
		WarningC:  cfg.Thermal.WarningThreshold,
		CriticalC: cfg.Thermal.CriticalThreshold,
	})

	a := agent.New(agent.Options{
		Client:       client,
		Manager:      manager,
		Executor:     power.NewExecutor(),
		Notifier:     notifier,
		Detector:     detector,
		History:      history.NewStore(history.DefaultCapacity),
		Hostname:     system.NewCollector().Hostname(),
		PollInterval: cfg.Thermal.PollInterval,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Run(ctx)

	srv := server.New(cfg, a, notifier)
	if err := srv.Run(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
