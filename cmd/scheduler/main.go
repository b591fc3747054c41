// Command scheduler runs the whole paint-shop scheduling core as a single
// process: persistence, messaging, telemetry, coordination, the gateway,
// and the tick engine that ties them together.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/paintshop/scheduler/internal/allocator"
	"github.com/paintshop/scheduler/internal/auth"
	"github.com/paintshop/scheduler/internal/buffer"
	"github.com/paintshop/scheduler/internal/config"
	"github.com/paintshop/scheduler/internal/coordination"
	"github.com/paintshop/scheduler/internal/dispatcher"
	"github.com/paintshop/scheduler/internal/engine"
	"github.com/paintshop/scheduler/internal/gateway"
	"github.com/paintshop/scheduler/internal/generator"
	"github.com/paintshop/scheduler/internal/metrics"
	"github.com/paintshop/scheduler/internal/persistence"
	"github.com/paintshop/scheduler/internal/telemetry"
	"github.com/paintshop/scheduler/internal/topology"
	"github.com/paintshop/scheduler/internal/vehicle"
	"github.com/paintshop/scheduler/pkg/messaging"
	events "github.com/paintshop/scheduler/shared/events"
)

func main() {
	cfg := config.Load()

	store, err := persistence.New(persistence.Config{
		DatabaseURL:   cfg.DatabaseURL,
		RedisAddr:     cfg.RedisAddr,
		RedisPassword: cfg.RedisPassword,
		RedisDB:       cfg.RedisDB,
		CacheTTL:      cfg.CacheTTL,
	})
	if err != nil {
		log.Fatalf("scheduler: persistence: %v", err)
	}
	defer store.Close()

	msgClient, err := messaging.NewClient(messaging.Config{
		URL:            cfg.NATSUrl,
		Name:           "paintshop-scheduler",
		ReconnectWait:  time.Second,
		MaxReconnects:  60,
		ConnectTimeout: 10 * time.Second,
	})
	if err != nil {
		log.Printf("scheduler: messaging unavailable, continuing without it: %v", err)
		msgClient = nil
	} else {
		defer msgClient.Close()
	}

	influx := telemetry.New(telemetry.Config{
		URL:    cfg.InfluxURL,
		Token:  cfg.InfluxToken,
		Org:    cfg.InfluxOrg,
		Bucket: cfg.InfluxBucket,
	})
	defer influx.Close()

	telemetryCtx, cancelTelemetry := context.WithCancel(context.Background())
	defer cancelTelemetry()
	go influx.LogErrors(telemetryCtx)

	coord, err := coordination.New(coordination.Config{
		Endpoints:   cfg.EtcdEndpoints,
		DialTimeout: cfg.EtcdDialTime,
		ShopID:      cfg.ShopID,
		SessionTTL:  cfg.EtcdSessionTTL,
	})
	if err != nil {
		log.Fatalf("scheduler: coordination: %v", err)
	}
	defer coord.Close()

	ownerCtx, cancelOwner := context.WithCancel(context.Background())
	defer cancelOwner()
	if err := coord.AcquireOwnership(ownerCtx); err != nil {
		log.Fatalf("scheduler: acquire ownership: %v", err)
	}
	defer coord.ReleaseOwnership(context.Background())

	authSv := auth.NewService(cfg.JWTSecret, cfg.Operators, cfg.TokenTTL)

	alloc := allocator.New(msgClient)
	disp := dispatcher.New(msgClient)
	agg := metrics.New()

	var gw *gateway.Gateway
	sink := engine.Sink{
		OnVehicleUpdate: func(ctx context.Context, updates []vehicle.Update) {
			if err := store.ApplyUpdates(ctx, updates); err != nil {
				log.Printf("scheduler: apply updates: %v", err)
			}
			if gw != nil {
				for _, u := range updates {
					broadcastVehicleUpdate(gw, u)
				}
			}
		},
		OnFlush: func(ctx context.Context, snap metrics.Snapshot, lanes map[string]buffer.Snapshot) {
			store.FlushSnapshot(ctx, snap, lanes)
			if gw != nil {
				gw.BroadcastMetrics(metricsToRecord(snap))
			}
		},
		OnTelemetry: func(ctx context.Context, snap metrics.Snapshot) {
			influx.Write(ctx, snap)
		},
	}

	eng := engine.New(alloc, disp, agg, store, sink)

	for _, laneID := range topology.LaneOrder {
		id := laneID
		coord.WatchMaintenance(context.Background(), cfg.ShopID, id, func(underMaintenance bool) {
			if lane, ok := eng.Lanes()[id]; ok {
				lane.SetAvailable(!underMaintenance)
			}
		})
	}

	gw = gateway.NewGateway(gateway.Config{
		Port:            cfg.GatewayPort,
		RateLimitWindow: cfg.RateLimitWindow,
		RateLimitMax:    cfg.RateLimitMax,
		TickInterval:    cfg.TickInterval,
		GeneratorSeed:   cfg.GeneratorSeed,
	}, eng, coord, store, authSv)

	seedVehicles(store, cfg)

	go func() {
		if err := gw.Start(":" + cfg.GatewayPort); err != nil {
			log.Printf("scheduler: gateway stopped: %v", err)
		}
	}()

	eng.Start(context.Background(), cfg.TickInterval)
	log.Printf("scheduler: tick engine started, gateway on :%s", cfg.GatewayPort)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("scheduler: shutting down")
	eng.Stop()
	log.Println("scheduler: stopped")
}

// seedVehicles seeds a freshly generated queue on every start. SeedVehicles
// skips car ids the store already holds, so a restart against an
// already-seeded database inserts nothing for those ids. A seeding error is
// logged, not fatal.
func seedVehicles(store *persistence.Store, cfg *config.Config) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	vehicles := generator.Generate(cfg.VehicleCount, cfg.GeneratorSeed)
	if err := store.SeedVehicles(ctx, vehicles); err != nil {
		log.Printf("scheduler: seed vehicles: %v", err)
	}
}

// broadcastVehicleUpdate fans a persistence update out to the gateway's
// live feed: a buffer assignment and a terminal paint are reported as
// distinct feed event types.
func broadcastVehicleUpdate(gw *gateway.Gateway, u vehicle.Update) {
	if u.Fields.Status != nil && *u.Fields.Status == vehicle.StatusPainted {
		gw.BroadcastVehiclePainted(u.CarID)
		return
	}
	if u.Fields.Buffer != nil && *u.Fields.Buffer != "" {
		rec := events.VehicleRecord{CarID: u.CarID, Buffer: *u.Fields.Buffer}
		if u.Fields.Status != nil {
			rec.Status = string(*u.Fields.Status)
		}
		if u.Fields.BatchID != nil {
			rec.BatchID = *u.Fields.BatchID
		}
		gw.BroadcastVehicleAssigned(rec)
	}
}

func metricsToRecord(snap metrics.Snapshot) events.MetricsRecord {
	return events.MetricsRecord{
		VehiclesProcessed:    snap.VehiclesProcessed,
		TotalChangeovers:     snap.TotalChangeovers,
		O2StoppageEvents:     snap.O2StoppageEvents,
		BufferOverflowEvents: snap.BufferOverflowEvents,
		Throughput:           snap.Throughput,
		EfficiencyPercent:    snap.EfficiencyPercent,
		TotalLostTimeSeconds: int(snap.TotalLostTimeSeconds),
		Oven1Occupancy:       snap.Oven1Occupancy,
		Oven2Occupancy:       snap.Oven2Occupancy,
		LastPaintedColor:     string(snap.LastPaintedColor),
	}
}
