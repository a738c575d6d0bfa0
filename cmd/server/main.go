package main // Entry point package

import (
	"context"   // context carries cancellation to every background loop
	"errors"    // errors distinguishes a clean shutdown from a failure
	"net/http"  // http exposes ErrServerClosed
	"os"        // os provides the interrupt signal
	"os/signal" // signal turns SIGINT/SIGTERM into context cancellation
	"sync"      // sync waits for background loops on shutdown
	"syscall"   // syscall provides SIGTERM
	"time"      // time drives the room cleanup ticker

	"github.com/labstack/echo/v4"  // Echo web framework
	"github.com/redis/go-redis/v9" // Redis client interface
	"github.com/sirupsen/logrus"   // structured logging

	"github.com/iliyamo/live-auction/internal/bidding"    // bid serializer and auction scheduler
	"github.com/iliyamo/live-auction/internal/cache"      // Redis projections
	"github.com/iliyamo/live-auction/internal/config"     // environment config loaders
	"github.com/iliyamo/live-auction/internal/database"   // MySQL connection and schema
	"github.com/iliyamo/live-auction/internal/handler"    // HTTP handlers
	"github.com/iliyamo/live-auction/internal/lock"       // per-auction leases
	"github.com/iliyamo/live-auction/internal/middleware" // auth, cache, rate limit and access log
	"github.com/iliyamo/live-auction/internal/processor"  // queue consumers' business handlers
	"github.com/iliyamo/live-auction/internal/queue"      // RabbitMQ topology, publisher and consumers
	"github.com/iliyamo/live-auction/internal/ratelimit"  // Redis token buckets
	"github.com/iliyamo/live-auction/internal/realtime"   // websocket rooms, hub and relay
	"github.com/iliyamo/live-auction/internal/repository" // persistence gateway
	"github.com/iliyamo/live-auction/internal/router"     // route table
	"github.com/iliyamo/live-auction/internal/utils"      // logger
)

// roomSweepEvery is how often idle websocket rooms are reaped.
const roomSweepEvery = 5 * time.Minute

// backend is what the server needs from persistence: the bidding store plus
// the audit ledger.  Both MySQL and the in-memory store provide it.
type backend interface {
	repository.Store
	repository.AuditLedger
}

func main() {
	cfg := config.Load()         // Load environment config
	utils.SetLevel(cfg.LogLevel) // Apply LOG_LEVEL before anything logs
	log := utils.Component("server").WithField("instance_id", cfg.InstanceID)

	bidCfg := config.LoadBiddingConfig()
	cacheCfg := config.LoadCacheConfig()
	queueCfg := config.LoadQueueConfig()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, probes, closeStore := openStore(ctx, cfg, bidCfg)
	defer closeStore()

	// Redis is optional.  Keep rdb a nil interface when it is down so every
	// component sees "no client" rather than a typed nil.
	var rdb redis.UniversalClient
	var locker lock.Locker = lock.NewLocalLocker()
	if client := config.NewRedisClient(config.LoadRedisConfig()); client != nil {
		defer func() { _ = client.Close() }()
		rdb = client
		locker = lock.NewRedisLocker(client)
		probes["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	} else {
		log.Warn("redis unavailable: using in-process locks, caches and relay disabled")
	}

	// The broker connects in the background; publishes wait for it up to
	// the publish timeout and consumers subscribe once it is ready.
	broker := queue.NewManager(queueCfg, queue.Declare)
	defer func() { _ = broker.Close() }()
	go func() {
		if err := broker.Connect(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.WithError(err).Error("broker connection abandoned")
		}
	}()
	probes["broker"] = func(context.Context) error {
		if s := broker.State(); s != queue.StateConnected {
			return errors.New("broker " + s.String())
		}
		return nil
	}
	pub := queue.NewPublisher(broker)

	svc := bidding.NewService(store, locker, cache.NewBidCache(rdb, cacheCfg.HighestBidTTL), pub, bidCfg)

	rooms := realtime.NewRegistry(cache.NewRoomCache(rdb, cacheCfg.RoomInfoTTL))
	hub := realtime.NewHub(rooms)
	relay := realtime.NewRelay(rdb, cfg.InstanceID, hub)
	gateway := realtime.NewGateway(svc, hub, ratelimit.NewLimiter(rdb, config.LoadBidThrottleConfig()), cfg.JWTSecret)

	bids := processor.NewBidProcessor(hub, rooms, pub)
	consumers := []*queue.Consumer{
		queue.NewConsumer(queue.QueueBidProcessing, bids, broker, pub, queueCfg),
		queue.NewConsumer(queue.QueueBidPriority, bids, broker, pub, queueCfg),
		queue.NewConsumer(queue.QueueLifecycle, processor.NewLifecycleProcessor(hub, rooms, pub, svc), broker, pub, queueCfg),
		queue.NewConsumer(queue.QueueNotifications, processor.NewNotificationProcessor(hub), broker, pub, queueCfg),
		queue.NewConsumer(queue.QueueAudit, processor.NewAuditProcessor(store), broker, pub, queueCfg),
		queue.NewConsumer(queue.QueueDeadLetter, processor.NewDeadLetterProcessor(store), broker, pub, queueCfg),
	}

	var wg sync.WaitGroup
	run := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.WithError(err).WithField("loop", name).Error("background loop stopped")
			}
		}()
	}
	for _, c := range consumers {
		run("consumer", c.Run)
	}
	run("scheduler", bidding.NewScheduler(svc, bidCfg.SweepInterval).Run)
	run("outbox", bidding.NewOutboxRelay(svc, bidCfg.OutboxInterval).Run)
	run("relay", relay.Run)
	run("room-cleanup", func(ctx context.Context) error {
		return reapRooms(ctx, hub, rooms, bidCfg.RoomIdleTimeout, log)
	})

	e := echo.New() // Create Echo instance
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.RequestLogger())
	router.RegisterRoutes(e, router.Deps{
		Auctions:  handler.NewAuctionHandler(svc),
		Admin:     handler.NewAdminHandler(broker, rooms, store),
		Websocket: gateway.Handle,
		Probes:    probes,
		JWTSecret: cfg.JWTSecret,
		Cache:     middleware.NewRedisCache(cacheCfg, rdb),
		RateLimit: middleware.NewTokenBucket(ratelimit.NewLimiter(rdb, config.LoadRateLimitConfig())),
	})

	addr := ":" + cfg.Port // Address string with port
	go func() {
		log.WithFields(logrus.Fields{"addr": addr, "env": cfg.Env}).Info("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("http server failed")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown incomplete")
	}
	wg.Wait()
	log.Info("stopped")
}

// openStore selects the persistence gateway from STORE_DRIVER.  The returned
// probes map is seeded with the database check and extended by main.
func openStore(ctx context.Context, cfg config.Config, bidCfg config.BiddingConfig) (backend, map[string]handler.Probe, func()) {
	probes := map[string]handler.Probe{}
	if cfg.StoreDriver == config.StoreMemory {
		utils.Warn("using the in-memory store; state is lost on restart", nil)
		return repository.NewMemoryStore(), probes, func() {}
	}
	db, err := database.Open(database.Options{
		User: cfg.DBUser,
		Pass: cfg.DBPass,
		Host: cfg.DBHost,
		Port: cfg.DBPort,
		Name: cfg.DBName,
	})
	if err != nil {
		utils.Fatal("database unavailable", map[string]any{"error": err.Error(), "host": cfg.DBHost})
	}
	if cfg.DBAutoMigrate {
		if err := database.EnsureSchema(ctx, db); err != nil {
			utils.Fatal("schema migration failed", map[string]any{"error": err.Error()})
		}
	}
	probes["database"] = db.PingContext
	return repository.NewSQLStore(db, bidCfg.StoreTimeout), probes, func() { _ = db.Close() }
}

// reapRooms drops rooms that saw no activity for idle and tells the
// connections still in them that they were removed.
func reapRooms(ctx context.Context, hub *realtime.Hub, rooms *realtime.Registry, idle time.Duration, log *logrus.Entry) error {
	ticker := time.NewTicker(roomSweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		removed := rooms.CleanupInactive(ctx, idle)
		for auctionID, conns := range removed {
			for _, id := range conns {
				_ = hub.Send(id, realtime.EventLeftAuction, map[string]string{"auctionId": auctionID, "reason": "inactive"})
			}
		}
		if len(removed) > 0 {
			log.WithField("rooms", len(removed)).Info("idle rooms removed")
		}
	}
}
