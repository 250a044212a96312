package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/fathima-sithara/chat-core/internal/api"
	"github.com/fathima-sithara/chat-core/internal/auth"
	"github.com/fathima-sithara/chat-core/internal/broker"
	"github.com/fathima-sithara/chat-core/internal/config"
	"github.com/fathima-sithara/chat-core/internal/directory"
	"github.com/fathima-sithara/chat-core/internal/discovery"
	"github.com/fathima-sithara/chat-core/internal/events"
	"github.com/fathima-sithara/chat-core/internal/fanout"
	"github.com/fathima-sithara/chat-core/internal/push"
	"github.com/fathima-sithara/chat-core/internal/repository"
	"github.com/fathima-sithara/chat-core/internal/service"
	"github.com/fathima-sithara/chat-core/internal/subscriber"
	"github.com/fathima-sithara/chat-core/internal/utils"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	migrateOnly := flag.Bool("migrate-only", false, "create indexes and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config load: %v", err)
	}

	logger, err := utils.NewLogger(cfg.App.Development(), cfg.Log.Level)
	if err != nil {
		log.Fatalf("logger init: %v", err)
	}
	defer logger.Sync()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	mc, err := repository.Connect(ctx, cfg.Mongo.URI, cfg.MongoConnectTimeout())
	if err != nil {
		logger.Fatal("mongo connect", zap.Error(err))
	}
	defer func() { _ = mc.Disconnect(context.Background()) }()
	db := mc.Database(cfg.Mongo.Database)

	if err := repository.EnsureIndexes(ctx, db); err != nil {
		logger.Fatal("ensure indexes", zap.Error(err))
	}
	if *migrateOnly {
		logger.Info("indexes ensured")
		return
	}
	store := repository.NewMongoStore(db)

	var cache directory.Cache
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unavailable, profiles read from mongo", zap.Error(err))
		}
		cache = directory.NewRedisCache(rdb, cfg.Redis.Prefix)
	}
	dir := directory.NewOracle(store, cache, cfg.ProfileTTL(), logger)

	jv, err := auth.NewValidator(cfg.JWT.Alg, cfg.JWT.PublicKeyPath, cfg.JWT.HSSecret)
	if err != nil {
		logger.Fatal("jwt validator init", zap.Error(err))
	}

	mq := broker.NewMQTT(broker.MQTTConfig{
		BrokerURL:           cfg.MQTT.BrokerURL,
		ClientID:            cfg.MQTT.ClientID,
		Username:            cfg.MQTT.Username,
		Password:            cfg.MQTT.Password,
		ConnectTimeout:      cfg.MQTTConnectTimeout(),
		PublishReadyTimeout: cfg.MQTTPublishReadyTimeout(),
		ReconnectInterval:   cfg.MQTTReconnectInterval(),
	}, logger)
	if err := mq.Connect(ctx); err != nil {
		// paho keeps retrying; publishes fail fast until it is up
		logger.Warn("mqtt not connected at startup", zap.Error(err))
	}
	defer mq.Close()

	disp := fanout.NewDispatcher(mq, logger, cfg.Fanout.Shards, cfg.Fanout.QueueSize)

	kafkaSink := push.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.TopicPush)
	defer kafkaSink.Close()
	sink := push.NewBreakerSink(kafkaSink, push.BreakerConfig{
		MaxFailures: uint32(cfg.Push.BreakerMaxFailures),
		Timeout:     cfg.BreakerTimeout(),
	}, logger)
	bridge := push.NewBridge(sink, store, dir, logger, cfg.Push.Workers, cfg.Push.QueueSize)

	locks := service.NewConversationLocks(256)
	receipts := service.NewReceiptService(store, disp, locks, logger)
	messages := service.NewMessageService(store, disp, bridge, dir, receipts, utils.NewMonotonicClock(), locks, logger)
	queries := service.NewQueryService(store, dir, messages, receipts, logger)

	limiter := subscriber.NewActorLimiter(cfg.Ingress.RatePerSecond, cfg.Ingress.Burst)
	go limiter.Run(ctx)
	if err := subscriber.New(mq, receipts, cfg.MQTT.ReceiptsTopic, limiter, logger).Start(); err != nil {
		logger.Fatal("subscribe receipts", zap.Error(err))
	}

	comments := events.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicPrivateComments, cfg.Kafka.GroupID, messages, logger)
	go comments.Run(ctx)

	app := api.NewServer(messages, queries, store, mq, jv, logger)

	registrar, err := discovery.NewRegistrar(discovery.Options{
		ConsulAddr:     cfg.Consul.Addr,
		ServiceName:    cfg.Consul.ServiceName,
		ServiceAddress: cfg.Consul.ServiceAddress,
		Port:           cfg.App.Port,
	}, logger)
	if err != nil {
		logger.Fatal("consul client", zap.Error(err))
	}

	errs := make(chan error, 1)
	go func() {
		addr := ":" + cfg.App.PortString()
		logger.Info("chat-core listening", zap.String("addr", addr))
		errs <- app.Listen(addr)
	}()
	if err := registrar.Register(); err != nil {
		logger.Warn("service registration failed", zap.Error(err))
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case e := <-errs:
		logger.Error("server error", zap.Error(e))
	case s := <-sig:
		logger.Info("signal received", zap.String("signal", s.String()))
	}

	if err := registrar.Deregister(); err != nil {
		logger.Warn("service deregistration failed", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Warn("fiber shutdown", zap.Error(err))
	}

	stop()
	if err := comments.Close(); err != nil {
		logger.Warn("kafka reader close", zap.Error(err))
	}
	if err := disp.Flush(shutdownCtx); err != nil {
		logger.Warn("fanout flush", zap.Error(err))
	}
	disp.Close()
	bridge.Close()

	logger.Info("chat-core stopped")
}
