package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Shubhamkumarpatel70/ridemitra-payout-service/internal/balance"
	"github.com/Shubhamkumarpatel70/ridemitra-payout-service/internal/config"
	"github.com/Shubhamkumarpatel70/ridemitra-payout-service/internal/logger"
	"github.com/Shubhamkumarpatel70/ridemitra-payout-service/internal/model"
	"github.com/Shubhamkumarpatel70/ridemitra-payout-service/internal/repo"
	"github.com/Shubhamkumarpatel70/ridemitra-payout-service/internal/service"
	httptransport "github.com/Shubhamkumarpatel70/ridemitra-payout-service/internal/transport/http"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/segmentio/kafka-go"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	// 1. load env + config
	_ = godotenv.Load()
	cfg, err := config.Load("internal/config/config.yaml")
	if err != nil {
		panic(fmt.Errorf("load config: %w", err))
	}

	// 2. init logger
	log, err := logger.NewLogger()
	if err != nil {
		panic(fmt.Errorf("init logger: %w", err))
	}
	defer log.Sync()

	// 3. postgres
	gdb, err := gorm.Open(postgres.Open(cfg.Postgres.DSN), &gorm.Config{PrepareStmt: true, TranslateError: true})
	if err != nil {
		log.Fatalf("open postgres: %v", err)
	}
	if err := gdb.AutoMigrate(&model.WithdrawalRequest{}, &model.OutboxEvent{}); err != nil {
		log.Fatalf("auto-migrate: %v", err)
	}

	// 4. redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("redis ping: %v", err)
	}

	// 5. kafka writer
	kw := &kafka.Writer{
		Addr:     kafka.TCP(cfg.Kafka.Brokers...),
		Topic:    cfg.Kafka.Topic,
		Balancer: &kafka.LeastBytes{},
	}

	// 6. repo & service & balance source
	repository := repo.NewRepository(gdb, rdb, kw, log)
	svc := service.NewWithdrawalService(repository, log)
	bal := balance.NewHTTPSource(cfg.Earnings.BaseURL, time.Duration(cfg.Earnings.TimeoutSeconds)*time.Second)

	// 7. gin router
	router := httptransport.NewRouter(svc, bal, cfg.RateLimit, log)

	// 8. serve
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Infof("payout-server listening on %s", addr)
	if err := http.ListenAndServe(addr, router); err != nil {
		log.Fatalf("listen: %v", err)
	}
}
