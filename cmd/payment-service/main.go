package main

import (
	"context"
	"database/sql"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	log "github.com/sirupsen/logrus"

	"github.com/dancameron/gbs-payment-gateway-paypal-payflow/internal/config"
	"github.com/dancameron/gbs-payment-gateway-paypal-payflow/internal/events"
	"github.com/dancameron/gbs-payment-gateway-paypal-payflow/internal/gateway"
	"github.com/dancameron/gbs-payment-gateway-paypal-payflow/internal/payment"
	"github.com/dancameron/gbs-payment-gateway-paypal-payflow/internal/server"
	"github.com/dancameron/gbs-payment-gateway-paypal-payflow/internal/store/postgres"
	"github.com/dancameron/gbs-payment-gateway-paypal-payflow/internal/worker"
)

func init() {
	log.SetFormatter(&log.JSONFormatter{})
	log.SetLevel(log.InfoLevel)
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config: ", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := sql.Open("postgres", cfg.GetDBURL())
	if err != nil {
		log.Fatal("Failed to open database: ", err)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		log.Fatal("Failed to reach database: ", err)
	}
	store := postgres.NewPaymentStore(db)

	publisher := events.NewKafkaPublisher(cfg.KafkaBroker, cfg.KafkaTopic)
	defer publisher.Close()
	notifier := events.NewKafkaNotifier(publisher)

	// One gateway variant per deployment: the eWAY managed-customer variant
	// when stored-card payments are enabled, the Payflow auth/capture variant
	// otherwise.
	var (
		method   string
		gw       payment.Gateway
		profiles payment.ProfileGateway
	)
	if cfg.TokenPaymentsEnabled {
		eway := gateway.NewEwayClient(gateway.EwayConfig{
			CustomerID: cfg.EwayCustomerID,
			Username:   cfg.EwayUsername,
			Password:   cfg.EwayPassword,
			Mode:       cfg.Mode,
		})
		method, gw, profiles = payment.MethodEway, eway, eway
	} else {
		method = payment.MethodPayflow
		gw = gateway.NewPayflowClient(gateway.PayflowConfig{
			Vendor:   cfg.PayflowVendor,
			Partner:  cfg.PayflowPartner,
			User:     cfg.PayflowUser,
			Password: cfg.PayflowPassword,
			Mode:     cfg.Mode,
		})
	}

	authorizer := payment.NewAuthorizer(method, cfg.Currency, gw, profiles, store, notifier)
	capturer := payment.NewCaptureEngine(method, cfg.Currency, gw, store, payment.CaptureAll{}, notifier)

	// Purchase-completed events trigger capture as soon as checkout finishes.
	rabbit, err := events.NewRabbitClient(cfg.RabbitURL)
	if err != nil {
		log.Fatal("Failed to connect to RabbitMQ: ", err)
	}
	defer rabbit.Close()
	go func() {
		if err := rabbit.ConsumePurchaseCompleted(ctx, capturer); err != nil && ctx.Err() == nil {
			log.Error("Purchase-completed consumer stopped: ", err)
		}
	}()

	// The sweep re-attempts capture on every pending payment each cycle.
	sweep := worker.NewSweep(store, capturer, cfg.SweepSchedule)
	go func() {
		if err := sweep.Start(ctx); err != nil && ctx.Err() == nil {
			log.Error("Capture sweep stopped: ", err)
		}
	}()

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: server.New(authorizer, capturer, store).Router(),
	}
	go func() {
		log.WithFields(log.Fields{"port": cfg.Port, "method": method}).Info("Payment service starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server: ", err)
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown: ", err)
	}
}
