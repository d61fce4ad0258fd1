package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"interchee.org/internal/auth"
	"interchee.org/internal/config"
	"interchee.org/internal/httpapi"
	"interchee.org/internal/obs"
)

var commit = "unknown"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	obs.Init()
	obs.InitBuildInfo(cfg.Version, commit)

	db, err := auth.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	users := auth.NewPGUserStore(db)
	credentials := auth.NewPGCredentialStore(db)
	roles := auth.NewPGRoleAssignmentStore(db)
	departments := auth.NewPGDepartmentStore(db)

	svc, err := auth.NewService(users, credentials, cfg.Issuer, cfg.Audience, []byte(cfg.SigningKey),
		auth.WithAccessTTL(cfg.AccessTTL()),
		auth.WithRefreshTTL(cfg.RefreshTTL()),
		auth.WithBcryptCost(cfg.BcryptCost),
	)
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}
	eval := auth.NewEvaluator(roles)

	probe := httpapi.ReadyProbe{DB: db}
	api := httpapi.New(svc, eval, users, roles, departments, probe, cfg.Version)

	handler := httpapi.RequestID(
		httpapi.LoggingJSON(
			httpapi.SecurityHeaders(
				httpapi.CORS(
					httpapi.MaxBodyBytes(
						httpapi.RateLimit(api.Handler(), cfg.RateLimitBurst, cfg.RateLimitRPS),
						cfg.MaxBodyBytes,
					),
				),
			),
		),
	)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	grpcServer := grpc.NewServer()
	httpapi.NewGRPCServer(probe).Register(grpcServer)

	log.Printf("Starting interchee-api %s on %s (grpc :%d)", cfg.Version, srv.Addr, cfg.GRPCPort)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()
	go func() {
		lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPCPort))
		if err != nil {
			log.Fatalf("grpc listen: %v", err)
		}
		if err := grpcServer.Serve(lis); err != nil {
			log.Fatalf("grpc serve: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	grpcServer.GracefulStop()
	log.Println("Stopped")
}
