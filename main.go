package main

import (
	"context"
	"errors"
	"flag"
	"log"
	oshttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"roominfo/internal/api"
	"roominfo/internal/auth"
	"roominfo/internal/chat"
	"roominfo/internal/commands"
	"roominfo/internal/config"
	"roominfo/internal/filestore"
	"roominfo/internal/http"
	"roominfo/internal/logger"
	"roominfo/internal/service"
	"roominfo/internal/storage"
	"roominfo/internal/ws"

	"golang.org/x/sync/errgroup"
)

func run(ctx context.Context, addUser string) error {
	cfg, err := config.Load(addUser != "")
	if err != nil {
		return err
	}

	if addUser != "" {
		return commands.AddUser(addUser, cfg)
	}

	logger.Setup(cfg)

	bbStorage, err := storage.NewBboltStorage(cfg.DBFile)
	if err != nil {
		return err
	}
	defer func() { _ = bbStorage.Close() }()

	files, err := filestore.NewLocalFileStore(cfg.UploadsPath)
	if err != nil {
		return err
	}

	authService, err := auth.NewAuthService(ctx, auth.Config{TokenExpiry: cfg.TokenExpiry}, bbStorage)
	if err != nil {
		return err
	}

	svc := service.New(ctx, service.Config{
		PermissionTTL:   cfg.PermissionTTL,
		RoleConcurrency: cfg.RoleConcurrency,
	}, bbStorage, chat.NewHub(cfg.FeedBuffer))
	if err := svc.Bootstrap(ctx); err != nil {
		return err
	}

	views := api.Presenter{UseRealName: cfg.UseRealName, JitsiBaseURL: cfg.JitsiBaseURL}
	apiHandlers := api.New(authService, svc, files, bbStorage, views, cfg.BaseURL)
	connections := ws.NewHub()
	wsServer := ws.NewServer(apiHandlers, connections, svc, views)

	adminServer := http.NewAdminServer(api.NewAdminHandler(authService, svc, connections), cfg.AdminAddr)
	apiServer := http.NewAPIServer(apiHandlers, wsServer, cfg.APIAddr)

	g, gCtx := errgroup.WithContext(ctx)

	// Start Admin Server
	g.Go(func() error {
		err := adminServer.Start()
		if err != nil && err != oshttp.ErrServerClosed {
			return err
		}
		return nil
	})

	// Start API Server
	g.Go(func() error {
		err := apiServer.Start()
		if err != nil && err != oshttp.ErrServerClosed {
			return err
		}
		return nil
	})

	// Wait for context cancellation (signal)
	g.Go(func() error {
		<-gCtx.Done()
		log.Println("Shutting down servers...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := adminServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("Admin server shutdown error: %v", err)
		}
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("API server shutdown error: %v", err)
		}
		return nil
	})

	return g.Wait()
}

func main() {
	addUser := flag.String("add-user", "", "Username to create (creates user with random password and prints details)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *addUser); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("Application error: %v", err)
	}
}
