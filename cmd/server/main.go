package main

import (
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/Tyrowin/nexus-relay/internal/presence"
	"github.com/Tyrowin/nexus-relay/internal/room"
	"github.com/Tyrowin/nexus-relay/internal/server"
)

const shutdownTimeout = 10 * time.Second

func main() {
	log.Println("Starting Nexus Relay...")

	// A missing .env file is fine; the environment still applies.
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file loaded: %v", err)
	}

	config := server.NewConfigFromEnv()
	server.SetConfig(config)

	registry := presence.NewRegistry()
	rooms := room.NewStore(config.HistoryLimit)

	hub := server.NewHub()
	dispatcher := server.NewDispatcher(registry, rooms, hub)
	hub.SetHandler(dispatcher)
	server.StartHub(hub)

	api := server.NewAPI(hub, registry, rooms)
	httpServer := server.CreateServer(config.Port, api.Routes())

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.StartServer(httpServer)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stop:
		log.Printf("Received signal %s, shutting down", sig)
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}

	if err := server.ShutdownServer(httpServer, shutdownTimeout); err != nil {
		log.Printf("HTTP shutdown incomplete: %v", err)
	}
	if err := hub.Shutdown(shutdownTimeout); err != nil {
		log.Printf("Hub shutdown incomplete: %v", err)
	}
}
