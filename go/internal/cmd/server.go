package main

import (
	"fmt"
	"net/http"

	"github.com/rs/cors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mcdev12/cuetimer/go/internal/config"
	"github.com/mcdev12/cuetimer/go/internal/room/rpc"
)

func setupServer(cfg *config.Config, services *Services) *http.Server {
	mux := http.NewServeMux()

	// Setup CORS middleware
	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AllowedHeaders: []string{"*"},
	})

	// Register services
	registerServices(mux, services)

	// Wrap with CORS
	handler := c.Handler(mux)

	// No WriteTimeout: WebSocket and streaming RPC responses are long-lived.
	return &http.Server{
		Addr:        fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:     h2c.NewHandler(handler, &http2.Server{}),
		ReadTimeout: cfg.Server.ReadTimeout,
		IdleTimeout: cfg.Server.IdleTimeout,
	}
}

func registerServices(mux *http.ServeMux, services *Services) {
	// WebSocket, REST and health routes
	services.Gateway.RegisterRoutes(mux)

	// Register room RPC service
	roomServicePath, roomServiceHandler := rpc.NewRoomServiceHandler(services.Rooms)
	mux.Handle(roomServicePath, roomServiceHandler)
}
