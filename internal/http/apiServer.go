package http

import (
	"context"
	"log"
	"net/http"
	"sync"

	"roominfo/internal/api"
	"roominfo/internal/ws"
)

type APIServer struct {
	server *http.Server
	wg     sync.WaitGroup
}

func NewAPIServer(apiHandlers *api.API, wsServer *ws.Server, addr string) *APIServer {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/login", apiHandlers.RequireSameOrigin(apiHandlers.LoginHandler))
	mux.HandleFunc("POST /api/logoff", apiHandlers.RequireSameOrigin(apiHandlers.LogoffHandler))
	mux.HandleFunc("GET /api/me", apiHandlers.RequireAuth(apiHandlers.MeHandler))
	mux.HandleFunc("PUT /api/users/me/status", apiHandlers.RequireSameOrigin(apiHandlers.RequireAuth(apiHandlers.UpdateStatusHandler)))
	mux.HandleFunc("POST /api/users/me/avatar", apiHandlers.RequireSameOrigin(apiHandlers.RequireAuth(apiHandlers.UploadAvatarHandler)))
	mux.HandleFunc("GET /api/images/{id}", apiHandlers.GetImageHandler)
	mux.HandleFunc("GET /api/rooms/{rid}/info", apiHandlers.RequireAuth(apiHandlers.RoomInfoHandler))
	mux.HandleFunc("PATCH /api/rooms/{rid}", apiHandlers.RequireSameOrigin(apiHandlers.RequireAuth(apiHandlers.UpdateRoomHandler)))
	mux.HandleFunc("POST /api/dm", apiHandlers.RequireSameOrigin(apiHandlers.RequireAuth(apiHandlers.CreateDMHandler)))

	// WebSocket endpoint
	mux.HandleFunc("GET /api/room-info", wsServer.HandleConnections)

	if addr == "" {
		addr = ":8080"
	}

	return &APIServer{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

func (s *APIServer) Start() error {
	log.Printf("API server started on %s", s.server.Addr)
	s.wg.Add(1)
	defer s.wg.Done()

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *APIServer) Shutdown(ctx context.Context) error {
	defer s.wg.Wait()
	return s.server.Shutdown(ctx)
}

// Handler exposes the routes for in-process tests.
func (s *APIServer) Handler() http.Handler {
	return s.server.Handler
}
