package http

import (
	"context"
	"log"
	"net/http"
	"sync"

	"roominfo/internal/api"
)

type AdminServer struct {
	server *http.Server
	wg     sync.WaitGroup
}

func NewAdminServer(adminHandler *api.AdminHandler, addr string) *AdminServer {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /admin/users", adminHandler.AddUserHandler)
	mux.HandleFunc("PUT /admin/users/{id}/roles", adminHandler.SetUserRolesHandler)
	mux.HandleFunc("DELETE /admin/users/{id}", adminHandler.DeleteUserHandler)
	mux.HandleFunc("POST /admin/rooms", adminHandler.CreateRoomHandler)
	mux.HandleFunc("PATCH /admin/rooms/{rid}", adminHandler.UpdateRoomHandler)
	mux.HandleFunc("PUT /admin/rooms/{rid}/members/{uid}", adminHandler.SetMembershipHandler)
	mux.HandleFunc("PUT /admin/roles/{id}", adminHandler.UpsertRoleHandler)
	mux.HandleFunc("PUT /admin/permissions/{id}", adminHandler.GrantPermissionHandler)

	if addr == "" {
		addr = "localhost:8081"
	}

	return &AdminServer{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

func (s *AdminServer) Start() error {
	log.Printf("Admin API started on %s", s.server.Addr)
	s.wg.Add(1)
	defer s.wg.Done()

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *AdminServer) Shutdown(ctx context.Context) error {
	defer s.wg.Wait()
	return s.server.Shutdown(ctx)
}

func (s *AdminServer) Handler() http.Handler {
	return s.server.Handler
}
