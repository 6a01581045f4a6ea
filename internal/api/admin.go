package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"roominfo/internal/auth"
	"roominfo/internal/content"
	"roominfo/internal/models"
	"roominfo/internal/service"
)

type userDisconnector interface {
	DisconnectUser(userID string) int
}

type AdminHandler struct {
	authService *auth.AuthService
	service     *service.Service
	connections userDisconnector
}

func NewAdminHandler(authService *auth.AuthService, service *service.Service, connections userDisconnector) *AdminHandler {
	return &AdminHandler{authService: authService, service: service, connections: connections}
}

type AddUserRequest struct {
	Username string `json:"username"`
	Name     string `json:"name,omitempty"`
}

type AddUserResponse struct {
	Success  bool   `json:"success"`
	Message  string `json:"message,omitempty"`
	UserID   string `json:"userId,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

func (h *AdminHandler) AddUserHandler(w http.ResponseWriter, r *http.Request) {
	var req AddUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := content.ValidateUsername(req.Username); err != nil {
		writeJSON(w, http.StatusBadRequest, AddUserResponse{Message: err.Error()})
		return
	}

	user, password, err := h.authService.AddUser(req.Username, content.Sanitize(req.Name))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, AddUserResponse{
			Message: fmt.Sprintf("Failed to create user: %v", err),
		})
		return
	}

	slog.Info("user created", "user_id", user.ID, "username", user.UserName)
	writeJSON(w, http.StatusOK, AddUserResponse{
		Success:  true,
		UserID:   user.ID,
		Username: user.UserName,
		Password: password,
	})
}

type RolesRequest struct {
	Roles []string `json:"roles"`
}

func (h *AdminHandler) SetUserRolesHandler(w http.ResponseWriter, r *http.Request) {
	var req RolesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	user, err := h.service.SetUserRoles(r.Context(), r.PathValue("id"), req.Roles)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *AdminHandler) DeleteUserHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")
	if err := h.service.DeleteUser(r.Context(), userID); err != nil {
		writeError(w, r, err)
		return
	}

	closed := 0
	if h.connections != nil {
		closed = h.connections.DisconnectUser(userID)
	}
	slog.Info("user deleted", "user_id", userID, "connections", closed)

	writeJSON(w, http.StatusOK, models.APIResponse{
		Success: true,
		Message: fmt.Sprintf("User %s deleted", userID),
	})
}

type CreateRoomRequest struct {
	models.Room
	OwnerID string `json:"ownerId,omitempty"`
}

func (h *AdminHandler) CreateRoomHandler(w http.ResponseWriter, r *http.Request) {
	var req CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	room, err := h.service.CreateRoom(r.Context(), req.OwnerID, req.Room)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

func (h *AdminHandler) UpdateRoomHandler(w http.ResponseWriter, r *http.Request) {
	var update service.RoomUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	room, err := h.service.UpdateRoom(r.Context(), r.PathValue("rid"), update)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

func (h *AdminHandler) SetMembershipHandler(w http.ResponseWriter, r *http.Request) {
	var req RolesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.service.SetMembershipRoles(r.Context(), r.PathValue("rid"), r.PathValue("uid"), req.Roles); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.APIResponse{Success: true})
}

func (h *AdminHandler) UpsertRoleHandler(w http.ResponseWriter, r *http.Request) {
	var role models.Role
	if err := json.NewDecoder(r.Body).Decode(&role); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	role.ID = r.PathValue("id")

	if err := h.service.UpsertRole(r.Context(), role); err != nil {
		writeJSON(w, http.StatusBadRequest, models.APIResponse{Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, role)
}

func (h *AdminHandler) GrantPermissionHandler(w http.ResponseWriter, r *http.Request) {
	var req RolesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	p := models.Permission{ID: r.PathValue("id"), Roles: req.Roles}
	if err := h.service.GrantPermission(r.Context(), p); err != nil {
		writeJSON(w, http.StatusBadRequest, models.APIResponse{Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, p)
}
