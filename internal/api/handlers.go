package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"roominfo/internal/auth"
	"roominfo/internal/filestore"
	"roominfo/internal/logger"
	"roominfo/internal/models"
	"roominfo/internal/service"
	"roominfo/internal/storage"

	"github.com/google/uuid"
	"github.com/h2non/filetype"
)

const maxAvatarSize = 2 << 20

type fileMetadataStore interface {
	UpsertFileMetadata(meta storage.FileMetadata) error
	GetFileMetadata(id string) (storage.FileMetadata, error)
}

type API struct {
	auth    *auth.AuthService
	service *service.Service
	files   filestore.FileStore
	meta    fileMetadataStore
	views   Presenter
	// origin is the scheme and host clients reach the API at, if known
	origin string
}

func New(auth *auth.AuthService, service *service.Service, files filestore.FileStore, meta fileMetadataStore, views Presenter, baseURL string) *API {
	a := &API{auth: auth, service: service, files: files, meta: meta, views: views}
	if u, err := url.Parse(baseURL); err == nil && u.Host != "" {
		a.origin = u.Scheme + "://" + u.Host
	}
	return a
}

func (a *API) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginRequest

	// JSON for API clients, form values for plain HTML forms
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Failed to parse form", http.StatusBadRequest)
			return
		}
		req.Username = r.FormValue("username")
		req.Password = r.FormValue("password")
	}

	loginResp, userID := a.auth.Login(req)
	if !loginResp.Success {
		writeJSON(w, http.StatusUnauthorized, loginResp)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "token",
		Value:    loginResp.Token,
		HttpOnly: true,
		Path:     "/",
		SameSite: http.SameSiteStrictMode,
		Expires:  time.Unix(loginResp.TokenExpiry, 0),
	})

	slog.Info("user logged in", "user_id", userID)
	writeJSON(w, http.StatusOK, loginResp)
}

func getToken(r *http.Request) string {
	token := r.Header.Get("token")
	if token == "" {
		if c, err := r.Cookie("token"); err == nil {
			token = c.Value
		}
	}
	return token
}

func (a *API) LogoffHandler(w http.ResponseWriter, r *http.Request) {
	if token := getToken(r); token != "" {
		_ = a.auth.Logoff(token)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "token",
		Value:    "",
		HttpOnly: true,
		Path:     "/",
		MaxAge:   -1,
	})

	w.WriteHeader(http.StatusOK)
}

type userIDKey struct{}

// GetUserID resolves a session token to the id of an active user. Sessions
// of deleted users are revoked.
func (a *API) GetUserID(token string) (string, error) {
	userID, err := a.auth.GetUserID(token)
	if err != nil {
		return "", err
	}
	if _, err := a.service.GetUserInfo(context.Background(), userID); err != nil {
		_ = a.auth.Logoff(token)
		return "", err
	}
	return userID, nil
}

// RequireAuth rejects requests without a live session token and stores the
// user id in the request context.
func (a *API) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := a.GetUserID(getToken(r))
		if err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), userIDKey{}, userID)
		ctx = logger.WithFields(ctx, logger.Fields{UserID: userID})
		next(w, r.WithContext(ctx))
	}
}

// RequireSameOrigin rejects cross-site browser requests. The Origin header
// must name the request host or the configured base URL. Requests without
// Origin and Sec-Fetch-Site come from non-browser clients and pass.
func (a *API) RequireSameOrigin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" {
			if !a.allowedOrigin(origin, r.Host) {
				slog.WarnContext(r.Context(), "cross-origin request rejected", "origin", origin, "path", r.URL.Path)
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}
		} else if site := r.Header.Get("Sec-Fetch-Site"); site != "" && site != "same-origin" && site != "none" {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		next(w, r)
	}
}

func (a *API) allowedOrigin(origin, host string) bool {
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	if strings.EqualFold(u.Host, host) {
		return true
	}
	return a.origin != "" && strings.EqualFold(u.Scheme+"://"+u.Host, a.origin)
}

// UserID returns the id of the authenticated user of the request.
func UserID(ctx context.Context) string {
	userID, _ := ctx.Value(userIDKey{}).(string)
	return userID
}

func (a *API) MeHandler(w http.ResponseWriter, r *http.Request) {
	user, err := a.service.GetUserInfo(r.Context(), UserID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// RoomInfoHandler resolves a room info view once and returns it.
func (a *API) RoomInfoHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	roomID := r.PathValue("rid")
	ctx = logger.WithFields(ctx, logger.Fields{RoomID: roomID})

	nav, err := a.service.Navigation(ctx, UserID(ctx), roomID, models.RoomType(r.URL.Query().Get("t")))
	if err != nil {
		writeError(w, r, err)
		return
	}

	resolver := a.service.Resolver(UserID(ctx), nil)
	resolver.Activate(ctx, nav)
	resolver.Wait()
	view := resolver.Current()
	resolver.Deactivate()

	writeJSON(w, http.StatusOK, a.views.Present(view))
}

func (a *API) UpdateRoomHandler(w http.ResponseWriter, r *http.Request) {
	var update service.RoomUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	room, err := a.service.UpdateRoomAs(r.Context(), UserID(r.Context()), r.PathValue("rid"), update)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

type CreateDMRequest struct {
	Username string `json:"username"`
}

func (a *API) CreateDMHandler(w http.ResponseWriter, r *http.Request) {
	var req CreateDMRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	room, err := a.service.CreateDirectMessage(r.Context(), UserID(r.Context()), req.Username)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

type UpdateStatusRequest struct {
	StatusText string `json:"statusText"`
}

func (a *API) UpdateStatusHandler(w http.ResponseWriter, r *http.Request) {
	var req UpdateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.StatusText) > 120 {
		http.Error(w, "Status text is too long", http.StatusBadRequest)
		return
	}

	user, err := a.service.SetStatusText(r.Context(), UserID(r.Context()), strings.TrimSpace(req.StatusText))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// UploadAvatarHandler accepts an image either as the "avatar" field of a
// multipart form or as the raw request body.
func (a *API) UploadAvatarHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, maxAvatarSize)

	var body io.Reader = r.Body
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		file, _, err := r.FormFile("avatar")
		if err != nil {
			http.Error(w, "Missing avatar file", http.StatusBadRequest)
			return
		}
		defer func() { _ = file.Close() }()
		body = file
	}

	head := make([]byte, 261)
	n, err := io.ReadFull(body, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		http.Error(w, "Failed to read upload", http.StatusBadRequest)
		return
	}
	head = head[:n]

	kind, err := filetype.Match(head)
	if err != nil || !filetype.IsImage(head) {
		http.Error(w, "Unsupported image type", http.StatusUnsupportedMediaType)
		return
	}

	hash, size, err := a.files.Put(io.MultiReader(bytes.NewReader(head), body))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "Avatar is too large", http.StatusRequestEntityTooLarge)
			return
		}
		slog.ErrorContext(ctx, "failed to store avatar", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	userID := UserID(ctx)
	meta := storage.FileMetadata{
		ID:        uuid.NewString(),
		Hash:      hash,
		MimeType:  kind.MIME.Value,
		Size:      size,
		CreatedAt: time.Now().Unix(),
		UserID:    userID,
	}
	if err := a.meta.UpsertFileMetadata(meta); err != nil {
		slog.ErrorContext(ctx, "failed to save file metadata", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	user, err := a.service.SetAvatarURL(ctx, userID, "/api/images/"+meta.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (a *API) GetImageHandler(w http.ResponseWriter, r *http.Request) {
	meta, err := a.meta.GetFileMetadata(r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	rc, err := a.files.Open(meta.Hash)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer func() { _ = rc.Close() }()

	w.Header().Set("Content-Type", meta.MimeType)
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	if _, err := io.Copy(w, rc); err != nil {
		slog.ErrorContext(r.Context(), "failed to send image", "id", meta.ID, "error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// writeError maps domain errors to HTTP statuses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, models.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, service.ErrInvalidRoom), errors.Is(err, service.ErrInvalidUsername),
		errors.Is(err, auth.ErrUserExists):
		status = http.StatusBadRequest
	}

	message := http.StatusText(status)
	if status == http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	} else {
		message = err.Error()
	}
	writeJSON(w, status, models.APIResponse{Success: false, Message: message})
}
