package api

import (
	"log/slog"
	"net/url"

	"roominfo/internal/content"
	"roominfo/internal/models"
	"roominfo/internal/roominfo"
)

// Presenter renders resolver view models for clients.
type Presenter struct {
	UseRealName  bool
	JitsiBaseURL string
}

func (p Presenter) Present(view roominfo.ViewModel) models.RoomInfoView {
	out := models.RoomInfoView{
		Mode:     string(view.Mode),
		Title:    roominfo.RoomTitle(view.Room, p.UseRealName),
		Icon:     roominfo.IconType(view.Room),
		Room:     view.Room,
		ShowEdit: view.ShowEdit,
	}
	if view.ShowEdit {
		out.EditTarget = roominfo.EditTarget
	}

	if view.Mode != roominfo.ModeDirect || view.User.IsEmpty() {
		return out
	}

	user := &models.UserView{
		User:  view.User,
		Title: roominfo.UserTitle(view.User, p.UseRealName),
	}
	if view.User.StatusText != "" {
		html, err := content.RenderStatus(view.User.StatusText)
		if err != nil {
			slog.Warn("failed to render status", "user_id", view.User.ID, "error", err)
			html = content.Escape(view.User.StatusText)
		}
		user.StatusHTML = html
	}
	out.User = user
	out.Title = user.Title

	if view.Room.ID != "" {
		out.Actions = &models.DirectActions{RoomID: view.Room.ID}
		if p.JitsiBaseURL != "" {
			out.Actions.VideoCallURL = p.JitsiBaseURL + "/" + url.PathEscape(view.Room.ID)
		}
	}
	return out
}
