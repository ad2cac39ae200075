package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/onnwee/chat-moderator/backend/db"
	"github.com/onnwee/chat-moderator/backend/telemetry"
)

// UserLists manages the operator's friends and undesirables. *db.UserLists implements it.
type UserLists interface {
	AddFriend(ctx context.Context, identity string) (bool, error)
	AddUndesirable(ctx context.Context, identity, reason string) (bool, error)
	RemoveFriend(ctx context.Context, identity string) (bool, error)
	RemoveUndesirable(ctx context.Context, identity string) (bool, error)
	Friends(ctx context.Context) ([]db.ListedUser, error)
	Undesirables(ctx context.Context) ([]db.ListedUser, error)
	SearchUsers(ctx context.Context, query string) ([]db.UserMatch, error)
}

const usersPrefix = "/admin/users/"

type addUserRequest struct {
	Identity string `json:"identity"`
	Reason   string `json:"reason"`
}

// HandleAdminUsers serves the friends and undesirables lists:
//
//	GET    /admin/users/friends | /admin/users/undesirables
//	POST   /admin/users/friends | /admin/users/undesirables   {"identity":"...","reason":"..."}
//	DELETE /admin/users/friends/{identity} | /admin/users/undesirables/{identity}
//	GET    /admin/users/search?q=...
func (h *Handlers) HandleAdminUsers(w http.ResponseWriter, r *http.Request) {
	if h.deps.Users == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "user lists require a database"})
		return
	}
	list, identity, _ := strings.Cut(strings.TrimPrefix(r.URL.Path, usersPrefix), "/")

	switch list {
	case "search":
		h.searchUsers(w, r)
	case "friends", "undesirables":
		switch {
		case r.Method == http.MethodGet && identity == "":
			h.listUsers(w, r, list)
		case r.Method == http.MethodPost && identity == "":
			h.addUser(w, r, list)
		case r.Method == http.MethodDelete && identity != "":
			h.removeUser(w, r, list, identity)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	default:
		http.NotFound(w, r)
	}
}

func (h *Handlers) listUsers(w http.ResponseWriter, r *http.Request, list string) {
	var (
		users []db.ListedUser
		err   error
	)
	if list == "friends" {
		users, err = h.deps.Users.Friends(r.Context())
	} else {
		users, err = h.deps.Users.Undesirables(r.Context())
	}
	if err != nil {
		h.usersError(w, r, "list "+list, err)
		return
	}
	if users == nil {
		users = []db.ListedUser{}
	}
	writeJSON(w, http.StatusOK, map[string]any{list: users})
}

func (h *Handlers) addUser(w http.ResponseWriter, r *http.Request, list string) {
	var req addUserRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	req.Identity = strings.TrimSpace(req.Identity)
	if req.Identity == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "identity is required"})
		return
	}
	var (
		added bool
		err   error
	)
	if list == "friends" {
		added, err = h.deps.Users.AddFriend(r.Context(), req.Identity)
	} else {
		added, err = h.deps.Users.AddUndesirable(r.Context(), req.Identity, strings.TrimSpace(req.Reason))
	}
	if err != nil {
		h.usersError(w, r, "add to "+list, err)
		return
	}
	telemetry.LoggerWithCorr(r.Context()).Info("user list updated",
		slog.String("list", list), slog.String("identity", req.Identity), slog.Bool("added", added))
	writeJSON(w, http.StatusOK, map[string]bool{"added": added})
}

func (h *Handlers) removeUser(w http.ResponseWriter, r *http.Request, list, identity string) {
	var (
		removed bool
		err     error
	)
	if list == "friends" {
		removed, err = h.deps.Users.RemoveFriend(r.Context(), identity)
	} else {
		removed, err = h.deps.Users.RemoveUndesirable(r.Context(), identity)
	}
	if err != nil {
		h.usersError(w, r, "remove from "+list, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"removed": removed})
}

func (h *Handlers) searchUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "search query is required"})
		return
	}
	users, err := h.deps.Users.SearchUsers(r.Context(), q)
	if err != nil {
		h.usersError(w, r, "search users", err)
		return
	}
	if users == nil {
		users = []db.UserMatch{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (h *Handlers) usersError(w http.ResponseWriter, r *http.Request, op string, err error) {
	telemetry.LoggerWithCorr(r.Context()).Error("user lists request failed", slog.String("op", op), slog.Any("err", err))
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to " + op})
}
