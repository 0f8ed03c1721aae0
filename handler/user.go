package handler

import (
	"net/http"
	"time"

	"devspace-backend/entity"
	"devspace-backend/errs"
	"devspace-backend/jwt"
	"github.com/gorilla/mux"
)

type userHandler struct {
	profiles Profiles
	search   Searcher
}

type saveRequest struct {
	User *entity.User `json:"user"`
}

type searchRequest struct {
	UserID string `json:"userId"`
	Query  string `json:"query"`
}

type statusRequest struct {
	UserID         string     `json:"userId"`
	Status         string     `json:"status"`
	Duration       string     `json:"duration"`
	ExpirationDate *time.Time `json:"expirationDate"`
}

func (h *userHandler) Save(w http.ResponseWriter, r *http.Request) {
	req := saveRequest{}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.User == nil || req.User.ID.IsZero() {
		writeError(w, errs.ErrInvalidID)
		return
	}
	if err := authorize(r, req.User.ID); err != nil {
		writeError(w, err)
		return
	}

	if err := h.profiles.Save(r.Context(), req.User); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, messageResponse{Message: "User data has been saved"})
}

func (h *userHandler) Search(w http.ResponseWriter, r *http.Request) {
	req := searchRequest{}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	userID, err := bodyUser(r, req.UserID)
	if err != nil {
		writeError(w, err)
		return
	}

	res, err := h.search.Search(r.Context(), userID, req.Query)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

func (h *userHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	req := statusRequest{}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	userID, err := bodyUser(r, req.UserID)
	if err != nil {
		writeError(w, err)
		return
	}

	var expiration time.Time
	if req.ExpirationDate != nil {
		expiration = *req.ExpirationDate
	}
	if _, err := h.profiles.SetStatus(r.Context(), userID, req.Status, req.Duration, expiration); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, messageResponse{Message: "User status has been saved"})
}

func (h *userHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	userID, err := parseID(mux.Vars(r)["userId"])
	if err != nil {
		writeError(w, err)
		return
	}

	view, err := h.profiles.GetStatus(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, view)
}

func (h *userHandler) Community(w http.ResponseWriter, r *http.Request) {
	users, err := h.profiles.Community(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, users)
}

// Me returns the caller's profile: the token's user, or the userId query
// parameter when tokens are not verified.
func (h *userHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := jwt.UserIDFromContext(r.Context())
	if !ok {
		var err error
		if userID, err = parseID(r.URL.Query().Get("userId")); err != nil {
			writeError(w, errs.ErrUnauthorized)
			return
		}
	}

	u, err := h.profiles.Me(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, u)
}
