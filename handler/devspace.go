package handler

import (
	"net/http"

	"devspace-backend/entity"
	"devspace-backend/log"
	"github.com/gorilla/mux"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type devspaceHandler struct {
	devspace Devspace
}

type userRequest struct {
	UserID string `json:"userId"`
}

type invitationRequest struct {
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
	UserID     string `json:"userId"`
}

type resolveRequest struct {
	UserID       string `json:"userId"`
	InvitationID string `json:"invitationId"`
}

type ideaRequest struct {
	UserID      string `json:"userId"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

type joinResponse struct {
	User     *entity.User     `json:"user"`
	Devspace *entity.Devspace `json:"devspace"`
}

type acceptResponse struct {
	Message string               `json:"message"`
	Team    []primitive.ObjectID `json:"team"`
}

type devspaceResponse struct {
	Devspace *entity.Devspace `json:"devspace"`
}

func (h *devspaceHandler) Join(w http.ResponseWriter, r *http.Request) {
	req := userRequest{}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	userID, err := bodyUser(r, req.UserID)
	if err != nil {
		writeError(w, err)
		return
	}

	user, rec, err := h.devspace.Join(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, joinResponse{User: user, Devspace: rec})
}

func (h *devspaceHandler) SendInvitation(w http.ResponseWriter, r *http.Request) {
	req := invitationRequest{}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	senderID, err := bodyUser(r, req.SenderID)
	if err != nil {
		writeError(w, err)
		return
	}
	receiverID, err := parseID(req.ReceiverID)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.devspace.Send(r.Context(), senderID, receiverID); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "Invitation sent"})
}

// CancelInvitation withdraws the invitation userId sent to receiverId.
func (h *devspaceHandler) CancelInvitation(w http.ResponseWriter, r *http.Request) {
	req := invitationRequest{}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	senderID, err := bodyUser(r, req.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	receiverID, err := parseID(req.ReceiverID)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.devspace.Cancel(r.Context(), senderID, receiverID); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "Invitation cancelled"})
}

func (h *devspaceHandler) AcceptInvitation(w http.ResponseWriter, r *http.Request) {
	req := resolveRequest{}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	userID, err := bodyUser(r, req.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	invitationID, err := parseID(req.InvitationID)
	if err != nil {
		writeError(w, err)
		return
	}

	team, err := h.devspace.Accept(r.Context(), userID, invitationID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, acceptResponse{Message: "Invitation accepted", Team: team})
}

func (h *devspaceHandler) RejectInvitation(w http.ResponseWriter, r *http.Request) {
	req := resolveRequest{}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	userID, err := bodyUser(r, req.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	invitationID, err := parseID(req.InvitationID)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.devspace.Reject(r.Context(), userID, invitationID); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "Invitation rejected"})
}

func (h *devspaceHandler) Info(w http.ResponseWriter, r *http.Request) {
	userID, err := parseID(mux.Vars(r)["userId"])
	if err != nil {
		writeError(w, err)
		return
	}

	info, err := h.devspace.Info(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, info)
}

func (h *devspaceHandler) Leave(w http.ResponseWriter, r *http.Request) {
	req := userRequest{}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	userID, err := bodyUser(r, req.UserID)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.devspace.Leave(r.Context(), userID); err != nil {
		writeError(w, err)
		return
	}

	log.Logger.Debug("left devspace", zap.String("userID", userID.Hex()))
	writeJSON(w, http.StatusOK, messageResponse{Message: "Left devspace"})
}

func (h *devspaceHandler) SetIdea(w http.ResponseWriter, r *http.Request) {
	req := ideaRequest{}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	userID, err := bodyUser(r, req.UserID)
	if err != nil {
		writeError(w, err)
		return
	}

	rec, err := h.devspace.SetIdea(r.Context(), userID, entity.Idea{Title: req.Title, Description: req.Description})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, devspaceResponse{Devspace: rec})
}
