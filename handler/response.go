package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"devspace-backend/errs"
	"devspace-backend/log"
	"devspace-backend/ratelimit"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

var statuses = []struct {
	err    error
	status int
}{
	{errs.ErrNotFound, http.StatusNotFound},
	{errs.ErrInvalidArgument, http.StatusBadRequest},
	{errs.ErrInvalidID, http.StatusBadRequest},
	{errs.ErrCapacityExceeded, http.StatusBadRequest},
	{errs.ErrAlreadyInvited, http.StatusBadRequest},
	{errs.ErrAlreadyExists, http.StatusBadRequest},
	{errs.ErrSelfInvite, http.StatusBadRequest},
	{errs.ErrStatusRequired, http.StatusBadRequest},
	{errs.ErrMissingUploadField, http.StatusBadRequest},
	{errs.ErrConflict, http.StatusConflict},
	{errs.ErrUnauthorized, http.StatusUnauthorized},
	{errs.ErrJWT, http.StatusUnauthorized},
	{errs.ErrTokenExpired, http.StatusUnauthorized},
	{errs.ErrForbidden, http.StatusForbidden},
	{errs.ErrNotImplemented, http.StatusNotImplemented},
	{errs.ErrEmbedding, http.StatusInternalServerError},
	{errs.ErrUpload, http.StatusInternalServerError},
	{errs.ErrQueue, http.StatusInternalServerError},
	{errs.ErrDatabase, http.StatusInternalServerError},
}

type errorResponse struct {
	Error             string `json:"error"`
	RemainingCooldown int64  `json:"remainingCooldown,omitempty"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Logger.Debug("writing response failed", zap.Error(err))
	}
}

// writeError maps err onto a status code. Only the sentinel's message is
// sent; anything unrecognised is logged and reported as a database error.
func writeError(w http.ResponseWriter, err error) {
	var cerr *ratelimit.CooldownError
	if errors.As(err, &cerr) {
		writeJSON(w, http.StatusTooManyRequests, errorResponse{
			Error:             errs.ErrCooldown.Error(),
			RemainingCooldown: cerr.Remaining.Milliseconds(),
		})
		return
	}

	for _, s := range statuses {
		if errors.Is(err, s.err) {
			if s.status >= http.StatusInternalServerError {
				log.Logger.Error("request failed", zap.Error(err))
			}
			writeJSON(w, s.status, errorResponse{Error: s.err.Error()})
			return
		}
	}

	log.Logger.Error("unexpected error", zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: errs.ErrDatabase.Error()})
}

func writeRequestError(w http.ResponseWriter, _ *http.Request, err error) {
	writeError(w, err)
}

func decode(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		log.Logger.Debug("invalid request body", zap.Error(err))
		return errs.ErrInvalidArgument
	}
	return nil
}

func parseID(s string) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(s)
	if err != nil {
		return primitive.NilObjectID, errs.ErrInvalidID
	}
	return id, nil
}
