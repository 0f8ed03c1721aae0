// Package handler exposes the HTTP API.
package handler

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"devspace-backend/devspace"
	"devspace-backend/entity"
	"devspace-backend/errs"
	"devspace-backend/jwt"
	"devspace-backend/log"
	"devspace-backend/profile"
	"devspace-backend/search"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type Devspace interface {
	Join(ctx context.Context, userID primitive.ObjectID) (*entity.User, *entity.Devspace, error)
	Send(ctx context.Context, senderID, receiverID primitive.ObjectID) error
	Cancel(ctx context.Context, senderID, receiverID primitive.ObjectID) error
	Accept(ctx context.Context, userID, invitationID primitive.ObjectID) ([]primitive.ObjectID, error)
	Reject(ctx context.Context, userID, invitationID primitive.ObjectID) error
	Info(ctx context.Context, userID primitive.ObjectID) (*entity.DevspaceInfo, error)
	Leave(ctx context.Context, userID primitive.ObjectID) error
	SetIdea(ctx context.Context, userID primitive.ObjectID, idea entity.Idea) (*entity.Devspace, error)
}

type Profiles interface {
	Save(ctx context.Context, in *entity.User) error
	SetStatus(ctx context.Context, userID primitive.ObjectID, content, duration string, expiration time.Time) (*entity.Status, error)
	GetStatus(ctx context.Context, userID primitive.ObjectID) (*profile.StatusView, error)
	Community(ctx context.Context) ([]profile.CommunityUser, error)
	Me(ctx context.Context, userID primitive.ObjectID) (*entity.User, error)
}

type Searcher interface {
	Search(ctx context.Context, userID primitive.ObjectID, query string) ([]search.Result, error)
}

type Uploader interface {
	PhotoURL(ctx context.Context, fileName, fileType string) (string, string, error)
}

var _ Devspace = (*devspace.Engine)(nil)

type Deps struct {
	Devspace Devspace
	Profiles Profiles
	Search   Searcher
	Uploads  Uploader
	// Socket serves the push channel under /socket.io/ when set.
	Socket http.Handler
	// Health reports whether the backing store is reachable.
	Health func(ctx context.Context) error

	JWTKey         []byte
	AllowedOrigins []string
}

func NewRouter(d Deps) http.Handler {
	r := mux.NewRouter()
	r.Use(accessLog)

	r.HandleFunc("/health", healthHandler(d.Health)).Methods(http.MethodGet)
	if d.Socket != nil {
		r.PathPrefix("/socket.io/").Handler(d.Socket)
	}

	api := r.PathPrefix("/api").Subrouter()
	if len(d.JWTKey) > 0 {
		api.Use(jwt.Middleware(d.JWTKey, writeRequestError))
	}

	ds := &devspaceHandler{devspace: d.Devspace}
	api.HandleFunc("/devspace/join", ds.Join).Methods(http.MethodPost)
	api.HandleFunc("/devspace/send-invitation", ds.SendInvitation).Methods(http.MethodPost)
	api.HandleFunc("/devspace/cancel-invitation", ds.CancelInvitation).Methods(http.MethodPost)
	api.HandleFunc("/devspace/accept-invitation", ds.AcceptInvitation).Methods(http.MethodPost)
	api.HandleFunc("/devspace/reject-invitation", ds.RejectInvitation).Methods(http.MethodPost)
	api.HandleFunc("/devspace/info/{userId}", ds.Info).Methods(http.MethodGet)
	api.HandleFunc("/devspace/leave", ds.Leave).Methods(http.MethodPost)
	api.HandleFunc("/devspace/idea", ds.SetIdea).Methods(http.MethodPatch)

	us := &userHandler{profiles: d.Profiles, search: d.Search}
	api.HandleFunc("/user/save", us.Save).Methods(http.MethodPatch)
	api.HandleFunc("/user/search", us.Search).Methods(http.MethodPost)
	api.HandleFunc("/user/status", us.SetStatus).Methods(http.MethodPatch)
	api.HandleFunc("/user/status/{userId}", us.GetStatus).Methods(http.MethodGet)
	api.HandleFunc("/user/community", us.Community).Methods(http.MethodGet)
	api.HandleFunc("/user/me", us.Me).Methods(http.MethodGet)

	if d.Uploads != nil {
		up := &uploadHandler{uploads: d.Uploads}
		api.HandleFunc("/upload/photo-url", up.PhotoURL).Methods(http.MethodPost)
	}

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, errs.ErrNotFound)
	})

	return cors.New(cors.Options{
		AllowedOrigins:   d.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	}).Handler(r)
}

// authorize refuses to act for userID when a verified token names someone else.
func authorize(r *http.Request, userID primitive.ObjectID) error {
	if tokenID, ok := jwt.UserIDFromContext(r.Context()); ok && tokenID != userID {
		return errs.ErrForbidden
	}
	return nil
}

// bodyUser parses a user id from the request body and authorizes it.
func bodyUser(r *http.Request, hex string) (primitive.ObjectID, error) {
	id, err := parseID(hex)
	if err != nil {
		return id, err
	}
	return id, authorize(r, id)
}

func healthHandler(ping func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ping != nil {
			if err := ping(r.Context()); err != nil {
				log.Logger.Warn("health check failed", zap.Error(err))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("hijacking not supported")
	}
	return h.Hijack()
}

func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := uuid.NewString()
		w.Header().Set("X-Request-ID", requestID)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		log.Logger.Debug("request",
			zap.String("requestID", requestID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}
