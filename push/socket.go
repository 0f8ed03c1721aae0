package push

import (
	"errors"

	"devspace-backend/log"
	socketio "github.com/googollee/go-socket.io"
	"go.uber.org/zap"
)

var errMissingUser = errors.New("userId query parameter is required")

// NewSocketServer registers connections with hub under the userId handshake
// query parameter and removes them on disconnect.
func NewSocketServer(hub *Hub) *socketio.Server {
	server := socketio.NewServer(nil)

	server.OnConnect("/", func(s socketio.Conn) error {
		u := s.URL()
		userID := u.Query().Get("userId")
		if userID == "" {
			log.Logger.Debug("rejecting socket without user", zap.String("socketID", s.ID()))
			return errMissingUser
		}

		s.SetContext(userID)
		hub.Set(userID, s)
		log.Logger.Debug("socket connected", zap.String("userID", userID), zap.String("socketID", s.ID()))
		return nil
	})

	server.OnDisconnect("/", func(s socketio.Conn, reason string) {
		userID, _ := s.Context().(string)
		if userID == "" {
			return
		}

		hub.Remove(userID, s)
		log.Logger.Debug("socket disconnected", zap.String("userID", userID), zap.String("reason", reason))
	})

	server.OnError("/", func(s socketio.Conn, err error) {
		log.Logger.Debug("socket error", zap.Error(err))
	})

	return server
}
