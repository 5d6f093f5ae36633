package gateway

import (
	"net/http"
)

const eventBuffer = 64

// handleEvents upgrades to a websocket and streams hook events as frames
// after an initial hello.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.hooks == nil {
		writeError(w, http.StatusServiceUnavailable, "event stream not available")
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := newClient(conn, r.RemoteAddr, s.log)
	events, unsubscribe := s.hooks.Subscribe(eventBuffer)
	s.clients.Add(client)
	defer func() {
		unsubscribe()
		s.clients.Remove(client.ConnID)
		client.Close()
	}()

	if err := client.Send(NewHello(client.ConnID, s.version)); err != nil {
		s.log.Debug().Err(err).Str("connId", client.ConnID).Msg("hello failed")
		return
	}
	client.stream(events)
}
