package gateway

import "net/http"

// registerHTTPRoutes sets up all HTTP routes on the server mux.
func (s *Server) registerHTTPRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/history", s.handleHistory)

	mux.HandleFunc("GET /api/{kind}", s.handleList)
	mux.HandleFunc("GET /api/{kind}/names/{name}", s.handleGetByName)
	mux.HandleFunc("GET /api/{kind}/types/{type...}", s.handleGetByType)
	mux.HandleFunc("DELETE /api/{kind}/names/{name}", s.requireToken(s.handleRemove))
	mux.HandleFunc("POST /api/{kind}/reload", s.requireToken(s.handleReload))

	mux.HandleFunc("GET /ws/events", s.requireStreamToken(s.handleEvents))

	// Catch-all for unknown routes
	mux.HandleFunc("/", handleNotFound)
}
