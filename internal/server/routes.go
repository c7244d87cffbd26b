package server

import (
	"net/http"

	"github.com/ternarybob/salonpress/internal/handlers"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket route
	mux.HandleFunc("/ws/progress", s.app.WSHandler.HandleWebSocket)

	// API routes - Posts
	mux.HandleFunc("/api/posts", s.handlePostsRoute)  // GET (list by user), POST (create)
	mux.HandleFunc("/api/posts/", s.handlePostRoutes) // /{id} and /{id}/{action}

	// API routes - Portal accounts
	mux.HandleFunc("/api/accounts/", s.handleAccountRoutes) // GET/PUT/DELETE /{user}

	// API routes - Salon lookups
	mux.HandleFunc("/api/salon/stylists", s.app.SalonHandler.StylistsHandler)
	mux.HandleFunc("/api/salon/coupons", s.app.SalonHandler.CouponsHandler)

	// API routes - System
	mux.HandleFunc("/api/health", s.app.HealthHandler.HealthHandler)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", notFound)

	return mux
}

func (s *Server) handlePostsRoute(w http.ResponseWriter, r *http.Request) {
	RouteResourceCollection(w, r, s.app.PostHandler.ListPostsHandler, s.app.PostHandler.CreatePostHandler)
}

// handlePostRoutes routes /api/posts/{id}[/{action}]
func (s *Server) handlePostRoutes(w http.ResponseWriter, r *http.Request) {
	segments := handlers.PathSegments(r, "/api/posts/")
	h := s.app.PostHandler

	switch {
	case len(segments) == 1:
		h.GetPostHandler(w, r, segments[0])
	case len(segments) == 2:
		postID := segments[0]
		switch segments[1] {
		case "generate":
			h.GenerateHandler(w, r, postID)
		case "publish":
			h.PublishHandler(w, r, postID)
		case "select":
			h.SelectHandler(w, r, postID)
		case "attempts":
			h.AttemptsHandler(w, r, postID)
		default:
			notFound(w, r)
		}
	default:
		notFound(w, r)
	}
}

func (s *Server) handleAccountRoutes(w http.ResponseWriter, r *http.Request) {
	segments := handlers.PathSegments(r, "/api/accounts/")
	if len(segments) != 1 {
		notFound(w, r)
		return
	}
	s.app.AccountHandler.AccountHandler(w, r, segments[0])
}

func notFound(w http.ResponseWriter, r *http.Request) {
	handlers.WriteError(w, http.StatusNotFound, "Not found: "+r.URL.Path)
}
