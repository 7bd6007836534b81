/**
 * @description
 * This file sets up the HTTP router for the tree-adoption service. It defines the
 * API endpoints, associates them with their handlers, and applies the shared
 * middleware stack.
 *
 * @dependencies
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 * - github.com/go-chi/cors: CORS handling for the browser client.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/Samarth40/tree-adoption-sub000/internal/metrics"
)

// RouterConfig holds the router-level settings.
type RouterConfig struct {
	AllowedOrigins []string
	Metrics        *metrics.Metrics
}

// Routes creates and returns the service router.
func Routes(h *Handlers, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	allowed := cfg.AllowedOrigins
	if len(allowed) == 0 {
		allowed = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowed,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", sessionHeader, "Idempotency-Key"},
		MaxAge:         300,
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cfg.Metrics.Middleware)

	r.Get("/health", h.HealthHandler)
	r.Handle("/metrics", cfg.Metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/create-payment-intent", h.CreatePaymentIntentHandler)
		r.Post("/webhooks/stripe", h.StripeWebhookHandler)
		r.Post("/gate", h.GateHandler)
		r.Get("/plans", h.ListPlansHandler)

		r.Get("/trees", h.ListTreesHandler)
		r.Get("/trees/{treeID}", h.GetTreeHandler)
		r.Post("/trees/{treeID}/insight", h.TreeInsightHandler)

		r.Get("/community", h.CommunityFeedHandler)
		r.Get("/community/stories/{storyID}", h.GetStoryHandler)
		r.Get("/community/discussions/{discussionID}/replies", h.ListRepliesHandler)

		r.Post("/session", h.CreateSessionHandler)

		// Routes that need a resolved session.
		r.Group(func(r chi.Router) {
			r.Use(SessionMiddleware(h.sessions))

			r.Get("/session", h.GetSessionHandler)
			r.Delete("/session", h.DeleteSessionHandler)

			r.Post("/checkout", h.StartCheckoutHandler)
			r.Post("/checkout/{checkoutID}/confirm", h.ConfirmCheckoutHandler)

			r.Get("/me/adoptions", h.MyAdoptionsHandler)
			r.Post("/me/adoptions/{adoptionID}/nft", h.AttachNFTHandler)
			r.Get("/me/stats", h.MyStatsHandler)
			r.Get("/me/profile", h.GetProfileHandler)
			r.Put("/me/profile", h.UpdateProfileHandler)

			r.Post("/community/stories", h.CreateStoryHandler)
			r.Delete("/community/stories/{storyID}", h.DeleteStoryHandler)
			r.Post("/community/stories/{storyID}/like", h.ToggleStoryLikeHandler)
			r.Post("/community/stories/{storyID}/comments", h.AddCommentHandler)
			r.Delete("/community/stories/{storyID}/comments/{commentID}", h.DeleteCommentHandler)

			r.Post("/community/events", h.CreateEventHandler)
			r.Delete("/community/events/{eventID}", h.DeleteEventHandler)
			r.Post("/community/events/{eventID}/participation", h.ToggleParticipationHandler)

			r.Post("/community/discussions", h.CreateDiscussionHandler)
			r.Post("/community/discussions/{discussionID}/like", h.ToggleDiscussionLikeHandler)
			r.Post("/community/discussions/{discussionID}/replies", h.AddReplyHandler)
		})
	})

	return r
}
