package httpapi

import (
	"net/http"

	"github.com/cherishly/cherishly/internal/logging"
	"github.com/cherishly/cherishly/internal/ratelimit"
	"github.com/cherishly/cherishly/internal/server/config"
	"github.com/cherishly/cherishly/internal/server/services"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

type Handler struct {
	users       *services.UserService
	allowance   *services.AllowanceService
	suggestions *services.SuggestionService
	people      *services.PeopleService
	moments     *services.MomentService
	sync        *services.SyncService
	match       *services.MatchService
	merge       *services.MergeService

	limiter   ratelimit.Limiter
	jwtSecret []byte
	logger    logging.Logger
}

type Services struct {
	Users       *services.UserService
	Allowance   *services.AllowanceService
	Suggestions *services.SuggestionService
	People      *services.PeopleService
	Moments     *services.MomentService
	Sync        *services.SyncService
	Match       *services.MatchService
	Merge       *services.MergeService
}

func NewRouter(svc Services, limiter ratelimit.Limiter, cfg *config.Config, logger logging.Logger) http.Handler {
	h := &Handler{
		users:       svc.Users,
		allowance:   svc.Allowance,
		suggestions: svc.Suggestions,
		people:      svc.People,
		moments:     svc.Moments,
		sync:        svc.Sync,
		match:       svc.Match,
		merge:       svc.Merge,
		limiter:     limiter,
		jwtSecret:   []byte(cfg.SecretKey),
		logger:      logger,
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)

	r.Route("/api", func(api chi.Router) {
		api.With(h.rateLimit).Post("/register", h.handleRegister)
		api.With(h.rateLimit).Post("/login", h.handleLogin)

		api.Group(func(authed chi.Router) {
			authed.Use(h.authenticate, h.rateLimit)

			authed.Get("/allowance", h.handleGetAllowance)
			authed.Post("/allowance/admin", h.handleSetAllowance)
			authed.Post("/plan", h.handleSetPlan)
			authed.Post("/suggestions", h.handleSuggest)

			authed.Get("/people", h.handleListPeople)
			authed.Post("/people", h.handleCreatePerson)
			authed.Get("/people/{id}", h.handleGetPerson)
			authed.Put("/people/{id}", h.handleUpdatePerson)
			authed.Delete("/people/{id}", h.handleArchivePerson)
			authed.Get("/people/{id}/moments", h.handleListMoments)
			authed.Post("/people/merge", h.handleMerge)
			authed.Post("/people/merge/undo", h.handleUndoMerge)

			authed.Post("/moments", h.handleCreateMoment)
			authed.Get("/moments/{id}", h.handleGetMoment)
			authed.Put("/moments/{id}", h.handleUpdateMoment)
			authed.Delete("/moments/{id}", h.handleDeleteMoment)

			authed.Post("/sync/connections", h.handleConnect)
			authed.Post("/sync/match", h.handleSuggestMatches)
			authed.Get("/sync/candidates", h.handleListCandidates)
			authed.Post("/sync/apply-mapping", h.handleApplyMapping)
			authed.Post("/sync/backfill", h.handleBackfill)
			authed.Post("/sync/push", h.handlePushPending)
			authed.Post("/sync/run", h.handleRunSync)
			authed.Post("/sync/revoke", h.handleRevoke)
		})
	})

	// Server-to-server endpoints, authenticated by body signature alone.
	r.Group(func(peer chi.Router) {
		peer.Use(h.peerAuth)
		peer.Post("/sync-pull", h.handlePeerPull)
		peer.Post("/sync-push", h.handlePeerPush)
		peer.Post("/sync-revoke-connection", h.handlePeerRevoke)
		peer.Post("/sync-list-people", h.handlePeerListPeople)
	})

	return r
}
