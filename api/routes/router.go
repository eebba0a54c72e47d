package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/roomguard/api/controllers"
	"github.com/angelmondragon/roomguard/api/middleware"
	"github.com/angelmondragon/roomguard/internal/memberships"
	"github.com/angelmondragon/roomguard/internal/rooms"
	"github.com/angelmondragon/roomguard/pkg/auth/session"
	"github.com/angelmondragon/roomguard/pkg/config"
	"github.com/angelmondragon/roomguard/pkg/db"
	"github.com/angelmondragon/roomguard/pkg/logger"
	"github.com/angelmondragon/roomguard/pkg/redis"
)

type sessionManager interface {
	session.AccessSessionChecker
	Revoke(context.Context, string) error
}

// redisStore is the slice of the redis client the HTTP layer needs.
type redisStore interface {
	redis.IdempotencyStore
	redis.Pinger
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient redisStore,
	sessionManager sessionManager,
	roomService rooms.Service,
	membershipService memberships.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	membershipPolicy := middleware.NewRateLimitPolicy(
		"membership",
		cfg.RateLimit.MembershipWindow,
		cfg.RateLimit.MembershipLimit,
	)
	roomCreatePolicy := middleware.NewRateLimitPolicy(
		"room_create",
		cfg.RateLimit.RoomCreateWindow,
		cfg.RateLimit.RoomCreateLimit,
	)

	deps := map[string]controllers.Pinger{}
	if dbP != nil {
		deps["db"] = dbP
	}
	if redisClient != nil {
		deps["redis"] = redisClient
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, deps, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, sessionManager, logg))

		r.Post("/session/logout", controllers.Logout(sessionManager, logg))

		// mutations: rate limited per actor, then replayed on a repeated Idempotency-Key
		mutate := func(policy middleware.RateLimitPolicy) chi.Router {
			return r.With(
				middleware.RateLimit(policy, redisClient, logg),
				middleware.Idempotency(redisClient, logg),
			)
		}

		mutate(roomCreatePolicy).Post("/rooms", controllers.CreateRoom(roomService, logg))
		mutate(membershipPolicy).Post("/join/{roomIDOrAlias}", controllers.JoinRoomByRef(roomService, membershipService, logg))

		r.Route("/rooms/{roomID}", func(r chi.Router) {
			r.Get("/members", controllers.ListMembers(membershipService, logg))
			r.Get("/members/{userID}", controllers.GetMember(membershipService, logg))
			r.Get("/power_levels", controllers.GetPowerLevels(roomService, logg))
			r.Get("/aliases", controllers.GetAliases(roomService, logg))

			m := r.With(
				middleware.RateLimit(membershipPolicy, redisClient, logg),
				middleware.Idempotency(redisClient, logg),
			)
			m.Post("/join", controllers.JoinRoom(membershipService, logg))
			m.Post("/leave", controllers.LeaveRoom(membershipService, logg))
			m.Post("/invite", controllers.InviteUser(membershipService, logg))
			m.Post("/kick", controllers.KickUser(membershipService, logg))
			m.Post("/ban", controllers.BanUser(membershipService, logg))
		})
	})

	return r
}

// NewMetricsRouter serves the prometheus registry on its own listener.
func NewMetricsRouter(gatherer prometheus.Gatherer, logg *logger.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer(logg))
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return r
}
