// Package handlers implements the registry REST surface.
//
// Handlers return the uniform envelope {success, data?, message?}; failures
// go through c.Error() and the centralized error-handler middleware.
package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"

	"pushgate.io/pushgate/internal/api/middleware"
	"pushgate.io/pushgate/internal/pkg/worker"
	"pushgate.io/pushgate/internal/store"
)

// JobEnqueuer is the slice of the River client handlers use to queue
// dispatch jobs. Satisfied by *river.Client[pgx.Tx].
type JobEnqueuer interface {
	Insert(ctx context.Context, args river.JobArgs, opts *river.InsertOpts) (*rivertype.JobInsertResult, error)
}

// Server implements all registry API handlers.
type Server struct {
	store          store.Store
	queue          JobEnqueuer
	pools          *worker.Pools
	jwtCfg         middleware.JWTConfig
	vapidPublicKey string
}

// ServerDeps holds all dependencies for creating a Server.
type ServerDeps struct {
	Store store.Store
	Queue JobEnqueuer
	// Pools feeds worker utilization into the readiness payload; may be nil.
	Pools          *worker.Pools
	JWTCfg         middleware.JWTConfig
	VAPIDPublicKey string
}

// NewServer creates a new Server with all dependencies.
func NewServer(deps ServerDeps) *Server {
	return &Server{
		store:          deps.Store,
		queue:          deps.Queue,
		pools:          deps.Pools,
		jwtCfg:         deps.JWTCfg,
		vapidPublicKey: deps.VAPIDPublicKey,
	}
}

// RegisterRoutes wires the /api/v1 surface onto the router group.
func (s *Server) RegisterRoutes(api *gin.RouterGroup) {
	auth := middleware.JWTAuth(s.jwtCfg.SigningKey)

	notifications := api.Group("/notifications")
	{
		notifications.POST("/subscribe", s.Subscribe)
		notifications.POST("/unsubscribe", s.Unsubscribe)
		notifications.GET("/vapid-public-key", s.VAPIDPublicKey)
		notifications.POST("/test", auth, s.TestWebPush)
	}

	onesignal := api.Group("/onesignal")
	{
		onesignal.POST("/user/identify", auth, s.IdentifyPlayer)
		onesignal.POST("/test", auth, s.TestOneSignal)
	}
}

// RegisterHealthRoutes wires the unversioned health endpoints.
func (s *Server) RegisterHealthRoutes(r gin.IRoutes) {
	r.GET("/health/live", s.HealthLive)
	r.GET("/health/ready", s.HealthReady)
}

// respond writes the success envelope.
func respond(c *gin.Context, status int, data any) {
	body := gin.H{"success": true}
	if data != nil {
		body["data"] = data
	}
	c.JSON(status, body)
}

// userFromCtx extracts the authenticated user ID, defaulting to anonymous
// for the unauthenticated subscription endpoints.
func userFromCtx(c *gin.Context) string {
	if uid := middleware.GetUserID(c.Request.Context()); uid != "" {
		return uid
	}
	return "anonymous"
}
