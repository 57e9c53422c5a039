package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"pushgate.io/pushgate/internal/jobs"
	apperrors "pushgate.io/pushgate/internal/pkg/errors"
	"pushgate.io/pushgate/internal/pkg/logger"
	"pushgate.io/pushgate/internal/platform"
	"pushgate.io/pushgate/internal/store"
)

type subscribeRequest struct {
	Subscription *platform.Subscription `json:"subscription" binding:"required"`
	UserAgent    string                 `json:"userAgent"`
	Timestamp    string                 `json:"timestamp"`
}

// Subscribe handles POST /api/v1/notifications/subscribe. Re-subscribing
// the same endpoint refreshes the stored record instead of duplicating it.
func (s *Server) Subscribe(c *gin.Context) {
	var req subscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.BadRequest(apperrors.CodeValidationFailed, "subscription payload is required"))
		return
	}
	if req.Subscription.Endpoint == "" {
		_ = c.Error(apperrors.BadRequest(apperrors.CodeValidationFailed, "subscription endpoint is required"))
		return
	}

	saved, err := s.store.UpsertSubscription(c.Request.Context(), store.Subscription{
		UserID:    userFromCtx(c),
		Endpoint:  req.Subscription.Endpoint,
		P256dh:    req.Subscription.Keys.P256dh,
		Auth:      req.Subscription.Keys.Auth,
		UserAgent: req.UserAgent,
	})
	if err != nil {
		_ = c.Error(apperrors.Wrap(err, apperrors.CodeInternalError, "failed to persist subscription", http.StatusInternalServerError))
		return
	}

	logger.Info("subscription registered",
		zap.String("endpoint", saved.Endpoint),
		zap.String("user_id", saved.UserID),
	)
	respond(c, http.StatusCreated, gin.H{"id": saved.ID})
}

type unsubscribeRequest struct {
	Endpoint string `json:"endpoint" binding:"required"`
}

// Unsubscribe handles POST /api/v1/notifications/unsubscribe. Deleting an
// unknown endpoint succeeds; the agent's local-first unsubscribe retries
// sends that may have already landed.
func (s *Server) Unsubscribe(c *gin.Context) {
	var req unsubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.BadRequest(apperrors.CodeValidationFailed, "endpoint is required"))
		return
	}

	if err := s.store.DeleteSubscription(c.Request.Context(), req.Endpoint); err != nil {
		_ = c.Error(apperrors.Wrap(err, apperrors.CodeInternalError, "failed to delete subscription", http.StatusInternalServerError))
		return
	}

	logger.Info("subscription removed", zap.String("endpoint", req.Endpoint))
	c.Status(http.StatusNoContent)
}

// VAPIDPublicKey handles GET /api/v1/notifications/vapid-public-key.
func (s *Server) VAPIDPublicKey(c *gin.Context) {
	if s.vapidPublicKey == "" {
		_ = c.Error(apperrors.Unavailable(apperrors.CodeChannelNotConfigured, "VAPID keys are not configured"))
		return
	}
	respond(c, http.StatusOK, gin.H{"publicKey": s.vapidPublicKey})
}

type testRequest struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// TestWebPush handles POST /api/v1/notifications/test: enqueue a web-push
// test dispatch to all of the caller's subscriptions.
func (s *Server) TestWebPush(c *gin.Context) {
	s.enqueueTest(c, "vapid")
}

// enqueueTest queues a test dispatch job on the given channel for the
// authenticated caller.
func (s *Server) enqueueTest(c *gin.Context, channel string) {
	var req testRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.BadRequest(apperrors.CodeValidationFailed, "invalid test request body"))
		return
	}
	if req.Message == "" {
		req.Message = "Test notification from PushGate"
	}
	if req.Type == "" {
		req.Type = "test"
	}

	userID := userFromCtx(c)
	result, err := s.queue.Insert(c.Request.Context(), jobs.PushDispatchArgs{
		UserID:      userID,
		Channel:     channel,
		MessageKind: req.Type,
		Body:        req.Message,
		Test:        true,
	}, nil)
	if err != nil {
		_ = c.Error(apperrors.Wrap(err, apperrors.CodeDispatchFailed, "failed to enqueue test dispatch", http.StatusInternalServerError))
		return
	}

	logger.Info("test dispatch enqueued",
		zap.String("user_id", userID),
		zap.String("channel", channel),
		zap.Int64("job_id", result.Job.ID),
	)
	respond(c, http.StatusAccepted, gin.H{"jobId": result.Job.ID})
}
