package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "pushgate.io/pushgate/internal/pkg/errors"
	"pushgate.io/pushgate/internal/pkg/logger"
)

type identifyRequest struct {
	PlayerID string `json:"onesignal_player_id" binding:"required"`
}

// IdentifyPlayer handles POST /api/v1/onesignal/user/identify: associate the
// authenticated caller with a OneSignal player ID. Re-identifying an
// existing player reassigns it.
func (s *Server) IdentifyPlayer(c *gin.Context) {
	var req identifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.BadRequest(apperrors.CodeValidationFailed, "onesignal_player_id is required"))
		return
	}

	userID := userFromCtx(c)
	player, err := s.store.UpsertPlayer(c.Request.Context(), userID, req.PlayerID)
	if err != nil {
		_ = c.Error(apperrors.Wrap(err, apperrors.CodeInternalError, "failed to persist player", http.StatusInternalServerError))
		return
	}

	logger.Info("onesignal player identified",
		zap.String("user_id", userID),
		zap.String("player_id", player.PlayerID),
	)
	respond(c, http.StatusOK, gin.H{"id": player.ID})
}

// TestOneSignal handles POST /api/v1/onesignal/test: enqueue a OneSignal
// test dispatch to the caller's registered players.
func (s *Server) TestOneSignal(c *gin.Context) {
	s.enqueueTest(c, "onesignal")
}
