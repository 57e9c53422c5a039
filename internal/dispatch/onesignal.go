package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	apperrors "pushgate.io/pushgate/internal/pkg/errors"
	"pushgate.io/pushgate/internal/pkg/logger"
	"pushgate.io/pushgate/internal/store"
)

// OneSignalConfig carries the vendor REST credentials.
type OneSignalConfig struct {
	AppID      string
	RESTAPIKey string
	APIBaseURL string
}

// OneSignalSender delivers notifications through the vendor's REST API,
// targeting the user's registered player IDs.
type OneSignalSender struct {
	cfg   OneSignalConfig
	store store.Store
	http  *http.Client
}

// NewOneSignalSender creates the sender.
func NewOneSignalSender(cfg OneSignalConfig, st store.Store) *OneSignalSender {
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = "https://onesignal.com/api/v1"
	}
	return &OneSignalSender{
		cfg:   cfg,
		store: st,
		http:  &http.Client{Timeout: 15 * time.Second},
	}
}

// Configured reports whether the vendor credentials are present.
func (s *OneSignalSender) Configured() bool {
	return s.cfg.AppID != "" && s.cfg.RESTAPIKey != ""
}

type onesignalCreateRequest struct {
	AppID            string            `json:"app_id"`
	IncludePlayerIDs []string          `json:"include_player_ids"`
	Headings         map[string]string `json:"headings"`
	Contents         map[string]string `json:"contents"`
	URL              string            `json:"url,omitempty"`
}

type onesignalCreateResponse struct {
	ID     string `json:"id"`
	Errors any    `json:"errors,omitempty"`
}

// SendToUser creates one vendor notification targeting all of the user's
// player IDs. Returns the number of targeted players.
func (s *OneSignalSender) SendToUser(ctx context.Context, userID string, msg Message) (int, error) {
	if !s.Configured() {
		return 0, apperrors.Unavailable(apperrors.CodeChannelNotConfigured,
			"OneSignal credentials not configured")
	}

	players, err := s.store.PlayersByUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	if len(players) == 0 {
		logger.Debug("onesignal dispatch: no players", zap.String("user_id", userID))
		return 0, nil
	}

	ids := make([]string, 0, len(players))
	for _, p := range players {
		ids = append(ids, p.PlayerID)
	}

	body, err := json.Marshal(onesignalCreateRequest{
		AppID:            s.cfg.AppID,
		IncludePlayerIDs: ids,
		Headings:         map[string]string{"en": msg.Title},
		Contents:         map[string]string{"en": msg.Body},
		URL:              msg.URL,
	})
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.APIBaseURL+"/notifications", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Basic "+s.cfg.RESTAPIKey)

	resp, err := s.http.Do(req)
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.CodeDispatchFailed, "OneSignal request failed", 502)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode >= 400 {
		return 0, apperrors.New(apperrors.CodeDispatchFailed,
			fmt.Sprintf("OneSignal create returned %d: %s", resp.StatusCode, string(raw)), 502)
	}

	var created onesignalCreateResponse
	if err := json.Unmarshal(raw, &created); err == nil && created.Errors != nil {
		logger.Warn("onesignal create reported errors",
			zap.String("user_id", userID),
			zap.Any("errors", created.Errors),
		)
	}
	logger.Info("onesignal notification created",
		zap.String("user_id", userID),
		zap.Int("players", len(ids)),
		zap.String("notification_id", created.ID),
	)
	return len(ids), nil
}
