package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/hr-intake-bot/internal/http/middleware"
	"github.com/tbourn/hr-intake-bot/internal/telegram"
)

// UpdateDispatcher processes one Telegram update.
type UpdateDispatcher interface {
	Dispatch(ctx context.Context, u telegram.Update) error
}

// Webhook receives one update per POST. Anything that decodes is
// acknowledged with 200: redelivery would be dropped by the update log, so a
// failure is logged here instead of being bounced back to Telegram.
func (h *Handlers) Webhook(c *gin.Context) {
	var u telegram.Update
	if err := c.ShouldBindJSON(&u); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid update body")
		return
	}
	if u.UpdateID == 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "update_id is required")
		return
	}

	// The dialog must finish even if Telegram drops the connection.
	ctx := context.WithoutCancel(c.Request.Context())
	if err := h.dispatcher.Dispatch(ctx, u); err != nil && !errors.Is(err, context.Canceled) {
		middleware.LoggerFrom(c).Error().Err(err).
			Int64("update_id", u.UpdateID).
			Str("kind", u.Kind()).
			Msg("update failed")
	}
	ok(c, gin.H{"ok": true})
}
