package webhooks

import (
	"context"
	"crypto/subtle"
	"io"
	"net/http"

	"github.com/angelmondragon/fulfillment-backend/api/responses"
	"github.com/angelmondragon/fulfillment-backend/internal/webhooks/bot"
	pkgerrors "github.com/angelmondragon/fulfillment-backend/pkg/errors"
	"github.com/angelmondragon/fulfillment-backend/pkg/logger"
)

// BotSecretHeader carries the secret registered with setWebhook.
const BotSecretHeader = "X-Telegram-Bot-Api-Secret-Token"

type botService interface {
	Parse(raw []byte) bot.Payload
	Handle(ctx context.Context, payload bot.Payload) bot.Ack
}

// FileBot receives chat updates for the file admin bot. Authenticated updates
// are always answered 200 so the chat platform does not redeliver them; the
// outcome travels in the ack body.
func FileBot(svc botService, secret string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bot service unavailable"))
			return
		}

		presented := r.Header.Get(BotSecretHeader)
		if secret == "" || subtle.ConstantTimeCompare([]byte(presented), []byte(secret)) != 1 {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid bot secret"))
			return
		}

		payload, err := io.ReadAll(r.Body)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}

		ack := svc.Handle(ctx, svc.Parse(payload))
		responses.WriteSuccess(w, ack)
	}
}
