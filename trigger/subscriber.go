package trigger

import (
	"errors"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"patternmatch/engine"
	"patternmatch/fingerprint"
	"patternmatch/logging"
	"patternmatch/objectstore"
	"patternmatch/types"
)

// TopicAssetFinalized carries AssetFinalized events from the upload
// pipeline.
const TopicAssetFinalized = "assets.finalized"

// HandlerName identifies the matcher handler on the router.
const HandlerName = "pattern-matcher"

// Handler consumes asset-finalized events and dispatches them to the
// orchestrator owning the path shape.
//
// Delivery is at-least-once: a returned error nacks the message and the
// broker redelivers it. That is safe because every engine write is an
// idempotent merge. Permanent failures (unparsable payloads, undecodable
// images, unclassified paths) ack instead, so they are not retried forever.
type Handler struct {
	engine *engine.Engine
	store  objectstore.Store
	log    zerolog.Logger
}

// NewHandler wires a trigger handler over the engine and the bulk store the
// finalized assets live in.
func NewHandler(e *engine.Engine, store objectstore.Store) *Handler {
	return &Handler{engine: e, store: store, log: logging.Component("trigger")}
}

// NewRouter builds the message router with the matcher handler attached.
// An empty topic falls back to TopicAssetFinalized.
func NewRouter(h *Handler, subscriber message.Subscriber, topic string) (*message.Router, error) {
	if topic == "" {
		topic = TopicAssetFinalized
	}
	wlog := logging.NewWatermillAdapter("router")

	router, err := message.NewRouter(message.RouterConfig{}, wlog)
	if err != nil {
		return nil, err
	}

	retry := middleware.Retry{
		MaxRetries:      3,
		InitialInterval: 100 * time.Millisecond,
		Logger:          wlog,
	}
	router.AddMiddleware(middleware.Recoverer, retry.Middleware)
	router.AddNoPublisherHandler(HandlerName, topic, subscriber, h.Handle)

	return router, nil
}

// Handle processes one asset-finalized message.
func (h *Handler) Handle(msg *message.Message) error {
	var ev types.AssetFinalized
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		// Poison payload; retrying cannot fix it.
		h.log.Error().Str("message_uuid", msg.UUID).Err(err).Msg("unparsable asset event, dropping")
		return nil
	}

	trig := engine.Classify(ev)
	if trig.Kind == engine.Ignored {
		h.log.Debug().Str("path", ev.Path).Msg("path shape not handled, ignoring")
		return nil
	}

	h.log.Info().
		Str("path", ev.Path).
		Str("kind", trig.Kind.String()).
		Str("brand", trig.Brand).
		Msg("asset event dispatched")

	ctx := msg.Context()
	data, err := h.store.Get(ctx, ev.Path)
	if err != nil {
		// The asset may not be visible yet; redelivery retries the fetch.
		h.log.Warn().Str("path", ev.Path).Err(err).Msg("asset download failed, will retry")
		return err
	}

	switch trig.Kind {
	case engine.ListingUpload:
		err = h.engine.HandleListingUpload(ctx, trig.ListingID, trig.Brand, data)
	case engine.BuyerUpload:
		err = h.engine.HandleBuyerUpload(ctx, trig.UID, trig.Brand, data, ev.Path)
	}

	var decodeErr *fingerprint.DecodeError
	if errors.As(err, &decodeErr) {
		// A broken image stays broken; ack so it is not redelivered.
		h.log.Error().Str("path", ev.Path).Err(err).Msg("image not decodable, dropping event")
		return nil
	}
	return err
}
