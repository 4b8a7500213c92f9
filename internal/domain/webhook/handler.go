package webhook

import (
	"context"
	"crypto/subtle"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/owopay/owo-api/internal/pkg/whatsapp"
)

// maxBodySize bounds an inbound webhook payload.
const maxBodySize = 2 << 20

// enqueueWait is how long Receive will wait for queue room before giving up
// and asking the platform to redeliver. Var so tests can shorten it.
var enqueueWait = 2 * time.Second

// Processor consumes normalized inbound events. The conversation engine
// serializes per user internally, so the pool here only provides parallelism
// across users.
type Processor interface {
	HandleEvent(ctx context.Context, ev whatsapp.InboundEvent)
}

// Handler terminates the platform webhook: GET for subscription verification,
// POST for event delivery. Deliveries are acknowledged immediately and
// processed asynchronously; the platform retries aggressively on slow
// responses.
type Handler struct {
	verifyToken string
	processor   Processor

	queue chan whatsapp.InboundEvent
	wg    sync.WaitGroup
}

// NewHandler starts the worker pool. Call Close on shutdown to drain it.
func NewHandler(verifyToken string, processor Processor, workers int) *Handler {
	if workers <= 0 {
		workers = 8
	}
	h := &Handler{
		verifyToken: verifyToken,
		processor:   processor,
		queue:       make(chan whatsapp.InboundEvent, 1024),
	}
	for i := 0; i < workers; i++ {
		h.wg.Add(1)
		go h.worker()
	}
	return h
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/webhook", h.Verify)
	r.Post("/webhook", h.Receive)
}

// Close stops accepting events and waits for in-flight ones to finish.
func (h *Handler) Close() {
	close(h.queue)
	h.wg.Wait()
}

func (h *Handler) worker() {
	defer h.wg.Done()
	for ev := range h.queue {
		// Request contexts die with the 200; processing gets its own.
		h.processor.HandleEvent(context.Background(), ev)
	}
}

// Verify answers the platform's subscription handshake by echoing the
// challenge when the verify token matches.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	mode := r.URL.Query().Get("hub.mode")
	token := r.URL.Query().Get("hub.verify_token")
	challenge := r.URL.Query().Get("hub.challenge")

	if mode != "subscribe" || subtle.ConstantTimeCompare([]byte(token), []byte(h.verifyToken)) != 1 {
		log.Warn().Str("mode", mode).Msg("Webhook verification rejected")
		w.WriteHeader(http.StatusForbidden)
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(challenge))
}

// Receive acknowledges a delivery and queues its events.
func (h *Handler) Receive(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	events, err := whatsapp.ParseWebhook(body)
	if err != nil {
		// Malformed payloads still get a 200: a non-2xx only makes the
		// platform redeliver the same garbage.
		log.Warn().Err(err).Msg("Unparseable webhook payload")
		w.WriteHeader(http.StatusOK)
		return
	}

	for _, ev := range events {
		if !h.enqueue(ev) {
			// A 503 makes the platform redeliver the whole batch rather
			// than this turn vanishing. Events already queued from this
			// delivery will arrive twice; the engine's per-user
			// serialization keeps the duplicates ordered.
			log.Error().Str("message_id", ev.MessageID).Msg("Webhook queue full, requesting redelivery")
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
	}

	w.WriteHeader(http.StatusOK)
}

// enqueue hands an event to the worker pool, waiting briefly when the queue
// is saturated.
func (h *Handler) enqueue(ev whatsapp.InboundEvent) bool {
	select {
	case h.queue <- ev:
		return true
	default:
	}

	t := time.NewTimer(enqueueWait)
	defer t.Stop()
	select {
	case h.queue <- ev:
		return true
	case <-t.C:
		return false
	}
}
