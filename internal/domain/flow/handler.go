package flow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/owopay/owo-api/internal/domain/dataplan"
	"github.com/owopay/owo-api/internal/domain/session"
	"github.com/owopay/owo-api/internal/domain/user"
	"github.com/owopay/owo-api/internal/pkg/flowcrypto"
	"github.com/owopay/owo-api/internal/pkg/jwt"
	"github.com/owopay/owo-api/internal/pkg/money"
	"github.com/owopay/owo-api/internal/pkg/phone"
)

const responseVersion = "3.0"

// Status codes the platform interprets specially: 421 makes it refresh the
// public key, 427 invalidates the flow token on the client.
const (
	statusKeyMismatch  = 421
	statusInvalidToken = 427
)

// exchangeRequest is the decrypted inner payload of a flow POST.
type exchangeRequest struct {
	Version   string         `json:"version"`
	Action    string         `json:"action"`
	Screen    string         `json:"screen"`
	Data      map[string]any `json:"data"`
	FlowToken string         `json:"flow_token"`
}

type screenResponse struct {
	Version string         `json:"version"`
	Screen  string         `json:"screen,omitempty"`
	Data    map[string]any `json:"data"`
}

// OnboardingDraft accumulates KYC answers across onboarding screens. Lives
// in the session store keyed by user id.
type OnboardingDraft struct {
	FullName    string `json:"full_name"`
	DateOfBirth string `json:"date_of_birth"`
	BVN         string `json:"bvn"`
}

// PurchaseDraft is the completed data-purchase form, picked up by the
// conversation layer when the terminal submission arrives over the webhook.
type PurchaseDraft struct {
	PlanID      uuid.UUID `json:"plan_id"`
	Network     string    `json:"network"`
	Phone       string    `json:"phone"`
	PINVerified bool      `json:"pin_verified"`
}

// Handler serves the encrypted flow data-exchange endpoint.
type Handler struct {
	envelope *flowcrypto.Envelope
	tokens   *TokenService
	users    *user.Service
	plans    dataplan.Repository
	sessions *session.Store
	jwtSvc   *jwt.Service
}

func NewHandler(envelope *flowcrypto.Envelope, tokens *TokenService, users *user.Service, plans dataplan.Repository, sessions *session.Store, jwtSvc *jwt.Service) *Handler {
	return &Handler{
		envelope: envelope,
		tokens:   tokens,
		users:    users,
		plans:    plans,
		sessions: sessions,
		jwtSvc:   jwtSvc,
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/flow", h.Exchange)
}

// Exchange handles POST /flow. The body and response are both encrypted;
// see internal/pkg/flowcrypto for the envelope.
func (h *Handler) Exchange(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	var encrypted flowcrypto.EncryptedRequest
	if err := json.Unmarshal(body, &encrypted); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	clear, aesKey, iv, err := h.envelope.Decrypt(encrypted)
	if err != nil {
		log.Warn().Err(err).Msg("Flow payload decryption failed")
		w.WriteHeader(statusKeyMismatch)
		return
	}

	var req exchangeRequest
	if err := json.Unmarshal(clear, &req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	resp, status := h.route(r.Context(), &req)
	if resp == nil {
		w.WriteHeader(status)
		return
	}

	payload, err := json.Marshal(resp)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	sealed, err := flowcrypto.EncryptResponse(payload, aesKey, iv)
	if err != nil {
		log.Error().Err(err).Msg("Flow response encryption failed")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(sealed))
}

func (h *Handler) route(ctx context.Context, req *exchangeRequest) (*screenResponse, int) {
	if req.Action == "ping" {
		return &screenResponse{
			Version: responseVersion,
			Data:    map[string]any{"status": "active"},
		}, http.StatusOK
	}

	sess, err := h.tokens.Bind(ctx, req.FlowToken)
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			return nil, statusInvalidToken
		}
		log.Error().Err(err).Msg("Flow token bind failed")
		return nil, http.StatusInternalServerError
	}

	switch req.Action {
	case "init":
		return h.initScreen(ctx, sess)
	case "back":
		return h.backScreen(ctx, sess, req)
	case "data_exchange":
		return h.dataExchange(ctx, sess, req)
	case "complete":
		if err := h.tokens.Revoke(ctx, req.FlowToken); err != nil {
			log.Warn().Err(err).Msg("Flow token revoke failed")
		}
		return &screenResponse{Version: responseVersion, Data: map[string]any{}}, http.StatusOK
	default:
		log.Warn().Str("action", req.Action).Msg("Unknown flow action")
		return nil, http.StatusBadRequest
	}
}

func (h *Handler) initScreen(ctx context.Context, sess *Session) (*screenResponse, int) {
	screen := InitialScreen(sess.Type)
	data, status := h.screenData(ctx, sess, screen)
	if status != http.StatusOK {
		return nil, status
	}
	return &screenResponse{Version: responseVersion, Screen: screen, Data: data}, http.StatusOK
}

func (h *Handler) backScreen(ctx context.Context, sess *Session, req *exchangeRequest) (*screenResponse, int) {
	screen := previousScreen(sess.Type, req.Screen)
	data, status := h.screenData(ctx, sess, screen)
	if status != http.StatusOK {
		return nil, status
	}
	return &screenResponse{Version: responseVersion, Screen: screen, Data: data}, http.StatusOK
}

// screenData builds the server-driven payload a screen needs on entry.
func (h *Handler) screenData(ctx context.Context, sess *Session, screen string) (map[string]any, int) {
	switch screen {
	case ScreenNetworkSelection:
		return map[string]any{"networks": networkOptions()}, http.StatusOK
	case ScreenPlanSelection:
		var draft PurchaseDraft
		if _, err := h.sessions.Get(ctx, session.FeatureDataPurchase, sess.UserID.String(), &draft); err != nil {
			return nil, http.StatusInternalServerError
		}
		options, err := h.planOptions(ctx, dataplan.Network(draft.Network))
		if err != nil {
			log.Error().Err(err).Msg("Data plan lookup failed")
			return nil, http.StatusInternalServerError
		}
		return map[string]any{"plans": options}, http.StatusOK
	default:
		return map[string]any{}, http.StatusOK
	}
}

func (h *Handler) dataExchange(ctx context.Context, sess *Session, req *exchangeRequest) (*screenResponse, int) {
	switch sess.Type {
	case TypeOnboarding:
		return h.onboardingExchange(ctx, sess, req)
	case TypeLogin:
		return h.loginExchange(ctx, sess, req)
	case TypeDataPurchase:
		return h.purchaseExchange(ctx, sess, req)
	default:
		return nil, http.StatusBadRequest
	}
}

func (h *Handler) onboardingExchange(ctx context.Context, sess *Session, req *exchangeRequest) (*screenResponse, int) {
	userKey := sess.UserID.String()

	var draft OnboardingDraft
	if _, err := h.sessions.Get(ctx, session.FeatureOnboarding, userKey, &draft); err != nil {
		return nil, http.StatusInternalServerError
	}

	switch req.Screen {
	case ScreenQuestionOne:
		fullName := stringField(req.Data, "full_name")
		dob := stringField(req.Data, "date_of_birth")
		if fullName == "" || dob == "" {
			return errorScreen(req.Screen, "Please fill in your full name and date of birth."), http.StatusOK
		}
		draft.FullName, draft.DateOfBirth = fullName, dob
		if err := h.sessions.Set(ctx, session.FeatureOnboarding, userKey, draft, TokenTTL); err != nil {
			return nil, http.StatusInternalServerError
		}
		return &screenResponse{Version: responseVersion, Screen: ScreenQuestionTwo, Data: map[string]any{}}, http.StatusOK

	case ScreenQuestionTwo:
		bvn := stringField(req.Data, "bvn")
		if !digitsOfLength(bvn, 11) {
			return errorScreen(req.Screen, "Your BVN should be exactly 11 digits."), http.StatusOK
		}
		draft.BVN = bvn
		if err := h.sessions.Set(ctx, session.FeatureOnboarding, userKey, draft, TokenTTL); err != nil {
			return nil, http.StatusInternalServerError
		}
		return &screenResponse{Version: responseVersion, Screen: ScreenPINSetup, Data: map[string]any{}}, http.StatusOK

	case ScreenPINSetup:
		pin := stringField(req.Data, "pin")
		confirm := stringField(req.Data, "confirm_pin")
		if !digitsOfLength(pin, 4) {
			return errorScreen(req.Screen, "Your PIN must be exactly 4 digits."), http.StatusOK
		}
		if pin != confirm {
			return errorScreen(req.Screen, "The PINs you entered do not match."), http.StatusOK
		}
		if draft.FullName == "" || draft.BVN == "" {
			// Screens were skipped somehow; restart the form.
			return &screenResponse{Version: responseVersion, Screen: ScreenQuestionOne, Data: map[string]any{}}, http.StatusOK
		}

		u, err := h.users.GetByID(ctx, sess.UserID)
		if err != nil {
			return nil, http.StatusInternalServerError
		}
		u.DisplayName = draft.FullName
		if err := h.users.Update(ctx, u); err != nil {
			return nil, http.StatusInternalServerError
		}
		if err := h.users.SubmitKYC(ctx, sess.UserID, draft.BVN, draft.DateOfBirth); err != nil {
			return nil, http.StatusInternalServerError
		}
		if err := h.users.SetPIN(ctx, sess.UserID, pin); err != nil {
			return nil, http.StatusInternalServerError
		}
		if err := h.users.AdvanceOnboarding(ctx, sess.UserID, user.StepAccountProvisioning); err != nil {
			return nil, http.StatusInternalServerError
		}
		if err := h.sessions.Delete(ctx, session.FeatureOnboarding, userKey); err != nil {
			log.Warn().Err(err).Msg("Failed to clear onboarding draft")
		}
		log.Info().Str("user_id", sess.UserID.String()).Msg("Onboarding form completed")
		return terminalScreen(sess.Token), http.StatusOK

	default:
		return nil, http.StatusBadRequest
	}
}

func (h *Handler) loginExchange(ctx context.Context, sess *Session, req *exchangeRequest) (*screenResponse, int) {
	if req.Screen != ScreenLogin {
		return nil, http.StatusBadRequest
	}

	u, err := h.users.GetByID(ctx, sess.UserID)
	if err != nil {
		return nil, http.StatusInternalServerError
	}

	pin := stringField(req.Data, "pin")
	if err := h.users.VerifyPIN(ctx, u, pin); err != nil {
		switch {
		case errors.Is(err, user.ErrPINLocked):
			return errorScreen(req.Screen, "Too many wrong attempts. Try again in 15 minutes."), http.StatusOK
		case errors.Is(err, user.ErrPINMismatch), errors.Is(err, user.ErrPINNotSet):
			return errorScreen(req.Screen, "That PIN is not correct."), http.StatusOK
		default:
			return nil, http.StatusInternalServerError
		}
	}

	token, expiresAt, err := h.jwtSvc.GenerateSessionToken(u.ID, u.Phone)
	if err != nil {
		return nil, http.StatusInternalServerError
	}
	ttl := time.Until(expiresAt)
	if err := h.sessions.Set(ctx, session.FeatureLogin, u.ID.String(), token, ttl); err != nil {
		return nil, http.StatusInternalServerError
	}
	log.Info().Str("user_id", u.ID.String()).Msg("Login flow verified")
	return terminalScreen(sess.Token), http.StatusOK
}

func (h *Handler) purchaseExchange(ctx context.Context, sess *Session, req *exchangeRequest) (*screenResponse, int) {
	userKey := sess.UserID.String()

	var draft PurchaseDraft
	if _, err := h.sessions.Get(ctx, session.FeatureDataPurchase, userKey, &draft); err != nil {
		return nil, http.StatusInternalServerError
	}

	saveDraft := func() int {
		if err := h.sessions.Set(ctx, session.FeatureDataPurchase, userKey, draft, TokenTTL); err != nil {
			return http.StatusInternalServerError
		}
		return http.StatusOK
	}

	switch req.Screen {
	case ScreenNetworkSelection:
		network := stringField(req.Data, "network")
		if !validNetwork(network) {
			return errorScreen(req.Screen, "Pick one of the listed networks."), http.StatusOK
		}
		draft.Network = network
		if st := saveDraft(); st != http.StatusOK {
			return nil, st
		}
		return &screenResponse{Version: responseVersion, Screen: ScreenPhoneNumber, Data: map[string]any{}}, http.StatusOK

	case ScreenPhoneNumber:
		normalized, err := phone.Normalize(stringField(req.Data, "phone"))
		if err != nil {
			return errorScreen(req.Screen, "That phone number does not look right."), http.StatusOK
		}
		draft.Phone = normalized
		if st := saveDraft(); st != http.StatusOK {
			return nil, st
		}
		options, err := h.planOptions(ctx, dataplan.Network(draft.Network))
		if err != nil {
			log.Error().Err(err).Msg("Data plan lookup failed")
			return nil, http.StatusInternalServerError
		}
		return &screenResponse{
			Version: responseVersion,
			Screen:  ScreenPlanSelection,
			Data:    map[string]any{"plans": options},
		}, http.StatusOK

	case ScreenPlanSelection:
		planID, err := uuid.Parse(stringField(req.Data, "plan_id"))
		if err != nil {
			return errorScreen(req.Screen, "Pick one of the listed plans."), http.StatusOK
		}
		plan, err := h.plans.GetByID(ctx, planID)
		if err != nil {
			return nil, http.StatusInternalServerError
		}
		if plan == nil || !plan.Active {
			return errorScreen(req.Screen, "That plan is no longer available."), http.StatusOK
		}
		draft.PlanID = plan.ID
		if st := saveDraft(); st != http.StatusOK {
			return nil, st
		}
		return &screenResponse{Version: responseVersion, Screen: ScreenPIN, Data: map[string]any{}}, http.StatusOK

	case ScreenPIN:
		u, err := h.users.GetByID(ctx, sess.UserID)
		if err != nil {
			return nil, http.StatusInternalServerError
		}
		pin := stringField(req.Data, "pin")
		if err := h.users.VerifyPIN(ctx, u, pin); err != nil {
			switch {
			case errors.Is(err, user.ErrPINLocked):
				return errorScreen(req.Screen, "Too many wrong attempts. Try again in 15 minutes."), http.StatusOK
			case errors.Is(err, user.ErrPINMismatch):
				return errorScreen(req.Screen, "That PIN is not correct."), http.StatusOK
			default:
				return nil, http.StatusInternalServerError
			}
		}
		draft.PINVerified = true
		if st := saveDraft(); st != http.StatusOK {
			return nil, st
		}
		return terminalScreen(sess.Token), http.StatusOK

	default:
		return nil, http.StatusBadRequest
	}
}

func (h *Handler) planOptions(ctx context.Context, network dataplan.Network) ([]map[string]any, error) {
	plans, err := h.plans.ListByNetwork(ctx, network)
	if err != nil {
		return nil, err
	}
	options := make([]map[string]any, 0, len(plans))
	for _, p := range plans {
		options = append(options, map[string]any{
			"id":    p.ID.String(),
			"title": fmt.Sprintf("%s - %s", p.Name, money.Format(p.SellingPrice)),
		})
	}
	return options, nil
}

func networkOptions() []map[string]any {
	networks := []dataplan.Network{
		dataplan.NetworkMTN,
		dataplan.NetworkGlo,
		dataplan.NetworkAirtel,
		dataplan.Network9Mobile,
	}
	options := make([]map[string]any, 0, len(networks))
	for _, n := range networks {
		options = append(options, map[string]any{"id": string(n), "title": networkTitle(n)})
	}
	return options
}

func networkTitle(n dataplan.Network) string {
	switch n {
	case dataplan.NetworkMTN:
		return "MTN"
	case dataplan.NetworkGlo:
		return "Glo"
	case dataplan.NetworkAirtel:
		return "Airtel"
	case dataplan.Network9Mobile:
		return "9mobile"
	default:
		return string(n)
	}
}

func validNetwork(raw string) bool {
	switch dataplan.Network(raw) {
	case dataplan.NetworkMTN, dataplan.NetworkGlo, dataplan.NetworkAirtel, dataplan.Network9Mobile:
		return true
	}
	return false
}

// terminalScreen ends the flow; the platform echoes the params back in the
// nfm_reply webhook message.
func terminalScreen(flowToken string) *screenResponse {
	return &screenResponse{
		Version: responseVersion,
		Screen:  ScreenSuccess,
		Data: map[string]any{
			"extension_message_response": map[string]any{
				"params": map[string]any{"flow_token": flowToken},
			},
		},
	}
}

func errorScreen(screen, message string) *screenResponse {
	return &screenResponse{
		Version: responseVersion,
		Screen:  screen,
		Data:    map[string]any{"error_message": message},
	}
}

func stringField(data map[string]any, key string) string {
	if data == nil {
		return ""
	}
	val, _ := data[key].(string)
	return val
}

func digitsOfLength(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
