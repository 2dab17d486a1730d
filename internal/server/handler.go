/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package server

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/crypto/bcrypt"

	"github.com/devsuryashekhar/In-Vitro-Scan/internal/authority"
	"github.com/devsuryashekhar/In-Vitro-Scan/internal/domain"
	"github.com/devsuryashekhar/In-Vitro-Scan/internal/domain/model"
	"github.com/devsuryashekhar/In-Vitro-Scan/internal/event"
)

const (
	maxRequestBodyBytes = 1 << 20
	adminPINHeader      = "X-Admin-PIN"
	eventHeader         = "X-Invitro-Event"
	mediaTypeJSON       = "application/json"
	mediaTypeCBOR       = "application/cbor"
)

type handler struct {
	authority    *authority.Authority
	registry     *event.Registry
	adminPINHash []byte
	live         *liveFeed
	router       *mux.Router
	logger       *log.Logger
}

type responseSpec struct {
	status      int
	body        []byte
	contentType string
}

type eventRequest struct {
	Event string `json:"event"`
}

type eventResponse struct {
	Active string   `json:"active" cbor:"active"`
	Events []string `json:"events" cbor:"events"`
}

func newHandler(a *authority.Authority, registry *event.Registry, adminPINHash string, live *liveFeed, logger *log.Logger) (*handler, error) {
	if a == nil {
		return nil, errors.New("authority must not be nil")
	}
	h := &handler{
		authority: a,
		registry:  registry,
		live:      live,
		router:    mux.NewRouter().UseEncodedPath().SkipClean(true),
		logger:    logger,
	}
	if adminPINHash != "" {
		h.adminPINHash = []byte(adminPINHash)
	}

	h.router.HandleFunc("/scan/{token}", h.scan).Methods(http.MethodPost)
	h.router.HandleFunc("/stats", h.stats).Methods(http.MethodGet)
	h.router.HandleFunc("/admin/dashboard", h.dashboard).Methods(http.MethodGet)
	h.router.HandleFunc("/admin/tokens/{token}", h.token).Methods(http.MethodGet)
	h.router.HandleFunc("/admin/event", h.activeEvent).Methods(http.MethodGet)
	h.router.HandleFunc("/admin/event", h.switchEvent).Methods(http.MethodPost)
	h.router.HandleFunc("/admin/live", h.live.serve).Methods(http.MethodGet)
	h.router.HandleFunc("/health", h.health).Methods(http.MethodGet)
	h.router.Handle("/metrics", promhttp.HandlerFor(a.Metrics().Registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	return h, nil
}

func (h *handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// pathToken returns the {token} route variable. Routes match on the escaped
// path, so a token may carry "/" or "." as %2F and %2E.
func pathToken(r *http.Request) string {
	raw := mux.Vars(r)["token"]
	token, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return token
}

func (h *handler) scan(w http.ResponseWriter, r *http.Request) {
	res, err := h.authority.Redeem(r.Context(), pathToken(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set(eventHeader, h.authority.ActiveEvent())

	var body model.ScanResponse
	switch res.Status {
	case model.RedeemAdmitted:
		remaining := res.Remaining
		body = model.ScanResponse{Success: true, Remaining: &remaining}
	case model.RedeemAlreadyUsed:
		body = model.ScanResponse{Msg: model.MsgAlreadyEntered}
	default:
		body = model.ScanResponse{Msg: model.MsgInvalidToken}
	}
	h.writeValue(w, r, http.StatusOK, body)
}

func (h *handler) stats(w http.ResponseWriter, r *http.Request) {
	counts, err := h.authority.Stats(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeValue(w, r, http.StatusOK, counts)
}

func (h *handler) dashboard(w http.ResponseWriter, r *http.Request) {
	dash, err := h.authority.Dashboard(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if dash.RecentUsed == nil {
		dash.RecentUsed = []string{}
	}
	h.writeValue(w, r, http.StatusOK, dash)
}

func (h *handler) token(w http.ResponseWriter, r *http.Request) {
	t, err := h.authority.Token(r.Context(), pathToken(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeValue(w, r, http.StatusOK, t)
}

func (h *handler) activeEvent(w http.ResponseWriter, r *http.Request) {
	resp := eventResponse{Active: h.authority.ActiveEvent(), Events: []string{}}
	if h.registry != nil {
		resp.Events = h.registry.Names()
	}
	h.writeValue(w, r, http.StatusOK, resp)
}

func (h *handler) switchEvent(w http.ResponseWriter, r *http.Request) {
	if h.adminPINHash == nil || h.registry == nil {
		h.writeResponse(w, responseSpec{status: http.StatusForbidden})
		return
	}
	if err := bcrypt.CompareHashAndPassword(h.adminPINHash, []byte(r.Header.Get(adminPINHeader))); err != nil {
		h.logger.Printf("rejected event switch from %s: wrong admin PIN", r.RemoteAddr)
		h.writeResponse(w, responseSpec{status: http.StatusUnauthorized})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodyBytes))
	if err != nil {
		h.logger.Printf("failed reading request body: %v", err)
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}
	var req eventRequest
	if err := json.Unmarshal(body, &req); err != nil || strings.TrimSpace(req.Event) == "" {
		http.Error(w, `expected {"event": "<name>"}`, http.StatusBadRequest)
		return
	}
	name := strings.TrimSpace(req.Event)

	ev, ok := h.registry.Lookup(name)
	if !ok {
		h.writeError(w, r, domain.ErrUnknownEvent)
		return
	}
	if err := h.authority.Activate(r.Context(), ev); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.registry.SetActive(name); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.registry.Save(); err != nil {
		h.logger.Printf("failed to save event registry: %v", err)
	}
	h.activeEvent(w, r)
}

// writeError maps service failures to status codes. Scan denials never get here.
func (h *handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		status int
		body   model.ErrorResponse
	)
	switch {
	case errors.Is(err, domain.ErrNoActiveEvent):
		status = http.StatusServiceUnavailable
		body = model.ErrorResponse{Error: domain.ErrNoActiveEvent.Error(), Code: model.CodeNoActiveEvent}
	case errors.Is(err, domain.ErrStoreUnavailable):
		status = http.StatusServiceUnavailable
		body = model.ErrorResponse{Error: domain.ErrStoreUnavailable.Error(), Code: model.CodeStoreUnavailable}
	case errors.Is(err, domain.ErrInvalidToken):
		status = http.StatusNotFound
		body = model.ErrorResponse{Error: domain.ErrInvalidToken.Error(), Code: model.CodeUnknownToken}
	case errors.Is(err, domain.ErrUnknownEvent):
		status = http.StatusNotFound
		body = model.ErrorResponse{Error: domain.ErrUnknownEvent.Error(), Code: model.CodeUnknownEvent}
	default:
		h.logger.Printf("unexpected error on %s %s: %v", r.Method, r.URL.Path, err)
		status = http.StatusInternalServerError
		body = model.ErrorResponse{Error: http.StatusText(status), Code: model.CodeInternal}
	}
	h.writeValue(w, r, status, body)
}

// writeValue encodes v as CBOR when the client asks for it, JSON otherwise.
func (h *handler) writeValue(w http.ResponseWriter, r *http.Request, status int, v any) {
	var (
		body        []byte
		err         error
		contentType = mediaTypeJSON
	)
	if acceptsCBOR(r) {
		contentType = mediaTypeCBOR
		body, err = cbor.Marshal(v)
	} else {
		body, err = json.Marshal(v)
	}
	if err != nil {
		h.logger.Printf("failed to encode response: %v", err)
		h.writeResponse(w, responseSpec{status: http.StatusInternalServerError})
		return
	}
	h.writeResponse(w, responseSpec{status: status, body: body, contentType: contentType})
}

func acceptsCBOR(r *http.Request) bool {
	for _, part := range strings.Split(r.Header.Get("Accept"), ",") {
		mediaType, _, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err == nil && mediaType == mediaTypeCBOR {
			return true
		}
	}
	return false
}

func (h *handler) writeResponse(w http.ResponseWriter, spec responseSpec) {
	w.Header().Set("Server", "invitro-authority")

	if len(spec.body) > 0 {
		for k, v := range defaultHeaders {
			w.Header().Set(k, v)
		}
		w.Header().Set("Content-Type", spec.contentType)
		w.Header().Set("Content-Length", strconv.Itoa(len(spec.body)))
		w.WriteHeader(spec.status)
		if _, err := w.Write(spec.body); err != nil {
			h.logger.Printf("failed writing response body: %v", err)
		}
		return
	}

	w.WriteHeader(spec.status)
}

var defaultHeaders = map[string]string{
	"Cache-Control":           "no-store",
	"X-Content-Type-Options":  "nosniff",
	"Content-Security-Policy": "default-src 'none'",
	"Referrer-Policy":         "no-referrer",
}
