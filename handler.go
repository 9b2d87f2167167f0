package main

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"modelrules/config"
	"modelrules/internal/crypto"
	"modelrules/observability"
	"modelrules/routing"
)

// APIHandler handles HTTP API requests
type APIHandler struct {
	app *App
	cfg *config.Config
}

// NewAPIHandler creates a new APIHandler
func NewAPIHandler(app *App, cfg *config.Config) *APIHandler {
	return &APIHandler{app: app, cfg: cfg}
}

// forwardedHeaders is the allow-list of inbound headers copied upstream.
// Everything else, Authorization above all, is dropped.
var forwardedHeaders = []string{"Accept", "Accept-Encoding", "Content-Type", "User-Agent"}

// handleProxy forwards an inference request to the provider selected by the
// request's model string. The response is streamed back verbatim: status,
// headers and body are the provider's own.
func (h *APIHandler) handleProxy(w http.ResponseWriter, r *http.Request) {
	metrics := observability.GetMetrics()

	if r.Method != http.MethodPost {
		metrics.RecordGatewayRequest("method_not_allowed")
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	secret, ok := bearerToken(r)
	if !ok {
		metrics.RecordGatewayRequest("unauthorized")
		w.Header().Set("WWW-Authenticate", "Bearer")
		http.Error(w, "Not Authorized", http.StatusUnauthorized)
		return
	}

	raw, err := io.ReadAll(r.Body)
	var body map[string]any
	if err == nil {
		err = json.Unmarshal(raw, &body)
	}
	if err != nil {
		metrics.RecordGatewayRequest("bad_body")
		h.jsonError(w, http.StatusInternalServerError, "Bad request", "Request body could not be read properly")
		return
	}

	modelValue, ok := body["model"]
	if !ok {
		metrics.RecordGatewayRequest("missing_model")
		h.jsonError(w, http.StatusBadRequest, "Bad request", "Missing 'model' parameter")
		return
	}
	modelStr, ok := modelValue.(string)
	if !ok {
		metrics.RecordGatewayRequest("invalid_model")
		h.jsonError(w, http.StatusBadRequest, "Bad request", "'model' must be a string")
		return
	}
	if modelStr == "" {
		metrics.RecordGatewayRequest("missing_model")
		h.jsonError(w, http.StatusBadRequest, "Bad request", "Missing 'model' parameter")
		return
	}

	found, err := h.app.LookupKey(r.Context(), crypto.HashKey(secret))
	if err != nil {
		metrics.RecordGatewayRequest("key_lookup_failed")
		h.jsonError(w, http.StatusInternalServerError, "Internal server error", err.Error())
		return
	}

	// Usage is stamped before the disabled check: a rejected call still
	// counts as the key being seen.
	h.app.TouchKeyUsed(found.Key)

	if found.Key.Disabled() {
		metrics.RecordGatewayRequest("forbidden")
		h.jsonError(w, http.StatusForbidden, "Forbidden", "Invalid API Key")
		return
	}

	res, err := routing.Resolve(modelStr, found.Rulesets)
	if err != nil {
		metrics.RecordGatewayRequest("unroutable")
		h.jsonError(w, http.StatusBadRequest, "Bad request", err.Error())
		return
	}
	if strings.Contains(modelStr, routing.Separator) {
		metrics.RecordResolution("prefixed")
	} else {
		metrics.RecordResolution("default")
	}

	// The resolved model name is written first, then the overlay: rules win
	// over whatever the client sent, a rule-supplied model included.
	body["model"] = res.Model
	for k, v := range routing.Merge(res.Ruleset, res.Model) {
		body[k] = v
	}

	userKey := crypto.DeriveKey(found.Key.UserID, h.cfg.Gateway.MasterSecret)
	providerKey, err := crypto.Decrypt(crypto.Ciphertext{
		Encrypted: res.Ruleset.APIKeyEncrypted,
		IV:        res.Ruleset.APIKeyIV,
	}, userKey)
	if err != nil {
		metrics.RecordGatewayRequest("decrypt_failed")
		observability.WithUser(found.Key.UserID).Error("provider key decryption failed", "ruleset_id", res.Ruleset.ID, "error", err)
		h.jsonError(w, http.StatusInternalServerError, "Internal server error", err.Error())
		return
	}

	payload, err := json.Marshal(body)
	if err != nil {
		metrics.RecordGatewayRequest("bad_body")
		h.jsonError(w, http.StatusInternalServerError, "Internal server error", err.Error())
		return
	}

	upstreamURL := buildUpstreamURL(res.Ruleset.BaseURL, r.URL.Path, h.cfg.Gateway.APIPrefix)
	header := h.buildUpstreamHeader(r.Header, providerKey)

	resp, err := h.app.upstream.Post(r.Context(), upstreamURL, header, payload)
	if err != nil {
		metrics.RecordGatewayRequest("upstream_failed")
		h.jsonError(w, http.StatusInternalServerError, "Internal server error", err.Error())
		return
	}
	defer resp.Body.Close()

	metrics.RecordGatewayRequest("proxied")
	h.streamResponse(w, resp)
}

// handleHealth returns the health status of the application
func (h *APIHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"status": "ok",
		"services": map[string]string{
			"database": "unknown",
		},
	}

	if h.app.repo != nil {
		if err := h.app.repo.Health(r.Context()); err == nil {
			status["services"].(map[string]string)["database"] = "connected"
		} else {
			status["services"].(map[string]string)["database"] = "disconnected"
			status["status"] = "degraded"
		}
	} else {
		status["services"].(map[string]string)["database"] = "not_configured"
	}

	h.jsonResponse(w, status)
}

// bearerToken extracts the secret from an Authorization: Bearer header.
func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(auth, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", false
	}
	return token, true
}

// buildUpstreamURL joins the ruleset's base URL with the inbound path, minus
// the gateway's API prefix. The base URL is stored with exactly one trailing
// slash, so plain concatenation preserves any base path it carries.
func buildUpstreamURL(baseURL, inboundPath, apiPrefix string) string {
	return baseURL + strings.Replace(inboundPath, apiPrefix, "", 1)
}

// buildUpstreamHeader assembles the outbound header set: allow-listed inbound
// headers plus the decrypted provider credential. A default User-Agent is
// supplied when the client sent none.
func (h *APIHandler) buildUpstreamHeader(inbound http.Header, providerKey string) http.Header {
	header := http.Header{}
	for _, name := range forwardedHeaders {
		if v := inbound.Get(name); v != "" {
			header.Set(name, v)
		}
	}
	if header.Get("User-Agent") == "" {
		header.Set("User-Agent", h.cfg.Gateway.UserAgent)
	}
	header.Set("Authorization", "Bearer "+providerKey)
	return header
}

// streamResponse relays the provider response: status and headers first, then
// the body copied chunk by chunk so streamed completions flow through.
func (h *APIHandler) streamResponse(w http.ResponseWriter, resp *http.Response) {
	for name, values := range resp.Header {
		for _, v := range values {
			w.Header().Add(name, v)
		}
	}
	w.WriteHeader(resp.StatusCode)

	flusher, _ := w.(http.Flusher)
	buf := make([]byte, 32*1024)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if err != nil {
			return
		}
	}
}

// Helper functions

func (h *APIHandler) jsonResponse(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (h *APIHandler) jsonError(w http.ResponseWriter, status int, kind, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": kind, "message": message})
}
