package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"modelrules/internal/crypto"
	"modelrules/models"
	"modelrules/repository"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// userIDHeader carries the caller's identity on admin routes. The gateway
// trusts an upstream auth layer to have verified it.
const userIDHeader = "X-User-ID"

// previewLength is how many trailing characters of a provider key are kept
// for display.
const previewLength = 5

// rulesetRequest is the body for ruleset create and update calls. All fields
// are optional on update; create requires prefix, base_url and api_key.
type rulesetRequest struct {
	Prefix        *string               `json:"prefix"`
	BaseURL       *string               `json:"base_url"`
	APIKey        *string               `json:"api_key"`
	IsDefault     *bool                 `json:"is_default"`
	ProviderRules *models.ProviderRules `json:"provider_rules"`
	ModelRules    *models.ModelRules    `json:"model_rules"`
}

// rulesetView is the redacted ruleset shape returned by admin routes. The
// encrypted credential never leaves the server.
type rulesetView struct {
	ID            uuid.UUID            `json:"id"`
	Prefix        string               `json:"prefix"`
	BaseURL       string               `json:"base_url"`
	APIKeyPreview string               `json:"api_key_preview"`
	IsDefault     bool                 `json:"is_default"`
	ProviderRules models.ProviderRules `json:"provider_rules,omitempty"`
	ModelRules    models.ModelRules    `json:"model_rules,omitempty"`
	CreatedAt     time.Time            `json:"created_at"`
	UpdatedAt     *time.Time           `json:"updated_at,omitempty"`
}

func newRulesetView(rs *models.Ruleset) rulesetView {
	return rulesetView{
		ID:            rs.ID,
		Prefix:        rs.Prefix,
		BaseURL:       rs.BaseURL,
		APIKeyPreview: rs.APIKeyPreview,
		IsDefault:     rs.IsDefault,
		ProviderRules: rs.ProviderRules,
		ModelRules:    rs.ModelRules,
		CreatedAt:     rs.CreatedAt,
		UpdatedAt:     rs.UpdatedAt,
	}
}

// keyView is the key shape returned by admin routes. The plaintext secret
// appears only in the create response.
type keyView struct {
	ID        uuid.UUID  `json:"id"`
	Name      string     `json:"name,omitempty"`
	Preview   string     `json:"preview"`
	Disabled  bool       `json:"disabled"`
	LastUsed  *time.Time `json:"last_used,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

func newKeyView(k *models.VirtualKey) keyView {
	return keyView{
		ID:        k.ID,
		Name:      k.Name,
		Preview:   k.Preview,
		Disabled:  k.Disabled(),
		LastUsed:  k.LastUsed,
		CreatedAt: k.CreatedAt,
	}
}

// requireUser extracts the caller identity or writes a 401.
func (h *APIHandler) requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := r.Header.Get(userIDHeader)
	if userID == "" {
		h.jsonError(w, http.StatusUnauthorized, "Unauthorized", "Missing "+userIDHeader+" header")
		return "", false
	}
	return userID, true
}

// handleCreateRuleset registers a provider under a routing prefix.
func (h *APIHandler) handleCreateRuleset(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	var req rulesetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, http.StatusBadRequest, "Bad request", "Request body could not be read properly")
		return
	}
	if req.Prefix == nil || req.BaseURL == nil || req.APIKey == nil || *req.APIKey == "" {
		h.jsonError(w, http.StatusBadRequest, "Bad request", "prefix, base_url and api_key are required")
		return
	}
	if err := validatePrefix(*req.Prefix); err != nil {
		h.jsonError(w, http.StatusBadRequest, "Bad request", err.Error())
		return
	}
	baseURL, err := normalizeBaseURL(*req.BaseURL)
	if err != nil {
		h.jsonError(w, http.StatusBadRequest, "Bad request", err.Error())
		return
	}

	userKey := crypto.DeriveKey(userID, h.cfg.Gateway.MasterSecret)
	ct, err := crypto.Encrypt(*req.APIKey, userKey)
	if err != nil {
		h.jsonError(w, http.StatusInternalServerError, "Internal server error", err.Error())
		return
	}

	rs := &models.Ruleset{
		UserID:          userID,
		Prefix:          *req.Prefix,
		BaseURL:         baseURL,
		APIKeyPreview:   keyPreview(*req.APIKey),
		APIKeyEncrypted: ct.Encrypted,
		APIKeyIV:        ct.IV,
	}
	if req.IsDefault != nil {
		rs.IsDefault = *req.IsDefault
	}
	if req.ProviderRules != nil {
		rs.ProviderRules = *req.ProviderRules
	}
	if req.ModelRules != nil {
		rs.ModelRules = *req.ModelRules
	}

	if err := h.app.repo.CreateRuleset(r.Context(), rs); err != nil {
		h.writeRepoError(w, err)
		return
	}

	h.app.InvalidateUserRules(userID)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(newRulesetView(rs))
}

// handleListRulesets returns every live ruleset the caller owns.
func (h *APIHandler) handleListRulesets(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	rulesets, err := h.app.repo.ListRulesets(r.Context(), userID)
	if err != nil {
		h.writeRepoError(w, err)
		return
	}

	views := make([]rulesetView, 0, len(rulesets))
	for i := range rulesets {
		views = append(views, newRulesetView(&rulesets[i]))
	}
	h.jsonResponse(w, views)
}

// handleGetRuleset returns a single ruleset the caller owns.
func (h *APIHandler) handleGetRuleset(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.jsonError(w, http.StatusBadRequest, "Bad request", "Invalid ruleset ID")
		return
	}

	rs, err := h.app.repo.GetRuleset(r.Context(), userID, id)
	if err != nil {
		h.writeRepoError(w, err)
		return
	}
	h.jsonResponse(w, newRulesetView(rs))
}

// handleUpdateRuleset applies a partial update to a ruleset. A new api_key is
// re-encrypted; omitted fields keep their current values.
func (h *APIHandler) handleUpdateRuleset(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.jsonError(w, http.StatusBadRequest, "Bad request", "Invalid ruleset ID")
		return
	}

	var req rulesetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, http.StatusBadRequest, "Bad request", "Request body could not be read properly")
		return
	}

	rs, err := h.app.repo.GetRuleset(r.Context(), userID, id)
	if err != nil {
		h.writeRepoError(w, err)
		return
	}

	if req.Prefix != nil {
		if err := validatePrefix(*req.Prefix); err != nil {
			h.jsonError(w, http.StatusBadRequest, "Bad request", err.Error())
			return
		}
		rs.Prefix = *req.Prefix
	}
	if req.BaseURL != nil {
		baseURL, err := normalizeBaseURL(*req.BaseURL)
		if err != nil {
			h.jsonError(w, http.StatusBadRequest, "Bad request", err.Error())
			return
		}
		rs.BaseURL = baseURL
	}
	if req.APIKey != nil && *req.APIKey != "" {
		userKey := crypto.DeriveKey(userID, h.cfg.Gateway.MasterSecret)
		ct, err := crypto.Encrypt(*req.APIKey, userKey)
		if err != nil {
			h.jsonError(w, http.StatusInternalServerError, "Internal server error", err.Error())
			return
		}
		rs.APIKeyEncrypted = ct.Encrypted
		rs.APIKeyIV = ct.IV
		rs.APIKeyPreview = keyPreview(*req.APIKey)
	}
	if req.IsDefault != nil {
		rs.IsDefault = *req.IsDefault
	}
	if req.ProviderRules != nil {
		rs.ProviderRules = *req.ProviderRules
	}
	if req.ModelRules != nil {
		rs.ModelRules = *req.ModelRules
	}

	if err := h.app.repo.UpdateRuleset(r.Context(), rs); err != nil {
		h.writeRepoError(w, err)
		return
	}

	h.app.InvalidateUserRules(userID)
	h.jsonResponse(w, newRulesetView(rs))
}

// handleDeleteRuleset soft deletes a ruleset, freeing its prefix.
func (h *APIHandler) handleDeleteRuleset(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.jsonError(w, http.StatusBadRequest, "Bad request", "Invalid ruleset ID")
		return
	}

	if err := h.app.repo.SoftDeleteRuleset(r.Context(), userID, id); err != nil {
		h.writeRepoError(w, err)
		return
	}

	h.app.InvalidateUserRules(userID)
	h.jsonResponse(w, map[string]string{"status": "deleted", "id": id.String()})
}

// handleCreateKey issues a new virtual key. The plaintext secret appears in
// this response and nowhere else.
func (h *APIHandler) handleCreateKey(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	var req struct {
		Name string `json:"name"`
	}
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req)
	}

	gen, err := crypto.GenerateAPIKey(h.cfg.Gateway.KeyLength, crypto.KeyPrefix)
	if err != nil {
		h.jsonError(w, http.StatusInternalServerError, "Internal server error", err.Error())
		return
	}

	key := &models.VirtualKey{
		UserID:  userID,
		Name:    req.Name,
		Hash:    gen.Hash,
		Preview: gen.Preview,
	}
	if err := h.app.repo.CreateKey(r.Context(), key); err != nil {
		h.writeRepoError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]any{
		"id":         key.ID,
		"name":       key.Name,
		"key":        gen.Key,
		"preview":    key.Preview,
		"created_at": key.CreatedAt,
	})
}

// handleListKeys returns the caller's live keys, newest first.
func (h *APIHandler) handleListKeys(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	keys, err := h.app.repo.ListKeys(r.Context(), userID)
	if err != nil {
		h.writeRepoError(w, err)
		return
	}

	views := make([]keyView, 0, len(keys))
	for i := range keys {
		views = append(views, newKeyView(&keys[i]))
	}
	h.jsonResponse(w, views)
}

// handleSetKeyStatus enables or disables a key and evicts its cached bundle.
func (h *APIHandler) handleSetKeyStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.jsonError(w, http.StatusBadRequest, "Bad request", "Invalid key ID")
		return
	}

	var req struct {
		Disabled *bool `json:"disabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Disabled == nil {
		h.jsonError(w, http.StatusBadRequest, "Bad request", "'disabled' must be a boolean")
		return
	}

	hash, err := h.app.repo.SetKeyDisabled(r.Context(), userID, id, *req.Disabled)
	if err != nil {
		h.writeRepoError(w, err)
		return
	}

	h.app.InvalidateKeyHash(hash)
	h.jsonResponse(w, map[string]any{"id": id.String(), "disabled": *req.Disabled})
}

// handleDeleteKey soft deletes a key and evicts its cached bundle.
func (h *APIHandler) handleDeleteKey(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.jsonError(w, http.StatusBadRequest, "Bad request", "Invalid key ID")
		return
	}

	hash, err := h.app.repo.SoftDeleteKey(r.Context(), userID, id)
	if err != nil {
		h.writeRepoError(w, err)
		return
	}

	h.app.InvalidateKeyHash(hash)
	h.jsonResponse(w, map[string]string{"status": "deleted", "id": id.String()})
}

// writeRepoError maps repository sentinels to HTTP statuses.
func (h *APIHandler) writeRepoError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrRulesetNotFound), errors.Is(err, repository.ErrKeyNotFound):
		h.jsonError(w, http.StatusNotFound, "Not found", err.Error())
	case errors.Is(err, repository.ErrDuplicatePrefix):
		h.jsonError(w, http.StatusConflict, "Conflict", err.Error())
	default:
		h.jsonError(w, http.StatusInternalServerError, "Internal server error", err.Error())
	}
}

// validatePrefix rejects prefixes that cannot be routed: empty ones, ones
// with spaces, and the reserved word "new" (used by dashboard URLs).
func validatePrefix(prefix string) error {
	if prefix == "" {
		return fmt.Errorf("prefix cannot be empty")
	}
	if prefix == "new" {
		return fmt.Errorf("prefix 'new' is reserved")
	}
	if strings.ContainsAny(prefix, " \t") {
		return fmt.Errorf("prefix cannot contain spaces")
	}
	return nil
}

// normalizeBaseURL validates the URL and pins it to exactly one trailing
// slash so upstream paths concatenate cleanly.
func normalizeBaseURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("base_url must be a valid http(s) URL")
	}
	return strings.TrimRight(raw, "/") + "/", nil
}

// keyPreview keeps the last few characters of a provider key for display.
func keyPreview(apiKey string) string {
	if len(apiKey) <= previewLength {
		return apiKey
	}
	return apiKey[len(apiKey)-previewLength:]
}
