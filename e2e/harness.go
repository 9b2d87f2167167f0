// Package e2e provides end-to-end testing infrastructure for the gateway.
//
// Scenarios run against a live gateway process addressed by E2E_GATEWAY_URL
// and are skipped when it is unset. The mock provider started by the harness
// listens on the local host, so the gateway under test must be able to reach
// it.
package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"

	"modelrules/e2e/mocks"
)

// ProviderAPIKey is the credential the mock provider accepts. Scenarios store
// it in rulesets and assert the gateway decrypts and forwards it.
const ProviderAPIKey = "sk-mock-provider-key"

// Harness drives a running gateway and its mock provider.
type Harness struct {
	t        *testing.T
	baseURL  string
	client   *http.Client
	provider *mocks.MockProvider

	// userID isolates this run's admin state from other runs.
	userID string

	createdRulesets []string
	createdKeys     []string
}

// NewHarness builds a harness or skips the test when no gateway is reachable.
func NewHarness(t *testing.T) *Harness {
	t.Helper()

	baseURL := os.Getenv("E2E_GATEWAY_URL")
	if baseURL == "" {
		t.Skip("E2E_GATEWAY_URL not set, skipping end-to-end scenario")
	}

	h := &Harness{
		t:        t,
		baseURL:  baseURL,
		client:   &http.Client{Timeout: 30 * time.Second},
		provider: mocks.NewMockProvider(ProviderAPIKey),
		userID:   fmt.Sprintf("e2e-%d", time.Now().UnixNano()),
	}

	if err := h.waitForGateway(); err != nil {
		h.provider.Close()
		t.Skipf("gateway not reachable at %s: %v", baseURL, err)
	}

	return h
}

// Teardown removes everything the harness created and stops the provider.
func (h *Harness) Teardown() {
	for _, id := range h.createdKeys {
		h.DoAdmin(http.MethodDelete, "/v1/keys/"+id, "")
	}
	for _, id := range h.createdRulesets {
		h.DoAdmin(http.MethodDelete, "/v1/rulesets/"+id, "")
	}
	h.provider.Close()
}

// Provider returns the mock provider for configuring responses and reading
// captured requests.
func (h *Harness) Provider() *mocks.MockProvider {
	return h.provider
}

// UserID returns the identity this run administers under.
func (h *Harness) UserID() string {
	return h.userID
}

// DoRequest performs a plain HTTP request against the gateway.
func (h *Harness) DoRequest(method, path, body string, header http.Header) (*http.Response, []byte) {
	h.t.Helper()

	var reader io.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	}
	req, err := http.NewRequest(method, h.baseURL+path, reader)
	if err != nil {
		h.t.Fatalf("failed to build request: %v", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for name, values := range header {
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}

	resp, err := h.client.Do(req)
	if err != nil {
		h.t.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		h.t.Fatalf("failed to read response body: %v", err)
	}
	return resp, raw
}

// DoAdmin performs an admin API request under the harness's user identity.
func (h *Harness) DoAdmin(method, path, body string) (*http.Response, []byte) {
	h.t.Helper()
	header := http.Header{}
	header.Set("X-User-ID", h.userID)
	return h.DoRequest(method, path, body, header)
}

// DoProxy performs a proxy request authenticated with the given virtual key.
func (h *Harness) DoProxy(secret, path, body string) (*http.Response, []byte) {
	h.t.Helper()
	header := http.Header{}
	header.Set("Authorization", "Bearer "+secret)
	return h.DoRequest(http.MethodPost, path, body, header)
}

// CreateRuleset registers a ruleset pointing at the mock provider and returns
// its ID. Cleanup is handled by Teardown.
func (h *Harness) CreateRuleset(prefix string, isDefault bool) string {
	h.t.Helper()

	body, _ := json.Marshal(map[string]any{
		"prefix":     prefix,
		"base_url":   h.provider.URL() + "/v1",
		"api_key":    ProviderAPIKey,
		"is_default": isDefault,
	})

	resp, raw := h.DoAdmin(http.MethodPost, "/v1/rulesets", string(body))
	if resp.StatusCode != http.StatusCreated {
		h.t.Fatalf("create ruleset failed: %d %s", resp.StatusCode, raw)
	}

	var view struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &view); err != nil {
		h.t.Fatalf("failed to decode ruleset response: %v", err)
	}
	h.createdRulesets = append(h.createdRulesets, view.ID)
	return view.ID
}

// CreateKey issues a virtual key and returns its ID and plaintext secret.
func (h *Harness) CreateKey(name string) (id, secret string) {
	h.t.Helper()

	body, _ := json.Marshal(map[string]string{"name": name})
	resp, raw := h.DoAdmin(http.MethodPost, "/v1/keys", string(body))
	if resp.StatusCode != http.StatusCreated {
		h.t.Fatalf("create key failed: %d %s", resp.StatusCode, raw)
	}

	var view struct {
		ID  string `json:"id"`
		Key string `json:"key"`
	}
	if err := json.Unmarshal(raw, &view); err != nil {
		h.t.Fatalf("failed to decode key response: %v", err)
	}
	h.createdKeys = append(h.createdKeys, view.ID)
	return view.ID, view.Key
}

func (h *Harness) waitForGateway() error {
	var lastErr error
	for i := 0; i < 10; i++ {
		resp, err := h.client.Get(h.baseURL + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
			lastErr = fmt.Errorf("health returned %d", resp.StatusCode)
		} else {
			lastErr = err
		}
		time.Sleep(500 * time.Millisecond)
	}
	return lastErr
}
