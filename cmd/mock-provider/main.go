// Package main runs the mock OpenAI-compatible provider as a standalone
// server, for pointing a locally running gateway at during development and
// E2E runs.
package main

import (
	"net/http"
	"os"

	"modelrules/e2e/mocks"
	"modelrules/observability"
)

func main() {
	observability.InitLogger(false)

	addr := os.Getenv("MOCK_PROVIDER_ADDR")
	if addr == "" {
		addr = ":9090"
	}
	apiKey := os.Getenv("MOCK_PROVIDER_API_KEY")
	if apiKey == "" {
		apiKey = "sk-mock-provider-key"
	}

	provider := mocks.NewMockProviderHandler(apiKey)

	observability.Info("mock provider listening", "addr", addr)
	if err := http.ListenAndServe(addr, provider); err != nil {
		observability.Fatal("mock provider failed", "error", err)
	}
}
