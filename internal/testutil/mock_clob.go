package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
)

// Quote is the mock's price pair for one token. Empty strings are omitted
// from the response.
type Quote struct {
	Buy  string
	Sell string
}

// MockCLOB serves POST /prices from a fixed quote table.
type MockCLOB struct {
	server *httptest.Server

	mu      sync.Mutex
	quotes  map[string]Quote
	fail    func(tokenIDs []string) *MockResponse
	batches [][]string
	maxSize int
}

// NewMockCLOB starts a pricing server holding quotes.
func NewMockCLOB(quotes map[string]Quote) *MockCLOB {
	m := &MockCLOB{quotes: quotes, maxSize: 500}
	m.server = httptest.NewServer(http.HandlerFunc(m.handle))
	return m
}

// URL returns the mock server URL.
func (m *MockCLOB) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockCLOB) Close() {
	m.server.Close()
}

// FailWhen installs a hook that can replace the response for a batch.
// Returning nil serves the batch normally.
func (m *MockCLOB) FailWhen(fn func(tokenIDs []string) *MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = fn
}

// Batches returns the token ids of every request received, in arrival order.
func (m *MockCLOB) Batches() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]string(nil), m.batches...)
}

// RequestCount returns the number of requests served.
func (m *MockCLOB) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.batches)
}

func (m *MockCLOB) handle(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/prices" || r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}

	var items []struct {
		TokenID string `json:"token_id"`
		Side    string `json:"side"`
	}
	if err := json.NewDecoder(r.Body).Decode(&items); err != nil {
		http.Error(w, `{"error":"invalid body"}`, http.StatusBadRequest)
		return
	}

	var tokenIDs []string
	seen := make(map[string]bool)
	for _, it := range items {
		if !seen[it.TokenID] {
			seen[it.TokenID] = true
			tokenIDs = append(tokenIDs, it.TokenID)
		}
	}

	m.mu.Lock()
	m.batches = append(m.batches, tokenIDs)
	fail := m.fail
	m.mu.Unlock()

	if len(items) > m.maxSize {
		http.Error(w, `{"error":"too many items"}`, http.StatusBadRequest)
		return
	}
	if fail != nil {
		if resp := fail(tokenIDs); resp != nil {
			writeMock(w, *resp)
			return
		}
	}

	out := make(map[string]map[string]string)
	for _, it := range items {
		q, ok := m.quotes[it.TokenID]
		if !ok {
			continue
		}
		var v string
		switch it.Side {
		case "BUY":
			v = q.Buy
		case "SELL":
			v = q.Sell
		}
		if v == "" {
			continue
		}
		if out[it.TokenID] == nil {
			out[it.TokenID] = make(map[string]string)
		}
		out[it.TokenID][it.Side] = v
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}
