// Package testutil provides mock upstream services for tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
)

// MockResponse overrides the response for one request.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
}

// MockGamma serves a fixed list of markets with limit/offset pagination.
type MockGamma struct {
	server *httptest.Server

	mu        sync.Mutex
	markets   []json.RawMessage
	overrides map[int][]MockResponse // offset -> queued responses
	queries   []string
}

// NewMockGamma starts a metadata server holding markets.
func NewMockGamma(markets []json.RawMessage) *MockGamma {
	m := &MockGamma{
		markets:   markets,
		overrides: make(map[int][]MockResponse),
	}
	m.server = httptest.NewServer(http.HandlerFunc(m.handle))
	return m
}

// URL returns the mock server URL.
func (m *MockGamma) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockGamma) Close() {
	m.server.Close()
}

// QueueResponse makes the next request at offset return resp instead of
// data. Queued responses are consumed in order.
func (m *MockGamma) QueueResponse(offset int, resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overrides[offset] = append(m.overrides[offset], resp)
}

// RequestCount returns the number of requests served.
func (m *MockGamma) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queries)
}

// Queries returns the raw query strings received, in order.
func (m *MockGamma) Queries() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.queries...)
}

func (m *MockGamma) handle(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/markets" {
		http.NotFound(w, r)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	m.mu.Lock()
	m.queries = append(m.queries, r.URL.RawQuery)
	var override *MockResponse
	if queued := m.overrides[offset]; len(queued) > 0 {
		override = &queued[0]
		m.overrides[offset] = queued[1:]
	}
	m.mu.Unlock()

	if override != nil {
		writeMock(w, *override)
		return
	}

	if limit <= 0 {
		limit = 100
	}
	end := offset + limit
	if offset > len(m.markets) {
		offset = len(m.markets)
	}
	if end > len(m.markets) {
		end = len(m.markets)
	}

	page := m.markets[offset:end]
	if page == nil {
		page = []json.RawMessage{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(page)
}

func writeMock(w http.ResponseWriter, resp MockResponse) {
	for k, v := range resp.Headers {
		w.Header().Set(k, v)
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		_, _ = w.Write([]byte(resp.Body))
	}
}

// GenerateMarkets returns n binary markets. Market i has id "m<i>" and
// token ids "t<i>-yes" and "t<i>-no", encoded as JSON strings the way the
// live service sends them.
func GenerateMarkets(n int) []json.RawMessage {
	out := make([]json.RawMessage, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, json.RawMessage(fmt.Sprintf(
			`{"id":"m%d","slug":"market-%d","question":"Question %d?","category":"Sports","active":true,"closed":false,`+
				`"endDateIso":"2025-12-31","outcomes":"[\"Yes\", \"No\"]","clobTokenIds":"[\"t%d-yes\", \"t%d-no\"]",`+
				`"volumeNum":1000.5,"liquidityNum":250,"enableOrderBook":true}`,
			i, i, i, i, i)))
	}
	return out
}

// Market builds a single market with explicit outcome and token lists.
func Market(id string, outcomes, tokenIDs []string) json.RawMessage {
	o, _ := json.Marshal(outcomes)
	t, _ := json.Marshal(tokenIDs)
	return json.RawMessage(fmt.Sprintf(
		`{"id":%q,"slug":"market-%s","question":"Question %s?","active":true,"closed":false,"outcomes":%s,"clobTokenIds":%s}`,
		id, id, id, o, t))
}
