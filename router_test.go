package searchbridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/thinkpixel/searchbridge/content"
	"github.com/thinkpixel/searchbridge/store"
)

func newTestServer(t *testing.T, gw *fakeGateway, items ...content.Item) (*httptest.Server, *store.Store) {
	t.Helper()
	svc, _, st := newTestService(t, gw, items...)
	r := chi.NewRouter()
	svc.RegisterHTTP(r)
	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)
	return ts, st
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestPingRoute(t *testing.T) {
	gw := newFakeGateway()
	ts, _ := newTestServer(t, gw)

	resp := postJSON(t, ts.URL+"/ping", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body map[string]string
	decodeBody(t, resp, &body)
	if body["status"] != "ok" || body["version"] != "3" {
		t.Errorf("ping body = %v, want gateway passthrough", body)
	}
}

func TestPingRouteGatewayDown(t *testing.T) {
	gw := newFakeGateway()
	gw.pingErr = errors.New("dial timeout")
	ts, _ := newTestServer(t, gw)

	resp := postJSON(t, ts.URL+"/ping", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}
}

func TestBulkProcessRoute(t *testing.T) {
	gw := newFakeGateway()
	ts, st := newTestServer(t, gw,
		content.Item{ID: 1, Kind: content.KindPost, Title: "A", Body: "alpha"},
		content.Item{ID: 2, Kind: content.KindPost, Title: "B", Body: "beta"},
	)
	ctx := context.Background()
	for _, id := range []int64{1, 2} {
		if err := st.Track(ctx, id, content.KindPost); err != nil {
			t.Fatal(err)
		}
	}

	resp := postJSON(t, ts.URL+"/bulk-process", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body bulkProcessResponse
	decodeBody(t, resp, &body)
	if !body.Success || body.ProcessedCount != 2 || body.UnprocessedCount != 0 {
		t.Errorf("body = %+v", body)
	}
}

func TestSkipSearchRoute(t *testing.T) {
	gw := newFakeGateway()
	ts, st := newTestServer(t, gw,
		content.Item{ID: 1, Kind: content.KindPost, Title: "Go generics"},
		content.Item{ID: 2, Kind: content.KindPost, Title: "Rust lifetimes"},
		content.Item{ID: 3, Kind: content.KindPost, Title: "Go modules"},
	)
	ctx := context.Background()
	for _, id := range []int64{1, 2, 3} {
		if err := st.Track(ctx, id, content.KindPost); err != nil {
			t.Fatal(err)
		}
	}

	resp := postJSON(t, ts.URL+"/skip-search", skipSearchRequest{Query: "go", Limit: 10})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var page store.SkipStatusPage
	decodeBody(t, resp, &page)
	if page.Count != 2 || len(page.Results) != 2 {
		t.Errorf("page = %+v", page)
	}

	// A one-character query falls back to the match-everything listing.
	resp = postJSON(t, ts.URL+"/skip-search", skipSearchRequest{Query: "g", Limit: 10})
	decodeBody(t, resp, &page)
	if page.Count != 3 {
		t.Errorf("short query count = %d, want 3", page.Count)
	}
}

func TestSkipUpdateRoute(t *testing.T) {
	gw := newFakeGateway()
	ts, st := newTestServer(t, gw)
	ctx := context.Background()
	if err := st.Track(ctx, 1, content.KindPost); err != nil {
		t.Fatal(err)
	}

	resp := postJSON(t, ts.URL+"/skip-update", skipUpdateRequest{IDs: []int64{1}, Skip: true})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if len(gw.removed) != 1 {
		t.Errorf("no index removal requested")
	}

	resp = postJSON(t, ts.URL+"/skip-update", skipUpdateRequest{})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("empty ids status = %d, want 400", resp.StatusCode)
	}
}

func TestSearchRouteCachesResults(t *testing.T) {
	gw := newFakeGateway()
	ts, _ := newTestServer(t, gw)

	for i := 0; i < 2; i++ {
		resp := postJSON(t, ts.URL+"/search", searchRequest{Query: "semantic"})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d", resp.StatusCode)
		}
		var results []map[string]any
		decodeBody(t, resp, &results)
		if len(results) != 1 {
			t.Fatalf("results = %v", results)
		}
	}
	if gw.searchCalls != 1 {
		t.Errorf("gateway search calls = %d, want 1 (second served from cache)", gw.searchCalls)
	}
}

func TestValidateExchangeRoundTrip(t *testing.T) {
	gw := newFakeGateway()
	svc, set, _ := newTestService(t, gw)
	r := chi.NewRouter()
	svc.RegisterHTTP(r)
	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)
	ctx := context.Background()

	if err := set.StoreValidationToken(ctx, "vt-1", time.Now().Add(time.Hour)); err != nil {
		t.Fatal(err)
	}

	resp, err := http.Get(ts.URL + "/validate")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("validate status = %d", resp.StatusCode)
	}
	var info ValidationInfo
	decodeBody(t, resp, &info)
	if info.ValidationToken != "vt-1" || info.Nonce == "" {
		t.Fatalf("info = %+v", info)
	}

	resp = postJSON(t, ts.URL+"/exchange", exchangeRequest{APIKey: "fresh-key", Nonce: info.Nonce})
	var out exchangeResponse
	decodeBody(t, resp, &out)
	if resp.StatusCode != http.StatusOK || !out.Success {
		t.Fatalf("exchange status = %d body = %+v", resp.StatusCode, out)
	}
	if !set.HasAPIKey(ctx) {
		t.Error("api key not stored after exchange")
	}
}

func TestExchangeRouteBadNonce(t *testing.T) {
	gw := newFakeGateway()
	ts, _ := newTestServer(t, gw)

	resp := postJSON(t, ts.URL+"/exchange", exchangeRequest{APIKey: "k", Nonce: "bogus"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want 403", resp.StatusCode)
	}
}

func TestRefreshKeyRoute(t *testing.T) {
	gw := newFakeGateway()
	ts, _ := newTestServer(t, gw)

	resp := postJSON(t, ts.URL+"/refresh-key", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	gw.refreshKey = ""
	resp = postJSON(t, ts.URL+"/refresh-key", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("refused rotation status = %d, want 502", resp.StatusCode)
	}
}

func TestDebugRoute(t *testing.T) {
	gw := newFakeGateway()
	gw.pingErr = errors.New("unreachable")
	ts, _ := newTestServer(t, gw)

	resp, err := http.Get(ts.URL + "/debug")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500 for a broken pipeline", resp.StatusCode)
	}
	var report DebugReport
	decodeBody(t, resp, &report)
	if len(report.Failures) == 0 {
		t.Error("no failures reported")
	}
	if report.Version != Version {
		t.Errorf("version = %q", report.Version)
	}
}
