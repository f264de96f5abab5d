package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	app "github.com/Inscribe-Network/archive_layer/internal/app"
	"github.com/Inscribe-Network/archive_layer/internal/app/domain/contribution"
)

func newTestApp(t *testing.T) *app.Application {
	t.Helper()
	application, err := app.New(app.Stores{}, app.Options{TotalSupply: 1000}, nil)
	if err != nil {
		t.Fatalf("new application: %v", err)
	}
	ctx := context.Background()
	if err := application.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() {
		if err := application.Stop(context.Background()); err != nil {
			t.Fatalf("stop: %v", err)
		}
	})
	return application
}

func doRequest(t *testing.T, h http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("{}")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestSubmit_CreatedThenDuplicate(t *testing.T) {
	h := NewHandler(newTestApp(t), "")

	body := `{"content": "a fresh contribution body", "title": "t", "submitter_id": "alice"}`
	rec := doRequest(t, h, http.MethodPost, "/contributions", body, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("first submit: code %d body %s", rec.Code, rec.Body.String())
	}
	var first contribution.Contribution
	if err := json.Unmarshal(rec.Body.Bytes(), &first); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if first.Status != contribution.StatusSubmitted {
		t.Fatalf("fresh intake should be queued, got %s", first.Status)
	}

	rec = doRequest(t, h, http.MethodPost, "/contributions", body, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("duplicate submit: code %d", rec.Code)
	}
	var second contribution.Contribution
	if err := json.Unmarshal(rec.Body.Bytes(), &second); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("duplicate returned a different record: %s vs %s", second.ID, first.ID)
	}
	if second.Status != contribution.StatusSubmitted {
		t.Fatalf("duplicate must not disturb lifecycle, got %s", second.Status)
	}
}

func TestSubmit_Validation(t *testing.T) {
	h := NewHandler(newTestApp(t), "")

	rec := doRequest(t, h, http.MethodPost, "/contributions", `{"content": "", "submitter_id": "alice"}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty content: code %d", rec.Code)
	}
	rec = doRequest(t, h, http.MethodPost, "/contributions", `not json`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("malformed body: code %d", rec.Code)
	}
}

func TestGetContribution_NotFound(t *testing.T) {
	h := NewHandler(newTestApp(t), "")
	rec := doRequest(t, h, http.MethodGet, "/contributions/nope", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("code %d, want 404", rec.Code)
	}
}

func TestListContributions_Filters(t *testing.T) {
	h := NewHandler(newTestApp(t), "")

	for _, body := range []string{
		`{"content": "first body of text", "submitter_id": "alice"}`,
		`{"content": "second body of text", "submitter_id": "bob"}`,
	} {
		if rec := doRequest(t, h, http.MethodPost, "/contributions", body, nil); rec.Code != http.StatusCreated {
			t.Fatalf("seed: code %d", rec.Code)
		}
	}

	rec := doRequest(t, h, http.MethodGet, "/contributions?submitter=bob", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: code %d", rec.Code)
	}
	var result []contribution.Contribution
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(result) != 1 || result[0].SubmitterID != "bob" {
		t.Fatalf("filter result: %#v", result)
	}

	rec = doRequest(t, h, http.MethodGet, "/contributions?status=bogus", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown status filter: code %d", rec.Code)
	}
}

func TestLifecycleActions(t *testing.T) {
	h := NewHandler(newTestApp(t), "")

	rec := doRequest(t, h, http.MethodPost, "/contributions", `{"content": "archivable body", "submitter_id": "alice"}`, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("submit: code %d", rec.Code)
	}
	var c contribution.Contribution
	if err := json.Unmarshal(rec.Body.Bytes(), &c); err != nil {
		t.Fatalf("decode: %v", err)
	}

	rec = doRequest(t, h, http.MethodPost, "/contributions/"+c.ID+"/archive", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("archive: code %d body %s", rec.Code, rec.Body.String())
	}

	// Archived is terminal: re-archiving is a conflict.
	rec = doRequest(t, h, http.MethodPost, "/contributions/"+c.ID+"/archive", "", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("re-archive: code %d, want 409", rec.Code)
	}
}

func TestLedgerEndpoints(t *testing.T) {
	h := NewHandler(newTestApp(t), "")

	rec := doRequest(t, h, http.MethodGet, "/ledger", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("stats: code %d", rec.Code)
	}
	var stats struct {
		CurrentEpoch string `json:"current_epoch"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats.CurrentEpoch != "founder" {
		t.Fatalf("current epoch = %q, want founder", stats.CurrentEpoch)
	}

	rec = doRequest(t, h, http.MethodPost, "/ledger/epoch", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("advance: code %d", rec.Code)
	}

	rec = doRequest(t, h, http.MethodGet, "/ledger/history", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("history: code %d", rec.Code)
	}
}

func TestAuth_GuardsMutatingRoutes(t *testing.T) {
	const secret = "test-secret"
	h := NewHandler(newTestApp(t), secret)

	body := `{"content": "guarded body", "submitter_id": "alice"}`

	rec := doRequest(t, h, http.MethodPost, "/contributions", body, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token: code %d, want 401", rec.Code)
	}

	rec = doRequest(t, h, http.MethodPost, "/contributions", body, map[string]string{
		"Authorization": "Bearer not-a-token",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("garbage token: code %d, want 401", rec.Code)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "alice",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	rec = doRequest(t, h, http.MethodPost, "/contributions", body, map[string]string{
		"Authorization": "Bearer " + signed,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("valid token: code %d body %s", rec.Code, rec.Body.String())
	}

	// Reads stay open.
	rec = doRequest(t, h, http.MethodGet, "/contributions", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("unauthenticated read: code %d", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	h := NewHandler(newTestApp(t), "")
	rec := doRequest(t, h, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("code %d", rec.Code)
	}
}

func TestNetworkSnapshot(t *testing.T) {
	h := NewHandler(newTestApp(t), "")
	rec := doRequest(t, h, http.MethodGet, "/network", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("code %d", rec.Code)
	}
	var graph struct {
		Nodes []json.RawMessage `json:"nodes"`
		Edges []json.RawMessage `json:"edges"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &graph); err != nil {
		t.Fatalf("decode: %v", err)
	}
}
