package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"asistencia/internal/app/server"
	"asistencia/internal/platform/config"
)

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error any             `json:"error"`
}

func testConfig(t *testing.T, dbURL string) config.Config {
	t.Helper()
	return config.Config{
		DatabaseURL:       dbURL,
		BaseURL:           "http://test.local",
		JWTSecret:         "test-secret",
		DTAccessSecret:    "test-dt-secret",
		CronSecret:        "test-cron-secret",
		Environment:       "test",
		SeedAdminEmail:    "admin@test.local",
		SeedAdminPassword: "ChangeMe123!",
		EmailFrom:         "no-reply@test.local",
		RunMigrations:     true,
		RunSeed:           true,
		MaxBodyBytes:      1048576,
		RateLimitPerMin:   1000,
		ReceiptDir:        t.TempDir(),
		ReceiptMaxTries:   5,
		ReceiptCooldown:   2 * time.Minute,
		SweepBatch:        50,
		MetricsEnabled:    true,
	}
}

func TestAttendanceLedgerJourney(t *testing.T) {
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	cfg := testConfig(t, dbURL)
	app, err := server.New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("failed to start app: %v", err)
	}
	defer app.Close()

	ts := httptest.NewServer(app.Router)
	defer ts.Close()

	client := ts.Client()
	token := login(t, client, ts.URL, cfg.SeedAdminEmail, cfg.SeedAdminPassword)

	siteID := createSite(t, client, ts.URL, token)
	personEmail := fmt.Sprintf("journey-%d@example.com", time.Now().UnixNano())
	personID := createPerson(t, client, ts.URL, token, personEmail, siteID)

	base := time.Now().Add(-2 * time.Hour).UTC()
	firstMark := appendMark(t, client, ts.URL, token, map[string]any{
		"subjectId": personID,
		"kind":      "in",
		"eventTs":   base.Format(time.RFC3339),
		"siteId":    siteID,
	})
	secondMark := appendMark(t, client, ts.URL, token, map[string]any{
		"subjectId": personID,
		"kind":      "out",
		"eventTs":   base.Add(8 * time.Hour).Format(time.RFC3339),
		"siteId":    siteID,
	})

	if secondMark["chainLink"] != firstMark["selfHash"] {
		t.Fatalf("chain not linked: second mark link %v, first mark hash %v", secondMark["chainLink"], firstMark["selfHash"])
	}

	// A mark whose event time precedes the chain tail must be rejected.
	postJSONStatus(t, client, ts.URL+"/api/v1/attendance/marks", token, map[string]any{
		"subjectId": personID,
		"kind":      "in",
		"eventTs":   base.Add(-time.Hour).Format(time.RFC3339),
	}, http.StatusBadRequest)

	history := listHistory(t, client, ts.URL, token, personID)
	if len(history) != 2 {
		t.Fatalf("expected 2 marks in history, got %d", len(history))
	}

	report := integrityCheck(t, client, ts.URL, token, personID)
	if report["status"] != "INTEGRITY_VERIFIED" {
		t.Fatalf("expected INTEGRITY_VERIFIED, got %v", report["status"])
	}

	// The corrections workflow appends a new chained event instead of
	// rewriting the contested one.
	markID, _ := firstMark["id"].(string)
	requestID := createModificationRequest(t, client, ts.URL, token, markID, base.Add(-30*time.Minute))
	approveResp := postJSON(t, client, ts.URL+"/api/v1/attendance/modification-requests/"+requestID+"/approve", token, map[string]any{})
	var approvePayload map[string]any
	if err := json.Unmarshal(approveResp.Data, &approvePayload); err != nil {
		t.Fatalf("failed to decode approve response: %v", err)
	}
	if approvePayload["correctionMark"] == nil {
		t.Fatal("expected a correction mark from approval")
	}

	// Approving twice must conflict.
	postJSONStatus(t, client, ts.URL+"/api/v1/attendance/modification-requests/"+requestID+"/approve", token, map[string]any{}, http.StatusConflict)

	history = listHistory(t, client, ts.URL, token, personID)
	if len(history) != 3 {
		t.Fatalf("expected 3 marks after correction, got %d", len(history))
	}

	report = integrityCheck(t, client, ts.URL, token, personID)
	if report["status"] != "INTEGRITY_VERIFIED" {
		t.Fatalf("chain must stay verified after a correction, got %v", report["status"])
	}
}

func TestDTAccessJourney(t *testing.T) {
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	cfg := testConfig(t, dbURL)
	app, err := server.New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("failed to start app: %v", err)
	}
	defer app.Close()

	ts := httptest.NewServer(app.Router)
	defer ts.Close()

	client := ts.Client()
	token := login(t, client, ts.URL, cfg.SeedAdminEmail, cfg.SeedAdminPassword)

	siteID := createSite(t, client, ts.URL, token)
	personEmail := fmt.Sprintf("dt-journey-%d@example.com", time.Now().UnixNano())
	personID := createPerson(t, client, ts.URL, token, personEmail, siteID)

	now := time.Now().UTC()
	appendMark(t, client, ts.URL, token, map[string]any{
		"subjectId": personID,
		"kind":      "in",
		"eventTs":   now.Format(time.RFC3339),
	})

	issueResp := postJSON(t, client, ts.URL+"/api/v1/admin/attendance/dt/access", token, map[string]any{
		"from":      now.Add(-24 * time.Hour).Format(time.RFC3339),
		"to":        now.Add(24 * time.Hour).Format(time.RFC3339),
		"personIds": []string{personID},
		"ttl":       "1h",
	})
	var grant map[string]any
	if err := json.Unmarshal(issueResp.Data, &grant); err != nil {
		t.Fatalf("failed to decode grant: %v", err)
	}
	grantToken, _ := grant["token"].(string)
	if grantToken == "" {
		t.Fatal("expected a grant token")
	}

	// Redemption needs no session, just the token.
	redeemResp := getJSON(t, client, ts.URL+"/api/v1/admin/attendance/dt/access?token="+grantToken, "")
	var redeemed map[string]any
	if err := json.Unmarshal(redeemResp.Data, &redeemed); err != nil {
		t.Fatalf("failed to decode redeem response: %v", err)
	}
	marks, _ := redeemed["marks"].([]any)
	if len(marks) != 1 {
		t.Fatalf("expected 1 mark in grant scope, got %d", len(marks))
	}

	getJSONStatus(t, client, ts.URL+"/api/v1/admin/attendance/dt/access?token=garbage", "", http.StatusForbidden)

	// The grant lifetime can also be given in minutes.
	issueResp = postJSON(t, client, ts.URL+"/api/v1/admin/attendance/dt/access", token, map[string]any{
		"from":             now.Add(-24 * time.Hour).Format(time.RFC3339),
		"to":               now.Add(24 * time.Hour).Format(time.RFC3339),
		"personIds":        []string{personID},
		"expiresInMinutes": 60,
	})
	if err := json.Unmarshal(issueResp.Data, &grant); err != nil {
		t.Fatalf("failed to decode minute-lifetime grant: %v", err)
	}
	if tok, _ := grant["token"].(string); tok == "" {
		t.Fatal("expected a grant token for a minute lifetime")
	}
	postJSONStatus(t, client, ts.URL+"/api/v1/admin/attendance/dt/access", token, map[string]any{
		"from":             now.Add(-24 * time.Hour).Format(time.RFC3339),
		"to":               now.Add(24 * time.Hour).Format(time.RFC3339),
		"expiresInMinutes": 3,
	}, http.StatusBadRequest)

	// A filter outside the granted person set narrows to nothing.
	redeemResp = getJSON(t, client, ts.URL+"/api/v1/admin/attendance/dt/access?token="+grantToken+"&personIds=someone-else", "")
	if err := json.Unmarshal(redeemResp.Data, &redeemed); err != nil {
		t.Fatalf("failed to decode narrowed redeem response: %v", err)
	}
	marks, _ = redeemed["marks"].([]any)
	if len(marks) != 0 {
		t.Fatalf("disjoint filter must return no marks, got %d", len(marks))
	}
}

func TestCronSweepAndAdminSurfaces(t *testing.T) {
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	cfg := testConfig(t, dbURL)
	app, err := server.New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("failed to start app: %v", err)
	}
	defer app.Close()

	ts := httptest.NewServer(app.Router)
	defer ts.Close()

	client := ts.Client()
	token := login(t, client, ts.URL, cfg.SeedAdminEmail, cfg.SeedAdminPassword)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/v1/cron/process-emails", nil)
	if err != nil {
		t.Fatalf("failed to create cron request: %v", err)
	}
	req.Header.Set("X-Cron-Secret", cfg.CronSecret)
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("cron request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("cron sweep: got %d, want 200", resp.StatusCode)
	}

	getJSONStatus(t, client, ts.URL+"/api/v1/cron/process-emails", "", http.StatusUnauthorized)

	getJSON(t, client, ts.URL+"/api/v1/admin/receipts?status=pending", token)

	auditResp := getJSON(t, client, ts.URL+"/api/v1/admin/audit", token)
	var auditPage struct {
		Events []struct {
			CreatedAt time.Time `json:"createdAt"`
		} `json:"events"`
	}
	if err := json.Unmarshal(auditResp.Data, &auditPage); err != nil {
		t.Fatalf("failed to decode audit events: %v", err)
	}
	for _, e := range auditPage.Events {
		if e.CreatedAt.IsZero() {
			t.Fatal("audit events must carry their creation time")
		}
	}

	getJSON(t, client, ts.URL+"/api/v1/admin/metrics", token)
}

func login(t *testing.T, client *http.Client, baseURL, email, password string) string {
	t.Helper()
	resp := postJSON(t, client, baseURL+"/api/v1/auth/login", "", map[string]any{
		"email":    email,
		"password": password,
	})
	var payload map[string]any
	if err := json.Unmarshal(resp.Data, &payload); err != nil {
		t.Fatalf("failed to decode login response: %v", err)
	}
	token, _ := payload["token"].(string)
	if token == "" {
		t.Fatal("expected token")
	}
	return token
}

func createSite(t *testing.T, client *http.Client, baseURL, token string) string {
	t.Helper()
	resp := postJSON(t, client, baseURL+"/api/v1/sites", token, map[string]any{
		"name":     fmt.Sprintf("Obra %d", time.Now().UnixNano()),
		"address":  "Av. Principal 123",
		"timezone": "America/Santiago",
	})
	var payload map[string]any
	if err := json.Unmarshal(resp.Data, &payload); err != nil {
		t.Fatalf("failed to decode site response: %v", err)
	}
	id, _ := payload["id"].(string)
	if id == "" {
		t.Fatal("expected site id")
	}
	return id
}

func createPerson(t *testing.T, client *http.Client, baseURL, token, email, siteID string) string {
	t.Helper()
	resp := postJSON(t, client, baseURL+"/api/v1/people", token, map[string]any{
		"firstName": "Journey",
		"lastName":  "Tester",
		"email":     email,
		"siteId":    siteID,
	})
	var payload map[string]any
	if err := json.Unmarshal(resp.Data, &payload); err != nil {
		t.Fatalf("failed to decode person response: %v", err)
	}
	id, _ := payload["id"].(string)
	if id == "" {
		t.Fatal("expected person id")
	}
	return id
}

func appendMark(t *testing.T, client *http.Client, baseURL, token string, body map[string]any) map[string]any {
	t.Helper()
	resp := postJSON(t, client, baseURL+"/api/v1/attendance/marks", token, body)
	var payload map[string]any
	if err := json.Unmarshal(resp.Data, &payload); err != nil {
		t.Fatalf("failed to decode mark response: %v", err)
	}
	if id, _ := payload["id"].(string); id == "" {
		t.Fatal("expected mark id")
	}
	return payload
}

func listHistory(t *testing.T, client *http.Client, baseURL, token, subjectID string) []any {
	t.Helper()
	resp := getJSON(t, client, baseURL+"/api/v1/attendance/history?subjectId="+subjectID, token)
	var payload map[string]any
	if err := json.Unmarshal(resp.Data, &payload); err != nil {
		t.Fatalf("failed to decode history response: %v", err)
	}
	marks, _ := payload["marks"].([]any)
	return marks
}

func integrityCheck(t *testing.T, client *http.Client, baseURL, token, subjectID string) map[string]any {
	t.Helper()
	resp := getJSON(t, client, baseURL+"/api/v1/attendance/integrity-check?subjectId="+subjectID, token)
	var payload map[string]any
	if err := json.Unmarshal(resp.Data, &payload); err != nil {
		t.Fatalf("failed to decode integrity response: %v", err)
	}
	return payload
}

func createModificationRequest(t *testing.T, client *http.Client, baseURL, token, markID string, requestedTS time.Time) string {
	t.Helper()
	resp := postJSON(t, client, baseURL+"/api/v1/attendance/modification-requests", token, map[string]any{
		"markId":      markID,
		"reason":      "Olvidé marcar la entrada real",
		"requestedTs": requestedTS.Format(time.RFC3339),
	})
	var payload map[string]any
	if err := json.Unmarshal(resp.Data, &payload); err != nil {
		t.Fatalf("failed to decode modification request response: %v", err)
	}
	id, _ := payload["id"].(string)
	if id == "" {
		t.Fatal("expected modification request id")
	}
	return id
}

func postJSON(t *testing.T, client *http.Client, url, token string, body any) envelope {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		reader = bytes.NewBuffer(raw)
	}
	req, err := http.NewRequest(http.MethodPost, url, reader)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response: %v", err)
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.StatusCode >= 400 {
		t.Fatalf("unexpected status %d: %s", resp.StatusCode, string(raw))
	}
	return env
}

func postJSONStatus(t *testing.T, client *http.Client, url, token string, body any, want int) {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal body: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewBuffer(raw))
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	payload, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != want {
		t.Fatalf("expected status %d, got %d: %s", want, resp.StatusCode, string(payload))
	}
}

func getJSON(t *testing.T, client *http.Client, url, token string) envelope {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response: %v", err)
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.StatusCode >= 400 {
		t.Fatalf("unexpected status %d: %s", resp.StatusCode, string(raw))
	}
	return env
}

func getJSONStatus(t *testing.T, client *http.Client, url, token string, want int) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != want {
		t.Fatalf("expected status %d, got %d: %s", want, resp.StatusCode, string(raw))
	}
}
