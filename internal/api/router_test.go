package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dxhuy/werewolf-agents/internal/db"
	ws "github.com/dxhuy/werewolf-agents/internal/websocket"
)

// stubAgent fails every turn so games run on default actions, which keeps
// API tests independent of any model backend.
type stubAgent struct{}

func (stubAgent) Complete(ctx context.Context, prompt string) (string, error) {
	return "", errors.New("no backend in tests")
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	t.Setenv("JWT_SECRET", "test-secret")

	database, err := db.NewDB(":memory:")
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	hub := ws.NewHub()
	go hub.Run()

	return NewServer(database, hub, stubAgent{})
}

func doJSON(t *testing.T, s *Server, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func authToken(t *testing.T, s *Server, userID string) string {
	t.Helper()
	rec := doJSON(t, s, "POST", "/api/auth/token", "", map[string]string{"user_id": userID})
	if rec.Code != http.StatusOK {
		t.Fatalf("issueToken status = %d: %s", rec.Code, rec.Body)
	}
	var resp struct {
		Data struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode token response: %v", err)
	}
	return resp.Data.Token
}

func createTestGame(t *testing.T, s *Server, token string) string {
	t.Helper()
	rec := doJSON(t, s, "POST", "/api/games", token, map[string]interface{}{"seats": 6, "seed": 1})
	if rec.Code != http.StatusCreated {
		t.Fatalf("createGame status = %d: %s", rec.Code, rec.Body)
	}
	var resp struct {
		Data map[string]interface{} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode create response: %v", err)
	}

	// The public snapshot must never expose seat roles.
	players, _ := resp.Data["players"].([]interface{})
	if len(players) != 6 {
		t.Fatalf("snapshot players = %v", resp.Data["players"])
	}
	for _, raw := range players {
		p := raw.(map[string]interface{})
		if _, leaked := p["role"]; leaked {
			t.Fatal("create response leaks roles")
		}
	}

	rec = doJSON(t, s, "GET", "/api/games", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("listGames status = %d", rec.Code)
	}
	var list struct {
		Data []db.GameSummary `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil || len(list.Data) == 0 {
		t.Fatalf("list response %s: %v", rec.Body, err)
	}
	return list.Data[0].ID
}

func TestCreateRequiresAuth(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, s, "POST", "/api/games", "", map[string]interface{}{"seats": 6})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated create status = %d, want 401", rec.Code)
	}
}

func TestCreateAndStepGame(t *testing.T) {
	s := newTestServer(t)
	token := authToken(t, s, "owner-1")
	gameID := createTestGame(t, s, token)

	// preparation -> night
	rec := doJSON(t, s, "POST", fmt.Sprintf("/api/games/%s/step", gameID), token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("step status = %d: %s", rec.Code, rec.Body)
	}
	var stepResp struct {
		Data struct {
			Phase string `json:"phase"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &stepResp); err != nil {
		t.Fatalf("decode step response: %v", err)
	}
	if stepResp.Data.Phase != "night" {
		t.Errorf("phase after first step = %q, want night", stepResp.Data.Phase)
	}

	// A non-owner may watch but not drive.
	stranger := authToken(t, s, "stranger")
	rec = doJSON(t, s, "POST", fmt.Sprintf("/api/games/%s/step", gameID), stranger, nil)
	if rec.Code != http.StatusForbidden {
		t.Errorf("stranger step status = %d, want 403", rec.Code)
	}
	rec = doJSON(t, s, "GET", "/api/games/"+gameID, "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("public get status = %d, want 200", rec.Code)
	}
}

func TestCreateRejectsBadSeatCount(t *testing.T) {
	s := newTestServer(t)
	token := authToken(t, s, "owner-2")
	rec := doJSON(t, s, "POST", "/api/games", token, map[string]interface{}{"seats": 2})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("2-seat create status = %d, want 400", rec.Code)
	}
}

func TestLogsVisibility(t *testing.T) {
	s := newTestServer(t)
	token := authToken(t, s, "owner-3")
	gameID := createTestGame(t, s, token)

	// Step through preparation and the first night to generate events.
	for i := 0; i < 2; i++ {
		rec := doJSON(t, s, "POST", fmt.Sprintf("/api/games/%s/step", gameID), token, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("step %d status = %d: %s", i, rec.Code, rec.Body)
		}
	}

	rec := doJSON(t, s, "GET", fmt.Sprintf("/api/games/%s/logs", gameID), "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("logs status = %d", rec.Code)
	}
	var logs struct {
		Data []map[string]interface{} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &logs); err != nil {
		t.Fatalf("decode logs: %v", err)
	}
	for _, e := range logs.Data {
		if e["visibility"] != "public" {
			t.Errorf("unscoped log request returned non-public event: %v", e)
		}
	}
}

func TestGetGameValidatesID(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, s, "GET", "/api/games/bad%20id", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid id status = %d, want 400", rec.Code)
	}
}

func TestDeleteGame(t *testing.T) {
	s := newTestServer(t)
	token := authToken(t, s, "owner-4")
	gameID := createTestGame(t, s, token)

	rec := doJSON(t, s, "DELETE", "/api/games/"+gameID, token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d: %s", rec.Code, rec.Body)
	}
	rec = doJSON(t, s, "GET", "/api/games/"+gameID, "", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", rec.Code)
	}
}
