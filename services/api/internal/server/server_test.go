package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"cowly/pkg/store"
	"cowly/services/api/internal/app"
)

type stubMilk struct{}

func (stubMilk) PredictMilkYield(_ context.Context, features map[string]any) (float64, error) {
	if _, ok := features["feed_intake"]; !ok {
		return 0, errMissingFeed
	}
	return 18.456, nil
}

type stubDisease struct{}

func (stubDisease) PredictDisease(_ context.Context, _ map[string]any) (string, error) {
	return "mastitis", nil
}

type stubError string

func (e stubError) Error() string { return string(e) }

const errMissingFeed = stubError("Missing required field: feed_intake")

type testEnv struct {
	srv  *httptest.Server
	docs *store.MemoryStore
	hub  *Hub
}

func newTestEnv(t *testing.T, redisAddr string) *testEnv {
	t.Helper()
	docs := store.NewMemoryStore()
	a, err := app.New(app.Config{
		Documents:  docs,
		Identities: store.NewMemoryIdentities(),
		JWTSecret:  "test-secret",
		Milk:       stubMilk{},
		Disease:    stubDisease{},
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	hub := NewHub(nil)
	s, err := New(Config{
		App:                  a,
		Hub:                  hub,
		RedisAddr:            redisAddr,
		LoginRateLimitPerMin: 1,
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, docs: docs, hub: hub}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	out := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func (e *testEnv) signup(t *testing.T, email, role string) (string, string) {
	t.Helper()
	status, body := e.do(t, http.MethodPost, "/auth/register", "", map[string]string{
		"name": "Test", "email": email, "password": "secret123", "role": role,
	})
	if status != http.StatusCreated {
		t.Fatalf("register status = %d, body = %v", status, body)
	}
	status, body = e.do(t, http.MethodPost, "/auth/login", "", map[string]string{
		"email": email, "password": "secret123",
	})
	if status != http.StatusOK {
		t.Fatalf("login status = %d, body = %v", status, body)
	}
	return body["user_id"].(string), body["token"].(string)
}

func TestHealth(t *testing.T) {
	e := newTestEnv(t, "")
	status, body := e.do(t, http.MethodGet, "/healthz", "", nil)
	if status != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("health = %d %v", status, body)
	}
}

func TestFarmerCowFlow(t *testing.T) {
	e := newTestEnv(t, "")
	_, token := e.signup(t, "farmer@example.com", "farmer")

	status, body := e.do(t, http.MethodGet, "/cows/getall", token, nil)
	if status != http.StatusOK || body["message"] != "No cows found" {
		t.Fatalf("empty getall = %d %v", status, body)
	}

	cow := map[string]any{
		"cow_id": "Bella", "name": "Bella", "breed": "Holstein",
		"age": 3, "health_status": "Healthy", "milk_production": 21.5,
	}
	status, body = e.do(t, http.MethodPost, "/cows/addcow", token, cow)
	if status != http.StatusOK || body["message"] != "Cow added successfully" {
		t.Fatalf("addcow = %d %v", status, body)
	}
	status, body = e.do(t, http.MethodPost, "/cows/addcow", token, cow)
	if status != http.StatusBadRequest || body["error"] != "Cow ID already exists" {
		t.Fatalf("duplicate addcow = %d %v", status, body)
	}

	status, body = e.do(t, http.MethodGet, "/cows/getall", token, nil)
	data, _ := body["data"].(map[string]any)
	bella, _ := data["bella"].(map[string]any)
	if status != http.StatusOK || bella["created_at"] == nil {
		t.Fatalf("getall = %d %v", status, body)
	}

	status, body = e.do(t, http.MethodPatch, "/cows/update/bella", token, map[string]any{"health_status": "Pregnant"})
	if status != http.StatusOK {
		t.Fatalf("update = %d %v", status, body)
	}
	status, body = e.do(t, http.MethodPatch, "/cows/update/ghost", token, map[string]any{"name": "x"})
	if status != http.StatusNotFound || body["error"] != "Cow not found" {
		t.Fatalf("update ghost = %d %v", status, body)
	}

	status, body = e.do(t, http.MethodGet, "/cows/search?field=health_status&value=pregnant", token, nil)
	results, _ := body["results"].([]any)
	if status != http.StatusOK || len(results) != 1 {
		t.Fatalf("search = %d %v", status, body)
	}
	status, _ = e.do(t, http.MethodGet, "/cows/search?field=breed", token, nil)
	if status != http.StatusBadRequest {
		t.Fatalf("search without value = %d", status)
	}

	status, body = e.do(t, http.MethodGet, "/home/", token, nil)
	if status != http.StatusOK || body["total_cows"] != float64(1) || body["total_milk_production"] != 21.5 {
		t.Fatalf("home = %d %v", status, body)
	}
	status, body = e.do(t, http.MethodGet, "/home/healthsummary", token, nil)
	if status != http.StatusOK || body["total_pregnant_cows"] != float64(1) {
		t.Fatalf("healthsummary = %d %v", status, body)
	}

	status, body = e.do(t, http.MethodDelete, "/cows/delete/bella", token, nil)
	if status != http.StatusOK || body["message"] != "Cow bella deleted successfully" {
		t.Fatalf("delete = %d %v", status, body)
	}
	status, _ = e.do(t, http.MethodDelete, "/cows/delete/bella", token, nil)
	if status != http.StatusNotFound {
		t.Fatalf("second delete = %d", status)
	}
}

func TestCowProfileEndpoint(t *testing.T) {
	e := newTestEnv(t, "")
	uid, token := e.signup(t, "farmer@example.com", "farmer")

	status, body := e.do(t, http.MethodGet, "/cows/bella/profile", token, nil)
	if status != http.StatusNotFound {
		t.Fatalf("no readings = %d %v", status, body)
	}
	reading := map[string]any{
		"temperature":   38.4,
		"accelerometer": map[string]any{"x": 0.5, "y": 0.5, "z": 0.3},
		"gyroscope":     map[string]any{"x": 0, "y": 0, "z": 0},
	}
	if err := e.docs.Set(context.Background(), store.ReadingPath(uid, "bella", "2025-01-01T00-00-00Z"), reading); err != nil {
		t.Fatalf("seed reading: %v", err)
	}
	status, body = e.do(t, http.MethodGet, "/cows/bella/profile", token, nil)
	if status != http.StatusOK || body["activity_level"] != "Medium" || body["temperature"] != 38.4 {
		t.Fatalf("profile = %d %v", status, body)
	}

	if err := e.docs.Set(context.Background(), store.ReadingPath(uid, "bella", "2025-01-02T00-00-00Z"), "junk"); err != nil {
		t.Fatalf("seed reading: %v", err)
	}
	status, _ = e.do(t, http.MethodGet, "/cows/bella/profile", token, nil)
	if status != http.StatusBadRequest {
		t.Fatalf("malformed reading = %d", status)
	}
}

func TestCowProfileForReservedLookingIDs(t *testing.T) {
	e := newTestEnv(t, "")
	uid, token := e.signup(t, "farmer@example.com", "farmer")

	reading := map[string]any{
		"temperature":   38.9,
		"accelerometer": map[string]any{"x": 0, "y": 0, "z": 0},
		"gyroscope":     map[string]any{"x": 0, "y": 0, "z": 0},
	}
	for _, cowID := range []string{"update", "delete"} {
		if err := e.docs.Set(context.Background(), store.ReadingPath(uid, cowID, "2025-01-01T00-00-00Z"), reading); err != nil {
			t.Fatalf("seed reading: %v", err)
		}
		status, body := e.do(t, http.MethodGet, "/cows/"+cowID+"/profile", token, nil)
		if status != http.StatusOK || body["cow_id"] != cowID || body["activity_level"] != "Low" {
			t.Fatalf("profile %s = %d %v", cowID, status, body)
		}
	}
	status, _ := e.do(t, http.MethodPost, "/cows/bella/profile", token, nil)
	if status != http.StatusMethodNotAllowed {
		t.Fatalf("post profile = %d", status)
	}
}

func TestAuthGuards(t *testing.T) {
	e := newTestEnv(t, "")
	_, farmer := e.signup(t, "farmer@example.com", "farmer")
	_, admin := e.signup(t, "admin@example.com", "admin")

	status, body := e.do(t, http.MethodGet, "/cows/getall", "", nil)
	if status != http.StatusUnauthorized || body["error"] != "Token is missing!" {
		t.Fatalf("no token = %d %v", status, body)
	}
	status, body = e.do(t, http.MethodGet, "/cows/getall", "garbage", nil)
	if status != http.StatusUnauthorized || body["error"] != "Token is invalid!" {
		t.Fatalf("bad token = %d %v", status, body)
	}
	status, body = e.do(t, http.MethodGet, "/admin/dashboard", farmer, nil)
	if status != http.StatusForbidden || body["error"] != "admin access required!" {
		t.Fatalf("farmer on admin = %d %v", status, body)
	}
	status, _ = e.do(t, http.MethodGet, "/cows/getall", admin, nil)
	if status != http.StatusForbidden {
		t.Fatalf("admin on farmer route = %d", status)
	}
	status, _ = e.do(t, http.MethodGet, "/cows/addcow", farmer, nil)
	if status != http.StatusMethodNotAllowed {
		t.Fatalf("GET addcow = %d", status)
	}
}

func TestRegisterAndLoginErrors(t *testing.T) {
	e := newTestEnv(t, "")
	e.signup(t, "farmer@example.com", "farmer")

	status, body := e.do(t, http.MethodPost, "/auth/register", "", map[string]string{
		"name": "Dup", "email": "farmer@example.com", "password": "secret123", "role": "farmer",
	})
	if status != http.StatusConflict || body["error"] != "Email already exists" {
		t.Fatalf("duplicate register = %d %v", status, body)
	}
	status, _ = e.do(t, http.MethodPost, "/auth/register", "", map[string]string{
		"name": "X", "email": "x@example.com", "password": "secret123", "role": "vet",
	})
	if status != http.StatusBadRequest {
		t.Fatalf("invalid role = %d", status)
	}
	status, _ = e.do(t, http.MethodPost, "/auth/login", "", map[string]string{"email": "farmer@example.com"})
	if status != http.StatusBadRequest {
		t.Fatalf("missing password = %d", status)
	}
	status, _ = e.do(t, http.MethodPost, "/auth/login", "", map[string]string{"email": "farmer@example.com", "password": "nope-nope"})
	if status != http.StatusUnauthorized {
		t.Fatalf("wrong password = %d", status)
	}
}

func TestLogoutRevokesToken(t *testing.T) {
	e := newTestEnv(t, "")
	_, token := e.signup(t, "farmer@example.com", "farmer")

	status, _ := e.do(t, http.MethodPost, "/auth/logout", token, nil)
	if status != http.StatusOK {
		t.Fatalf("logout = %d", status)
	}
	status, _ = e.do(t, http.MethodGet, "/user/profile", token, nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("profile after logout = %d", status)
	}
	status, _ = e.do(t, http.MethodPost, "/auth/logout", "", nil)
	if status != http.StatusOK {
		t.Fatalf("anonymous logout = %d", status)
	}
}

func TestProfileEndpoints(t *testing.T) {
	e := newTestEnv(t, "")
	uid, token := e.signup(t, "farmer@example.com", "farmer")

	status, body := e.do(t, http.MethodPut, "/user/update", token, map[string]string{"name": "New Name", "email": "new@example.com"})
	if status != http.StatusOK {
		t.Fatalf("update = %d %v", status, body)
	}
	status, body = e.do(t, http.MethodGet, "/user/profile", token, nil)
	profile, _ := body["profile"].(map[string]any)
	if status != http.StatusOK || profile["name"] != "New Name" || profile["user_id"] != uid || profile["role"] != "farmer" {
		t.Fatalf("profile = %d %v", status, body)
	}
	if _, leaked := profile["password_hash"]; leaked {
		t.Fatalf("profile leaks password hash: %v", profile)
	}
	status, _ = e.do(t, http.MethodPut, "/user/update", token, map[string]string{"name": "only"})
	if status != http.StatusBadRequest {
		t.Fatalf("update without email = %d", status)
	}
}

func TestAdminEndpoints(t *testing.T) {
	e := newTestEnv(t, "")
	_, admin := e.signup(t, "admin@example.com", "admin")

	status, body := e.do(t, http.MethodGet, "/admin/users", admin, nil)
	if status != http.StatusNotFound || body["error"] != "No farmer users found" {
		t.Fatalf("users without farmers = %d %v", status, body)
	}

	farmerID, farmer := e.signup(t, "farmer@example.com", "farmer")
	cow := map[string]any{
		"cow_id": "c1", "name": "A", "breed": "Jersey",
		"age": 2, "health_status": "Healthy", "milk_production": 10,
	}
	if status, body := e.do(t, http.MethodPost, "/cows/addcow", farmer, cow); status != http.StatusOK {
		t.Fatalf("addcow = %d %v", status, body)
	}

	status, body = e.do(t, http.MethodGet, "/admin/dashboard", admin, nil)
	if status != http.StatusOK || body["total_farmers"] != float64(1) || body["total_cows"] != float64(1) {
		t.Fatalf("dashboard = %d %v", status, body)
	}
	status, body = e.do(t, http.MethodGet, "/admin/users", admin, nil)
	users, _ := body["users"].([]any)
	if status != http.StatusOK || len(users) != 1 {
		t.Fatalf("users = %d %v", status, body)
	}

	status, body = e.do(t, http.MethodDelete, "/admin/delete_user/"+farmerID, admin, nil)
	if status != http.StatusOK || body["message"] != "User "+farmerID+" deleted successfully" {
		t.Fatalf("delete user = %d %v", status, body)
	}
	status, _ = e.do(t, http.MethodGet, "/cows/getall", farmer, nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("deleted user's token = %d", status)
	}
	status, _ = e.do(t, http.MethodDelete, "/admin/delete_user/"+farmerID, admin, nil)
	if status != http.StatusNotFound {
		t.Fatalf("second delete = %d", status)
	}
}

func TestPredictEndpoints(t *testing.T) {
	e := newTestEnv(t, "")
	_, token := e.signup(t, "farmer@example.com", "farmer")

	status, body := e.do(t, http.MethodPost, "/predict/milk", token, map[string]any{"feed_intake": 12})
	if status != http.StatusOK || body["predicted_milk_yield"] != 18.46 || body["unit"] != "litres" {
		t.Fatalf("milk = %d %v", status, body)
	}
	status, body = e.do(t, http.MethodPost, "/predict/milk", token, map[string]any{})
	if status != http.StatusBadRequest || body["error"] != string(errMissingFeed) {
		t.Fatalf("milk without features = %d %v", status, body)
	}

	sample := map[string]any{
		"Age": 5, "Breed": "Jersey", "Milk_Production_Liters": 20,
		"Temperature_C": 38.6, "Heart_Rate_BPM": 70, "Respiratory_Rate_BPM": 30,
		"Appetite_Score": 7, "Mobility_Score": 8, "isolated": "No",
	}
	status, body = e.do(t, http.MethodPost, "/predict/disease", token, sample)
	if status != http.StatusOK || body["prediction"] != "mastitis" {
		t.Fatalf("disease = %d %v", status, body)
	}
	delete(sample, "Age")
	status, body = e.do(t, http.MethodPost, "/predict/disease", token, sample)
	if status != http.StatusBadRequest || body["error"] != "Missing field: Age" {
		t.Fatalf("disease missing field = %d %v", status, body)
	}
}

func TestLoginRateLimit(t *testing.T) {
	redis := miniredis.RunT(t)
	e := newTestEnv(t, redis.Addr())
	e.signup(t, "farmer@example.com", "farmer")

	status, body := e.do(t, http.MethodPost, "/auth/login", "", map[string]string{
		"email": "farmer@example.com", "password": "secret123",
	})
	if status != http.StatusTooManyRequests {
		t.Fatalf("second login = %d %v", status, body)
	}
}

func TestRateLimitSetsRetryAfter(t *testing.T) {
	redis := miniredis.RunT(t)
	e := newTestEnv(t, redis.Addr())
	body := []byte(`{"email":"a@example.com","password":"x"}`)
	for i := 0; i < 2; i++ {
		resp, err := http.Post(e.srv.URL+"/auth/login", "application/json", bytes.NewReader(body))
		if err != nil {
			t.Fatalf("login request: %v", err)
		}
		resp.Body.Close()
		if i == 1 {
			if resp.StatusCode != http.StatusTooManyRequests {
				t.Fatalf("expected 429, got %d", resp.StatusCode)
			}
			if resp.Header.Get("Retry-After") == "" {
				t.Fatalf("missing Retry-After header")
			}
		}
	}
}
