package krishi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func backendTestClient(t *testing.T, handler http.Handler) *BackendClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	config := NewConfig()
	config.BackendEndpoint = srv.URL
	return NewBackendClient(config, StaticToken("bk-token"))
}

func TestBackendGetFarmer(t *testing.T) {
	profile := FarmerProfile{
		ID:       "f9",
		Name:     "Savita Patil",
		Village:  "Shirur",
		District: "Pune",
		State:    "Maharashtra",
		Language: "mr",
		Crops:    []string{"sugarcane", "onion"},
		SoilPH:   6.8,
	}

	client := backendTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/v1/farmers/f9" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer bk-token" {
			t.Errorf("Authorization = %q", got)
		}
		json.NewEncoder(w).Encode(profile)
	}))

	res := client.GetFarmer(context.Background(), "f9")
	if !res.Success {
		t.Fatalf("GetFarmer failed: %v", res.Error)
	}
	if res.Data.Name != "Savita Patil" || res.Data.Language != "mr" {
		t.Fatalf("profile = %+v", res.Data)
	}
	if len(res.Data.Crops) != 2 || res.Data.SoilPH != 6.8 {
		t.Fatalf("land/soil fields lost: %+v", res.Data)
	}
}

func TestBackendGetFarmerEmptyID(t *testing.T) {
	client := backendTestClient(t, http.NewServeMux())

	res := client.GetFarmer(context.Background(), "")
	if res.Success {
		t.Fatal("empty ID accepted")
	}
	if !IsErrorCode(res.Error, ErrCodeConfigInvalid) {
		t.Fatalf("error code = %s", res.Error.Code)
	}
}

func TestBackendCreateFarmer(t *testing.T) {
	client := backendTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/farmers" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		var in FarmerProfile
		json.NewDecoder(r.Body).Decode(&in)
		in.ID = "f-new"
		json.NewEncoder(w).Encode(in)
	}))

	res := client.CreateFarmer(context.Background(), &FarmerProfile{Name: "Ramesh", Language: "hi"})
	if !res.Success {
		t.Fatalf("CreateFarmer failed: %v", res.Error)
	}
	if res.Data.ID != "f-new" || res.Data.Name != "Ramesh" {
		t.Fatalf("created = %+v", res.Data)
	}

	if res := client.CreateFarmer(context.Background(), &FarmerProfile{}); res.Success {
		t.Fatal("nameless profile accepted")
	}
}

func TestBackendUpdateFarmer(t *testing.T) {
	var gotBody map[string]interface{}
	client := backendTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/v1/farmers/f9" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(FarmerProfile{ID: "f9", Name: "Savita Patil", SoilPH: 6.5})
	}))

	res := client.UpdateFarmer(context.Background(), "f9", map[string]interface{}{
		"soil_ph":   6.5,
		"soil_type": "loam",
	})
	if !res.Success {
		t.Fatalf("UpdateFarmer failed: %v", res.Error)
	}
	if gotBody["soil_type"] != "loam" {
		t.Fatalf("update body = %+v", gotBody)
	}
	if res.Data.SoilPH != 6.5 {
		t.Fatalf("updated profile = %+v", res.Data)
	}
}

func TestBackendConversationHistory(t *testing.T) {
	client := backendTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/farmers/f9/history" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode([]Message{
			{ID: "m1", Speaker: SpeakerUser, Text: "q"},
			{ID: "m2", Speaker: SpeakerAssistant, Text: "a"},
		})
	}))

	res := client.ConversationHistory(context.Background(), "f9")
	if !res.Success {
		t.Fatalf("ConversationHistory failed: %v", res.Error)
	}
	if len(res.Data) != 2 || res.Data[0].Speaker != SpeakerUser {
		t.Fatalf("history = %+v", res.Data)
	}
}

func TestBackendErrorStatus(t *testing.T) {
	client := backendTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "no such farmer"})
	}))

	res := client.GetFarmer(context.Background(), "missing")
	if res.Success {
		t.Fatal("404 treated as success")
	}
	if !IsErrorCode(res.Error, ErrCodeTransport) {
		t.Fatalf("error code = %s", res.Error.Code)
	}
	if res.Error.Message != "no such farmer" {
		t.Fatalf("message = %q", res.Error.Message)
	}
	if status, _ := res.Error.GetDetail("status"); status != http.StatusNotFound {
		t.Fatalf("status detail = %v", status)
	}
}

func TestBackendHealthCheck(t *testing.T) {
	client := backendTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/health" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"status": "ok"})
	}))

	res := client.HealthCheck(context.Background())
	if !res.Success {
		t.Fatalf("HealthCheck failed: %v", res.Error)
	}
	if res.Data["status"] != "ok" {
		t.Fatalf("health = %+v", res.Data)
	}
}
