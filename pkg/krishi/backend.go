package krishi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"
)

// FarmerProfile is the farmer document held by the persistence
// backend: personal info, land info, and soil/environment readings.
// The backend performs no logic beyond storage.
type FarmerProfile struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name"`
	Phone    string `json:"phone,omitempty"`
	Village  string `json:"village,omitempty"`
	District string `json:"district,omitempty"`
	State    string `json:"state,omitempty"`
	Language string `json:"language,omitempty"`

	LandAreaHectares float64  `json:"land_area_hectares,omitempty"`
	SoilType         string   `json:"soil_type,omitempty"`
	IrrigationType   string   `json:"irrigation_type,omitempty"`
	Crops            []string `json:"crops,omitempty"`

	SoilPH        float64 `json:"soil_ph,omitempty"`
	NitrogenPPM   float64 `json:"nitrogen_ppm,omitempty"`
	PhosphorusPPM float64 `json:"phosphorus_ppm,omitempty"`
	PotassiumPPM  float64 `json:"potassium_ppm,omitempty"`

	Created  int64 `json:"created,omitempty"`
	Modified int64 `json:"modified,omitempty"`
}

// BackendClient talks to the persistence backend: farmer profiles and
// conversation history. Plain resource API.
type BackendClient struct {
	baseURL    string
	tokens     TokenSource
	httpClient *http.Client
}

func NewBackendClient(config *Config, tokens TokenSource) *BackendClient {
	if config == nil {
		config = NewConfig()
	}
	return &BackendClient{
		baseURL: config.BackendEndpoint,
		tokens:  tokens,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				IdleConnTimeout:     30 * time.Second,
				MaxIdleConnsPerHost: 2,
			},
		},
	}
}

func (bc *BackendClient) request(ctx context.Context, method, endpoint string, body interface{}) ([]byte, *KrishiError) {
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, NewJSONError(err.Error())
		}
		reqBody = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, bc.baseURL+endpoint, reqBody)
	if err != nil {
		return nil, NewConfigError(err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "KrishiSDK-Go/1.0")

	if bc.tokens != nil {
		token, terr := bc.tokens.Token()
		if terr != nil {
			return nil, NewAuthError(terr.Error())
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := bc.httpClient.Do(req)
	if err != nil {
		return nil, NewTransportError(0, err.Error())
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewUnknownError(err.Error())
	}

	if resp.StatusCode >= 400 {
		msg := extractErrorMessage(respBody)
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, NewTransportError(resp.StatusCode, msg)
	}

	return respBody, nil
}

// GetFarmer fetches a farmer profile by ID.
func (bc *BackendClient) GetFarmer(ctx context.Context, farmerID string) Result[*FarmerProfile] {
	if farmerID == "" {
		return Err[*FarmerProfile](NewConfigError("farmer ID cannot be empty"))
	}

	resp, kerr := bc.request(ctx, http.MethodGet, "/v1/farmers/"+farmerID, nil)
	if kerr != nil {
		return Err[*FarmerProfile](kerr)
	}

	var profile FarmerProfile
	if err := json.Unmarshal(resp, &profile); err != nil {
		return Err[*FarmerProfile](NewJSONError(err.Error()))
	}
	return Ok(&profile)
}

// CreateFarmer registers a new farmer profile.
func (bc *BackendClient) CreateFarmer(ctx context.Context, profile *FarmerProfile) Result[*FarmerProfile] {
	if profile == nil || profile.Name == "" {
		return Err[*FarmerProfile](NewConfigError("farmer name cannot be empty"))
	}

	resp, kerr := bc.request(ctx, http.MethodPost, "/v1/farmers", profile)
	if kerr != nil {
		return Err[*FarmerProfile](kerr)
	}

	var created FarmerProfile
	if err := json.Unmarshal(resp, &created); err != nil {
		return Err[*FarmerProfile](NewJSONError(err.Error()))
	}
	return Ok(&created)
}

// UpdateFarmer applies a partial update to a farmer profile.
func (bc *BackendClient) UpdateFarmer(ctx context.Context, farmerID string, updates map[string]interface{}) Result[*FarmerProfile] {
	if farmerID == "" {
		return Err[*FarmerProfile](NewConfigError("farmer ID cannot be empty"))
	}

	resp, kerr := bc.request(ctx, http.MethodPut, "/v1/farmers/"+farmerID, updates)
	if kerr != nil {
		return Err[*FarmerProfile](kerr)
	}

	var updated FarmerProfile
	if err := json.Unmarshal(resp, &updated); err != nil {
		return Err[*FarmerProfile](NewJSONError(err.Error()))
	}
	return Ok(&updated)
}

// ConversationHistory fetches the stored transcript for a farmer,
// oldest first.
func (bc *BackendClient) ConversationHistory(ctx context.Context, farmerID string) Result[[]Message] {
	if farmerID == "" {
		return Err[[]Message](NewConfigError("farmer ID cannot be empty"))
	}

	resp, kerr := bc.request(ctx, http.MethodGet, "/v1/farmers/"+farmerID+"/history", nil)
	if kerr != nil {
		return Err[[]Message](kerr)
	}

	var history []Message
	if err := json.Unmarshal(resp, &history); err != nil {
		return Err[[]Message](NewJSONError(err.Error()))
	}
	return Ok(history)
}

// HealthCheck pings the backend.
func (bc *BackendClient) HealthCheck(ctx context.Context) Result[map[string]interface{}] {
	resp, kerr := bc.request(ctx, http.MethodGet, "/v1/health", nil)
	if kerr != nil {
		return Err[map[string]interface{}](kerr)
	}

	var result map[string]interface{}
	if err := json.Unmarshal(resp, &result); err != nil {
		return Err[map[string]interface{}](NewJSONError(err.Error()))
	}
	return Ok(result)
}
