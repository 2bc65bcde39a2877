// ABOUTME: Dialogflow CX intent detection adapter over the REST detectIntent endpoint
// ABOUTME: Implements IntentDetector; maps query results to the Intent contract

package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// DialogflowConfig identifies the CX agent to query.
type DialogflowConfig struct {
	ProjectID    string
	Location     string
	AgentID      string
	LanguageCode string // default: en
	AccessToken  string // OAuth bearer token
	BaseURL      string // override for tests; default derived from Location
}

// Dialogflow implements IntentDetector against the Dialogflow CX REST API.
type Dialogflow struct {
	cfg        DialogflowConfig
	httpClient *http.Client
}

// NewDialogflow creates the adapter.
func NewDialogflow(cfg DialogflowConfig) (*Dialogflow, error) {
	if cfg.ProjectID == "" || cfg.AgentID == "" {
		return nil, fmt.Errorf("dialogflow project and agent ids are required")
	}
	if cfg.Location == "" {
		cfg.Location = "global"
	}
	if cfg.LanguageCode == "" {
		cfg.LanguageCode = "en"
	}
	if cfg.BaseURL == "" {
		host := "dialogflow.googleapis.com"
		if cfg.Location != "global" {
			host = cfg.Location + "-dialogflow.googleapis.com"
		}
		cfg.BaseURL = "https://" + host + "/v3"
	}
	return &Dialogflow{
		cfg:        cfg,
		httpClient: &http.Client{},
	}, nil
}

type detectIntentRequest struct {
	QueryInput struct {
		Text struct {
			Text string `json:"text"`
		} `json:"text"`
		LanguageCode string `json:"languageCode"`
	} `json:"queryInput"`
}

type detectIntentResponse struct {
	QueryResult struct {
		ResponseMessages []struct {
			Text struct {
				Text []string `json:"text"`
			} `json:"text"`
		} `json:"responseMessages"`
		Intent struct {
			DisplayName string `json:"displayName"`
		} `json:"intent"`
		IntentDetectionConfidence float64 `json:"intentDetectionConfidence"`
	} `json:"queryResult"`
}

// DetectIntent sends the text to the CX agent session and returns the
// fulfillment text, intent label, and detection confidence.
func (d *Dialogflow) DetectIntent(ctx context.Context, text, sessionID string) (*Intent, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty text", ErrServiceError)
	}

	var reqBody detectIntentRequest
	reqBody.QueryInput.Text.Text = text
	reqBody.QueryInput.LanguageCode = d.cfg.LanguageCode

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrServiceError, err)
	}

	sessionPath := fmt.Sprintf("%s/projects/%s/locations/%s/agents/%s/sessions/%s:detectIntent",
		d.cfg.BaseURL, d.cfg.ProjectID, d.cfg.Location, d.cfg.AgentID, sessionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sessionPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrServiceError, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if d.cfg.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+d.cfg.AccessToken)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrServiceError, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", ErrServiceError, resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	var decoded detectIntentResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrServiceError, err)
	}

	intent := &Intent{
		Label:      decoded.QueryResult.Intent.DisplayName,
		Confidence: decoded.QueryResult.IntentDetectionConfidence,
	}
	for _, msg := range decoded.QueryResult.ResponseMessages {
		if len(msg.Text.Text) > 0 {
			intent.Text = msg.Text.Text[0]
			break
		}
	}
	return intent, nil
}
