// Package quota reads per-model usage quota for an account from the Cloud
// Code endpoints Antigravity itself talks to.
package quota

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/pysugar/antigravity-switch/internal/util"
)

const (
	DefaultBaseURL = "https://cloudcode-pa.googleapis.com"
	userAgent      = "antigravity/1.11.9 windows/amd64"

	loadCodeAssistPath       = "/v1internal:loadCodeAssist"
	fetchAvailableModelsPath = "/v1internal:fetchAvailableModels"

	// LowThreshold is the remaining percentage at or below which a model is
	// badged as low.
	LowThreshold = 5
)

var (
	ErrForbidden          = errors.New("forbidden")
	ErrProjectUnavailable = errors.New("no Cloud Code project associated with this account")
)

// Badge flags a model in the UI.
type Badge struct {
	Text  string `json:"text"`
	Color string `json:"color"`
	Type  string `json:"type"`
}

// ModelQuota is the remaining quota for one model.
type ModelQuota struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Percentage  int    `json:"percentage"`
	ResetTime   string `json:"reset_time,omitempty"`
	Badge       *Badge `json:"badge,omitempty"`
}

// Info is the quota report for one account.
type Info struct {
	ProjectID string       `json:"project_id"`
	Models    []ModelQuota `json:"models"`
}

// Client talks to the Cloud Code internal API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient returns a client for baseURL, or DefaultBaseURL when empty.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), httpClient: httpClient}
}

// Fetch resolves the account's project and returns its model quotas,
// sorted by model family.
func (c *Client) Fetch(ctx context.Context, accessToken string) (*Info, error) {
	projectID, err := c.ProjectID(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Models map[string]struct {
			QuotaInfo *struct {
				RemainingFraction *float64 `json:"remainingFraction"`
				ResetTime         string   `json:"resetTime"`
			} `json:"quotaInfo"`
		} `json:"models"`
	}
	if err := c.post(ctx, fetchAvailableModelsPath, accessToken, map[string]string{"project": projectID}, &resp); err != nil {
		return nil, fmt.Errorf("fetch models: %w", err)
	}

	models := make([]ModelQuota, 0, len(resp.Models))
	for name, m := range resp.Models {
		if m.QuotaInfo == nil {
			continue
		}
		fraction := 0.0
		if m.QuotaInfo.RemainingFraction != nil {
			fraction = *m.QuotaInfo.RemainingFraction
		}
		q := ModelQuota{
			Name:        name,
			DisplayName: DisplayName(name),
			Percentage:  int(fraction * 100),
			ResetTime:   m.QuotaInfo.ResetTime,
		}
		if q.Percentage <= LowThreshold {
			q.Badge = &Badge{Text: "Low", Color: "#FF453A", Type: "warning"}
		}
		models = append(models, q)
	}

	sort.Slice(models, func(i, j int) bool {
		pi, pj := Priority(models[i].Name), Priority(models[j].Name)
		if pi != pj {
			return pi < pj
		}
		return models[i].Name < models[j].Name
	})
	return &Info{ProjectID: projectID, Models: models}, nil
}

// ProjectID asks loadCodeAssist for the Cloud Code project bound to the
// account.
func (c *Client) ProjectID(ctx context.Context, accessToken string) (string, error) {
	var resp struct {
		Project      string `json:"cloudaicompanionProject"`
		ProjectSnake string `json:"cloudaicompanion_project"`
		Config       struct {
			ProjectID string `json:"projectId"`
		} `json:"codeAssistConfig"`
	}
	body := map[string]any{"metadata": map[string]string{"ideType": "ANTIGRAVITY"}}
	if err := c.post(ctx, loadCodeAssistPath, accessToken, body, &resp); err != nil {
		return "", fmt.Errorf("load code assist: %w", err)
	}

	for _, id := range []string{resp.Project, resp.ProjectSnake, resp.Config.ProjectID} {
		if id != "" {
			return id, nil
		}
	}
	return "", ErrProjectUnavailable
}

func (c *Client) post(ctx context.Context, path, accessToken string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode == http.StatusForbidden {
		return ErrForbidden
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("status %d: %s", resp.StatusCode, util.TruncateBytes(data))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
