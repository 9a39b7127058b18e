package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
)

const (
	DefaultVoyageBaseURL = "https://api.voyageai.com/v1"
	DefaultVoyageModel   = "voyage-3"
)

// VoyageAdapter calls a Voyage-style embeddings endpoint that accepts an
// input_type hint.
type VoyageAdapter struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

func NewVoyageAdapter(apiKey, baseURL, model string, httpClient *http.Client) *VoyageAdapter {
	if baseURL == "" {
		baseURL = DefaultVoyageBaseURL
	}
	if model == "" {
		model = DefaultVoyageModel
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &VoyageAdapter{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		client:  httpClient,
	}
}

type voyageRequest struct {
	Model     string    `json:"model"`
	Input     []string  `json:"input"`
	InputType InputType `json:"input_type,omitempty"`
}

type voyageResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     *int      `json:"index"`
	} `json:"data"`
}

// CreateEmbeddings posts one batch and returns the vectors in input order.
func (a *VoyageAdapter) CreateEmbeddings(ctx context.Context, texts []string, inputType InputType) ([][]float32, error) {
	body, err := json.Marshal(voyageRequest{Model: a.model, Input: texts, InputType: inputType})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{StatusCode: resp.StatusCode, Status: resp.Status, Body: strings.TrimSpace(string(snippet))}
	}

	var out voyageResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode embeddings response: %w", err)
	}

	data := out.Data
	sort.SliceStable(data, func(i, j int) bool {
		if data[i].Index == nil || data[j].Index == nil {
			return false
		}
		return *data[i].Index < *data[j].Index
	})

	vectors := make([][]float32, len(data))
	for i, d := range data {
		vectors[i] = d.Embedding
	}
	return vectors, nil
}
