package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const (
	envToken  = "KBPIPE_SERVICE_TOKEN"
	envAPIURL = "KBPIPE_API_URL"
	envOrgID  = "KBPIPE_ORG_ID"

	defaultAPIURL = "http://localhost:8080"
	callerName    = "kbpipe-cli"
)

type APIClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewAPIClientWithCmd creates an APIClient with config cascade: flag → env → default.
// If cmd is nil, skips flag checking.
func NewAPIClientWithCmd(cmd *cobra.Command) (*APIClient, error) {
	_ = godotenv.Load()

	token := flagOrEnv(cmd, "token", envToken)
	if token == "" {
		return nil, fmt.Errorf("%s not set (use --token or set the environment variable)", envToken)
	}

	baseURL := flagOrEnv(cmd, "api-url", envAPIURL)
	if baseURL == "" {
		baseURL = defaultAPIURL
	}

	return NewAPIClientWithConfig(token, baseURL), nil
}

// NewAPIClientWithConfig creates an APIClient with explicit config.
func NewAPIClientWithConfig(token, baseURL string) *APIClient {
	return &APIClient{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			// imports run extraction and embedding inline
			Timeout: 5 * time.Minute,
		},
	}
}

func flagOrEnv(cmd *cobra.Command, flag, env string) string {
	if cmd != nil {
		if v, err := cmd.Flags().GetString(flag); err == nil && v != "" {
			return v
		}
	}
	return os.Getenv(env)
}

// resolveOrg returns the organization from --org or KBPIPE_ORG_ID.
func resolveOrg(cmd *cobra.Command) (string, error) {
	_ = godotenv.Load()
	org := flagOrEnv(cmd, "org", envOrgID)
	if org == "" {
		return "", fmt.Errorf("organization not set (use --org or set %s)", envOrgID)
	}
	return org, nil
}

func wantJSON(cmd *cobra.Command) bool {
	format, _ := cmd.Flags().GetString("output")
	return format == "json"
}

func printJSON(v any) {
	out, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(out))
}

// APIResponse represents the standard API response format.
type APIResponse struct {
	Data  json.RawMessage `json:"data,omitempty"`
	Error string          `json:"error,omitempty"`
	Code  string          `json:"code,omitempty"`
}

// Decode unmarshals the data field into v.
func (r *APIResponse) Decode(v any) error {
	if len(r.Data) == 0 {
		return fmt.Errorf("response has no data")
	}
	if err := json.Unmarshal(r.Data, v); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// APIError represents an error from the API.
type APIError struct {
	StatusCode  int
	Code        string
	Message     string
	ImportLogID string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("API error (%d", e.StatusCode)
	if e.Code != "" {
		msg += " " + e.Code
	}
	msg += "): " + e.Message
	if e.ImportLogID != "" {
		msg += fmt.Sprintf(" (import log %s)", e.ImportLogID)
	}
	return msg
}

// Get performs a GET request.
func (c *APIClient) Get(path string) (*APIResponse, error) {
	return c.doJSON(http.MethodGet, path, nil)
}

// Post performs a POST request with JSON body.
func (c *APIClient) Post(path string, body any) (*APIResponse, error) {
	return c.doJSON(http.MethodPost, path, body)
}

// Put performs a PUT request with JSON body.
func (c *APIClient) Put(path string, body any) (*APIResponse, error) {
	return c.doJSON(http.MethodPut, path, body)
}

// Delete performs a DELETE request.
func (c *APIClient) Delete(path string) (*APIResponse, error) {
	return c.doJSON(http.MethodDelete, path, nil)
}

// FilePart is the file field of a multipart upload.
type FilePart struct {
	Field       string
	FileName    string
	ContentType string
	Body        io.Reader
}

// PostMultipart uploads a file together with plain form fields.
func (c *APIClient) PostMultipart(path string, fields map[string]string, file FilePart) (*APIResponse, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	for k, v := range fields {
		if v == "" {
			continue
		}
		if err := mw.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("failed to write form field: %w", err)
		}
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, file.Field, file.FileName))
	h.Set("Content-Type", file.ContentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create file part: %w", err)
	}
	if _, err := io.Copy(part, file.Body); err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish upload body: %w", err)
	}

	return c.do(http.MethodPost, path, &buf, mw.FormDataContentType())
}

func (c *APIClient) doJSON(method, path string, body any) (*APIResponse, error) {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}
	return c.do(method, path, reqBody, "application/json")
}

func (c *APIClient) do(method, path string, body io.Reader, contentType string) (*APIResponse, error) {
	req, err := http.NewRequest(method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("X-Caller", callerName)
	if body != nil {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var apiResp APIResponse
	if len(respBody) > 0 {
		if err := json.Unmarshal(respBody, &apiResp); err != nil {
			if resp.StatusCode >= 400 {
				return nil, &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
			}
			return nil, fmt.Errorf("failed to parse response: %w", err)
		}
	}

	if resp.StatusCode >= 400 {
		return nil, &APIError{
			StatusCode:  resp.StatusCode,
			Code:        apiResp.Code,
			Message:     apiResp.Error,
			ImportLogID: resp.Header.Get("X-Import-Log-ID"),
		}
	}

	return &apiResp, nil
}
