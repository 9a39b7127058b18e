//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/cloo-solutions/kbpipe/internal/database"
	"github.com/cloo-solutions/kbpipe/internal/storage"
	"github.com/cloo-solutions/kbpipe/internal/testutil"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	serviceToken = "e2e-service-token"
	s3Bucket     = "kbpipe-e2e"
)

// E2ETestEnv holds all resources needed for E2E tests
type E2ETestEnv struct {
	T          *testing.T
	Ctx        context.Context
	PostgresC  *testutil.PostgresContainer
	RustFSC    *testutil.RustFSContainer
	Pool       *pgxpool.Pool
	S3Client   *storage.S3Client
	BinaryDir  string
	ServerURL  string
	OrgID      string
	HTTPClient *http.Client

	server *exec.Cmd
	logs   bytes.Buffer
}

// SetupE2EEnv starts the containers, builds both binaries and runs
// `kbpiped serve` against them. No embedding or language model provider is
// configured, so imports take the zero-vector fallback and edit requests ask
// for clarification.
func SetupE2EEnv(t *testing.T) *E2ETestEnv {
	ctx := context.Background()
	env := &E2ETestEnv{
		T:          t,
		Ctx:        ctx,
		OrgID:      uuid.NewString(),
		HTTPClient: &http.Client{Timeout: 60 * time.Second},
	}
	t.Cleanup(env.Cleanup)

	env.PostgresC = testutil.NewPostgresContainer(ctx, t)
	env.RustFSC = testutil.NewRustFSContainer(ctx, t)
	env.BuildBinaries()

	port, err := getFreePort()
	if err != nil {
		t.Fatalf("failed to get free port: %v", err)
	}
	env.startServer(port)

	// the server has migrated the schema by the time /health answers
	env.Pool, err = database.NewPool(ctx, database.Config{URL: env.PostgresC.ConnectionString()})
	if err != nil {
		t.Fatalf("failed to connect to database: %v", err)
	}

	env.S3Client, err = storage.NewS3Client(ctx, storage.S3ClientConfig{
		Endpoint:        env.RustFSC.Endpoint(),
		Region:          "us-east-1",
		AccessKeyID:     "rustfsadmin",
		SecretAccessKey: "rustfsadmin",
		Bucket:          s3Bucket,
		UsePathStyle:    true,
	})
	if err != nil {
		t.Fatalf("failed to create S3 client: %v", err)
	}

	return env
}

// Cleanup releases all resources
func (e *E2ETestEnv) Cleanup() {
	if e.server != nil && e.server.Process != nil {
		_ = e.server.Process.Signal(os.Interrupt)
		_ = e.server.Wait()
		if e.T.Failed() {
			e.T.Logf("kbpiped output:\n%s", e.logs.String())
		}
	}
	if e.Pool != nil {
		e.Pool.Close()
	}
	if e.RustFSC != nil {
		_ = e.RustFSC.Terminate(e.Ctx)
	}
	if e.PostgresC != nil {
		_ = e.PostgresC.Terminate(e.Ctx)
	}
	if e.BinaryDir != "" {
		_ = os.RemoveAll(e.BinaryDir)
	}
}

// BuildBinaries builds the kbpipe and kbpiped binaries
func (e *E2ETestEnv) BuildBinaries() {
	tmpDir, err := os.MkdirTemp("", "kbpipe-e2e-*")
	if err != nil {
		e.T.Fatalf("failed to create temp dir: %v", err)
	}
	e.BinaryDir = tmpDir

	for _, name := range []string{"kbpiped", "kbpipe"} {
		cmd := exec.Command("go", "build", "-o", filepath.Join(tmpDir, name), "./cmd/"+name)
		cmd.Dir = "../.."
		if out, err := cmd.CombinedOutput(); err != nil {
			e.T.Fatalf("failed to build %s: %v\n%s", name, err, out)
		}
	}
}

func (e *E2ETestEnv) startServer(port int) {
	migrations, err := filepath.Abs("../../migrations")
	if err != nil {
		e.T.Fatalf("failed to resolve migrations dir: %v", err)
	}

	cmd := exec.Command(filepath.Join(e.BinaryDir, "kbpiped"), "serve",
		"--port", fmt.Sprint(port),
		"--migrations", migrations,
	)
	cmd.Dir = e.BinaryDir
	cmd.Env = append(os.Environ(),
		"KBPIPE_DATABASE_URL="+e.PostgresC.ConnectionString(),
		"KBPIPE_SERVICE_TOKEN="+serviceToken,
		"KBPIPE_S3_ENDPOINT="+e.RustFSC.Endpoint(),
		"KBPIPE_S3_ACCESS_KEY_ID=rustfsadmin",
		"KBPIPE_S3_SECRET_ACCESS_KEY=rustfsadmin",
		"KBPIPE_S3_BUCKET="+s3Bucket,
		"KBPIPE_EMBEDDING_API_KEY=",
		"KBPIPE_LLM_API_KEY=",
		"KBPIPE_REINDEX_INTERVAL=1h",
	)
	cmd.Stdout = &e.logs
	cmd.Stderr = &e.logs
	if err := cmd.Start(); err != nil {
		e.T.Fatalf("failed to start kbpiped: %v", err)
	}
	e.server = cmd

	e.ServerURL = fmt.Sprintf("http://localhost:%d", port)
	waitForServer(e.T, e.ServerURL, 60*time.Second)
}

// RunCLI runs the kbpipe CLI against the test server
func (e *E2ETestEnv) RunCLI(workDir string, args ...string) (string, error) {
	cmd := exec.Command(filepath.Join(e.BinaryDir, "kbpipe"), args...)
	cmd.Dir = workDir
	cmd.Env = append(os.Environ(),
		"KBPIPE_SERVICE_TOKEN="+serviceToken,
		"KBPIPE_API_URL="+e.ServerURL,
		"KBPIPE_ORG_ID="+e.OrgID,
	)
	out, err := cmd.CombinedOutput()
	return string(out), err
}

// APIResponse represents a standard API response
type APIResponse struct {
	StatusCode int
	Header     http.Header
	Data       json.RawMessage `json:"data"`
	Error      string          `json:"error,omitempty"`
	Code       string          `json:"code,omitempty"`
}

// Decode unmarshals the data field into v.
func (r *APIResponse) Decode(t *testing.T, v any) {
	t.Helper()
	if err := json.Unmarshal(r.Data, v); err != nil {
		t.Fatalf("failed to decode response data %s: %v", r.Data, err)
	}
}

// Do sends a JSON request with the service token and never fails on HTTP
// error statuses; tests assert on StatusCode.
func (e *E2ETestEnv) Do(method, path string, body any) *APIResponse {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			e.T.Fatalf("failed to marshal body: %v", err)
		}
		reqBody = bytes.NewReader(data)
	}
	return e.send(method, path, reqBody, "application/json", serviceToken)
}

// DoWithToken sends a bodiless request with an explicit token.
func (e *E2ETestEnv) DoWithToken(method, path, token string) *APIResponse {
	return e.send(method, path, nil, "", token)
}

// Upload posts a multipart file import.
func (e *E2ETestEnv) Upload(fields map[string]string, fileName, contentType string, content []byte) *APIResponse {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		_ = mw.WriteField(k, v)
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, fileName))
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		e.T.Fatalf("failed to create part: %v", err)
	}
	_, _ = part.Write(content)
	_ = mw.Close()

	return e.send(http.MethodPost, "/knowledge/import/file", &buf, mw.FormDataContentType(), serviceToken)
}

func (e *E2ETestEnv) send(method, path string, body io.Reader, contentType, token string) *APIResponse {
	req, err := http.NewRequest(method, e.ServerURL+path, body)
	if err != nil {
		e.T.Fatalf("failed to create request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		e.T.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		e.T.Fatalf("failed to read response: %v", err)
	}

	out := &APIResponse{StatusCode: resp.StatusCode, Header: resp.Header}
	if len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			e.T.Fatalf("%s %s returned non-JSON body (%d): %s", method, path, resp.StatusCode, respBody)
		}
	}
	return out
}

// ChunkCount returns the number of stored chunks of an item.
func (e *E2ETestEnv) ChunkCount(itemID string) int {
	var n int
	err := e.Pool.QueryRow(e.Ctx, `SELECT count(*) FROM knowledge_chunks WHERE item_id = $1`, itemID).Scan(&n)
	if err != nil {
		e.T.Fatalf("failed to count chunks: %v", err)
	}
	return n
}

func waitForServer(t *testing.T, url string, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(200 * time.Millisecond)
	}
	t.Fatalf("server did not start within %v", timeout)
}

func getFreePort() (int, error) {
	addr, err := net.ResolveTCPAddr("tcp", "localhost:0")
	if err != nil {
		return 0, err
	}

	l, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
