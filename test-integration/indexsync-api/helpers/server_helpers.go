package helpers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/onsi/gomega"

	"github.com/mongoadmin/indexsync/internal/app"
	"github.com/mongoadmin/indexsync/internal/config"
	"github.com/mongoadmin/indexsync/internal/search/searchtest"
)

// Envelope is the body of every /v1 response
type Envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// ServerTestHelper manages the index sync server lifecycle for testing
type ServerTestHelper struct {
	ctx        context.Context
	configPath string
	baseURL    string
	address    string
	httpClient *http.Client
	app        *app.IndexSyncApp

	// Engine receives every request the server sends to the search cluster
	Engine *searchtest.Engine
}

// NewServerTestHelper creates a server helper listening on a free local port
func NewServerTestHelper(ctx context.Context, configPath string) (*ServerTestHelper, error) {
	port, err := freePort()
	if err != nil {
		return nil, err
	}
	address := fmt.Sprintf("127.0.0.1:%d", port)
	return &ServerTestHelper{
		ctx:        ctx,
		configPath: configPath,
		address:    address,
		baseURL:    "http://" + address,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		Engine:     searchtest.NewEngine(),
	}, nil
}

func freePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("failed to find a free port: %w", err)
	}
	defer func() { _ = l.Close() }()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// StartServer builds the application from the config file and starts it
func (s *ServerTestHelper) StartServer() error {
	cfg, err := config.LoadConfig(config.WithConfigPath(s.configPath))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	indexSyncApp, err := app.NewIndexSyncApp(s.ctx,
		app.WithConfig(cfg),
		app.WithAddress(s.address),
		app.WithSearchClient(s.Engine),
	)
	if err != nil {
		return fmt.Errorf("failed to build app: %w", err)
	}
	s.app = indexSyncApp

	go func() {
		if err := indexSyncApp.Start(); err != nil {
			// The test fails when it tries to connect
			fmt.Fprintf(os.Stderr, "Server start failed: %v\n", err)
		}
	}()
	return nil
}

// StopServer gracefully stops the server
func (s *ServerTestHelper) StopServer() error {
	if s.app != nil {
		return s.app.Stop(5 * time.Second)
	}
	return nil
}

// WaitForServerReady waits until /readiness succeeds
func (s *ServerTestHelper) WaitForServerReady(timeout time.Duration) {
	gomega.Eventually(func() error {
		resp, err := s.httpClient.Get(s.baseURL + "/readiness")
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("server returned status %d", resp.StatusCode)
		}
		return nil
	}, timeout, 200*time.Millisecond).Should(gomega.Succeed(), "Server should be ready")
}

// Call sends a request to the server and decodes the response envelope
func (s *ServerTestHelper) Call(method, path string, body any) (int, *Envelope) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(s.ctx, method, s.baseURL+path, reader)
	gomega.Expect(err).NotTo(gomega.HaveOccurred())
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	gomega.Expect(err).NotTo(gomega.HaveOccurred())
	defer func() { _ = resp.Body.Close() }()

	var env Envelope
	gomega.Expect(json.NewDecoder(resp.Body).Decode(&env)).To(gomega.Succeed())
	return resp.StatusCode, &env
}

// DocPath returns the route of a document, or of the collection when id is empty
func DocPath(index, database, collection, id string) string {
	path := fmt.Sprintf("/v1/indexes/%s/sources/%s/%s/docs", index, database, collection)
	if id != "" {
		path += "/" + id
	}
	return path
}

// WaitForIndexVersion waits until the document reaches the wanted index version
func (s *ServerTestHelper) WaitForIndexVersion(index, database, collection, id string, want int64, timeout time.Duration) {
	gomega.Eventually(func() (int64, error) {
		status, env := s.Call(http.MethodGet, DocPath(index, database, collection, id)+"/stats", nil)
		if status != http.StatusOK {
			return 0, fmt.Errorf("stats returned status %d: %s", status, env.Message)
		}
		var stats struct {
			IndexVersion int64 `json:"indexVersion"`
		}
		if err := json.Unmarshal(env.Data, &stats); err != nil {
			return 0, err
		}
		return stats.IndexVersion, nil
	}, timeout, 100*time.Millisecond).Should(gomega.Equal(want))
}
