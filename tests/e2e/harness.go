package e2e

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"seqsync/internal/api"
	"seqsync/internal/engine"
)

type systemUnderTest struct {
	BaseURL  string
	shutdown func()
}

func (s *systemUnderTest) Close() {
	if s.shutdown != nil {
		s.shutdown()
	}
}

// startSystemUnderTest runs the server in process unless SYNC_SERVER_CMD or
// SYNC_SERVER_URL points at a real one.
func startSystemUnderTest(t *testing.T) *systemUnderTest {
	t.Helper()

	if cmd := os.Getenv("SYNC_SERVER_CMD"); cmd != "" {
		sut, err := startExternalServer(t, cmd)
		if err != nil {
			t.Fatalf("start external server: %v", err)
		}
		return sut
	}

	if url := os.Getenv("SYNC_SERVER_URL"); url != "" {
		t.Logf("SYNC_SERVER_URL set; using existing server at %s", url)
		return &systemUnderTest{BaseURL: url}
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	log := logrus.NewEntry(logger)

	ctrl, cancel, err := engine.NewSyncController(context.Background(), engine.SyncControllerCfg{
		TracePath: filepath.Join(t.TempDir(), "trace.log"),
		Log:       log,
	})
	if err != nil {
		t.Fatalf("create sync controller: %v", err)
	}
	srv := httptest.NewServer(api.NewServer(ctrl, log))
	return &systemUnderTest{
		BaseURL: srv.URL,
		shutdown: func() {
			srv.Close()
			cancel()
			<-ctrl.Done()
		},
	}
}

func startExternalServer(t *testing.T, cmdStr string) (*systemUnderTest, error) {
	t.Helper()

	dataDir, err := os.MkdirTemp("", "seqsync-e2e-*")
	if err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	addr, err := freeAddr()
	if err != nil {
		return nil, fmt.Errorf("pick free addr: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", cmdStr)
	cmd.Env = append(os.Environ(),
		fmt.Sprintf("SYNC_HTTP_ADDR=%s", addr),
		fmt.Sprintf("SYNC_TRACE_PATH=%s", filepath.Join(dataDir, "trace.log")),
	)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("cmd start: %w", err)
	}

	baseURL := "http://" + addr
	shutdown := func() {
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
			_, _ = cmd.Process.Wait()
		}
		cancel()
		_ = os.RemoveAll(dataDir)
	}
	if err := waitForReady(baseURL, 10*time.Second); err != nil {
		shutdown()
		return nil, fmt.Errorf("wait for ready: %w", err)
	}
	return &systemUnderTest{BaseURL: baseURL, shutdown: shutdown}, nil
}

func waitForReady(baseURL string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(baseURL + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("server at %s not ready after %s", baseURL, timeout)
}

func freeAddr() (string, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", err
	}
	defer l.Close()
	return l.Addr().String(), nil
}
