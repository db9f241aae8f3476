package remote

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"conveyor/internal/fileutil"
)

// LocalDataClient satisfies DataClient against the local filesystem. It
// backs single-node deployments where "systems" are directories and source
// URIs are file paths or file:// URLs.
type LocalDataClient struct{}

// NewLocalDataClient creates a filesystem-backed data client.
func NewLocalDataClient() *LocalDataClient {
	return &LocalDataClient{}
}

// Authenticate implements DataClient.
func (c *LocalDataClient) Authenticate(ctx context.Context, system string) error {
	if strings.TrimSpace(system) == "" {
		return Fatalf("system id is empty")
	}
	return nil
}

// Exists implements DataClient.
func (c *LocalDataClient) Exists(ctx context.Context, system, path string) (bool, error) {
	return fileutil.PathExists(path)
}

// Transfer implements DataClient by copying the source file to the
// destination path, creating parent directories as needed.
func (c *LocalDataClient) Transfer(ctx context.Context, sourceURI, system, destPath string) error {
	sourcePath := localPath(sourceURI)
	if sourcePath == "" {
		return Fatalf("cannot resolve source %q to a local path", sourceURI)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := fileutil.CopyFile(sourcePath, destPath); err != nil {
		if os.IsNotExist(err) {
			return Fatalf("source %s does not exist", sourcePath)
		}
		return fmt.Errorf("transfer %s: %w", sourceURI, err)
	}
	return nil
}

// localPath resolves a source URI to a filesystem path. Plain paths pass
// through; file:// and host-style URIs contribute their path component.
func localPath(sourceURI string) string {
	if sourceURI == "" {
		return ""
	}
	if strings.HasPrefix(sourceURI, "/") {
		return sourceURI
	}
	parsed, err := url.Parse(sourceURI)
	if err != nil || parsed.Path == "" {
		return ""
	}
	return parsed.Path
}

// SandboxSubmitter stands in for a remote scheduler in single-node and test
// deployments: submitted jobs "run" for a fixed simulated duration and then
// report finished. It keeps no state beyond the process lifetime, which is
// exactly the failure mode the monitor's NOT_FOUND handling covers.
type SandboxSubmitter struct {
	runtime time.Duration

	mu   sync.Mutex
	jobs map[string]time.Time
}

// NewSandboxSubmitter creates a sandbox scheduler with the given simulated
// job runtime.
func NewSandboxSubmitter(runtime time.Duration) *SandboxSubmitter {
	if runtime <= 0 {
		runtime = 30 * time.Second
	}
	return &SandboxSubmitter{
		runtime: runtime,
		jobs:    make(map[string]time.Time),
	}
}

// Submit implements Submitter.
func (s *SandboxSubmitter) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	id := "sandbox-" + uuid.NewString()
	s.mu.Lock()
	s.jobs[id] = time.Now()
	s.mu.Unlock()
	return id, nil
}

// Status implements Submitter.
func (s *SandboxSubmitter) Status(ctx context.Context, system, localJobID string) (RemoteStatus, error) {
	s.mu.Lock()
	started, ok := s.jobs[localJobID]
	s.mu.Unlock()
	if !ok {
		return StatusNotFound, nil
	}
	if time.Since(started) < s.runtime {
		return StatusRunning, nil
	}
	return StatusFinished, nil
}

// Cancel implements Submitter.
func (s *SandboxSubmitter) Cancel(ctx context.Context, system, localJobID string) error {
	s.mu.Lock()
	delete(s.jobs, localJobID)
	s.mu.Unlock()
	return nil
}
