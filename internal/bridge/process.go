package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/tweetscout/tweetscout/api/types"
)

const (
	defaultTimeout  = 30 * time.Second
	defaultMaxProcs = 4

	// killDelay is how long a terminated worker gets to die before SIGKILL.
	killDelay = 5 * time.Second
)

// Config configures the process executor.
type Config struct {
	// NodePath is the Node.js executable. Defaults to "node" on PATH.
	NodePath string
	// BridgeDir is the working directory holding package.json, node_modules
	// and the per-call worker scripts.
	BridgeDir string
	// Timeout is the default per-invocation bound.
	Timeout time.Duration
	// MaxProcs caps concurrently running worker processes. Callers beyond the
	// cap queue until a slot frees.
	MaxProcs int
}

// ProcessExecutor runs every operation in a fresh single-use Node.js process.
// No process or temp artifact outlives its invocation.
type ProcessExecutor struct {
	nodePath  string
	bridgeDir string
	timeout   time.Duration
	slots     chan struct{}
}

// NewProcessExecutor prepares the bridge working directory and returns an
// executor. The directory gets a pinned package.json if it has none.
func NewProcessExecutor(cfg Config) (*ProcessExecutor, error) {
	if cfg.NodePath == "" {
		cfg.NodePath = "node"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxProcs <= 0 {
		cfg.MaxProcs = defaultMaxProcs
	}
	if cfg.BridgeDir == "" {
		return nil, fmt.Errorf("bridge directory must be set")
	}

	if err := os.MkdirAll(cfg.BridgeDir, 0755); err != nil {
		return nil, fmt.Errorf("creating bridge directory: %w", err)
	}
	packagePath := filepath.Join(cfg.BridgeDir, "package.json")
	if _, err := os.Stat(packagePath); os.IsNotExist(err) {
		if err := os.WriteFile(packagePath, []byte(packageJSON), 0644); err != nil {
			return nil, fmt.Errorf("writing package.json: %w", err)
		}
	}

	logrus.Infof("Bridge executor ready (node: %s, dir: %s, max procs: %d)",
		cfg.NodePath, cfg.BridgeDir, cfg.MaxProcs)
	return &ProcessExecutor{
		nodePath:  cfg.NodePath,
		bridgeDir: cfg.BridgeDir,
		timeout:   cfg.Timeout,
		slots:     make(chan struct{}, cfg.MaxProcs),
	}, nil
}

// EnsureDependencies installs the provider library into the bridge directory
// if node_modules is missing. Called once at startup, not per invocation.
func (p *ProcessExecutor) EnsureDependencies(ctx context.Context) error {
	if _, err := os.Stat(filepath.Join(p.bridgeDir, "node_modules")); err == nil {
		return nil
	}
	logrus.Info("Installing bridge provider dependencies...")
	cmd := exec.CommandContext(ctx, "npm", "install")
	cmd.Dir = p.bridgeDir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("npm install failed: %w: %s", err, truncate(out, 512))
	}
	logrus.Info("Bridge provider dependencies installed")
	return nil
}

// Execute runs a single operation in a fresh worker process, bounded by the
// request timeout. Exactly one process exists per in-flight request.
func (p *ProcessExecutor) Execute(ctx context.Context, req Request) (*Response, error) {
	if req.Operation == "" {
		return nil, &types.ValidationError{Field: "operation", Message: "must not be empty"}
	}
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = p.timeout
	}

	// Blocked senders on a full channel are woken in FIFO order, which gives
	// us the queueing discipline for callers beyond the process ceiling.
	select {
	case p.slots <- struct{}{}:
		defer func() { <-p.slots }()
	case <-ctx.Done():
		return nil, &types.BridgeProcessError{
			Kind:    types.BridgeErrorTimeout,
			Message: "cancelled while waiting for a worker slot",
			Err:     ctx.Err(),
		}
	}

	s, err := p.newSession()
	if err != nil {
		return nil, &types.BridgeProcessError{
			Kind:    types.BridgeErrorSpawn,
			Message: "preparing worker script",
			Err:     err,
		}
	}
	defer s.close()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return s.run(ctx, p.nodePath, p.bridgeDir, req)
}

// session owns the transient artifacts of one invocation: the generated
// worker script and the process it feeds. close runs on every exit path.
type session struct {
	id         string
	scriptPath string
}

func (p *ProcessExecutor) newSession() (*session, error) {
	id := uuid.New().String()
	scriptPath := filepath.Join(p.bridgeDir, fmt.Sprintf("worker-%s.mjs", id))
	if err := os.WriteFile(scriptPath, []byte(workerScript), 0600); err != nil {
		return nil, err
	}
	return &session{id: id, scriptPath: scriptPath}, nil
}

func (s *session) close() {
	if err := os.Remove(s.scriptPath); err != nil && !os.IsNotExist(err) {
		logrus.WithError(err).Warnf("Failed to remove worker script %s", s.scriptPath)
	}
}

func (s *session) run(ctx context.Context, nodePath, dir string, req Request) (*Response, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, &types.ValidationError{Field: "arguments", Message: err.Error()}
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, nodePath, s.scriptPath)
	cmd.Dir = dir
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// On deadline the worker gets SIGTERM first; Wait falls back to SIGKILL
	// after killDelay so the process never outlives the call.
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = killDelay

	if err := cmd.Start(); err != nil {
		return nil, &types.BridgeProcessError{
			Kind:    types.BridgeErrorSpawn,
			Message: fmt.Sprintf("starting %s", nodePath),
			Err:     err,
		}
	}
	logrus.Debugf("Worker %s started (pid %d, operation %s)", s.id, cmd.Process.Pid, req.Operation)

	waitErr := cmd.Wait()
	if stderr.Len() > 0 {
		logrus.Debugf("Worker %s stderr: %s", s.id, truncate(stderr.Bytes(), 1024))
	}

	if ctx.Err() != nil {
		logrus.Warnf("Worker %s terminated (operation %s): %v", s.id, req.Operation, ctx.Err())
		return nil, &types.BridgeProcessError{
			Kind:    types.BridgeErrorTimeout,
			Message: fmt.Sprintf("operation %s exceeded its deadline", req.Operation),
			Err:     ctx.Err(),
		}
	}

	resp, parseErr := parseResponse(stdout.Bytes())
	if waitErr != nil {
		// A worker that reports a structured failure exits non-zero; the
		// parsed response wins over the exit code.
		if parseErr == nil {
			return resp, nil
		}
		return nil, &types.BridgeProcessError{
			Kind:    types.BridgeErrorAbnormalExit,
			Message: fmt.Sprintf("worker exited abnormally: %s", truncate(stderr.Bytes(), 256)),
			Err:     waitErr,
		}
	}
	if parseErr != nil {
		return nil, &types.BridgeProcessError{
			Kind:    types.BridgeErrorMalformedResponse,
			Message: fmt.Sprintf("unparseable worker output: %s", truncate(stdout.Bytes(), 256)),
			Err:     parseErr,
		}
	}
	return resp, nil
}

func parseResponse(out []byte) (*Response, error) {
	out = bytes.TrimSpace(out)
	if len(out) == 0 {
		return nil, fmt.Errorf("empty worker output")
	}
	var resp Response
	if err := json.Unmarshal(out, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func truncate(b []byte, n int) string {
	s := string(bytes.TrimSpace(b))
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}

var _ Executor = (*ProcessExecutor)(nil)
