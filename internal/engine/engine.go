package engine

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/roadmetrics/countline/config"
	apperrors "github.com/roadmetrics/countline/internal/errors"
)

// Artifact file names inside a job's scratch directory.
const (
	outputVideoName = "output.mp4"
	resultsName     = "results.json"
)

// maxStderrBytes bounds how much engine stderr is retained for error text.
const maxStderrBytes = 8 * 1024

// ProgressReport is one progress line emitted by the engine on stdout. The
// adapter relays each report unchanged, tagged with the job id by the caller.
type ProgressReport struct {
	Stage    string `json:"stage"`
	Progress int    `json:"progress"`
	Message  string `json:"message,omitempty"`
}

// ProgressFunc receives relayed engine progress reports.
type ProgressFunc func(ProgressReport)

// InvokeRequest describes one engine invocation. The scratch directory is
// exclusively owned by this invocation and must be namespaced by job id.
type InvokeRequest struct {
	JobID      string
	InputURL   string
	ScratchDir string
}

// InvokeResult is a successful invocation's output, all under the scratch dir.
type InvokeResult struct {
	OutputVideoPath string
	ResultsPath     string
	Results         *Results
}

// Adapter invokes the external detection engine as a subprocess.
type Adapter struct {
	binary Resolution
	cfg    config.EngineConfig
	logger *slog.Logger
}

// AdapterOptions groups dependencies for NewAdapter.
type AdapterOptions struct {
	Binary Resolution
	Config config.EngineConfig
	Logger *slog.Logger
}

// NewAdapter constructs an engine adapter around a resolved binary.
func NewAdapter(opts AdapterOptions) *Adapter {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		binary: opts.Binary,
		cfg:    opts.Config,
		logger: logger.With("component", "engine_adapter"),
	}
}

// Invoke runs the engine against a remote-accessible input URL. The engine
// downloads the input itself, writes the annotated video and the results
// artifact into the scratch directory, and streams JSON-lines progress on
// stdout. The configured timeout is a hard ceiling: exceeding it is a
// failure, never success-with-partial-data.
func (a *Adapter) Invoke(ctx context.Context, req InvokeRequest, onProgress ProgressFunc) (*InvokeResult, error) {
	if req.JobID == "" || req.ScratchDir == "" {
		return nil, errors.New("job id and scratch dir are required")
	}

	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	outputPath := filepath.Join(req.ScratchDir, outputVideoName)
	resultsPath := filepath.Join(req.ScratchDir, resultsName)

	cmd := exec.CommandContext(ctx, a.binary.Path,
		"--input", req.InputURL,
		"--output", outputPath,
		"--results", resultsPath,
	)
	cmd.Dir = req.ScratchDir
	cmd.Env = a.invocationEnv()

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, apperrors.Engine("open engine stdout", err)
	}
	var stderr boundedBuffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, apperrors.Engine(fmt.Sprintf("spawn detection engine %q", a.binary.Path), err)
	}

	a.relayProgress(req.JobID, stdout, onProgress)

	if err := cmd.Wait(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, apperrors.Engine(
				fmt.Sprintf("detection engine exceeded %s timeout", a.cfg.Timeout),
				context.DeadlineExceeded,
			)
		}
		return nil, apperrors.Engine(
			fmt.Sprintf("detection engine exited abnormally: %s", stderr.tail()),
			err,
		)
	}

	results, err := ParseResultsFile(resultsPath)
	if err != nil {
		return nil, apperrors.Engine("malformed results artifact", err)
	}

	return &InvokeResult{
		OutputVideoPath: outputPath,
		ResultsPath:     resultsPath,
		Results:         results,
	}, nil
}

// invocationEnv builds the subprocess environment from the engine config.
// The engine inherits nothing: its runtime knobs travel explicitly.
func (a *Adapter) invocationEnv() []string {
	env := []string{
		"COUNTLINE_ENGINE_HEADLESS=" + boolEnv(a.cfg.Headless),
	}
	if a.cfg.Threads > 0 {
		env = append(env, "COUNTLINE_ENGINE_THREADS="+strconv.Itoa(a.cfg.Threads))
	}
	return env
}

// relayProgress reads JSON-lines progress reports from the engine's stdout
// and forwards each to onProgress. Lines that fail to decode are logged and
// skipped; a chatty engine must not break its own job.
func (a *Adapter) relayProgress(jobID string, stdout interface{ Read([]byte) (int, error) }, onProgress ProgressFunc) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var report ProgressReport
		if err := json.Unmarshal([]byte(line), &report); err != nil {
			a.logger.Debug("unparsable engine progress line", "job_id", jobID, "line", line)
			continue
		}
		if report.Progress < 0 {
			report.Progress = 0
		}
		if report.Progress > 100 {
			report.Progress = 100
		}
		if onProgress != nil {
			onProgress(report)
		}
	}
	// Scanner errors mean the pipe broke; cmd.Wait surfaces the real cause.
	_ = scanner.Err()
}

func boolEnv(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// boundedBuffer retains only the last maxStderrBytes of what is written to it.
type boundedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.buf.Write(p)
	if b.buf.Len() > maxStderrBytes {
		data := b.buf.Bytes()
		trimmed := make([]byte, maxStderrBytes)
		copy(trimmed, data[len(data)-maxStderrBytes:])
		b.buf.Reset()
		b.buf.Write(trimmed)
	}
	return len(p), nil
}

func (b *boundedBuffer) tail() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.TrimSpace(b.buf.String())
}
