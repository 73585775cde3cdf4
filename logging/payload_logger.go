// Package logging persists the raw payloads received from the runner,
// one log file per run uuid, for postmortem inspection of a run.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"
)

var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// safeFilename replaces characters that are unsafe in file names.
func safeFilename(name string) string {
	return unsafeFilenameChars.ReplaceAllString(name, "_")
}

// PayloadLogger appends raw payload bytes to a per-run log file under
// the configured directory. Files are opened lazily and kept open until
// Close.
type PayloadLogger struct {
	baseDir string

	mu    sync.Mutex
	files map[string]*os.File
}

// NewPayloadLogger creates the log directory and a logger writing into it.
func NewPayloadLogger(baseDir string) (*PayloadLogger, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create payload log directory: %w", err)
	}
	return &PayloadLogger{
		baseDir: baseDir,
		files:   make(map[string]*os.File),
	}, nil
}

// Log appends one raw payload, newline-terminated, to the run's file.
func (p *PayloadLogger) Log(runUUID string, body []byte) error {
	file, err := p.fileFor(runUUID)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, err := fmt.Fprintf(file, "%s %s\n", time.Now().UTC().Format(time.RFC3339Nano), body); err != nil {
		return fmt.Errorf("failed to write payload log: %w", err)
	}
	return nil
}

// PathFor returns the log file path used for a run uuid.
func (p *PayloadLogger) PathFor(runUUID string) string {
	return filepath.Join(p.baseDir, safeFilename(runUUID)+".log")
}

func (p *PayloadLogger) fileFor(runUUID string) (*os.File, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if file, ok := p.files[runUUID]; ok {
		return file, nil
	}
	file, err := os.OpenFile(p.PathFor(runUUID), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open payload log file: %w", err)
	}
	p.files[runUUID] = file
	return file, nil
}

// Close closes every open log file.
func (p *PayloadLogger) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for runUUID, file := range p.files {
		if err := file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(p.files, runUUID)
	}
	return firstErr
}
