package checkpoint

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const (
	jobFileName     = "job.json"
	visitedFileName = "visited.jsonl"
)

type visitedLine struct {
	URL string `json:"url"`
}

// FileStore keeps the job marker and visited log in a job directory.
type FileStore struct {
	dir string

	mu      sync.Mutex
	visited *os.File
}

// OpenFileStore creates dir if needed and opens the visited log for append.
func OpenFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create checkpoint dir: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(dir, visitedFileName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open visited log: %w", err)
	}
	return &FileStore{dir: dir, visited: f}, nil
}

// Dir returns the job directory.
func (s *FileStore) Dir() string {
	return s.dir
}

// LoadJob reads job.json.
func (s *FileStore) LoadJob(_ context.Context) (*Job, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, jobFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoJob
		}
		return nil, fmt.Errorf("read job marker: %w", err)
	}
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("decode job marker: %w", err)
	}
	return &job, nil
}

// SaveJob atomically replaces job.json.
func (s *FileStore) SaveJob(_ context.Context, job *Job) error {
	data, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return fmt.Errorf("encode job marker: %w", err)
	}
	tmp := filepath.Join(s.dir, jobFileName+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write job marker: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(s.dir, jobFileName)); err != nil {
		return fmt.Errorf("replace job marker: %w", err)
	}
	return nil
}

// Visited reads the visited log. A torn final line is ignored.
func (s *FileStore) Visited(_ context.Context) ([]string, error) {
	f, err := os.Open(filepath.Join(s.dir, visitedFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open visited log: %w", err)
	}
	defer f.Close()

	var urls []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var line visitedLine
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil || line.URL == "" {
			continue
		}
		urls = append(urls, line.URL)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan visited log: %w", err)
	}
	return urls, nil
}

// Append writes one visited URL.
func (s *FileStore) Append(_ context.Context, url string) error {
	data, err := json.Marshal(visitedLine{URL: url})
	if err != nil {
		return err
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.visited == nil {
		return fmt.Errorf("checkpoint store closed")
	}
	_, err = s.visited.Write(data)
	return err
}

// Reset truncates the visited log.
func (s *FileStore) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.visited == nil {
		return fmt.Errorf("checkpoint store closed")
	}
	return s.visited.Truncate(0)
}

// Close flushes and closes the visited log.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.visited == nil {
		return nil
	}
	err := s.visited.Sync()
	if closeErr := s.visited.Close(); err == nil {
		err = closeErr
	}
	s.visited = nil
	return err
}
