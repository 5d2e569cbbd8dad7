package roster

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"kiosk/internal/attendance"
)

// HTTPSource fetches classroom partitions as JSON documents from a
// roster server: GET <base>/<classroomKey>.json returning
// {"students": [...]}.
type HTTPSource struct {
	BaseURL string
	HTTP    *http.Client

	keys []string
}

// NewHTTPSource builds a source for the given classroom keys.
func NewHTTPSource(baseURL string, classrooms []string) *HTTPSource {
	return &HTTPSource{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 10 * time.Second},
		keys:    classrooms,
	}
}

// Keys lists the configured classroom keys.
func (s *HTTPSource) Keys() []string {
	out := make([]string, len(s.keys))
	copy(out, s.keys)
	return out
}

type partitionDoc struct {
	Students []attendance.Student `json:"students"`
}

// Partition fetches one classroom roster document.
func (s *HTTPSource) Partition(ctx context.Context, key string) ([]attendance.Student, error) {
	url := fmt.Sprintf("%s/%s.json", s.BaseURL, key)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("roster: create request failed: %w", err)
	}

	resp, err := s.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("roster: fetch %s failed: %w", key, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("roster: fetch %s returned %d: %s", key, resp.StatusCode, string(body))
	}

	var doc partitionDoc
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("roster: decode %s failed: %w", key, err)
	}
	return doc.Students, nil
}
