package ner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dativo-io/piiguard/internal/classifier"
	piiotel "github.com/dativo-io/piiguard/internal/otel"
)

// SidecarModel calls a NER sidecar over HTTP:
//
//	POST {base}/analyze  {"text": "...", "language": "en"}
//	-> {"entities": [{"label": "PER", "start": 11, "end": 21, "score": 0.9}]}
//
// Offsets are code points unless WithByteOffsets is set.
type SidecarModel struct {
	baseURL     string
	client      *http.Client
	labels      map[string]string
	byteOffsets bool
}

// SidecarOption configures a SidecarModel.
type SidecarOption func(*SidecarModel)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) SidecarOption {
	return func(m *SidecarModel) { m.client = c }
}

// WithLabelMap replaces DefaultLabelMap.
func WithLabelMap(labels map[string]string) SidecarOption {
	return func(m *SidecarModel) { m.labels = labels }
}

// WithByteOffsets declares that the sidecar reports UTF-8 byte offsets.
func WithByteOffsets() SidecarOption {
	return func(m *SidecarModel) { m.byteOffsets = true }
}

// NewSidecarModel creates a client for the sidecar at baseURL
// (e.g. "http://127.0.0.1:9401").
func NewSidecarModel(baseURL string, opts ...SidecarOption) *SidecarModel {
	m := &SidecarModel{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
		labels:  DefaultLabelMap,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

type sidecarRequest struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

type sidecarEntity struct {
	Label string   `json:"label"`
	Start int      `json:"start"`
	End   int      `json:"end"`
	Score *float64 `json:"score"`
}

type sidecarResponse struct {
	Entities []sidecarEntity `json:"entities"`
}

// Detect implements classifier.NERModel.
func (m *SidecarModel) Detect(ctx context.Context, text, language string) ([]classifier.Detection, error) {
	ctx, span := tracer.Start(ctx, "ner.sidecar.detect",
		trace.WithAttributes(piiotel.NERAttributes("sidecar", m.baseURL)...))
	defer span.End()

	body, err := json.Marshal(sidecarRequest{Text: text, Language: language})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/analyze", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: sidecar request: %v", classifier.ErrModelUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		err = wrapBackendError(ctx, "sidecar", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("%w: sidecar returned %d: %s", classifier.ErrModelUnavailable, resp.StatusCode, strings.TrimSpace(string(msg)))
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	var result sidecarResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		err = fmt.Errorf("%w: decoding sidecar response: %v", classifier.ErrModelUnavailable, err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	var t *classifier.Text
	if m.byteOffsets {
		t = classifier.NewText(text)
	}
	out := make([]classifier.Detection, 0, len(result.Entities))
	for _, e := range result.Entities {
		start, end := e.Start, e.End
		if t != nil {
			if start < 0 || end > len(text) || start > end {
				return nil, fmt.Errorf("%w: sidecar span [%d,%d) outside text", classifier.ErrModelUnavailable, start, end)
			}
			start, end = t.RuneOffset(start), t.RuneOffset(end)
		}
		score := DefaultScore
		if e.Score != nil {
			score = *e.Score
		}
		out = append(out, classifier.Detection{
			EntityType: mapLabel(m.labels, e.Label),
			Start:      start,
			End:        end,
			Score:      score,
			Source:     classifier.SourceNER,
		})
	}
	span.SetAttributes(piiotel.PIIEntityCount.Int(len(out)))
	return out, nil
}

// Health calls GET {base}/health.
func (m *SidecarModel) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("%w: %v", classifier.ErrModelUnavailable, err)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return wrapBackendError(ctx, "sidecar", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: sidecar health returned %d", classifier.ErrModelUnavailable, resp.StatusCode)
	}
	return nil
}
