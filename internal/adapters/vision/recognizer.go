package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/nerrad567/garagegate/internal/access"
	"github.com/nerrad567/garagegate/internal/adapters"
)

// DetectionTypeLine marks a whole line of recognised text.
const DetectionTypeLine = "LINE"

// Detection is one piece of text found in an image.
type Detection struct {
	Text       string  `json:"text"`
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
}

// Recognizer finds text in a JPEG image.
type Recognizer interface {
	Detect(ctx context.Context, jpeg []byte) ([]Detection, error)
}

// HTTPRecognizer posts frames to a text detection service. The service
// answers with {"detections": [{"text", "type", "confidence"}]}.
type HTTPRecognizer struct {
	client *http.Client
	url    string
}

// NewHTTPRecognizer creates a recogniser client. client may be nil.
func NewHTTPRecognizer(client *http.Client, url string) *HTTPRecognizer {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPRecognizer{client: client, url: url}
}

type detectResponse struct {
	Detections []Detection `json:"detections"`
}

// Detect implements Recognizer.
func (r *HTTPRecognizer) Detect(ctx context.Context, jpeg []byte) ([]Detection, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(jpeg))
	if err != nil {
		return nil, fmt.Errorf("building recognizer request: %w", err)
	}
	req.Header.Set("Content-Type", "image/jpeg")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", adapters.ErrServiceFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: recognizer status %d: %s", adapters.ErrServiceFailure, resp.StatusCode, bytes.TrimSpace(body))
	}

	var out detectResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decoding detections: %v", adapters.ErrServiceFailure, err)
	}
	return out.Detections, nil
}

// SelectPlate returns the first LINE detection with confidence above
// minConfidence, cleaned. It returns "" when nothing qualifies.
func SelectPlate(detections []Detection, minConfidence float64) string {
	for _, d := range detections {
		if d.Type != DetectionTypeLine || d.Confidence <= minConfidence {
			continue
		}
		if plate := access.CleanPlate(d.Text); plate != "" {
			return plate
		}
	}
	return ""
}
