package coverage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"

	"go.opentelemetry.io/otel/trace"

	"github.com/Benedito123/workflow-runner/internal/defaults"
)

const (
	tracerName = "github.com/Benedito123/workflow-runner/internal/repository/coverage"
)

// Repository is a client for a coverage ingestion service. A report is a
// single file (e.g. coverage.xml) posted together with run metadata.
type Repository struct {
	baseURL    string
	httpClient *http.Client
	tracer     trace.Tracer
}

func New(baseURL string, options ...func(*Repository)) *Repository {
	repository := Repository{
		baseURL:    baseURL,
		httpClient: defaults.HTTPClient,
		tracer:     defaults.TraceProvider.Tracer(tracerName),
	}

	for _, apply := range options {
		apply(&repository)
	}

	return &repository
}

type UploadRequest struct {
	// path of the report file on disk
	File string

	// run metadata attached to the upload
	Ref       string
	EventName string
	RunID     string
	Flags     string
}

type uploadResponse struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Upload posts a coverage report. Returns the server-assigned report URL.
func (r *Repository) Upload(ctx context.Context, request UploadRequest) (string, error) {
	ctx, span := r.tracer.Start(ctx, "upload coverage report")
	defer span.End()

	data, err := os.ReadFile(request.File)
	if err != nil {
		return "", fmt.Errorf("read coverage file: %w", err)
	}

	query := url.Values{}
	query.Set("ref", request.Ref)
	query.Set("event", request.EventName)
	query.Set("run_id", request.RunID)

	if request.Flags != "" {
		query.Set("flags", request.Flags)
	}

	endpoint := fmt.Sprintf("%s/upload?%s", r.baseURL, query.Encode())

	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	httpRequest.Header.Set("Content-Type", "text/plain; charset=utf-8")

	httpResponse, err := r.httpClient.Do(httpRequest)
	if err != nil {
		return "", fmt.Errorf("do request: %w", err)
	}
	defer httpResponse.Body.Close()

	body, err := io.ReadAll(httpResponse.Body)
	if err != nil {
		return "", fmt.Errorf("read response body: %w", err)
	}

	if httpResponse.StatusCode != http.StatusOK && httpResponse.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("unexpected status code: %d", httpResponse.StatusCode)
	}

	var response uploadResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return "", fmt.Errorf("unmarshal response body: %w", err)
	}

	return response.URL, nil
}

func WithHTTPClient(httpClient *http.Client) func(*Repository) {
	return func(r *Repository) {
		r.httpClient = httpClient
	}
}

func WithTracerProvider(tp trace.TracerProvider) func(*Repository) {
	return func(r *Repository) {
		r.tracer = tp.Tracer(tracerName)
	}
}
