// Package analysis talks to the external image-analysis service.
package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"wildwatch/internal/util"
	"wildwatch/services/api/internal/ingress"
)

const defaultTimeout = 30 * time.Second

var (
	ErrAnalysisFailed  = errors.New("analysis failed")
	ErrAnalysisTimeout = errors.New("analysis timed out")
)

// Error carries the upstream outcome of a failed analysis call.
type Error struct {
	Status  int
	Message string
	Timeout bool
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("analysis failed: status %d: %s", e.Status, e.Message)
	}
	return "analysis failed: " + e.Message
}

// Is matches ErrAnalysisFailed always and ErrAnalysisTimeout on deadline.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrAnalysisFailed:
		return true
	case ErrAnalysisTimeout:
		return e.Timeout
	}
	return false
}

// Result points at the two artifacts produced for one upload.
type Result struct {
	AnnotatedImage *ingress.StagedFile
	DataArtifact   *ingress.StagedFile
	// Raw is the analysis response body, kept on the record.
	Raw json.RawMessage

	owned []*ingress.StagedFile
}

// Cleanup removes artifacts this client downloaded. Artifacts read from the
// shared artifact directory belong to the analysis service and are left alone.
func (r Result) Cleanup() {
	for _, f := range r.owned {
		_ = f.Cleanup()
	}
}

// Config configures the analysis client.
type Config struct {
	BaseURL string
	// ArtifactDir is a volume shared with the analysis service. When empty,
	// artifacts are downloaded from BaseURL into StagingDir.
	ArtifactDir string
	StagingDir  string
	Timeout     time.Duration
	HTTPClient  *http.Client
}

// Client calls POST /process-image/ on the analysis service.
type Client struct {
	baseURL     string
	artifactDir string
	stagingDir  string
	timeout     time.Duration
	httpClient  *http.Client
}

// NewClient constructs an analysis client.
func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("analysis base url is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	stagingDir := cfg.StagingDir
	if stagingDir == "" {
		stagingDir = os.TempDir()
	}
	return &Client{
		baseURL:     baseURL,
		artifactDir: strings.TrimSpace(cfg.ArtifactDir),
		stagingDir:  stagingDir,
		timeout:     timeout,
		httpClient:  httpClient,
	}, nil
}

type processResponse struct {
	ImagePath string `json:"image_path"`
	CSVPath   string `json:"csv_path"`
}

// Analyze submits the staged upload and resolves both returned artifacts.
// Nothing is retried.
func (c *Client) Analyze(ctx context.Context, upload *ingress.StagedFile) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	raw, err := c.process(ctx, upload)
	if err != nil {
		return Result{}, c.wrap(ctx, err)
	}
	var resp processResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return Result{}, &Error{Message: "decode response: " + err.Error()}
	}
	if strings.TrimSpace(resp.ImagePath) == "" || strings.TrimSpace(resp.CSVPath) == "" {
		return Result{}, &Error{Message: "response missing image_path or csv_path"}
	}

	res := Result{Raw: raw}
	image, err := c.resolve(ctx, resp.ImagePath, "image/jpeg")
	if err != nil {
		return Result{}, c.wrap(ctx, err)
	}
	res.adopt(image, c.artifactDir == "")
	data, err := c.resolve(ctx, resp.CSVPath, "text/csv")
	if err != nil {
		res.Cleanup()
		return Result{}, c.wrap(ctx, err)
	}
	res.adopt(data, c.artifactDir == "")
	res.AnnotatedImage = image
	res.DataArtifact = data
	util.LoggerFromContext(ctx).Info("analysis complete",
		"stage", "analysis",
		"image_path", resp.ImagePath,
		"csv_path", resp.CSVPath,
	)
	return res, nil
}

func (r *Result) adopt(f *ingress.StagedFile, owned bool) {
	if owned {
		r.owned = append(r.owned, f)
	}
}

func (c *Client) process(ctx context.Context, upload *ingress.StagedFile) ([]byte, error) {
	f, err := os.Open(upload.Path)
	if err != nil {
		return nil, fmt.Errorf("open staged upload: %w", err)
	}
	defer f.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreatePart(util.FormFileHeader("file", filepath.Base(upload.Path), upload.MimeType))
		if err == nil {
			_, err = io.Copy(part, f)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/process-image/", pr)
	if err != nil {
		_ = pr.CloseWithError(err)
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := c.httpClient.Do(req)
	if err != nil {
		_ = pr.CloseWithError(err)
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{Status: resp.StatusCode, Message: upstreamMessage(body, resp.Status)}
	}
	return body, nil
}

// resolve maps an artifact path from the analysis response to a local file.
func (c *Client) resolve(ctx context.Context, artifactPath, fallbackMime string) (*ingress.StagedFile, error) {
	clean := path.Clean("/" + strings.TrimSpace(artifactPath))
	name := path.Base(clean)
	mimeType := util.MediaTypeByExt(name, "", fallbackMime)
	if c.artifactDir != "" {
		local := filepath.Join(c.artifactDir, filepath.FromSlash(strings.TrimPrefix(clean, "/static")))
		info, err := os.Stat(local)
		if err != nil {
			return nil, &Error{Message: fmt.Sprintf("artifact %s not found: %v", artifactPath, err)}
		}
		return ingress.Stage(local, mimeType, info.Size()), nil
	}
	return c.download(ctx, clean, name, mimeType)
}

func (c *Client) download(ctx context.Context, urlPath, name, mimeType string) (*ingress.StagedFile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+urlPath, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, &Error{Status: resp.StatusCode, Message: "download " + urlPath + ": " + upstreamMessage(body, resp.Status)}
	}
	local := filepath.Join(c.stagingDir, fmt.Sprintf("artifact-%d-%s-%s", time.Now().UnixMilli(), util.RandomHex(4), name))
	f, err := os.OpenFile(local, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return nil, fmt.Errorf("create artifact file: %w", err)
	}
	staged := ingress.Stage(local, mimeType, 0)
	n, copyErr := io.Copy(f, resp.Body)
	closeErr := f.Close()
	if copyErr != nil || closeErr != nil {
		_ = staged.Cleanup()
		return nil, errors.Join(copyErr, closeErr)
	}
	staged.Size = n
	staged.OriginalFilename = name
	return staged, nil
}

func (c *Client) wrap(ctx context.Context, err error) error {
	var aerr *Error
	if errors.As(err, &aerr) {
		return aerr
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &Error{Message: fmt.Sprintf("no response within %s", c.timeout), Timeout: true}
	}
	return &Error{Message: err.Error()}
}

func upstreamMessage(body []byte, fallback string) string {
	var payload struct {
		Detail any    `json:"detail"`
		Error  string `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if s, ok := payload.Detail.(string); ok && s != "" {
			return s
		}
	}
	if msg := strings.TrimSpace(string(body)); msg != "" && len(msg) <= 256 {
		return msg
	}
	return fallback
}
