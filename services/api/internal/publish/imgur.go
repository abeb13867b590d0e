package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"wildwatch/internal/util"
)

// DefaultImgurUploadURL is the public Imgur v3 upload endpoint.
const DefaultImgurUploadURL = "https://api.imgur.com/3/upload"

// ImgurClient uploads images anonymously with an application client ID.
type ImgurClient struct {
	uploadURL  string
	clientID   string
	httpClient *http.Client
}

// NewImgurClient constructs an Imgur-compatible image host.
func NewImgurClient(uploadURL, clientID string, httpClient *http.Client) (*ImgurClient, error) {
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		return nil, errors.New("imgur client id is required")
	}
	uploadURL = strings.TrimSpace(uploadURL)
	if uploadURL == "" {
		uploadURL = DefaultImgurUploadURL
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &ImgurClient{uploadURL: uploadURL, clientID: clientID, httpClient: httpClient}, nil
}

type imgurResponse struct {
	Data struct {
		Link  string `json:"link"`
		Error any    `json:"error"`
	} `json:"data"`
	Success bool `json:"success"`
	Status  int  `json:"status"`
}

// PublishImage sends the file as the multipart "image" field.
func (c *ImgurClient) PublishImage(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreatePart(util.FormFileHeader("image", filepath.Base(path), util.MediaTypeByExt(path, "image/", "image/jpeg")))
		if err == nil {
			_, err = io.Copy(part, f)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.uploadURL, pr)
	if err != nil {
		_ = pr.CloseWithError(err)
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Client-ID "+c.clientID)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		_ = pr.CloseWithError(err)
		return "", &PublishError{Leg: LegImage, Detail: err.Error()}
	}
	defer resp.Body.Close()

	var payload imgurResponse
	decodeErr := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&payload)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail := resp.Status
		if msg := errorText(payload.Data.Error); msg != "" {
			detail = msg
		}
		return "", &PublishError{Leg: LegImage, Status: resp.StatusCode, Detail: detail}
	}
	if decodeErr != nil {
		return "", &PublishError{Leg: LegImage, Status: resp.StatusCode, Detail: "decode response: " + decodeErr.Error()}
	}
	if strings.TrimSpace(payload.Data.Link) == "" {
		return "", &PublishError{Leg: LegImage, Status: resp.StatusCode, Detail: "response has no link"}
	}
	return payload.Data.Link, nil
}

// Imgur reports errors either as a string or as {"message": ...}.
func errorText(v any) string {
	switch e := v.(type) {
	case string:
		return e
	case map[string]any:
		if msg, ok := e["message"].(string); ok {
			return msg
		}
	}
	return ""
}
