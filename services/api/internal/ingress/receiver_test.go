package ingress

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type part struct {
	field       string
	filename    string
	contentType string
	body        []byte
}

func multipartBody(t *testing.T, parts ...part) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	for _, p := range parts {
		h := make(textproto.MIMEHeader)
		disp := fmt.Sprintf(`form-data; name="%s"`, p.field)
		if p.filename != "" {
			disp += fmt.Sprintf(`; filename="%s"`, p.filename)
		}
		h.Set("Content-Disposition", disp)
		if p.contentType != "" {
			h.Set("Content-Type", p.contentType)
		}
		pw, err := w.CreatePart(h)
		require.NoError(t, err)
		_, err = pw.Write(p.body)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf, w.FormDataContentType()
}

func newReceiver(t *testing.T, maxBytes int64) *Receiver {
	t.Helper()
	r, err := New(Config{StagingDir: t.TempDir(), MaxBytes: maxBytes})
	require.NoError(t, err)
	return r
}

func stagedEntries(t *testing.T, r *Receiver) []os.DirEntry {
	t.Helper()
	entries, err := os.ReadDir(r.Dir())
	require.NoError(t, err)
	return entries
}

func TestReceiveStagesImage(t *testing.T) {
	r := newReceiver(t, 1024)
	body, ct := multipartBody(t,
		part{field: "note", body: []byte("camera 7")},
		part{field: "file", filename: "trap.JPG", contentType: "image/jpeg", body: []byte("jpegbytes")},
	)
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", ct)

	staged, err := r.Receive(httptest.NewRecorder(), req)
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", staged.MimeType)
	assert.Equal(t, "trap.JPG", staged.OriginalFilename)
	assert.EqualValues(t, len("jpegbytes"), staged.Size)
	assert.Equal(t, r.Dir(), filepath.Dir(staged.Path))
	assert.Regexp(t, regexp.MustCompile(`^image-\d+-[0-9a-f]{12}\.jpg$`), filepath.Base(staged.Path))

	data, err := os.ReadFile(staged.Path)
	require.NoError(t, err)
	assert.Equal(t, "jpegbytes", string(data))

	require.NoError(t, staged.Cleanup())
	require.NoError(t, staged.Cleanup())
	_, err = os.Stat(staged.Path)
	assert.True(t, os.IsNotExist(err))
}

func TestReceiveRejectsNonImage(t *testing.T) {
	r := newReceiver(t, 1024)
	body, ct := multipartBody(t, part{field: "file", filename: "notes.txt", contentType: "text/plain", body: []byte("hello")})
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", ct)

	_, err := r.Receive(httptest.NewRecorder(), req)
	require.ErrorIs(t, err, ErrUnsupportedMediaType)
	assert.Empty(t, stagedEntries(t, r))
}

func TestReceiveWithoutFilePart(t *testing.T) {
	r := newReceiver(t, 1024)
	body, ct := multipartBody(t, part{field: "note", body: []byte("no file here")})
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", ct)
	_, err := r.Receive(httptest.NewRecorder(), req)
	require.ErrorIs(t, err, ErrNoFile)

	req = httptest.NewRequest(http.MethodPost, "/api/upload", strings.NewReader(`{"file":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	_, err = r.Receive(httptest.NewRecorder(), req)
	require.ErrorIs(t, err, ErrNoFile)
}

func TestReceiveRejectsDeclaredOversize(t *testing.T) {
	r := newReceiver(t, DefaultMaxBytes)
	big := bytes.Repeat([]byte{0xff}, 6<<20)
	body, ct := multipartBody(t, part{field: "file", filename: "big.png", contentType: "image/png", body: big})
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", ct)
	require.Greater(t, req.ContentLength, DefaultMaxBytes)

	_, err := r.Receive(httptest.NewRecorder(), req)
	require.ErrorIs(t, err, ErrPayloadTooLarge)
	assert.Empty(t, stagedEntries(t, r))
}

func TestReceiveRejectsStreamedOversize(t *testing.T) {
	r := newReceiver(t, 1024)
	body, ct := multipartBody(t, part{field: "file", filename: "big.png", contentType: "image/png", body: bytes.Repeat([]byte{1}, 4096)})
	// Hide the length so the limit is enforced while streaming.
	req := httptest.NewRequest(http.MethodPost, "/api/upload", io.NopCloser(body))
	req.ContentLength = -1
	req.Header.Set("Content-Type", ct)

	_, err := r.Receive(httptest.NewRecorder(), req)
	require.ErrorIs(t, err, ErrPayloadTooLarge)
	assert.Empty(t, stagedEntries(t, r))
}

func TestExtensionFor(t *testing.T) {
	assert.Equal(t, ".png", extensionFor("a.PNG", "image/png"))
	assert.Equal(t, ".jpeg", extensionFor("a.jpeg", "image/jpeg"))
	assert.Equal(t, "", sanitizeExt(".p/ng"))
	assert.NotEqual(t, ".p/ng", extensionFor("a.p/ng", "image/png"))
	assert.Equal(t, "", extensionFor("noext", "image/x-unregistered-kind"))
}
