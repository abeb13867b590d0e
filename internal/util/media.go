package util

import (
	"fmt"
	"mime"
	"net/textproto"
	"path/filepath"
	"strings"
)

// MediaTypeByExt looks up the media type of name's extension, without
// parameters. Unknown extensions, and types outside prefix when prefix is
// set, yield fallback.
func MediaTypeByExt(name, prefix, fallback string) string {
	t := mime.TypeByExtension(strings.ToLower(filepath.Ext(name)))
	if t == "" {
		return fallback
	}
	mediaType, _, err := mime.ParseMediaType(t)
	if err != nil || !strings.HasPrefix(mediaType, prefix) {
		return fallback
	}
	return mediaType
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// FormFileHeader builds the part header of a multipart file field. The
// filename is quote-escaped like mime/multipart.CreateFormFile does.
func FormFileHeader(field, filename, contentType string) textproto.MIMEHeader {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		quoteEscaper.Replace(field), quoteEscaper.Replace(filename)))
	h.Set("Content-Type", contentType)
	return h
}
