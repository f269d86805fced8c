package inference

import (
	"encoding/base64"
	"fmt"
	"mime"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// DefaultContentType is used when neither the provider nor the bytes say
// what the image is.
const DefaultContentType = "image/jpeg"

// DetectContentType prefers a declared image/* type, then sniffs the bytes,
// then falls back to DefaultContentType.
func DetectContentType(data []byte, declared string) string {
	if mediaType, _, err := mime.ParseMediaType(declared); err == nil && strings.HasPrefix(mediaType, "image/") {
		return mediaType
	}

	if len(data) > 0 {
		sniffed := mimetype.Detect(data)
		if strings.HasPrefix(sniffed.String(), "image/") {
			mediaType, _, _ := mime.ParseMediaType(sniffed.String())
			return mediaType
		}
	}

	return DefaultContentType
}

// IsImage reports whether the bytes sniff as an image.
func IsImage(data []byte) bool {
	return len(data) > 0 && strings.HasPrefix(mimetype.Detect(data).String(), "image/")
}

// Extension maps an image content type to a file extension without the dot.
func Extension(contentType string) string {
	switch contentType {
	case "image/jpeg", "image/jpg":
		return "jpg"
	case "image/svg+xml":
		return "svg"
	}
	_, sub, ok := strings.Cut(contentType, "/")
	if !ok || sub == "" {
		return "jpg"
	}
	sub, _, _ = strings.Cut(sub, ";")
	sub, _, _ = strings.Cut(sub, "+")
	return sub
}

// DecodeDataURI decodes "data:<type>;base64,<payload>" into bytes.
func DecodeDataURI(uri string) ([]byte, string, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return nil, "", fmt.Errorf("not a data uri")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, "", fmt.Errorf("malformed data uri")
	}

	contentType, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		return []byte(payload), contentType, nil
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode data uri: %w", err)
	}
	return data, contentType, nil
}
