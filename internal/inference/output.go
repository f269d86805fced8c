// Package inference normalizes the result shapes returned by image generation
// providers into a single artifact of bytes plus content type.
package inference

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"
)

// Kind tags which shape a provider result arrived in.
type Kind int

const (
	KindUnrecognized Kind = iota
	KindInline
	KindAccessor
	KindURL
)

func (k Kind) String() string {
	switch k {
	case KindInline:
		return "inline"
	case KindAccessor:
		return "accessor"
	case KindURL:
		return "url"
	default:
		return "unrecognized"
	}
}

// ByteAccessor is a provider result object that yields its bytes on demand.
type ByteAccessor interface {
	Bytes(ctx context.Context) ([]byte, string, error)
}

// Request is what every provider receives: an instruction and a URL the
// provider can read the source image from.
type Request struct {
	Prompt   string
	ImageURL string
}

// Fetcher downloads a URL, returning the body and the Content-Type header.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, string, error)
}

// Output is the tagged union produced by a provider adapter. URL may
// accompany the inline and accessor shapes as the provider-side location.
type Output struct {
	Kind        Kind
	Data        []byte
	ContentType string
	Accessor    ByteAccessor
	URL         string
	Raw         string
}

func Inline(data []byte, contentType string) Output {
	return Output{Kind: KindInline, Data: data, ContentType: contentType}
}

func FromAccessor(accessor ByteAccessor, url string) Output {
	return Output{Kind: KindAccessor, Accessor: accessor, URL: url}
}

func FromURL(url string) Output {
	return Output{Kind: KindURL, URL: url}
}

func Unrecognized(raw string) Output {
	return Output{Kind: KindUnrecognized, Raw: raw}
}

// Artifact is a normalized generation result.
type Artifact struct {
	Data        []byte
	ContentType string
	SourceURL   string
}

var ErrNoOutput = errors.New("provider returned no usable output")

// Resolve extracts bytes in priority order: inline payload, byte accessor,
// then a follow-up fetch of the URL. The fetch only happens when no bytes
// were obtainable directly.
func Resolve(ctx context.Context, out Output, fetcher Fetcher) (*Artifact, error) {
	var accessorErr error

	switch out.Kind {
	case KindInline:
		if len(out.Data) > 0 {
			return newArtifact(out.Data, out.ContentType, out.URL), nil
		}
	case KindAccessor:
		if out.Accessor != nil {
			data, contentType, err := out.Accessor.Bytes(ctx)
			if err == nil && len(data) > 0 {
				if contentType == "" {
					contentType = out.ContentType
				}
				return newArtifact(data, contentType, out.URL), nil
			}
			accessorErr = err
		}
	case KindUnrecognized:
		return nil, fmt.Errorf("%w: unrecognized result %s", ErrNoOutput, truncate(out.Raw, 200))
	}

	if out.URL == "" {
		if accessorErr != nil {
			return nil, fmt.Errorf("failed to read provider output: %w", accessorErr)
		}
		return nil, ErrNoOutput
	}

	if fetcher == nil {
		return nil, fmt.Errorf("no fetcher configured for output url %s", out.URL)
	}

	data, headerType, err := fetcher.Fetch(ctx, out.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch provider output: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty body at %s", ErrNoOutput, out.URL)
	}

	contentType := out.ContentType
	if contentType == "" {
		contentType = headerType
	}
	return newArtifact(data, contentType, out.URL), nil
}

func newArtifact(data []byte, declared, sourceURL string) *Artifact {
	return &Artifact{
		Data:        data,
		ContentType: DetectContentType(data, declared),
		SourceURL:   sourceURL,
	}
}

// truncate keeps the first n runes of s.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
