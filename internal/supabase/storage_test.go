package supabase

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"ai-image-editor-backend/internal/models"
)

func TestPublicURL(t *testing.T) {
	ref := models.ObjectRef{Bucket: "output-image", Path: "u1/p1-1.png"}
	assert.Equal(t,
		"https://abc.supabase.co/storage/v1/object/public/output-image/u1/p1-1.png",
		PublicURL("https://abc.supabase.co", ref))
}

func TestAbsoluteSignedURL(t *testing.T) {
	base := "https://abc.supabase.co"

	tests := map[string]string{
		"https://cdn.test/x?token=1":                        "https://cdn.test/x?token=1",
		"/object/sign/input-image/a.png?token=1":            base + "/storage/v1/object/sign/input-image/a.png?token=1",
		"object/sign/input-image/a.png?token=1":             base + "/storage/v1/object/sign/input-image/a.png?token=1",
		"/storage/v1/object/sign/input-image/a.png?token=1": base + "/storage/v1/object/sign/input-image/a.png?token=1",
	}

	for signed, want := range tests {
		assert.Equal(t, want, absoluteSignedURL(base, signed), signed)
	}
}
