package blobs

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAvatarPath(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "avatars/frank/me.png", AvatarPath("frank", "me.png"))
	// Deterministic for the same inputs.
	assert.Equal(t, AvatarPath("frank", "me.png"), AvatarPath("frank", "me.png"))
	// Directory components in the upload name are stripped.
	assert.Equal(t, "avatars/frank/me.png", AvatarPath("frank", "../../etc/me.png"))
	assert.Equal(t, "avatars/frank/me.png", AvatarPath("frank", `..\..\me.png`))
}

func TestBookImagePath(t *testing.T) {
	t.Parallel()

	uploadedAt := time.Date(2025, 4, 9, 9, 24, 0, 0, time.UTC)

	assert.Equal(t, "books_images/2025/04/09/cover.jpg", BookImagePath(uploadedAt, "cover.jpg"))

	// Empty filenames still produce a usable key.
	generated := BookImagePath(uploadedAt, "")
	assert.True(t, strings.HasPrefix(generated, "books_images/2025/04/09/"))
	assert.NotEqual(t, "books_images/2025/04/09", generated)
}

func TestContentType(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "image/jpeg", ContentType("books_images/2025/04/09/cover.JPG"))
	assert.Equal(t, "image/png", ContentType("avatars/frank/me.png"))
	assert.Equal(t, "", ContentType("avatars/frank/me"))
}
