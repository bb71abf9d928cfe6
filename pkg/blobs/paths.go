// Package blobs derives storage keys for externally stored binary content.
// The catalog only persists these opaque references; resolving them to bytes
// is the file storage collaborator's job.
package blobs

import (
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AvatarPath returns the storage key for a user's avatar upload. The key is
// deterministic: avatars/<username>/<filename>.
func AvatarPath(username, filename string) string {
	return path.Join("avatars", username, sanitizeFilename(filename))
}

// BookImagePath returns the storage key for a book image upload, partitioned
// by upload date: books_images/YYYY/MM/DD/<filename>. Uploads without a
// usable filename get a generated one so the key is never empty.
func BookImagePath(uploadedAt time.Time, filename string) string {
	name := sanitizeFilename(filename)
	if name == "" || name == "." {
		name = uuid.NewString()
	}
	return path.Join("books_images", uploadedAt.Format("2006/01/02"), name)
}

// sanitizeFilename strips any directory components so a crafted filename
// can't escape its storage prefix.
func sanitizeFilename(filename string) string {
	name := path.Base(strings.ReplaceAll(filename, `\`, "/"))
	if name == "/" || name == ".." {
		return ""
	}
	return name
}

// Ext returns the lowercased extension of a blob reference, including the
// dot, or "" when there is none.
func Ext(ref string) string {
	ext := path.Ext(ref)
	return strings.ToLower(ext)
}

// ContentType guesses a mime type for common image references the catalog
// stores. Unknown extensions return "".
func ContentType(ref string) string {
	switch Ext(ref) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".gif":
		return "image/gif"
	default:
		return ""
	}
}
