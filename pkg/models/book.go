package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Book struct {
	bun.BaseModel `bun:"table:books,alias:b"`

	ID          int           `bun:",pk,nullzero" json:"id"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
	Title       string        `bun:",nullzero" json:"title"`
	ImagePath   *string       `json:"image_path"`
	Description string        `bun:",nullzero" json:"description"`
	Slug        string        `bun:",nullzero" json:"slug"`
	UserID      int           `bun:",nullzero" json:"user_id"`
	User        *User         `bun:"rel:belongs-to,join:user_id=id" json:"user,omitempty"`
	LanguageID  *int          `json:"language_id"`
	Language    *Language     `bun:"rel:belongs-to,join:language_id=id" json:"language,omitempty"`
	Tags        []*BookTag    `bun:"rel:has-many,join:id=book_id" json:"tags,omitempty"`
	Authors     []*BookAuthor `bun:"rel:has-many,join:id=book_id" json:"authors,omitempty"`
}
