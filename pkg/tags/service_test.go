package tags

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"github.com/darklitbooks/darklit/pkg/errcodes"
	"github.com/darklitbooks/darklit/pkg/migrations"
	"github.com/darklitbooks/darklit/pkg/models"
)

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)

	db := bun.NewDB(sqldb, sqlitedialect.New())

	_, err = migrations.BringUpToDate(context.Background(), db)
	require.NoError(t, err)

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

// createTestBook inserts an owner and a book row directly so these tests
// don't depend on the books package.
func createTestBook(ctx context.Context, t *testing.T, db *bun.DB, title, slug string) *models.Book {
	t.Helper()

	now := time.Now()
	user := &models.User{
		CreatedAt:    now,
		UpdatedAt:    now,
		Email:        slug + "@example.com",
		Username:     slug,
		Age:          30,
		IsActive:     true,
		PasswordHash: "!unusable",
	}
	_, err := db.NewInsert().Model(user).Returning("*").Exec(ctx)
	require.NoError(t, err)

	book := &models.Book{
		CreatedAt:   now,
		UpdatedAt:   now,
		Title:       title,
		Description: "A test book.",
		Slug:        slug,
		UserID:      user.ID,
	}
	_, err = db.NewInsert().Model(book).Returning("*").Exec(ctx)
	require.NoError(t, err)

	return book
}

func TestCreateTagDuplicateName(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	_, err := svc.CreateTag(ctx, CreateTagParams{Name: "Fiction"})
	require.NoError(t, err)

	_, err = svc.CreateTag(ctx, CreateTagParams{Name: "FICTION"})
	assert.ErrorIs(t, err, errcodes.Uniqueness("Tag", "name"))
}

func TestFindOrCreateTag(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	created, err := svc.FindOrCreateTag(ctx, "Fiction")
	require.NoError(t, err)
	assert.NotZero(t, created.ID)

	found, err := svc.FindOrCreateTag(ctx, "fiction")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)

	total, err := db.NewSelect().Model((*models.Tag)(nil)).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestListTagsByBook(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	book := createTestBook(ctx, t, db, "The Great Escape", "the-great-escape")
	other := createTestBook(ctx, t, db, "Another Book", "another-book")

	fiction, err := svc.CreateTag(ctx, CreateTagParams{Name: "Fiction"})
	require.NoError(t, err)
	history, err := svc.CreateTag(ctx, CreateTagParams{Name: "History"})
	require.NoError(t, err)

	_, err = db.NewInsert().Model(&models.BookTag{BookID: book.ID, TagID: history.ID}).Exec(ctx)
	require.NoError(t, err)
	_, err = db.NewInsert().Model(&models.BookTag{BookID: other.ID, TagID: fiction.ID}).Exec(ctx)
	require.NoError(t, err)

	tags, err := svc.ListTags(ctx, ListTagsOptions{BookID: &book.ID})
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.Equal(t, "History", tags[0].Name)
	assert.Equal(t, 1, tags[0].BookCount)
}

func TestDeleteTagDetachesBooks(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	book := createTestBook(ctx, t, db, "The Great Escape", "the-great-escape")

	tag, err := svc.CreateTag(ctx, CreateTagParams{Name: "History"})
	require.NoError(t, err)

	_, err = db.NewInsert().Model(&models.BookTag{BookID: book.ID, TagID: tag.ID}).Exec(ctx)
	require.NoError(t, err)

	err = svc.DeleteTag(ctx, tag.ID)
	require.NoError(t, err)

	count, err := db.NewSelect().Model((*models.BookTag)(nil)).Where("tag_id = ?", tag.ID).Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	// The book itself survives the tag.
	exists, err := db.NewSelect().Model((*models.Book)(nil)).Where("id = ?", book.ID).Exists(ctx)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestUpdateTagRenames(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	tag, err := svc.CreateTag(ctx, CreateTagParams{Name: "Histroy"})
	require.NoError(t, err)

	err = svc.UpdateTag(ctx, tag, UpdateTagParams{Name: "History"})
	require.NoError(t, err)

	updated, err := svc.RetrieveTag(ctx, RetrieveTagOptions{ID: &tag.ID})
	require.NoError(t, err)
	assert.Equal(t, "History", updated.Name)
}
