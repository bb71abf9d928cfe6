package languages

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

func TestCreateLanguage(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	language, err := svc.CreateLanguage(ctx, CreateLanguageParams{Name: "  English  "})
	require.NoError(t, err)

	assert.NotZero(t, language.ID)
	assert.Equal(t, "English", language.Name)
}

func TestCreateLanguageRequiresName(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	_, err := svc.CreateLanguage(ctx, CreateLanguageParams{})
	require.Error(t, err)

	ecErr := &errcodes.Error{}
	require.ErrorAs(t, err, &ecErr)
	assert.Equal(t, "validation_error", ecErr.Code)
	assert.Equal(t, "name", ecErr.Field)
}

func TestCreateLanguageDuplicateName(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	_, err := svc.CreateLanguage(ctx, CreateLanguageParams{Name: "English"})
	require.NoError(t, err)

	_, err = svc.CreateLanguage(ctx, CreateLanguageParams{Name: "ENGLISH"})
	assert.ErrorIs(t, err, errcodes.Uniqueness("Language", "name"))
}

func TestRetrieveLanguageByName(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	created, err := svc.CreateLanguage(ctx, CreateLanguageParams{Name: "English"})
	require.NoError(t, err)

	name := "english"
	language, err := svc.RetrieveLanguage(ctx, RetrieveLanguageOptions{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, created.ID, language.ID)
}

func TestListLanguagesOrdersByName(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	for _, name := range []string{"Spanish", "English", "French"} {
		_, err := svc.CreateLanguage(ctx, CreateLanguageParams{Name: name})
		require.NoError(t, err)
	}

	languages, total, err := svc.ListLanguagesWithTotal(ctx, ListLanguagesOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, languages, 3)
	assert.Equal(t, "English", languages[0].Name)
	assert.Equal(t, "French", languages[1].Name)
	assert.Equal(t, "Spanish", languages[2].Name)
}

func TestUpdateLanguageDuplicateName(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	_, err := svc.CreateLanguage(ctx, CreateLanguageParams{Name: "English"})
	require.NoError(t, err)

	french, err := svc.CreateLanguage(ctx, CreateLanguageParams{Name: "French"})
	require.NoError(t, err)

	err = svc.UpdateLanguage(ctx, french, UpdateLanguageParams{Name: "english"})
	assert.ErrorIs(t, err, errcodes.Uniqueness("Language", "name"))

	// Saving a language under its own name is not a conflict.
	err = svc.UpdateLanguage(ctx, french, UpdateLanguageParams{Name: "French"})
	require.NoError(t, err)
}

func TestDeleteLanguageClearsBookReferences(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	language, err := svc.CreateLanguage(ctx, CreateLanguageParams{Name: "English"})
	require.NoError(t, err)

	now := time.Now()
	user := &models.User{
		CreatedAt:    now,
		UpdatedAt:    now,
		Email:        "alice@example.com",
		Username:     "alice",
		Age:          30,
		IsActive:     true,
		PasswordHash: "!unusable",
	}
	_, err = db.NewInsert().Model(user).Returning("*").Exec(ctx)
	require.NoError(t, err)

	book := &models.Book{
		CreatedAt:   now,
		UpdatedAt:   now,
		Title:       "The Great Escape",
		Description: "A story about escaping.",
		Slug:        "the-great-escape",
		UserID:      user.ID,
		LanguageID:  &language.ID,
	}
	_, err = db.NewInsert().Model(book).Returning("*").Exec(ctx)
	require.NoError(t, err)

	err = svc.DeleteLanguage(ctx, language.ID)
	require.NoError(t, err)

	kept := &models.Book{}
	err = db.NewSelect().Model(kept).Where("b.id = ?", book.ID).Scan(ctx)
	require.NoError(t, err)
	assert.Nil(t, kept.LanguageID)

	_, err = svc.RetrieveLanguage(ctx, RetrieveLanguageOptions{ID: &language.ID})
	assert.ErrorIs(t, err, errcodes.NotFound("Language"))
}

func TestDeleteLanguageNotFound(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	err := svc.DeleteLanguage(ctx, 9999)
	assert.ErrorIs(t, err, errcodes.NotFound("Language"))
}
