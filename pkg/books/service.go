package books

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"

	"github.com/darklitbooks/darklit/pkg/authors"
	"github.com/darklitbooks/darklit/pkg/errcodes"
	"github.com/darklitbooks/darklit/pkg/models"
	"github.com/darklitbooks/darklit/pkg/params"
	"github.com/darklitbooks/darklit/pkg/slug"
)

type CreateBookParams struct {
	Title       string  `json:"title" mod:"trim" validate:"required,max=150"`
	Description string  `json:"description" mod:"trim" validate:"required"`
	ImagePath   *string `json:"image_path"`
	UserID      int     `json:"user_id" validate:"required,min=1"`
	LanguageID  *int    `json:"language_id" validate:"omitempty,min=1"`
	TagIDs      []int   `json:"tag_ids" validate:"omitempty,dive,min=1"`
	AuthorIDs   []int   `json:"author_ids" validate:"omitempty,dive,min=1"`
}

type UpdateBookParams struct {
	Title       string  `json:"title" mod:"trim" validate:"required,max=150"`
	Description string  `json:"description" mod:"trim" validate:"required"`
	ImagePath   *string `json:"image_path"`
	LanguageID  *int    `json:"language_id" validate:"omitempty,min=1"`
	TagIDs      *[]int  `json:"tag_ids" validate:"omitempty,dive,min=1"`
	AuthorIDs   *[]int  `json:"author_ids" validate:"omitempty,dive,min=1"`
}

type RetrieveBookOptions struct {
	ID   *int
	Slug *string
}

type ListBooksOptions struct {
	Limit      *int
	Offset     *int
	UserID     *int
	LanguageID *int
	TagID      *int
	AuthorID   *int

	includeTotal bool
}

type Service struct {
	db     *bun.DB
	params *params.Validator
}

func NewService(db *bun.DB) *Service {
	return &Service{db, params.New()}
}

// DisplayTitle formats a book for display. With associated authors loaded it
// is "<title> by <author, author, ...>", otherwise just the title.
func DisplayTitle(book *models.Book) string {
	names := make([]string, 0, len(book.Authors))
	for _, ba := range book.Authors {
		if ba.Author != nil {
			names = append(names, authors.DisplayName(ba.Author))
		}
	}
	if len(names) == 0 {
		return book.Title
	}
	return book.Title + " by " + strings.Join(names, ", ")
}

// CanonicalPath returns the canonical detail-page path for a book, built
// from its slug.
func CanonicalPath(book *models.Book) string {
	return "/books/" + book.Slug
}

func (svc *Service) CreateBook(ctx context.Context, p CreateBookParams) (*models.Book, error) {
	if err := svc.params.Validate(ctx, "Book", &p); err != nil {
		return nil, err
	}
	if err := svc.checkReferences(ctx, p.UserID, p.LanguageID, p.TagIDs, p.AuthorIDs); err != nil {
		return nil, err
	}

	now := time.Now()
	book := &models.Book{
		CreatedAt:   now,
		UpdatedAt:   now,
		Title:       p.Title,
		ImagePath:   p.ImagePath,
		Description: p.Description,
		Slug:        slug.Make(p.Title),
		UserID:      p.UserID,
		LanguageID:  p.LanguageID,
	}

	err := svc.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewInsert().
			Model(book).
			Returning("*").
			Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}

		return svc.insertJoinRows(ctx, tx, book, p.TagIDs, p.AuthorIDs)
	})
	if err != nil {
		return nil, err
	}

	return svc.RetrieveBook(ctx, RetrieveBookOptions{ID: &book.ID})
}

func (svc *Service) RetrieveBook(ctx context.Context, opts RetrieveBookOptions) (*models.Book, error) {
	book := &models.Book{}

	q := svc.db.NewSelect().
		Model(book).
		Relation("User").
		Relation("Language").
		Relation("Tags.Tag").
		Relation("Authors", func(sq *bun.SelectQuery) *bun.SelectQuery {
			return sq.Order("ba.sort_order ASC")
		}).
		Relation("Authors.Author")

	if opts.ID != nil {
		q = q.Where("b.id = ?", *opts.ID)
	}
	if opts.Slug != nil {
		q = q.Where("b.slug = ?", *opts.Slug)
	}

	err := q.Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Book")
		}
		return nil, errors.WithStack(err)
	}

	return book, nil
}

func (svc *Service) ListBooks(ctx context.Context, opts ListBooksOptions) ([]*models.Book, error) {
	b, _, err := svc.listBooksWithTotal(ctx, opts)
	return b, errors.WithStack(err)
}

func (svc *Service) ListBooksWithTotal(ctx context.Context, opts ListBooksOptions) ([]*models.Book, int, error) {
	opts.includeTotal = true
	return svc.listBooksWithTotal(ctx, opts)
}

func (svc *Service) listBooksWithTotal(ctx context.Context, opts ListBooksOptions) ([]*models.Book, int, error) {
	books := []*models.Book{}
	var total int
	var err error

	q := svc.db.NewSelect().
		Model(&books).
		Relation("User").
		Relation("Language").
		Relation("Tags.Tag").
		Relation("Authors.Author").
		Order("b.created_at DESC")

	if opts.UserID != nil {
		q = q.Where("b.user_id = ?", *opts.UserID)
	}
	if opts.LanguageID != nil {
		q = q.Where("b.language_id = ?", *opts.LanguageID)
	}
	if opts.TagID != nil {
		q = q.Where("b.id IN (SELECT book_id FROM book_tags WHERE tag_id = ?)", *opts.TagID)
	}
	if opts.AuthorID != nil {
		q = q.Where("b.id IN (SELECT book_id FROM book_authors WHERE author_id = ?)", *opts.AuthorID)
	}
	if opts.Limit != nil {
		q = q.Limit(*opts.Limit)
	}
	if opts.Offset != nil {
		q = q.Offset(*opts.Offset)
	}

	if opts.includeTotal {
		total, err = q.ScanAndCount(ctx)
	} else {
		err = q.Scan(ctx)
	}
	if err != nil {
		return nil, 0, errors.WithStack(err)
	}

	return books, total, nil
}

// UpdateBook persists a book's fields. The slug is rederived from the title
// on every save; created_at is never touched.
func (svc *Service) UpdateBook(ctx context.Context, book *models.Book, p UpdateBookParams) error {
	if err := svc.params.Validate(ctx, "Book", &p); err != nil {
		return err
	}

	var tagIDs, authorIDs []int
	if p.TagIDs != nil {
		tagIDs = *p.TagIDs
	}
	if p.AuthorIDs != nil {
		authorIDs = *p.AuthorIDs
	}
	if err := svc.checkReferences(ctx, book.UserID, p.LanguageID, tagIDs, authorIDs); err != nil {
		return err
	}

	book.Title = p.Title
	book.Description = p.Description
	book.ImagePath = p.ImagePath
	book.LanguageID = p.LanguageID
	book.Slug = slug.Make(p.Title)
	book.UpdatedAt = time.Now()

	return svc.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().
			Model(book).
			Column("title", "description", "image_path", "language_id", "slug", "updated_at").
			WherePK().
			Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return errcodes.NotFound("Book")
		}

		if p.TagIDs != nil {
			_, err = tx.NewDelete().
				Model((*models.BookTag)(nil)).
				Where("book_id = ?", book.ID).
				Exec(ctx)
			if err != nil {
				return errors.WithStack(err)
			}
		}
		if p.AuthorIDs != nil {
			_, err = tx.NewDelete().
				Model((*models.BookAuthor)(nil)).
				Where("book_id = ?", book.ID).
				Exec(ctx)
			if err != nil {
				return errors.WithStack(err)
			}
		}

		return svc.insertJoinRows(ctx, tx, book, tagIDs, authorIDs)
	})
}

// DeleteBook removes a book along with its tag and author associations.
func (svc *Service) DeleteBook(ctx context.Context, bookID int) error {
	return svc.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		return deleteInTx(ctx, tx, bookID)
	})
}

// DeleteBooksOwnedBy removes every book owned by a user, inside the
// caller's transaction. The users service uses this to cascade deletion.
func DeleteBooksOwnedBy(ctx context.Context, tx bun.Tx, userID int) error {
	var bookIDs []int
	err := tx.NewSelect().
		Model((*models.Book)(nil)).
		Column("b.id").
		Where("b.user_id = ?", userID).
		Scan(ctx, &bookIDs)
	if err != nil {
		return errors.WithStack(err)
	}

	for _, id := range bookIDs {
		if err := deleteInTx(ctx, tx, id); err != nil {
			return err
		}
	}
	return nil
}

func deleteInTx(ctx context.Context, tx bun.Tx, bookID int) error {
	_, err := tx.NewDelete().
		Model((*models.BookTag)(nil)).
		Where("book_id = ?", bookID).
		Exec(ctx)
	if err != nil {
		return errcodes.Constraint("Book", "could not detach tags: "+err.Error())
	}

	_, err = tx.NewDelete().
		Model((*models.BookAuthor)(nil)).
		Where("book_id = ?", bookID).
		Exec(ctx)
	if err != nil {
		return errcodes.Constraint("Book", "could not detach authors: "+err.Error())
	}

	res, err := tx.NewDelete().
		Model((*models.Book)(nil)).
		Where("id = ?", bookID).
		Exec(ctx)
	if err != nil {
		return errors.WithStack(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errcodes.NotFound("Book")
	}
	return nil
}

// checkReferences verifies every referenced row exists before writing, so
// failures surface as not-found errors instead of raw FK violations.
func (svc *Service) checkReferences(ctx context.Context, userID int, languageID *int, tagIDs, authorIDs []int) error {
	exists, err := svc.db.NewSelect().
		Model((*models.User)(nil)).
		Where("id = ?", userID).
		Exists(ctx)
	if err != nil {
		return errors.WithStack(err)
	}
	if !exists {
		return errcodes.NotFound("User")
	}

	if languageID != nil {
		exists, err = svc.db.NewSelect().
			Model((*models.Language)(nil)).
			Where("id = ?", *languageID).
			Exists(ctx)
		if err != nil {
			return errors.WithStack(err)
		}
		if !exists {
			return errcodes.NotFound("Language")
		}
	}

	if len(tagIDs) > 0 {
		count, err := svc.db.NewSelect().
			Model((*models.Tag)(nil)).
			Where("id IN (?)", bun.In(tagIDs)).
			Count(ctx)
		if err != nil {
			return errors.WithStack(err)
		}
		if count != len(tagIDs) {
			return errcodes.NotFound("Tag")
		}
	}

	if len(authorIDs) > 0 {
		count, err := svc.db.NewSelect().
			Model((*models.Author)(nil)).
			Where("id IN (?)", bun.In(authorIDs)).
			Count(ctx)
		if err != nil {
			return errors.WithStack(err)
		}
		if count != len(authorIDs) {
			return errcodes.NotFound("Author")
		}
	}

	return nil
}

func (svc *Service) insertJoinRows(ctx context.Context, tx bun.Tx, book *models.Book, tagIDs, authorIDs []int) error {
	if len(tagIDs) > 0 {
		bookTags := make([]*models.BookTag, 0, len(tagIDs))
		for _, tagID := range tagIDs {
			bookTags = append(bookTags, &models.BookTag{BookID: book.ID, TagID: tagID})
		}
		_, err := tx.NewInsert().
			Model(&bookTags).
			Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}
	}

	if len(authorIDs) > 0 {
		bookAuthors := make([]*models.BookAuthor, 0, len(authorIDs))
		for i, authorID := range authorIDs {
			bookAuthors = append(bookAuthors, &models.BookAuthor{
				BookID:    book.ID,
				AuthorID:  authorID,
				SortOrder: i + 1,
			})
		}
		_, err := tx.NewInsert().
			Model(&bookAuthors).
			Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}
	}

	return nil
}
