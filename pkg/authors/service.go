package authors

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"

	"github.com/darklitbooks/darklit/pkg/errcodes"
	"github.com/darklitbooks/darklit/pkg/models"
	"github.com/darklitbooks/darklit/pkg/params"
)

type CreateAuthorParams struct {
	FirstName string `json:"first_name" mod:"trim" validate:"required,max=50"`
	LastName  string `json:"last_name" mod:"trim" validate:"required,max=50"`
	CountryID *int   `json:"country_id" validate:"omitempty,min=1"`
}

type UpdateAuthorParams struct {
	FirstName string `json:"first_name" mod:"trim" validate:"required,max=50"`
	LastName  string `json:"last_name" mod:"trim" validate:"required,max=50"`
	CountryID *int   `json:"country_id" validate:"omitempty,min=1"`
}

type RetrieveAuthorOptions struct {
	ID *int
}

type ListAuthorsOptions struct {
	Limit     *int
	Offset    *int
	CountryID *int
	BookID    *int

	includeTotal bool
}

type Service struct {
	db     *bun.DB
	params *params.Validator
}

func NewService(db *bun.DB) *Service {
	return &Service{db, params.New()}
}

// DisplayName formats an author for display: first and last name joined by
// a single space.
func DisplayName(author *models.Author) string {
	return author.FirstName + " " + author.LastName
}

func (svc *Service) CreateAuthor(ctx context.Context, p CreateAuthorParams) (*models.Author, error) {
	if err := svc.params.Validate(ctx, "Author", &p); err != nil {
		return nil, err
	}

	if p.CountryID != nil {
		exists, err := svc.db.NewSelect().
			Model((*models.Country)(nil)).
			Where("id = ?", *p.CountryID).
			Exists(ctx)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		if !exists {
			return nil, errcodes.NotFound("Country")
		}
	}

	now := time.Now()
	author := &models.Author{
		CreatedAt: now,
		UpdatedAt: now,
		FirstName: p.FirstName,
		LastName:  p.LastName,
		CountryID: p.CountryID,
	}

	_, err := svc.db.NewInsert().
		Model(author).
		Returning("*").
		Exec(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return author, nil
}

func (svc *Service) RetrieveAuthor(ctx context.Context, opts RetrieveAuthorOptions) (*models.Author, error) {
	author := &models.Author{}

	q := svc.db.NewSelect().
		Model(author).
		Relation("Country")

	if opts.ID != nil {
		q = q.Where("a.id = ?", *opts.ID)
	}

	err := q.Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Author")
		}
		return nil, errors.WithStack(err)
	}

	return author, nil
}

func (svc *Service) ListAuthors(ctx context.Context, opts ListAuthorsOptions) ([]*models.Author, error) {
	a, _, err := svc.listAuthorsWithTotal(ctx, opts)
	return a, errors.WithStack(err)
}

func (svc *Service) ListAuthorsWithTotal(ctx context.Context, opts ListAuthorsOptions) ([]*models.Author, int, error) {
	opts.includeTotal = true
	return svc.listAuthorsWithTotal(ctx, opts)
}

func (svc *Service) listAuthorsWithTotal(ctx context.Context, opts ListAuthorsOptions) ([]*models.Author, int, error) {
	var authors []*models.Author
	var total int
	var err error

	q := svc.db.NewSelect().
		Model(&authors).
		Relation("Country")

	if opts.CountryID != nil {
		q = q.Where("a.country_id = ?", *opts.CountryID)
	}
	if opts.BookID != nil {
		// Book-scoped listings keep the book's credit order instead of
		// the alphabetical default.
		q = q.Join("INNER JOIN book_authors ba ON ba.author_id = a.id").
			Where("ba.book_id = ?", *opts.BookID).
			OrderExpr("ba.sort_order ASC")
	} else {
		q = q.Order("a.first_name ASC", "a.last_name ASC")
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

	return authors, total, nil
}

func (svc *Service) UpdateAuthor(ctx context.Context, author *models.Author, p UpdateAuthorParams) error {
	if err := svc.params.Validate(ctx, "Author", &p); err != nil {
		return err
	}

	if p.CountryID != nil {
		exists, err := svc.db.NewSelect().
			Model((*models.Country)(nil)).
			Where("id = ?", *p.CountryID).
			Exists(ctx)
		if err != nil {
			return errors.WithStack(err)
		}
		if !exists {
			return errcodes.NotFound("Country")
		}
	}

	author.FirstName = p.FirstName
	author.LastName = p.LastName
	author.CountryID = p.CountryID
	author.UpdatedAt = time.Now()

	res, err := svc.db.NewUpdate().
		Model(author).
		Column("first_name", "last_name", "country_id", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return errors.WithStack(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errcodes.NotFound("Author")
	}
	return nil
}

// DeleteAuthor removes an author and detaches them from books. The books
// themselves are kept.
func (svc *Service) DeleteAuthor(ctx context.Context, authorID int) error {
	return svc.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewDelete().
			Model((*models.BookAuthor)(nil)).
			Where("author_id = ?", authorID).
			Exec(ctx)
		if err != nil {
			return errcodes.Constraint("Author", "could not detach author from books: "+err.Error())
		}

		res, err := tx.NewDelete().
			Model((*models.Author)(nil)).
			Where("id = ?", authorID).
			Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return errcodes.NotFound("Author")
		}
		return nil
	})
}
