package languages

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

type CreateLanguageParams struct {
	Name string `json:"name" mod:"trim" validate:"required,max=50"`
}

type UpdateLanguageParams struct {
	Name string `json:"name" mod:"trim" validate:"required,max=50"`
}

type RetrieveLanguageOptions struct {
	ID   *int
	Name *string
}

type ListLanguagesOptions struct {
	Limit  *int
	Offset *int

	includeTotal bool
}

type Service struct {
	db     *bun.DB
	params *params.Validator
}

func NewService(db *bun.DB) *Service {
	return &Service{db, params.New()}
}

func (svc *Service) CreateLanguage(ctx context.Context, p CreateLanguageParams) (*models.Language, error) {
	if err := svc.params.Validate(ctx, "Language", &p); err != nil {
		return nil, err
	}

	exists, err := svc.db.NewSelect().
		Model((*models.Language)(nil)).
		Where("name = ? COLLATE NOCASE", p.Name).
		Exists(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if exists {
		return nil, errcodes.Uniqueness("Language", "name")
	}

	now := time.Now()
	language := &models.Language{
		CreatedAt: now,
		UpdatedAt: now,
		Name:      p.Name,
	}

	_, err = svc.db.NewInsert().
		Model(language).
		Returning("*").
		Exec(ctx)
	if err != nil {
		if errcodes.IsUniqueViolation(err) {
			return nil, errcodes.Uniqueness("Language", "name")
		}
		return nil, errors.WithStack(err)
	}

	return language, nil
}

func (svc *Service) RetrieveLanguage(ctx context.Context, opts RetrieveLanguageOptions) (*models.Language, error) {
	language := &models.Language{}

	q := svc.db.NewSelect().Model(language)

	if opts.ID != nil {
		q = q.Where("l.id = ?", *opts.ID)
	}
	if opts.Name != nil {
		q = q.Where("l.name = ? COLLATE NOCASE", *opts.Name)
	}

	err := q.Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Language")
		}
		return nil, errors.WithStack(err)
	}

	return language, nil
}

func (svc *Service) ListLanguages(ctx context.Context, opts ListLanguagesOptions) ([]*models.Language, error) {
	l, _, err := svc.listLanguagesWithTotal(ctx, opts)
	return l, errors.WithStack(err)
}

func (svc *Service) ListLanguagesWithTotal(ctx context.Context, opts ListLanguagesOptions) ([]*models.Language, int, error) {
	opts.includeTotal = true
	return svc.listLanguagesWithTotal(ctx, opts)
}

func (svc *Service) listLanguagesWithTotal(ctx context.Context, opts ListLanguagesOptions) ([]*models.Language, int, error) {
	var languages []*models.Language
	var total int
	var err error

	q := svc.db.NewSelect().
		Model(&languages).
		ColumnExpr("l.*").
		ColumnExpr("(SELECT count(*) FROM books AS b WHERE b.language_id = l.id) AS book_count").
		Order("l.name ASC")

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

	return languages, total, nil
}

func (svc *Service) UpdateLanguage(ctx context.Context, language *models.Language, p UpdateLanguageParams) error {
	if err := svc.params.Validate(ctx, "Language", &p); err != nil {
		return err
	}

	exists, err := svc.db.NewSelect().
		Model((*models.Language)(nil)).
		Where("name = ? COLLATE NOCASE", p.Name).
		Where("id != ?", language.ID).
		Exists(ctx)
	if err != nil {
		return errors.WithStack(err)
	}
	if exists {
		return errcodes.Uniqueness("Language", "name")
	}

	language.Name = p.Name
	language.UpdatedAt = time.Now()

	res, err := svc.db.NewUpdate().
		Model(language).
		Column("name", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		if errcodes.IsUniqueViolation(err) {
			return errcodes.Uniqueness("Language", "name")
		}
		return errors.WithStack(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errcodes.NotFound("Language")
	}
	return nil
}

// DeleteLanguage removes a language. Books referencing it are kept and
// their language reference is cleared, all in one transaction.
func (svc *Service) DeleteLanguage(ctx context.Context, languageID int) error {
	return svc.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewUpdate().
			Model((*models.Book)(nil)).
			Set("language_id = NULL").
			Where("language_id = ?", languageID).
			Exec(ctx)
		if err != nil {
			return errcodes.Constraint("Language", "could not clear language references on books: "+err.Error())
		}

		res, err := tx.NewDelete().
			Model((*models.Language)(nil)).
			Where("id = ?", languageID).
			Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return errcodes.NotFound("Language")
		}
		return nil
	})
}
