package tags

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

type CreateTagParams struct {
	Name string `json:"name" mod:"trim" validate:"required,max=50"`
}

type UpdateTagParams struct {
	Name string `json:"name" mod:"trim" validate:"required,max=50"`
}

type RetrieveTagOptions struct {
	ID   *int
	Name *string
}

type ListTagsOptions struct {
	Limit  *int
	Offset *int
	BookID *int

	includeTotal bool
}

type Service struct {
	db     *bun.DB
	params *params.Validator
}

func NewService(db *bun.DB) *Service {
	return &Service{db, params.New()}
}

func (svc *Service) CreateTag(ctx context.Context, p CreateTagParams) (*models.Tag, error) {
	if err := svc.params.Validate(ctx, "Tag", &p); err != nil {
		return nil, err
	}

	exists, err := svc.db.NewSelect().
		Model((*models.Tag)(nil)).
		Where("name = ? COLLATE NOCASE", p.Name).
		Exists(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if exists {
		return nil, errcodes.Uniqueness("Tag", "name")
	}

	now := time.Now()
	tag := &models.Tag{
		CreatedAt: now,
		UpdatedAt: now,
		Name:      p.Name,
	}

	_, err = svc.db.NewInsert().
		Model(tag).
		Returning("*").
		Exec(ctx)
	if err != nil {
		if errcodes.IsUniqueViolation(err) {
			return nil, errcodes.Uniqueness("Tag", "name")
		}
		return nil, errors.WithStack(err)
	}

	return tag, nil
}

// FindOrCreateTag finds an existing tag by name (case-insensitive) or
// creates it.
func (svc *Service) FindOrCreateTag(ctx context.Context, name string) (*models.Tag, error) {
	tag, err := svc.RetrieveTag(ctx, RetrieveTagOptions{Name: &name})
	if err == nil {
		return tag, nil
	}
	if !errors.Is(err, errcodes.NotFound("Tag")) {
		return nil, err
	}

	return svc.CreateTag(ctx, CreateTagParams{Name: name})
}

func (svc *Service) RetrieveTag(ctx context.Context, opts RetrieveTagOptions) (*models.Tag, error) {
	tag := &models.Tag{}

	q := svc.db.NewSelect().Model(tag)

	if opts.ID != nil {
		q = q.Where("t.id = ?", *opts.ID)
	}
	if opts.Name != nil {
		q = q.Where("t.name = ? COLLATE NOCASE", *opts.Name)
	}

	err := q.Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Tag")
		}
		return nil, errors.WithStack(err)
	}

	return tag, nil
}

func (svc *Service) ListTags(ctx context.Context, opts ListTagsOptions) ([]*models.Tag, error) {
	t, _, err := svc.listTagsWithTotal(ctx, opts)
	return t, errors.WithStack(err)
}

func (svc *Service) ListTagsWithTotal(ctx context.Context, opts ListTagsOptions) ([]*models.Tag, int, error) {
	opts.includeTotal = true
	return svc.listTagsWithTotal(ctx, opts)
}

func (svc *Service) listTagsWithTotal(ctx context.Context, opts ListTagsOptions) ([]*models.Tag, int, error) {
	var tags []*models.Tag
	var total int
	var err error

	q := svc.db.NewSelect().
		Model(&tags).
		ColumnExpr("t.*").
		ColumnExpr("(SELECT count(*) FROM book_tags AS bt WHERE bt.tag_id = t.id) AS book_count").
		Order("t.name ASC")

	if opts.BookID != nil {
		q = q.Join("INNER JOIN book_tags bt ON bt.tag_id = t.id").
			Where("bt.book_id = ?", *opts.BookID)
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

	return tags, total, nil
}

func (svc *Service) UpdateTag(ctx context.Context, tag *models.Tag, p UpdateTagParams) error {
	if err := svc.params.Validate(ctx, "Tag", &p); err != nil {
		return err
	}

	exists, err := svc.db.NewSelect().
		Model((*models.Tag)(nil)).
		Where("name = ? COLLATE NOCASE", p.Name).
		Where("id != ?", tag.ID).
		Exists(ctx)
	if err != nil {
		return errors.WithStack(err)
	}
	if exists {
		return errcodes.Uniqueness("Tag", "name")
	}

	tag.Name = p.Name
	tag.UpdatedAt = time.Now()

	res, err := svc.db.NewUpdate().
		Model(tag).
		Column("name", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		if errcodes.IsUniqueViolation(err) {
			return errcodes.Uniqueness("Tag", "name")
		}
		return errors.WithStack(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errcodes.NotFound("Tag")
	}
	return nil
}

// DeleteTag removes a tag and detaches it from books. The books themselves
// are kept.
func (svc *Service) DeleteTag(ctx context.Context, tagID int) error {
	return svc.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewDelete().
			Model((*models.BookTag)(nil)).
			Where("tag_id = ?", tagID).
			Exec(ctx)
		if err != nil {
			return errcodes.Constraint("Tag", "could not detach tag from books: "+err.Error())
		}

		res, err := tx.NewDelete().
			Model((*models.Tag)(nil)).
			Where("id = ?", tagID).
			Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return errcodes.NotFound("Tag")
		}
		return nil
	})
}
