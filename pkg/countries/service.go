package countries

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

type CreateCountryParams struct {
	Name string `json:"name" mod:"trim" validate:"required,max=70"`
}

type UpdateCountryParams struct {
	Name string `json:"name" mod:"trim" validate:"required,max=70"`
}

type RetrieveCountryOptions struct {
	ID   *int
	Name *string
}

type ListCountriesOptions struct {
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

func (svc *Service) CreateCountry(ctx context.Context, p CreateCountryParams) (*models.Country, error) {
	if err := svc.params.Validate(ctx, "Country", &p); err != nil {
		return nil, err
	}

	exists, err := svc.db.NewSelect().
		Model((*models.Country)(nil)).
		Where("name = ? COLLATE NOCASE", p.Name).
		Exists(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if exists {
		return nil, errcodes.Uniqueness("Country", "name")
	}

	now := time.Now()
	country := &models.Country{
		CreatedAt: now,
		UpdatedAt: now,
		Name:      p.Name,
	}

	_, err = svc.db.NewInsert().
		Model(country).
		Returning("*").
		Exec(ctx)
	if err != nil {
		if errcodes.IsUniqueViolation(err) {
			return nil, errcodes.Uniqueness("Country", "name")
		}
		return nil, errors.WithStack(err)
	}

	return country, nil
}

func (svc *Service) RetrieveCountry(ctx context.Context, opts RetrieveCountryOptions) (*models.Country, error) {
	country := &models.Country{}

	q := svc.db.NewSelect().Model(country)

	if opts.ID != nil {
		q = q.Where("c.id = ?", *opts.ID)
	}
	if opts.Name != nil {
		q = q.Where("c.name = ? COLLATE NOCASE", *opts.Name)
	}

	err := q.Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Country")
		}
		return nil, errors.WithStack(err)
	}

	return country, nil
}

func (svc *Service) ListCountries(ctx context.Context, opts ListCountriesOptions) ([]*models.Country, error) {
	c, _, err := svc.listCountriesWithTotal(ctx, opts)
	return c, errors.WithStack(err)
}

func (svc *Service) ListCountriesWithTotal(ctx context.Context, opts ListCountriesOptions) ([]*models.Country, int, error) {
	opts.includeTotal = true
	return svc.listCountriesWithTotal(ctx, opts)
}

func (svc *Service) listCountriesWithTotal(ctx context.Context, opts ListCountriesOptions) ([]*models.Country, int, error) {
	var countries []*models.Country
	var total int
	var err error

	q := svc.db.NewSelect().
		Model(&countries).
		ColumnExpr("c.*").
		ColumnExpr("(SELECT count(*) FROM authors AS a WHERE a.country_id = c.id) AS author_count").
		Order("c.name ASC")

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

	return countries, total, nil
}

func (svc *Service) UpdateCountry(ctx context.Context, country *models.Country, p UpdateCountryParams) error {
	if err := svc.params.Validate(ctx, "Country", &p); err != nil {
		return err
	}

	exists, err := svc.db.NewSelect().
		Model((*models.Country)(nil)).
		Where("name = ? COLLATE NOCASE", p.Name).
		Where("id != ?", country.ID).
		Exists(ctx)
	if err != nil {
		return errors.WithStack(err)
	}
	if exists {
		return errcodes.Uniqueness("Country", "name")
	}

	country.Name = p.Name
	country.UpdatedAt = time.Now()

	res, err := svc.db.NewUpdate().
		Model(country).
		Column("name", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		if errcodes.IsUniqueViolation(err) {
			return errcodes.Uniqueness("Country", "name")
		}
		return errors.WithStack(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errcodes.NotFound("Country")
	}
	return nil
}

// DeleteCountry removes a country. Authors referencing it are kept and
// their country reference is cleared, all in one transaction.
func (svc *Service) DeleteCountry(ctx context.Context, countryID int) error {
	return svc.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewUpdate().
			Model((*models.Author)(nil)).
			Set("country_id = NULL").
			Where("country_id = ?", countryID).
			Exec(ctx)
		if err != nil {
			return errcodes.Constraint("Country", "could not clear country references on authors: "+err.Error())
		}

		res, err := tx.NewDelete().
			Model((*models.Country)(nil)).
			Where("id = ?", countryID).
			Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return errcodes.NotFound("Country")
		}
		return nil
	})
}
