package users

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"

	"github.com/darklitbooks/darklit/pkg/blobs"
	"github.com/darklitbooks/darklit/pkg/books"
	"github.com/darklitbooks/darklit/pkg/errcodes"
	"github.com/darklitbooks/darklit/pkg/models"
	"github.com/darklitbooks/darklit/pkg/params"
)

// CreateUserParams are the fields accepted by both user factories. Avatar
// is the uploaded filename; the stored reference is derived from it.
type CreateUserParams struct {
	Email    string `json:"email" mod:"trim" validate:"required,email,max=255"`
	Username string `json:"username" mod:"trim" validate:"required,max=100"`
	Age      int    `json:"age" validate:"required,min=1"`
	Avatar   string `json:"avatar" mod:"trim" validate:"omitempty,max=255"`
	Password string `json:"password"`
}

type UpdateUserParams struct {
	Email    string  `json:"email" mod:"trim" validate:"required,email,max=255"`
	Username string  `json:"username" mod:"trim" validate:"required,max=100"`
	Age      int     `json:"age" validate:"required,min=1"`
	Avatar   *string `json:"avatar" validate:"omitempty,max=255"`
}

type RetrieveUserOptions struct {
	ID       *int
	Email    *string
	Username *string
}

type ListUsersOptions struct {
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

// NormalizeEmail lowercases the domain portion of an email address, leaving
// the local part untouched.
func NormalizeEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return email
	}
	return email[:at+1] + strings.ToLower(email[at+1:])
}

// CreateUser creates a standard-privilege user. The email is required and
// normalized, the password is stored only as a one-way hash, and accounts
// created without a password can never authenticate.
func (svc *Service) CreateUser(ctx context.Context, p CreateUserParams) (*models.User, error) {
	return svc.create(ctx, p, false)
}

// CreateSuperuser creates a user with the admin, staff, and superuser flags
// all set, atomically with creation. It shares CreateUser's validated path.
func (svc *Service) CreateSuperuser(ctx context.Context, p CreateUserParams) (*models.User, error) {
	return svc.create(ctx, p, true)
}

func (svc *Service) create(ctx context.Context, p CreateUserParams, elevated bool) (*models.User, error) {
	if err := svc.params.Validate(ctx, "User", &p); err != nil {
		return nil, err
	}
	p.Email = NormalizeEmail(p.Email)

	if err := svc.checkUnique(ctx, p.Email, p.Username, 0); err != nil {
		return nil, err
	}

	passwordHash := unusablePassword()
	if p.Password != "" {
		var err error
		passwordHash, err = HashPassword(p.Password)
		if err != nil {
			return nil, err
		}
	}

	now := time.Now()
	user := &models.User{
		CreatedAt:    now,
		UpdatedAt:    now,
		Email:        p.Email,
		Username:     p.Username,
		Age:          p.Age,
		IsActive:     true,
		IsAdmin:      elevated,
		IsStaff:      elevated,
		IsSuperuser:  elevated,
		PasswordHash: passwordHash,
	}
	if p.Avatar != "" {
		path := blobs.AvatarPath(p.Username, p.Avatar)
		user.AvatarPath = &path
	}

	_, err := svc.db.NewInsert().
		Model(user).
		Returning("*").
		Exec(ctx)
	if err != nil {
		if errcodes.IsUniqueViolation(err) {
			return nil, uniquenessFromViolation(err)
		}
		return nil, errors.WithStack(err)
	}

	return user, nil
}

func (svc *Service) RetrieveUser(ctx context.Context, opts RetrieveUserOptions) (*models.User, error) {
	user := &models.User{}

	q := svc.db.NewSelect().Model(user)

	if opts.ID != nil {
		q = q.Where("u.id = ?", *opts.ID)
	}
	if opts.Email != nil {
		q = q.Where("u.email = ? COLLATE NOCASE", *opts.Email)
	}
	if opts.Username != nil {
		q = q.Where("u.username = ? COLLATE NOCASE", *opts.Username)
	}

	err := q.Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("User")
		}
		return nil, errors.WithStack(err)
	}

	return user, nil
}

func (svc *Service) ListUsers(ctx context.Context, opts ListUsersOptions) ([]*models.User, error) {
	u, _, err := svc.listUsersWithTotal(ctx, opts)
	return u, errors.WithStack(err)
}

func (svc *Service) ListUsersWithTotal(ctx context.Context, opts ListUsersOptions) ([]*models.User, int, error) {
	opts.includeTotal = true
	return svc.listUsersWithTotal(ctx, opts)
}

func (svc *Service) listUsersWithTotal(ctx context.Context, opts ListUsersOptions) ([]*models.User, int, error) {
	users := []*models.User{}
	var total int
	var err error

	q := svc.db.NewSelect().
		Model(&users).
		Order("u.id ASC")

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

	return users, total, nil
}

func (svc *Service) UpdateUser(ctx context.Context, user *models.User, p UpdateUserParams) error {
	if err := svc.params.Validate(ctx, "User", &p); err != nil {
		return err
	}
	p.Email = NormalizeEmail(p.Email)

	if err := svc.checkUnique(ctx, p.Email, p.Username, user.ID); err != nil {
		return err
	}

	user.Email = p.Email
	user.Username = p.Username
	user.Age = p.Age
	if p.Avatar != nil {
		if *p.Avatar == "" {
			user.AvatarPath = nil
		} else {
			path := blobs.AvatarPath(p.Username, *p.Avatar)
			user.AvatarPath = &path
		}
	}
	user.UpdatedAt = time.Now()

	res, err := svc.db.NewUpdate().
		Model(user).
		Column("email", "username", "age", "avatar_path", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		if errcodes.IsUniqueViolation(err) {
			return uniquenessFromViolation(err)
		}
		return errors.WithStack(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errcodes.NotFound("User")
	}
	return nil
}

// SetPassword replaces a user's password with a new one-way hash.
func (svc *Service) SetPassword(ctx context.Context, userID int, password string) error {
	passwordHash := unusablePassword()
	if password != "" {
		var err error
		passwordHash, err = HashPassword(password)
		if err != nil {
			return err
		}
	}

	res, err := svc.db.NewUpdate().
		Model((*models.User)(nil)).
		Set("password_hash = ?", passwordHash).
		Set("updated_at = CURRENT_TIMESTAMP").
		Where("id = ?", userID).
		Exec(ctx)
	if err != nil {
		return errors.WithStack(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errcodes.NotFound("User")
	}
	return nil
}

// VerifyPassword checks whether the password matches the user's stored hash.
func (svc *Service) VerifyPassword(ctx context.Context, userID int, password string) (bool, error) {
	user := &models.User{}
	err := svc.db.NewSelect().
		Model(user).
		Column("password_hash").
		Where("id = ?", userID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, errcodes.NotFound("User")
		}
		return false, errors.WithStack(err)
	}

	return CheckPassword(password, user.PasswordHash), nil
}

// Deactivate clears a user's active flag without deleting anything.
func (svc *Service) Deactivate(ctx context.Context, userID int) error {
	res, err := svc.db.NewUpdate().
		Model((*models.User)(nil)).
		Set("is_active = ?", false).
		Set("updated_at = CURRENT_TIMESTAMP").
		Where("id = ?", userID).
		Exec(ctx)
	if err != nil {
		return errors.WithStack(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errcodes.NotFound("User")
	}
	return nil
}

// DeleteUser removes a user and every book they own, in one transaction.
func (svc *Service) DeleteUser(ctx context.Context, userID int) error {
	return svc.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if err := books.DeleteBooksOwnedBy(ctx, tx, userID); err != nil {
			return errcodes.Constraint("User", "could not cascade delete owned books: "+err.Error())
		}

		res, err := tx.NewDelete().
			Model((*models.User)(nil)).
			Where("id = ?", userID).
			Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return errcodes.NotFound("User")
		}
		return nil
	})
}

// CountUsers returns the total number of users.
func (svc *Service) CountUsers(ctx context.Context) (int, error) {
	count, err := svc.db.NewSelect().Model((*models.User)(nil)).Count(ctx)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	return count, nil
}

// checkUnique pre-checks the email and username unique constraints,
// excluding excludeID when updating. The unique indexes remain the
// authoritative guard against races.
func (svc *Service) checkUnique(ctx context.Context, email, username string, excludeID int) error {
	q := svc.db.NewSelect().
		Model((*models.User)(nil)).
		Where("email = ? COLLATE NOCASE", email)
	if excludeID != 0 {
		q = q.Where("id != ?", excludeID)
	}
	exists, err := q.Exists(ctx)
	if err != nil {
		return errors.WithStack(err)
	}
	if exists {
		return errcodes.Uniqueness("User", "email")
	}

	q = svc.db.NewSelect().
		Model((*models.User)(nil)).
		Where("username = ? COLLATE NOCASE", username)
	if excludeID != 0 {
		q = q.Where("id != ?", excludeID)
	}
	exists, err = q.Exists(ctx)
	if err != nil {
		return errors.WithStack(err)
	}
	if exists {
		return errcodes.Uniqueness("User", "username")
	}

	return nil
}

// uniquenessFromViolation maps a unique index violation to the field it
// guards.
func uniquenessFromViolation(err error) error {
	if strings.Contains(err.Error(), "users.email") {
		return errcodes.Uniqueness("User", "email")
	}
	return errcodes.Uniqueness("User", "username")
}
