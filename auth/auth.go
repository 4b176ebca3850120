// Package auth verifies credentials, manages login sessions and decides who is the
// administrator.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"inkblog/apperr"
	"inkblog/constants"
	"inkblog/database"
	"inkblog/session"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Principal is the identity behind a request. The zero value is the anonymous visitor.
type Principal struct {
	User *database.User
}

var Anonymous = Principal{}

func (p Principal) Authenticated() bool {
	return p.User != nil
}

func IsAdmin(p Principal) bool {
	return p.Authenticated() && p.User.IsAdmin()
}

type Options struct {
	SessionTTL time.Duration
	BcryptCost int
	Logger     zerolog.Logger
}

type Service struct {
	db       *gorm.DB
	sessions session.Store
	ttl      time.Duration
	cost     int
	log      zerolog.Logger
	now      func() time.Time
}

func NewService(db *gorm.DB, sessions session.Store, opts Options) *Service {
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 7 * 24 * time.Hour
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	return &Service{
		db:       db,
		sessions: sessions,
		ttl:      opts.SessionTTL,
		cost:     opts.BcryptCost,
		log:      opts.Logger.With().Str("component", "auth").Logger(),
		now:      time.Now,
	}
}

type RegisterInput struct {
	Email    string
	Password string
	Name     string
	// PreviousToken is the visitor's anonymous session, replaced by the new one.
	PreviousToken string
}

type LoginInput struct {
	Email         string
	Password      string
	PreviousToken string
}

// Established is the result of a successful register or login.
type Established struct {
	User    *database.User
	Token   string
	Session *session.Data
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (in RegisterInput) validate() (email, name string, err error) {
	email = normalizeEmail(in.Email)
	name = strings.TrimSpace(in.Name)
	tooLong := func(max int) string {
		return fmt.Sprintf("Must be at most %d characters.", max)
	}
	switch {
	case email == "":
		return "", "", apperr.NewValidationError("email", "Email is required.")
	case utf8.RuneCountInString(email) > constants.MAX_EMAIL_LENGTH:
		return "", "", apperr.NewValidationError("email", tooLong(constants.MAX_EMAIL_LENGTH))
	case name == "":
		return "", "", apperr.NewValidationError("name", "Name is required.")
	case utf8.RuneCountInString(name) > constants.MAX_NAME_LENGTH:
		return "", "", apperr.NewValidationError("name", tooLong(constants.MAX_NAME_LENGTH))
	case in.Password == "":
		return "", "", apperr.NewValidationError("password", "Password is required.")
	case len(in.Password) > constants.MAX_PASSWORD_LENGTH:
		return "", "", apperr.NewValidationError("password",
			fmt.Sprintf("Must be at most %d bytes.", constants.MAX_PASSWORD_LENGTH))
	}
	return email, name, nil
}

// Register creates a user and signs them in. The first user ever registered becomes the
// administrator.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Established, error) {
	email, name, err := in.validate()
	if err != nil {
		return nil, err
	}

	hash, err := HashPassword(in.Password, s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := database.User{Email: email, PasswordHash: hash, Name: name}
	err = s.insertUser(ctx, &user, true)
	if errors.Is(err, gorm.ErrDuplicatedKey) && user.Role == database.RoleAdmin {
		// another registration took the admin slot first
		s.log.Info().Str("email", email).Msg("admin role taken concurrently, registering as reader")
		user = database.User{Email: email, PasswordHash: hash, Name: name}
		err = s.insertUser(ctx, &user, false)
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		err = apperr.ErrDuplicateEmail
	}
	if err != nil {
		if errors.Is(err, apperr.ErrDuplicateEmail) {
			s.log.Info().Str("email", email).Msg("registration rejected: duplicate email")
			return nil, fmt.Errorf("register %s: %w", email, apperr.ErrDuplicateEmail)
		}
		return nil, fmt.Errorf("register: %w", err)
	}

	if user.Role == database.RoleAdmin {
		s.log.Info().Uint("user_id", user.ID).Msg("first user registered, granted admin role")
	}

	return s.establish(ctx, &user, in.PreviousToken)
}

// insertUser creates user in one transaction, granting the admin role when allowAdmin is
// set and the table is empty. The partial unique index on role keeps a second admin out.
func (s *Service) insertUser(ctx context.Context, user *database.User, allowAdmin bool) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&database.User{}).Where("email = ?", user.Email).Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return apperr.ErrDuplicateEmail
		}

		user.Role = database.RoleReader
		if allowAdmin {
			var users int64
			if err := tx.Model(&database.User{}).Count(&users).Error; err != nil {
				return err
			}
			if users == 0 {
				user.Role = database.RoleAdmin
			}
		}

		return tx.Create(user).Error
	})
}

// Login checks credentials and signs the user in. The returned error keeps apart an unknown
// email (ErrUserNotFound) from a wrong password (ErrInvalidCredentials).
func (s *Service) Login(ctx context.Context, in LoginInput) (*Established, error) {
	email := normalizeEmail(in.Email)
	if email == "" {
		return nil, fmt.Errorf("login: %w", apperr.ErrUserNotFound)
	}

	var user database.User
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		s.log.Info().Str("email", email).Msg("login failed: unknown email")
		return nil, fmt.Errorf("login %s: %w", email, apperr.ErrUserNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}

	if !CheckPassword(user.PasswordHash, in.Password) {
		s.log.Info().Uint("user_id", user.ID).Msg("login failed: wrong password")
		return nil, fmt.Errorf("login %s: %w", email, apperr.ErrInvalidCredentials)
	}

	return s.establish(ctx, &user, in.PreviousToken)
}

// establish replaces any previous session with a fresh one bound to user.
func (s *Service) establish(ctx context.Context, user *database.User, previousToken string) (*Established, error) {
	if err := s.sessions.Delete(ctx, previousToken); err != nil {
		return nil, err
	}

	token, data, err := session.New(user.ID, s.ttl, s.now())
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	if err := s.sessions.Save(ctx, token, data); err != nil {
		return nil, err
	}

	s.log.Debug().Uint("user_id", user.ID).Msg("session established")
	return &Established{User: user, Token: token, Session: data}, nil
}

// Logout ends the session behind token. Calling it without a session is fine.
func (s *Service) Logout(ctx context.Context, token string) error {
	return s.sessions.Delete(ctx, token)
}

// Resolve loads the session behind token and the principal it names. A missing or expired
// session yields Anonymous and nil data.
func (s *Service) Resolve(ctx context.Context, token string) (Principal, *session.Data, error) {
	data, err := s.sessions.Load(ctx, token)
	if errors.Is(err, session.ErrNotFound) {
		return Anonymous, nil, nil
	}
	if err != nil {
		return Anonymous, nil, err
	}
	if data.UserID == 0 {
		return Anonymous, data, nil
	}

	var user database.User
	err = s.db.WithContext(ctx).First(&user, data.UserID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Anonymous, data, nil
	}
	if err != nil {
		return Anonymous, nil, fmt.Errorf("load session user: %w", err)
	}
	return Principal{User: &user}, data, nil
}

func (s *Service) CurrentPrincipal(ctx context.Context, token string) (Principal, error) {
	p, _, err := s.Resolve(ctx, token)
	return p, err
}

// BootstrapAdmin grants the admin role to the user with email, provided no admin exists yet.
func (s *Service) BootstrapAdmin(ctx context.Context, email string) (*database.User, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, apperr.NewValidationError("email", "Email is required.")
	}

	var user database.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var admin database.User
		err := tx.Where("role = ?", database.RoleAdmin).First(&admin).Error
		switch {
		case err == nil && admin.Email == email:
			user = admin
			return nil
		case err == nil:
			return apperr.ErrAdminExists
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}

		err = tx.Where("email = ?", email).First(&user).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("user", email)
		}
		if err != nil {
			return err
		}

		user.Role = database.RoleAdmin
		err = tx.Model(&user).Update("role", database.RoleAdmin).Error
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return apperr.ErrAdminExists
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("bootstrap admin: %w", err)
	}

	s.log.Info().Uint("user_id", user.ID).Msg("admin role granted")
	return &user, nil
}
