// Package auth implements signup, login, e-mail confirmation and password
// changes.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	tokens "github.com/Mouaddiguoug/feetflight/internal/auth"
	apperrors "github.com/Mouaddiguoug/feetflight/internal/errors"
	"github.com/Mouaddiguoug/feetflight/internal/logging"
	"github.com/Mouaddiguoug/feetflight/internal/mailer"
	"github.com/Mouaddiguoug/feetflight/internal/models"
	"github.com/Mouaddiguoug/feetflight/internal/payments"
	"github.com/Mouaddiguoug/feetflight/internal/repository"
)

// Mailer sends a catalog template.
type Mailer interface {
	Send(ctx context.Context, name, to string, data map[string]interface{}) error
}

type Config struct {
	// PublicURL prefixes the confirmation link.
	PublicURL string
	// Admins are the lower-cased e-mails granted the admin flag at login.
	Admins     []string
	BcryptCost int
}

type Service struct {
	users     repository.UserRepository
	processor payments.Processor
	tokens    *tokens.TokenManager
	mail      Mailer
	logger    *logging.Logger
	cfg       Config
	admins    map[string]bool
}

func NewService(users repository.UserRepository, processor payments.Processor, tm *tokens.TokenManager, mail Mailer, logger *logging.Logger, cfg Config) *Service {
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	admins := make(map[string]bool, len(cfg.Admins))
	for _, a := range cfg.Admins {
		admins[strings.ToLower(a)] = true
	}
	return &Service{
		users:     users,
		processor: processor,
		tokens:    tm,
		mail:      mail,
		logger:    logger,
		cfg:       cfg,
		admins:    admins,
	}
}

// SignupInput is a new account. Plans are required for sellers and ignored
// for buyers; their ids and processor prices are assigned here.
type SignupInput struct {
	Name     string
	UserName string
	Email    string
	Password string
	Role     string
	Plans    []models.Plan
}

// Session is an authenticated user and its access token.
type Session struct {
	User  *models.User `json:"user"`
	Token string       `json:"token"`
	// ExpiresIn is the token lifetime in seconds.
	ExpiresIn int64 `json:"expiresIn"`
}

var (
	errBadCredentials = apperrors.Unauthorized("Invalid email or password")
	errDeactivated    = apperrors.Forbidden("Account is deactivated")
)

// Signup creates the processor customer and plan prices, then writes the
// account in one graph transaction and mails the confirmation link.
func (s *Service) Signup(ctx context.Context, in SignupInput) (*Session, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	switch in.Role {
	case models.RoleBuyer:
		in.Plans = nil
	case models.RoleSeller:
		if len(in.Plans) == 0 {
			return nil, apperrors.Unprocessable("A seller account needs at least one subscription plan")
		}
		for _, p := range in.Plans {
			if p.Period != models.PeriodMonth && p.Period != models.PeriodYear {
				return nil, apperrors.Unprocessable("Plan period must be month or year").WithDetails("period", p.Period)
			}
		}
	default:
		return nil, apperrors.Unprocessable("Role must be buyer or seller").WithDetails("role", in.Role)
	}

	taken, err := s.users.EmailExists(ctx, email)
	if err != nil {
		return nil, apperrors.Internal("Failed to check email", err)
	}
	if taken {
		return nil, apperrors.Conflict("Email is already registered")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cfg.BcryptCost)
	if err != nil {
		return nil, apperrors.Internal("Failed to hash password", err)
	}

	customerID, err := s.processor.CreateCustomer(ctx, email, in.Name)
	if err != nil {
		return nil, apperrors.Internal("Failed to create payment customer", err)
	}

	account := &models.Account{
		User: models.User{
			ID:         uuid.NewString(),
			Name:       in.Name,
			UserName:   in.UserName,
			Email:      email,
			Password:   string(hash),
			CustomerID: customerID,
			CreatedAt:  time.Now().UTC(),
		},
		Role:   in.Role,
		RoleID: uuid.NewString(),
	}
	if in.Role == models.RoleSeller {
		account.WalletID = uuid.NewString()
		for _, p := range in.Plans {
			priceID, err := s.processor.CreatePrice(ctx, payments.PriceRequest{
				ProductName: fmt.Sprintf("%s - %s", displayName(account.User), p.Name),
				Amount:      p.Price,
				Interval:    p.Period,
			})
			if err != nil {
				return nil, apperrors.Internal("Failed to create plan price", err)
			}
			p.ID = uuid.NewString()
			p.PriceID = priceID
			account.Plans = append(account.Plans, p)
		}
	}

	if err := s.users.CreateAccount(ctx, account); err != nil {
		// A concurrent signup may have taken the address in the meantime.
		if taken, _ := s.users.EmailExists(ctx, email); taken {
			return nil, apperrors.Conflict("Email is already registered")
		}
		return nil, apperrors.Internal("Failed to create account", err)
	}

	user, err := s.users.FindByID(ctx, account.User.ID)
	if err != nil {
		return nil, apperrors.Internal("Failed to load account", err)
	}

	s.sendConfirmation(ctx, user)

	return s.session(user)
}

func (s *Service) sendConfirmation(ctx context.Context, u *models.User) {
	token, err := s.tokens.IssueConfirmation(u.ID, u.Email)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("issue confirmation token")
		return
	}
	link := strings.TrimRight(s.cfg.PublicURL, "/") + "/users/confirm?token=" + url.QueryEscape(token)
	if err := s.mail.Send(ctx, mailer.Welcome, u.Email, map[string]interface{}{
		"Name":       displayName(*u),
		"ConfirmURL": link,
	}); err != nil {
		s.logger.WithContext(ctx).WithError(err).Warn("welcome mail failed")
	}
}

// Login checks the credentials and issues an access token.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	u, err := s.users.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, errBadCredentials
	}
	if err != nil {
		return nil, apperrors.Internal("Failed to load user", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password)) != nil {
		s.logger.LogSecurityEvent(ctx, "login_failed", map[string]interface{}{"user_id": u.ID})
		return nil, errBadCredentials
	}
	if u.Deactivated {
		return nil, errDeactivated
	}
	return s.session(u)
}

// Confirm marks the user of a confirmation token as confirmed.
func (s *Service) Confirm(ctx context.Context, token string) (*models.User, error) {
	claims, err := s.tokens.Parse(token, tokens.PurposeConfirm)
	if err != nil {
		return nil, err
	}
	if err := s.users.Confirm(ctx, claims.UserID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("user", claims.UserID)
		}
		return nil, apperrors.Internal("Failed to confirm user", err)
	}
	u, err := s.Me(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}
	if err := s.mail.Send(ctx, mailer.Confirmed, u.Email, map[string]interface{}{"Name": displayName(*u)}); err != nil {
		s.logger.WithContext(ctx).WithError(err).Warn("confirmation mail failed")
	}
	return u, nil
}

func (s *Service) ChangePassword(ctx context.Context, userID, current, next string) error {
	u, err := s.Me(ctx, userID)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(current)) != nil {
		return apperrors.Unauthorized("Current password is incorrect")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(next), s.cfg.BcryptCost)
	if err != nil {
		return apperrors.Internal("Failed to hash password", err)
	}
	if err := s.users.SetPassword(ctx, userID, string(hash)); err != nil {
		return apperrors.Internal("Failed to update password", err)
	}
	s.logger.LogSecurityEvent(ctx, "password_changed", map[string]interface{}{"user_id": userID})
	return nil
}

// Me returns the user behind an access token.
func (s *Service) Me(ctx context.Context, userID string) (*models.User, error) {
	u, err := s.users.FindByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NotFound("user", userID)
	}
	if err != nil {
		return nil, apperrors.Internal("Failed to load user", err)
	}
	if u.Deactivated {
		return nil, errDeactivated
	}
	return u, nil
}

// Active rejects tokens of accounts that were removed or deactivated after
// the token was issued.
func (s *Service) Active(ctx context.Context, userID string) error {
	u, err := s.users.FindByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.Unauthorized("Account no longer exists")
	}
	if err != nil {
		return apperrors.Internal("Failed to load user", err)
	}
	if u.Deactivated {
		return errDeactivated
	}
	return nil
}

// TokenTTL is the lifetime of issued access tokens.
func (s *Service) TokenTTL() time.Duration {
	return s.tokens.AccessTTL()
}

func (s *Service) session(u *models.User) (*Session, error) {
	token, err := s.tokens.Issue(tokens.Subject{
		UserID: u.ID,
		Email:  u.Email,
		Role:   u.Role,
		RoleID: u.RoleID,
		Admin:  s.admins[strings.ToLower(u.Email)],
	})
	if err != nil {
		return nil, apperrors.Internal("Failed to issue token", err)
	}
	return &Session{User: u, Token: token, ExpiresIn: int64(s.tokens.AccessTTL().Seconds())}, nil
}

func displayName(u models.User) string {
	if u.Name != "" {
		return u.Name
	}
	if u.UserName != "" {
		return u.UserName
	}
	return u.Email
}
