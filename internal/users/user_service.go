package users

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/peerloop/peerloop/model"
	"golang.org/x/crypto/bcrypt"
)

type CreateUserOptions struct {
	Username string
	FullName string
	Email    string
	Password string
}

type UserService struct {
	userRepo UserRepository
}

func NewUserService(userRepo UserRepository) *UserService {
	return &UserService{userRepo: userRepo}
}

// Fold normalizes an email or username for lookup and storage. Uniqueness is
// enforced on the folded form.
func Fold(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}

func (s *UserService) GetUserByID(ctx context.Context, userID uint) (*model.User, error) {
	return s.userRepo.FirstByID(ctx, userID)
}

func (s *UserService) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return s.userRepo.FirstByEmail(ctx, Fold(email))
}

// GetUserByIdentifier resolves a login identifier, treating anything that
// parses as an address as an email and everything else as a username.
func (s *UserService) GetUserByIdentifier(ctx context.Context, identifier string) (*model.User, error) {
	folded := Fold(identifier)
	if _, err := mail.ParseAddress(folded); err == nil {
		return s.userRepo.FirstByEmail(ctx, folded)
	}
	return s.userRepo.FirstByUsername(ctx, folded)
}

// CreateUser hashes the password and inserts the account. Uniqueness is left
// to the store's constraints so two concurrent registrations cannot both
// succeed; the losing insert surfaces as ErrUsernameTaken/ErrEmailRegistered.
func (s *UserService) CreateUser(ctx context.Context, opts CreateUserOptions) (*model.User, error) {
	passwordHash, err := bcrypt.GenerateFromPassword([]byte(opts.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	user := model.User{
		Username: Fold(opts.Username),
		FullName: strings.TrimSpace(opts.FullName),
		Email:    Fold(opts.Email),
		Password: string(passwordHash),
	}
	if err := s.userRepo.Create(ctx, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// VerifyPassword compares the candidate against the stored bcrypt hash.
func (s *UserService) VerifyPassword(user *model.User, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)) == nil
}

func (s *UserService) UpdatePassword(ctx context.Context, userID uint, newPassword string) error {
	passwordHash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	_, err = s.userRepo.Updates(ctx, userID, map[string]interface{}{
		"password": string(passwordHash),
	})
	return err
}

func (s *UserService) TouchLastLogin(ctx context.Context, userID uint) error {
	now := time.Now()
	_, err := s.userRepo.Updates(ctx, userID, map[string]interface{}{
		"last_login_at": &now,
	})
	return err
}

// SetPendingTOTPSecret stores an encrypted, not-yet-authoritative secret.
func (s *UserService) SetPendingTOTPSecret(ctx context.Context, userID uint, encryptedSecret string) error {
	_, err := s.userRepo.Updates(ctx, userID, map[string]interface{}{
		"two_fa_pending_secret": encryptedSecret,
	})
	return err
}

// PromoteTOTPSecret makes the pending secret authoritative, enables MFA and
// installs the backup code hash set in one update.
func (s *UserService) PromoteTOTPSecret(ctx context.Context, userID uint, encryptedSecret string, backupCodeHashes string) error {
	_, err := s.userRepo.Updates(ctx, userID, map[string]interface{}{
		"two_fa_enabled":        true,
		"two_fa_secret":         encryptedSecret,
		"two_fa_pending_secret": "",
		"backup_codes":          backupCodeHashes,
	})
	return err
}

// ClearTwoFA removes all second-factor material. Safe to call repeatedly.
func (s *UserService) ClearTwoFA(ctx context.Context, userID uint) error {
	_, err := s.userRepo.Updates(ctx, userID, map[string]interface{}{
		"two_fa_enabled":        false,
		"two_fa_secret":         "",
		"two_fa_pending_secret": "",
		"backup_codes":          "",
	})
	return err
}

func (s *UserService) SetBackupCodes(ctx context.Context, userID uint, backupCodeHashes string) error {
	_, err := s.userRepo.Updates(ctx, userID, map[string]interface{}{
		"backup_codes": backupCodeHashes,
	})
	return err
}
