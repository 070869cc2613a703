package businessflow

import (
	"context"

	"github.com/pulseboard/pulseboard/app/dto"
	"github.com/pulseboard/pulseboard/models"
	"github.com/pulseboard/pulseboard/repository"
	"github.com/pulseboard/pulseboard/utils"
)

// SocialAccountFlow manages the lifecycle of connected social accounts
type SocialAccountFlow interface {
	// Connect links a platform account to a user, or re-links it with fresh
	// credentials when the same user reconnects an existing account
	Connect(ctx context.Context, userID uint, req *dto.ConnectAccountRequest) (*dto.SocialAccountItem, error)

	// List returns the user's connected accounts
	List(ctx context.Context, userID uint) ([]dto.SocialAccountItem, error)

	// Update toggles sync behavior on an account the user owns
	Update(ctx context.Context, userID, accountID uint, req *dto.UpdateAccountRequest) (*dto.SocialAccountItem, error)

	// Disconnect deactivates an account. Synced metrics are retained.
	Disconnect(ctx context.Context, userID, accountID uint) error
}

// SocialAccountFlowImpl implements the social account business logic
type SocialAccountFlowImpl struct {
	accountRepo repository.SocialAccountRepository
	userRepo    repository.UserRepository
}

// NewSocialAccountFlow creates a new social account flow instance
func NewSocialAccountFlow(
	accountRepo repository.SocialAccountRepository,
	userRepo repository.UserRepository,
) SocialAccountFlow {
	return &SocialAccountFlowImpl{
		accountRepo: accountRepo,
		userRepo:    userRepo,
	}
}

// Connect links a platform account to a user. Reconnecting the same account
// replaces its stored credentials; a different user's account is rejected.
func (s *SocialAccountFlowImpl) Connect(ctx context.Context, userID uint, req *dto.ConnectAccountRequest) (*dto.SocialAccountItem, error) {
	user, err := s.userRepo.ByID(ctx, userID)
	if err != nil {
		return nil, NewBusinessError("USER_LOOKUP_FAILED", "Failed to lookup user", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	existing, err := s.accountRepo.ByPlatformAndExternalID(ctx, req.Platform, req.ExternalID)
	if err != nil {
		return nil, NewBusinessError("ACCOUNT_LOOKUP_FAILED", "Failed to lookup social account", err)
	}
	if existing != nil {
		if existing.UserID != userID {
			return nil, ErrAccountAlreadyLinked
		}
		// Reconnect: replace credentials and reactivate
		if err := s.accountRepo.UpdateCredentials(ctx, existing.ID, req.AccessToken, req.RefreshToken, req.TokenExpiresAt); err != nil {
			return nil, NewBusinessError("ACCOUNT_RECONNECT_FAILED", "Failed to update credentials", err)
		}
		existing.Username = req.Username
		existing.IsActive = utils.ToPtr(true)
		if err := s.accountRepo.Update(ctx, existing); err != nil {
			return nil, NewBusinessError("ACCOUNT_RECONNECT_FAILED", "Failed to reactivate account", err)
		}
		item := accountItem(existing)
		return &item, nil
	}

	account := &models.SocialAccount{
		UserID:         userID,
		Platform:       req.Platform,
		ExternalID:     req.ExternalID,
		Username:       req.Username,
		AccessToken:    req.AccessToken,
		RefreshToken:   req.RefreshToken,
		TokenExpiresAt: req.TokenExpiresAt,
		AutoSync:       utils.ToPtr(true),
		IsActive:       utils.ToPtr(true),
	}
	if err := s.accountRepo.Save(ctx, account); err != nil {
		return nil, NewBusinessError("ACCOUNT_CONNECT_FAILED", "Failed to connect account", err)
	}
	item := accountItem(account)
	return &item, nil
}

// List returns the user's connected accounts
func (s *SocialAccountFlowImpl) List(ctx context.Context, userID uint) ([]dto.SocialAccountItem, error) {
	accounts, err := s.accountRepo.ByFilter(ctx, models.SocialAccountFilter{UserID: &userID}, "created_at ASC", 0, 0)
	if err != nil {
		return nil, NewBusinessError("ACCOUNT_LIST_FAILED", "Failed to list accounts", err)
	}
	items := make([]dto.SocialAccountItem, 0, len(accounts))
	for _, a := range accounts {
		items = append(items, accountItem(a))
	}
	return items, nil
}

// Update toggles sync behavior on an account the user owns
func (s *SocialAccountFlowImpl) Update(ctx context.Context, userID, accountID uint, req *dto.UpdateAccountRequest) (*dto.SocialAccountItem, error) {
	if req.AutoSync == nil && req.IsActive == nil {
		return nil, ErrAccountUpdateRequired
	}
	account, err := s.ownedAccount(ctx, userID, accountID)
	if err != nil {
		return nil, err
	}
	if req.AutoSync != nil {
		account.AutoSync = req.AutoSync
	}
	if req.IsActive != nil {
		account.IsActive = req.IsActive
	}
	if err := s.accountRepo.Update(ctx, account); err != nil {
		return nil, NewBusinessError("ACCOUNT_UPDATE_FAILED", "Failed to update account", err)
	}
	item := accountItem(account)
	return &item, nil
}

// Disconnect deactivates an account. Synced metrics are retained.
func (s *SocialAccountFlowImpl) Disconnect(ctx context.Context, userID, accountID uint) error {
	account, err := s.ownedAccount(ctx, userID, accountID)
	if err != nil {
		return err
	}
	account.IsActive = utils.ToPtr(false)
	account.AutoSync = utils.ToPtr(false)
	if err := s.accountRepo.Update(ctx, account); err != nil {
		return NewBusinessError("ACCOUNT_DISCONNECT_FAILED", "Failed to disconnect account", err)
	}
	return nil
}

func (s *SocialAccountFlowImpl) ownedAccount(ctx context.Context, userID, accountID uint) (*models.SocialAccount, error) {
	account, err := getAccount(ctx, s.accountRepo, accountID)
	if err != nil {
		return nil, err
	}
	if account.UserID != userID {
		return nil, ErrAccountNotFound
	}
	return account, nil
}

func accountItem(a *models.SocialAccount) dto.SocialAccountItem {
	return dto.SocialAccountItem{
		ID:             a.ID,
		Platform:       a.Platform,
		Username:       a.Username,
		ExternalID:     a.ExternalID,
		FollowerCount:  a.FollowerCount,
		AutoSync:       utils.IsTrue(a.AutoSync),
		IsActive:       utils.IsTrue(a.IsActive),
		TokenExpiresAt: a.TokenExpiresAt,
		LastSyncAt:     a.LastSyncAt,
		CreatedAt:      a.CreatedAt,
	}
}
