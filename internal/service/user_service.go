package service

import (
	"context"
	"fmt"
	"strings"

	"hichat/internal/domain"
)

// UserService provides profile lookup, search, and updates.
type UserService struct {
	users    domain.UserRepository
	presence Presence
}

func NewUserService(users domain.UserRepository, presence Presence) *UserService {
	return &UserService{users: users, presence: presence}
}

func (s *UserService) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return s.users.GetByID(ctx, id)
}

func (s *UserService) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	return s.users.GetByUsername(ctx, username)
}

// GetPublicProfile returns the public view of a user with live presence.
func (s *UserService) GetPublicProfile(ctx context.Context, id string) (*domain.PublicProfile, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("user %s: %w", id, domain.ErrNotFound)
	}
	profile := domain.PublicProfileOf(user, s.presence.IsOnline(user.ID))
	return &profile, nil
}

// Search finds users whose username contains the query, case-insensitively.
// An empty query matches nobody.
func (s *UserService) Search(ctx context.Context, query string, limit int) ([]domain.PublicProfile, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []domain.PublicProfile{}, nil
	}
	if limit <= 0 {
		limit = 50
	}

	users, err := s.users.SearchByUsername(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}

	profiles := make([]domain.PublicProfile, 0, len(users))
	for _, u := range users {
		profiles = append(profiles, domain.PublicProfileOf(u, s.presence.IsOnline(u.ID)))
	}
	return profiles, nil
}

type ProfileUpdateInput struct {
	Username *string
	Bio      *string
	Avatar   *string
}

// UpdateProfile applies the provided fields to the user's profile. Username
// changes keep the case-insensitive uniqueness invariant.
func (s *UserService) UpdateProfile(ctx context.Context, userID string, in ProfileUpdateInput) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("user %s: %w", userID, domain.ErrNotFound)
	}

	if in.Username != nil {
		username := strings.TrimSpace(*in.Username)
		if username == "" {
			return nil, fmt.Errorf("username must not be empty: %w", domain.ErrInvalidInput)
		}
		if !strings.EqualFold(username, user.Username) {
			existing, err := s.users.GetByUsername(ctx, username)
			if err != nil {
				return nil, fmt.Errorf("check username: %w", err)
			}
			if existing != nil {
				return nil, fmt.Errorf("username already taken: %w", domain.ErrConflict)
			}
		}
		user.Username = username
	}
	if in.Bio != nil {
		user.Bio = strings.TrimSpace(*in.Bio)
	}
	if in.Avatar != nil && *in.Avatar != "" {
		user.Avatar = *in.Avatar
	}

	if err := s.users.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}
	return user, nil
}
