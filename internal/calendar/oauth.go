/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package calendar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	calendarapi "google.golang.org/api/calendar/v3"
	"gorm.io/gorm"

	"github.com/friendsincode/skuld_planner/internal/models"
)

// OAuthManager runs the Google OAuth authorization-code flow and stores
// per-user tokens.
type OAuthManager struct {
	config *oauth2.Config
	db     *gorm.DB
	logger zerolog.Logger
}

// NewOAuthManager creates an OAuth manager for the Google calendar scope.
func NewOAuthManager(clientID, clientSecret, redirectURL string, db *gorm.DB, logger zerolog.Logger) *OAuthManager {
	return &OAuthManager{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       []string{calendarapi.CalendarScope},
			Endpoint:     google.Endpoint,
		},
		db:     db,
		logger: logger.With().Str("component", "calendar_oauth").Logger(),
	}
}

// AuthURL returns the consent page URL. Offline access with forced consent
// is required to get a refresh token on every link, not just the first.
func (m *OAuthManager) AuthURL(state string) string {
	return m.config.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
	)
}

// Exchange trades an authorization code for tokens and persists them for the
// user, replacing any previous credential.
func (m *OAuthManager) Exchange(ctx context.Context, userID, code string) error {
	token, err := m.config.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("exchange authorization code: %w", err)
	}

	record := models.CalendarToken{
		ID:           uuid.NewString(),
		UserID:       userID,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    token.TokenType,
		Expiry:       token.Expiry,
	}

	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", userID).Delete(&models.CalendarToken{}).Error; err != nil {
			return err
		}
		return tx.Create(&record).Error
	})
	if err != nil {
		return fmt.Errorf("store calendar token: %w", err)
	}

	m.logger.Info().Str("user_id", userID).Msg("calendar account linked")
	return nil
}

// TokenSource returns a refreshing token source for the user. Refreshed
// tokens are written back so the stored credential stays current.
func (m *OAuthManager) TokenSource(ctx context.Context, userID string) (oauth2.TokenSource, error) {
	var record models.CalendarToken
	err := m.db.WithContext(ctx).Where("user_id = ?", userID).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotConnected
	}
	if err != nil {
		return nil, fmt.Errorf("load calendar token: %w", err)
	}

	token := &oauth2.Token{
		AccessToken:  record.AccessToken,
		RefreshToken: record.RefreshToken,
		TokenType:    record.TokenType,
		Expiry:       record.Expiry,
	}

	return &savingTokenSource{
		inner:   m.config.TokenSource(ctx, token),
		manager: m,
		userID:  userID,
		last:    token,
	}, nil
}

// Connected reports whether the user has a stored calendar credential.
func (m *OAuthManager) Connected(ctx context.Context, userID string) (bool, error) {
	var count int64
	err := m.db.WithContext(ctx).Model(&models.CalendarToken{}).
		Where("user_id = ?", userID).Count(&count).Error
	return count > 0, err
}

// savingTokenSource persists tokens after the inner source refreshes them.
type savingTokenSource struct {
	inner   oauth2.TokenSource
	manager *OAuthManager
	userID  string
	last    *oauth2.Token
}

func (s *savingTokenSource) Token() (*oauth2.Token, error) {
	token, err := s.inner.Token()
	if err != nil {
		return nil, err
	}

	if token.AccessToken != s.last.AccessToken {
		updates := map[string]any{
			"access_token": token.AccessToken,
			"token_type":   token.TokenType,
			"expiry":       token.Expiry,
			"updated_at":   time.Now(),
		}
		if token.RefreshToken != "" {
			updates["refresh_token"] = token.RefreshToken
		}
		if err := s.manager.db.Model(&models.CalendarToken{}).
			Where("user_id = ?", s.userID).Updates(updates).Error; err != nil {
			s.manager.logger.Warn().Err(err).Str("user_id", s.userID).Msg("failed to persist refreshed token")
		}
		s.last = token
	}

	return token, nil
}
