// Copyright 2025, the QuickAI contributors
// SPDX-License-Identifier: AGPL-3.0-only

package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"aidanwoods.dev/go-paseto"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Implicit is the domain separation string bound into every local token.
// Changing it invalidates all issued tokens.
const Implicit = "QuickAI local identity v1"

const planClaim = "plan"

var errNoDatabase = errors.New("local identity provider has no database")

// Usage is a row of the usages table.
type Usage struct {
	UserID    string `gorm:"primaryKey"`
	FreeUsage int    `gorm:"not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewSecretKeyHex generates a fresh v4.public secret key.
func NewSecretKeyHex() string {
	return paseto.NewV4AsymmetricSecretKey().ExportHex()
}

// Signer mints local tokens.
type Signer struct {
	secret paseto.V4AsymmetricSecretKey
	now    func() time.Time
}

// NewSigner loads a hex encoded v4.public secret key.
func NewSigner(secretHex string) (*Signer, error) {
	secret, err := paseto.NewV4AsymmetricSecretKeyFromHex(secretHex)
	if err != nil {
		return nil, fmt.Errorf("loading local identity secret: %w", err)
	}

	return &Signer{secret: secret, now: time.Now}, nil
}

// Mint returns a token for userID on plan, valid for ttl.
func (s *Signer) Mint(userID string, plan Plan, ttl time.Duration) string {
	now := s.now()

	token := paseto.NewToken()
	token.SetIssuedAt(now)
	token.SetNotBefore(now)
	token.SetExpiration(now.Add(ttl))
	token.SetSubject(userID)
	token.SetString(planClaim, string(plan))

	return token.V4Sign(s.secret, []byte(Implicit))
}

// Local verifies tokens minted by a Signer with the same key and keeps
// usage counters in the usages table.
type Local struct {
	db     *gorm.DB
	public paseto.V4AsymmetricPublicKey
	parser paseto.Parser
}

// NewLocal returns a Local provider. Expired tokens are rejected.
func NewLocal(db *gorm.DB, secretHex string) (*Local, error) {
	signer, err := NewSigner(secretHex)
	if err != nil {
		return nil, err
	}

	return &Local{
		db:     db,
		public: signer.secret.Public(),
		parser: paseto.NewParser(),
	}, nil
}

// Migrate creates the usages table.
func (l *Local) Migrate(ctx context.Context) error {
	if l.db == nil {
		return errNoDatabase
	}

	return l.db.WithContext(ctx).AutoMigrate(&Usage{})
}

// Authenticate implements Provider.
func (l *Local) Authenticate(_ context.Context, bearer string) (Principal, error) {
	if bearer == "" {
		return Principal{}, ErrUnauthenticated
	}

	token, err := l.parser.ParseV4Public(l.public, bearer, []byte(Implicit))
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	subject, err := token.GetSubject()
	if err != nil || subject == "" {
		return Principal{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	plan, _ := token.GetString(planClaim)

	return Principal{UserID: subject, Plan: ParsePlan(plan)}, nil
}

// FreeUsage implements Provider. Unknown users have used nothing.
func (l *Local) FreeUsage(ctx context.Context, userID string) (int, error) {
	if l.db == nil {
		return 0, errNoDatabase
	}

	var usages []Usage

	if err := l.db.WithContext(ctx).Where("user_id = ?", userID).Limit(1).Find(&usages).Error; err != nil {
		return 0, fmt.Errorf("reading usage of %s: %w", userID, err)
	}

	if len(usages) == 0 {
		return 0, nil
	}

	return usages[0].FreeUsage, nil
}

// SetFreeUsage implements Provider with an upsert.
func (l *Local) SetFreeUsage(ctx context.Context, userID string, n int) error {
	if l.db == nil {
		return errNoDatabase
	}

	err := l.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"free_usage", "updated_at"}),
	}).Create(&Usage{UserID: userID, FreeUsage: n}).Error
	if err != nil {
		return fmt.Errorf("writing usage of %s: %w", userID, err)
	}

	return nil
}
