// Package storage defines persistence contracts for guild verification
// settings and verified members.
//
// Discord snowflakes are kept as decimal strings; an empty role id means the
// role is not configured.
package storage

import (
	"context"

	apperrors "github.com/louisbranch/guildverify/internal/platform/errors"
)

// ErrNotFound indicates a requested record does not exist.
var ErrNotFound = apperrors.New(apperrors.CodeNotFound, "record not found")

// GuildSettings is the per-guild verification configuration.
type GuildSettings struct {
	GuildID        string
	VerifiedRoleID string
	EmailDomain    string
}

// Level is a selectable grade (for example a school year) mapped to a role.
type Level struct {
	ID      int64
	GuildID string
	Name    string
	RoleID  string
}

// Class belongs to a level and is mapped to its own role.
type Class struct {
	ID      int64
	LevelID int64
	Name    string
	RoleID  string
}

// VerifiedMember links a guild member to the Google identity they proved.
type VerifiedMember struct {
	MemberID  int64
	FirstName string
	LastName  string
	Email     string
	ClassID   int64
}

// GuildStore persists guild settings, levels and classes.
type GuildStore interface {
	PutGuildSettings(ctx context.Context, settings GuildSettings) error
	GuildSettings(ctx context.Context, guildID string) (GuildSettings, error)
	ClearVerifiedRole(ctx context.Context, guildID string) error

	PutLevel(ctx context.Context, level Level) (Level, error)
	Levels(ctx context.Context, guildID string) ([]Level, error)
	LevelRole(ctx context.Context, levelID int64) (string, error)
	DeleteLevel(ctx context.Context, levelID int64) error

	PutClass(ctx context.Context, class Class) (Class, error)
	ClassesForLevel(ctx context.Context, levelID int64) ([]Class, error)
	ClassRole(ctx context.Context, classID int64) (string, error)
	DeleteClass(ctx context.Context, classID int64) error
}

// MemberStore persists guild members and their verification records.
type MemberStore interface {
	PutMember(ctx context.Context, guildID, userID string) (int64, error)
	MemberID(ctx context.Context, guildID, userID string) (int64, error)
	IsVerified(ctx context.Context, guildID, userID string) (bool, error)
	PutVerifiedMember(ctx context.Context, member VerifiedMember) error
	DeleteVerifiedMember(ctx context.Context, memberID int64) error
}

// Store is the full persistence surface used by the verification flow.
type Store interface {
	GuildStore
	MemberStore
}
