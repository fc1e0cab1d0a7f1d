// Package sqlite provides the SQLite-backed guild store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	sqlitemigrate "github.com/louisbranch/guildverify/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/guildverify/internal/services/verify/storage"
	"github.com/louisbranch/guildverify/internal/services/verify/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Store implements storage.Store over SQLite.
type Store struct {
	sqlDB *sql.DB
}

var _ storage.Store = (*Store)(nil)

// DB returns the raw database handle.
func (s *Store) DB() *sql.DB {
	if s == nil {
		return nil
	}
	return s.sqlDB
}

// Open opens the guild store at path and applies bundled migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	if _, err := sqlitemigrate.ApplyMigrations(ctx, sqlDB, migrations.FS, "."); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) ensureGuild(ctx context.Context, guildID string) error {
	_, err := s.sqlDB.ExecContext(ctx, `INSERT INTO guilds (id) VALUES (?) ON CONFLICT (id) DO NOTHING`, guildID)
	if err != nil {
		return fmt.Errorf("ensure guild: %w", err)
	}
	return nil
}

// PutGuildSettings creates or replaces the verification settings of a guild.
// Empty fields are stored as NULL.
func (s *Store) PutGuildSettings(ctx context.Context, settings storage.GuildSettings) error {
	if strings.TrimSpace(settings.GuildID) == "" {
		return fmt.Errorf("guild id is required")
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO guilds (id, verified_role_id, verification_email_domain)
VALUES (?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    verified_role_id = excluded.verified_role_id,
    verification_email_domain = excluded.verification_email_domain`,
		settings.GuildID, nullString(settings.VerifiedRoleID), nullString(settings.EmailDomain))
	if err != nil {
		return fmt.Errorf("put guild settings: %w", err)
	}
	return nil
}

// GuildSettings returns the settings of guildID or storage.ErrNotFound.
func (s *Store) GuildSettings(ctx context.Context, guildID string) (storage.GuildSettings, error) {
	var roleID, domain sql.NullString
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT verified_role_id, verification_email_domain FROM guilds WHERE id = ?`, guildID,
	).Scan(&roleID, &domain)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.GuildSettings{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.GuildSettings{}, fmt.Errorf("get guild settings: %w", err)
	}
	return storage.GuildSettings{
		GuildID:        guildID,
		VerifiedRoleID: roleID.String,
		EmailDomain:    domain.String,
	}, nil
}

// ClearVerifiedRole unsets the verified role after it was deleted in Discord.
func (s *Store) ClearVerifiedRole(ctx context.Context, guildID string) error {
	if _, err := s.sqlDB.ExecContext(ctx, `UPDATE guilds SET verified_role_id = NULL WHERE id = ?`, guildID); err != nil {
		return fmt.Errorf("clear verified role: %w", err)
	}
	return nil
}

// PutLevel inserts a level, or updates it when ID is set.
func (s *Store) PutLevel(ctx context.Context, level storage.Level) (storage.Level, error) {
	if strings.TrimSpace(level.GuildID) == "" || strings.TrimSpace(level.Name) == "" || strings.TrimSpace(level.RoleID) == "" {
		return storage.Level{}, fmt.Errorf("level guild, name and role are required")
	}
	if err := s.ensureGuild(ctx, level.GuildID); err != nil {
		return storage.Level{}, err
	}
	if level.ID != 0 {
		res, err := s.sqlDB.ExecContext(ctx,
			`UPDATE levels SET name = ?, role_id = ? WHERE id = ? AND guild_id = ?`,
			level.Name, level.RoleID, level.ID, level.GuildID)
		if err != nil {
			return storage.Level{}, fmt.Errorf("update level: %w", err)
		}
		if err := requireAffected(res); err != nil {
			return storage.Level{}, err
		}
		return level, nil
	}
	res, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO levels (guild_id, name, role_id) VALUES (?, ?, ?)`,
		level.GuildID, level.Name, level.RoleID)
	if err != nil {
		return storage.Level{}, fmt.Errorf("insert level: %w", err)
	}
	if level.ID, err = res.LastInsertId(); err != nil {
		return storage.Level{}, fmt.Errorf("level id: %w", err)
	}
	return level, nil
}

// Levels lists the levels of a guild by name.
func (s *Store) Levels(ctx context.Context, guildID string) ([]storage.Level, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id, guild_id, name, role_id FROM levels WHERE guild_id = ? ORDER BY name, id`, guildID)
	if err != nil {
		return nil, fmt.Errorf("list levels: %w", err)
	}
	defer rows.Close()

	var levels []storage.Level
	for rows.Next() {
		var level storage.Level
		if err := rows.Scan(&level.ID, &level.GuildID, &level.Name, &level.RoleID); err != nil {
			return nil, fmt.Errorf("scan level: %w", err)
		}
		levels = append(levels, level)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list levels: %w", err)
	}
	return levels, nil
}

// LevelRole returns the role mapped to levelID.
func (s *Store) LevelRole(ctx context.Context, levelID int64) (string, error) {
	return s.roleOf(ctx, `SELECT role_id FROM levels WHERE id = ?`, levelID)
}

// DeleteLevel removes a level and, through the foreign key, its classes.
func (s *Store) DeleteLevel(ctx context.Context, levelID int64) error {
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM levels WHERE id = ?`, levelID); err != nil {
		return fmt.Errorf("delete level: %w", err)
	}
	return nil
}

// PutClass inserts a class, or updates it when ID is set.
func (s *Store) PutClass(ctx context.Context, class storage.Class) (storage.Class, error) {
	if class.LevelID == 0 || strings.TrimSpace(class.Name) == "" || strings.TrimSpace(class.RoleID) == "" {
		return storage.Class{}, fmt.Errorf("class level, name and role are required")
	}
	if class.ID != 0 {
		res, err := s.sqlDB.ExecContext(ctx,
			`UPDATE classes SET name = ?, role_id = ?, level_id = ? WHERE id = ?`,
			class.Name, class.RoleID, class.LevelID, class.ID)
		if err != nil {
			return storage.Class{}, fmt.Errorf("update class: %w", err)
		}
		if err := requireAffected(res); err != nil {
			return storage.Class{}, err
		}
		return class, nil
	}
	res, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO classes (level_id, name, role_id) VALUES (?, ?, ?)`,
		class.LevelID, class.Name, class.RoleID)
	if err != nil {
		return storage.Class{}, fmt.Errorf("insert class: %w", err)
	}
	if class.ID, err = res.LastInsertId(); err != nil {
		return storage.Class{}, fmt.Errorf("class id: %w", err)
	}
	return class, nil
}

// ClassesForLevel lists the classes of a level by name.
func (s *Store) ClassesForLevel(ctx context.Context, levelID int64) ([]storage.Class, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id, level_id, name, role_id FROM classes WHERE level_id = ? ORDER BY name, id`, levelID)
	if err != nil {
		return nil, fmt.Errorf("list classes: %w", err)
	}
	defer rows.Close()

	var classes []storage.Class
	for rows.Next() {
		var class storage.Class
		if err := rows.Scan(&class.ID, &class.LevelID, &class.Name, &class.RoleID); err != nil {
			return nil, fmt.Errorf("scan class: %w", err)
		}
		classes = append(classes, class)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list classes: %w", err)
	}
	return classes, nil
}

// ClassRole returns the role mapped to classID.
func (s *Store) ClassRole(ctx context.Context, classID int64) (string, error) {
	return s.roleOf(ctx, `SELECT role_id FROM classes WHERE id = ?`, classID)
}

// DeleteClass removes a class.
func (s *Store) DeleteClass(ctx context.Context, classID int64) error {
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM classes WHERE id = ?`, classID); err != nil {
		return fmt.Errorf("delete class: %w", err)
	}
	return nil
}

// PutMember registers a guild member and returns its id. Registering an
// existing member returns the existing id.
func (s *Store) PutMember(ctx context.Context, guildID, userID string) (int64, error) {
	if strings.TrimSpace(guildID) == "" || strings.TrimSpace(userID) == "" {
		return 0, fmt.Errorf("guild id and user id are required")
	}
	if err := s.ensureGuild(ctx, guildID); err != nil {
		return 0, err
	}
	if _, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO members (guild_id, discord_id) VALUES (?, ?) ON CONFLICT (guild_id, discord_id) DO NOTHING`,
		guildID, userID); err != nil {
		return 0, fmt.Errorf("put member: %w", err)
	}
	return s.MemberID(ctx, guildID, userID)
}

// MemberID returns the id of a registered member or storage.ErrNotFound.
func (s *Store) MemberID(ctx context.Context, guildID, userID string) (int64, error) {
	var id int64
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT id FROM members WHERE guild_id = ? AND discord_id = ?`, guildID, userID,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, storage.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("get member id: %w", err)
	}
	return id, nil
}

// IsVerified reports whether the member has a verification record.
func (s *Store) IsVerified(ctx context.Context, guildID, userID string) (bool, error) {
	var exists bool
	err := s.sqlDB.QueryRowContext(ctx, `
SELECT EXISTS (
    SELECT 1 FROM verified_members v
    JOIN members m ON m.id = v.member_id
    WHERE m.guild_id = ? AND m.discord_id = ?
)`, guildID, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check verified member: %w", err)
	}
	return exists, nil
}

// PutVerifiedMember records the identity a member verified with.
func (s *Store) PutVerifiedMember(ctx context.Context, member storage.VerifiedMember) error {
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO verified_members (member_id, first_name, last_name, mail, class_id)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (member_id) DO UPDATE SET
    first_name = excluded.first_name,
    last_name = excluded.last_name,
    mail = excluded.mail,
    class_id = excluded.class_id`,
		member.MemberID, member.FirstName, member.LastName, member.Email, member.ClassID)
	if err != nil {
		return fmt.Errorf("put verified member: %w", err)
	}
	return nil
}

// DeleteVerifiedMember removes the verification record of a member.
func (s *Store) DeleteVerifiedMember(ctx context.Context, memberID int64) error {
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM verified_members WHERE member_id = ?`, memberID); err != nil {
		return fmt.Errorf("delete verified member: %w", err)
	}
	return nil
}

// VerifiedMember returns the verification record of a member.
func (s *Store) VerifiedMember(ctx context.Context, memberID int64) (storage.VerifiedMember, error) {
	member := storage.VerifiedMember{MemberID: memberID}
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT first_name, last_name, mail, class_id FROM verified_members WHERE member_id = ?`, memberID,
	).Scan(&member.FirstName, &member.LastName, &member.Email, &member.ClassID)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.VerifiedMember{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.VerifiedMember{}, fmt.Errorf("get verified member: %w", err)
	}
	return member, nil
}

func (s *Store) roleOf(ctx context.Context, query string, id int64) (string, error) {
	var roleID string
	err := s.sqlDB.QueryRowContext(ctx, query, id).Scan(&roleID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", storage.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get role: %w", err)
	}
	return roleID, nil
}

func requireAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func nullString(value string) sql.NullString {
	value = strings.TrimSpace(value)
	return sql.NullString{String: value, Valid: value != ""}
}
