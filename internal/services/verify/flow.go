// Package verify links a Discord guild member to a Google account and assigns
// the guild's verified, level and class roles.
package verify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	apperrors "github.com/louisbranch/guildverify/internal/platform/errors"
	"github.com/louisbranch/guildverify/internal/platform/i18n/catalog"
	"github.com/louisbranch/guildverify/internal/platform/timeouts"
	"github.com/louisbranch/guildverify/internal/services/auth/oauth"
	"github.com/louisbranch/guildverify/internal/services/verify/storage"
	"golang.org/x/oauth2"
)

var (
	// ErrSelectionTimeout is returned by Interaction when the member does not
	// answer a prompt in time.
	ErrSelectionTimeout = apperrors.New(apperrors.CodeVerifySelectionTimeout, "member did not answer in time")
	// ErrRoleNotFound is returned by RoleAssigner when the role no longer
	// exists in the guild.
	ErrRoleNotFound = errors.New("role not found")
)

// Member is the guild member running a flow.
type Member struct {
	GuildID      string
	UserID       string
	Username     string
	Locale       string
	GuildIconURL string
}

// Choice is one option of a select prompt.
type Choice struct {
	ID    string
	Label string
}

// Interaction is the chat surface a flow talks through. Messages are already
// localized.
type Interaction interface {
	// Shout sends a short ephemeral message.
	Shout(ctx context.Context, message string) error
	// PresentLink shows message with a link button.
	PresentLink(ctx context.Context, message, label, url string) error
	// Choose asks the member to pick one choice and returns its ID.
	Choose(ctx context.Context, placeholder string, choices []Choice, timeout time.Duration) (string, error)
	// Confirm asks the member to press a button and reports whether they did.
	Confirm(ctx context.Context, message, label string, timeout time.Duration) (bool, error)
}

// RoleAssigner changes guild roles of a member.
type RoleAssigner interface {
	AddRole(ctx context.Context, guildID, userID, roleID string) error
	RemoveRole(ctx context.Context, guildID, userID, roleID string) error
}

// Authenticator runs the Google sign-in for one member.
type Authenticator interface {
	Start(requester oauth.Requester) (string, *oauth.AuthProcess)
	QueryUserMetadata(ctx context.Context, token *oauth2.Token) (oauth.UserMetadata, error)
	Revoke(ctx context.Context, token *oauth2.Token) error
}

// Flow runs the login and logout conversations.
type Flow struct {
	auth             Authenticator
	store            storage.Store
	roles            RoleAssigner
	bundle           *catalog.Bundle
	logger           *slog.Logger
	selectionTimeout time.Duration
}

// NewFlow wires a flow. A nil logger uses slog.Default.
func NewFlow(auth Authenticator, store storage.Store, roles RoleAssigner, bundle *catalog.Bundle, logger *slog.Logger) *Flow {
	if logger == nil {
		logger = slog.Default()
	}
	return &Flow{
		auth:             auth,
		store:            store,
		roles:            roles,
		bundle:           bundle,
		logger:           logger,
		selectionTimeout: timeouts.Selection,
	}
}

// Login verifies member. Conditions the member can act on are reported
// through in and return nil; unexpected failures are reported with a
// correlation id and returned.
func (f *Flow) Login(ctx context.Context, in Interaction, member Member) error {
	loc := f.bundle.Localizer(member.Locale)
	if err := f.login(ctx, in, member, loc); err != nil {
		return f.fail(ctx, in, loc, "login", member, err)
	}
	return nil
}

func (f *Flow) login(ctx context.Context, in Interaction, member Member, loc catalog.Localizer) error {
	verified, err := f.store.IsVerified(ctx, member.GuildID, member.UserID)
	if err != nil {
		return err
	}
	if verified {
		return in.Shout(ctx, loc.Sprintf("verify.login.already-verified"))
	}

	settings, levels, setupErr, err := f.loginComponents(ctx, member.GuildID)
	if err != nil {
		return err
	}
	if setupErr != nil {
		return in.Shout(ctx, loc.Sprintf(setupErr.Code.MessageKey()))
	}

	authURL, process := f.auth.Start(oauth.Requester{
		Username:         member.Username,
		GuildImageSource: member.GuildIconURL,
	})
	if err := in.PresentLink(ctx, loc.Sprintf("verify.login.prompt"), loc.Sprintf("verify.login.continue"), authURL); err != nil {
		return err
	}

	token, err := process.Wait(ctx)
	if errors.Is(err, oauth.ErrTimeout) {
		return in.Shout(ctx, loc.Sprintf("verify.login.timeout"))
	}
	if err != nil {
		return fmt.Errorf("wait for authentication: %w", err)
	}

	userData, err := f.auth.QueryUserMetadata(ctx, token)
	if err != nil {
		return fmt.Errorf("query user metadata: %w", err)
	}
	if err := f.auth.Revoke(ctx, token); err != nil {
		f.logger.Warn("revoke google token", "guild_id", member.GuildID, "user_id", member.UserID, "error", err)
	}

	allowed, err := DomainAllowed(userData.Email, settings.EmailDomain)
	if err != nil {
		return err
	}
	if !allowed {
		f.logger.Info("email domain rejected", "guild_id", member.GuildID, "user_id", member.UserID)
		return in.Shout(ctx, loc.Sprintf("verify.login.domain-not-allowed"))
	}

	levelID, err := f.choose(ctx, in, loc.Sprintf("verify.login.select-level"), levelChoices(levels))
	if errors.Is(err, ErrSelectionTimeout) {
		return in.Shout(ctx, loc.Sprintf("verify.login.selection-timeout"))
	}
	if err != nil {
		return err
	}

	classes, err := f.store.ClassesForLevel(ctx, levelID)
	if err != nil {
		return err
	}
	if len(classes) == 0 {
		return in.Shout(ctx, loc.Sprintf("verify.login.no-classes"))
	}
	classID, err := f.choose(ctx, in, loc.Sprintf("verify.login.select-class"), classChoices(classes))
	if errors.Is(err, ErrSelectionTimeout) {
		return in.Shout(ctx, loc.Sprintf("verify.login.selection-timeout"))
	}
	if err != nil {
		return err
	}

	memberID, err := f.store.MemberID(ctx, member.GuildID, member.UserID)
	if errors.Is(err, storage.ErrNotFound) {
		return in.Shout(ctx, loc.Sprintf("verify.login.member-unknown", member.Username))
	}
	if err != nil {
		return err
	}

	if err := f.assignRoles(ctx, member, settings.VerifiedRoleID, levelID, classID); err != nil {
		return err
	}
	if err := f.store.PutVerifiedMember(ctx, storage.VerifiedMember{
		MemberID:  memberID,
		FirstName: userData.FirstName,
		LastName:  userData.LastName,
		Email:     userData.Email,
		ClassID:   classID,
	}); err != nil {
		return err
	}
	f.logger.Info("member verified", "guild_id", member.GuildID, "user_id", member.UserID, "class_id", classID)
	return in.Shout(ctx, loc.Sprintf("verify.login.success"))
}

// loginComponents loads what a guild must configure before members can
// verify. A missing piece is returned as setupErr.
func (f *Flow) loginComponents(ctx context.Context, guildID string) (settings storage.GuildSettings, levels []storage.Level, setupErr *apperrors.Error, err error) {
	settings, err = f.store.GuildSettings(ctx, guildID)
	if errors.Is(err, storage.ErrNotFound) {
		return settings, nil, apperrors.New(apperrors.CodeVerifyNoVerifiedRole, "guild is not configured"), nil
	}
	if err != nil {
		return settings, nil, nil, err
	}
	if settings.VerifiedRoleID == "" {
		return settings, nil, apperrors.New(apperrors.CodeVerifyNoVerifiedRole, "verified role not set"), nil
	}
	if settings.EmailDomain == "" {
		return settings, nil, apperrors.New(apperrors.CodeVerifyNoEmailDomain, "email domain not set"), nil
	}
	levels, err = f.store.Levels(ctx, guildID)
	if err != nil {
		return settings, nil, nil, err
	}
	if len(levels) == 0 {
		return settings, nil, apperrors.New(apperrors.CodeVerifyNoLevels, "no levels"), nil
	}
	return settings, levels, nil, nil
}

// choose prompts for one of choices and returns the picked id.
func (f *Flow) choose(ctx context.Context, in Interaction, placeholder string, choices []Choice) (int64, error) {
	picked, err := in.Choose(ctx, placeholder, choices, f.selectionTimeout)
	if err != nil {
		return 0, err
	}
	for _, choice := range choices {
		if choice.ID == picked {
			return strconv.ParseInt(picked, 10, 64)
		}
	}
	return 0, apperrors.WithMetadata(apperrors.CodeVerifyInvalidSelection, "selection is not one of the choices",
		map[string]string{"selection": picked})
}

// assignRoles adds the verified, level and class roles in that order. A role
// deleted in Discord is unlinked from the store before failing.
func (f *Flow) assignRoles(ctx context.Context, member Member, verifiedRoleID string, levelID, classID int64) error {
	levelRole, err := f.store.LevelRole(ctx, levelID)
	if err != nil {
		return err
	}
	classRole, err := f.store.ClassRole(ctx, classID)
	if err != nil {
		return err
	}

	steps := []struct {
		name   string
		roleID string
		unlink func(context.Context) error
	}{
		{"verified", verifiedRoleID, func(ctx context.Context) error { return f.store.ClearVerifiedRole(ctx, member.GuildID) }},
		{"level", levelRole, func(ctx context.Context) error { return f.store.DeleteLevel(ctx, levelID) }},
		{"class", classRole, func(ctx context.Context) error { return f.store.DeleteClass(ctx, classID) }},
	}
	for _, step := range steps {
		err := f.roles.AddRole(ctx, member.GuildID, member.UserID, step.roleID)
		if errors.Is(err, ErrRoleNotFound) {
			if unlinkErr := step.unlink(ctx); unlinkErr != nil {
				return unlinkErr
			}
			return apperrors.WithMetadata(apperrors.CodeVerifyRoleDeleted, step.name+" role was deleted",
				map[string]string{"role_id": step.roleID})
		}
		if err != nil {
			return fmt.Errorf("add %s role: %w", step.name, err)
		}
	}
	return nil
}

// Logout removes the verification record of member and the verified role
// after the member confirms.
func (f *Flow) Logout(ctx context.Context, in Interaction, member Member) error {
	loc := f.bundle.Localizer(member.Locale)
	if err := f.logout(ctx, in, member, loc); err != nil {
		return f.fail(ctx, in, loc, "logout", member, err)
	}
	return nil
}

func (f *Flow) logout(ctx context.Context, in Interaction, member Member, loc catalog.Localizer) error {
	verified, err := f.store.IsVerified(ctx, member.GuildID, member.UserID)
	if err != nil {
		return err
	}
	if !verified {
		return in.Shout(ctx, loc.Sprintf("verify.logout.not-verified"))
	}
	memberID, err := f.store.MemberID(ctx, member.GuildID, member.UserID)
	if err != nil {
		return err
	}

	confirmed, err := in.Confirm(ctx, loc.Sprintf("verify.logout.warning"), loc.Sprintf("verify.logout.disconnect"), f.selectionTimeout)
	if errors.Is(err, ErrSelectionTimeout) || (err == nil && !confirmed) {
		return in.Shout(ctx, loc.Sprintf("verify.login.selection-timeout"))
	}
	if err != nil {
		return err
	}

	if err := f.store.DeleteVerifiedMember(ctx, memberID); err != nil {
		return err
	}
	settings, err := f.store.GuildSettings(ctx, member.GuildID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	if settings.VerifiedRoleID != "" {
		err := f.roles.RemoveRole(ctx, member.GuildID, member.UserID, settings.VerifiedRoleID)
		if errors.Is(err, ErrRoleNotFound) {
			if err := f.store.ClearVerifiedRole(ctx, member.GuildID); err != nil {
				return err
			}
		} else if err != nil {
			return fmt.Errorf("remove verified role: %w", err)
		}
	}
	f.logger.Info("member unverified", "guild_id", member.GuildID, "user_id", member.UserID)
	return in.Shout(ctx, loc.Sprintf("verify.logout.success"))
}

// fail logs err under a correlation id and tells the member about it.
func (f *Flow) fail(ctx context.Context, in Interaction, loc catalog.Localizer, action string, member Member, err error) error {
	failure := apperrors.Correlated(err)
	f.logger.Error(action+" failed",
		"correlation_id", failure.CorrelationID,
		"code", failure.Code,
		"guild_id", member.GuildID,
		"user_id", member.UserID,
		"error", err,
	)
	message := loc.Sprintf("verify.login.failed", failure.CorrelationID)
	if text, ok := f.bundle.Message(loc.Locale(), failure.Code.MessageKey()); ok && failure.Code != apperrors.CodeUnknown {
		message = text + " " + loc.Sprintf("auth.error.reference", failure.CorrelationID)
	}
	if shoutErr := in.Shout(ctx, message); shoutErr != nil {
		f.logger.Warn("report failure to member", "correlation_id", failure.CorrelationID, "error", shoutErr)
	}
	return failure
}

func levelChoices(levels []storage.Level) []Choice {
	choices := make([]Choice, 0, len(levels))
	for _, level := range levels {
		choices = append(choices, Choice{ID: strconv.FormatInt(level.ID, 10), Label: level.Name})
	}
	return choices
}

func classChoices(classes []storage.Class) []Choice {
	choices := make([]Choice, 0, len(classes))
	for _, class := range classes {
		choices = append(choices, Choice{ID: strconv.FormatInt(class.ID, 10), Label: class.Name})
	}
	return choices
}
