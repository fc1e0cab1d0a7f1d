package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	apperrors "github.com/louisbranch/guildverify/internal/platform/errors"
	"github.com/louisbranch/guildverify/internal/platform/timeouts"
	"golang.org/x/oauth2"
)

// maxProviderBody bounds how much of a provider response is read.
const maxProviderBody = 1 << 20

// UserMetadata is the identity read from the Google People API: the first
// email address and the given and family names of the first name entry.
type UserMetadata struct {
	Email     string
	FirstName string
	LastName  string
}

// peopleResponse mirrors the subset of people/me the flow reads. Pointers
// distinguish an absent field from an empty one.
type peopleResponse struct {
	Names []struct {
		GivenName  *string `json:"givenName"`
		FamilyName *string `json:"familyName"`
	} `json:"names"`
	EmailAddresses []struct {
		Value *string `json:"value"`
	} `json:"emailAddresses"`
}

// QueryUserMetadata reads the user's email and names with token. Transport
// failures, non-200 responses and malformed payloads fail with distinct codes.
func (c *Coordinator) QueryUserMetadata(ctx context.Context, token *oauth2.Token) (UserMetadata, error) {
	ctx, span := c.tracer.Start(ctx, "oauth.query_user_metadata")
	defer span.End()

	if token == nil || token.AccessToken == "" {
		err := apperrors.New(apperrors.CodeProviderMalformed, "missing access token")
		spanError(span, err)
		return UserMetadata{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, timeouts.ProviderRequest)
	defer cancel()

	endpoint, err := url.Parse(c.peopleURL)
	if err != nil {
		return UserMetadata{}, apperrors.Wrap(apperrors.CodeProviderFetch, "parse people url", err)
	}
	query := endpoint.Query()
	query.Set("personFields", "names,emailAddresses")
	endpoint.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return UserMetadata{}, apperrors.Wrap(apperrors.CodeProviderFetch, "build people request", err)
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		wrapped := apperrors.Wrap(apperrors.CodeProviderFetch, "call people api", err)
		spanError(span, wrapped)
		return UserMetadata{}, wrapped
	}
	defer resp.Body.Close()
	span.SetAttributes(statusAttr(resp.StatusCode))

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProviderBody))
	if err != nil {
		wrapped := apperrors.Wrap(apperrors.CodeProviderFetch, "read people response", err)
		spanError(span, wrapped)
		return UserMetadata{}, wrapped
	}
	if resp.StatusCode != http.StatusOK {
		wrapped := apperrors.WithMetadata(apperrors.CodeProviderNonOK,
			fmt.Sprintf("people api answered %d", resp.StatusCode),
			map[string]string{"status": fmt.Sprint(resp.StatusCode)})
		spanError(span, wrapped)
		return UserMetadata{}, wrapped
	}

	metadata, err := decodePeople(body)
	if err != nil {
		spanError(span, err)
		return UserMetadata{}, err
	}
	return metadata, nil
}

func decodePeople(body []byte) (UserMetadata, error) {
	var payload peopleResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return UserMetadata{}, apperrors.Wrap(apperrors.CodeProviderMalformed, "decode people response", err)
	}
	if len(payload.EmailAddresses) == 0 || payload.EmailAddresses[0].Value == nil {
		return UserMetadata{}, apperrors.New(apperrors.CodeProviderMalformed, "people response has no email address")
	}
	if len(payload.Names) == 0 {
		return UserMetadata{}, apperrors.New(apperrors.CodeProviderMalformed, "people response has no name")
	}
	name := payload.Names[0]
	if name.GivenName == nil {
		return UserMetadata{}, apperrors.New(apperrors.CodeProviderMalformed, "people response has no given name")
	}
	if name.FamilyName == nil {
		return UserMetadata{}, apperrors.New(apperrors.CodeProviderMalformed, "people response has no family name")
	}
	return UserMetadata{
		Email:     *payload.EmailAddresses[0].Value,
		FirstName: *name.GivenName,
		LastName:  *name.FamilyName,
	}, nil
}

// Revoke asks Google to invalidate token. It is used when a user unlinks
// their account; the flow only needs the metadata read once.
func (c *Coordinator) Revoke(ctx context.Context, token *oauth2.Token) error {
	ctx, span := c.tracer.Start(ctx, "oauth.revoke")
	defer span.End()

	if token == nil || token.AccessToken == "" {
		return errors.New("revoke: missing access token")
	}
	ctx, cancel := context.WithTimeout(ctx, timeouts.ProviderRequest)
	defer cancel()

	form := url.Values{}
	form.Set("token", token.AccessToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.revokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return apperrors.Wrap(apperrors.CodeProviderFetch, "build revoke request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		wrapped := apperrors.Wrap(apperrors.CodeProviderFetch, "call revoke endpoint", err)
		spanError(span, wrapped)
		return wrapped
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxProviderBody))
	span.SetAttributes(statusAttr(resp.StatusCode))
	if resp.StatusCode != http.StatusOK {
		wrapped := apperrors.WithMetadata(apperrors.CodeProviderNonOK,
			fmt.Sprintf("revoke endpoint answered %d", resp.StatusCode),
			map[string]string{"status": fmt.Sprint(resp.StatusCode)})
		spanError(span, wrapped)
		return wrapped
	}
	return nil
}
