package usage

import (
	"errors"
	"fmt"

	"github.com/codexmux/codexmux/internal/store"
)

var (
	// ErrMissingAccessToken indicates the profile stores no access token.
	ErrMissingAccessToken = errors.New("no access_token present in auth file")

	// ErrMissingAccountID indicates the profile stores no account id.
	ErrMissingAccountID = errors.New("no account_id present in auth file")
)

// CredentialsFor extracts the usage-endpoint credentials from a stored
// profile record.
func CredentialsFor(id string, auth *store.AuthFile) (Credentials, error) {
	if auth.Tokens == nil || auth.Tokens.AccessToken == "" {
		return Credentials{}, fmt.Errorf("%w for id '%s'", ErrMissingAccessToken, id)
	}
	if auth.Tokens.AccountID == "" {
		return Credentials{}, fmt.Errorf("%w for id '%s'", ErrMissingAccountID, id)
	}
	return Credentials{
		AccessToken: auth.Tokens.AccessToken,
		AccountID:   auth.Tokens.AccountID,
	}, nil
}
