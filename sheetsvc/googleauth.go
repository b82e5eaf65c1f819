package sheetsvc

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/jwt"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// ErrNoCredentials is returned when neither a key file nor an inline
// service account is configured.
var ErrNoCredentials = errors.New("sheetsvc: no Google credentials configured")

// Scopes are requested for both the Sheets and the Drive clients.
var Scopes = []string{sheets.SpreadsheetsScope, drive.DriveScope}

// Credentials locate a Google service account: a JSON key file, or the
// client email and private key given inline (environment variables).
type Credentials struct {
	File        string `yaml:"credentials_file"`
	ClientEmail string `yaml:"client_email"`
	PrivateKey  string `yaml:"private_key"`
}

// Configured reports whether c names any credentials.
func (c Credentials) Configured() bool {
	return c.File != "" || (c.ClientEmail != "" && c.PrivateKey != "")
}

// ClientOptions returns the API client options authenticating as c.
func (c Credentials) ClientOptions(ctx context.Context) ([]option.ClientOption, error) {
	conf, err := c.jwtConfig()
	if err != nil {
		return nil, err
	}
	return []option.ClientOption{option.WithTokenSource(conf.TokenSource(ctx))}, nil
}

func (c Credentials) jwtConfig() (*jwt.Config, error) {
	switch {
	case c.File != "":
		data, err := os.ReadFile(c.File)
		if err != nil {
			return nil, fmt.Errorf("sheetsvc: read credentials: %w", err)
		}
		conf, err := google.JWTConfigFromJSON(data, Scopes...)
		if err != nil {
			return nil, fmt.Errorf("sheetsvc: parse credentials: %w", err)
		}
		return conf, nil
	case c.ClientEmail != "" && c.PrivateKey != "":
		return &jwt.Config{
			Email: c.ClientEmail,
			// Keys pasted into env files carry literal \n sequences.
			PrivateKey: []byte(strings.ReplaceAll(c.PrivateKey, `\n`, "\n")),
			Scopes:     Scopes,
			TokenURL:   google.JWTTokenURL,
		}, nil
	}
	return nil, ErrNoCredentials
}
