// Package auth provides OAuth 2.0 token sources for Google Cloud APIs.
package auth

import (
	"context"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/eocube/eocube/go/skerr"
	"github.com/eocube/eocube/go/sklog"
)

const (
	// Supported OAuth scopes.
	ScopeReadOnly      = "https://www.googleapis.com/auth/devstorage.read_only"
	ScopeReadWrite     = "https://www.googleapis.com/auth/devstorage.read_write"
	ScopeFullControl   = "https://www.googleapis.com/auth/devstorage.full_control"
	ScopePubSub        = "https://www.googleapis.com/auth/pubsub"
	ScopeBigQuery      = "https://www.googleapis.com/auth/bigquery"
	ScopeUserinfoEmail = "https://www.googleapis.com/auth/userinfo.email"
	ScopeAllCloudAPIs  = "https://www.googleapis.com/auth/cloud-platform"
)

// NewDefaultTokenSource creates a new OAuth 2.0 token source with all the
// defaults for the given scopes, using Application Default Credentials. See
// https://developers.google.com/identity/protocols/application-default-credentials
// for details on the lookup order.
func NewDefaultTokenSource(ctx context.Context, scopes ...string) (oauth2.TokenSource, error) {
	ts, err := google.DefaultTokenSource(ctx, scopes...)
	if err != nil {
		return nil, skerr.Wrapf(err, "Failed to get application default token source")
	}
	return ts, nil
}

// NewJWTServiceAccountTokenSource creates a new OAuth 2.0 token source backed
// by the JSON service account key file at keyPath.
func NewJWTServiceAccountTokenSource(ctx context.Context, keyPath string, scopes ...string) (oauth2.TokenSource, error) {
	body, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, skerr.Wrapf(err, "Failed to read service account key file %s", keyPath)
	}
	config, err := google.JWTConfigFromJSON(body, scopes...)
	if err != nil {
		return nil, skerr.Wrapf(err, "Failed to parse service account key file %s", keyPath)
	}
	return config.TokenSource(ctx), nil
}

// NewTokenSource creates a new OAuth 2.0 token source. If keyPath is provided
// then the JSON service account key file it points to is used, otherwise
// Application Default Credentials are used.
func NewTokenSource(ctx context.Context, keyPath string, scopes ...string) (oauth2.TokenSource, error) {
	if keyPath == "" {
		return NewDefaultTokenSource(ctx, scopes...)
	}
	sklog.Infof("Using service account key from %s", keyPath)
	return NewJWTServiceAccountTokenSource(ctx, keyPath, scopes...)
}
