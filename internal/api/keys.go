package api

import (
	"crypto/subtle"
	"errors"
	"strings"

	"maidlink/internal/config"
)

const (
	apiKeyHeaderDefault = "x-api-key"
	clientKeyUnknown    = "unknown"

	PermAssignBookings     = "bookings:assign"
	PermReadApplications   = "applications:read"
	PermManageApplications = "applications:manage"
	PermReadReports        = "reports:read"
)

var (
	errMissingAPIKey    = errors.New("missing api key")
	errInvalidAPIKey    = errors.New("invalid api key")
	errPermissionDenied = errors.New("permission denied")
)

// keyRing resolves operator API keys and their permissions.
type keyRing struct {
	header  string
	clients []config.APIClientKey
}

func newKeyRing(cfg config.APIAuthConfig) *keyRing {
	header := strings.ToLower(strings.TrimSpace(cfg.HeaderAPIKey))
	if header == "" {
		header = apiKeyHeaderDefault
	}
	return &keyRing{header: header, clients: cfg.APIKeys}
}

// authorize finds the client owning key and checks it holds permission.
// A client with no permissions listed may call everything.
func (k *keyRing) authorize(key, permission string) (config.APIClientKey, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return config.APIClientKey{}, errMissingAPIKey
	}

	var (
		client config.APIClientKey
		found  bool
	)
	for _, c := range k.clients {
		if subtle.ConstantTimeCompare([]byte(c.Key), []byte(key)) == 1 {
			client, found = c, true
		}
	}
	if !found {
		return config.APIClientKey{}, errInvalidAPIKey
	}

	if permission == "" || len(client.Permissions) == 0 {
		return client, nil
	}
	for _, p := range client.Permissions {
		if strings.TrimSpace(p) == permission {
			return client, nil
		}
	}
	return client, errPermissionDenied
}
