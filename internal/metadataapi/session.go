package metadataapi

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

const soapPathPrefix = "/services/Soap/"

// Session is the opaque credential pair produced by the login collaborator.
type Session struct {
	SessionID string
	ServerURL string
}

// Validate checks that both halves of the session are present.
func (s Session) Validate() error {
	if strings.TrimSpace(s.SessionID) == "" {
		return &AuthenticationError{Code: "INVALID_SESSION_ID", Message: "session id is empty"}
	}
	if strings.TrimSpace(s.ServerURL) == "" {
		return errors.New("server url is empty")
	}
	return nil
}

// MetadataURL derives the metadata endpoint from the session's server URL.
// The partner (c) or enterprise (u) SOAP segment becomes the metadata (m)
// segment, pinned to apiVersion.
func (s Session) MetadataURL(apiVersion string) (string, error) {
	u, err := url.Parse(s.ServerURL)
	if err != nil {
		return "", fmt.Errorf("invalid server url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid server url %q: scheme and host are required", s.ServerURL)
	}

	base := ""
	if i := strings.Index(u.Path, soapPathPrefix); i >= 0 {
		base = u.Path[:i]
	}
	u.Path = base + soapPathPrefix + "m/" + apiVersion
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}
