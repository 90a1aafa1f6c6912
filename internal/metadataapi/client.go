// Package metadataapi talks to the provider's SOAP metadata endpoint: it
// submits asynchronous retrieve jobs and polls them until the zip archive is
// ready.
package metadataapi

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/beevik/etree"
	"go.uber.org/zap"

	"github.com/xkilldash9x/metagraph/internal/config"
)

// Doer is the part of *http.Client the client needs.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client issues retrieve and checkRetrieveStatus calls for one session.
type Client struct {
	http          Doer
	session       Session
	endpoint      string
	apiVersion    string
	types         []string
	submitTimeout time.Duration
	pollTimeout   time.Duration
	userAgent     string
	log           *zap.Logger
}

// NewClient binds a session to the metadata endpoint derived from it.
func NewClient(httpClient Doer, session Session, cfg config.RemoteConfig, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if err := session.Validate(); err != nil {
		return nil, err
	}
	endpoint, err := session.MetadataURL(cfg.APIVersion)
	if err != nil {
		return nil, err
	}
	types := cfg.MetadataTypes
	if len(types) == 0 {
		types = config.DefaultMetadataTypes
	}

	return &Client{
		http:          httpClient,
		session:       session,
		endpoint:      endpoint,
		apiVersion:    cfg.APIVersion,
		types:         types,
		submitTimeout: cfg.SubmitTimeout,
		pollTimeout:   cfg.PollTimeout,
		userAgent:     cfg.UserAgent,
		log:           logger.Named("metadataapi"),
	}, nil
}

// Endpoint returns the metadata endpoint URL.
func (c *Client) Endpoint() string { return c.endpoint }

// Submit starts an asynchronous retrieve of every configured metadata type.
func (c *Client) Submit(ctx context.Context) (RetrieveHandle, error) {
	body, err := buildRetrieve(c.session.SessionID, c.apiVersion, c.types)
	if err != nil {
		return RetrieveHandle{}, fmt.Errorf("failed to build retrieve request: %w", err)
	}

	result, err := c.call(ctx, "retrieve", body, c.submitTimeout)
	if err != nil {
		return RetrieveHandle{}, err
	}
	h, err := parseHandle(result)
	if err != nil {
		return RetrieveHandle{}, err
	}
	c.log.Info("Retrieve submitted", zap.String("async_id", h.AsyncID), zap.Bool("done", h.Done), zap.Int("types", len(c.types)))
	return h, nil
}

// CheckStatus asks once for the state of a retrieve job.
func (c *Client) CheckStatus(ctx context.Context, asyncID string) (RetrieveStatus, error) {
	body, err := buildCheckStatus(c.session.SessionID, asyncID)
	if err != nil {
		return RetrieveStatus{}, fmt.Errorf("failed to build status request: %w", err)
	}

	result, err := c.call(ctx, "checkRetrieveStatus", body, c.pollTimeout)
	if err != nil {
		var expired *ExpiredResultError
		if errors.As(err, &expired) {
			expired.AsyncID = asyncID
		}
		return RetrieveStatus{}, err
	}
	return parseStatus(result)
}

// call posts one SOAP request and maps the response onto a result element or
// a typed error.
func (c *Client) call(ctx context.Context, action string, payload []byte, timeout time.Duration) (*etree.Element, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create %s request: %w", action, err)
	}
	req.Header.Set("Content-Type", "text/xml; charset=UTF-8")
	req.Header.Set("SOAPAction", action)
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Op: action, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Op: action, Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, &AuthenticationError{Code: "HTTP_401", Message: http.StatusText(resp.StatusCode)}
	}
	if bytes.Contains(data, []byte(expiredLocatorCode)) {
		return nil, &ExpiredResultError{}
	}

	result, perr := parseEnvelope(data)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if perr != nil && isFault(perr) {
			return nil, perr
		}
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: truncate(string(data), 512)}
	}
	if perr != nil {
		return nil, perr
	}
	return result, nil
}

func isFault(err error) bool {
	var (
		fault *RemoteFault
		auth  *AuthenticationError
	)
	return errors.As(err, &fault) && fault.Code != malformedCode || errors.As(err, &auth)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
