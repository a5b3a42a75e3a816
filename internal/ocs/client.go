// Package ocs is a client for the Nextcloud OCS endpoints an AppAPI
// external app uses: TaskProcessing provider calls, provider registration,
// remote logging and app state.
package ocs

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// AppAPI request headers.
const (
	HeaderAuth       = "AUTHORIZATION-APP-API"
	HeaderAppID      = "EX-APP-ID"
	HeaderAppVersion = "EX-APP-VERSION"
	HeaderAAVersion  = "AA-VERSION"
	HeaderOCSRequest = "OCS-APIRequest"

	aaVersion = "2.3.0"
)

// Options configure a Client.
type Options struct {
	BaseURL    string
	AppID      string
	AppVersion string
	Secret     string
	// User is sent in the auth header; empty for app-level calls.
	User        string
	Timeout     time.Duration
	TLSInsecure bool
	// TempDir receives downloaded task files; empty means os.TempDir.
	TempDir string
	// HTTPClient overrides the transport entirely (tests).
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// Client talks to one Nextcloud instance.
type Client struct {
	base       *url.URL
	http       *http.Client
	appID      string
	appVersion string
	auth       string
	tempDir    string
	logger     zerolog.Logger
}

// New validates opts and builds a Client.
func New(opts Options) (*Client, error) {
	raw := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if raw == "" {
		return nil, errors.New("ocs: base url is required")
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("ocs: parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("ocs: base url must be http or https, got %q", raw)
	}
	if opts.AppID == "" {
		return nil, errors.New("ocs: app id is required")
	}
	hc := opts.HTTPClient
	if hc == nil {
		tr := http.DefaultTransport.(*http.Transport).Clone()
		if opts.TLSInsecure {
			tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
		}
		hc = &http.Client{Transport: tr, Timeout: opts.Timeout}
	}
	return &Client{
		base:       base,
		http:       hc,
		appID:      opts.AppID,
		appVersion: opts.AppVersion,
		auth:       EncodeAuth(opts.User, opts.Secret),
		tempDir:    opts.TempDir,
		logger:     opts.Logger.With().Str("component", "ocs").Logger(),
	}, nil
}

// EncodeAuth builds the AUTHORIZATION-APP-API header value.
func EncodeAuth(user, secret string) string {
	return base64.StdEncoding.EncodeToString([]byte(user + ":" + secret))
}

// DecodeAuth splits an AUTHORIZATION-APP-API header value into user and secret.
func DecodeAuth(v string) (user, secret string, err error) {
	b, err := base64.StdEncoding.DecodeString(strings.TrimSpace(v))
	if err != nil {
		return "", "", fmt.Errorf("ocs: malformed auth header: %w", err)
	}
	user, secret, ok := strings.Cut(string(b), ":")
	if !ok {
		return "", "", errors.New("ocs: malformed auth header: missing separator")
	}
	return user, secret, nil
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body any) (*http.Request, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("ocs: encode body: %w", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, query), rd)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(HeaderOCSRequest, "true")
	req.Header.Set(HeaderAAVersion, aaVersion)
	req.Header.Set(HeaderAppID, c.appID)
	req.Header.Set(HeaderAppVersion, c.appVersion)
	req.Header.Set(HeaderAuth, c.auth)
	return req, nil
}

// send performs the request and classifies failures. The caller owns the
// body of a successful response.
func (c *Client) send(op string, req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		msg := err.Error()
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			msg = "timeout: " + msg
		}
		return nil, &TransportError{Op: op, Message: msg, Err: err}
	}
	c.logger.Debug().Str("op", op).Str("method", req.Method).Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).Msg("ocs request")
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		te := &TransportError{Op: op, StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var env envelope
		if json.Unmarshal(b, &env) == nil && env.OCS.Meta.StatusCode != 0 {
			te.OCSCode = env.OCS.Meta.StatusCode
			if env.OCS.Meta.Message != "" {
				te.Message = env.OCS.Meta.Message
			}
		}
		return nil, te
	}
	return resp, nil
}

// do sends a JSON request and decodes ocs.data into out (when non-nil).
// It returns false when the response had no content.
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body, out any) (bool, error) {
	req, err := c.newRequest(ctx, method, path, query, body)
	if err != nil {
		return false, err
	}
	resp, err := c.send(op, req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNoContent {
		return false, nil
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, &TransportError{Op: op, StatusCode: resp.StatusCode, Message: "read body: " + err.Error(), Err: err}
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return false, nil
	}
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return false, &TransportError{Op: op, StatusCode: resp.StatusCode, Message: "decode envelope: " + err.Error(), Err: err}
	}
	if code := env.OCS.Meta.StatusCode; code >= StatusServerError && code <= StatusUnknownError {
		return false, &TransportError{Op: op, StatusCode: resp.StatusCode, OCSCode: code, Message: env.OCS.Meta.Message}
	}
	if out == nil || len(env.OCS.Data) == 0 || string(env.OCS.Data) == "null" {
		return true, nil
	}
	if err := json.Unmarshal(env.OCS.Data, out); err != nil {
		return false, &TransportError{Op: op, StatusCode: resp.StatusCode, Message: "decode data: " + err.Error(), Err: err}
	}
	return true, nil
}
