package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-resident/core"
)

const (
	ResolvePath             = "/identity/v0/resolve"
	ProfilePath             = "/identity/v0/my/profile"
	defaultRequestTimeout   = 10 * time.Second
	maxProfileResponseBytes = 1 << 20 // 1 MiB
)

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type ClientConfig struct {
	BaseURL        string
	HTTPClient     HTTPDoer
	RequestTimeout time.Duration
}

// ProfileClient talks to the remote profile API. It keeps no state beyond
// its configuration.
type ProfileClient struct {
	baseURL        string
	httpClient     HTTPDoer
	requestTimeout time.Duration
}

func NewProfileClient(cfg ClientConfig) (*ProfileClient, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	parsed, err := url.Parse(base)
	if base == "" || err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, goerrors.New(fmt.Sprintf("identity: profile base url %q is invalid", cfg.BaseURL), goerrors.CategoryBadInput).
			WithTextCode(core.ErrorBadInput)
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultRequestTimeout}
	}
	requestTimeout := cfg.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = defaultRequestTimeout
	}
	return &ProfileClient{
		baseURL:        base,
		httpClient:     httpClient,
		requestTimeout: requestTimeout,
	}, nil
}

// NewProfileClientFromConfig builds a client from the profile section of cfg.
func NewProfileClientFromConfig(cfg core.Config, httpClient HTTPDoer) (*ProfileClient, error) {
	return NewProfileClient(ClientConfig{
		BaseURL:        cfg.Profile.BaseURL,
		HTTPClient:     httpClient,
		RequestTimeout: cfg.Profile.Timeout(),
	})
}

func (c *ProfileClient) Resolve(ctx context.Context, token string) (core.Profile, error) {
	profile, err := c.do(ctx, http.MethodGet, ResolvePath, token, nil)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return core.Profile{}, nil
	}
	return profile, nil
}

func (c *ProfileClient) Save(ctx context.Context, token string, partial core.Profile) (core.Profile, error) {
	body, err := json.Marshal(map[string]any{"data": partial.Compact()})
	if err != nil {
		return nil, core.NewValidationError(fmt.Errorf("identity: encode profile: %w", err), http.StatusBadRequest)
	}
	return c.do(ctx, http.MethodPatch, ProfilePath, token, body)
}

func (c *ProfileClient) do(ctx context.Context, method string, path string, token string, body []byte) (core.Profile, error) {
	if c == nil {
		return nil, core.NewUnavailableError(errors.New("identity: profile client is not configured"), 0)
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, core.NewUnauthenticatedError()
	}
	if ctx == nil {
		ctx = context.Background()
	}
	requestCtx := ctx
	cancel := func() {}
	if c.requestTimeout > 0 {
		requestCtx, cancel = context.WithTimeout(ctx, c.requestTimeout)
	}
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(requestCtx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, core.NewUnavailableError(err, 0)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, core.NewUnavailableError(fmt.Errorf("identity: %s %s: %w", method, path, err), 0)
	}
	defer res.Body.Close()
	payload, readErr := io.ReadAll(io.LimitReader(res.Body, maxProfileResponseBytes+1))
	if readErr != nil {
		return nil, core.NewUnavailableError(fmt.Errorf("identity: read profile response: %w", readErr), 0)
	}
	if int64(len(payload)) > maxProfileResponseBytes {
		return nil, core.NewUnavailableError(fmt.Errorf("identity: profile response exceeds %d bytes", maxProfileResponseBytes), 0)
	}
	if res.StatusCode < http.StatusOK || res.StatusCode >= http.StatusMultipleChoices {
		return nil, statusError(res.StatusCode, payload)
	}
	if res.StatusCode == http.StatusNoContent || len(bytes.TrimSpace(payload)) == 0 {
		return nil, nil
	}
	profile, err := decodeProfile(payload)
	if err != nil {
		return nil, core.NewUnavailableError(err, http.StatusBadGateway)
	}
	return profile, nil
}

func statusError(status int, payload []byte) error {
	cause := fmt.Errorf("identity: profile endpoint returned status %d", status)
	if message := remoteMessage(payload); message != "" {
		cause = fmt.Errorf("%w: %s", cause, message)
	}
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return core.NewUnauthorizedError(cause, status)
	case http.StatusBadRequest, http.StatusConflict, http.StatusUnprocessableEntity:
		return core.NewValidationError(cause, status, fieldErrors(payload)...)
	default:
		return core.NewUnavailableError(cause, status)
	}
}

var envelopeKeys = map[string]struct{}{"data": {}, "meta": {}, "links": {}}

// decodeProfile accepts a bare profile object or one wrapped in a top-level
// "data" envelope. A document is an envelope only when every key is an
// envelope key, so a profile with its own "data" field is left intact.
func decodeProfile(payload []byte) (core.Profile, error) {
	var document map[string]json.RawMessage
	if err := json.Unmarshal(payload, &document); err != nil {
		return nil, fmt.Errorf("identity: decode profile response: %w", err)
	}
	if raw, ok := document["data"]; ok && isEnvelope(document) {
		trimmed := bytes.TrimSpace(raw)
		if len(trimmed) > 0 && trimmed[0] == '{' {
			payload = trimmed
		} else if bytes.Equal(trimmed, []byte("null")) {
			return core.Profile{}, nil
		}
	}
	var profile core.Profile
	if err := json.Unmarshal(payload, &profile); err != nil {
		return nil, fmt.Errorf("identity: decode profile response: %w", err)
	}
	if profile == nil {
		profile = core.Profile{}
	}
	return profile, nil
}

func isEnvelope(document map[string]json.RawMessage) bool {
	for key := range document {
		if _, ok := envelopeKeys[key]; !ok {
			return false
		}
	}
	return true
}

type remoteError struct {
	Message string `json:"message"`
	Error   any    `json:"error"`
	Errors  []struct {
		Field   string `json:"field"`
		Message string `json:"message"`
	} `json:"errors"`
	ValidationErrors []struct {
		Field   string `json:"field"`
		Message string `json:"message"`
	} `json:"validation_errors"`
}

func decodeRemoteError(payload []byte) (remoteError, bool) {
	var out remoteError
	if len(bytes.TrimSpace(payload)) == 0 {
		return out, false
	}
	if err := json.Unmarshal(payload, &out); err != nil {
		return out, false
	}
	return out, true
}

func remoteMessage(payload []byte) string {
	decoded, ok := decodeRemoteError(payload)
	if !ok {
		return ""
	}
	if message := strings.TrimSpace(decoded.Message); message != "" {
		return message
	}
	switch typed := decoded.Error.(type) {
	case string:
		return strings.TrimSpace(typed)
	case map[string]any:
		if message, ok := typed["message"].(string); ok {
			return strings.TrimSpace(message)
		}
	}
	return ""
}

func fieldErrors(payload []byte) []goerrors.FieldError {
	decoded, ok := decodeRemoteError(payload)
	if !ok {
		return nil
	}
	var out []goerrors.FieldError
	for _, item := range decoded.Errors {
		if field := strings.TrimSpace(item.Field); field != "" {
			out = append(out, goerrors.FieldError{Field: field, Message: strings.TrimSpace(item.Message)})
		}
	}
	for _, item := range decoded.ValidationErrors {
		if field := strings.TrimSpace(item.Field); field != "" {
			out = append(out, goerrors.FieldError{Field: field, Message: strings.TrimSpace(item.Message)})
		}
	}
	return out
}
