package ocs

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

const appAPIPath = "/ocs/v1.php/apps/app_api"

// RegisterProvider announces a TaskProcessing provider. Registering an
// existing id updates it.
func (c *Client) RegisterProvider(ctx context.Context, p Provider) error {
	body := map[string]any{"provider": p}
	_, err := c.do(ctx, "register provider", http.MethodPost, appAPIPath+"/api/v1/ai_provider/task_processing", nil, body, nil)
	return err
}

// UnregisterProvider removes a provider. With ignoreMissing a provider the
// service does not know is not an error.
func (c *Client) UnregisterProvider(ctx context.Context, id string, ignoreMissing bool) error {
	q := url.Values{"name": {id}}
	_, err := c.do(ctx, "unregister provider", http.MethodDelete, appAPIPath+"/api/v1/ai_provider/task_processing", q, nil, nil)
	if err != nil && ignoreMissing && IsNotFound(err) {
		return nil
	}
	return err
}

// Log writes a message to the Nextcloud server log.
func (c *Client) Log(ctx context.Context, level LogLevel, msg string) error {
	body := map[string]any{"level": int(level), "message": msg}
	_, err := c.do(ctx, "log", http.MethodPost, appAPIPath+"/api/v1/log", nil, body, nil)
	return err
}

// EnabledState reports whether the app is currently enabled in Nextcloud.
func (c *Client) EnabledState(ctx context.Context) (bool, error) {
	var raw json.RawMessage
	if _, err := c.do(ctx, "enabled state", http.MethodGet, appAPIPath+"/ex-app/state", nil, nil, &raw); err != nil {
		return false, err
	}
	switch strings.TrimSpace(string(raw)) {
	case "1", "true", `"1"`, `"true"`:
		return true, nil
	case "", "0", "false", "null", `"0"`, `"false"`:
		return false, nil
	default:
		return false, &TransportError{Op: "enabled state", StatusCode: http.StatusOK, Message: fmt.Sprintf("unexpected state %s", raw)}
	}
}

// SetInitStatus reports initialization progress (0..100).
func (c *Client) SetInitStatus(ctx context.Context, progress int) error {
	body := map[string]any{"progress": progress}
	_, err := c.do(ctx, "init status", http.MethodPut, appAPIPath+"/ex-app/status", nil, body, nil)
	return err
}
