package ocs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
)

const tasksProviderPath = "/ocs/v2.php/taskprocessing/tasks_provider"

// NextTask asks for the next scheduled task for any of providerIDs and
// taskTypes. It returns nil, nil when nothing is queued.
func (c *Client) NextTask(ctx context.Context, providerIDs, taskTypes []string) (*NextTask, error) {
	q := url.Values{}
	for _, id := range providerIDs {
		q.Add("providerIds[]", id)
	}
	for _, t := range taskTypes {
		q.Add("taskTypeIds[]", t)
	}
	var raw json.RawMessage
	ok, err := c.do(ctx, "next task", http.MethodGet, tasksProviderPath+"/next", q, nil, &raw)
	if err != nil || !ok {
		return nil, err
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil, nil
	}
	var payload struct {
		Task     *Task       `json:"task"`
		Provider ProviderRef `json:"provider"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, &TransportError{Op: "next task", StatusCode: http.StatusOK, Message: "decode task: " + err.Error(), Err: err}
	}
	if payload.Task == nil {
		return nil, nil
	}
	return &NextTask{Task: *payload.Task, Provider: payload.Provider}, nil
}

// ReportResult finishes a task. A non-empty errMsg marks it failed; output
// is then usually nil.
func (c *Client) ReportResult(ctx context.Context, taskID int64, output map[string]any, errMsg string) error {
	body := map[string]any{"taskId": taskID, "output": output}
	if errMsg != "" {
		body["errorMessage"] = errMsg
	}
	_, err := c.do(ctx, "report result", http.MethodPost, fmt.Sprintf("%s/%d/result", tasksProviderPath, taskID), nil, body, nil)
	return err
}

// SetProgress reports progress as a percentage in [0, 100]. The service
// expects a fraction, so the value is divided by 100 on the wire.
func (c *Client) SetProgress(ctx context.Context, taskID int64, percent float64) error {
	body := map[string]any{"taskId": taskID, "progress": percent / 100.0}
	_, err := c.do(ctx, "set progress", http.MethodPost, fmt.Sprintf("%s/%d/progress", tasksProviderPath, taskID), nil, body, nil)
	return err
}

// FetchFile downloads a task input file into a new temporary file and
// returns its path. The caller removes it.
func (c *Client) FetchFile(ctx context.Context, taskID, fileID int64) (string, error) {
	const op = "fetch file"
	path := fmt.Sprintf("%s/%d/file/%d", tasksProviderPath, taskID, fileID)
	req, err := c.newRequest(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "*/*")
	resp, err := c.send(op, req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	f, err := os.CreateTemp(c.tempDir, "stt-task-"+strconv.FormatInt(taskID, 10)+"-*")
	if err != nil {
		return "", fmt.Errorf("ocs: create temp file: %w", err)
	}
	n, copyErr := io.Copy(f, resp.Body)
	closeErr := f.Close()
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(f.Name())
		if copyErr != nil {
			return "", &TransportError{Op: op, StatusCode: resp.StatusCode, Message: "download: " + copyErr.Error(), Err: copyErr}
		}
		return "", fmt.Errorf("ocs: close temp file: %w", closeErr)
	}
	c.logger.Debug().Int64("task", taskID).Int64("file", fileID).Int64("bytes", n).Str("path", f.Name()).Msg("task file downloaded")
	return f.Name(), nil
}
