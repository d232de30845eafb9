// Package kanboard is a Kanboard JSON-RPC client covering the calls the
// bridge needs: tasks, columns, comments and projects.
package kanboard

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/MMOzz/OSTKanBridge/internal/model"
	"github.com/MMOzz/OSTKanBridge/internal/syncerr"
)

// Config configures a Client.
type Config struct {
	URL           string // JSON-RPC endpoint, e.g. https://board.example.com/jsonrpc.php
	User          string // basic auth user, "jsonrpc" for the application token
	Token         string
	CommentUserID int64 // author of comments posted by the bridge; 0 disables comments
	Timeout       time.Duration
	Rate          float64 // requests per second; 0 means unlimited
	Burst         int
	HTTPClient    *http.Client
}

// Client talks to a single Kanboard instance.
type Client struct {
	endpoint      string
	user          string
	token         string
	commentUserID int64
	httpClient    *http.Client
	limiter       *rate.Limiter
	nextID        atomic.Int64
}

// New creates a Client from cfg.
func New(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	user := cfg.User
	if user == "" {
		user = "jsonrpc"
	}
	limit := rate.Inf
	if cfg.Rate > 0 {
		limit = rate.Limit(cfg.Rate)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Client{
		endpoint:      strings.TrimRight(cfg.URL, "/"),
		user:          user,
		token:         cfg.Token,
		commentUserID: cfg.CommentUserID,
		httpClient:    httpClient,
		limiter:       rate.NewLimiter(limit, burst),
	}
}

// CreateTask creates a task in project containerID and returns its id. A
// columnID of 0 leaves the column choice to Kanboard.
func (c *Client) CreateTask(ctx context.Context, containerID int64, title, description string, columnID int64) (int64, error) {
	params := map[string]any{
		"project_id":  containerID,
		"title":       title,
		"description": description,
	}
	if columnID > 0 {
		params["column_id"] = columnID
	}
	var id flexInt
	if err := c.call(ctx, "createTask", params, &id); err != nil {
		return 0, err
	}
	if id == 0 {
		return 0, syncerr.Remotef("kanboard.createTask", "empty result")
	}
	return int64(id), nil
}

// GetTask fetches a task. A task Kanboard does not know is a LookupMiss.
func (c *Client) GetTask(ctx context.Context, taskID int64) (*model.TargetTask, error) {
	var raw *struct {
		ID        flexInt `json:"id"`
		ProjectID flexInt `json:"project_id"`
		ColumnID  flexInt `json:"column_id"`
		Title     string  `json:"title"`
	}
	if err := c.call(ctx, "getTask", map[string]any{"task_id": taskID}, &raw); err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, syncerr.LookupMissf("kanboard.getTask", "task %d not found", taskID)
	}
	return &model.TargetTask{
		ID:          int64(raw.ID),
		ContainerID: int64(raw.ProjectID),
		ColumnID:    int64(raw.ColumnID),
		Title:       raw.Title,
	}, nil
}

// MoveToColumn moves a task to another column of its project.
func (c *Client) MoveToColumn(ctx context.Context, taskID, containerID, columnID int64) error {
	var ok flexBool
	err := c.call(ctx, "moveTaskToColumn", map[string]any{
		"task_id":    taskID,
		"project_id": containerID,
		"column_id":  columnID,
	}, &ok)
	if err != nil {
		return err
	}
	if !ok {
		return syncerr.Remotef("kanboard.moveTaskToColumn", "task %d not moved to column %d", taskID, columnID)
	}
	return nil
}

// AddComment posts a comment on a task as the configured comment author.
func (c *Client) AddComment(ctx context.Context, taskID int64, text string) error {
	if c.commentUserID == 0 {
		return syncerr.LookupMissf("kanboard.createComment", "no comment author configured")
	}
	var id flexInt
	err := c.call(ctx, "createComment", map[string]any{
		"task_id": taskID,
		"user_id": c.commentUserID,
		"content": text,
	}, &id)
	if err != nil {
		return err
	}
	if id == 0 {
		return syncerr.Remotef("kanboard.createComment", "empty result")
	}
	return nil
}

// ListColumns returns the columns of a project in board order.
func (c *Client) ListColumns(ctx context.Context, containerID int64) ([]model.Column, error) {
	var raw []struct {
		ID    flexInt `json:"id"`
		Title string  `json:"title"`
	}
	if err := c.call(ctx, "getColumns", map[string]any{"project_id": containerID}, &raw); err != nil {
		return nil, err
	}
	cols := make([]model.Column, 0, len(raw))
	for _, r := range raw {
		cols = append(cols, model.Column{ID: int64(r.ID), Name: r.Title})
	}
	return cols, nil
}

// ListContainers returns every project visible to the API user.
func (c *Client) ListContainers(ctx context.Context) ([]model.Container, error) {
	var raw []struct {
		ID   flexInt `json:"id"`
		Name string  `json:"name"`
	}
	if err := c.call(ctx, "getAllProjects", nil, &raw); err != nil {
		return nil, err
	}
	out := make([]model.Container, 0, len(raw))
	for _, r := range raw {
		out = append(out, model.Container{ID: int64(r.ID), Name: r.Name})
	}
	return out, nil
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	ID      int64  `json:"id"`
	Params  any    `json:"params,omitempty"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// call performs one JSON-RPC request. Every failure is a syncerr.Remote.
// A null or false result leaves result untouched.
func (c *Client) call(ctx context.Context, method string, params any, result any) error {
	op := "kanboard." + method

	if err := c.limiter.Wait(ctx); err != nil {
		return syncerr.E(syncerr.Remote, op, err)
	}

	data, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		ID:      c.nextID.Add(1),
		Params:  params,
	})
	if err != nil {
		return syncerr.E(syncerr.Remote, op, fmt.Errorf("marshaling request body: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(data))
	if err != nil {
		return syncerr.E(syncerr.Remote, op, fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.user, c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return syncerr.E(syncerr.Remote, op, fmt.Errorf("performing request: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return syncerr.E(syncerr.Remote, op, fmt.Errorf("reading response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return syncerr.Remotef(op, "HTTP %d", resp.StatusCode)
	}

	var rr rpcResponse
	if err := json.Unmarshal(body, &rr); err != nil {
		return syncerr.E(syncerr.Remote, op, fmt.Errorf("decoding response: %w", err))
	}
	if rr.Error != nil {
		return syncerr.Remotef(op, "%s (code %d)", rr.Error.Message, rr.Error.Code)
	}

	switch string(bytes.TrimSpace(rr.Result)) {
	case "", "null", "false":
		return nil
	}
	if result != nil {
		if err := json.Unmarshal(rr.Result, result); err != nil {
			return syncerr.E(syncerr.Remote, op, fmt.Errorf("decoding result: %w", err))
		}
	}
	return nil
}

// flexInt decodes Kanboard ids, which arrive as numbers or numeric strings.
type flexInt int64

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" || s == "false" {
		*f = 0
		return nil
	}
	if s == "true" {
		*f = 1
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid id %s", b)
	}
	*f = flexInt(n)
	return nil
}

// flexBool decodes a boolean result that may also be sent as 0/1.
type flexBool bool

func (f *flexBool) UnmarshalJSON(b []byte) error {
	switch strings.Trim(string(b), `"`) {
	case "true", "1":
		*f = true
	default:
		*f = false
	}
	return nil
}
