package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"seqsync/internal/model"
)

// APIError surfaces non-2xx responses from the server.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

//nolint:errorlint
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

var ErrNotFound = errors.New("not found")

type Object struct {
	Seqno     uint64             `json:"seqno"`
	CreatedAt uint64             `json:"createdAt"`
	Fields    []model.FieldEntry `json:"fields"`
}

type Pending struct {
	model.FieldEntry
	Stuck bool `json:"stuck"`
}

type State struct {
	Backend struct {
		NextSeqno uint64            `json:"nextSeqno"`
		Objects   map[string]Object `json:"objects"`
	} `json:"backend"`
	Client struct {
		ReplicaID    string            `json:"replicaId"`
		StartedSeqno uint64            `json:"startedSeqno"`
		NextSeqno    uint64            `json:"nextSeqno"`
		Objects      map[string]Object `json:"objects"`
		Pending      []Pending         `json:"pending"`
	} `json:"client"`
}

type Outcome struct {
	Command   string            `json:"command"`
	Entry     *model.FieldEntry `json:"entry"`
	Fetched   []string          `json:"fetched"`
	Applied   int               `json:"applied"`
	Stuck     int               `json:"stuck"`
	Discarded int               `json:"discarded"`
}

type CommandResult struct {
	Dispatched bool     `json:"dispatched"`
	Outcome    *Outcome `json:"outcome"`
	State      *State   `json:"state"`
}

type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// Put writes one field through the structured endpoint.
func (c *Client) Put(ctx context.Context, namespace, key, value string) (CommandResult, error) {
	body, err := json.Marshal(map[string]string{"value": value})
	if err != nil {
		return CommandResult{}, err
	}
	var res CommandResult
	err = c.do(ctx, http.MethodPut, "/v1/objects/"+namespace+"/"+key, "application/json", body, &res)
	return res, err
}

// Submit sends one raw "namespace/key=value" entry.
func (c *Client) Submit(ctx context.Context, raw string) (CommandResult, error) {
	var res CommandResult
	err := c.do(ctx, http.MethodPost, "/v1/entries", "text/plain", []byte(raw), &res)
	return res, err
}

// Command runs jump, pull, fetch or apply.
func (c *Client) Command(ctx context.Context, name string) (CommandResult, error) {
	var res CommandResult
	err := c.do(ctx, http.MethodPost, "/v1/commands/"+name, "", nil, &res)
	return res, err
}

func (c *Client) State(ctx context.Context) (State, error) {
	var s State
	err := c.do(ctx, http.MethodGet, "/v1/state", "", nil, &s)
	return s, err
}

func (c *Client) Log(ctx context.Context, since uint64) ([]model.FieldEntry, error) {
	var entries []model.FieldEntry
	err := c.do(ctx, http.MethodGet, "/v1/log?since="+strconv.FormatUint(since, 10), "", nil, &entries)
	return entries, err
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return newAPIError(resp.StatusCode, data)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func newAPIError(status int, body []byte) error {
	return &APIError{StatusCode: status, Body: string(body)}
}
