package counterstore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"imagegate/internal/models"
	"imagegate/internal/ratelimit"
)

// maxResponseBytes caps how much of a REST reply is read.
const maxResponseBytes = 64 << 10

// RESTStore talks to an Upstash-compatible REST endpoint. Each command is a
// GET to <url>/<COMMAND>/<arg>/... with a bearer token, answered with
// {"result": ...} or {"error": "..."}.
//
// A RESTStore built without a URL or token is still usable as a value; every
// command then fails with ratelimit.ErrConfigurationMissing.
type RESTStore struct {
	baseURL   string
	token     string
	userAgent string
	client    *http.Client
}

type restReply struct {
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

func NewRESTStore(cfg models.RESTStoreConfig, opts ...Option) *RESTStore {
	o := buildOptions(opts)

	client := o.httpClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	return &RESTStore{
		baseURL:   strings.TrimRight(cfg.URL, "/"),
		token:     cfg.Token,
		client:    client,
		userAgent: o.userAgent,
	}
}

func (s *RESTStore) Incr(ctx context.Context, key string) (int64, error) {
	var n int64
	if err := s.command(ctx, &n, "INCR", key); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *RESTStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	// The result is 0 when the key does not exist, which is not a failure.
	var applied int64
	return s.command(ctx, &applied, "EXPIRE", key, strconv.FormatInt(ttlSeconds(ttl), 10))
}

func (s *RESTStore) Ping(ctx context.Context) error {
	var pong string
	return s.command(ctx, &pong, "PING")
}

func (s *RESTStore) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

func (s *RESTStore) command(ctx context.Context, out interface{}, cmd string, args ...string) error {
	if s.baseURL == "" || s.token == "" {
		return fmt.Errorf("rest store %s: %w", cmd, ratelimit.ErrConfigurationMissing)
	}

	key := ""
	if len(args) > 0 {
		key = args[0]
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.commandURL(cmd, args), nil)
	if err != nil {
		return &StoreError{Op: cmd, Key: key, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return &StoreError{Op: cmd, Key: key, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &StoreError{Op: cmd, Key: key, StatusCode: resp.StatusCode, Err: err}
	}

	var reply restReply
	decodeErr := json.Unmarshal(body, &reply)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := fmt.Sprintf("store error (%d)", resp.StatusCode)
		if decodeErr == nil && reply.Error != "" {
			msg = reply.Error
		}
		return &StoreError{Op: cmd, Key: key, StatusCode: resp.StatusCode, Message: msg}
	}

	if decodeErr != nil {
		return &StoreError{Op: cmd, Key: key, StatusCode: resp.StatusCode, Message: "invalid response", Err: decodeErr}
	}
	if reply.Error != "" {
		return &StoreError{Op: cmd, Key: key, StatusCode: resp.StatusCode, Message: reply.Error}
	}
	if len(reply.Result) == 0 || string(reply.Result) == "null" {
		return &StoreError{Op: cmd, Key: key, StatusCode: resp.StatusCode, Message: "missing result"}
	}
	if err := json.Unmarshal(reply.Result, out); err != nil {
		return &StoreError{Op: cmd, Key: key, StatusCode: resp.StatusCode, Message: "unexpected result", Err: err}
	}

	return nil
}

func (s *RESTStore) commandURL(cmd string, args []string) string {
	var b strings.Builder
	b.WriteString(s.baseURL)
	b.WriteByte('/')
	b.WriteString(cmd)
	for _, arg := range args {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(arg))
	}
	return b.String()
}
