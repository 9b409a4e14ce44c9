package solr

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/juju/clock"

	"github.com/rowjay/solr-backups/internal/util"
	"github.com/rowjay/solr-backups/internal/version"
)

const (
	collectionsPath = "/solr/admin/collections"
	maxResponseSize = 8 << 20
)

type Options struct {
	Host       string
	Username   string
	Password   string
	Timeout    time.Duration
	Retries    int           // attempts for idempotent calls; submissions are never repeated
	RetryDelay time.Duration // first delay between idempotent attempts
	Insecure   bool
	Clock      clock.Clock
	HTTPClient *http.Client
}

// Client talks to the Solr Collections API.
type Client struct {
	baseURL    string
	http       *http.Client
	username   string
	password   string
	retries    int
	retryDelay time.Duration
	clock      clock.Clock
}

func New(opts Options) (*Client, error) {
	base, err := NormalizeHost(opts.Host)
	if err != nil {
		return nil, err
	}
	hc := opts.HTTPClient
	if hc == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		if opts.Insecure {
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		}
		hc = &http.Client{Timeout: opts.Timeout, Transport: transport}
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.WallClock
	}
	delay := opts.RetryDelay
	if delay <= 0 {
		delay = time.Second
	}
	return &Client{
		baseURL:    base,
		http:       hc,
		username:   opts.Username,
		password:   opts.Password,
		retries:    opts.Retries,
		retryDelay: delay,
		clock:      clk,
	}, nil
}

// BaseURL returns the normalized cluster URL.
func (c *Client) BaseURL() string { return c.baseURL }

// ClusterStatus reports the collections and live nodes of the cluster.
func (c *Client) ClusterStatus(ctx context.Context) (ClusterState, error) {
	var env envelope
	if err := c.get(ctx, ActionClusterStatus, nil, &env); err != nil {
		return ClusterState{}, err
	}
	if env.Cluster == nil {
		return ClusterState{}, &Error{Action: ActionClusterStatus, StatusCode: http.StatusOK, Msg: "response has no cluster section"}
	}
	names := make([]string, 0, len(env.Cluster.Collections))
	for name := range env.Cluster.Collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return ClusterState{Collections: names, LiveNodes: env.Cluster.LiveNodes}, nil
}

// Collections lists every collection in the cluster, sorted by name.
func (c *Client) Collections(ctx context.Context) ([]string, error) {
	state, err := c.ClusterStatus(ctx)
	if err != nil {
		return nil, err
	}
	return state.Collections, nil
}

// Submit starts an async BACKUP or RESTORE. It is sent exactly once; the
// caller decides whether a failed submission is retried under a new name.
func (c *Client) Submit(ctx context.Context, req AsyncRequest) error {
	if req.Action != ActionBackup && req.Action != ActionRestore {
		return fmt.Errorf("unsupported async action %q", req.Action)
	}
	if req.Collection == "" || req.Name == "" || req.RequestID == "" {
		return errors.New("collection, name and request id are required")
	}
	params := url.Values{}
	params.Set("collection", req.Collection)
	params.Set("name", req.Name)
	params.Set("async", req.RequestID)
	if req.Location != "" {
		params.Set("location", req.Location)
	}
	if req.Repository != "" {
		params.Set("repository", req.Repository)
	}
	var env envelope
	return c.do(ctx, http.MethodPost, req.Action, params, &env)
}

// RequestStatus polls an async request.
func (c *Client) RequestStatus(ctx context.Context, requestID string) (Status, error) {
	params := url.Values{}
	params.Set("requestid", requestID)
	var env envelope
	if err := c.get(ctx, ActionRequestStatus, params, &env); err != nil {
		return Status{}, err
	}
	var body statusBody
	if len(env.Status) == 0 || json.Unmarshal(env.Status, &body) != nil || body.State == "" {
		return Status{}, &Error{Action: ActionRequestStatus, StatusCode: http.StatusOK, Msg: "response has no status section"}
	}
	st := Status{
		RequestID: requestID,
		State:     State(strings.ToLower(body.State)),
		Msg:       body.Msg,
	}
	if st.State == StateFailed && env.Exception != nil && env.Exception.Msg != "" {
		st.Msg = env.Exception.Msg
	}
	return st, nil
}

// DeleteStatus clears a stored async result so its id can be reused. It is
// cleanup and is sent once.
func (c *Client) DeleteStatus(ctx context.Context, requestID string) error {
	params := url.Values{}
	params.Set("requestid", requestID)
	var env envelope
	return c.do(ctx, http.MethodGet, ActionDeleteStatus, params, &env)
}

func (c *Client) get(ctx context.Context, action Action, params url.Values, out *envelope) error {
	return util.Retry(ctx, c.clock, c.retries, c.retryDelay, IsTransient, func() error {
		return c.do(ctx, http.MethodGet, action, params, out)
	})
}

func (c *Client) do(ctx context.Context, method string, action Action, params url.Values, out *envelope) error {
	query := url.Values{}
	for k, v := range params {
		query[k] = v
	}
	query.Set("action", string(action))
	query.Set("wt", "json")

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+collectionsPath+"?"+query.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "solr-backups/"+version.Version)
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return &Error{Action: action, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return &Error{Action: action, StatusCode: resp.StatusCode, Err: err}
	}

	var env envelope
	decErr := json.Unmarshal(body, &env)
	if resp.StatusCode >= 300 || env.Error != nil || (decErr == nil && env.ResponseHeader.Status != 0) {
		e := &Error{Action: action, StatusCode: resp.StatusCode}
		switch {
		case env.Error != nil && env.Error.Msg != "":
			e.Msg = env.Error.Msg
		case decErr != nil:
			e.Msg = snippet(body)
		case env.ResponseHeader.Status != 0:
			e.Msg = fmt.Sprintf("response status %d", env.ResponseHeader.Status)
		}
		return e
	}
	if decErr != nil {
		return &Error{Action: action, StatusCode: resp.StatusCode, Msg: "decode response: " + decErr.Error()}
	}
	*out = env
	return nil
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
