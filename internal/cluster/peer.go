package cluster

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

const (
	evalPath    = "/cluster/eval"
	tokenHeader = "X-Cluster-Token"
)

// Request is one broadcast query.
type Request struct {
	Round string `json:"round"`
	Query string `json:"query"`
}

type evalResponse struct {
	Cluster string `json:"cluster"`
	Value   any    `json:"value,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Peer is one process that can answer a query.
type Peer interface {
	ID() string
	Eval(ctx context.Context, req Request) (any, error)
}

// LocalPeer answers from this process's own state.
type LocalPeer struct {
	id    string
	state func() Snapshot
	cache queryCache
}

// NewLocalPeer returns the peer for this process. state is called once per
// query.
func NewLocalPeer(clusterID int, state func() Snapshot) *LocalPeer {
	return &LocalPeer{id: strconv.Itoa(clusterID), state: state}
}

func (p *LocalPeer) ID() string { return p.id }

func (p *LocalPeer) Eval(ctx context.Context, req Request) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q, err := p.cache.get(req.Query)
	if err != nil {
		return nil, err
	}
	return q.Eval(p.state())
}

// HTTPPeer forwards queries to another process's cluster server.
type HTTPPeer struct {
	id     string
	url    string
	token  string
	client *http.Client
}

// NewHTTPPeer returns a peer for the server at baseURL.
func NewHTTPPeer(id, baseURL, token string) *HTTPPeer {
	return &HTTPPeer{
		id:     id,
		url:    baseURL + evalPath,
		token:  token,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (p *HTTPPeer) ID() string { return p.id }

func (p *HTTPPeer) Eval(ctx context.Context, req Request) (any, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	hreq.Header.Set("Content-Type", "application/json")
	if p.token != "" {
		hreq.Header.Set(tokenHeader, p.token)
	}

	resp, err := p.client.Do(hreq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out evalResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("peer %s: http %d: %w", p.id, resp.StatusCode, err)
	}
	if resp.StatusCode >= 300 || out.Error != "" {
		return nil, fmt.Errorf("peer %s: http %d: %s", p.id, resp.StatusCode, out.Error)
	}
	return out.Value, nil
}
