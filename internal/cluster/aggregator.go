package cluster

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const maxInflight = 16

// Result is one process's answer.
type Result struct {
	Peer  string
	Value any
}

// Aggregate holds the answers of one broadcast in peer order. Missing lists
// the peers that failed or did not answer in time.
type Aggregate struct {
	Round   string
	Results []Result
	Missing []string
}

// Partial reports whether any peer is missing.
func (a *Aggregate) Partial() bool { return len(a.Missing) > 0 }

// Aggregator broadcasts queries to every peer, the local process included.
type Aggregator struct {
	peers   []Peer
	timeout time.Duration
}

// NewAggregator returns an aggregator asking peers. Each round is bounded by
// timeout.
func NewAggregator(timeout time.Duration, peers ...Peer) *Aggregator {
	return &Aggregator{peers: peers, timeout: timeout}
}

func (a *Aggregator) Peers() []Peer { return a.peers }

// Aggregate evaluates src on every peer. A slow or failing peer contributes
// no result; the call fails only when src does not compile or there are no
// peers.
func (a *Aggregator) Aggregate(ctx context.Context, src string) (*Aggregate, error) {
	if len(a.peers) == 0 {
		return nil, ErrNoPeers
	}
	if _, err := Compile(src); err != nil {
		return nil, err
	}

	req := Request{Round: uuid.NewString(), Query: src}
	answers := make([]*Result, len(a.peers))

	// One deadline covers the whole round, queued peers included.
	rctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	g, gctx := errgroup.WithContext(rctx)
	g.SetLimit(maxInflight)
	for i, p := range a.peers {
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			v, err := p.Eval(gctx, req)
			if err != nil {
				log.Warn().Err(err).Str("peer", p.ID()).Str("round", req.Round).Msg("peer did not answer")
				return nil
			}
			answers[i] = &Result{Peer: p.ID(), Value: v}
			return nil
		})
	}
	_ = g.Wait()

	out := &Aggregate{Round: req.Round}
	for i, r := range answers {
		if r == nil {
			out.Missing = append(out.Missing, a.peers[i].ID())
			continue
		}
		out.Results = append(out.Results, *r)
	}
	return out, nil
}

// Totals are bot-wide counters summed over the processes that answered.
type Totals struct {
	Guilds  int
	Members int
	// Processes is how many peers contributed.
	Processes int
	Missing   []string
}

// Totals sums guild and member counts across the cluster.
func (a *Aggregator) Totals(ctx context.Context) (Totals, error) {
	agg, err := a.Aggregate(ctx, GuildsAndMembers)
	if err != nil {
		return Totals{}, err
	}
	t := Totals{Missing: agg.Missing}
	for _, r := range agg.Results {
		m, ok := r.Value.(map[string]any)
		if !ok {
			log.Warn().Str("peer", r.Peer).Msgf("unexpected totals result %T", r.Value)
			continue
		}
		g, _ := AsInt(m["guilds"])
		n, _ := AsInt(m["members"])
		t.Guilds += g
		t.Members += n
		t.Processes++
	}
	return t, nil
}
