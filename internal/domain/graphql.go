package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"confetti/internal/stream"
)

// Operation is a named GraphQL query or mutation.
type Operation struct {
	Name      string
	Document  string
	Variables map[string]any
	// RootFields lists the top-level fields the document selects. The normalized
	// cache reads a query back by resolving these fields from the root record.
	RootFields []string
	Mutation   bool
}

// Key identifies the operation for request sharing: name plus canonical variables.
func (op Operation) Key() string {
	if len(op.Variables) == 0 {
		return op.Name
	}
	names := make([]string, 0, len(op.Variables))
	for k := range op.Variables {
		names = append(names, k)
	}
	sort.Strings(names)
	var b strings.Builder
	b.WriteString(op.Name)
	for _, k := range names {
		v, _ := json.Marshal(op.Variables[k])
		fmt.Fprintf(&b, "|%s=%s", k, v)
	}
	return b.String()
}

// GraphQLError is one entry of a response's top-level "errors" array.
type GraphQLError struct {
	Message    string         `json:"message"`
	Path       []any          `json:"path,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

// Response is a decoded GraphQL response.
type Response struct {
	Data   json.RawMessage `json:"data"`
	Errors []GraphQLError  `json:"errors,omitempty"`
	// FromCache is set on responses read back from the normalized cache.
	FromCache bool `json:"-"`
}

// HasData reports whether the response carries a non-null data object.
func (r *Response) HasData() bool {
	return r != nil && len(r.Data) > 0 && string(r.Data) != "null"
}

// FetchPolicy selects how a query combines the cache and the network.
type FetchPolicy int

const (
	// FetchCacheFirst answers from the cache and goes to the network only on a miss.
	FetchCacheFirst FetchPolicy = iota
	// FetchCacheOnly never goes to the network.
	FetchCacheOnly
	// FetchNetworkOnly always goes to the network and writes the result to the cache.
	FetchNetworkOnly
	// FetchCacheAndNetwork emits the cached value if present, then the network value.
	FetchCacheAndNetwork
)

func (p FetchPolicy) String() string {
	switch p {
	case FetchCacheFirst:
		return "cache_first"
	case FetchCacheOnly:
		return "cache_only"
	case FetchNetworkOnly:
		return "network_only"
	case FetchCacheAndNetwork:
		return "cache_and_network"
	default:
		return fmt.Sprintf("fetch_policy(%d)", int(p))
	}
}

// Transport executes one operation against the remote GraphQL endpoint.
type Transport interface {
	Execute(ctx context.Context, op Operation) (*Response, error)
}

// QueryWatcher is the client surface repositories build on.
type QueryWatcher interface {
	// Query executes op once under policy.
	Query(ctx context.Context, op Operation, policy FetchPolicy) (*Response, error)
	// Watch returns a live sequence of responses for op.
	Watch(ctx context.Context, op Operation, policy FetchPolicy) *stream.Subscription[*Response]
	// Mutate executes a mutation on the network and writes its result through the cache.
	Mutate(ctx context.Context, op Operation) (*Response, error)
}
