// ABOUTME: Typed client for the index service
// ABOUTME: Wraps conn.Invoke and converts Structs back into index types

package server

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/nainya/codexindex/pkg/index"
	"github.com/nainya/codexindex/pkg/node"
)

// Client calls IndexService over an existing connection
type Client struct {
	conn grpc.ClientConnInterface
}

// NewClient wraps conn
func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

// Call invokes a method with a raw request and returns the raw response
func (c *Client) Call(ctx context.Context, method string, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	if req == nil {
		req = &structpb.Struct{}
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, FullMethod(method), req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) call(ctx context.Context, method string, req, resp any) error {
	in, err := toStruct(req)
	if err != nil {
		return err
	}
	out, err := c.Call(ctx, method, in)
	if err != nil {
		return err
	}
	if resp == nil {
		return nil
	}
	raw, err := protojson.Marshal(out)
	if err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	if err := json.Unmarshal(raw, resp); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	return nil
}

func toStruct(v any) (*structpb.Struct, error) {
	if v == nil {
		return &structpb.Struct{}, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	return structpb.NewStruct(m)
}

// FindResult is the response of every finder
type FindResult struct {
	Results    []*index.Entry `json:"results"`
	TotalCount int            `json:"total_count"`
}

// IndexNode indexes one node
func (c *Client) IndexNode(ctx context.Context, n *node.Node) error {
	return c.call(ctx, "IndexNode", map[string]any{"node": n}, nil)
}

// IndexNodeBatch indexes many nodes in one request
func (c *Client) IndexNodeBatch(ctx context.Context, nodes []*node.Node) (index.BatchStats, error) {
	var stats index.BatchStats
	err := c.call(ctx, "IndexNodeBatch", map[string]any{"nodes": nodes}, &stats)
	return stats, err
}

// RemoveNode removes a node, reporting whether it was indexed
func (c *Client) RemoveNode(ctx context.Context, id string) (bool, error) {
	var resp struct {
		Removed bool `json:"removed"`
	}
	err := c.call(ctx, "RemoveNode", map[string]any{"node_id": id}, &resp)
	return resp.Removed, err
}

// Query evaluates q remotely
func (c *Client) Query(ctx context.Context, q index.Query) (*index.QueryResult, error) {
	var res index.QueryResult
	if err := c.call(ctx, "Query", q, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// FindByTheme calls the theme finder
func (c *Client) FindByTheme(ctx context.Context, theme string) (*FindResult, error) {
	var res FindResult
	err := c.call(ctx, "FindByTheme", map[string]any{"theme": theme}, &res)
	return &res, err
}

// FindByResonancePattern calls the resonance finder
func (c *Client) FindByResonancePattern(ctx context.Context, pattern string, minCoherence, maxDissonance float64) (*FindResult, error) {
	var res FindResult
	err := c.call(ctx, "FindByResonancePattern", map[string]any{
		"pattern":        pattern,
		"min_coherence":  minCoherence,
		"max_dissonance": maxDissonance,
	}, &res)
	return &res, err
}

// FindByFractalDepthRange calls the depth range finder
func (c *Client) FindByFractalDepthRange(ctx context.Context, minDepth, maxDepth int, consciousness string) (*FindResult, error) {
	var res FindResult
	err := c.call(ctx, "FindByFractalDepthRange", map[string]any{
		"min_depth":           minDepth,
		"max_depth":           maxDepth,
		"consciousness_level": consciousness,
	}, &res)
	return &res, err
}

// FindByEpistemicAlignment calls the epistemic finder
func (c *Client) FindByEpistemicAlignment(ctx context.Context, primary, secondary string) (*FindResult, error) {
	var res FindResult
	err := c.call(ctx, "FindByEpistemicAlignment", map[string]any{"primary": primary, "secondary": secondary}, &res)
	return &res, err
}

// RebuildIndexes clears the remote index
func (c *Client) RebuildIndexes(ctx context.Context) (index.RebuildStats, error) {
	var stats index.RebuildStats
	err := c.call(ctx, "RebuildIndexes", nil, &stats)
	return stats, err
}

// Statistics returns the raw statistics document
func (c *Client) Statistics(ctx context.Context) (map[string]any, error) {
	out, err := c.Call(ctx, "GetStatistics", nil)
	if err != nil {
		return nil, err
	}
	return out.AsMap(), nil
}

// Checkpoint asks the server to snapshot and truncate its journal
func (c *Client) Checkpoint(ctx context.Context) (map[string]any, error) {
	out, err := c.Call(ctx, "Checkpoint", nil)
	if err != nil {
		return nil, err
	}
	return out.AsMap(), nil
}
