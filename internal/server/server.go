// ABOUTME: gRPC handlers exposing the durable index engine
// ABOUTME: Requests and responses are JSON-shaped Structs decoded into index and node types

package server

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/nainya/codexindex/internal/logger"
	"github.com/nainya/codexindex/internal/metrics"
	"github.com/nainya/codexindex/pkg/engine"
	"github.com/nainya/codexindex/pkg/index"
	"github.com/nainya/codexindex/pkg/node"
)

type indexNodeRequest struct {
	Node *node.Node `json:"node" validate:"required"`
}

type indexBatchRequest struct {
	Nodes []*node.Node `json:"nodes" validate:"required,min=1"`
}

type removeNodeRequest struct {
	NodeID string `json:"node_id" validate:"required"`
}

type themeRequest struct {
	Theme string `json:"theme" validate:"required"`
}

type resonanceRequest struct {
	Pattern       string   `json:"pattern" validate:"required"`
	MinCoherence  *float64 `json:"min_coherence" validate:"omitempty,gte=0,lte=1"`
	MaxDissonance *float64 `json:"max_dissonance" validate:"omitempty,gte=0,lte=1"`
}

type depthRangeRequest struct {
	MinDepth           int    `json:"min_depth" validate:"gte=0"`
	MaxDepth           int    `json:"max_depth" validate:"gtefield=MinDepth"`
	ConsciousnessLevel string `json:"consciousness_level,omitempty"`
}

type epistemicRequest struct {
	Primary   string `json:"primary" validate:"required"`
	Secondary string `json:"secondary,omitempty"`
}

type entriesResponse struct {
	Results    []*index.Entry `json:"results"`
	TotalCount int            `json:"total_count"`
}

type statisticsResponse struct {
	Index      index.Statistics `json:"index"`
	Durability engine.Status    `json:"durability"`
}

// Server implements IndexServiceServer on top of an engine
type Server struct {
	engine *engine.Engine
	log    *logger.Logger
}

// NewServer wraps an open engine
func NewServer(e *engine.Engine, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Nop()
	}
	return &Server{engine: e, log: log.Component("server")}
}

// Engine returns the wrapped engine
func (s *Server) Engine() *engine.Engine {
	return s.engine
}

// Ready reports whether the server can accept requests
func (s *Server) Ready() error {
	if s.engine.Closed() {
		return engine.ErrClosed
	}
	return nil
}

// GRPCOptions configures NewGRPCServer
type GRPCOptions struct {
	Reflection      bool
	MaxRecvMsgBytes int
}

// NewGRPCServer builds a grpc.Server with the interceptor chain and the
// index service registered
func NewGRPCServer(s *Server, m *metrics.Metrics, log *logger.Logger, opts GRPCOptions) *grpc.Server {
	if log == nil {
		log = logger.Nop()
	}
	serverOpts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(
			RequestIDInterceptor(),
			ObservabilityInterceptor(m, log),
			RecoveryInterceptor(log),
		),
	}
	if opts.MaxRecvMsgBytes > 0 {
		serverOpts = append(serverOpts,
			grpc.MaxRecvMsgSize(opts.MaxRecvMsgBytes),
			grpc.MaxSendMsgSize(opts.MaxRecvMsgBytes),
		)
	}

	gs := grpc.NewServer(serverOpts...)
	RegisterIndexServiceServer(gs, s)
	if opts.Reflection {
		reflection.Register(gs)
	}
	return gs
}

func (s *Server) checkOpen() error {
	if s.engine.Closed() {
		return status.Error(codes.Unavailable, engine.ErrClosed.Error())
	}
	return nil
}

// IndexNode indexes or replaces one node
func (s *Server) IndexNode(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req indexNodeRequest
	if err := decodeStruct(in, &req); err != nil {
		return nil, err
	}

	start := time.Now()
	err := s.engine.IndexNode(req.Node)
	s.log.LogIndexOperation("index", 1, time.Since(start), err)
	if err != nil {
		return nil, toStatus(err)
	}
	return encodeStruct(map[string]any{"node_id": req.Node.NodeID, "indexed": true})
}

// IndexNodeBatch indexes many nodes in one journal transaction
func (s *Server) IndexNodeBatch(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req indexBatchRequest
	if err := decodeStruct(in, &req); err != nil {
		return nil, err
	}

	start := time.Now()
	stats, err := s.engine.IndexNodeBatch(req.Nodes)
	s.log.LogIndexOperation("index_batch", len(req.Nodes), time.Since(start), err)
	if err != nil {
		return nil, toStatus(err)
	}
	return encodeStruct(stats)
}

// RemoveNode unlinks a node; removed is false for unknown ids
func (s *Server) RemoveNode(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req removeNodeRequest
	if err := decodeStruct(in, &req); err != nil {
		return nil, err
	}

	start := time.Now()
	removed, err := s.engine.RemoveNode(req.NodeID)
	s.log.LogIndexOperation("remove", 1, time.Since(start), err)
	if err != nil {
		return nil, toStatus(err)
	}
	return encodeStruct(map[string]any{"node_id": req.NodeID, "removed": removed})
}

// Query evaluates a query. Evaluation problems such as an unknown field are
// reported in the result metadata, as the index does.
func (s *Server) Query(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	var q index.Query
	if err := decodeStruct(in, &q); err != nil {
		return nil, err
	}
	switch q.Type {
	case index.QueryExact, index.QueryRange, index.QueryFuzzy, index.QueryComposite:
	default:
		return nil, status.Errorf(codes.InvalidArgument, "unknown query_type %q", q.Type)
	}
	if q.Field == "" {
		return nil, status.Error(codes.InvalidArgument, "field is required")
	}

	res := s.engine.Index().Query(q)
	s.log.LogQuery(string(q.Type), q.Field, res.TotalCount, res.Metadata.CacheHit,
		time.Duration(res.QueryTimeMs*float64(time.Millisecond)))
	return encodeStruct(res)
}

// FindByTheme returns nodes matching a named theme
func (s *Server) FindByTheme(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	var req themeRequest
	if err := decodeStruct(in, &req); err != nil {
		return nil, err
	}
	return entries(s.engine.Index().FindByTheme(req.Theme))
}

// FindByResonancePattern filters a resonance pattern by coherence and
// dissonance bounds, defaulting to 0.0 and 1.0
func (s *Server) FindByResonancePattern(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	var req resonanceRequest
	if err := decodeStruct(in, &req); err != nil {
		return nil, err
	}

	minCoherence, maxDissonance := 0.0, 1.0
	if req.MinCoherence != nil {
		minCoherence = *req.MinCoherence
	}
	if req.MaxDissonance != nil {
		maxDissonance = *req.MaxDissonance
	}
	return entries(s.engine.Index().FindByResonancePattern(req.Pattern, minCoherence, maxDissonance))
}

// FindByFractalDepthRange returns nodes with depth in [min_depth, max_depth]
func (s *Server) FindByFractalDepthRange(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	var req depthRangeRequest
	if err := decodeStruct(in, &req); err != nil {
		return nil, err
	}
	return entries(s.engine.Index().FindByFractalDepthRange(req.MinDepth, req.MaxDepth, req.ConsciousnessLevel))
}

// FindByEpistemicAlignment returns nodes carrying the primary label, or both labels
func (s *Server) FindByEpistemicAlignment(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	var req epistemicRequest
	if err := decodeStruct(in, &req); err != nil {
		return nil, err
	}
	return entries(s.engine.Index().FindByEpistemicAlignment(req.Primary, req.Secondary))
}

// RebuildIndexes clears the index
func (s *Server) RebuildIndexes(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	start := time.Now()
	stats, err := s.engine.RebuildIndexes()
	s.log.LogIndexOperation("rebuild", stats.TotalIndexedNodes, time.Since(start), err)
	if err != nil {
		return nil, toStatus(err)
	}
	return encodeStruct(stats)
}

// Reindex re-derives every secondary index from the primary map
func (s *Server) Reindex(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	start := time.Now()
	n := s.engine.Index().Reindex()
	s.log.LogIndexOperation("reindex", n, time.Since(start), nil)
	return encodeStruct(map[string]any{"reindexed_nodes": n})
}

// OptimizeIndexes reports index sizes and trims the query counters
func (s *Server) OptimizeIndexes(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	return encodeStruct(s.engine.Index().OptimizeIndexes())
}

// GetStatistics reports index statistics together with durability state
func (s *Server) GetStatistics(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	st, err := s.engine.Status(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return encodeStruct(statisticsResponse{Index: s.engine.Index().Statistics(), Durability: st})
}

// Export returns per-value bucket counts for the core indices
func (s *Server) Export(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	return encodeStruct(s.engine.Index().Export())
}

// Checkpoint snapshots the index and truncates the journal
func (s *Server) Checkpoint(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	res, err := s.engine.Checkpoint(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return encodeStruct(res)
}

func entries(found []*index.Entry) (*structpb.Struct, error) {
	if found == nil {
		found = []*index.Entry{}
	}
	return encodeStruct(entriesResponse{Results: found, TotalCount: len(found)})
}
