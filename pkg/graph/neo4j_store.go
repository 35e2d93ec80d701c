package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"github.com/lineagraph/lineage-engine/pkg/models"
)

// chunkVectorIndex is the Neo4j vector index backing similarity search.
const chunkVectorIndex = "code_chunk_embedding"

// chunkVectorDimensions matches the embedding model output size.
const chunkVectorDimensions = 1536

type neo4jStore struct {
	client *Client
	logger *zap.Logger
}

// NewStore creates the Neo4j-backed Store and initializes schema helpers
// (constraints, vector index). Schema init is best-effort: it may fail for
// restricted users and the store still operates.
func NewStore(client *Client, logger *zap.Logger) Store {
	s := &neo4jStore{
		client: client,
		logger: logger.Named("graph"),
	}
	s.initSchema(context.Background())
	return s
}

var _ Store = (*neo4jStore)(nil)

func (s *neo4jStore) writeSession(ctx context.Context) neo4j.SessionWithContext {
	return s.client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: s.client.Database,
	})
}

func (s *neo4jStore) readSession(ctx context.Context) neo4j.SessionWithContext {
	return s.client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: s.client.Database,
	})
}

func (s *neo4jStore) initSchema(ctx context.Context) {
	session := s.writeSession(ctx)
	defer session.Close(ctx)

	stmts := []string{
		`CREATE INDEX lineage_node_key_idx IF NOT EXISTS FOR (n:DataAsset) ON (n.key)`,
		`CREATE INDEX lineage_file_key_idx IF NOT EXISTS FOR (n:File) ON (n.key)`,
		`CREATE INDEX lineage_unit_key_idx IF NOT EXISTS FOR (n:CodeUnit) ON (n.key)`,
		`CREATE CONSTRAINT lineage_chunk_key_unique IF NOT EXISTS FOR (c:CodeChunk) REQUIRE c.key IS UNIQUE`,
		fmt.Sprintf(`CREATE VECTOR INDEX %s IF NOT EXISTS FOR (c:CodeChunk) ON (c.embedding)
			OPTIONS {indexConfig: {`+"`vector.dimensions`"+`: %d, `+"`vector.similarity_function`"+`: 'cosine'}}`,
			chunkVectorIndex, chunkVectorDimensions),
	}
	for _, stmt := range stmts {
		if res, err := session.Run(ctx, stmt, nil); err != nil {
			s.logger.Warn("schema init statement failed (continuing)", zap.Error(err))
		} else {
			_, _ = res.Consume(ctx)
		}
	}
}

func (s *neo4jStore) UpsertGraph(ctx context.Context, nodes []*models.Node, edges []*models.Edge) (WriteStats, error) {
	var stats WriteStats
	now := time.Now().UTC().Format(time.RFC3339Nano)

	nodesByKind := map[models.NodeKind][]map[string]any{}
	for _, n := range nodes {
		if n == nil || !n.Kind.IsValid() || n.Key == "" {
			continue
		}
		props := map[string]any{}
		for k, v := range n.Props {
			props[k] = v
		}
		nodesByKind[n.Kind] = append(nodesByKind[n.Kind], map[string]any{
			"key":        n.Key,
			"project_id": n.ProjectID,
			"props":      props,
			"now":        now,
		})
	}

	edgesByKind := map[models.EdgeKind][]map[string]any{}
	for _, e := range edges {
		if e == nil || !e.Kind.IsValid() {
			continue
		}
		edgesByKind[e.Kind] = append(edgesByKind[e.Kind], map[string]any{
			"id":          e.ID.String(),
			"source_kind": string(e.Source.Kind),
			"source_key":  e.Source.Key,
			"target_kind": string(e.Target.Kind),
			"target_key":  e.Target.Key,
			"confidence":  e.Confidence,
			"evidence":    e.Evidence,
			"project_id":  e.ProjectID,
			"now":         now,
		})
	}

	session := s.writeSession(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for kind, batch := range nodesByKind {
			// Kind is validated against the closed NodeKind set, so the
			// label interpolation cannot carry untrusted input.
			query := fmt.Sprintf(`
UNWIND $nodes AS n
MERGE (c:%s {key: n.key})
ON CREATE SET c.created_at = n.now
SET c.kind = $kind,
    c += n.props,
    c.project_id = CASE WHEN n.project_id = '' THEN coalesce(c.project_id, '') ELSE n.project_id END,
    c.updated_at = n.now
RETURN count(c) AS written`, kind)
			written, err := runCount(ctx, tx, query, map[string]any{"nodes": batch, "kind": string(kind)})
			if err != nil {
				return nil, fmt.Errorf("upsert %s nodes: %w", kind, err)
			}
			stats.NodesWritten += written
		}

		for kind, batch := range edgesByKind {
			// Parser writes refresh parser edges but skip any pair that
			// already carries an approved llm edge, so a review decision is
			// never downgraded by a re-parse.
			query := fmt.Sprintf(`
UNWIND $edges AS r
MATCH (a {kind: r.source_kind, key: r.source_key})
MATCH (b {kind: r.target_kind, key: r.target_key})
WHERE NOT EXISTS {
    MATCH (a)-[x:%s {provenance: 'llm', status: 'approved'}]->(b)
}
MERGE (a)-[e:%s {provenance: 'parser'}]->(b)
ON CREATE SET e.id = r.id, e.status = 'approved', e.created_at = r.now
SET e.confidence = r.confidence,
    e.evidence = r.evidence,
    e.project_id = r.project_id,
    e.updated_at = r.now
RETURN count(e) AS written`, kind, kind)
			written, err := runCount(ctx, tx, query, map[string]any{"edges": batch})
			if err != nil {
				return nil, fmt.Errorf("upsert %s edges: %w", kind, err)
			}
			stats.EdgesWritten += written
		}

		return nil, nil
	})
	if err != nil {
		return WriteStats{}, fmt.Errorf("graph upsert failed: %w", err)
	}

	return stats, nil
}

func (s *neo4jStore) IngestPending(ctx context.Context, edges []*models.Edge) (int, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)

	edgesByKind := map[models.EdgeKind][]map[string]any{}
	for _, e := range edges {
		if e == nil || !e.Kind.IsValid() {
			continue
		}
		edgesByKind[e.Kind] = append(edgesByKind[e.Kind], map[string]any{
			"id":          e.ID.String(),
			"source_kind": string(e.Source.Kind),
			"source_key":  e.Source.Key,
			"target_kind": string(e.Target.Kind),
			"target_key":  e.Target.Key,
			"confidence":  e.Confidence,
			"evidence":    e.Evidence,
			"project_id":  e.ProjectID,
			"now":         now,
		})
	}

	session := s.writeSession(ctx)
	defer session.Close(ctx)

	total := 0
	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		total = 0
		for kind, batch := range edgesByKind {
			// Approved and rejected records have a different status, so
			// this MERGE never touches them: a repeat proposal of an
			// already-pending pair refreshes it, a proposal after a
			// terminal decision creates a fresh pending record.
			query := fmt.Sprintf(`
UNWIND $edges AS r
MATCH (a {kind: r.source_kind, key: r.source_key})
MATCH (b {kind: r.target_kind, key: r.target_key})
MERGE (a)-[e:%s {provenance: 'llm', status: 'pending_review'}]->(b)
ON CREATE SET e.id = r.id, e.created_at = r.now
SET e.confidence = r.confidence,
    e.evidence = r.evidence,
    e.project_id = r.project_id,
    e.updated_at = r.now
RETURN count(e) AS written`, kind)
			written, err := runCount(ctx, tx, query, map[string]any{"edges": batch})
			if err != nil {
				return nil, fmt.Errorf("ingest %s proposals: %w", kind, err)
			}
			total += written
		}
		return nil, nil
	})
	if err != nil {
		return 0, fmt.Errorf("proposal ingest failed: %w", err)
	}

	return total, nil
}

func (s *neo4jStore) Neighborhood(ctx context.Context, scope models.NodeRef, opts NeighborhoodOptions) (*Neighborhood, error) {
	hops := opts.Hops
	if hops < 1 {
		hops = 1
	}
	maxNodes := opts.MaxNodes
	if maxNodes <= 0 {
		maxNodes = 100
	}
	labels := make([]string, 0, len(opts.Labels))
	for _, l := range opts.Labels {
		if l.IsValid() {
			labels = append(labels, string(l))
		}
	}
	if len(labels) == 0 {
		labels = []string{string(models.NodeKindFile), string(models.NodeKindDataAsset)}
	}

	session := s.readSession(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		nb := &Neighborhood{}

		// Scope node first; an unknown scope yields an empty neighborhood.
		res, err := tx.Run(ctx, `
MATCH (s {kind: $kind, key: $key})
RETURN s.kind AS kind, s.key AS key, properties(s) AS props`,
			map[string]any{"kind": string(scope.Kind), "key": scope.Key})
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		for _, rec := range records {
			nb.Nodes = append(nb.Nodes, recordToNode(rec))
		}
		if len(nb.Nodes) == 0 {
			return nb, nil
		}

		// Hop radius must be a literal in a variable-length pattern; it is
		// a bounded int from config, never user text.
		query := fmt.Sprintf(`
MATCH (s {kind: $kind, key: $key})
MATCH (s)-[*1..%d]-(n)
WHERE size([l IN labels(n) WHERE l IN $labels]) > 0
  AND ($project = '' OR coalesce(n.project_id, '') = $project)
RETURN DISTINCT n.kind AS kind, n.key AS key, properties(n) AS props
LIMIT %d`, hops, maxNodes)
		res, err = tx.Run(ctx, query, map[string]any{
			"kind":    string(scope.Kind),
			"key":     scope.Key,
			"labels":  labels,
			"project": opts.ProjectID,
		})
		if err != nil {
			return nil, err
		}
		records, err = res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		pairs := []any{[]any{string(scope.Kind), scope.Key}}
		for _, rec := range records {
			node := recordToNode(rec)
			nb.Nodes = append(nb.Nodes, node)
			pairs = append(pairs, []any{string(node.Kind), node.Key})
		}

		// Endpoints match on (kind, key): distinct kinds may share a bare
		// key (a Synonym and the DataAsset it aliases, for instance).
		res, err = tx.Run(ctx, `
MATCH (a)-[e]->(b)
WHERE [a.kind, a.key] IN $pairs AND [b.kind, b.key] IN $pairs AND e.id IS NOT NULL
RETURN a.kind AS source_kind, a.key AS source_key,
       b.kind AS target_kind, b.key AS target_key,
       type(e) AS kind, properties(e) AS props`,
			map[string]any{"pairs": pairs})
		if err != nil {
			return nil, err
		}
		records, err = res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		for _, rec := range records {
			if e := recordToEdge(rec); e != nil {
				nb.Edges = append(nb.Edges, e)
			}
		}

		return nb, nil
	})
	if err != nil {
		return nil, fmt.Errorf("neighborhood query failed: %w", err)
	}

	return result.(*Neighborhood), nil
}

func (s *neo4jStore) GetEdge(ctx context.Context, id uuid.UUID) (*models.Edge, error) {
	session := s.readSession(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (a)-[e]->(b)
WHERE e.id = $id
RETURN a.kind AS source_kind, a.key AS source_key,
       b.kind AS target_kind, b.key AS target_key,
       type(e) AS kind, properties(e) AS props
LIMIT 1`,
			map[string]any{"id": id.String()})
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		if len(records) == 0 {
			return (*models.Edge)(nil), nil
		}
		return recordToEdge(records[0]), nil
	})
	if err != nil {
		return nil, fmt.Errorf("edge lookup failed: %w", err)
	}

	return result.(*models.Edge), nil
}

func (s *neo4jStore) UpdateEdgeStatus(ctx context.Context, id uuid.UUID, fromStatus, toStatus string, confidence *float64) (*models.Edge, error) {
	session := s.writeSession(ctx)
	defer session.Close(ctx)

	now := time.Now().UTC().Format(time.RFC3339Nano)

	result, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		// The status predicate makes the transition atomic: a concurrent
		// reviewer loses the race instead of double-applying.
		res, err := tx.Run(ctx, `
MATCH (a)-[e]->(b)
WHERE e.id = $id AND e.status = $from
SET e.status = $to,
    e.confidence = coalesce($confidence, e.confidence),
    e.reviewed_at = $now,
    e.updated_at = $now
RETURN a.kind AS source_kind, a.key AS source_key,
       b.kind AS target_kind, b.key AS target_key,
       type(e) AS kind, properties(e) AS props`,
			map[string]any{
				"id":         id.String(),
				"from":       fromStatus,
				"to":         toStatus,
				"confidence": confidenceParam(confidence),
				"now":        now,
			})
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		if len(records) == 0 {
			return (*models.Edge)(nil), nil
		}
		return recordToEdge(records[0]), nil
	})
	if err != nil {
		return nil, fmt.Errorf("edge status update failed: %w", err)
	}

	return result.(*models.Edge), nil
}

func (s *neo4jStore) ListEdges(ctx context.Context, filter models.EdgeFilter) ([]*models.Edge, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	minConfidence := -1.0
	if filter.MinConfidence != nil {
		minConfidence = *filter.MinConfidence
	}

	session := s.readSession(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := fmt.Sprintf(`
MATCH (a)-[e]->(b)
WHERE e.id IS NOT NULL
  AND ($status = '' OR e.status = $status)
  AND ($kind = '' OR type(e) = $kind)
  AND ($project = '' OR coalesce(e.project_id, '') = $project)
  AND ($minConfidence < 0 OR e.confidence >= $minConfidence)
RETURN a.kind AS source_kind, a.key AS source_key,
       b.kind AS target_kind, b.key AS target_key,
       type(e) AS kind, properties(e) AS props
ORDER BY e.updated_at DESC
LIMIT %d`, limit)
		res, err := tx.Run(ctx, query, map[string]any{
			"status":        filter.Status,
			"kind":          string(filter.Kind),
			"project":       filter.ProjectID,
			"minConfidence": minConfidence,
		})
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		edges := make([]*models.Edge, 0, len(records))
		for _, rec := range records {
			if e := recordToEdge(rec); e != nil {
				edges = append(edges, e)
			}
		}
		return edges, nil
	})
	if err != nil {
		return nil, fmt.Errorf("edge listing failed: %w", err)
	}

	return result.([]*models.Edge), nil
}

func (s *neo4jStore) BackfillProvenance(ctx context.Context) (int, error) {
	session := s.writeSession(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH ()-[e]->()
WHERE e.provenance IS NULL OR e.status IS NULL OR e.confidence IS NULL OR e.id IS NULL
SET e.provenance = coalesce(e.provenance, 'parser'),
    e.confidence = coalesce(e.confidence, 1.0),
    e.status = coalesce(e.status, 'approved'),
    e.id = coalesce(e.id, randomUUID())
RETURN count(e) AS written`, nil)
		if err != nil {
			return nil, err
		}
		rec, err := res.Single(ctx)
		if err != nil {
			return nil, err
		}
		written, _ := rec.Get("written")
		count, _ := written.(int64)
		return int(count), nil
	})
	if err != nil {
		return 0, fmt.Errorf("provenance backfill failed: %w", err)
	}

	return result.(int), nil
}

func (s *neo4jStore) UpsertChunks(ctx context.Context, chunks []*CodeChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	batch := make([]map[string]any, 0, len(chunks))
	for _, ch := range chunks {
		if ch == nil || ch.Key == "" {
			continue
		}
		embedding := make([]float64, len(ch.Embedding))
		for i, v := range ch.Embedding {
			embedding[i] = float64(v)
		}
		batch = append(batch, map[string]any{
			"key":        ch.Key,
			"file_path":  ch.FilePath,
			"unit_name":  ch.UnitName,
			"text":       ch.Text,
			"project_id": ch.ProjectID,
			"embedding":  embedding,
			"now":        now,
		})
	}

	session := s.writeSession(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
UNWIND $chunks AS ch
MERGE (c:CodeChunk {key: ch.key})
SET c.kind = 'CodeChunk',
    c.file_path = ch.file_path,
    c.unit_name = ch.unit_name,
    c.text = ch.text,
    c.project_id = ch.project_id,
    c.updated_at = ch.now
WITH c, ch
WHERE size(ch.embedding) > 0
SET c.embedding = ch.embedding
RETURN count(c)`, map[string]any{"chunks": batch})
		if err != nil {
			return nil, err
		}
		_, err = res.Consume(ctx)
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("chunk upsert failed: %w", err)
	}

	return nil
}

func (s *neo4jStore) SearchChunks(ctx context.Context, vector []float32, topK int, projectID string) ([]*CodeChunk, error) {
	if topK <= 0 {
		topK = 8
	}
	query := make([]float64, len(vector))
	for i, v := range vector {
		query[i] = float64(v)
	}

	session := s.readSession(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, fmt.Sprintf(`
CALL db.index.vector.queryNodes('%s', $k, $vector)
YIELD node, score
WHERE $project = '' OR coalesce(node.project_id, '') = $project
RETURN node.key AS key, node.file_path AS file_path, node.unit_name AS unit_name,
       node.text AS text, node.project_id AS project_id, score`,
			chunkVectorIndex),
			map[string]any{"k": topK, "vector": query, "project": projectID})
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		chunks := make([]*CodeChunk, 0, len(records))
		for _, rec := range records {
			ch := &CodeChunk{
				Key:       stringValue(rec, "key"),
				FilePath:  stringValue(rec, "file_path"),
				UnitName:  stringValue(rec, "unit_name"),
				Text:      stringValue(rec, "text"),
				ProjectID: stringValue(rec, "project_id"),
			}
			if v, ok := rec.Get("score"); ok {
				if f, ok := v.(float64); ok {
					ch.Score = f
				}
			}
			chunks = append(chunks, ch)
		}
		return chunks, nil
	})
	if err != nil {
		return nil, fmt.Errorf("chunk search failed: %w", err)
	}

	return result.([]*CodeChunk), nil
}

// ----- record helpers -----

func runCount(ctx context.Context, tx neo4j.ManagedTransaction, query string, params map[string]any) (int, error) {
	res, err := tx.Run(ctx, query, params)
	if err != nil {
		return 0, err
	}
	rec, err := res.Single(ctx)
	if err != nil {
		return 0, err
	}
	v, _ := rec.Get("written")
	count, _ := v.(int64)
	return int(count), nil
}

func stringValue(rec *neo4j.Record, key string) string {
	v, ok := rec.Get(key)
	if !ok || v == nil {
		return ""
	}
	s, _ := v.(string)
	return s
}

func recordToNode(rec *neo4j.Record) *models.Node {
	node := &models.Node{
		Kind: models.NodeKind(stringValue(rec, "kind")),
		Key:  stringValue(rec, "key"),
	}
	if v, ok := rec.Get("props"); ok {
		if props, ok := v.(map[string]any); ok {
			if pid, ok := props["project_id"].(string); ok {
				node.ProjectID = pid
			}
			delete(props, "key")
			delete(props, "kind")
			delete(props, "project_id")
			delete(props, "embedding")
			node.Props = props
		}
	}
	return node
}

func recordToEdge(rec *neo4j.Record) *models.Edge {
	edge := &models.Edge{
		Source: models.NodeRef{
			Kind: models.NodeKind(stringValue(rec, "source_kind")),
			Key:  stringValue(rec, "source_key"),
		},
		Target: models.NodeRef{
			Kind: models.NodeKind(stringValue(rec, "target_kind")),
			Key:  stringValue(rec, "target_key"),
		},
		Kind: models.EdgeKind(stringValue(rec, "kind")),
	}

	v, ok := rec.Get("props")
	if !ok {
		return edge
	}
	props, ok := v.(map[string]any)
	if !ok {
		return edge
	}

	if idStr, ok := props["id"].(string); ok {
		if id, err := uuid.Parse(idStr); err == nil {
			edge.ID = id
		}
	}
	if prov, ok := props["provenance"].(string); ok {
		edge.Provenance = prov
	}
	if conf, ok := props["confidence"].(float64); ok {
		edge.Confidence = conf
	}
	if status, ok := props["status"].(string); ok {
		edge.Status = status
	}
	if evidence, ok := props["evidence"].(string); ok {
		edge.Evidence = evidence
	}
	if pid, ok := props["project_id"].(string); ok {
		edge.ProjectID = pid
	}
	if created, ok := props["created_at"].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, created); err == nil {
			edge.CreatedAt = t
		}
	}
	if updated, ok := props["updated_at"].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, updated); err == nil {
			edge.UpdatedAt = t
		}
	}

	return edge
}

func confidenceParam(c *float64) any {
	if c == nil {
		return nil
	}
	return *c
}
