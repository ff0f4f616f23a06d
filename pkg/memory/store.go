// Package memory persists the facts, context, and insights agents
// accumulate across conversations, scoped per tenant and per agent. Search
// uses an LLM relevance pass rather than a vector index, trading scale for
// simplicity: it fits the platform's moderate per-agent memory volume and
// needs no embedding pipeline to operate.
package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/eap/pkg/apperr"
	"github.com/codeready-toolchain/eap/pkg/llm"
	"github.com/codeready-toolchain/eap/pkg/models"
)

// completer is the narrow LLM surface Search needs.
type completer interface {
	Complete(ctx context.Context, req llm.Request) (*llm.Response, error)
}

// Store is the persistence layer for agent memory.
type Store struct {
	db  *sql.DB
	llm completer
}

// NewStore creates a Store backed by db, using llmClient for relevance
// search.
func NewStore(db *sql.DB, llmClient completer) *Store {
	return &Store{db: db, llm: llmClient}
}

// Store saves a memory entry, updating the existing row in place if
// (agentID, tenantID, key) already exists.
func (s *Store) Store(ctx context.Context, agentID string, tenantID uuid.UUID, key, value string, metadata map[string]any) error {
	metadataJSON, err := marshalMetadata(metadata)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO agent_memories (id, agent_id, tenant_id, key, value, access_count, metadata_json, created_at)
		 VALUES ($1, $2, $3, $4, $5, 0, $6, $7)
		 ON CONFLICT (agent_id, tenant_id, key) DO UPDATE SET value = EXCLUDED.value, metadata_json = EXCLUDED.metadata_json`,
		uuid.New(), agentID, tenantID, key, value, metadataJSON, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert agent_memories: %w", err)
	}
	slog.Info("agent_memory.stored", "agent_id", agentID, "tenant_id", tenantID, "key", key)
	return nil
}

// Retrieve returns a specific memory by key, incrementing its access count.
// Returns apperr.ErrNotFound if no memory has that key.
func (s *Store) Retrieve(ctx context.Context, agentID string, tenantID uuid.UUID, key string) (*models.AgentMemory, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE agent_memories SET access_count = access_count + 1
		 WHERE agent_id = $1 AND tenant_id = $2 AND key = $3`,
		agentID, tenantID, key,
	)
	if err != nil {
		return nil, fmt.Errorf("increment access_count: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	} else if n == 0 {
		return nil, apperr.ErrNotFound
	}

	return s.get(ctx, agentID, tenantID, key)
}

func (s *Store) get(ctx context.Context, agentID string, tenantID uuid.UUID, key string) (*models.AgentMemory, error) {
	var (
		m            models.AgentMemory
		metadataJSON []byte
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, agent_id, tenant_id, key, value, access_count, metadata_json, created_at
		 FROM agent_memories WHERE agent_id = $1 AND tenant_id = $2 AND key = $3`,
		agentID, tenantID, key,
	).Scan(&m.ID, &m.AgentID, &m.TenantID, &m.Key, &m.Value, &m.AccessCount, &metadataJSON, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query agent_memory: %w", err)
	}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &m.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return &m, nil
}

func (s *Store) listAll(ctx context.Context, agentID string, tenantID uuid.UUID) ([]*models.AgentMemory, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, agent_id, tenant_id, key, value, access_count, metadata_json, created_at
		 FROM agent_memories WHERE agent_id = $1 AND tenant_id = $2`,
		agentID, tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("query agent_memory: %w", err)
	}
	defer rows.Close()

	var memories []*models.AgentMemory
	for rows.Next() {
		var (
			m            models.AgentMemory
			metadataJSON []byte
		)
		if err := rows.Scan(&m.ID, &m.AgentID, &m.TenantID, &m.Key, &m.Value, &m.AccessCount, &metadataJSON, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan agent_memory: %w", err)
		}
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &m.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal metadata: %w", err)
			}
		}
		memories = append(memories, &m)
	}
	return memories, rows.Err()
}

type relevanceResponse struct {
	Scores []relevanceScore `json:"scores"`
}

type relevanceScore struct {
	MemoryIndex int     `json:"memory_index"`
	Relevance   float64 `json:"relevance"`
}

// Search returns the memories most relevant to query, scored by the LLM. If
// the LLM's response can't be parsed, it falls back to the most-accessed
// memories so callers still get something; if the LLM call itself fails, or
// the agent has no memories at all, it returns an empty slice rather than
// erroring.
func (s *Store) Search(ctx context.Context, agentID string, tenantID uuid.UUID, query string, limit int) ([]*models.AgentMemory, error) {
	memories, err := s.listAll(ctx, agentID, tenantID)
	if err != nil {
		return nil, err
	}
	if len(memories) == 0 {
		return nil, nil
	}

	var memoriesText strings.Builder
	for i, m := range memories {
		if i > 0 {
			memoriesText.WriteString("\n\n")
		}
		fmt.Fprintf(&memoriesText, "Memory %d: key=%s\nvalue=%s", i, m.Key, m.Value)
	}

	prompt := fmt.Sprintf(`Given this query and a list of memories, score each memory's relevance from 0.0 (not relevant) to 1.0 (highly relevant).

Query: %s

Memories:
%s

Respond in JSON format:
{
  "scores": [
    {"memory_index": 0, "relevance": 0.0-1.0},
    {"memory_index": 1, "relevance": 0.0-1.0}
  ]
}

Respond ONLY with valid JSON, no additional text.`, query, memoriesText.String())

	resp, err := s.llm.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "You are a relevance scoring assistant. Always respond with valid JSON only."},
			{Role: llm.RoleUser, Content: prompt},
		},
		Temperature: 0.3,
		MaxTokens:   1024,
	})
	if err != nil {
		slog.Error("agent_memory.search_failed", "error", err)
		return nil, nil
	}

	var parsed relevanceResponse
	if jsonErr := json.Unmarshal([]byte(llm.ExtractText(resp)), &parsed); jsonErr != nil {
		slog.Warn("agent_memory.search_json_failed", "error", jsonErr)
		return mostAccessed(memories, limit), nil
	}

	relevance := make(map[int]float64, len(parsed.Scores))
	for _, sc := range parsed.Scores {
		relevance[sc.MemoryIndex] = sc.Relevance
	}

	type scored struct {
		idx   int
		m     *models.AgentMemory
		score float64
	}
	ranked := make([]scored, len(memories))
	for i, m := range memories {
		ranked[i] = scored{idx: i, m: m, score: relevance[i]}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	if limit <= 0 || limit > len(ranked) {
		limit = len(ranked)
	}
	results := make([]*models.AgentMemory, 0, limit)
	for _, r := range ranked[:limit] {
		m := *r.m
		if m.Metadata == nil {
			m.Metadata = map[string]any{}
		}
		m.Metadata["relevance_score"] = r.score
		results = append(results, &m)
	}

	slog.Info("agent_memory.search_complete", "agent_id", agentID, "total_memories", len(memories), "results_returned", len(results))
	return results, nil
}

// mostAccessed is the fallback ranking used when relevance scoring fails:
// the memories accessed most often are assumed most useful.
func mostAccessed(memories []*models.AgentMemory, limit int) []*models.AgentMemory {
	sorted := make([]*models.AgentMemory, len(memories))
	copy(sorted, memories)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].AccessCount > sorted[j].AccessCount })
	if limit <= 0 || limit > len(sorted) {
		limit = len(sorted)
	}
	return sorted[:limit]
}

// Cleanup deletes memories older than olderThan and returns the number
// removed.
func (s *Store) Cleanup(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	slog.Info("agent_memory.cleanup_start", "cutoff", cutoff)

	res, err := s.db.ExecContext(ctx, `DELETE FROM agent_memories WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete agent_memories: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	slog.Info("agent_memory.cleanup_complete", "deleted_count", n)
	return int(n), nil
}

// GetContextForAgent searches for memories relevant to query and renders
// them as the text block agents fold into their prompts. Returns "" if no
// relevant memories exist.
func (s *Store) GetContextForAgent(ctx context.Context, agentID string, tenantID uuid.UUID, query string, maxMemories int) (string, error) {
	memories, err := s.Search(ctx, agentID, tenantID, query, maxMemories)
	if err != nil {
		return "", err
	}
	if len(memories) == 0 {
		return "", nil
	}

	lines := []string{"Relevant context from previous interactions:", ""}
	for _, m := range memories {
		lines = append(lines, fmt.Sprintf("- %s: %s", m.Key, m.Value))
	}
	return strings.Join(lines, "\n"), nil
}

func marshalMetadata(metadata map[string]any) ([]byte, error) {
	if metadata == nil {
		return nil, nil
	}
	b, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	return b, nil
}
