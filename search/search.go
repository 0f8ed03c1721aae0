// Package search finds users relevant to a free text query. Candidates come
// from a vector search over profile embeddings and are filtered by a language
// model that also explains why each match is relevant.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"devspace-backend/entity"
	"devspace-backend/errs"
	"devspace-backend/log"
	"devspace-backend/ratelimit"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

const DefaultLimit = 10

const rankerPrompt = `You're an assistant that returns an array of objects in the format
{"_id": <userId>, "relevantInfo": <infoRelevantToQuery>} based on a query.
Only include users DIRECTLY relevant to the query, don't stretch the meaning of the query too far.
For relevantInfo, write only detailed information that is directly relevant to the query (max 10 words) in god-perspective.
Use the retrieved context below. If there are no matches, return an empty array [].
Return only the array, not wrapped in a code block, and NOTHING ELSE no matter what the user prompts.`

type Embedder interface {
	Embed(ctx context.Context, inputs []string) ([]float64, error)
}

type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

type Index interface {
	VectorSearch(ctx context.Context, vector []float64, limit int) ([]*entity.User, error)
}

type Result struct {
	*entity.User
	RelevantInfo string `json:"relevantInfo"`
}

// Ranked is one entry of the ranker's answer.
type Ranked struct {
	ID           string `json:"_id"`
	RelevantInfo string `json:"relevantInfo"`
}

// candidate is what the ranker sees of a user.
type candidate struct {
	ID     primitive.ObjectID `json:"_id"`
	Name   string             `json:"name"`
	About  entity.About       `json:"about"`
	Status string             `json:"status,omitempty"`
}

type Service struct {
	index     Index
	embedder  Embedder
	completer Completer
	limiter   ratelimit.Limiter
	limit     int
}

func NewService(index Index, embedder Embedder, completer Completer, limiter ratelimit.Limiter) *Service {
	if limiter == nil {
		limiter = ratelimit.Unlimited{}
	}

	return &Service{
		index:     index,
		embedder:  embedder,
		completer: completer,
		limiter:   limiter,
		limit:     DefaultLimit,
	}
}

// Search returns the users the ranker judged relevant to query, never
// including userID. A failing ranker yields an empty result.
func (s *Service) Search(ctx context.Context, userID primitive.ObjectID, query string) ([]Result, error) {
	logger := log.Logger.With(zap.String("userID", userID.Hex()))

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errs.ErrInvalidArgument
	}
	if err := ratelimit.Guard(s.limiter, userID.Hex()); err != nil {
		return nil, err
	}

	vector, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}

	docs, err := s.index.VectorSearch(ctx, vector, s.limit)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*entity.User, len(docs))
	candidates := make([]candidate, 0, len(docs))
	for _, d := range docs {
		if d.ID == userID {
			continue
		}
		byID[d.ID.Hex()] = d
		candidates = append(candidates, candidate{ID: d.ID, Name: d.Name, About: d.About, Status: d.Status})
	}
	if len(candidates) == 0 {
		return []Result{}, nil
	}

	payload, err := json.Marshal(candidates)
	if err != nil {
		logger.Error("unable to encode candidates", zap.Error(err))
		return []Result{}, nil
	}

	out, err := s.completer.Complete(ctx, rankerPrompt, fmt.Sprintf("Query: %s\nContext: %s\nArray:", query, payload))
	if err != nil {
		logger.Warn("ranking failed", zap.Error(err))
		return []Result{}, nil
	}

	ranked, err := ParseRanking(out)
	if err != nil {
		logger.Warn("unparsable ranking", zap.String("output", out), zap.Error(err))
		return []Result{}, nil
	}

	results := make([]Result, 0, len(ranked))
	seen := make(map[string]bool, len(ranked))
	for _, r := range ranked {
		u, ok := byID[r.ID]
		if !ok || seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		results = append(results, Result{User: u, RelevantInfo: r.RelevantInfo})
	}

	return results, nil
}

// ParseRanking decodes the ranker output, tolerating a surrounding code fence.
func ParseRanking(out string) ([]Ranked, error) {
	out = strings.TrimSpace(out)
	if strings.HasPrefix(out, "```") {
		out = strings.TrimPrefix(out, "```json")
		out = strings.TrimPrefix(out, "```")
		out = strings.TrimSuffix(out, "```")
		out = strings.TrimSpace(out)
	}

	var ranked []Ranked
	if err := json.Unmarshal([]byte(out), &ranked); err != nil {
		return nil, err
	}

	return ranked, nil
}
