package keyword

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	blevequery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/hyperjump/schemarag/internal/embedding"
	"github.com/hyperjump/schemarag/internal/models"
)

// SummaryIndex is an in-memory Bleve index over summary documents. It is built once
// and only read afterwards.
type SummaryIndex struct {
	index  bleve.Index
	tables []string
}

// indexedSummary is the Bleve document. Terms holds the summary tokens with
// snake_case names also split into parts, so "patient" matches "patient_id".
type indexedSummary struct {
	Table string `json:"table"`
	Terms string `json:"terms"`
}

// NewSummaryIndex indexes docs in memory. Document ids are their positions.
func NewSummaryIndex(docs []models.SummaryDocument) (*SummaryIndex, error) {
	im := bleve.NewIndexMapping()

	docMapping := bleve.NewDocumentMapping()
	textFieldMapping := bleve.NewTextFieldMapping()
	// Standard analyzer (lowercase + tokenize, no stemming) so table names match exactly.
	textFieldMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("table", textFieldMapping)
	docMapping.AddFieldMappingsAt("terms", textFieldMapping)
	im.AddDocumentMapping("summary", docMapping)
	im.DefaultType = "summary"
	im.DefaultMapping = docMapping

	index, err := bleve.NewMemOnly(im)
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}

	batch := index.NewBatch()
	tables := make([]string, len(docs))
	for i, d := range docs {
		tables[i] = d.Table
		doc := indexedSummary{
			Table: strings.Join(embedding.Tokens(d.Table), " "),
			Terms: strings.Join(embedding.Tokens(d.Content), " "),
		}
		if err := batch.Index(strconv.Itoa(i), doc); err != nil {
			index.Close()
			return nil, fmt.Errorf("failed to index %s: %w", d.Table, err)
		}
	}
	if err := index.Batch(batch); err != nil {
		index.Close()
		return nil, fmt.Errorf("failed to index summaries: %w", err)
	}
	return &SummaryIndex{index: index, tables: tables}, nil
}

// Search returns up to limit documents ordered by descending score; equal scores keep
// index order. When opts.TableBoost > 1, table-name and summary matches are scored
// separately and added, and documents matching only some query terms are penalized.
func (s *SummaryIndex) Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]Hit, error) {
	if limit <= 0 {
		return nil, nil
	}
	tableBoost := 1.0
	fuzzyEnabled := false
	fuzziness := 2
	if opts != nil {
		if opts.TableBoost > 0 {
			tableBoost = opts.TableBoost
		}
		fuzzyEnabled = opts.FuzzyEnabled
		if opts.Fuzziness > 0 {
			fuzziness = opts.Fuzziness
		}
	}

	terms := embedding.Tokens(query)
	if len(terms) == 0 {
		return nil, nil
	}
	normalized := strings.Join(terms, " ")

	scores := make(map[string]float64)
	if tableBoost <= 1.0 {
		if err := s.collect(ctx, s.buildQuery(normalized, terms, fuzzyEnabled, fuzziness, ""), 1, scores); err != nil {
			return nil, err
		}
	} else {
		if err := s.collect(ctx, s.buildQuery(normalized, terms, fuzzyEnabled, fuzziness, "table"), tableBoost, scores); err != nil {
			return nil, err
		}
		if err := s.collect(ctx, s.buildQuery(normalized, terms, fuzzyEnabled, fuzziness, "terms"), 1, scores); err != nil {
			return nil, err
		}
		if len(terms) > 1 {
			coverage := s.termCoverage(ctx, terms, fuzzyEnabled, fuzziness)
			for id := range scores {
				matched := coverage[id]
				if matched == 0 {
					matched = 1
				}
				c := float64(matched) / float64(len(terms))
				scores[id] *= c * c
			}
		}
	}

	out := make([]Hit, 0, len(scores))
	for id, score := range scores {
		pos, err := strconv.Atoi(id)
		if err != nil || pos < 0 || pos >= len(s.tables) {
			continue
		}
		out = append(out, Hit{Position: pos, Table: s.tables[pos], Score: score})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Position < out[j].Position
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// collect runs q over every document and adds score*boost per hit into scores.
func (s *SummaryIndex) collect(ctx context.Context, q blevequery.Query, boost float64, scores map[string]float64) error {
	req := bleve.NewSearchRequest(q)
	req.Size = len(s.tables)
	res, err := s.index.SearchInContext(ctx, req)
	if err != nil {
		return fmt.Errorf("Bleve search failed: %w", err)
	}
	for _, hit := range res.Hits {
		scores[hit.ID] += hit.Score * boost
	}
	return nil
}

// buildQuery returns a match query, or a disjunction of fuzzy term queries when
// fuzzy matching is on. An empty field searches all fields.
func (s *SummaryIndex) buildQuery(query string, terms []string, fuzzy bool, fuzziness int, field string) blevequery.Query {
	if !fuzzy {
		mq := bleve.NewMatchQuery(query)
		if field != "" {
			mq.SetField(field)
		}
		return mq
	}
	queries := make([]blevequery.Query, 0, len(terms))
	for _, term := range terms {
		fq := bleve.NewFuzzyQuery(term)
		fq.SetFuzziness(fuzziness)
		if field != "" {
			fq.SetField(field)
		}
		queries = append(queries, fq)
	}
	return bleve.NewDisjunctionQuery(queries...)
}

// termCoverage counts how many distinct query terms each document matches.
func (s *SummaryIndex) termCoverage(ctx context.Context, terms []string, fuzzy bool, fuzziness int) map[string]int {
	coverage := make(map[string]int)
	seen := make(map[string]struct{}, len(terms))
	for _, term := range terms {
		if _, ok := seen[term]; ok {
			continue
		}
		seen[term] = struct{}{}
		hits := make(map[string]float64)
		if err := s.collect(ctx, s.buildQuery(term, []string{term}, fuzzy, fuzziness, ""), 1, hits); err != nil {
			continue
		}
		for id := range hits {
			coverage[id]++
		}
	}
	return coverage
}

// DocCount returns the number of indexed summaries.
func (s *SummaryIndex) DocCount() (uint64, error) {
	return s.index.DocCount()
}

// Close closes the Bleve index.
func (s *SummaryIndex) Close() error {
	return s.index.Close()
}
