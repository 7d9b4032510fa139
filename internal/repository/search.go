package repository

import (
	"encoding/binary"
	"regexp"
	"sort"
	"strings"

	"gorm.io/gorm"
)

const (
	maxSearchTerms      = 8
	maxSearchCandidates = 1000
	snippetLength       = 200
)

var searchTermPattern = regexp.MustCompile(`[\p{L}\p{N}]+`)

// searchTerms splits a free-text query into lowercase index terms. Only
// letters and digits survive, so operators and wildcards typed by the user
// never reach the index query.
func searchTerms(query string) []string {
	seen := make(map[string]struct{})
	var terms []string
	for _, term := range searchTermPattern.FindAllString(strings.ToLower(query), -1) {
		if _, ok := seen[term]; ok {
			continue
		}
		seen[term] = struct{}{}
		terms = append(terms, term)
		if len(terms) == maxSearchTerms {
			break
		}
	}
	return terms
}

// searchCandidate is one index hit before ranking. Rank is filled by
// Postgres, MatchInfo by SQLite.
type searchCandidate struct {
	ID        string
	Rank      float64
	MatchInfo []byte
	score     float64
}

// searchIndex is the dialect specific part of full-text search. Every term
// must match, each as a prefix.
type searchIndex interface {
	migrate(db *gorm.DB) error
	candidates(query *gorm.DB, table string, terms []string) *gorm.DB
	score(table string, candidate searchCandidate) float64
}

func newSearchIndex(db *gorm.DB) searchIndex {
	if db.Dialector.Name() == "postgres" {
		return postgresSearchIndex{}
	}
	return sqliteSearchIndex{}
}

// rankCandidates scores and orders candidates by relevance. Equal scores keep
// the order the query returned them in.
func rankCandidates(index searchIndex, table string, candidates []searchCandidate) []searchCandidate {
	for i := range candidates {
		candidates[i].score = index.score(table, candidates[i])
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	return candidates
}

func pageBounds(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

func pageOf(candidates []searchCandidate, limit, offset int) []searchCandidate {
	if offset >= len(candidates) {
		return nil
	}
	end := offset + limit
	if end > len(candidates) {
		end = len(candidates)
	}
	return candidates[offset:end]
}

type postgresSearchIndex struct{}

// The tsvector columns are generated, so inserts and updates keep them
// current without application code. Body text is cut at 100k characters to
// stay under the tsvector size limit.
var postgresSearchStatements = []string{
	`ALTER TABLE documents ADD COLUMN IF NOT EXISTS search_vector tsvector GENERATED ALWAYS AS (
		setweight(to_tsvector('english'::regconfig, coalesce(original_filename, '')), 'A') ||
		setweight(to_tsvector('english'::regconfig, coalesce(ai_summary, '')), 'B') ||
		setweight(to_tsvector('english'::regconfig, coalesce(classification, '') || ' ' || coalesce(category, '')), 'B') ||
		setweight(to_tsvector('english'::regconfig, left(coalesce(extracted_text, ''), 100000)), 'C')
	) STORED`,
	`CREATE INDEX IF NOT EXISTS idx_documents_search_vector ON documents USING GIN (search_vector)`,
	`ALTER TABLE emails ADD COLUMN IF NOT EXISTS search_vector tsvector GENERATED ALWAYS AS (
		setweight(to_tsvector('english'::regconfig, coalesce(subject, '')), 'A') ||
		setweight(to_tsvector('english'::regconfig, coalesce(from_name, '') || ' ' || coalesce(from_address, '')), 'B') ||
		setweight(to_tsvector('english'::regconfig, coalesce(summary, '')), 'B') ||
		setweight(to_tsvector('english'::regconfig, left(coalesce(body_text, ''), 100000)), 'C')
	) STORED`,
	`CREATE INDEX IF NOT EXISTS idx_emails_search_vector ON emails USING GIN (search_vector)`,
}

func (postgresSearchIndex) migrate(db *gorm.DB) error {
	for _, statement := range postgresSearchStatements {
		if err := db.Exec(statement).Error; err != nil {
			return err
		}
	}
	return nil
}

func (postgresSearchIndex) candidates(query *gorm.DB, table string, terms []string) *gorm.DB {
	prefixed := make([]string, len(terms))
	for i, term := range terms {
		prefixed[i] = term + ":*"
	}
	tsquery := strings.Join(prefixed, " & ")
	return query.
		Select(table+".id AS id, ts_rank("+table+".search_vector, to_tsquery('english', ?)) AS rank", tsquery).
		Where(table+".search_vector @@ to_tsquery('english', ?)", tsquery)
}

func (postgresSearchIndex) score(_ string, candidate searchCandidate) float64 {
	return candidate.Rank
}

type sqliteSearchIndex struct{}

type sqliteFTSTable struct {
	key string
	// column weights in index order, the key column first
	weights []float64
}

var sqliteFTSTables = map[string]sqliteFTSTable{
	"documents": {key: "document_id", weights: []float64{0, 4, 2, 2, 1}},
	"emails":    {key: "email_id", weights: []float64{0, 4, 2, 2, 1}},
}

// FTS4 ships with the default sqlite driver build; FTS5 needs a build tag.
var sqliteSearchStatements = []string{
	`CREATE VIRTUAL TABLE IF NOT EXISTS documents_fts USING fts4(
		document_id, original_filename, ai_summary, labels, extracted_text, notindexed=document_id)`,
	`CREATE TRIGGER IF NOT EXISTS documents_fts_insert AFTER INSERT ON documents BEGIN
		INSERT INTO documents_fts(document_id, original_filename, ai_summary, labels, extracted_text)
		VALUES (new.id, new.original_filename, new.ai_summary,
			coalesce(new.classification, '') || ' ' || coalesce(new.category, ''), new.extracted_text);
	END`,
	`CREATE TRIGGER IF NOT EXISTS documents_fts_update
	AFTER UPDATE OF original_filename, ai_summary, classification, category, extracted_text ON documents BEGIN
		DELETE FROM documents_fts WHERE document_id = old.id;
		INSERT INTO documents_fts(document_id, original_filename, ai_summary, labels, extracted_text)
		VALUES (new.id, new.original_filename, new.ai_summary,
			coalesce(new.classification, '') || ' ' || coalesce(new.category, ''), new.extracted_text);
	END`,
	`CREATE TRIGGER IF NOT EXISTS documents_fts_delete AFTER DELETE ON documents BEGIN
		DELETE FROM documents_fts WHERE document_id = old.id;
	END`,
	`INSERT INTO documents_fts(document_id, original_filename, ai_summary, labels, extracted_text)
		SELECT id, original_filename, ai_summary, coalesce(classification, '') || ' ' || coalesce(category, ''), extracted_text
		FROM documents WHERE id NOT IN (SELECT document_id FROM documents_fts)`,

	`CREATE VIRTUAL TABLE IF NOT EXISTS emails_fts USING fts4(
		email_id, subject, sender, summary, body_text, notindexed=email_id)`,
	`CREATE TRIGGER IF NOT EXISTS emails_fts_insert AFTER INSERT ON emails BEGIN
		INSERT INTO emails_fts(email_id, subject, sender, summary, body_text)
		VALUES (new.id, new.subject, coalesce(new.from_name, '') || ' ' || coalesce(new.from_address, ''), new.summary, new.body_text);
	END`,
	`CREATE TRIGGER IF NOT EXISTS emails_fts_update
	AFTER UPDATE OF subject, from_name, from_address, summary, body_text ON emails BEGIN
		DELETE FROM emails_fts WHERE email_id = old.id;
		INSERT INTO emails_fts(email_id, subject, sender, summary, body_text)
		VALUES (new.id, new.subject, coalesce(new.from_name, '') || ' ' || coalesce(new.from_address, ''), new.summary, new.body_text);
	END`,
	`CREATE TRIGGER IF NOT EXISTS emails_fts_delete AFTER DELETE ON emails BEGIN
		DELETE FROM emails_fts WHERE email_id = old.id;
	END`,
	`INSERT INTO emails_fts(email_id, subject, sender, summary, body_text)
		SELECT id, subject, coalesce(from_name, '') || ' ' || coalesce(from_address, ''), summary, body_text
		FROM emails WHERE id NOT IN (SELECT email_id FROM emails_fts)`,
}

func (sqliteSearchIndex) migrate(db *gorm.DB) error {
	for _, statement := range sqliteSearchStatements {
		if err := db.Exec(statement).Error; err != nil {
			return err
		}
	}
	return nil
}

func (sqliteSearchIndex) candidates(query *gorm.DB, table string, terms []string) *gorm.DB {
	fts := table + "_fts"
	prefixed := make([]string, len(terms))
	for i, term := range terms {
		prefixed[i] = term + "*"
	}
	return query.
		Joins("JOIN "+fts+" ON "+fts+"."+sqliteFTSTables[table].key+" = "+table+".id").
		Select(table+".id AS id, matchinfo("+fts+", 'pcx') AS match_info").
		Where(fts+" MATCH ?", strings.Join(prefixed, " "))
}

func (sqliteSearchIndex) score(table string, candidate searchCandidate) float64 {
	return matchinfoScore(candidate.MatchInfo, sqliteFTSTables[table].weights)
}

// matchinfoScore weighs, per phrase and column, the hits in this row against
// the hits in all rows. info is the 'pcx' matchinfo blob in native byte order.
func matchinfoScore(info []byte, weights []float64) float64 {
	if len(info) < 8 || len(info)%4 != 0 {
		return 0
	}
	values := make([]uint32, len(info)/4)
	for i := range values {
		values[i] = binary.NativeEndian.Uint32(info[i*4:])
	}
	phrases, columns := int(values[0]), int(values[1])
	if len(values) < 2+3*phrases*columns {
		return 0
	}

	score := 0.0
	for p := 0; p < phrases; p++ {
		for c := 0; c < columns; c++ {
			base := 2 + 3*(p*columns+c)
			hitsInRow, hitsInAllRows := values[base], values[base+1]
			if hitsInRow == 0 || hitsInAllRows == 0 {
				continue
			}
			weight := 1.0
			if c < len(weights) {
				weight = weights[c]
			}
			score += weight * float64(hitsInRow) / float64(hitsInAllRows)
		}
	}
	return score
}
