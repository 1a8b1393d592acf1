// Package agent exposes the analytics tables to external tools: the schema
// with a short glossary, and read-only SQL.
package agent

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"gorm.io/gorm"

	"sitepulse/internal/analytics"
)

// DefaultQueryTimeout bounds a single agent query.
const DefaultQueryTimeout = 5 * time.Second

// MaxRows caps the rows returned by one query.
const MaxRows = 1000

var (
	stringLiteralRe = regexp.MustCompile(`'[^']*'`)
	whitespaceRe    = regexp.MustCompile(`\s+`)
	forbiddenRe     = regexp.MustCompile(`\b(insert|update|delete|drop|alter|create|truncate|replace|grant|revoke|exec|execute|call|pragma|attach|detach|vacuum|reindex|load_extension|writefile|readfile)\b`)
)

// SchemaResponse is the response format for the schema endpoint
type SchemaResponse struct {
	Schema   string            `json:"schema"`
	Concepts map[string]string `json:"concepts"`
}

// SQLRequest is the request format for the SQL endpoint
type SQLRequest struct {
	SQL string `json:"sql"`
}

// SQLResponse is the response format for the SQL endpoint
type SQLResponse struct {
	Columns   []string `json:"columns"`
	Rows      [][]any  `json:"rows"`
	RowCount  int      `json:"row_count"`
	Truncated bool     `json:"truncated"`
}

// Concepts returns the glossary for the schema, with the behavioural bot
// thresholds the pipeline is running with.
func Concepts(th analytics.BotThresholds) map[string]string {
	return map[string]string{
		"timestamps":    "created_at columns hold unix milliseconds in UTC. Use date(created_at / 1000, 'unixepoch') to group by day.",
		"event_types":   "analytics_events.event_type is 'page_view' or 'custom'; custom events carry event_name and JSON props.",
		"visitors":      "visitor_hash rotates daily, so COUNT(DISTINCT visitor_hash) is unique visitors per day, not per person.",
		"bots": fmt.Sprintf("is_bot marks user agents matched as crawlers. Behavioural bots are not flagged in the table; "+
			"exclude hashes with more than %d hits on one path or %d hits in a local day "+
			"(date(created_at / 1000, 'unixepoch', 'localtime')).",
			th.MaxHitsPerPathPerDay, th.MaxHitsTotalPerDay),
		"rollups":         "analytics_daily/monthly/yearly hold human page views per path and bucket ('2006-01-02', '2006-01', '2006').",
		"country_codes":   "country is an upper-case ISO alpha-2 code, empty when unknown.",
		"direct_traffic":  "Direct traffic has a NULL or empty referrer.",
		"blocked_domains": "blocked_referrer_domains lists referrer hosts whose referrer is dropped at ingest.",
	}
}

// GetSchema returns the table definitions with the concepts needed to query them.
func GetSchema(ctx context.Context, db *gorm.DB, th analytics.BotThresholds) (*SchemaResponse, error) {
	schema, err := GetDatabaseSchema(ctx, db)
	if err != nil {
		return nil, err
	}
	return &SchemaResponse{Schema: schema, Concepts: Concepts(th)}, nil
}

// GetDatabaseSchema returns the CREATE statements of every user table.
func GetDatabaseSchema(ctx context.Context, db *gorm.DB) (string, error) {
	var schemas []string
	err := db.WithContext(ctx).
		Raw("SELECT sql FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' AND sql IS NOT NULL ORDER BY name").
		Scan(&schemas).Error
	if err != nil {
		return "", fmt.Errorf("read schema: %w", err)
	}
	return strings.Join(schemas, ";\n") + ";", nil
}

// ValidateReadOnlyQuery rejects anything but a single SELECT (or WITH) statement.
func ValidateReadOnlyQuery(sqlQuery string) error {
	if strings.Contains(sqlQuery, "/*") || strings.Contains(sqlQuery, "--") {
		return fmt.Errorf("comments not allowed in queries")
	}

	trimmed := strings.TrimSuffix(strings.TrimSpace(sqlQuery), ";")
	if strings.Contains(trimmed, ";") {
		return fmt.Errorf("multiple statements not allowed")
	}

	// paths like '/delete-account' must not trip the keyword check
	normalized := stringLiteralRe.ReplaceAllString(trimmed, "''")
	normalized = strings.ToLower(whitespaceRe.ReplaceAllString(normalized, " "))
	normalized = strings.TrimSpace(normalized)

	if !strings.HasPrefix(normalized, "select ") && !strings.HasPrefix(normalized, "with ") {
		return fmt.Errorf("only SELECT queries are allowed")
	}

	if keyword := forbiddenRe.FindString(normalized); keyword != "" {
		return fmt.Errorf("dangerous operation not allowed: %s", keyword)
	}
	return nil
}

// ExecuteQuery validates and runs sqlQuery, returning at most MaxRows rows.
func ExecuteQuery(ctx context.Context, db *gorm.DB, sqlQuery string, timeout time.Duration) (*SQLResponse, error) {
	if err := ValidateReadOnlyQuery(sqlQuery); err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = DefaultQueryTimeout
	}

	queryCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	rows, err := db.WithContext(queryCtx).Raw(sqlQuery).Rows()
	if err != nil {
		return nil, fmt.Errorf("query execution failed: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}

	resp := &SQLResponse{Columns: columns, Rows: [][]any{}}
	values := make([]any, len(columns))
	valuePtrs := make([]any, len(columns))
	for i := range columns {
		valuePtrs[i] = &values[i]
	}

	for rows.Next() {
		if len(resp.Rows) == MaxRows {
			resp.Truncated = true
			break
		}
		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, fmt.Errorf("row scan failed: %w", err)
		}

		row := make([]any, len(columns))
		for i, val := range values {
			if b, ok := val.([]byte); ok {
				row[i] = string(b)
			} else {
				row[i] = val
			}
		}
		resp.Rows = append(resp.Rows, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	resp.RowCount = len(resp.Rows)
	return resp, nil
}
