package lms

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/learningops/lmsync/internal/models"
)

// The remote API speaks OData v2: $skip/$top pagination, $filter expressions,
// and a {d: {results: [...]}} response envelope.

// PageQuery returns pagination parameters for one page.
func PageQuery(skip, top int) url.Values {
	q := url.Values{}
	q.Set("$skip", strconv.Itoa(skip))
	q.Set("$top", strconv.Itoa(top))
	return q
}

// ModifiedSinceFilter builds the incremental-sync filter expression.
func ModifiedSinceFilter(since time.Time) string {
	return fmt.Sprintf("lastModified gt datetime'%s'", since.UTC().Format("2006-01-02T15:04:05"))
}

// IDFilter builds an OR-joined equality filter for a chunk of ids, used to
// resolve detail records in batches without exceeding request-size limits.
func IDFilter(field string, ids []string) string {
	clauses := make([]string, 0, len(ids))
	for _, id := range ids {
		clauses = append(clauses, fmt.Sprintf("%s eq '%s'", field, strings.ReplaceAll(id, "'", "''")))
	}
	return strings.Join(clauses, " or ")
}

type odataEnvelope struct {
	D struct {
		Results []models.Raw `json:"results"`
	} `json:"d"`
}

// DecodeResults unwraps the {d: {results: [...]}} envelope.
func DecodeResults(raw json.RawMessage) ([]models.Raw, error) {
	var env odataEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode odata envelope: %w", err)
	}
	return env.D.Results, nil
}
