package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
)

var (
	ErrPolicyViolation      = goerr.New("report violates pipeline policy")
	ErrArtifactNotFound     = goerr.New("report artifact not found")
	ErrLockContention       = goerr.New("per-day lock acquisition timed out")
	ErrEmbeddingUnavailable = goerr.New("embedding service unavailable")
)

// Decision is the outcome of resolving a candidate report against the
// canonical set for its company and day.
type Decision string

const (
	DecisionKeptAsNew            Decision = "kept_as_new"
	DecisionReplacedExisting     Decision = "replaced_existing"
	DecisionDiscardedAsDuplicate Decision = "discarded_as_duplicate"
)

// Accepted reports whether the decision makes the candidate canonical.
func (d Decision) Accepted() bool {
	return d == DecisionKeptAsNew || d == DecisionReplacedExisting
}

// Validate checks if the decision is valid
func (d Decision) Validate() error {
	switch d {
	case DecisionKeptAsNew, DecisionReplacedExisting, DecisionDiscardedAsDuplicate:
		return nil
	default:
		return goerr.New("invalid decision", goerr.V("decision", d))
	}
}

// Report is an immutable report artifact. Superseding a report never mutates
// it in place; a new artifact is written and the old one is demoted.
type Report struct {
	Company     string
	Timestamp   time.Time
	Content     string
	ContentHash string
}

// NewReport builds a report artifact, deriving the content hash from the
// normalized content.
func NewReport(company, content string, timestamp time.Time) *Report {
	return &Report{
		Company:     company,
		Timestamp:   timestamp,
		Content:     content,
		ContentHash: HashContent(content),
	}
}

// Validate rejects reports that must not reach any storage or index write.
func (r *Report) Validate() error {
	if strings.TrimSpace(r.Company) == "" {
		return goerr.Wrap(ErrPolicyViolation, "company is empty")
	}
	if strings.TrimSpace(r.Content) == "" {
		return goerr.Wrap(ErrPolicyViolation, "content is empty", goerr.V("company", r.Company))
	}
	if r.Timestamp.IsZero() {
		return goerr.Wrap(ErrPolicyViolation, "timestamp is zero", goerr.V("company", r.Company))
	}
	return nil
}

// DateKey returns the calendar day partition key.
func (r *Report) DateKey() string {
	return r.Timestamp.Format("2006-01-02")
}

// StoragePath returns the derived blob path:
// {company_normalized}/{YYYY-MM-DD}/{HH-MM-SS}.html
func (r *Report) StoragePath() string {
	return fmt.Sprintf("%s/%s/%s.html",
		NormalizeCompany(r.Company),
		r.DateKey(),
		r.Timestamp.Format("15-04-05"),
	)
}

// IndexID returns the vector index entry identifier. At most one active
// entry exists per company/day by construction of this ID.
func (r *Report) IndexID() string {
	return IndexID(r.Company, r.DateKey())
}

// IndexID builds the index entry identifier for a company and day.
func IndexID(company, date string) string {
	return NormalizeCompany(company) + ":" + date
}

// NormalizeCompany lower-cases the company name, strips dots and collapses
// whitespace runs to single underscores.
func NormalizeCompany(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.ReplaceAll(name, ".", "")
	return strings.Join(strings.Fields(name), "_")
}

// HashContent returns the hex digest of the normalized report content.
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(content)))
	return hex.EncodeToString(sum[:])
}
