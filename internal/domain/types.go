package domain

import "fmt"

// MergePolicy selects how the user-merge step resolves conflicts on
// an already-known smartico_user_id.
type MergePolicy string

const (
	// MergePolicyFirstWrite keeps the identity fields of the first import
	// that created the user (ON CONFLICT DO NOTHING).
	MergePolicyFirstWrite MergePolicy = "first-write"
	// MergePolicyLastWrite overwrites identity fields with non-null incoming
	// values and refreshes the update timestamp.
	MergePolicyLastWrite MergePolicy = "last-write"
)

// ParseMergePolicy parses a policy name from configuration or flags.
func ParseMergePolicy(s string) (MergePolicy, error) {
	switch MergePolicy(s) {
	case MergePolicyFirstWrite, MergePolicyLastWrite:
		return MergePolicy(s), nil
	case "":
		return MergePolicyFirstWrite, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMergePolicy, s)
	}
}

// ImportStats is the aggregate result of one import run. It is always
// returned in full, even on partial failure; callers must inspect Errors
// to detect degraded imports.
type ImportStats struct {
	TotalRows         int64    `json:"totalRows"`
	ProcessedRows     int64    `json:"processedRows"`
	NewUsers          int64    `json:"newUsers"`
	NewPromotions     int64    `json:"newPromotions"`
	NewUserPromotions int64    `json:"newUserPromotions"`
	Errors            []string `json:"errors"`
}

// RowError describes a validation failure on a single CSV row.
// Line numbers are 1-based and count the header row.
type RowError struct {
	Line   int
	Field  string
	Reason string
}

func (e *RowError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("line %d: %s", e.Line, e.Reason)
	}
	return fmt.Sprintf("line %d: field %q: %s", e.Line, e.Field, e.Reason)
}
