package importer

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/smartico/promo-importer/internal/adapter"
	"github.com/smartico/promo-importer/internal/domain"
	"github.com/smartico/promo-importer/internal/store/schema"
)

// CSV column names, in the declared file order
const (
	colSmarticoUserID = "smartico_user_id"
	colUserExtID      = "user_ext_id"
	colCoreSmBrandID  = "core_sm_brand_id"
	colCRMBrandID     = "crm_brand_id"
	colExtBrandID     = "ext_brand_id"
	colCRMBrandName   = "crm_brand_name"
	colPromotionName  = "promocao_nome"
	colRules          = "regras"
	colStartsAt       = "data_inicio"
	colEndsAt         = "data_fim"
)

// requiredColumns must all appear in the header; the promotion columns are
// optional because some operator exports carry identity fields only.
var requiredColumns = []string{
	colSmarticoUserID,
	colUserExtID,
	colCoreSmBrandID,
	colCRMBrandID,
	colExtBrandID,
	colCRMBrandName,
}

// dateLayouts are tried in order; layouts without a timezone marker are
// interpreted as UTC.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// defaultValidity is the validity window assigned to synthesized default
// promotions, anchored at parse time.
const defaultValidity = time.Hour * 24 * 365

// RowParser converts raw CSV records into validated staging rows. It is
// header-driven: column positions come from the file's header row, not from
// fixed indexes, so files that omit the optional promotion columns still
// parse.
type RowParser struct {
	cols  map[string]int
	clock adapter.Clock
}

// NewRowParser builds a parser from the header record. Returns
// domain.ErrInvalidHeader when a required column is missing.
func NewRowParser(header []string, clock adapter.Clock) (*RowParser, error) {
	cols := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		cols[name] = i
	}

	for _, name := range requiredColumns {
		if _, ok := cols[name]; !ok {
			return nil, fmt.Errorf("%w: missing column %q", domain.ErrInvalidHeader, name)
		}
	}

	return &RowParser{cols: cols, clock: clock}, nil
}

// Parse validates one CSV record and returns it as a staging row. The line
// number is 1-based and counts the header. Parse is pure except for reading
// the clock when synthesizing a default promotion window.
func (p *RowParser) Parse(line int, record []string) (schema.StagingRow, error) {
	row := schema.StagingRow{LineNumber: line}

	smarticoID, err := p.intField(line, record, colSmarticoUserID)
	if err != nil {
		return row, err
	}
	row.SmarticoUserID = smarticoID

	userExtID, err := p.textField(line, record, colUserExtID)
	if err != nil {
		return row, err
	}
	row.UserExtID = userExtID

	coreBrandID, err := p.intField(line, record, colCoreSmBrandID)
	if err != nil {
		return row, err
	}
	row.CoreSmBrandID = coreBrandID

	crmBrandID, err := p.intField(line, record, colCRMBrandID)
	if err != nil {
		return row, err
	}
	row.CRMBrandID = crmBrandID

	extBrandID, err := p.textField(line, record, colExtBrandID)
	if err != nil {
		return row, err
	}
	row.ExtBrandID = extBrandID

	brandName, err := p.textField(line, record, colCRMBrandName)
	if err != nil {
		return row, err
	}
	row.CRMBrandName = brandName

	if rules := p.optionalField(record, colRules); rules != "" {
		row.Rules = &rules
	}

	startsAt, err := p.dateField(line, record, colStartsAt)
	if err != nil {
		return row, err
	}
	row.StartsAt = startsAt

	endsAt, err := p.dateField(line, record, colEndsAt)
	if err != nil {
		return row, err
	}
	row.EndsAt = endsAt

	// A missing or blank promotion name gets a brand-derived default with a
	// one-year window, so every imported user lands in at least one
	// promotion. Blank names are never passed through: a promotion named ""
	// would silently absorb rows from unrelated brands.
	row.PromotionName = p.optionalField(record, colPromotionName)
	if row.PromotionName == "" {
		row.PromotionName = fmt.Sprintf("%s - Promoção Padrão", brandName)
		if row.StartsAt == nil {
			now := p.clock.Now().UTC()
			end := now.Add(defaultValidity)
			row.StartsAt = &now
			row.EndsAt = &end
		}
	}

	return row, nil
}

func (p *RowParser) rawField(record []string, name string) (string, bool) {
	idx, ok := p.cols[name]
	if !ok || idx >= len(record) {
		return "", false
	}
	return strings.TrimSpace(record[idx]), true
}

func (p *RowParser) textField(line int, record []string, name string) (string, error) {
	v, ok := p.rawField(record, name)
	if !ok || v == "" {
		return "", &domain.RowError{Line: line, Field: name, Reason: "required field is empty"}
	}
	return v, nil
}

func (p *RowParser) optionalField(record []string, name string) string {
	v, _ := p.rawField(record, name)
	return v
}

func (p *RowParser) intField(line int, record []string, name string) (int64, error) {
	v, err := p.textField(line, record, name)
	if err != nil {
		return 0, err
	}

	n, parseErr := strconv.ParseInt(v, 10, 64)
	if parseErr != nil {
		return 0, &domain.RowError{Line: line, Field: name, Reason: fmt.Sprintf("not an integer: %q", v)}
	}
	return n, nil
}

func (p *RowParser) dateField(line int, record []string, name string) (*time.Time, error) {
	v := p.optionalField(record, name)
	if v == "" {
		return nil, nil
	}

	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, v, time.UTC); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}

	return nil, &domain.RowError{Line: line, Field: name, Reason: fmt.Sprintf("unparseable date: %q", v)}
}
