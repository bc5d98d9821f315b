package source

import (
	"fmt"
	"strings"
	"time"
)

// Mode selects how a crawl picks its starting point.
type Mode int

const (
	// ModeFull crawls from offset zero with the filter unmodified.
	ModeFull Mode = iota
	// ModeIncremental only requests records changed after the newest stored one.
	ModeIncremental
)

func (m Mode) String() string {
	switch m {
	case ModeFull:
		return "full"
	case ModeIncremental:
		return "incremental"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode maps "full"/"all" and "incremental"/"new" to a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "full", "all":
		return ModeFull, nil
	case "incremental", "new":
		return ModeIncremental, nil
	default:
		return ModeFull, &ConfigurationError{Reason: fmt.Sprintf("unknown crawl mode %q", s)}
	}
}

// DefaultChangedField is the upstream field holding the source change timestamp.
const DefaultChangedField = "date.changed"

// ChangedResolution is the precision of upstream change timestamps. Range
// filters are inclusive, so "strictly after t" is expressed as "from t+resolution".
const ChangedResolution = time.Second

// Query is a validated crawl request built once before any call is issued.
type Query struct {
	params       Params
	mode         Mode
	changedField string
}

// NewQuery validates params for mode. Incremental crawls require the sort to be
// exactly ascending by the changed field; anything else is a ConfigurationError.
func NewQuery(params Params, mode Mode, changedField string) (Query, error) {
	if changedField == "" {
		changedField = DefaultChangedField
	}
	if params.Limit < 0 {
		return Query{}, &ConfigurationError{Reason: "limit must be >= 0"}
	}
	if params.Filter != nil {
		for i, c := range params.Filter.Conditions {
			if strings.TrimSpace(c.Field) == "" {
				return Query{}, &ConfigurationError{Reason: fmt.Sprintf("filter condition %d has no field", i)}
			}
		}
	}
	switch mode {
	case ModeFull:
	case ModeIncremental:
		want := changedField + ":asc"
		if len(params.Sort) != 1 || params.Sort[0] != want {
			return Query{}, &ConfigurationError{
				Reason: fmt.Sprintf("incremental mode requires sort [%q], got %q", want, params.Sort),
			}
		}
		if f := params.Filter; f != nil && len(f.Conditions) > 1 && !strings.EqualFold(f.Operator, "AND") && f.Operator != "" {
			return Query{}, &ConfigurationError{
				Reason: fmt.Sprintf("incremental mode cannot narrow a %q filter", f.Operator),
			}
		}
	default:
		return Query{}, &ConfigurationError{Reason: fmt.Sprintf("unsupported mode %s", mode)}
	}
	return Query{params: params.Clone(), mode: mode, changedField: changedField}, nil
}

// Mode returns the crawl mode.
func (q Query) Mode() Mode { return q.mode }

// ChangedField returns the upstream changed-timestamp field name.
func (q Query) ChangedField() string { return q.changedField }

// Params returns a copy of the base parameters with the offset reset to zero.
func (q Query) Params() Params {
	p := q.params.Clone()
	p.Offset = 0
	return p
}

// Since returns the base parameters narrowed to records changed strictly after
// latest. Existing conditions are kept and ANDed with the new range condition.
func (q Query) Since(latest time.Time) Params {
	p := q.Params()
	var conditions []Condition
	if p.Filter != nil {
		conditions = append(conditions, p.Filter.Conditions...)
	}
	from := latest.UTC().Truncate(ChangedResolution).Add(ChangedResolution)
	conditions = append(conditions, Condition{
		Field: q.changedField,
		Value: map[string]any{"from": from.Format(time.RFC3339)},
	})
	p.Filter = &Filter{Operator: "AND", Conditions: conditions}
	return p
}
