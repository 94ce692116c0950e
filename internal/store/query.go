package store

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// Values is a partial-value object: column name to the value to write.
type Values map[string]any

// Filter is a set of criteria combined with AND. Nil values are skipped, so a
// partially filled criteria object only constrains the fields that were set.
type Filter map[string]any

// Null matches rows where the column IS NULL.
var Null = nullMatch{}

type nullMatch struct{}

type containsMatch struct {
	needle string
}

// Contains matches rows where the column contains s, ignoring case.
func Contains(s string) any {
	return containsMatch{needle: s}
}

func (c containsMatch) pattern() string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(strings.ToLower(c.needle)) + "%"
}

// Direction orders a result set.
type Direction int

const (
	Asc Direction = iota
	Desc
)

type ordering struct {
	field string
	dir   Direction
}

type queryOptions struct {
	limit  int
	offset int
	order  []ordering
}

// QueryOption adjusts a FindAll query.
type QueryOption func(*queryOptions)

// Limit caps the number of rows returned. Non-positive values are ignored.
func Limit(n int) QueryOption {
	return func(o *queryOptions) { o.limit = n }
}

// OrderBy sorts by field. Repeated options sort by each in turn.
func OrderBy(field string, dir Direction) QueryOption {
	return func(o *queryOptions) { o.order = append(o.order, ordering{field: field, dir: dir}) }
}

func offset(n int) QueryOption {
	return func(o *queryOptions) { o.offset = n }
}

// builder accumulates SQL text and bind arguments for one statement.
type builder struct {
	dialect Dialect
	sql     strings.Builder
	args    []any
}

func newBuilder(d Dialect) *builder {
	return &builder{dialect: d}
}

func (b *builder) write(parts ...string) *builder {
	for _, p := range parts {
		b.sql.WriteString(p)
	}
	return b
}

func (b *builder) bind(v any) string {
	b.args = append(b.args, v)
	return b.dialect.Placeholder(len(b.args))
}

func (b *builder) String() string {
	return b.sql.String()
}

// sortedKeys keeps generated SQL stable for a given map.
func sortedKeys[M ~map[string]any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// effective drops nil criteria.
func (f Filter) effective() Filter {
	out := make(Filter, len(f))
	for k, v := range f {
		if isNil(v) {
			continue
		}
		out[k] = v
	}
	return out
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

// deref unwraps pointers so drivers receive plain values.
func deref(v any) any {
	if isNil(v) {
		return nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		return rv.Elem().Interface()
	}
	return v
}

func (b *builder) where(f Filter, known func(string) bool) error {
	if len(f) == 0 {
		return nil
	}
	clauses := make([]string, 0, len(f))
	for _, k := range sortedKeys(f) {
		if !known(k) {
			return fmt.Errorf("%w: %s", ErrUnknownField, k)
		}
		switch v := f[k].(type) {
		case nullMatch:
			clauses = append(clauses, k+" IS NULL")
		case containsMatch:
			clauses = append(clauses, "LOWER("+k+") LIKE "+b.bind(v.pattern())+` ESCAPE '\'`)
		default:
			clauses = append(clauses, k+" = "+b.bind(deref(v)))
		}
	}
	b.write(" WHERE ", strings.Join(clauses, " AND "))
	return nil
}
