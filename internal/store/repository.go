package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository implements CRUD and query operations for one entity type. It is
// stateless; every call runs on the session it is given.
type Repository[T any] struct {
	desc    Descriptor[T]
	columns map[string]bool
	list    string
}

// NewRepository builds a repository for desc. It panics on an incomplete
// descriptor since that is a programming error.
func NewRepository[T any](desc Descriptor[T]) *Repository[T] {
	if err := desc.validate(); err != nil {
		panic(err)
	}
	cols := make(map[string]bool, len(desc.Columns))
	for _, c := range desc.Columns {
		cols[c] = true
	}
	return &Repository[T]{
		desc:    desc,
		columns: cols,
		list:    strings.Join(desc.Columns, ", "),
	}
}

// Entity names the repository's entity.
func (r *Repository[T]) Entity() string { return r.desc.Entity }

func (r *Repository[T]) known(field string) bool { return r.columns[field] }

func (r *Repository[T]) writable(field string) bool {
	return field != r.desc.Key && r.columns[field]
}

func (r *Repository[T]) selectFrom(b *builder) {
	b.write("SELECT ", r.list, " FROM ", r.desc.Table)
}

func (r *Repository[T]) logFailure(s *Session, op string, filter Filter, err error) {
	s.logger.Error().
		Err(err).
		Str("entity", r.desc.Entity).
		Str("op", op).
		Interface("filter", filter).
		Msg("store operation failed")
}

// failWrite logs a failed mutation, aborts the unit of work and returns the
// typed error.
func (r *Repository[T]) failWrite(s *Session, op string, filter Filter, err error) error {
	if errors.Is(err, ErrSessionAborted) {
		return &Error{Entity: r.desc.Entity, Op: op, Err: err}
	}
	r.logFailure(s, op, filter, err)
	s.fail(err)
	return wrap(r.desc.Entity, op, err)
}

func (r *Repository[T]) failRead(s *Session, op string, filter Filter, err error) error {
	if !errors.Is(err, ErrSessionAborted) {
		r.logFailure(s, op, filter, err)
	}
	return wrap(r.desc.Entity, op, err)
}

func (r *Repository[T]) fetch(ctx context.Context, s *Session, b *builder) ([]T, error) {
	rows, err := s.query(ctx, b.String(), b.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []T{}
	for rows.Next() {
		var item T
		if err := rows.Scan(r.desc.Fields(&item)...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", r.desc.Entity, err)
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", r.desc.Entity, err)
	}
	return out, nil
}

// FindByID looks up a row by its surrogate key.
func (r *Repository[T]) FindByID(ctx context.Context, s *Session, id int64) (*T, error) {
	return r.first(ctx, s, "find_by_id", Filter{r.desc.Key: id})
}

// FindOne returns the first row, in key order, matching filter. Further
// matches are ignored, so callers should filter on unique columns.
func (r *Repository[T]) FindOne(ctx context.Context, s *Session, filter Filter) (*T, error) {
	return r.first(ctx, s, "find_one", filter)
}

func (r *Repository[T]) first(ctx context.Context, s *Session, op string, filter Filter) (*T, error) {
	items, err := r.findAll(ctx, s, op, filter, Limit(1))
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, &Error{Entity: r.desc.Entity, Op: op, Err: ErrNotFound}
	}
	return &items[0], nil
}

// FindAll lists rows matching filter.
func (r *Repository[T]) FindAll(ctx context.Context, s *Session, filter Filter, opts ...QueryOption) ([]T, error) {
	return r.findAll(ctx, s, "find_all", filter, opts...)
}

func (r *Repository[T]) findAll(ctx context.Context, s *Session, op string, filter Filter, opts ...QueryOption) ([]T, error) {
	var o queryOptions
	for _, opt := range opts {
		opt(&o)
	}
	filter = filter.effective()

	b := newBuilder(s.dialect)
	r.selectFrom(b)
	if err := b.where(filter, r.known); err != nil {
		return nil, &Error{Entity: r.desc.Entity, Op: op, Err: err}
	}

	order := o.order
	if len(order) == 0 {
		order = []ordering{{field: r.desc.Key}}
	}
	terms := make([]string, 0, len(order))
	for _, ord := range order {
		if !r.known(ord.field) {
			return nil, &Error{Entity: r.desc.Entity, Op: op, Err: fmt.Errorf("%w: %s", ErrUnknownField, ord.field)}
		}
		term := ord.field + " ASC"
		if ord.dir == Desc {
			term = ord.field + " DESC"
		}
		terms = append(terms, term)
	}
	b.write(" ORDER BY ", strings.Join(terms, ", "))
	if o.limit > 0 {
		b.write(" LIMIT ", b.bind(o.limit))
	}
	if o.offset > 0 {
		b.write(" OFFSET ", b.bind(o.offset))
	}

	items, err := r.fetch(ctx, s, b)
	if err != nil {
		return nil, r.failRead(s, op, filter, err)
	}
	return items, nil
}

// Count returns the number of rows matching filter.
func (r *Repository[T]) Count(ctx context.Context, s *Session, filter Filter) (int64, error) {
	filter = filter.effective()
	b := newBuilder(s.dialect)
	b.write("SELECT COUNT(*) FROM ", r.desc.Table)
	if err := b.where(filter, r.known); err != nil {
		return 0, &Error{Entity: r.desc.Entity, Op: "count", Err: err}
	}

	rows, err := s.query(ctx, b.String(), b.args...)
	if err != nil {
		return 0, r.failRead(s, "count", filter, err)
	}
	defer rows.Close()

	var n int64
	if rows.Next() {
		if err := rows.Scan(&n); err != nil {
			return 0, r.failRead(s, "count", filter, err)
		}
	}
	if err := rows.Err(); err != nil {
		return 0, r.failRead(s, "count", filter, err)
	}
	return n, nil
}

// Paginate returns page (1-based) of size rows matching filter in key order.
func (r *Repository[T]) Paginate(ctx context.Context, s *Session, page, size int, filter Filter) ([]T, error) {
	if page < 1 || size < 1 {
		return nil, &Error{Entity: r.desc.Entity, Op: "paginate", Err: fmt.Errorf("%w: page %d size %d", ErrInvalidPage, page, size)}
	}
	return r.findAll(ctx, s, "paginate", filter, Limit(size), offset((page-1)*size))
}

// FindByIDs returns the rows whose key is in ids, in key order.
func (r *Repository[T]) FindByIDs(ctx context.Context, s *Session, ids []int64) ([]T, error) {
	if len(ids) == 0 {
		return []T{}, nil
	}
	b := newBuilder(s.dialect)
	r.selectFrom(b)
	clause, args := s.dialect.MemberOf(r.desc.Key, len(b.args)+1, ids)
	b.args = append(b.args, args...)
	b.write(" WHERE ", clause, " ORDER BY ", r.desc.Key, " ASC")

	items, err := r.fetch(ctx, s, b)
	if err != nil {
		return nil, r.failRead(s, "find_by_ids", Filter{"ids": ids}, err)
	}
	return items, nil
}

// Add inserts one row and returns it as stored.
func (r *Repository[T]) Add(ctx context.Context, s *Session, values Values) (*T, error) {
	return r.add(ctx, s, "add", values)
}

func (r *Repository[T]) add(ctx context.Context, s *Session, op string, values Values) (*T, error) {
	b := newBuilder(s.dialect)
	b.write("INSERT INTO ", r.desc.Table)
	if len(values) == 0 {
		b.write(" DEFAULT VALUES")
	} else {
		keys := sortedKeys(values)
		marks := make([]string, len(keys))
		for i, k := range keys {
			if !r.writable(k) {
				return nil, &Error{Entity: r.desc.Entity, Op: op, Err: fmt.Errorf("%w: %s", ErrUnknownField, k)}
			}
			marks[i] = b.bind(deref(values[k]))
		}
		b.write(" (", strings.Join(keys, ", "), ") VALUES (", strings.Join(marks, ", "), ")")
	}
	b.write(" RETURNING ", r.list)

	items, err := r.fetch(ctx, s, b)
	if err == nil && len(items) != 1 {
		err = fmt.Errorf("insert returned %d rows", len(items))
	}
	if err != nil {
		return nil, r.failWrite(s, op, nil, err)
	}
	return &items[0], nil
}

// AddMany inserts every record or none of them.
func (r *Repository[T]) AddMany(ctx context.Context, s *Session, records []Values) ([]T, error) {
	out := make([]T, 0, len(records))
	err := s.atomic(ctx, func() error {
		for _, values := range records {
			item, err := r.add(ctx, s, "add_many", values)
			if err != nil {
				return err
			}
			out = append(out, *item)
		}
		return nil
	})
	if err != nil {
		return nil, asStoreError(r.desc.Entity, "add_many", err)
	}
	return out, nil
}

// Update sets values on every row matching filter and returns how many rows
// matched. Zero is not an error. A nil or empty filter updates every row, but a
// filter whose criteria are all nil is rejected with ErrEmptyFilter rather
// than widened to the whole table.
func (r *Repository[T]) Update(ctx context.Context, s *Session, filter Filter, values Values) (int64, error) {
	effective := filter.effective()
	if len(filter) > 0 && len(effective) == 0 {
		return 0, &Error{Entity: r.desc.Entity, Op: "update", Err: ErrEmptyFilter}
	}
	return r.update(ctx, s, "update", effective, values)
}

func (r *Repository[T]) update(ctx context.Context, s *Session, op string, filter Filter, values Values) (int64, error) {
	if len(values) == 0 {
		return 0, &Error{Entity: r.desc.Entity, Op: op, Err: ErrNoValues}
	}

	b := newBuilder(s.dialect)
	b.write("UPDATE ", r.desc.Table, " SET ")
	sets := make([]string, 0, len(values)+1)
	for _, k := range sortedKeys(values) {
		if !r.writable(k) {
			return 0, &Error{Entity: r.desc.Entity, Op: op, Err: fmt.Errorf("%w: %s", ErrUnknownField, k)}
		}
		sets = append(sets, k+" = "+b.bind(deref(values[k])))
	}
	if touch := r.desc.Touch; touch != "" {
		if _, set := values[touch]; !set {
			sets = append(sets, touch+" = "+b.bind(time.Now().UTC()))
		}
	}
	b.write(strings.Join(sets, ", "))
	if err := b.where(filter, r.known); err != nil {
		return 0, &Error{Entity: r.desc.Entity, Op: op, Err: err}
	}

	res, err := s.exec(ctx, b.String(), b.args...)
	if err != nil {
		return 0, r.failWrite(s, op, filter, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, r.failWrite(s, op, filter, err)
	}
	return n, nil
}

// Delete removes rows matching filter. An empty filter is rejected before any
// statement is issued.
func (r *Repository[T]) Delete(ctx context.Context, s *Session, filter Filter) (int64, error) {
	filter = filter.effective()
	if len(filter) == 0 {
		return 0, &Error{Entity: r.desc.Entity, Op: "delete", Err: ErrEmptyFilter}
	}

	b := newBuilder(s.dialect)
	b.write("DELETE FROM ", r.desc.Table)
	if err := b.where(filter, r.known); err != nil {
		return 0, &Error{Entity: r.desc.Entity, Op: "delete", Err: err}
	}

	res, err := s.exec(ctx, b.String(), b.args...)
	if err != nil {
		return 0, r.failWrite(s, "delete", filter, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, r.failWrite(s, "delete", filter, err)
	}
	return n, nil
}

// Upsert looks up a row by the values of uniqueFields and updates it in
// place, or inserts values when nothing matches. The lookup and the write are
// separate statements; concurrent callers rely on a unique index on
// uniqueFields to reject the second insert.
func (r *Repository[T]) Upsert(ctx context.Context, s *Session, uniqueFields []string, values Values) (*T, error) {
	key := Filter{}
	for _, f := range uniqueFields {
		if v, ok := values[f]; ok {
			key[f] = v
		}
	}
	key = key.effective()
	if len(key) == 0 {
		return nil, &Error{Entity: r.desc.Entity, Op: "upsert", Err: ErrEmptyFilter}
	}

	existing, err := r.first(ctx, s, "upsert", key)
	switch {
	case errors.Is(err, ErrNotFound):
		return r.add(ctx, s, "upsert", values)
	case err != nil:
		return nil, err
	}

	id := r.idOf(existing)
	if _, err := r.update(ctx, s, "upsert", Filter{r.desc.Key: id}, values); err != nil {
		return nil, err
	}
	return r.first(ctx, s, "upsert", Filter{r.desc.Key: id})
}

// BulkUpdate applies each record to the row named by its id, all or nothing,
// and returns the total number of rows affected.
func (r *Repository[T]) BulkUpdate(ctx context.Context, s *Session, records []Values) (int64, error) {
	for _, rec := range records {
		if isNil(rec[r.desc.Key]) {
			return 0, &Error{Entity: r.desc.Entity, Op: "bulk_update", Err: ErrMissingKey}
		}
	}

	var total int64
	err := s.atomic(ctx, func() error {
		for _, rec := range records {
			values := make(Values, len(rec)-1)
			for k, v := range rec {
				if k != r.desc.Key {
					values[k] = v
				}
			}
			n, err := r.update(ctx, s, "bulk_update", Filter{r.desc.Key: rec[r.desc.Key]}, values)
			if err != nil {
				return err
			}
			total += n
		}
		return nil
	})
	if err != nil {
		return 0, asStoreError(r.desc.Entity, "bulk_update", err)
	}
	return total, nil
}

func (r *Repository[T]) idOf(item *T) int64 {
	for i, c := range r.desc.Columns {
		if c != r.desc.Key {
			continue
		}
		if p, ok := r.desc.Fields(item)[i].(*int64); ok {
			return *p
		}
	}
	panic(fmt.Sprintf("store: %s key is not an *int64 field", r.desc.Entity))
}

// asStoreError keeps typed errors as they are and wraps transaction plumbing
// failures.
func asStoreError(entity, op string, err error) error {
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	return &Error{Entity: entity, Op: op, Err: err}
}
