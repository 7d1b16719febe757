package store

// Field is a partial-update cell for one schema column. The zero value means
// "absent": the column is left untouched by a merge. A set field overwrites
// the stored value, including with an explicit NULL. Absent and null are
// distinct states so an adapter can never clobber another source's column by
// accident; omitting a field is the mechanism for "don't touch this column".
type Field[T any] struct {
	set  bool
	null bool
	val  T
}

// Set returns a field that overwrites the column with v.
func Set[T any](v T) Field[T] {
	return Field[T]{set: true, val: v}
}

// SetNull returns a field that explicitly stores NULL.
func SetNull[T any]() Field[T] {
	return Field[T]{set: true, null: true}
}

// SetPtr returns a field from a nullable source value: nil leaves the stored
// column untouched. This is the "keep existing if new value is null" policy
// for fields that may be legitimately absent from a given source.
func SetPtr[T any](p *T) Field[T] {
	if p == nil {
		return Field[T]{}
	}
	return Set(*p)
}

// IsSet reports whether the field participates in the merge.
func (f Field[T]) IsSet() bool { return f.set }

// Get returns the value and whether it is a set, non-null value.
func (f Field[T]) Get() (T, bool) {
	if !f.set || f.null {
		var zero T
		return zero, false
	}
	return f.val, true
}

func (f Field[T]) arg() any {
	if f.null {
		return nil
	}
	return f.val
}

// fieldArg is the untyped view of a Field used to assemble statements from
// the statically known column sets.
type fieldArg interface {
	IsSet() bool
	arg() any
}

// col pairs a schema column name with the field supplying its value.
type col struct {
	name  string
	field fieldArg
}
