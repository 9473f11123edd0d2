package services

import "encoding/json"

// Optional 区分三种状态：字段缺省（Set=false）、显式 null（Null=true）、给了值。
type Optional[T any] struct {
	Set   bool
	Null  bool
	Value T
}

func Some[T any](v T) Optional[T] { return Optional[T]{Set: true, Value: v} }

func Null[T any]() Optional[T] { return Optional[T]{Set: true, Null: true} }

// HasValue 字段出现且不是 null
func (o Optional[T]) HasValue() bool { return o.Set && !o.Null }

// UnmarshalJSON 只有 key 出现时才会被调用，所以在这里置 Set
func (o *Optional[T]) UnmarshalJSON(b []byte) error {
	o.Set = true
	if string(b) == "null" {
		o.Null = true
		var zero T
		o.Value = zero
		return nil
	}
	o.Null = false
	return json.Unmarshal(b, &o.Value)
}
