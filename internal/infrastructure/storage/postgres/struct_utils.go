package postgres

import (
	"reflect"
	"slices"
	"sync"
)

// fieldInfo is a struct field mapped to a column.
type fieldInfo struct {
	index  []int
	column string
}

// typeCache holds []fieldInfo per struct type.
var typeCache sync.Map

func fieldsOf(t reflect.Type) []fieldInfo {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if cached, ok := typeCache.Load(t); ok {
		return cached.([]fieldInfo)
	}

	var fields []fieldInfo
	if t.Kind() == reflect.Struct {
		fields = collectFields(t, nil)
	}
	typeCache.Store(t, fields)
	return fields
}

func collectFields(t reflect.Type, parent []int) []fieldInfo {
	var fields []fieldInfo
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		index := append(slices.Clone(parent), i)

		if field.Anonymous && field.Type.Kind() == reflect.Struct {
			fields = append(fields, collectFields(field.Type, index)...)
			continue
		}

		tag := field.Tag.Get("db")
		if tag == "" || tag == "-" {
			continue
		}
		fields = append(fields, fieldInfo{index: index, column: tag})
	}
	return fields
}

// ExtractDBColumns returns the "db" tag columns of T in field order,
// skipping the listed read-only columns.
//
//	columns := ExtractDBColumns[production_group.ProductionGroup]()
func ExtractDBColumns[T any](exclude ...string) []string {
	var zero T
	fields := fieldsOf(reflect.TypeOf(zero))

	cols := make([]string, 0, len(fields))
	for _, f := range fields {
		if slices.Contains(exclude, f.column) {
			continue
		}
		cols = append(cols, f.column)
	}
	return cols
}

// StructToMap converts a struct to a column map using "db" tags.
// Embedded structs are flattened.
func StructToMap(v any) map[string]any {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr {
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil
	}

	fields := fieldsOf(rv.Type())
	res := make(map[string]any, len(fields))
	for _, f := range fields {
		res[f.column] = rv.FieldByIndex(f.index).Interface()
	}
	return res
}

// PickColumns returns the entries of data named by cols.
func PickColumns(data map[string]any, cols []string) map[string]any {
	picked := make(map[string]any, len(cols))
	for _, col := range cols {
		if v, ok := data[col]; ok {
			picked[col] = v
		}
	}
	return picked
}
