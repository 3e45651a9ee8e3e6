package mapper

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/syurodev/system/query/sqlgen"
)

var timeType = reflect.TypeOf(time.Time{})

// Layouts tried when a time column arrives as text.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

// ResultMapper maps rows onto Go structs. Struct fields are matched by
// their db tag, then their json tag, then their lowercased name.
type ResultMapper struct{}

// NewResultMapper creates a new result mapper.
func NewResultMapper() *ResultMapper {
	return &ResultMapper{}
}

// MapToStruct maps a single row to a struct.
func (m *ResultMapper) MapToStruct(row map[string]any, dest any) error {
	destValue := reflect.ValueOf(dest)
	if destValue.Kind() != reflect.Ptr || destValue.IsNil() {
		return fmt.Errorf("dest must be a pointer to struct")
	}
	destValue = destValue.Elem()
	if destValue.Kind() != reflect.Struct {
		return fmt.Errorf("dest must be a pointer to struct")
	}
	return m.mapStruct(row, destValue)
}

func (m *ResultMapper) mapStruct(row map[string]any, destValue reflect.Value) error {
	destType := destValue.Type()
	for i := 0; i < destType.NumField(); i++ {
		field := destType.Field(i)
		fieldValue := destValue.Field(i)
		if field.Anonymous && field.Type.Kind() == reflect.Struct && field.Type != timeType {
			if err := m.mapStruct(row, fieldValue); err != nil {
				return err
			}
			continue
		}
		if !fieldValue.CanSet() {
			continue
		}

		value, ok := lookup(row, field)
		if !ok {
			continue
		}
		if err := setFieldValue(fieldValue, value); err != nil {
			return fmt.Errorf("failed to set field %s: %w", field.Name, err)
		}
	}
	return nil
}

// MapToStructSlice maps multiple rows to a slice of structs or pointers.
func (m *ResultMapper) MapToStructSlice(rows []map[string]any, dest any) error {
	destValue := reflect.ValueOf(dest)
	if destValue.Kind() != reflect.Ptr {
		return fmt.Errorf("dest must be a pointer to slice")
	}
	destValue = destValue.Elem()
	if destValue.Kind() != reflect.Slice {
		return fmt.Errorf("dest must be a pointer to slice")
	}

	elemType := destValue.Type().Elem()
	isPtr := elemType.Kind() == reflect.Ptr
	if isPtr {
		elemType = elemType.Elem()
	}

	out := reflect.MakeSlice(destValue.Type(), 0, len(rows))
	for _, row := range rows {
		elem := reflect.New(elemType)
		if err := m.MapToStruct(row, elem.Interface()); err != nil {
			return err
		}
		if isPtr {
			out = reflect.Append(out, elem)
		} else {
			out = reflect.Append(out, elem.Elem())
		}
	}
	destValue.Set(out)
	return nil
}

// Map converts a row into a new T.
func Map[T any](m *ResultMapper, row map[string]any) (*T, error) {
	out := new(T)
	if err := m.MapToStruct(row, out); err != nil {
		return nil, err
	}
	return out, nil
}

// StructToFields turns a tagged struct into write fields keyed by column.
// Fields tagged db:"-" are skipped; with omitZero, zero values are too.
func StructToFields(v any, omitZero bool) (sqlgen.Fields, error) {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil, fmt.Errorf("mapper: nil struct")
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil, fmt.Errorf("mapper: expected struct, got %s", rv.Kind())
	}
	out := sqlgen.Fields{}
	collectFields(rv, omitZero, out)
	return out, nil
}

func collectFields(rv reflect.Value, omitZero bool, out sqlgen.Fields) {
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		fv := rv.Field(i)
		if field.Anonymous && field.Type.Kind() == reflect.Struct && field.Type != timeType {
			collectFields(fv, omitZero, out)
			continue
		}
		if !field.IsExported() {
			continue
		}
		name, skip := columnName(field)
		if skip {
			continue
		}
		if omitZero && fv.IsZero() {
			continue
		}
		if fv.Kind() == reflect.Ptr {
			if fv.IsNil() {
				out[name] = nil
				continue
			}
			fv = fv.Elem()
		}
		out[name] = fv.Interface()
	}
}

// columnName picks the db tag, then the json tag, then the lowercased name.
func columnName(field reflect.StructField) (string, bool) {
	for _, key := range []string{"db", "json"} {
		tag := field.Tag.Get(key)
		if tag == "-" {
			return "", true
		}
		if name, _, _ := strings.Cut(tag, ","); name != "" {
			return name, false
		}
	}
	return strings.ToLower(field.Name), false
}

func lookup(row map[string]any, field reflect.StructField) (any, bool) {
	for _, key := range []string{"db", "json"} {
		tag := field.Tag.Get(key)
		if tag == "-" {
			return nil, false
		}
		if name, _, _ := strings.Cut(tag, ","); name != "" {
			if v, ok := row[name]; ok {
				return v, true
			}
		}
	}
	name := strings.ToLower(field.Name)
	if v, ok := row[name]; ok {
		return v, true
	}
	for k, v := range row {
		if strings.EqualFold(k, field.Name) {
			return v, true
		}
	}
	return nil, false
}

// setFieldValue sets a field value with type conversion.
func setFieldValue(field reflect.Value, value any) error {
	if value == nil {
		field.Set(reflect.Zero(field.Type()))
		return nil
	}

	if field.Kind() == reflect.Ptr {
		ptr := reflect.New(field.Type().Elem())
		if err := setFieldValue(ptr.Elem(), value); err != nil {
			return err
		}
		field.Set(ptr)
		return nil
	}

	valueReflect := reflect.ValueOf(value)
	fieldType := field.Type()
	if valueReflect.Type().AssignableTo(fieldType) {
		field.Set(valueReflect)
		return nil
	}

	switch fieldType.Kind() {
	case reflect.String:
		field.SetString(fmt.Sprintf("%v", value))

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := toInt(value)
		if err != nil {
			return err
		}
		field.SetInt(n)

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := toInt(value)
		if err != nil {
			return err
		}
		if n < 0 {
			return fmt.Errorf("cannot store negative %d in %s", n, fieldType)
		}
		field.SetUint(uint64(n))

	case reflect.Float32, reflect.Float64:
		switch v := value.(type) {
		case float64:
			field.SetFloat(v)
		case float32:
			field.SetFloat(float64(v))
		case int64:
			field.SetFloat(float64(v))
		case string:
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("cannot convert %q to float: %w", v, err)
			}
			field.SetFloat(f)
		default:
			return fmt.Errorf("cannot convert %T to float", value)
		}

	case reflect.Bool:
		switch v := value.(type) {
		case bool:
			field.SetBool(v)
		case int64:
			field.SetBool(v != 0)
		case string:
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("cannot convert %q to bool: %w", v, err)
			}
			field.SetBool(b)
		default:
			return fmt.Errorf("cannot convert %T to bool", value)
		}

	case reflect.Struct:
		if fieldType != timeType {
			return fmt.Errorf("unsupported struct type: %s", fieldType)
		}
		t, err := toTime(value)
		if err != nil {
			return err
		}
		field.Set(reflect.ValueOf(t))

	default:
		if valueReflect.Type().ConvertibleTo(fieldType) {
			field.Set(valueReflect.Convert(fieldType))
			return nil
		}
		return fmt.Errorf("unsupported field type: %s", fieldType)
	}
	return nil
}

func toInt(value any) (int64, error) {
	switch v := value.(type) {
	case int64:
		return v, nil
	case int32:
		return int64(v), nil
	case int:
		return int64(v), nil
	case uint64:
		return int64(v), nil
	case float64:
		return int64(v), nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("cannot convert %q to int: %w", v, err)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("cannot convert %T to int", value)
	}
}

func toTime(value any) (time.Time, error) {
	switch v := value.(type) {
	case time.Time:
		return v, nil
	case string:
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, v); err == nil {
				return t, nil
			}
		}
		return time.Time{}, fmt.Errorf("cannot parse time %q", v)
	case int64:
		return time.Unix(v, 0).UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("cannot convert %T to time.Time", value)
	}
}
