package exporting

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"reflect"
	"strconv"
	"strings"
)

// column maps a header name to a flat struct field.
type column struct {
	name  string
	index int
	kind  reflect.Kind
}

// columnsOf lists the exported scalar fields of T, named by their json tag.
func columnsOf(t reflect.Type) ([]column, error) {
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("delimited rows must be structs, got %s", t)
	}
	cols := make([]column, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name := f.Name
		if tag, ok := f.Tag.Lookup("json"); ok {
			tag, _, _ = strings.Cut(tag, ",")
			if tag == "-" {
				continue
			}
			if tag != "" {
				name = tag
			}
		}
		switch f.Type.Kind() {
		case reflect.Bool, reflect.String,
			reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
			reflect.Float32, reflect.Float64:
		default:
			return nil, fmt.Errorf("field %s: %s cannot be written as a column", f.Name, f.Type)
		}
		cols = append(cols, column{name: name, index: i, kind: f.Type.Kind()})
	}
	return cols, nil
}

func formatValue(v reflect.Value) string {
	switch v.Kind() {
	case reflect.Bool:
		return strconv.FormatBool(v.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(v.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(v.Uint(), 10)
	case reflect.Float32, reflect.Float64:
		return strconv.FormatFloat(v.Float(), 'g', -1, 64)
	default:
		return v.String()
	}
}

func parseValue(dst reflect.Value, s string) error {
	if s == "" {
		return nil
	}
	switch dst.Kind() {
	case reflect.Bool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return err
		}
		dst.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(s, 10, dst.Type().Bits())
		if err != nil {
			return err
		}
		dst.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(s, 10, dst.Type().Bits())
		if err != nil {
			return err
		}
		dst.SetUint(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(s, dst.Type().Bits())
		if err != nil {
			return err
		}
		dst.SetFloat(f)
	default:
		dst.SetString(s)
	}
	return nil
}

// saveDelimited writes a header row followed by one row per element.
func saveDelimited[T any](path string, rows []T, delimiter rune) error {
	cols, err := columnsOf(reflect.TypeFor[T]())
	if err != nil {
		return err
	}
	return WriteFileAtomic(path, func(w io.Writer) error {
		cw := csv.NewWriter(w)
		cw.Comma = delimiter

		record := make([]string, len(cols))
		for i, c := range cols {
			record[i] = c.name
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
		for n := range rows {
			v := reflect.ValueOf(&rows[n]).Elem()
			for i, c := range cols {
				record[i] = formatValue(v.Field(c.index))
			}
			if err := cw.Write(record); err != nil {
				return fmt.Errorf("failed to write row %d: %w", n, err)
			}
		}
		cw.Flush()
		return cw.Error()
	})
}

// loadDelimited matches header names against T's columns. Unknown columns are
// ignored and missing ones keep their zero value.
func loadDelimited[T any](path string, delimiter rune) ([]T, error) {
	cols, err := columnsOf(reflect.TypeFor[T]())
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.Comma = delimiter
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	byName := make(map[string]column, len(cols))
	for _, c := range cols {
		byName[c.name] = c
	}
	fields := make([]*column, len(header))
	for i, name := range header {
		if c, ok := byName[name]; ok {
			fields[i] = &c
		}
	}

	var out []T
	for line := 2; ; line++ {
		record, err := cr.Read()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, fmt.Errorf("%s: line %d: %w", path, line, err)
		}
		var row T
		v := reflect.ValueOf(&row).Elem()
		for i, s := range record {
			if i >= len(fields) || fields[i] == nil {
				continue
			}
			if err := parseValue(v.Field(fields[i].index), s); err != nil {
				return out, fmt.Errorf("%s: line %d: column %s: %w", path, line, fields[i].name, err)
			}
		}
		out = append(out, row)
	}
}
