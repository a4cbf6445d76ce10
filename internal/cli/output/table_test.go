package output

import (
	"bytes"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestTableFormatter_Format_Table(t *testing.T) {
	table := &Table{
		Headers: []string{"NAME", "VALUE"},
		Rows: [][]string{
			{"key1", "value1"},
			{"key2", "value2"},
		},
	}

	tests := []struct {
		name      string
		data      any
		noHeaders bool
		want      string
	}{
		{"pointer", table, false, "NAME  VALUE\nkey1  value1\nkey2  value2\n"},
		{"value", *table, false, "NAME  VALUE\nkey1  value1\nkey2  value2\n"},
		{"no headers", table, true, "key1  value1\nkey2  value2\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			f := &TableFormatter{NoHeaders: tt.noHeaders}
			if err := f.Format(&buf, tt.data); err != nil {
				t.Fatalf("Format() error = %v", err)
			}
			if buf.String() != tt.want {
				t.Errorf("Format() =\n%q\nwant\n%q", buf.String(), tt.want)
			}
		})
	}
}

type row struct {
	ID       string        `json:"id"`
	UserName string        `table:"user"`
	Detail   string        `table:",wide"`
	Secret   string        `table:"-"`
	TTL      time.Duration `json:"ttl"`
}

func TestTableFormatter_Slice(t *testing.T) {
	rows := []row{
		{ID: "a", UserName: "alice", Detail: "d1", Secret: "s", TTL: 90*time.Second + 300*time.Millisecond},
		{ID: "b", UserName: "bob", Detail: "d2", Secret: "s", TTL: 0},
	}

	t.Run("narrow", func(t *testing.T) {
		var buf bytes.Buffer
		if err := (&TableFormatter{}).Format(&buf, rows); err != nil {
			t.Fatalf("Format() error = %v", err)
		}
		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		if len(lines) != 3 {
			t.Fatalf("got %d lines, want 3:\n%s", len(lines), buf.String())
		}
		if fields := strings.Fields(lines[0]); !reflect.DeepEqual(fields, []string{"ID", "USER", "TTL"}) {
			t.Errorf("headers = %v", fields)
		}
		if fields := strings.Fields(lines[1]); !reflect.DeepEqual(fields, []string{"a", "alice", "1m30s"}) {
			t.Errorf("row = %v", fields)
		}
	})

	t.Run("wide", func(t *testing.T) {
		var buf bytes.Buffer
		if err := (&TableFormatter{Wide: true}).Format(&buf, rows); err != nil {
			t.Fatalf("Format() error = %v", err)
		}
		header := strings.Fields(strings.SplitN(buf.String(), "\n", 2)[0])
		if !reflect.DeepEqual(header, []string{"ID", "USER", "DETAIL", "TTL"}) {
			t.Errorf("wide headers = %v", header)
		}
	})

	t.Run("empty", func(t *testing.T) {
		var buf bytes.Buffer
		if err := (&TableFormatter{}).Format(&buf, []row{}); err != nil {
			t.Fatalf("Format() error = %v", err)
		}
		if strings.TrimSpace(buf.String()) != "ID  USER  TTL" {
			t.Errorf("Format() = %q", buf.String())
		}
	})
}

func TestTableFormatter_Struct(t *testing.T) {
	var buf bytes.Buffer
	if err := (&TableFormatter{}).Format(&buf, &row{ID: "a", UserName: "alice"}); err != nil {
		t.Fatalf("Format() error = %v", err)
	}

	want := "FIELD  VALUE\nid     a\nuser   alice\nttl    0s\n"
	if buf.String() != want {
		t.Errorf("Format() =\n%q\nwant\n%q", buf.String(), want)
	}
}

func TestTableFormatter_MapSorted(t *testing.T) {
	var buf bytes.Buffer
	data := map[string]int{"zeta": 1, "alpha": 2, "mid": 3}
	if err := (&TableFormatter{}).Format(&buf, data); err != nil {
		t.Fatalf("Format() error = %v", err)
	}

	want := "KEY    VALUE\nalpha  2\nmid    3\nzeta   1\n"
	if buf.String() != want {
		t.Errorf("Format() =\n%q\nwant\n%q", buf.String(), want)
	}
}

func TestTableFormatter_FallbackJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := (&TableFormatter{}).Format(&buf, 42); err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	if strings.TrimSpace(buf.String()) != "42" {
		t.Errorf("Format() = %q, want JSON fallback", buf.String())
	}
}

func TestFormatValue(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 5, 0, time.UTC)
	var nilPtr *string

	tests := []struct {
		name string
		in   any
		want string
	}{
		{"empty string", "", "-"},
		{"string", "x", "x"},
		{"int", 7, "7"},
		{"uint", uint8(3), "3"},
		{"float", 1.5, "1.50"},
		{"true", true, "yes"},
		{"false", false, "no"},
		{"time", ts, "2026-03-01 12:00:05"},
		{"zero time", time.Time{}, "-"},
		{"duration", 2*time.Minute + 500*time.Millisecond, "2m0s"},
		{"slice", []string{"openid", "email"}, "openid,email"},
		{"empty slice", []string{}, "-"},
		{"map", map[string]int{"a": 1}, "{1 keys}"},
		{"nil pointer", nilPtr, "-"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatValue(reflect.ValueOf(tt.in)); got != tt.want {
				t.Errorf("formatValue(%v) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestToSnakeCase(t *testing.T) {
	tests := []struct{ in, want string }{
		{"ID", "I_D"},
		{"UserName", "User_Name"},
		{"ttl", "ttl"},
	}
	for _, tt := range tests {
		if got := toSnakeCase(tt.in); got != tt.want {
			t.Errorf("toSnakeCase(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
