package indi

import (
	"bytes"
	"strings"
	"testing"
	"testing/iotest"
	"unicode/utf8"

	"golang.org/x/text/transform"
)

func TestEscapeRawBytes(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"ascii", "<a>1.5</a>"},
		{"valid utf-8", "<a>1° é</a>"},
		{"latin-1 bytes", "<a>\xa01\xb0</a>"},
		{"truncated sequence at end", "<a>1</a>\xc2"},
		{"mixed", "\xff\xc2\xa0\xfe"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := transform.NewReader(iotest.OneByteReader(strings.NewReader(tt.in)), escapeRawBytes{})
			var buf bytes.Buffer
			if _, err := buf.ReadFrom(r); err != nil {
				t.Fatalf("ReadFrom() error = %v", err)
			}
			if !utf8.Valid(buf.Bytes()) {
				t.Errorf("escaped output %q is not valid UTF-8", buf.String())
			}
			if got := rawBytes(buf.Bytes()); string(got) != tt.in {
				t.Errorf("rawBytes(escaped) = %q, want %q", got, tt.in)
			}
		})
	}
}

func TestDecoder_DeclaredCharset(t *testing.T) {
	d := newTestDecoder("<?xml version=\"1.0\" encoding=\"ISO-8859-1\"?>\n<message device=\"d\" message=\"caf\xe9\"/>")
	cmd, err := d.Next()
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if m := cmd.(*Message); m.Message != "café" {
		t.Errorf("Message = %q, want %q", m.Message, "café")
	}
}
