package cli

import (
	"encoding/json"
	"fmt"
	"io"
)

// printer writes command results as text or JSON.
type printer struct {
	format string
	w      io.Writer
}

// print writes v as indented JSON, or calls text in text mode.
func (p printer) print(v any, text func(w io.Writer)) error {
	if p.format == "json" {
		enc := json.NewEncoder(p.w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(p.w)

	return nil
}

func (p printer) line(format string, args ...any) {
	fmt.Fprintf(p.w, format+"\n", args...)
}
