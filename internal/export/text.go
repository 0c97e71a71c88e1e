package export

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
)

// WriteText writes the title, a blank line and one "Label: value" line per row.
func WriteText(w io.Writer, doc Document) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%s\n\n", doc.Title)
	for _, row := range doc.Rows {
		fmt.Fprintf(bw, "%s: %s\n", row.Label, row.Value)
	}
	return bw.Flush()
}

// WriteCSV writes a two-column label,value table with a header line.
func WriteCSV(w io.Writer, doc Document) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Параметр", "Значение"}); err != nil {
		return err
	}
	for _, row := range doc.Rows {
		if err := cw.Write([]string{row.Label, row.Value}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
