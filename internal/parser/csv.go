package parser

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// CSVParser handles CSV files. Each row is written as header: value pairs.
type CSVParser struct{}

func (p *CSVParser) Parse(r io.Reader, filename string) (Attachment, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return Attachment{}, fmt.Errorf("parse csv: %w", err)
	}

	att := Attachment{Name: filename, Type: TypeCSV}
	if len(records) == 0 {
		return att, nil
	}

	headers := records[0]
	var out textWriter
	out.block("Headers: " + strings.Join(headers, ", "))

	// Rows are grouped so the budgeter can drop whole batches.
	const batchSize = 20
	dataRows := records[1:]
	for i := 0; i < len(dataRows); i += batchSize {
		end := min(i+batchSize, len(dataRows))

		var text strings.Builder
		for _, row := range dataRows[i:end] {
			for j, cell := range row {
				if j < len(headers) {
					text.WriteString(headers[j] + ": " + cell)
				} else {
					text.WriteString(cell)
				}
				if j < len(row)-1 {
					text.WriteString(", ")
				}
			}
			text.WriteString("\n")
		}
		out.block(text.String())
	}

	att.Content = out.String()
	return att, nil
}
