package extractor

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/knowledge-ingest/internal/core/domain"
)

// XLSX flattens a workbook into tab-separated rows, one sheet after
// another, each sheet prefixed with its name so chunk text keeps context.
type XLSX struct{}

func NewXLSX() *XLSX {
	return &XLSX{}
}

func (x *XLSX) Extract(ctx context.Context, data []byte, _, filename string) (string, error) {
	workbook, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", domain.WrapError(domain.ErrInvalidInput, "open workbook",
			fmt.Errorf("%s: %w", filename, err))
	}
	defer workbook.Close()

	var builder strings.Builder
	for _, sheet := range workbook.GetSheetList() {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		rows, err := workbook.GetRows(sheet)
		if err != nil {
			return "", fmt.Errorf("read sheet %q of %s: %w", sheet, filename, err)
		}

		wroteHeader := false
		for _, cells := range rows {
			line := strings.TrimSpace(strings.Join(cells, "\t"))
			if line == "" {
				continue
			}
			if !wroteHeader {
				if builder.Len() > 0 {
					builder.WriteString("\n\n")
				}
				builder.WriteString("# ")
				builder.WriteString(sheet)
				builder.WriteString("\n")
				wroteHeader = true
			}
			builder.WriteString(line)
			builder.WriteString("\n")
		}
	}
	return strings.TrimRight(builder.String(), "\n"), nil
}
