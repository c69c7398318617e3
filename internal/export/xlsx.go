// Package export writes resolved plots as spreadsheet workbooks.
package export

import (
	"eiscore/internal/plot"
	"eiscore/pkg/domain"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

const (
	summarySheet   = "Summary"
	maxSheetName   = 31
	sheetForbidden = `[]:*?/\`
)

// Axes returns the column headers used for a plot kind.
func Axes(kind domain.PlotKind) (string, string) {
	switch kind {
	case domain.PlotNyquist:
		return "Z' (ohm)", "-Z'' (ohm)"
	case domain.PlotBodeMagnitude:
		return "f (Hz)", "|Z| (ohm)"
	case domain.PlotBodePhase:
		return "f (Hz)", "-phase (deg)"
	case domain.PlotRealImaginary:
		return "f (Hz)", "Z (ohm)"
	case domain.PlotDRT:
		return "tau (s)", "gamma (ohm)"
	}
	return "x", "y"
}

// WritePlot writes a workbook with a summary sheet followed by one sheet of
// coordinates per renderable, in resolution order.
func WritePlot(w io.Writer, d domain.PlotDescriptor, res plot.Resolution) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return fmt.Errorf("rename summary sheet: %w", err)
	}
	rows := [][]any{
		{"Plot", d.Label},
		{"Kind", string(d.Kind)},
		{"Omitted references", len(res.Omitted)},
		{"Incompatible references", len(res.Incompatible)},
		{},
		{"Sheet", "Label", "Source", "Reference", "Points", "Stale"},
	}
	used := map[string]bool{strings.ToLower(summarySheet): true}
	xName, yName := Axes(d.Kind)
	for i, item := range res.Items {
		name := sheetName(item.Label, i+1, used)
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("add sheet %q: %w", name, err)
		}
		if err := f.SetSheetRow(name, "A1", &[]any{xName, yName}); err != nil {
			return err
		}
		for j := range item.X {
			cell, err := excelize.CoordinatesToCellName(1, j+2)
			if err != nil {
				return err
			}
			if err := f.SetSheetRow(name, cell, &[]any{item.X[j], item.Y[j]}); err != nil {
				return err
			}
		}
		rows = append(rows, []any{name, item.Label, item.Source, item.Ref, len(item.X), item.Stale})
	}
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(summarySheet, cell, &row); err != nil {
			return fmt.Errorf("write summary: %w", err)
		}
	}
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// sheetName derives a unique, valid sheet name from a label.
func sheetName(label string, n int, used map[string]bool) string {
	clean := strings.Map(func(r rune) rune {
		if strings.ContainsRune(sheetForbidden, r) {
			return '_'
		}
		return r
	}, strings.TrimSpace(label))
	clean = strings.Trim(clean, "'")
	if clean == "" {
		clean = "Item " + strconv.Itoa(n)
	}
	base := truncate(clean, maxSheetName)
	name := base
	for k := 2; used[strings.ToLower(name)]; k++ {
		suffix := " " + strconv.Itoa(k)
		name = truncate(base, maxSheetName-len([]rune(suffix))) + suffix
	}
	used[strings.ToLower(name)] = true
	return name
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
