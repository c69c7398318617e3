package main

import (
	"eiscore/internal/core"
	"eiscore/pkg/domain"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/xuri/excelize/v2"
)

func (a *app) seriesCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "series", Short: "Manage measurement series"}

	var label string
	add := &cobra.Command{
		Use:   "add <location> <data.csv|data.xlsx>",
		Short: "Import a spectrum as a new series",
		Long: "Import a spectrum as a new series. Rows hold frequency, real and imaginary\n" +
			"parts; a leading header row is skipped. Workbooks are read from their first sheet.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			series, err := readSpectrum(args[1])
			if err != nil {
				return err
			}
			if label != "" {
				series.Label = label
			}
			return a.project(cmd.Context(), args[0], func(s *core.Session) error {
				added, err := s.AddSeries(cmd.Context(), series)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "%s %q\n", added.ID, added.Label)
				return nil
			})
		},
	}
	add.Flags().StringVar(&label, "label", "", "series label (default: file name)")

	rename := &cobra.Command{
		Use:   "rename <location> <series> <label>",
		Short: "Relabel a series",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.project(cmd.Context(), args[0], func(s *core.Session) error {
				applied, err := s.RenameSeries(cmd.Context(), args[1], args[2])
				if err != nil {
					return err
				}
				fmt.Fprintln(a.out, applied)
				return nil
			})
		},
	}

	remove := &cobra.Command{
		Use:   "delete <location> <series>",
		Short: "Delete a series and its results",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.project(cmd.Context(), args[0], func(s *core.Session) error {
				return s.DeleteSeries(cmd.Context(), args[1])
			})
		},
	}

	mask := &cobra.Command{
		Use:   "mask <location> <series> [index|from-to]...",
		Short: "Replace the set of excluded points",
		Long:  "Replace the set of excluded points. With no indices the mask is cleared.",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := parseIndices(args[2:])
			if err != nil {
				return err
			}
			return a.project(cmd.Context(), args[0], func(s *core.Session) error {
				return s.SetMask(cmd.Context(), args[1], m)
			})
		},
	}

	var avgLabel string
	average := &cobra.Command{
		Use:   "average <location> <series> <series>...",
		Short: "Add the point-wise average of series with identical frequencies",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.project(cmd.Context(), args[0], func(s *core.Session) error {
				out, err := s.Average(cmd.Context(), args[1:], avgLabel)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "%s %q\n", out.ID, out.Label)
				return nil
			})
		},
	}
	average.Flags().StringVar(&avgLabel, "label", "Average", "label of the new series")

	cmd.AddCommand(add, rename, remove, mask, average)
	return cmd
}

// parseIndices turns "3" and "5-7" arguments into a mask.
func parseIndices(args []string) (map[int]bool, error) {
	mask := make(map[int]bool)
	for _, arg := range args {
		lo, hi, isRange := strings.Cut(arg, "-")
		from, err := strconv.Atoi(lo)
		if err != nil {
			return nil, fmt.Errorf("bad index %q", arg)
		}
		to := from
		if isRange {
			if to, err = strconv.Atoi(hi); err != nil || to < from {
				return nil, fmt.Errorf("bad range %q", arg)
			}
		}
		for i := from; i <= to; i++ {
			mask[i] = true
		}
	}
	return mask, nil
}

func readSpectrum(path string) (domain.Series, error) {
	var (
		rows [][]string
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		rows, err = xlsxRows(path)
	default:
		rows, err = csvRows(path)
	}
	if err != nil {
		return domain.Series{}, fmt.Errorf("read %s: %w", path, err)
	}
	abs, absErr := filepath.Abs(path)
	if absErr != nil {
		abs = path
	}
	s := domain.Series{
		Label: strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Path:  abs,
	}
	for i, row := range rows {
		if len(row) < 3 {
			return domain.Series{}, fmt.Errorf("%s row %d: want frequency, real, imaginary", path, i+1)
		}
		var v [3]float64
		for j := range v {
			if v[j], err = strconv.ParseFloat(strings.TrimSpace(row[j]), 64); err != nil {
				break
			}
		}
		if err != nil {
			if i == 0 {
				continue
			}
			return domain.Series{}, fmt.Errorf("%s row %d: %w", path, i+1, err)
		}
		s.Frequencies = append(s.Frequencies, v[0])
		s.Real = append(s.Real, v[1])
		s.Imag = append(s.Imag, v[2])
	}
	if len(s.Frequencies) == 0 {
		return domain.Series{}, fmt.Errorf("%s: no data rows", path)
	}
	return s, nil
}

func csvRows(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	var rows [][]string
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
}

func xlsxRows(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	return f.GetRows(sheets[0])
}
