// Package importer converts JSON and CSV habit exports into habit lists and
// back. Parsing never touches a live list: the caller merges the result.
package importer

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/julianstephens/beaver/internal/constants"
	beavererrors "github.com/julianstephens/beaver/internal/errors"
	"github.com/julianstephens/beaver/internal/models"
	"github.com/julianstephens/beaver/internal/utils"
)

// Format names an import/export encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"

	dateColumn = "Date"
)

// ParseFormat accepts "json" or "csv" in any case.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatJSON, FormatCSV:
		return f, nil
	}
	return "", beavererrors.Validation("format", "unsupported format %q (expected json or csv)", s)
}

// FormatFromPath picks the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	return ParseFormat(strings.TrimPrefix(filepath.Ext(path), "."))
}

// Parse reads r in the given format.
func Parse(r io.Reader, format Format) (*models.HabitList, error) {
	switch format {
	case FormatJSON:
		return ParseJSON(r)
	case FormatCSV:
		return ParseCSV(r)
	}
	return nil, beavererrors.Validation("format", "unsupported format %q", format)
}

// ParseJSON reads a document of the form {"habits": [{"name", "records"}]}.
// Full exports with identifiers and metadata are accepted too.
func ParseJSON(r io.Reader) (*models.HabitList, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, beavererrors.ImportFailed(err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, beavererrors.ImportFailed(errors.New("empty document"))
	}
	list, err := models.ParseHabitList(data)
	if err != nil {
		return nil, beavererrors.ImportFailed(err)
	}
	if list.Len() == 0 {
		return nil, beavererrors.ImportFailed(errors.New("no habits found"))
	}
	for _, h := range list.Habits() {
		if _, err := models.ValidateHabitName(h.Name()); err != nil {
			return nil, beavererrors.ImportFailed(err)
		}
	}
	return list, nil
}

// ParseCSV reads a table whose first column is "Date" (YYYY-MM-DD) and whose
// other columns are habit names. A cell greater than zero marks the day
// done; anything else, including an empty cell, marks it not done. Columns
// with an empty header are ignored.
func ParseCSV(r io.Reader) (*models.HabitList, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, beavererrors.ImportFailed(err)
	}
	if len(rows) == 0 {
		return nil, beavererrors.ImportFailed(errors.New("empty CSV"))
	}
	header := rows[0]
	if len(header) == 0 || strings.TrimSpace(strings.TrimPrefix(header[0], "\ufeff")) != dateColumn {
		return nil, beavererrors.ImportFailed(fmt.Errorf("first column must be %q", dateColumn))
	}

	list := models.NewHabitList()
	columns := make(map[int]*models.Habit)
	for i, name := range header[1:] {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, err := models.ValidateHabitName(name); err != nil {
			return nil, beavererrors.ImportFailed(err)
		}
		h := models.NewHabit("", name)
		list.AddHabit(h)
		columns[i+1] = h
	}
	if len(columns) == 0 {
		return nil, beavererrors.ImportFailed(errors.New("no habits found"))
	}

	for n, row := range rows[1:] {
		if len(row) == 0 || (len(row) == 1 && strings.TrimSpace(row[0]) == "") {
			continue
		}
		day, err := utils.ParseDate(row[0])
		if err != nil {
			return nil, beavererrors.ImportFailed(fmt.Errorf("line %d: invalid date %q", n+2, row[0]))
		}
		for col, h := range columns {
			state := models.CheckedNotDone
			if col < len(row) {
				done, err := cellDone(row[col])
				if err != nil {
					return nil, beavererrors.ImportFailed(fmt.Errorf("line %d, column %q: %w", n+2, h.Name(), err))
				}
				if done {
					state = models.CheckedDone
				}
			}
			if _, err := h.Tick(day, state, nil); err != nil {
				return nil, beavererrors.ImportFailed(err)
			}
		}
	}
	return list, nil
}

func cellDone(cell string) (bool, error) {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return false, nil
	}
	v, err := strconv.Atoi(cell)
	if err != nil {
		return false, fmt.Errorf("invalid value %q", cell)
	}
	return v > 0, nil
}

// Export writes list in the given format.
func Export(w io.Writer, list *models.HabitList, format Format) error {
	switch format {
	case FormatJSON:
		return ExportJSON(w, list)
	case FormatCSV:
		return ExportCSV(w, list)
	}
	return beavererrors.Validation("format", "unsupported format %q", format)
}

// ExportJSON writes the full document, indented.
func ExportJSON(w io.Writer, list *models.HabitList) error {
	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode habit list: %w", err)
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}

// ExportCSV writes one row per recorded day, newest first, with 1 for done
// and -1 otherwise. Soft-deleted habits are left out.
func ExportCSV(w io.Writer, list *models.HabitList) error {
	habits := models.NewHabitListBuilder(list).
		Status(constants.HabitStatusActive, constants.HabitStatusArchived).
		Build()

	header := []string{dateColumn}
	seen := make(map[utils.Date]bool)
	var days []utils.Date
	for _, h := range habits {
		header = append(header, h.Name())
		for _, r := range h.Records() {
			if !seen[r.Day] {
				seen[r.Day] = true
				days = append(days, r.Day)
			}
		}
	}
	sort.Slice(days, func(i, j int) bool { return days[i].After(days[j]) })

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, d := range days {
		row := []string{d.String()}
		for _, h := range habits {
			v := "-1"
			if r, ok := h.RecordBy(d); ok && r.IsDone() {
				v = "1"
			}
			row = append(row, v)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
