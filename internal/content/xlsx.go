package content

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Column headers recognised by ImportXLSX. Header matching is
// case-insensitive; unknown columns are ignored.
const (
	ColID            = "id"
	ColPrompt        = "prompt"
	ColAnswer        = "answer"
	ColAlternatives  = "alternatives"
	ColDifficulty    = "difficulty"
	ColTags          = "tags"
	ColContentType   = "content_type"
	ColModes         = "modes"
	ColPreferredMode = "preferred_mode"
)

// ImportResult reports the outcome of an xlsx import.
type ImportResult struct {
	Items   []Item
	Skipped int
	Errors  []string
}

// ImportXLSX reads items from the given sheet of an xlsx workbook. The
// first row is the header. An empty sheet name selects the first sheet.
// Rows that fail validation are skipped and reported in Errors.
func ImportXLSX(path, sheet string) (*ImportResult, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("workbook %s has no sheets", path)
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read rows from %q: %w", sheet, err)
	}
	if len(rows) == 0 {
		return &ImportResult{}, nil
	}

	header := make(map[string]int, len(rows[0]))
	for i, name := range rows[0] {
		header[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{ColID, ColAnswer} {
		if _, ok := header[required]; !ok {
			return nil, fmt.Errorf("sheet %q is missing the %q column", sheet, required)
		}
	}

	result := &ImportResult{}
	for i, row := range rows[1:] {
		line := i + 2
		cell := func(col string) string {
			idx, ok := header[col]
			if !ok || idx >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[idx])
		}

		if cell(ColID) == "" && cell(ColAnswer) == "" {
			continue
		}

		item, err := rowToItem(cell)
		if err == nil {
			err = item.Validate()
		}
		if err != nil {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("row %d: %v", line, err))
			continue
		}
		result.Items = append(result.Items, item)
	}
	return result, nil
}

func rowToItem(cell func(string) string) (Item, error) {
	item := Item{
		ID:           cell(ColID),
		Prompt:       cell(ColPrompt),
		Answer:       cell(ColAnswer),
		ContentType:  cell(ColContentType),
		Alternatives: splitList(cell(ColAlternatives), "|"),
		Tags:         splitList(cell(ColTags), ","),
	}

	if d := cell(ColDifficulty); d != "" {
		v, err := strconv.ParseFloat(d, 64)
		if err != nil {
			return Item{}, fmt.Errorf("invalid difficulty %q: %w", d, err)
		}
		item.Difficulty = v
	}

	for _, m := range splitList(cell(ColModes), ",") {
		mode, err := ParseMode(m)
		if err != nil {
			return Item{}, err
		}
		item.Modes = append(item.Modes, mode)
	}

	if pm := cell(ColPreferredMode); pm != "" {
		mode, err := ParseMode(pm)
		if err != nil {
			return Item{}, err
		}
		item.PreferredMode = mode
	}
	return item, nil
}

func splitList(s, sep string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, sep) {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
