package ledger

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"github.com/smartdevs17/govledger/internal/models"
	"github.com/smartdevs17/govledger/pkg/utils"
)

var (
	csvHeader       = []string{"template_id", "name", "latest_version", "data_hash"}
	csvChangeHeader = []string{
		"version", "timestamp", "modified_by",
		"old_lock", "new_lock", "old_fee", "new_fee", "old_rebate", "new_rebate",
		"category", "tags", "reason", "severity",
	}
)

// WriteExportJSON writes an export as indented JSON
func WriteExportJSON(w io.Writer, exp *models.TemplateExport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(exp)
}

// ReadExportJSON parses a JSON export
func ReadExportJSON(r io.Reader) (*models.TemplateExport, error) {
	var exp models.TemplateExport
	if err := json.NewDecoder(r).Decode(&exp); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeValidation, "Invalid JSON export", err.Error())
	}
	return &exp, nil
}

// WriteExportCSV writes an export as a header row, the template row, the
// change header and one row per change. Tags are a JSON array cell.
func WriteExportCSV(w io.Writer, exp *models.TemplateExport) error {
	cw := csv.NewWriter(w)
	rows := [][]string{
		csvHeader,
		{exp.ID.Hex(), exp.Name, strconv.FormatUint(exp.LatestVersion, 10), exp.DataHash.Hex()},
		csvChangeHeader,
	}
	for _, c := range exp.Changes {
		tags := c.Tags
		if tags == nil {
			tags = []string{}
		}
		tagCell, err := json.Marshal(tags)
		if err != nil {
			return err
		}
		rows = append(rows, []string{
			strconv.FormatUint(c.Version, 10),
			strconv.FormatUint(c.Timestamp, 10),
			c.ModifiedBy.Hex(),
			strconv.FormatUint(c.OldLock, 10),
			strconv.FormatUint(c.NewLock, 10),
			strconv.FormatUint(c.OldFee, 10),
			strconv.FormatUint(c.NewFee, 10),
			strconv.FormatUint(c.OldRebate, 10),
			strconv.FormatUint(c.NewRebate, 10),
			c.Category.String(),
			string(tagCell),
			c.Reason,
			c.Severity.String(),
		})
	}
	if err := cw.WriteAll(rows); err != nil {
		return utils.WrapError(utils.ErrCodeInternal, "Failed to write CSV export", err)
	}
	return nil
}

// ReadExportCSV parses a CSV export written by WriteExportCSV
func ReadExportCSV(r io.Reader) (*models.TemplateExport, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeValidation, "Invalid CSV export", err.Error())
	}
	if len(rows) < 3 || len(rows[1]) != len(csvHeader) {
		return nil, utils.NewAppError(utils.ErrCodeValidation, "Invalid CSV export", "missing template header")
	}

	head := rows[1]
	if !utils.IsValidHash(head[0]) || !utils.IsValidHash(head[3]) {
		return nil, utils.NewAppError(utils.ErrCodeValidation, "Invalid CSV export", "malformed hash")
	}
	version, err := strconv.ParseUint(head[2], 10, 64)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeValidation, "Invalid CSV export", err.Error())
	}
	exp := &models.TemplateExport{
		ID:            common.HexToHash(head[0]),
		Name:          head[1],
		LatestVersion: version,
		DataHash:      common.HexToHash(head[3]),
	}

	for i, row := range rows[3:] {
		c, err := parseChangeRow(row)
		if err != nil {
			return nil, utils.NewAppError(utils.ErrCodeValidation, "Invalid CSV export",
				fmt.Sprintf("change row %d: %v", i+1, err))
		}
		exp.Changes = append(exp.Changes, c)
	}
	return exp, nil
}

func parseChangeRow(row []string) (models.ChangeLogEntry, error) {
	var c models.ChangeLogEntry
	if len(row) != len(csvChangeHeader) {
		return c, fmt.Errorf("expected %d fields, got %d", len(csvChangeHeader), len(row))
	}
	nums := make([]uint64, 0, 8)
	for _, idx := range []int{0, 1, 3, 4, 5, 6, 7, 8} {
		v, err := strconv.ParseUint(row[idx], 10, 64)
		if err != nil {
			return c, fmt.Errorf("%s: %w", csvChangeHeader[idx], err)
		}
		nums = append(nums, v)
	}
	if !common.IsHexAddress(row[2]) {
		return c, fmt.Errorf("modified_by: invalid address")
	}
	category, err := models.ParseCategory(row[9])
	if err != nil {
		return c, err
	}
	severity, err := models.ParseSeverity(row[12])
	if err != nil {
		return c, err
	}
	var tags []string
	if err := json.Unmarshal([]byte(row[10]), &tags); err != nil {
		return c, fmt.Errorf("tags: %w", err)
	}

	c = models.ChangeLogEntry{
		Version:    nums[0],
		Timestamp:  nums[1],
		ModifiedBy: common.HexToAddress(row[2]),
		OldLock:    nums[2],
		NewLock:    nums[3],
		OldFee:     nums[4],
		NewFee:     nums[5],
		OldRebate:  nums[6],
		NewRebate:  nums[7],
		Category:   category,
		Tags:       tags,
		Reason:     row[11],
		Severity:   severity,
	}
	return c, nil
}

// ExportFileHash recomputes the data hash of a parsed export
func ExportFileHash(exp *models.TemplateExport) (common.Hash, error) {
	return GenerateDataHash(exp.ID, exp.Name, exp.LatestVersion, exp.Changes)
}
