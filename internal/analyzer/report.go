package analyzer

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/xuri/excelize/v2"

	"qfactor/internal/dataset"
)

// WriteSummaryCSV saves IC summary rows to a CSV file. Missing statistics
// render as empty cells, never as zeros.
func WriteSummaryCSV(rows []dataset.AnalysisRow, outputPath string) error {
	if len(rows) == 0 {
		return fmt.Errorf("no summary rows to save")
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create CSV file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"factor_name", "period", "mean_ic", "std_ic", "ir", "positive_ic_rate"}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("write CSV header: %w", err)
	}

	for _, row := range rows {
		record := []string{
			row.FactorName,
			strconv.Itoa(row.Period),
			strconv.FormatFloat(row.MeanIC, 'f', 6, 64),
			strconv.FormatFloat(row.StdIC, 'f', 6, 64),
			formatValue(row.IR, 4),
			strconv.FormatFloat(row.PositiveICRate, 'f', 4, 64),
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("write CSV record for %s: %w", row.FactorName, err)
		}
	}
	return nil
}

// WriteGroupReturnsCSV saves per-date group return rows to a CSV file.
func WriteGroupReturnsCSV(rows []GroupReturn, outputPath string) error {
	if len(rows) == 0 {
		return fmt.Errorf("no group return rows to save")
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create CSV file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"factor_name", "period", "date", "group_index", "mean_return", "stocks"}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("write CSV header: %w", err)
	}

	for _, row := range rows {
		record := []string{
			row.FactorName,
			strconv.Itoa(row.Period),
			row.Date.Format(dataset.DateFormat),
			strconv.Itoa(row.GroupIndex),
			strconv.FormatFloat(row.MeanReturn, 'f', 6, 64),
			strconv.Itoa(row.Stocks),
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("write CSV record for %s: %w", row.FactorName, err)
		}
	}
	return nil
}

// WriteICSeriesCSV saves one factor's dated IC sequence to a CSV file.
// Dates whose IC is undefined keep their row with an empty cell.
func WriteICSeriesCSV(factorName string, period int, series []dataset.Point, outputPath string) error {
	if len(series) == 0 {
		return fmt.Errorf("no IC points to save")
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create CSV file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"factor_name", "period", "date", "ic"}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("write CSV header: %w", err)
	}

	for _, point := range series {
		record := []string{
			factorName,
			strconv.Itoa(period),
			point.Date.Format(dataset.DateFormat),
			formatValue(point.Value, 6),
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("write CSV record for %s: %w", point.Date.Format(dataset.DateFormat), err)
		}
	}
	return nil
}

// WriteWorkbook saves a full analysis report as one workbook: an IC
// summary sheet, optional group return and correlation sheets.
func WriteWorkbook(summaries []dataset.AnalysisRow, groups []GroupReturn, matrix *CorrelationMatrix, outputPath string) error {
	if len(summaries) == 0 {
		return fmt.Errorf("no summary rows to save")
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	workbook := excelize.NewFile()
	defer workbook.Close()

	const summarySheet = "IC Summary"
	if err := workbook.SetSheetName("Sheet1", summarySheet); err != nil {
		return fmt.Errorf("rename summary sheet: %w", err)
	}
	summaryHeader := []interface{}{"Factor", "Period", "Mean IC", "Std IC", "IR", "Positive IC Rate"}
	if err := workbook.SetSheetRow(summarySheet, "A1", &summaryHeader); err != nil {
		return fmt.Errorf("write summary header: %w", err)
	}
	for i, row := range summaries {
		cells := []interface{}{
			row.FactorName,
			row.Period,
			row.MeanIC,
			row.StdIC,
			cellValue(row.IR),
			row.PositiveICRate,
		}
		axis := fmt.Sprintf("A%d", i+2)
		if err := workbook.SetSheetRow(summarySheet, axis, &cells); err != nil {
			return fmt.Errorf("write summary row %s: %w", row.FactorName, err)
		}
	}

	if len(groups) > 0 {
		const groupSheet = "Group Returns"
		if _, err := workbook.NewSheet(groupSheet); err != nil {
			return fmt.Errorf("create group sheet: %w", err)
		}
		groupHeader := []interface{}{"Factor", "Period", "Date", "Group", "Mean Return", "Stocks"}
		if err := workbook.SetSheetRow(groupSheet, "A1", &groupHeader); err != nil {
			return fmt.Errorf("write group header: %w", err)
		}
		for i, row := range groups {
			cells := []interface{}{
				row.FactorName,
				row.Period,
				row.Date.Format(dataset.DateFormat),
				row.GroupIndex,
				row.MeanReturn,
				row.Stocks,
			}
			axis := fmt.Sprintf("A%d", i+2)
			if err := workbook.SetSheetRow(groupSheet, axis, &cells); err != nil {
				return fmt.Errorf("write group row %d: %w", i, err)
			}
		}
	}

	if matrix != nil {
		const corrSheet = "Correlation"
		if _, err := workbook.NewSheet(corrSheet); err != nil {
			return fmt.Errorf("create correlation sheet: %w", err)
		}
		corrHeader := make([]interface{}, 0, len(matrix.Factors)+1)
		corrHeader = append(corrHeader, "")
		for _, name := range matrix.Factors {
			corrHeader = append(corrHeader, name)
		}
		if err := workbook.SetSheetRow(corrSheet, "A1", &corrHeader); err != nil {
			return fmt.Errorf("write correlation header: %w", err)
		}
		for i, name := range matrix.Factors {
			cells := make([]interface{}, 0, len(matrix.Factors)+1)
			cells = append(cells, name)
			for j := range matrix.Factors {
				cells = append(cells, cellValue(matrix.At(i, j)))
			}
			axis := fmt.Sprintf("A%d", i+2)
			if err := workbook.SetSheetRow(corrSheet, axis, &cells); err != nil {
				return fmt.Errorf("write correlation row %s: %w", name, err)
			}
		}
	}

	if err := workbook.SaveAs(outputPath); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}

// formatValue renders a Value for CSV output, empty when missing.
func formatValue(v dataset.Value, precision int) string {
	if !v.Valid {
		return ""
	}
	return strconv.FormatFloat(v.Float64, 'f', precision, 64)
}

// cellValue renders a Value for a worksheet cell, nil (blank) when
// missing.
func cellValue(v dataset.Value) interface{} {
	if !v.Valid {
		return nil
	}
	return v.Float64
}
