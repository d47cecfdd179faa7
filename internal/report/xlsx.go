// Package report exports enhancement results as an xlsx workbook for manual
// review of rejected or fixable batches.
package report

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/meridianbi/gatekeeper/internal/enhance"
)

// WriteWorkbook writes one enhancement result to an xlsx file with a
// summary sheet plus one sheet per finding kind.
func WriteWorkbook(path string, result *enhance.Result) error {
	f := xlsx.NewFile()

	if err := addSummarySheet(f, result); err != nil {
		return err
	}
	if err := addQualitySheet(f, result); err != nil {
		return err
	}
	if err := addConflictSheet(f, result); err != nil {
		return err
	}
	if err := addImputationSheet(f, result); err != nil {
		return err
	}
	if result.Resolution != nil {
		if err := addUnmatchedSheet(f, result); err != nil {
			return err
		}
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "report: save workbook %s", path)
	}
	return nil
}

func addSummarySheet(f *xlsx.File, result *enhance.Result) error {
	sheet, err := f.AddSheet("Summary")
	if err != nil {
		return eris.Wrap(err, "report: add summary sheet")
	}

	addKV(sheet, "Decision", result.Decision)
	addKV(sheet, "Overall quality score", fmt.Sprintf("%.4f", result.Quality.OverallScore))
	addKV(sheet, "Importability", result.Quality.Importability)
	addKV(sheet, "Requires approval", fmt.Sprintf("%t", result.RequiresApproval))
	addKV(sheet, "Conflicts found", fmt.Sprintf("%d", result.Conflicts.Statistics.ConflictsFound))
	addKV(sheet, "Manual review required", fmt.Sprintf("%d", result.Conflicts.Statistics.ManualReviewRequired))
	addKV(sheet, "Cells imputed", fmt.Sprintf("%d", result.Imputation.Statistics.ImputedCount))
	addKV(sheet, "Blocked fields", fmt.Sprintf("%d", result.Imputation.Statistics.BlockedFieldsCount))
	if result.Resolution != nil {
		addKV(sheet, "Match rate", fmt.Sprintf("%.4f", result.Resolution.Statistics.MatchRate))
	}

	sheet.AddRow()
	header := sheet.AddRow()
	header.AddCell().SetString("Dimension")
	header.AddCell().SetString("Score")
	header.AddCell().SetString("Weight")
	for _, name := range []string{
		"completeness", "accuracy", "consistency", "timeliness",
		"uniqueness", "validity", "referential_integrity",
	} {
		dim := result.Quality.Dimensions[name]
		row := sheet.AddRow()
		row.AddCell().SetString(name)
		row.AddCell().SetFloat(dim.Score)
		row.AddCell().SetFloat(dim.Weight)
	}
	return nil
}

func addQualitySheet(f *xlsx.File, result *enhance.Result) error {
	sheet, err := f.AddSheet("Quality Issues")
	if err != nil {
		return eris.Wrap(err, "report: add quality sheet")
	}

	header := sheet.AddRow()
	for _, h := range []string{"Kind", "Dimension", "Field", "Description", "Count", "Auto-fixable", "Examples"} {
		header.AddCell().SetString(h)
	}
	for _, issue := range result.Quality.BlockingIssues {
		row := sheet.AddRow()
		row.AddCell().SetString("blocking")
		row.AddCell().SetString(issue.Dimension)
		row.AddCell().SetString(issue.Field)
		row.AddCell().SetString(issue.Description)
		row.AddCell().SetInt(issue.Count)
		row.AddCell().SetString("no")
		row.AddCell().SetString(strings.Join(issue.Examples, "; "))
	}
	for _, issue := range result.Quality.FixableIssues {
		row := sheet.AddRow()
		row.AddCell().SetString("fixable")
		row.AddCell().SetString(issue.Dimension)
		row.AddCell().SetString(issue.Field)
		row.AddCell().SetString(issue.Description)
		row.AddCell().SetInt(issue.Count)
		if issue.AutoFixable {
			row.AddCell().SetString("yes")
		} else {
			row.AddCell().SetString("no")
		}
		row.AddCell().SetString(strings.Join(issue.Examples, "; "))
	}
	return nil
}

func addConflictSheet(f *xlsx.File, result *enhance.Result) error {
	sheet, err := f.AddSheet("Conflicts")
	if err != nil {
		return eris.Wrap(err, "report: add conflict sheet")
	}

	header := sheet.AddRow()
	for _, h := range []string{"Row", "Field", "Expected", "Actual", "Difference", "Severity", "Auto-fixable", "Cascade fields"} {
		header.AddCell().SetString(h)
	}
	for _, c := range result.Conflicts.Conflicts {
		row := sheet.AddRow()
		row.AddCell().SetInt(c.RowIndex)
		row.AddCell().SetString(c.Field)
		row.AddCell().SetString(c.ExpectedValue)
		row.AddCell().SetString(c.ActualValue)
		row.AddCell().SetString(c.Difference)
		row.AddCell().SetString(c.Severity)
		if c.AutoFixable {
			row.AddCell().SetString("yes")
		} else {
			row.AddCell().SetString("no")
		}
		row.AddCell().SetString(strings.Join(c.CascadeFields, "; "))
	}
	return nil
}

func addImputationSheet(f *xlsx.File, result *enhance.Result) error {
	sheet, err := f.AddSheet("Imputation Log")
	if err != nil {
		return eris.Wrap(err, "report: add imputation sheet")
	}

	header := sheet.AddRow()
	for _, h := range []string{"Row", "Field", "Imputed value", "Method", "Confidence", "Risk"} {
		header.AddCell().SetString(h)
	}
	for _, entry := range result.Imputation.Log {
		row := sheet.AddRow()
		row.AddCell().SetInt(entry.RowIndex)
		row.AddCell().SetString(entry.Field)
		row.AddCell().SetString(fmt.Sprintf("%v", entry.ImputedValue))
		row.AddCell().SetString(entry.Method)
		row.AddCell().SetFloat(entry.Confidence)
		row.AddCell().SetString(entry.RiskLevel)
	}

	sheet.AddRow()
	blockedHeader := sheet.AddRow()
	for _, h := range []string{"Blocked field", "Reason", "Missing count"} {
		blockedHeader.AddCell().SetString(h)
	}
	for _, blocked := range result.Imputation.BlockedFields {
		row := sheet.AddRow()
		row.AddCell().SetString(blocked.Field)
		row.AddCell().SetString(blocked.Reason)
		row.AddCell().SetInt(blocked.MissingCount)
	}
	return nil
}

func addUnmatchedSheet(f *xlsx.File, result *enhance.Result) error {
	sheet, err := f.AddSheet("Unmatched")
	if err != nil {
		return eris.Wrap(err, "report: add unmatched sheet")
	}

	header := sheet.AddRow()
	for _, h := range []string{"Row", "Reason", "Best candidate", "Best score"} {
		header.AddCell().SetString(h)
	}
	for _, m := range result.Resolution.Unmatched {
		row := sheet.AddRow()
		row.AddCell().SetInt(m.RowIndex)
		row.AddCell().SetString(m.MatchReason)
		if len(m.Alternatives) > 0 {
			row.AddCell().SetString(m.Alternatives[0].MasterName)
			row.AddCell().SetFloat(m.Alternatives[0].CompositeScore)
		}
	}
	return nil
}

func addKV(sheet *xlsx.Sheet, key, value string) {
	row := sheet.AddRow()
	row.AddCell().SetString(key)
	row.AddCell().SetString(value)
}
