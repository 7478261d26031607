package excel

import (
	"fmt"
	"strconv"

	"combolift/domain/combo"

	"github.com/xuri/excelize/v2"
)

// ResultColumns is the header row of a results export
var ResultColumns = []string{
	"rank", "entity_id_1", "display_name_1", "entity_id_2", "display_name_2",
	"users_with_exposure", "total_conversions", "conversion_rate_in_group", "overall_conversion_rate",
	"lift", "expected_value", "precision", "recall", "odds_ratio", "beta0", "beta1",
	"aic", "likelihood_ratio_p", "total_views_1", "total_views_2", "total_outcomes", "analyzed_at",
}

// WriteEngagement writes rows to Sheet1 in the layout FileLoader reads
func WriteEngagement(path string, rows []combo.EngagementRow) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := setRow(f, EngagementSheet, 1, toCells(EngagementColumns)); err != nil {
		return err
	}
	for i, row := range rows {
		date := ""
		if !row.EventDate.IsZero() {
			date = row.EventDate.UTC().Format("2006-01-02")
		}
		values := []interface{}{
			row.UserID, row.CreatorID, row.PortfolioTicker, row.ProfileViews, row.PDPViews,
			strconv.FormatBool(row.DidSubscribe), row.SubscriptionCount,
			strconv.FormatBool(row.DidCopy), row.CopyCount, date,
		}
		if err := setRow(f, EngagementSheet, i+2, values); err != nil {
			return err
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	return nil
}

// ExportResults writes a ranked list to a sheet named after the analysis type
func ExportResults(path string, analysisType combo.AnalysisType, results []combo.CombinationResult) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := string(analysisType)
	idx, err := f.NewSheet(sheet)
	if err != nil {
		return fmt.Errorf("failed to create sheet %s: %w", sheet, err)
	}
	f.SetActiveSheet(idx)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("failed to drop default sheet: %w", err)
	}

	if err := setRow(f, sheet, 1, toCells(ResultColumns)); err != nil {
		return err
	}
	for i, r := range results {
		values := []interface{}{
			r.Rank, r.Combination.A, r.DisplayName1, r.Combination.B, r.DisplayName2,
			r.UsersWithExposure, r.TotalConversions, r.ConversionRateInGroup, r.OverallConversionRate,
			r.Lift, r.ExpectedValue(), r.Precision, r.Recall, r.OddsRatio, r.Beta0, r.Beta1,
			r.AIC, r.LikelihoodRatioP, r.TotalViews1, r.TotalViews2, r.TotalOutcomes,
			r.AnalyzedAt.UTC().Format("2006-01-02 15:04:05"),
		}
		if err := setRow(f, sheet, i+2, values); err != nil {
			return err
		}
	}

	if err := f.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return fmt.Errorf("failed to freeze header: %w", err)
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("failed to write row %d: %w", row, err)
	}
	return nil
}

func toCells(names []string) []interface{} {
	cells := make([]interface{}, len(names))
	for i, n := range names {
		cells[i] = n
	}
	return cells
}
