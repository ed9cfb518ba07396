package review

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/deadonfilm/deadonfilm/internal/model"
	"github.com/deadonfilm/deadonfilm/internal/store"
)

var exportHeader = []string{
	"staging_id", "person_id", "subject_name", "status",
	"cause_of_death", "cause_details", "circumstances", "location",
	"notable_factors", "related_people", "confidence", "sources_used",
}

// ExportXLSX writes a run's staging records to an XLSX workbook for
// offline review. Defaults to pending records when no statuses are given.
func ExportXLSX(ctx context.Context, st store.Store, runID, path string, statuses []model.StagingStatus) (int, error) {
	if len(statuses) == 0 {
		statuses = []model.StagingStatus{model.StagingPending}
	}
	recs, err := st.ListStaging(ctx, store.StagingFilter{RunID: runID, Statuses: statuses, Limit: 10000})
	if err != nil {
		return 0, err
	}

	f := xlsx.NewFile()
	sheet, err := f.AddSheet("staging")
	if err != nil {
		return 0, eris.Wrap(err, "review: add sheet")
	}

	header := sheet.AddRow()
	for _, h := range exportHeader {
		header.AddCell().SetString(h)
	}

	for _, rec := range recs {
		row := sheet.AddRow()
		row.AddCell().SetString(rec.ID)
		row.AddCell().SetInt(rec.PersonID)
		row.AddCell().SetString(rec.SubjectName)
		row.AddCell().SetString(string(rec.Status))
		row.AddCell().SetString(rec.Fields.CauseOfDeath)
		row.AddCell().SetString(rec.Fields.CauseDetails)
		row.AddCell().SetString(rec.Fields.Circumstances)
		row.AddCell().SetString(rec.Fields.Location)
		row.AddCell().SetString(strings.Join(rec.Fields.NotableFactors, "; "))
		row.AddCell().SetString(strings.Join(rec.Fields.RelatedPeople, "; "))
		row.AddCell().SetString(string(rec.Fields.Confidence))
		row.AddCell().SetString(strings.Join(rec.SourcesUsed, "; "))
	}

	if err := f.Save(path); err != nil {
		return 0, eris.Wrapf(err, "review: save %s", path)
	}
	return len(recs), nil
}
