package study

import (
	studyTypes "github.com/dsi-icl/acacia-sub002/pkg/study/types"
)

// GroupedData is the nested subject -> visit -> field -> value shape.
type GroupedData map[string]map[string]map[string]interface{}

// AggregatedRecords holds the per (field, visit) counts of the grouped and
// summary formats. ValidCount excludes the missing-value sentinel; Data is
// only filled for the grouped format.
type AggregatedRecords struct {
	TotalCount int           `json:"totalCount"`
	ValidCount int           `json:"validCount"`
	Data       []interface{} `json:"data,omitempty"`
}

// GroupData nests flat records by subject, then visit, then field. No record
// is lost: fields of the same (subject, visit) merge into one inner map.
func GroupData(records []DataRecord) GroupedData {
	grouped := GroupedData{}
	for _, record := range records {
		if _, ok := grouped[record.SubjectID]; !ok {
			grouped[record.SubjectID] = map[string]map[string]interface{}{}
		}
		if _, ok := grouped[record.SubjectID][record.VisitID]; !ok {
			grouped[record.SubjectID][record.VisitID] = map[string]interface{}{}
		}
		grouped[record.SubjectID][record.VisitID][record.FieldID] = record.Value
	}
	return grouped
}

// GroupByField ignores the subject dimension and aggregates values per
// (field, visit). With includeData false only the counts remain (summary
// format).
func GroupByField(records []DataRecord, includeData bool) map[string]map[string]*AggregatedRecords {
	joined := map[string]map[string]*AggregatedRecords{}
	for _, record := range records {
		if _, ok := joined[record.FieldID]; !ok {
			joined[record.FieldID] = map[string]*AggregatedRecords{}
		}
		aggregated, ok := joined[record.FieldID][record.VisitID]
		if !ok {
			aggregated = &AggregatedRecords{}
			joined[record.FieldID][record.VisitID] = aggregated
		}

		aggregated.TotalCount++
		if record.Value != studyTypes.MissingValueCode {
			aggregated.ValidCount++
		}
		if includeData {
			aggregated.Data = append(aggregated.Data, record.Value)
		}
	}
	return joined
}
