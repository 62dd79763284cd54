package study

import (
	"fmt"
	"sort"
	"strings"

	permissionchecker "github.com/dsi-icl/acacia-sub002/pkg/permission-checker"
	"github.com/dsi-icl/acacia-sub002/pkg/study/standardizer"
	studyTypes "github.com/dsi-icl/acacia-sub002/pkg/study/types"
)

// Output formats for QueryData.
const (
	FORMAT_RAW     = "raw"
	FORMAT_GROUPED = "grouped"
	FORMAT_SUMMARY = "summary"

	FORMAT_PREFIX_STANDARDIZED = "standardized-"
)

// DataRecord is one current value of a logical record, flattened for
// transport.
type DataRecord struct {
	SubjectID  string            `json:"subjectId"`
	VisitID    string            `json:"visitId"`
	FieldID    string            `json:"fieldId"`
	Value      interface{}       `json:"value"`
	Properties map[string]string `json:"properties,omitempty"`
}

// GetData resolves the current, permitted values for the requested fields.
// The order of phases matters: per field the full write history over the
// visible generations is deduplicated to the latest entry per identity key
// first, tombstones are dropped, and only then is each surviving record
// authorized. Authorizing earlier could surface a stale permitted value that
// a fresh forbidden write already superseded.
func (s *Service) GetData(requester studyTypes.Requester, studyID string, fieldIDs []string, versionSelector string) ([]DataRecord, error) {
	versions, effective, err := s.resolveQuerySnapshot(requester, studyID, versionSelector)
	if err != nil {
		return nil, err
	}
	return s.collectRecords(studyID, fieldIDs, versions, effective)
}

// resolveQuerySnapshot fetches the study and resolves the visible generation
// set exactly once per request. Every phase of a query must share the result,
// so a commit landing mid-query cannot mix two different snapshots.
func (s *Service) resolveQuerySnapshot(requester studyTypes.Requester, studyID string, versionSelector string) ([]string, permissionchecker.EffectivePermission, error) {
	study, err := s.studyDBService.GetStudy(studyID)
	if err != nil {
		return nil, permissionchecker.EffectivePermission{}, fmt.Errorf("%w: study %s", ErrNotFound, studyID)
	}

	effective, err := s.effectivePermission(requester, studyID, studyTypes.OPERATION_READ)
	if err != nil {
		return nil, permissionchecker.EffectivePermission{}, err
	}
	if !effective.HasAnyPermission() {
		return nil, permissionchecker.EffectivePermission{}, ErrPermissionDenied
	}

	versions, err := resolveVersions(study, versionSelector, effective.IncludesDraft)
	if err != nil {
		return nil, permissionchecker.EffectivePermission{}, err
	}
	return versions, effective, nil
}

func (s *Service) collectRecords(studyID string, fieldIDs []string, versions []string, effective permissionchecker.EffectivePermission) ([]DataRecord, error) {
	if len(versions) == 0 {
		return []DataRecord{}, nil
	}

	fields, err := s.resolveFields(studyID, versions, fieldIDs, effective)
	if err != nil {
		return nil, err
	}

	records := []DataRecord{}
	for _, field := range fields {
		history, err := s.studyDBService.GetDataPointsForField(studyID, field.FieldID, versions)
		if err != nil {
			return nil, fmt.Errorf("%w: reading field %s: %s", ErrStorageFailure, field.FieldID, err.Error())
		}
		for _, dataPoint := range latestPerIdentity(history, field.IdentityProperties()) {
			if dataPoint.IsTombstone() {
				continue
			}
			if !effective.Authorize(dataPoint.FieldID, dataPoint.Properties) {
				continue
			}
			records = append(records, DataRecord{
				SubjectID:  dataPoint.Properties[studyTypes.PROPERTY_SUBJECT_ID],
				VisitID:    dataPoint.Properties[studyTypes.PROPERTY_VISIT_ID],
				FieldID:    dataPoint.FieldID,
				Value:      dataPoint.Value,
				Properties: dataPoint.Properties,
			})
		}
	}

	sort.Slice(records, func(i, j int) bool {
		if records[i].SubjectID != records[j].SubjectID {
			return records[i].SubjectID < records[j].SubjectID
		}
		if records[i].VisitID != records[j].VisitID {
			return records[i].VisitID < records[j].VisitID
		}
		return records[i].FieldID < records[j].FieldID
	})
	return records, nil
}

// resolveFields narrows the effective field dictionary to the requested
// fields the permission set can read at all.
func (s *Service) resolveFields(studyID string, versions []string, fieldIDs []string, effective permissionchecker.EffectivePermission) ([]studyTypes.FieldDefinition, error) {
	fields, err := s.studyDBService.GetLatestFieldEntries(studyID, versions, fieldIDs)
	if err != nil {
		return nil, fmt.Errorf("%w: reading field dictionary: %s", ErrStorageFailure, err.Error())
	}

	covered := make([]studyTypes.FieldDefinition, 0, len(fields))
	for _, field := range fields {
		if effective.CoversField(field.FieldID) {
			covered = append(covered, field)
		}
	}
	return covered, nil
}

// latestPerIdentity reduces a field's write history to the current entry per
// identity key. history must be ordered oldest first; entries with equal
// createdAt fall to the later one (last write wins).
func latestPerIdentity(history []studyTypes.DataPoint, identityProps []string) []studyTypes.DataPoint {
	latest := map[string]int{}
	order := []string{}
	for i, dataPoint := range history {
		key := dataPoint.IdentityKey(identityProps)
		if _, seen := latest[key]; !seen {
			order = append(order, key)
		}
		latest[key] = i
	}

	result := make([]studyTypes.DataPoint, 0, len(order))
	for _, key := range order {
		result = append(result, history[latest[key]])
	}
	return result
}

// QueryData is the single query entry point: permission-filtered current
// values shaped per the requested output format. The generation snapshot is
// resolved once and shared by the record collection and the standardization
// lookup.
func (s *Service) QueryData(requester studyTypes.Requester, studyID string, fieldIDs []string, versionSelector string, format string) (interface{}, error) {
	versions, effective, err := s.resolveQuerySnapshot(requester, studyID, versionSelector)
	if err != nil {
		return nil, err
	}
	records, err := s.collectRecords(studyID, fieldIDs, versions, effective)
	if err != nil {
		return nil, err
	}

	switch {
	case format == "" || format == FORMAT_RAW:
		return GroupData(records), nil
	case format == FORMAT_GROUPED:
		return GroupByField(records, true), nil
	case format == FORMAT_SUMMARY:
		return GroupByField(records, false), nil
	case strings.HasPrefix(format, FORMAT_PREFIX_STANDARDIZED):
		return s.standardizeRecords(studyID, records, versions, strings.TrimPrefix(format, FORMAT_PREFIX_STANDARDIZED))
	default:
		return nil, fmt.Errorf("%w: unknown format %s", ErrMalformedInput, format)
	}
}

// standardizeRecords interprets the standardizations of one type over already
// collected records. versions is the snapshot the records were read under.
func (s *Service) standardizeRecords(studyID string, records []DataRecord, versions []string, stdType string) (interface{}, error) {
	standardizations, err := s.studyDBService.GetLatestStandardizations(studyID, versions, stdType)
	if err != nil {
		return nil, fmt.Errorf("%w: reading standardizations: %s", ErrStorageFailure, err.Error())
	}
	if len(standardizations) == 0 {
		return nil, fmt.Errorf("%w: no standardizations of type %s", ErrNotFound, stdType)
	}

	fields, err := s.studyDBService.GetLatestFieldEntries(studyID, versions, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: reading field dictionary: %s", ErrStorageFailure, err.Error())
	}
	fieldTable := make(map[string]studyTypes.FieldDefinition, len(fields))
	for _, field := range fields {
		fieldTable[field.FieldID] = field
	}

	return standardizer.Apply(standardizer.Env{
		StudyID:          studyID,
		Fields:           fieldTable,
		Standardizations: standardizations,
	}, GroupData(records)), nil
}
