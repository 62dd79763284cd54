package study

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	studyTypes "github.com/dsi-icl/acacia-sub002/pkg/study/types"
)

// DataPointInput is one normalized write request produced by an upstream
// curator: raw string value plus the attribute bag carrying the identity
// properties.
type DataPointInput struct {
	FieldID    string            `json:"fieldId"`
	Value      string            `json:"value"`
	Properties map[string]string `json:"properties"`
}

// DataPointDeletion marks the logical record with the given properties as
// deleted by appending a tombstone entry.
type DataPointDeletion struct {
	FieldID    string            `json:"fieldId"`
	Properties map[string]string `json:"properties"`
}

// UploadResult is the per-item outcome of a batch write. One item failing
// never aborts its siblings.
type UploadResult struct {
	Index      int    `json:"index"`
	FieldID    string `json:"fieldId"`
	Successful bool   `json:"successful"`
	Error      string `json:"error,omitempty"`
}

var (
	integerValueMatcher = regexp.MustCompile(`^-?\d+$`)
	decimalValueMatcher = regexp.MustCompile(`^-?\d+(\.\d+)?$`)
)

// UploadData appends one value log entry per input tuple, with partial
// success semantics: every item gets its own result, malformed or forbidden
// items are reported in place.
func (s *Service) UploadData(requester studyTypes.Requester, studyID string, inputs []DataPointInput) ([]UploadResult, error) {
	if _, err := s.studyDBService.GetStudy(studyID); err != nil {
		return nil, fmt.Errorf("%w: study %s", ErrNotFound, studyID)
	}

	effective, err := s.effectivePermission(requester, studyID, studyTypes.OPERATION_WRITE)
	if err != nil {
		return nil, err
	}
	if !effective.HasAnyPermission() {
		return nil, ErrPermissionDenied
	}

	fieldTable, err := s.writableFieldTable(studyID, effective.IncludesDraft)
	if err != nil {
		return nil, err
	}

	results := make([]UploadResult, 0, len(inputs))
	for index, input := range inputs {
		result := UploadResult{Index: index, FieldID: input.FieldID}

		field, ok := fieldTable[input.FieldID]
		if !ok || !effective.Authorize(input.FieldID, input.Properties) {
			result.Error = errFieldNotAccessible
			results = append(results, result)
			continue
		}

		if err := checkRequiredProperties(field, input.Properties); err != nil {
			result.Error = err.Error()
			results = append(results, result)
			continue
		}

		value, err := parseValue(field, input.Value)
		if err != nil {
			result.Error = err.Error()
			results = append(results, result)
			continue
		}

		dataPoint := studyTypes.DataPoint{
			ID:          uuid.NewString(),
			StudyID:     studyID,
			FieldID:     input.FieldID,
			Value:       value,
			Properties:  input.Properties,
			DataVersion: studyTypes.DraftVersionID,
			Life: studyTypes.Life{
				CreatedAt: time.Now().Unix(),
				CreatedBy: requester.ID,
			},
		}
		if err := s.studyDBService.AppendDataPoint(studyID, dataPoint); err != nil {
			result.Error = fmt.Sprintf("value could not be persisted: %s", err.Error())
			results = append(results, result)
			continue
		}

		result.Successful = true
		results = append(results, result)
	}
	return results, nil
}

// DeleteData appends tombstone entries for the given logical records, with
// the same partial success semantics as UploadData.
func (s *Service) DeleteData(requester studyTypes.Requester, studyID string, deletions []DataPointDeletion) ([]UploadResult, error) {
	if _, err := s.studyDBService.GetStudy(studyID); err != nil {
		return nil, fmt.Errorf("%w: study %s", ErrNotFound, studyID)
	}

	effective, err := s.effectivePermission(requester, studyID, studyTypes.OPERATION_DELETE)
	if err != nil {
		return nil, err
	}
	if !effective.HasAnyPermission() {
		return nil, ErrPermissionDenied
	}

	fieldTable, err := s.writableFieldTable(studyID, effective.IncludesDraft)
	if err != nil {
		return nil, err
	}

	results := make([]UploadResult, 0, len(deletions))
	for index, deletion := range deletions {
		result := UploadResult{Index: index, FieldID: deletion.FieldID}

		field, ok := fieldTable[deletion.FieldID]
		if !ok || !effective.Authorize(deletion.FieldID, deletion.Properties) {
			result.Error = errFieldNotAccessible
			results = append(results, result)
			continue
		}

		if err := checkRequiredProperties(field, deletion.Properties); err != nil {
			result.Error = err.Error()
			results = append(results, result)
			continue
		}

		dataPoint := studyTypes.DataPoint{
			ID:          uuid.NewString(),
			StudyID:     studyID,
			FieldID:     deletion.FieldID,
			Value:       nil,
			Properties:  deletion.Properties,
			DataVersion: studyTypes.DraftVersionID,
			Life: studyTypes.Life{
				CreatedAt: time.Now().Unix(),
				CreatedBy: requester.ID,
			},
		}
		if err := s.studyDBService.AppendDataPoint(studyID, dataPoint); err != nil {
			result.Error = fmt.Sprintf("tombstone could not be persisted: %s", err.Error())
			results = append(results, result)
			continue
		}

		result.Successful = true
		results = append(results, result)
	}
	return results, nil
}

// writableFieldTable resolves the effective field dictionary for writes:
// released fields plus, when the requester sees the draft, unsealed ones.
func (s *Service) writableFieldTable(studyID string, includesDraft bool) (map[string]studyTypes.FieldDefinition, error) {
	study, err := s.studyDBService.GetStudy(studyID)
	if err != nil {
		return nil, fmt.Errorf("%w: study %s", ErrNotFound, studyID)
	}
	versions := study.ReleasedVersionIDs()
	if includesDraft {
		versions = append(versions, studyTypes.DraftVersionID)
	}

	fields, err := s.studyDBService.GetLatestFieldEntries(studyID, versions, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: reading field dictionary: %s", ErrStorageFailure, err.Error())
	}
	table := make(map[string]studyTypes.FieldDefinition, len(fields))
	for _, field := range fields {
		table[field.FieldID] = field
	}
	return table, nil
}

func checkRequiredProperties(field studyTypes.FieldDefinition, properties map[string]string) error {
	for _, name := range field.IdentityProperties() {
		if properties[name] == "" {
			return fmt.Errorf("%w: identity property %s is missing", ErrMalformedInput, name)
		}
	}
	for _, property := range field.Properties {
		if property.Required && properties[property.Name] == "" {
			return fmt.Errorf("%w: required property %s is missing", ErrMalformedInput, property.Name)
		}
	}
	return nil
}

// parseValue validates and converts a raw value against the field's declared
// data type. The missing-value sentinel is accepted for every type and kept
// as is.
func parseValue(field studyTypes.FieldDefinition, raw string) (interface{}, error) {
	if raw == studyTypes.MissingValueCode {
		return raw, nil
	}

	switch field.DataType {
	case studyTypes.DATA_TYPE_INTEGER:
		if !integerValueMatcher.MatchString(raw) {
			return nil, fmt.Errorf("%w: %q is not a valid integer for field %s", ErrMalformedInput, raw, field.FieldID)
		}
		value, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a valid integer for field %s", ErrMalformedInput, raw, field.FieldID)
		}
		return value, nil
	case studyTypes.DATA_TYPE_DECIMAL:
		if !decimalValueMatcher.MatchString(raw) {
			return nil, fmt.Errorf("%w: %q is not a valid decimal for field %s", ErrMalformedInput, raw, field.FieldID)
		}
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a valid decimal for field %s", ErrMalformedInput, raw, field.FieldID)
		}
		return value, nil
	case studyTypes.DATA_TYPE_BOOLEAN:
		switch strings.ToLower(raw) {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
		return nil, fmt.Errorf("%w: %q is not a valid boolean for field %s", ErrMalformedInput, raw, field.FieldID)
	case studyTypes.DATA_TYPE_DATETIME:
		if _, err := time.Parse(time.RFC3339, raw); err != nil {
			return nil, fmt.Errorf("%w: %q is not a valid datetime for field %s", ErrMalformedInput, raw, field.FieldID)
		}
		return raw, nil
	case studyTypes.DATA_TYPE_JSON:
		var value interface{}
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			return nil, fmt.Errorf("%w: %q is not valid JSON for field %s", ErrMalformedInput, raw, field.FieldID)
		}
		return value, nil
	case studyTypes.DATA_TYPE_CATEGORICAL:
		if !field.HasCategoricalCode(raw) {
			return nil, fmt.Errorf("%w: %q is not in the code list of field %s", ErrMalformedInput, raw, field.FieldID)
		}
		return raw, nil
	case studyTypes.DATA_TYPE_STRING, studyTypes.DATA_TYPE_FILE:
		return raw, nil
	default:
		return nil, fmt.Errorf("%w: field %s has unknown data type %s", ErrMalformedInput, field.FieldID, field.DataType)
	}
}
