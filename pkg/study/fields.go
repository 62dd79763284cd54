package study

import (
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"

	studyTypes "github.com/dsi-icl/acacia-sub002/pkg/study/types"
)

var fieldIDMatcher = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// FieldInput describes one field dictionary entry to create or update.
type FieldInput struct {
	FieldID            string                         `json:"fieldId"`
	FieldName          string                         `json:"fieldName"`
	Description        string                         `json:"description,omitempty"`
	DataType           string                         `json:"dataType"`
	Unit               string                         `json:"unit,omitempty"`
	Comments           string                         `json:"comments,omitempty"`
	CategoricalOptions []studyTypes.CategoricalOption `json:"categoricalOptions,omitempty"`
	Properties         []studyTypes.FieldProperty     `json:"properties,omitempty"`
}

// FieldResult is the per-item outcome of a batch field dictionary write.
type FieldResult struct {
	Index      int    `json:"index"`
	FieldID    string `json:"fieldId"`
	Successful bool   `json:"successful"`
	Error      string `json:"error,omitempty"`
}

// GetStudyFields returns the effective field dictionary visible to the
// requester, narrowed to fields their permissions cover.
func (s *Service) GetStudyFields(requester studyTypes.Requester, studyID string, versionSelector string) ([]studyTypes.FieldDefinition, error) {
	study, err := s.studyDBService.GetStudy(studyID)
	if err != nil {
		return nil, fmt.Errorf("%w: study %s", ErrNotFound, studyID)
	}

	// WRITE and DELETE permissions also reveal the fields they cover.
	operations := studyTypes.OPERATION_READ | studyTypes.OPERATION_WRITE | studyTypes.OPERATION_DELETE
	effective, err := s.effectivePermission(requester, studyID, operations)
	if err != nil {
		return nil, err
	}
	if !effective.HasAnyPermission() {
		return nil, ErrPermissionDenied
	}

	versions, err := resolveVersions(study, versionSelector, effective.IncludesDraft)
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return []studyTypes.FieldDefinition{}, nil
	}

	return s.resolveFields(studyID, versions, nil, effective)
}

// CreateFields appends new draft field dictionary entries, one result per
// input. Existing entries are never modified: an entry for an existing
// fieldId supersedes the previous definition once created.
func (s *Service) CreateFields(requester studyTypes.Requester, studyID string, inputs []FieldInput) ([]FieldResult, error) {
	if _, err := s.studyDBService.GetStudy(studyID); err != nil {
		return nil, fmt.Errorf("%w: study %s", ErrNotFound, studyID)
	}

	manager, err := s.isStudyManager(requester, studyID)
	if err != nil {
		return nil, err
	}
	if !manager {
		return nil, ErrPermissionDenied
	}

	results := make([]FieldResult, 0, len(inputs))
	for index, input := range inputs {
		result := FieldResult{Index: index, FieldID: input.FieldID}

		if err := validateFieldInput(input); err != nil {
			result.Error = err.Error()
			results = append(results, result)
			continue
		}

		field := studyTypes.FieldDefinition{
			ID:                 uuid.NewString(),
			StudyID:            studyID,
			FieldID:            input.FieldID,
			FieldName:          input.FieldName,
			Description:        input.Description,
			DataType:           input.DataType,
			Unit:               input.Unit,
			Comments:           input.Comments,
			CategoricalOptions: input.CategoricalOptions,
			Properties:         input.Properties,
			DataVersion:        studyTypes.DraftVersionID,
			Life: studyTypes.Life{
				CreatedAt: time.Now().Unix(),
				CreatedBy: requester.ID,
			},
		}
		if err := s.studyDBService.AppendFieldEntry(studyID, field); err != nil {
			result.Error = fmt.Sprintf("field could not be persisted: %s", err.Error())
			results = append(results, result)
			continue
		}

		result.Successful = true
		results = append(results, result)
	}
	return results, nil
}

// DeleteField appends a tombstoned dictionary entry for the field. The
// previous definitions stay in place so sealed generations remain readable.
func (s *Service) DeleteField(requester studyTypes.Requester, studyID string, fieldID string) error {
	study, err := s.studyDBService.GetStudy(studyID)
	if err != nil {
		return fmt.Errorf("%w: study %s", ErrNotFound, studyID)
	}

	manager, err := s.isStudyManager(requester, studyID)
	if err != nil {
		return err
	}
	if !manager {
		return ErrPermissionDenied
	}

	versions := append(study.ReleasedVersionIDs(), studyTypes.DraftVersionID)
	fields, err := s.studyDBService.GetLatestFieldEntries(studyID, versions, []string{fieldID})
	if err != nil {
		return fmt.Errorf("%w: reading field dictionary: %s", ErrStorageFailure, err.Error())
	}
	if len(fields) == 0 {
		return fmt.Errorf("%w: field %s", ErrNotFound, fieldID)
	}

	now := time.Now().Unix()
	tombstone := fields[0]
	tombstone.ID = uuid.NewString()
	tombstone.DataVersion = studyTypes.DraftVersionID
	tombstone.Life = studyTypes.Life{
		CreatedAt: now,
		CreatedBy: requester.ID,
		DeletedAt: now,
		DeletedBy: requester.ID,
	}
	if err := s.studyDBService.AppendFieldEntry(studyID, tombstone); err != nil {
		return fmt.Errorf("%w: field tombstone could not be persisted: %s", ErrStorageFailure, err.Error())
	}
	return nil
}

func validateFieldInput(input FieldInput) error {
	if !fieldIDMatcher.MatchString(input.FieldID) {
		return fmt.Errorf("%w: field id %q must only contain letters, numbers and underscores", ErrMalformedInput, input.FieldID)
	}
	if input.FieldName == "" {
		return fmt.Errorf("%w: field name is required", ErrMalformedInput)
	}

	switch input.DataType {
	case studyTypes.DATA_TYPE_INTEGER,
		studyTypes.DATA_TYPE_DECIMAL,
		studyTypes.DATA_TYPE_STRING,
		studyTypes.DATA_TYPE_BOOLEAN,
		studyTypes.DATA_TYPE_DATETIME,
		studyTypes.DATA_TYPE_JSON,
		studyTypes.DATA_TYPE_FILE:
	case studyTypes.DATA_TYPE_CATEGORICAL:
		if len(input.CategoricalOptions) == 0 {
			return fmt.Errorf("%w: categorical field %s needs a code list", ErrMalformedInput, input.FieldID)
		}
	default:
		return fmt.Errorf("%w: unknown data type %q", ErrMalformedInput, input.DataType)
	}
	return nil
}
