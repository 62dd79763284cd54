package study

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	studyTypes "github.com/dsi-icl/acacia-sub002/pkg/study/types"
)

// StandardizationInput describes one standardization entry to create.
type StandardizationInput struct {
	Type       string                           `json:"type"`
	FieldID    string                           `json:"fieldId"`
	Path       []string                         `json:"path"`
	Rules      []studyTypes.StandardizationRule `json:"rules"`
	JoinByKeys []string                         `json:"joinByKeys,omitempty"`
}

// GetStandardizations lists the effective standardizations visible to the
// requester under the given version selector.
func (s *Service) GetStandardizations(requester studyTypes.Requester, studyID string, stdType string, versionSelector string) ([]studyTypes.Standardization, error) {
	study, err := s.studyDBService.GetStudy(studyID)
	if err != nil {
		return nil, fmt.Errorf("%w: study %s", ErrNotFound, studyID)
	}

	effective, err := s.effectivePermission(requester, studyID, studyTypes.OPERATION_READ)
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
		return []studyTypes.Standardization{}, nil
	}

	standardizations, err := s.studyDBService.GetLatestStandardizations(studyID, versions, stdType)
	if err != nil {
		return nil, fmt.Errorf("%w: reading standardizations: %s", ErrStorageFailure, err.Error())
	}
	return standardizations, nil
}

// CreateStandardization appends a new draft standardization entry. A new
// entry for an existing (type, fieldId) pair supersedes the previous one.
func (s *Service) CreateStandardization(requester studyTypes.Requester, studyID string, input StandardizationInput) (studyTypes.Standardization, error) {
	if _, err := s.studyDBService.GetStudy(studyID); err != nil {
		return studyTypes.Standardization{}, fmt.Errorf("%w: study %s", ErrNotFound, studyID)
	}
	manager, err := s.isStudyManager(requester, studyID)
	if err != nil {
		return studyTypes.Standardization{}, err
	}
	if !manager {
		return studyTypes.Standardization{}, ErrPermissionDenied
	}

	if input.Type == "" || input.FieldID == "" {
		return studyTypes.Standardization{}, fmt.Errorf("%w: standardization type and field id are required", ErrMalformedInput)
	}
	if len(input.Path) == 0 {
		return studyTypes.Standardization{}, fmt.Errorf("%w: standardization path is required", ErrMalformedInput)
	}
	for _, rule := range input.Rules {
		switch rule.Source {
		case studyTypes.STD_SOURCE_DATA,
			studyTypes.STD_SOURCE_FIELDDEF,
			studyTypes.STD_SOURCE_VALUE,
			studyTypes.STD_SOURCE_INC,
			studyTypes.STD_SOURCE_RESERVED:
		default:
			return studyTypes.Standardization{}, fmt.Errorf("%w: unknown rule source %q", ErrMalformedInput, rule.Source)
		}
	}

	standardization := studyTypes.Standardization{
		ID:          uuid.NewString(),
		StudyID:     studyID,
		Type:        input.Type,
		FieldID:     input.FieldID,
		Path:        input.Path,
		Rules:       input.Rules,
		JoinByKeys:  input.JoinByKeys,
		DataVersion: studyTypes.DraftVersionID,
		Life: studyTypes.Life{
			CreatedAt: time.Now().Unix(),
			CreatedBy: requester.ID,
		},
	}
	if err := s.studyDBService.AppendStandardization(studyID, standardization); err != nil {
		return studyTypes.Standardization{}, fmt.Errorf("%w: standardization could not be persisted: %s", ErrStorageFailure, err.Error())
	}
	return standardization, nil
}

// DeleteStandardization appends a tombstoned entry for the (type, fieldId)
// pair, hiding it from future resolution while sealed generations keep the
// old entries.
func (s *Service) DeleteStandardization(requester studyTypes.Requester, studyID string, stdType string, fieldID string) error {
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
	standardizations, err := s.studyDBService.GetLatestStandardizations(studyID, versions, stdType)
	if err != nil {
		return fmt.Errorf("%w: reading standardizations: %s", ErrStorageFailure, err.Error())
	}

	var existing *studyTypes.Standardization
	for i := range standardizations {
		if standardizations[i].FieldID == fieldID {
			existing = &standardizations[i]
			break
		}
	}
	if existing == nil {
		return fmt.Errorf("%w: standardization %s/%s", ErrNotFound, stdType, fieldID)
	}

	now := time.Now().Unix()
	tombstone := *existing
	tombstone.ID = uuid.NewString()
	tombstone.DataVersion = studyTypes.DraftVersionID
	tombstone.Life = studyTypes.Life{
		CreatedAt: now,
		CreatedBy: requester.ID,
		DeletedAt: now,
		DeletedBy: requester.ID,
	}
	if err := s.studyDBService.AppendStandardization(studyID, tombstone); err != nil {
		return fmt.Errorf("%w: standardization tombstone could not be persisted: %s", ErrStorageFailure, err.Error())
	}
	return nil
}
