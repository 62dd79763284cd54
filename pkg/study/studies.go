package study

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	studyTypes "github.com/dsi-icl/acacia-sub002/pkg/study/types"
)

// CreateStudy sets up a new, empty study. Platform administrators only.
func (s *Service) CreateStudy(requester studyTypes.Requester, name string, description string) (studyTypes.Study, error) {
	if !requester.IsAdmin {
		return studyTypes.Study{}, ErrPermissionDenied
	}
	if name == "" {
		return studyTypes.Study{}, fmt.Errorf("%w: study name is required", ErrMalformedInput)
	}

	study := studyTypes.Study{
		ID:                  uuid.NewString(),
		Name:                name,
		Description:         description,
		DataVersions:        []studyTypes.DataVersion{},
		CurrentVersionIndex: studyTypes.NoCurrentVersion,
		Life: studyTypes.Life{
			CreatedAt: time.Now().Unix(),
			CreatedBy: requester.ID,
		},
	}
	if err := s.studyDBService.CreateStudy(study); err != nil {
		return studyTypes.Study{}, fmt.Errorf("%w: study could not be persisted: %s", ErrStorageFailure, err.Error())
	}
	return study, nil
}

// GetStudy returns the study metadata if the requester is an admin or has
// any role on it.
func (s *Service) GetStudy(requester studyTypes.Requester, studyID string) (studyTypes.Study, error) {
	study, err := s.studyDBService.GetStudy(studyID)
	if err != nil {
		return studyTypes.Study{}, fmt.Errorf("%w: study %s", ErrNotFound, studyID)
	}
	if requester.IsAdmin {
		return study, nil
	}

	roles, err := s.studyDBService.GetRolesForUser(studyID, requester.ID)
	if err != nil {
		return studyTypes.Study{}, fmt.Errorf("%w: loading roles: %s", ErrStorageFailure, err.Error())
	}
	if len(roles) == 0 {
		// indistinguishable from a study that does not exist
		return studyTypes.Study{}, fmt.Errorf("%w: study %s", ErrNotFound, studyID)
	}
	return study, nil
}

// GetStudies lists the studies visible to the requester.
func (s *Service) GetStudies(requester studyTypes.Requester) ([]studyTypes.Study, error) {
	studies, err := s.studyDBService.GetStudies()
	if err != nil {
		return nil, fmt.Errorf("%w: loading studies: %s", ErrStorageFailure, err.Error())
	}
	if requester.IsAdmin {
		return studies, nil
	}

	visible := []studyTypes.Study{}
	for _, study := range studies {
		roles, err := s.studyDBService.GetRolesForUser(study.ID, requester.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: loading roles: %s", ErrStorageFailure, err.Error())
		}
		if len(roles) > 0 {
			visible = append(visible, study)
		}
	}
	return visible, nil
}

// DeleteStudy tombstones a study. Platform administrators only; the study's
// collections stay untouched.
func (s *Service) DeleteStudy(requester studyTypes.Requester, studyID string) error {
	if !requester.IsAdmin {
		return ErrPermissionDenied
	}
	if err := s.studyDBService.DeleteStudy(studyID, requester.ID); err != nil {
		return fmt.Errorf("%w: study %s", ErrNotFound, studyID)
	}
	return nil
}
