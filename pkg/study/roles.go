package study

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	permissionchecker "github.com/dsi-icl/acacia-sub002/pkg/permission-checker"
	studyTypes "github.com/dsi-icl/acacia-sub002/pkg/study/types"
)

// RoleInput describes a role to create or update. Every regex pattern is
// validated here, so a bad pattern fails the role write instead of a later
// query.
type RoleInput struct {
	Name            string                      `json:"name"`
	Description     string                      `json:"description,omitempty"`
	StudyRole       string                      `json:"studyRole"`
	DataPermissions []studyTypes.DataPermission `json:"dataPermissions"`
	Users           []string                    `json:"users"`
}

// GetRoles lists the live roles of a study. Study managers and admins only.
func (s *Service) GetRoles(requester studyTypes.Requester, studyID string) ([]studyTypes.Role, error) {
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
	roles, err := s.studyDBService.GetRolesForStudy(studyID)
	if err != nil {
		return nil, fmt.Errorf("%w: loading roles: %s", ErrStorageFailure, err.Error())
	}
	return roles, nil
}

func (s *Service) CreateRole(requester studyTypes.Requester, studyID string, input RoleInput) (studyTypes.Role, error) {
	if _, err := s.studyDBService.GetStudy(studyID); err != nil {
		return studyTypes.Role{}, fmt.Errorf("%w: study %s", ErrNotFound, studyID)
	}
	manager, err := s.isStudyManager(requester, studyID)
	if err != nil {
		return studyTypes.Role{}, err
	}
	if !manager {
		return studyTypes.Role{}, ErrPermissionDenied
	}

	if err := validateRoleInput(input); err != nil {
		return studyTypes.Role{}, err
	}

	role := studyTypes.Role{
		ID:              uuid.NewString(),
		StudyID:         studyID,
		Name:            input.Name,
		Description:     input.Description,
		StudyRole:       input.StudyRole,
		DataPermissions: input.DataPermissions,
		Users:           input.Users,
		Life: studyTypes.Life{
			CreatedAt: time.Now().Unix(),
			CreatedBy: requester.ID,
		},
	}
	if err := s.studyDBService.CreateRole(role); err != nil {
		return studyTypes.Role{}, fmt.Errorf("%w: role could not be persisted: %s", ErrStorageFailure, err.Error())
	}
	return role, nil
}

func (s *Service) UpdateRole(requester studyTypes.Requester, studyID string, roleID string, input RoleInput) (studyTypes.Role, error) {
	manager, err := s.isStudyManager(requester, studyID)
	if err != nil {
		return studyTypes.Role{}, err
	}
	if !manager {
		return studyTypes.Role{}, ErrPermissionDenied
	}

	role, err := s.studyDBService.GetRoleByID(roleID)
	if err != nil || role.StudyID != studyID {
		return studyTypes.Role{}, fmt.Errorf("%w: role %s", ErrNotFound, roleID)
	}

	if err := validateRoleInput(input); err != nil {
		return studyTypes.Role{}, err
	}

	role.Name = input.Name
	role.Description = input.Description
	role.StudyRole = input.StudyRole
	role.DataPermissions = input.DataPermissions
	role.Users = input.Users
	if err := s.studyDBService.UpdateRole(role); err != nil {
		return studyTypes.Role{}, fmt.Errorf("%w: role could not be persisted: %s", ErrStorageFailure, err.Error())
	}
	return role, nil
}

func (s *Service) DeleteRole(requester studyTypes.Requester, studyID string, roleID string) error {
	manager, err := s.isStudyManager(requester, studyID)
	if err != nil {
		return err
	}
	if !manager {
		return ErrPermissionDenied
	}

	role, err := s.studyDBService.GetRoleByID(roleID)
	if err != nil || role.StudyID != studyID {
		return fmt.Errorf("%w: role %s", ErrNotFound, roleID)
	}

	if err := s.studyDBService.DeleteRole(roleID, requester.ID); err != nil {
		return fmt.Errorf("%w: role could not be deleted: %s", ErrStorageFailure, err.Error())
	}
	return nil
}

func validateRoleInput(input RoleInput) error {
	if input.Name == "" {
		return fmt.Errorf("%w: role name is required", ErrMalformedInput)
	}
	switch input.StudyRole {
	case studyTypes.STUDY_ROLE_MANAGER, studyTypes.STUDY_ROLE_USER:
	default:
		return fmt.Errorf("%w: unknown study role %q", ErrMalformedInput, input.StudyRole)
	}
	for _, permission := range input.DataPermissions {
		if err := permissionchecker.ValidatePatterns(permission); err != nil {
			return fmt.Errorf("%w: %s", ErrMalformedInput, err.Error())
		}
	}
	return nil
}
