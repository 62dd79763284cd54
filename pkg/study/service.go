package study

import (
	"fmt"
	"sync"

	"go.mongodb.org/mongo-driver/bson"

	permissionchecker "github.com/dsi-icl/acacia-sub002/pkg/permission-checker"
	studyTypes "github.com/dsi-icl/acacia-sub002/pkg/study/types"
)

// StudyDBService is the persistence surface the study service needs. The
// MongoDB implementation lives in pkg/db/study; tests use small in-memory
// mocks.
type StudyDBService interface {
	CreateStudy(study studyTypes.Study) error
	GetStudy(studyID string) (studyTypes.Study, error)
	GetStudies() ([]studyTypes.Study, error)
	DeleteStudy(studyID string, deletedBy string) error

	CreateRole(role studyTypes.Role) error
	GetRoleByID(roleID string) (studyTypes.Role, error)
	GetRolesForStudy(studyID string) ([]studyTypes.Role, error)
	GetRolesForUser(studyID string, userID string) ([]studyTypes.Role, error)
	UpdateRole(role studyTypes.Role) error
	DeleteRole(roleID string, deletedBy string) error

	AppendFieldEntry(studyID string, field studyTypes.FieldDefinition) error
	GetLatestFieldEntries(studyID string, dataVersions []string, fieldIDs []string) ([]studyTypes.FieldDefinition, error)

	AppendDataPoint(studyID string, dataPoint studyTypes.DataPoint) error
	GetDataPointsForField(studyID string, fieldID string, dataVersions []string) ([]studyTypes.DataPoint, error)
	CountDraftEntries(studyID string) (int64, error)
	SealDraft(studyID string, version studyTypes.DataVersion) (int64, error)
	SetDataPointsMetadata(studyID string, filter bson.M, key string, value interface{}) (int64, error)

	AppendStandardization(studyID string, standardization studyTypes.Standardization) error
	GetLatestStandardizations(studyID string, dataVersions []string, stdType string) ([]studyTypes.Standardization, error)
}

// Service bundles the study operations around one DB handle. Commits are
// serialized per study through commitLocks.
type Service struct {
	studyDBService StudyDBService

	commitLocksMutex sync.Mutex
	commitLocks      map[string]*sync.Mutex
}

func NewService(studyDBService StudyDBService) *Service {
	return &Service{
		studyDBService: studyDBService,
		commitLocks:    map[string]*sync.Mutex{},
	}
}

func (s *Service) commitLockForStudy(studyID string) *sync.Mutex {
	s.commitLocksMutex.Lock()
	defer s.commitLocksMutex.Unlock()

	lock, ok := s.commitLocks[studyID]
	if !ok {
		lock = &sync.Mutex{}
		s.commitLocks[studyID] = lock
	}
	return lock
}

// effectivePermission loads the requester's roles for the study and folds
// them for one operation.
func (s *Service) effectivePermission(requester studyTypes.Requester, studyID string, operation int) (permissionchecker.EffectivePermission, error) {
	if requester.IsAdmin {
		return permissionchecker.EffectivePermission{IsAdmin: true, IncludesDraft: true}, nil
	}
	roles, err := s.studyDBService.GetRolesForUser(studyID, requester.ID)
	if err != nil {
		return permissionchecker.EffectivePermission{}, fmt.Errorf("%w: loading roles: %s", ErrStorageFailure, err.Error())
	}
	effective, err := permissionchecker.CompileRoles(requester, roles, operation)
	if err != nil {
		return permissionchecker.EffectivePermission{}, fmt.Errorf("%w: %s", ErrMalformedInput, err.Error())
	}
	return effective, nil
}

// isStudyManager reports whether the requester may run administrative study
// operations (field dictionary writes, version commits, role management).
func (s *Service) isStudyManager(requester studyTypes.Requester, studyID string) (bool, error) {
	if requester.IsAdmin {
		return true, nil
	}
	roles, err := s.studyDBService.GetRolesForUser(studyID, requester.ID)
	if err != nil {
		return false, fmt.Errorf("%w: loading roles: %s", ErrStorageFailure, err.Error())
	}
	for _, role := range roles {
		if role.StudyRole == studyTypes.STUDY_ROLE_MANAGER {
			return true, nil
		}
	}
	return false, nil
}
