package study

import (
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"

	studyTypes "github.com/dsi-icl/acacia-sub002/pkg/study/types"
)

// mockStudyDBService keeps everything in memory, mirroring the append-only
// semantics of the real store: histories are slices in insertion order, so
// ties on createdAt fall to the later append.
type mockStudyDBService struct {
	studies          map[string]studyTypes.Study
	roles            []studyTypes.Role
	fields           map[string][]studyTypes.FieldDefinition
	dataPoints       map[string][]studyTypes.DataPoint
	standardizations map[string][]studyTypes.Standardization

	metadataCalls []string
	failAppends   bool

	getStudyCalls int
	// simulates another instance sealing the draft rows between the
	// caller's draft count and the transaction
	sealFindsNoDraftRows bool
}

func newMockStudyDBService() *mockStudyDBService {
	return &mockStudyDBService{
		studies:          map[string]studyTypes.Study{},
		fields:           map[string][]studyTypes.FieldDefinition{},
		dataPoints:       map[string][]studyTypes.DataPoint{},
		standardizations: map[string][]studyTypes.Standardization{},
	}
}

func (m *mockStudyDBService) CreateStudy(study studyTypes.Study) error {
	m.studies[study.ID] = study
	return nil
}

func (m *mockStudyDBService) GetStudy(studyID string) (studyTypes.Study, error) {
	m.getStudyCalls++
	study, ok := m.studies[studyID]
	if !ok || study.Life.IsDeleted() {
		return studyTypes.Study{}, errors.New("no documents in result")
	}
	return study, nil
}

func (m *mockStudyDBService) GetStudies() ([]studyTypes.Study, error) {
	studies := []studyTypes.Study{}
	for _, study := range m.studies {
		if !study.Life.IsDeleted() {
			studies = append(studies, study)
		}
	}
	return studies, nil
}

func (m *mockStudyDBService) DeleteStudy(studyID string, deletedBy string) error {
	study, ok := m.studies[studyID]
	if !ok {
		return errors.New("no documents in result")
	}
	study.Life.DeletedAt = 1
	study.Life.DeletedBy = deletedBy
	m.studies[studyID] = study
	return nil
}

func (m *mockStudyDBService) CreateRole(role studyTypes.Role) error {
	m.roles = append(m.roles, role)
	return nil
}

func (m *mockStudyDBService) GetRoleByID(roleID string) (studyTypes.Role, error) {
	for _, role := range m.roles {
		if role.ID == roleID && !role.Life.IsDeleted() {
			return role, nil
		}
	}
	return studyTypes.Role{}, errors.New("no documents in result")
}

func (m *mockStudyDBService) GetRolesForStudy(studyID string) ([]studyTypes.Role, error) {
	roles := []studyTypes.Role{}
	for _, role := range m.roles {
		if role.StudyID == studyID && !role.Life.IsDeleted() {
			roles = append(roles, role)
		}
	}
	return roles, nil
}

func (m *mockStudyDBService) GetRolesForUser(studyID string, userID string) ([]studyTypes.Role, error) {
	roles := []studyTypes.Role{}
	for _, role := range m.roles {
		if role.StudyID == studyID && role.HasUser(userID) && !role.Life.IsDeleted() {
			roles = append(roles, role)
		}
	}
	return roles, nil
}

func (m *mockStudyDBService) UpdateRole(updated studyTypes.Role) error {
	for i, role := range m.roles {
		if role.ID == updated.ID && !role.Life.IsDeleted() {
			m.roles[i] = updated
			return nil
		}
	}
	return errors.New("no documents in result")
}

func (m *mockStudyDBService) DeleteRole(roleID string, deletedBy string) error {
	for i, role := range m.roles {
		if role.ID == roleID {
			m.roles[i].Life.DeletedAt = 1
			m.roles[i].Life.DeletedBy = deletedBy
			return nil
		}
	}
	return errors.New("no documents in result")
}

func (m *mockStudyDBService) AppendFieldEntry(studyID string, field studyTypes.FieldDefinition) error {
	if m.failAppends {
		return errors.New("append failed")
	}
	m.fields[studyID] = append(m.fields[studyID], field)
	return nil
}

func (m *mockStudyDBService) GetLatestFieldEntries(studyID string, dataVersions []string, fieldIDs []string) ([]studyTypes.FieldDefinition, error) {
	versionSet := toSet(dataVersions)
	fieldIDSet := toSet(fieldIDs)

	latest := map[string]studyTypes.FieldDefinition{}
	order := []string{}
	for _, field := range m.fields[studyID] {
		if !versionSet[field.DataVersion] {
			continue
		}
		if len(fieldIDs) > 0 && !fieldIDSet[field.FieldID] {
			continue
		}
		current, seen := latest[field.FieldID]
		if !seen {
			order = append(order, field.FieldID)
		}
		if !seen || field.Life.CreatedAt >= current.Life.CreatedAt {
			latest[field.FieldID] = field
		}
	}

	fields := []studyTypes.FieldDefinition{}
	for _, fieldID := range order {
		if !latest[fieldID].Life.IsDeleted() {
			fields = append(fields, latest[fieldID])
		}
	}
	return fields, nil
}

func (m *mockStudyDBService) AppendDataPoint(studyID string, dataPoint studyTypes.DataPoint) error {
	if m.failAppends {
		return errors.New("append failed")
	}
	m.dataPoints[studyID] = append(m.dataPoints[studyID], dataPoint)
	return nil
}

func (m *mockStudyDBService) GetDataPointsForField(studyID string, fieldID string, dataVersions []string) ([]studyTypes.DataPoint, error) {
	versionSet := toSet(dataVersions)

	history := []studyTypes.DataPoint{}
	for _, dataPoint := range m.dataPoints[studyID] {
		if dataPoint.FieldID == fieldID && versionSet[dataPoint.DataVersion] {
			history = append(history, dataPoint)
		}
	}
	return history, nil
}

func (m *mockStudyDBService) CountDraftEntries(studyID string) (int64, error) {
	count := int64(0)
	for _, dataPoint := range m.dataPoints[studyID] {
		if dataPoint.DataVersion == studyTypes.DraftVersionID {
			count++
		}
	}
	for _, field := range m.fields[studyID] {
		if field.DataVersion == studyTypes.DraftVersionID {
			count++
		}
	}
	for _, standardization := range m.standardizations[studyID] {
		if standardization.DataVersion == studyTypes.DraftVersionID {
			count++
		}
	}
	return count, nil
}

func (m *mockStudyDBService) SealDraft(studyID string, version studyTypes.DataVersion) (int64, error) {
	if m.sealFindsNoDraftRows {
		return 0, nil
	}
	study, ok := m.studies[studyID]
	if !ok {
		return 0, errors.New("no documents in result")
	}

	sealed := int64(0)
	for i, dataPoint := range m.dataPoints[studyID] {
		if dataPoint.DataVersion == studyTypes.DraftVersionID {
			m.dataPoints[studyID][i].DataVersion = version.ID
			sealed++
		}
	}
	for i, field := range m.fields[studyID] {
		if field.DataVersion == studyTypes.DraftVersionID {
			m.fields[studyID][i].DataVersion = version.ID
			sealed++
		}
	}
	for i, standardization := range m.standardizations[studyID] {
		if standardization.DataVersion == studyTypes.DraftVersionID {
			m.standardizations[studyID][i].DataVersion = version.ID
			sealed++
		}
	}

	study.DataVersions = append(study.DataVersions, version)
	study.CurrentVersionIndex++
	m.studies[studyID] = study
	return sealed, nil
}

func (m *mockStudyDBService) SetDataPointsMetadata(studyID string, filter bson.M, key string, value interface{}) (int64, error) {
	m.metadataCalls = append(m.metadataCalls, fmt.Sprintf("%s:%s", studyID, key))
	return 0, nil
}

func (m *mockStudyDBService) AppendStandardization(studyID string, standardization studyTypes.Standardization) error {
	if m.failAppends {
		return errors.New("append failed")
	}
	m.standardizations[studyID] = append(m.standardizations[studyID], standardization)
	return nil
}

func (m *mockStudyDBService) GetLatestStandardizations(studyID string, dataVersions []string, stdType string) ([]studyTypes.Standardization, error) {
	versionSet := toSet(dataVersions)

	type pairKey struct{ stdType, fieldID string }
	latest := map[pairKey]studyTypes.Standardization{}
	order := []pairKey{}
	for _, standardization := range m.standardizations[studyID] {
		if !versionSet[standardization.DataVersion] {
			continue
		}
		if stdType != "" && standardization.Type != stdType {
			continue
		}
		key := pairKey{standardization.Type, standardization.FieldID}
		current, seen := latest[key]
		if !seen {
			order = append(order, key)
		}
		if !seen || standardization.Life.CreatedAt >= current.Life.CreatedAt {
			latest[key] = standardization
		}
	}

	standardizations := []studyTypes.Standardization{}
	for _, key := range order {
		if !latest[key].Life.IsDeleted() {
			standardizations = append(standardizations, latest[key])
		}
	}
	return standardizations, nil
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, value := range values {
		set[value] = true
	}
	return set
}

// test fixtures shared across the query, upload and commit tests

func newTestStudy(id string) studyTypes.Study {
	return studyTypes.Study{
		ID:                  id,
		Name:                "Test study",
		DataVersions:        []studyTypes.DataVersion{},
		CurrentVersionIndex: studyTypes.NoCurrentVersion,
		Life:                studyTypes.Life{CreatedAt: 1, CreatedBy: "admin"},
	}
}

func newFullAccessRole(studyID string, users ...string) studyTypes.Role {
	return studyTypes.Role{
		ID:        "role-full-" + studyID,
		StudyID:   studyID,
		Name:      "full access",
		StudyRole: studyTypes.STUDY_ROLE_MANAGER,
		DataPermissions: []studyTypes.DataPermission{
			{
				Fields:             []string{".*"},
				Subjects:           []string{".*"},
				Visits:             []string{".*"},
				IncludeUnversioned: true,
				Operations:         studyTypes.OPERATION_READ | studyTypes.OPERATION_WRITE | studyTypes.OPERATION_DELETE,
			},
		},
		Users: users,
		Life:  studyTypes.Life{CreatedAt: 1, CreatedBy: "admin"},
	}
}
