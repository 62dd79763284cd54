package study

import (
	"errors"
	"testing"

	studyTypes "github.com/dsi-icl/acacia-sub002/pkg/study/types"
)

func TestCreateRoleValidatesPatternsEagerly(t *testing.T) {
	db := newMockStudyDBService()
	db.studies["S1"] = newTestStudy("S1")
	db.roles = append(db.roles, newFullAccessRole("S1", "manager"))
	service := NewService(db)

	requester := studyTypes.Requester{ID: "manager"}

	_, err := service.CreateRole(requester, "S1", RoleInput{
		Name:      "broken",
		StudyRole: studyTypes.STUDY_ROLE_USER,
		DataPermissions: []studyTypes.DataPermission{
			{Fields: []string{"[unclosed"}, Operations: studyTypes.OPERATION_READ},
		},
		Users: []string{"u1"},
	})
	if !errors.Is(err, ErrMalformedInput) {
		t.Errorf("expected the bad pattern to fail the role write, got %v", err)
	}

	role, err := service.CreateRole(requester, "S1", RoleInput{
		Name:      "readers",
		StudyRole: studyTypes.STUDY_ROLE_USER,
		DataPermissions: []studyTypes.DataPermission{
			{Fields: []string{"^F\\d+$"}, Operations: studyTypes.OPERATION_READ},
		},
		Users: []string{"u1"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if role.ID == "" {
		t.Error("expected the created role to carry an id")
	}
}

func TestRoleLifecycle(t *testing.T) {
	db := newMockStudyDBService()
	db.studies["S1"] = newTestStudy("S1")
	db.roles = append(db.roles, newFullAccessRole("S1", "manager"))
	service := NewService(db)

	manager := studyTypes.Requester{ID: "manager"}
	role, err := service.CreateRole(manager, "S1", RoleInput{
		Name:      "readers",
		StudyRole: studyTypes.STUDY_ROLE_USER,
		DataPermissions: []studyTypes.DataPermission{
			{Fields: []string{".*"}, Operations: studyTypes.OPERATION_READ},
		},
		Users: []string{"u1"},
	})
	if err != nil {
		t.Fatal(err)
	}

	t.Run("non manager cannot manage roles", func(t *testing.T) {
		_, err := service.CreateRole(studyTypes.Requester{ID: "u1"}, "S1", RoleInput{
			Name:      "sneaky",
			StudyRole: studyTypes.STUDY_ROLE_USER,
		})
		if !errors.Is(err, ErrPermissionDenied) {
			t.Errorf("expected permission denied, got %v", err)
		}
	})

	t.Run("update replaces permissions", func(t *testing.T) {
		updated, err := service.UpdateRole(manager, "S1", role.ID, RoleInput{
			Name:      "writers",
			StudyRole: studyTypes.STUDY_ROLE_USER,
			DataPermissions: []studyTypes.DataPermission{
				{Fields: []string{".*"}, Operations: studyTypes.OPERATION_READ | studyTypes.OPERATION_WRITE},
			},
			Users: []string{"u1", "u2"},
		})
		if err != nil {
			t.Fatal(err)
		}
		if updated.Name != "writers" || len(updated.Users) != 2 {
			t.Errorf("expected the role to be updated, got %+v", updated)
		}
	})

	t.Run("delete tombstones the role", func(t *testing.T) {
		if err := service.DeleteRole(manager, "S1", role.ID); err != nil {
			t.Fatal(err)
		}
		roles, err := db.GetRolesForUser("S1", "u1")
		if err != nil {
			t.Fatal(err)
		}
		if len(roles) != 0 {
			t.Errorf("expected the deleted role to stop granting access, got %v", roles)
		}
	})
}
