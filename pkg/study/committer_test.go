package study

import (
	"errors"
	"testing"

	studyTypes "github.com/dsi-icl/acacia-sub002/pkg/study/types"
)

func TestCreateDataVersionValidation(t *testing.T) {
	requester := studyTypes.Requester{ID: "u1"}
	service, _ := setupQueryFixture(t)

	t.Run("bad label format", func(t *testing.T) {
		for _, label := range []string{"", "v1", "1.0.0.0", "1234", "1.123", "1..0"} {
			_, err := service.CreateDataVersion(requester, "S1", label, "")
			if !errors.Is(err, ErrMalformedInput) {
				t.Errorf("label %q: expected malformed input, got %v", label, err)
			}
		}
	})

	t.Run("non manager denied", func(t *testing.T) {
		_, err := service.CreateDataVersion(studyTypes.Requester{ID: "u2"}, "S1", "1.0", "")
		if !errors.Is(err, ErrPermissionDenied) {
			t.Errorf("expected permission denied, got %v", err)
		}
	})

	t.Run("duplicate label rejected", func(t *testing.T) {
		if _, err := service.UploadData(requester, "S1", []DataPointInput{
			{FieldID: "F2", Value: "M", Properties: map[string]string{"subjectId": "P001", "visitId": "0"}},
		}); err != nil {
			t.Fatal(err)
		}
		report, err := service.CreateDataVersion(requester, "S1", "1.0", "")
		if err != nil {
			t.Fatal(err)
		}
		if report.Version == nil {
			t.Fatal("expected a version")
		}

		if _, err := service.UploadData(requester, "S1", []DataPointInput{
			{FieldID: "F2", Value: "F", Properties: map[string]string{"subjectId": "P001", "visitId": "0"}},
		}); err != nil {
			t.Fatal(err)
		}
		_, err = service.CreateDataVersion(requester, "S1", "1.0", "")
		if !errors.Is(err, ErrMalformedInput) {
			t.Errorf("expected duplicate label to be rejected, got %v", err)
		}
	})
}

func TestCreateDataVersionNoOpOnEmptyDraft(t *testing.T) {
	db := newMockStudyDBService()
	db.studies["S1"] = newTestStudy("S1")
	db.roles = append(db.roles, newFullAccessRole("S1", "u1"))
	service := NewService(db)

	report, err := service.CreateDataVersion(studyTypes.Requester{ID: "u1"}, "S1", "1.0", "")
	if err != nil {
		t.Fatal(err)
	}
	if report.Version != nil {
		t.Errorf("expected no version for an empty draft, got %+v", report.Version)
	}
	if len(db.studies["S1"].DataVersions) != 0 {
		t.Errorf("expected the study to remain unversioned, got %v", db.studies["S1"].DataVersions)
	}
}

func TestCreateDataVersionSealsEverything(t *testing.T) {
	requester := studyTypes.Requester{ID: "u1"}
	service, db := setupQueryFixture(t)

	if _, err := service.UploadData(requester, "S1", []DataPointInput{
		{FieldID: "F2", Value: "M", Properties: map[string]string{"subjectId": "P001", "visitId": "0"}},
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := service.CreateStandardization(requester, "S1", StandardizationInput{
		Type:    "cdisc",
		FieldID: "F2",
		Path:    []string{"$subjectId"},
		Rules: []studyTypes.StandardizationRule{
			{Source: studyTypes.STD_SOURCE_RESERVED, Entry: "participant", Parameter: []string{"m_subjectId"}},
		},
	}); err != nil {
		t.Fatal(err)
	}

	report, err := service.CreateDataVersion(requester, "S1", "2.0", "tagged")
	if err != nil {
		t.Fatal(err)
	}
	if report.Version == nil {
		t.Fatal("expected a version")
	}
	// one data point, one field entry, one standardization
	if report.SealedCount != 3 {
		t.Errorf("expected 3 sealed rows, got %d", report.SealedCount)
	}

	for _, dataPoint := range db.dataPoints["S1"] {
		if dataPoint.DataVersion == studyTypes.DraftVersionID {
			t.Errorf("data point %s was left at the draft generation", dataPoint.ID)
		}
	}
	for _, field := range db.fields["S1"] {
		if field.DataVersion == studyTypes.DraftVersionID {
			t.Errorf("field entry %s was left at the draft generation", field.ID)
		}
	}
	for _, standardization := range db.standardizations["S1"] {
		if standardization.DataVersion == studyTypes.DraftVersionID {
			t.Errorf("standardization %s was left at the draft generation", standardization.ID)
		}
	}

	study := db.studies["S1"]
	if study.CurrentVersionIndex != 0 || len(study.DataVersions) != 1 {
		t.Errorf("expected the version pointer to advance, got index %d with %d versions", study.CurrentVersionIndex, len(study.DataVersions))
	}

	// visibility tags recomputed for the read-granting roles
	if len(db.metadataCalls) == 0 {
		t.Error("expected per-role visibility tags to be recomputed")
	}
}

// When the retag transaction finds no draft rows even though the preceding
// count saw some, another instance committed in between: the commit fails
// with a conflict instead of releasing an empty version.
func TestCreateDataVersionConcurrentSealConflict(t *testing.T) {
	requester := studyTypes.Requester{ID: "u1"}
	service, db := setupQueryFixture(t)

	if _, err := service.UploadData(requester, "S1", []DataPointInput{
		{FieldID: "F2", Value: "M", Properties: map[string]string{"subjectId": "P001", "visitId": "0"}},
	}); err != nil {
		t.Fatal(err)
	}

	db.sealFindsNoDraftRows = true
	_, err := service.CreateDataVersion(requester, "S1", "1.0", "")
	if !errors.Is(err, ErrIntegrityConflict) {
		t.Errorf("expected an integrity conflict, got %v", err)
	}
	if len(db.studies["S1"].DataVersions) != 0 {
		t.Errorf("expected no version to be released, got %v", db.studies["S1"].DataVersions)
	}
}

func TestRoleVisibilityFilter(t *testing.T) {
	t.Parallel()

	t.Run("no read permission yields no filter", func(t *testing.T) {
		role := studyTypes.Role{
			ID: "w",
			DataPermissions: []studyTypes.DataPermission{
				{Fields: []string{".*"}, Operations: studyTypes.OPERATION_WRITE},
			},
		}
		if filter := roleVisibilityFilter(role, "v1"); filter != nil {
			t.Errorf("expected nil filter, got %v", filter)
		}
	})

	t.Run("read permission constrains version and attributes", func(t *testing.T) {
		role := studyTypes.Role{
			ID: "r",
			DataPermissions: []studyTypes.DataPermission{
				{
					Fields:     []string{"^F"},
					Subjects:   []string{"^P"},
					Operations: studyTypes.OPERATION_READ,
				},
			},
		}
		filter := roleVisibilityFilter(role, "v1")
		if filter == nil {
			t.Fatal("expected a filter")
		}
		if filter["dataVersion"] != "v1" {
			t.Errorf("expected the filter to pin the sealed version, got %v", filter["dataVersion"])
		}
	})
}
