package permissionchecker

import (
	"testing"

	studyTypes "github.com/dsi-icl/acacia-sub002/pkg/study/types"
)

func TestValidatePatterns(t *testing.T) {
	t.Parallel()

	tests := []struct {
		permission  studyTypes.DataPermission
		expectError bool
	}{
		{
			permission: studyTypes.DataPermission{
				Fields:   []string{".*"},
				Subjects: []string{"^P\\d+$"},
			},
			expectError: false,
		},
		{
			permission: studyTypes.DataPermission{
				Fields: []string{"["},
			},
			expectError: true,
		},
		{
			permission: studyTypes.DataPermission{
				Fields:     []string{".*"},
				Properties: map[string][]string{"deviceId": {"(unclosed"}},
			},
			expectError: true,
		},
	}

	for index, test := range tests {
		err := ValidatePatterns(test.permission)
		if test.expectError && err == nil {
			t.Errorf("test %d: expected error but got nil", index)
		}
		if !test.expectError && err != nil {
			t.Errorf("test %d: expected no error but got %s", index, err)
		}
	}
}

func TestCompileRoles(t *testing.T) {
	t.Parallel()

	roles := []studyTypes.Role{
		{
			ID:    "role1",
			Users: []string{"u1"},
			DataPermissions: []studyTypes.DataPermission{
				{
					Fields:             []string{"^F1$"},
					IncludeUnversioned: false,
					Operations:         studyTypes.OPERATION_READ,
				},
			},
		},
		{
			ID:    "role2",
			Users: []string{"u1", "u2"},
			DataPermissions: []studyTypes.DataPermission{
				{
					Fields:             []string{"^F2$"},
					IncludeUnversioned: true,
					Operations:         studyTypes.OPERATION_READ | studyTypes.OPERATION_WRITE,
				},
			},
		},
	}

	t.Run("admin bypasses compilation", func(t *testing.T) {
		effective, err := CompileRoles(studyTypes.Requester{ID: "any", IsAdmin: true}, roles, studyTypes.OPERATION_READ)
		if err != nil {
			t.Fatal(err)
		}
		if !effective.IsAdmin || !effective.IncludesDraft {
			t.Errorf("expected admin with draft access, got %+v", effective)
		}
		if !effective.Authorize("F3", nil) {
			t.Error("admin should be authorized for any field")
		}
	})

	t.Run("union over membership roles", func(t *testing.T) {
		effective, err := CompileRoles(studyTypes.Requester{ID: "u1"}, roles, studyTypes.OPERATION_READ)
		if err != nil {
			t.Fatal(err)
		}
		if len(effective.Permissions) != 2 {
			t.Fatalf("expected 2 contributing permissions, got %d", len(effective.Permissions))
		}
		if !effective.IncludesDraft {
			t.Error("any contributing permission with draft access should make draft visible")
		}
	})

	t.Run("non-member roles do not contribute", func(t *testing.T) {
		effective, err := CompileRoles(studyTypes.Requester{ID: "u2"}, roles, studyTypes.OPERATION_READ)
		if err != nil {
			t.Fatal(err)
		}
		if len(effective.Permissions) != 1 {
			t.Fatalf("expected 1 contributing permission, got %d", len(effective.Permissions))
		}
		if effective.CoversField("F1") {
			t.Error("u2 has no role covering F1")
		}
	})

	t.Run("operation gates contribution", func(t *testing.T) {
		effective, err := CompileRoles(studyTypes.Requester{ID: "u1"}, roles, studyTypes.OPERATION_WRITE)
		if err != nil {
			t.Fatal(err)
		}
		if len(effective.Permissions) != 1 {
			t.Fatalf("expected only the write-granting permission, got %d", len(effective.Permissions))
		}
		if effective.CoversField("F1") {
			t.Error("read-only permission should not contribute to write")
		}
	})
}

func TestAuthorize(t *testing.T) {
	t.Parallel()

	roles := []studyTypes.Role{
		{
			ID:    "role1",
			Users: []string{"u1"},
			DataPermissions: []studyTypes.DataPermission{
				{
					Fields:     []string{"^F\\d+$"},
					Subjects:   []string{"^P00[12]$"},
					Visits:     []string{"^0$"},
					Operations: studyTypes.OPERATION_READ,
				},
			},
		},
		{
			ID:    "deviceRole",
			Users: []string{"u1"},
			DataPermissions: []studyTypes.DataPermission{
				{
					Fields:     []string{"^DEVICE_"},
					Properties: map[string][]string{"deviceId": {"^AX\\d+$"}},
					Operations: studyTypes.OPERATION_READ,
				},
			},
		},
	}

	effective, err := CompileRoles(studyTypes.Requester{ID: "u1"}, roles, studyTypes.OPERATION_READ)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name       string
		fieldID    string
		properties map[string]string
		expected   bool
	}{
		{
			name:       "all patterns match",
			fieldID:    "F2",
			properties: map[string]string{"subjectId": "P001", "visitId": "0"},
			expected:   true,
		},
		{
			name:       "subject not covered",
			fieldID:    "F2",
			properties: map[string]string{"subjectId": "P003", "visitId": "0"},
			expected:   false,
		},
		{
			name:       "visit not covered",
			fieldID:    "F2",
			properties: map[string]string{"subjectId": "P001", "visitId": "1"},
			expected:   false,
		},
		{
			name:       "field not covered by any permission",
			fieldID:    "OTHER",
			properties: map[string]string{"subjectId": "P001", "visitId": "0"},
			expected:   false,
		},
		{
			name:       "property constrained permission matches",
			fieldID:    "DEVICE_AX_FILE",
			properties: map[string]string{"subjectId": "I7", "deviceId": "AX123"},
			expected:   true,
		},
		{
			name:       "property constrained permission rejects",
			fieldID:    "DEVICE_AX_FILE",
			properties: map[string]string{"subjectId": "I7", "deviceId": "MMM123"},
			expected:   false,
		},
		{
			name:       "missing constrained property rejects",
			fieldID:    "DEVICE_AX_FILE",
			properties: map[string]string{"subjectId": "I7"},
			expected:   false,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			result := effective.Authorize(test.fieldID, test.properties)
			if result != test.expected {
				t.Errorf("expected %t for field %s, properties %v but got %t", test.expected, test.fieldID, test.properties, result)
			}
		})
	}
}

// Adding roles must never revoke access.
func TestAuthorizeMonotonicOverRoles(t *testing.T) {
	t.Parallel()

	baseRole := studyTypes.Role{
		ID:    "base",
		Users: []string{"u1"},
		DataPermissions: []studyTypes.DataPermission{
			{
				Fields:     []string{"^F2$"},
				Operations: studyTypes.OPERATION_READ,
			},
		},
	}
	extraRole := studyTypes.Role{
		ID:    "extra",
		Users: []string{"u1"},
		DataPermissions: []studyTypes.DataPermission{
			{
				Fields:     []string{"^F1$"},
				Subjects:   []string{"^NOBODY$"},
				Operations: studyTypes.OPERATION_READ,
			},
		},
	}

	requester := studyTypes.Requester{ID: "u1"}
	smaller, err := CompileRoles(requester, []studyTypes.Role{baseRole}, studyTypes.OPERATION_READ)
	if err != nil {
		t.Fatal(err)
	}
	larger, err := CompileRoles(requester, []studyTypes.Role{baseRole, extraRole}, studyTypes.OPERATION_READ)
	if err != nil {
		t.Fatal(err)
	}

	samples := []struct {
		fieldID    string
		properties map[string]string
	}{
		{"F2", map[string]string{"subjectId": "P001", "visitId": "0"}},
		{"F2", map[string]string{"subjectId": "X", "visitId": "9"}},
		{"F1", map[string]string{"subjectId": "P001"}},
	}
	for _, sample := range samples {
		if smaller.Authorize(sample.fieldID, sample.properties) && !larger.Authorize(sample.fieldID, sample.properties) {
			t.Errorf("adding a role revoked access for field %s, properties %v", sample.fieldID, sample.properties)
		}
	}
}
