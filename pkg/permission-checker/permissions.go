package permissionchecker

import (
	"fmt"
	"regexp"

	studyTypes "github.com/dsi-icl/acacia-sub002/pkg/study/types"
)

// CompiledPermission is one data permission with all regex patterns compiled.
// Compilation happens once when roles are loaded, never per record.
type CompiledPermission struct {
	Fields             []*regexp.Regexp
	Subjects           []*regexp.Regexp
	Visits             []*regexp.Regexp
	Properties         map[string][]*regexp.Regexp
	IncludeUnversioned bool
	Operations         int
}

// EffectivePermission is the union of all of a requester's role permissions
// that grant one operation. IncludesDraft is true if any contributing
// permission grants draft visibility (any role wins).
type EffectivePermission struct {
	IsAdmin       bool
	IncludesDraft bool
	Permissions   []CompiledPermission
}

// ValidatePatterns checks that every regex pattern of a permission compiles.
// Run when a role is written so that a bad pattern fails the role write, not
// a later query.
func ValidatePatterns(permission studyTypes.DataPermission) error {
	patternLists := [][]string{permission.Fields, permission.Subjects, permission.Visits}
	for _, patterns := range permission.Properties {
		patternLists = append(patternLists, patterns)
	}
	for _, patterns := range patternLists {
		for _, pattern := range patterns {
			if _, err := regexp.Compile(pattern); err != nil {
				return fmt.Errorf("invalid permission pattern %q: %w", pattern, err)
			}
		}
	}
	return nil
}

// CompileRoles folds the requester's roles into the effective permission for
// one operation. Permissions not granting the operation do not contribute,
// neither their patterns nor their draft visibility.
func CompileRoles(requester studyTypes.Requester, roles []studyTypes.Role, operation int) (EffectivePermission, error) {
	effective := EffectivePermission{
		IsAdmin: requester.IsAdmin,
	}
	if requester.IsAdmin {
		effective.IncludesDraft = true
		return effective, nil
	}

	for _, role := range roles {
		if !role.HasUser(requester.ID) {
			continue
		}
		for _, permission := range role.DataPermissions {
			if permission.Operations&operation == 0 {
				continue
			}
			compiled, err := compilePermission(permission)
			if err != nil {
				return EffectivePermission{}, err
			}
			if permission.IncludeUnversioned {
				effective.IncludesDraft = true
			}
			effective.Permissions = append(effective.Permissions, compiled)
		}
	}
	return effective, nil
}

func compilePermission(permission studyTypes.DataPermission) (CompiledPermission, error) {
	compiled := CompiledPermission{
		IncludeUnversioned: permission.IncludeUnversioned,
		Operations:         permission.Operations,
	}

	var err error
	compiled.Fields, err = compileList(permission.Fields)
	if err != nil {
		return compiled, err
	}
	compiled.Subjects, err = compileList(permission.Subjects)
	if err != nil {
		return compiled, err
	}
	compiled.Visits, err = compileList(permission.Visits)
	if err != nil {
		return compiled, err
	}

	if len(permission.Properties) > 0 {
		compiled.Properties = make(map[string][]*regexp.Regexp, len(permission.Properties))
		for name, patterns := range permission.Properties {
			compiled.Properties[name], err = compileList(patterns)
			if err != nil {
				return compiled, err
			}
		}
	}
	return compiled, nil
}

func compileList(patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, pattern := range patterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid permission pattern %q: %w", pattern, err)
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}

// HasAnyPermission reports whether the effective permission can grant access
// to anything at all.
func (e EffectivePermission) HasAnyPermission() bool {
	return e.IsAdmin || len(e.Permissions) > 0
}

// CoversField is the fast reject used to narrow the field list before
// touching data: at least one permission's field patterns must match.
func (e EffectivePermission) CoversField(fieldID string) bool {
	if e.IsAdmin {
		return true
	}
	for _, permission := range e.Permissions {
		if matchAny(permission.Fields, fieldID) {
			return true
		}
	}
	return false
}

// Authorize decides access to one logical record. A permission covers the
// record when one of its field patterns matches the fieldId and for every
// constrained attribute (subject, visit, listed properties) at least one
// pattern matches the record's value. An empty subject, visit or property
// pattern list leaves that attribute unconstrained; an empty field list
// grants nothing.
func (e EffectivePermission) Authorize(fieldID string, properties map[string]string) bool {
	if e.IsAdmin {
		return true
	}
	for _, permission := range e.Permissions {
		if permission.covers(fieldID, properties) {
			return true
		}
	}
	return false
}

func (p CompiledPermission) covers(fieldID string, properties map[string]string) bool {
	if !matchAny(p.Fields, fieldID) {
		return false
	}
	if len(p.Subjects) > 0 && !matchAny(p.Subjects, properties[studyTypes.PROPERTY_SUBJECT_ID]) {
		return false
	}
	if len(p.Visits) > 0 && !matchAny(p.Visits, properties[studyTypes.PROPERTY_VISIT_ID]) {
		return false
	}
	for name, patterns := range p.Properties {
		if !matchAny(patterns, properties[name]) {
			return false
		}
	}
	return true
}

func matchAny(patterns []*regexp.Regexp, value string) bool {
	for _, pattern := range patterns {
		if pattern.MatchString(value) {
			return true
		}
	}
	return false
}
