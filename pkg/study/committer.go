package study

import (
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	studyTypes "github.com/dsi-icl/acacia-sub002/pkg/study/types"
)

var versionLabelMatcher = regexp.MustCompile(`^\d{1,3}(\.\d{1,2}){0,2}$`)

// CommitReport describes the outcome of sealing a draft generation. Version
// is nil when there was nothing to seal. RoleTagErrors lists roles whose
// visibility tags could not be recomputed; the version itself stands.
type CommitReport struct {
	Version       *studyTypes.DataVersion `json:"version"`
	SealedCount   int64                   `json:"sealedCount"`
	RoleTagErrors []string                `json:"roleTagErrors,omitempty"`
}

// CreateDataVersion seals the draft generation into a new immutable data
// version. Commits on the same study are serialized; the retagging of draft
// rows and the version append happen in one transaction. Afterwards the
// per-role visibility tags on the sealed rows are recomputed best-effort.
func (s *Service) CreateDataVersion(requester studyTypes.Requester, studyID string, label string, tag string) (CommitReport, error) {
	manager, err := s.isStudyManager(requester, studyID)
	if err != nil {
		return CommitReport{}, err
	}
	if !manager {
		return CommitReport{}, ErrPermissionDenied
	}

	if !versionLabelMatcher.MatchString(label) {
		return CommitReport{}, fmt.Errorf("%w: version label %q must look like 1, 1.0 or 1.0.0", ErrMalformedInput, label)
	}

	lock := s.commitLockForStudy(studyID)
	lock.Lock()
	defer lock.Unlock()

	study, err := s.studyDBService.GetStudy(studyID)
	if err != nil {
		return CommitReport{}, fmt.Errorf("%w: study %s", ErrNotFound, studyID)
	}
	if study.HasVersionWithLabel(label) {
		return CommitReport{}, fmt.Errorf("%w: version label %q is already in use", ErrMalformedInput, label)
	}

	draftCount, err := s.studyDBService.CountDraftEntries(studyID)
	if err != nil {
		return CommitReport{}, fmt.Errorf("%w: counting draft entries: %s", ErrStorageFailure, err.Error())
	}
	if draftCount == 0 {
		// nothing to seal, do not create an empty version
		return CommitReport{}, nil
	}

	version := studyTypes.DataVersion{
		ID:        uuid.NewString(),
		Version:   label,
		Tag:       tag,
		CreatedAt: time.Now().Unix(),
		CreatedBy: requester.ID,
	}
	sealedCount, err := s.studyDBService.SealDraft(studyID, version)
	if err != nil {
		return CommitReport{}, fmt.Errorf("%w: sealing draft: %s", ErrStorageFailure, err.Error())
	}
	if sealedCount == 0 {
		// draft rows were counted above, so another instance sealed them in
		// between; nothing was committed
		return CommitReport{}, fmt.Errorf("%w: draft generation was sealed by a concurrent commit", ErrIntegrityConflict)
	}

	report := CommitReport{
		Version:     &version,
		SealedCount: sealedCount,
	}
	report.RoleTagErrors = s.recomputeRoleVisibilityTags(studyID, version.ID)
	return report, nil
}

// recomputeRoleVisibilityTags marks the newly sealed rows per role so later
// reads can skip regex matching for rows already known to be visible. Per
// role failures are collected, never rolled back into the commit.
func (s *Service) recomputeRoleVisibilityTags(studyID string, versionID string) []string {
	roles, err := s.studyDBService.GetRolesForStudy(studyID)
	if err != nil {
		slog.Error("could not load roles for visibility tags", slog.String("studyID", studyID), slog.String("error", err.Error()))
		return []string{fmt.Sprintf("loading roles: %s", err.Error())}
	}

	tagErrors := []string{}
	for _, role := range roles {
		filter := roleVisibilityFilter(role, versionID)
		if filter == nil {
			continue
		}
		tagged, err := s.studyDBService.SetDataPointsMetadata(studyID, filter, "role:"+role.ID, true)
		if err != nil {
			slog.Error("could not recompute visibility tag", slog.String("studyID", studyID), slog.String("roleID", role.ID), slog.String("error", err.Error()))
			tagErrors = append(tagErrors, fmt.Sprintf("role %s: %s", role.ID, err.Error()))
			continue
		}
		slog.Debug("recomputed visibility tag", slog.String("studyID", studyID), slog.String("roleID", role.ID), slog.Int64("tagged", tagged))
	}
	return tagErrors
}

// roleVisibilityFilter translates a role's read permissions into one match
// over the sealed rows. Returns nil when the role grants no reads.
func roleVisibilityFilter(role studyTypes.Role, versionID string) bson.M {
	clauses := bson.A{}
	for _, permission := range role.DataPermissions {
		if permission.Operations&studyTypes.OPERATION_READ == 0 {
			continue
		}
		if len(permission.Fields) == 0 {
			continue
		}

		clause := bson.M{
			"fieldId": bson.M{"$in": toRegexList(permission.Fields)},
		}
		if len(permission.Subjects) > 0 {
			clause["properties."+studyTypes.PROPERTY_SUBJECT_ID] = bson.M{"$in": toRegexList(permission.Subjects)}
		}
		if len(permission.Visits) > 0 {
			clause["properties."+studyTypes.PROPERTY_VISIT_ID] = bson.M{"$in": toRegexList(permission.Visits)}
		}
		for name, patterns := range permission.Properties {
			clause["properties."+name] = bson.M{"$in": toRegexList(patterns)}
		}
		clauses = append(clauses, clause)
	}
	if len(clauses) == 0 {
		return nil
	}

	return bson.M{
		"dataVersion": versionID,
		"$or":         clauses,
	}
}

func toRegexList(patterns []string) bson.A {
	regexes := bson.A{}
	for _, pattern := range patterns {
		regexes = append(regexes, primitive.Regex{Pattern: pattern})
	}
	return regexes
}
