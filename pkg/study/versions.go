package study

import (
	"fmt"

	studyTypes "github.com/dsi-icl/acacia-sub002/pkg/study/types"
)

// Version selector values with special meaning. Any other non-empty selector
// is an explicit version id.
const (
	VERSION_SELECTOR_RELEASED   = ""     // all released generations
	VERSION_SELECTOR_WITH_DRAFT = "null" // the draft generation only
	VERSION_SELECTOR_LATEST     = "-1"   // most recent released generation only
)

// resolveVersions computes the concrete set of generation ids visible to a
// request. The draft selector resolves to the draft generation alone, so a
// sealed value stops appearing under it the moment a commit retags the rows;
// requesters without draft access fall back to the released generations.
// Released generations are those with index <= currentVersionIndex. The
// result is ordered and deduplicated.
func resolveVersions(study studyTypes.Study, versionSelector string, includesDraft bool) ([]string, error) {
	released := study.ReleasedVersionIDs()

	switch versionSelector {
	case VERSION_SELECTOR_RELEASED:
		return released, nil
	case VERSION_SELECTOR_WITH_DRAFT:
		if includesDraft {
			return []string{studyTypes.DraftVersionID}, nil
		}
		return released, nil
	case VERSION_SELECTOR_LATEST:
		if len(released) == 0 {
			return []string{}, nil
		}
		return released[len(released)-1:], nil
	default:
		for _, id := range released {
			if id == versionSelector {
				return []string{id}, nil
			}
		}
		return nil, fmt.Errorf("%w: version %s", ErrNotFound, versionSelector)
	}
}
