// Package standardizer interprets declarative standardization rules over
// grouped study data. The interpreter is a pure function over an explicit
// environment; running counters live in the evaluation, not in globals.
package standardizer

import (
	"fmt"
	"sort"

	studyTypes "github.com/dsi-icl/acacia-sub002/pkg/study/types"
)

// Env is everything one standardization run may read: the study id for
// reserved token substitution, the effective field dictionary and the
// applicable standardization entries.
type Env struct {
	StudyID          string
	Fields           map[string]studyTypes.FieldDefinition
	Standardizations []studyTypes.Standardization
}

// Apply reshapes grouped data (subject -> visit -> field -> value) into the
// output schema described by the standardization entries. A record that a
// rule aborts is skipped silently; fields without a matching entry are
// omitted. Evaluation order is deterministic: fields, subjects and visits
// are processed in sorted order.
func Apply(env Env, data map[string]map[string]map[string]interface{}) map[string]interface{} {
	records := map[string]interface{}{}
	counters := map[string]int{}

	byField := make(map[string]studyTypes.Standardization, len(env.Standardizations))
	for _, standardization := range env.Standardizations {
		byField[standardization.FieldID] = standardization
	}

	for _, fieldID := range sortedKeys(env.Fields) {
		standardization, ok := byField[fieldID]
		if !ok || len(standardization.Rules) == 0 {
			continue
		}
		field := env.Fields[fieldID]

		for _, subjectID := range sortedKeys(data) {
			for _, visitID := range sortedKeys(data[subjectID]) {
				value, present := data[subjectID][visitID][fieldID]
				if !present || value == nil {
					continue
				}

				scope := recordScope{
					env:       env,
					field:     field,
					data:      data,
					counters:  counters,
					subjectID: subjectID,
					visitID:   visitID,
				}
				dataClip, ok := scope.evaluateRules(standardization.Rules)
				if !ok {
					continue
				}
				insertRecord(records, standardization, dataClip, subjectID, visitID)
			}
		}
	}
	return records
}

// recordScope is the evaluation context of one (field, subject, visit)
// record.
type recordScope struct {
	env       Env
	field     studyTypes.FieldDefinition
	data      map[string]map[string]map[string]interface{}
	counters  map[string]int
	subjectID string
	visitID   string
}

// evaluateRules runs the steps in order, building the output record. The
// second return value is false when a filter or an unknown source aborted
// the record.
func (scope recordScope) evaluateRules(rules []studyTypes.StandardizationRule) (map[string]interface{}, bool) {
	dataClip := map[string]interface{}{}

	for _, rule := range rules {
		if rule.Source != studyTypes.STD_SOURCE_DATA && len(rule.Parameter) == 0 {
			continue
		}

		switch rule.Source {
		case studyTypes.STD_SOURCE_DATA:
			dataClip[rule.Entry] = scope.dataStep(rule)
		case studyTypes.STD_SOURCE_FIELDDEF:
			dataClip[rule.Entry] = fieldAttribute(scope.field, rule.Parameter[0])
		case studyTypes.STD_SOURCE_VALUE:
			dataClip[rule.Entry] = rule.Parameter[0]
		case studyTypes.STD_SOURCE_INC:
			dataClip[rule.Entry] = scope.nextSeqNum(rule.Parameter)
		case studyTypes.STD_SOURCE_RESERVED:
			token, ok := scope.resolveToken(rule.Parameter[0])
			if !ok {
				return nil, false
			}
			dataClip[rule.Entry] = token
		default:
			return nil, false
		}

		if len(rule.Filters) > 0 {
			filter, ok := rule.Filters[stringifyValue(dataClip[rule.Entry])]
			if !ok {
				continue
			}
			switch filter.Action {
			case studyTypes.STD_FILTER_CONVERT:
				switch filter.Source {
				case studyTypes.STD_SOURCE_VALUE:
					dataClip[rule.Entry] = filter.Parameter
				case studyTypes.STD_SOURCE_DATA:
					dataClip[rule.Entry] = scope.data[scope.subjectID][scope.visitID][filter.Parameter]
				}
			case studyTypes.STD_FILTER_DELETE:
				return nil, false
			default:
				return nil, false
			}
		}
	}
	return dataClip, true
}

// dataStep copies a value from the grouped data: the record's own field by
// default, or another field (and optionally another visit) named by the
// parameter.
func (scope recordScope) dataStep(rule studyTypes.StandardizationRule) interface{} {
	fieldID := scope.field.FieldID
	visitID := scope.visitID
	if len(rule.Parameter) > 0 {
		fieldID = rule.Parameter[0]
	}
	if len(rule.Parameter) == 2 {
		visitID = rule.Parameter[1]
	}

	value := scope.data[scope.subjectID][visitID][fieldID]
	if value == nil {
		return ""
	}
	return value
}

// nextSeqNum increments the counter keyed by the resolved levels, 1-based.
func (scope recordScope) nextSeqNum(levels []string) int {
	key := ""
	for i, level := range levels {
		resolved, ok := scope.resolveToken(level)
		if !ok {
			resolved = level
		}
		if i > 0 {
			key += "-"
		}
		key += resolved
	}
	scope.counters[key]++
	return scope.counters[key]
}

// resolveToken substitutes a reserved token with the record's subject, visit
// or study id. Both token spellings are accepted, the $ prefixed form and
// the legacy m_ prefixed one.
func (scope recordScope) resolveToken(token string) (string, bool) {
	switch token {
	case studyTypes.STD_TOKEN_SUBJECT_ID, "m_subjectId":
		return scope.subjectID, true
	case studyTypes.STD_TOKEN_VISIT_ID, "m_visitId":
		return scope.visitID, true
	case studyTypes.STD_TOKEN_STUDY_ID, "m_studyId":
		return scope.env.StudyID, true
	}
	return "", false
}

func fieldAttribute(field studyTypes.FieldDefinition, name string) interface{} {
	switch name {
	case "fieldId":
		return field.FieldID
	case "fieldName":
		return field.FieldName
	case "description":
		return field.Description
	case "dataType":
		return field.DataType
	case "unit":
		return field.Unit
	case "comments":
		return field.Comments
	}
	return ""
}

func stringifyValue(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case int:
		return fmt.Sprintf("%d", v)
	case int64:
		return fmt.Sprintf("%d", v)
	case float64:
		return fmt.Sprintf("%g", v)
	}
	return ""
}

// insertRecord places the finished record at the standardization's path,
// substituting reserved tokens with the actual subject and visit. With
// joinByKeys the terminal value is an array and the record merges into the
// first entry agreeing on all join keys, where existing values win.
func insertRecord(records map[string]interface{}, standardization studyTypes.Standardization, dataClip map[string]interface{}, subjectID string, visitID string) {
	if len(standardization.Path) == 0 {
		return
	}

	pointer := records
	for _, level := range standardization.Path[:len(standardization.Path)-1] {
		key := substitutePathToken(level, subjectID, visitID)
		next, ok := pointer[key].(map[string]interface{})
		if !ok {
			next = map[string]interface{}{}
			pointer[key] = next
		}
		pointer = next
	}
	last := substitutePathToken(standardization.Path[len(standardization.Path)-1], subjectID, visitID)

	if len(standardization.JoinByKeys) == 0 {
		pointer[last] = dataClip
		return
	}

	entries, _ := pointer[last].([]interface{})
	for _, entry := range entries {
		existing, ok := entry.(map[string]interface{})
		if !ok {
			continue
		}
		if matchesJoinKeys(existing, dataClip, standardization.JoinByKeys) {
			for key, value := range dataClip {
				if _, taken := existing[key]; !taken {
					existing[key] = value
				}
			}
			return
		}
	}
	pointer[last] = append(entries, dataClip)
}

func matchesJoinKeys(existing map[string]interface{}, dataClip map[string]interface{}, joinByKeys []string) bool {
	for _, key := range joinByKeys {
		if existing[key] != dataClip[key] {
			return false
		}
	}
	return true
}

func substitutePathToken(level string, subjectID string, visitID string) string {
	switch level {
	case studyTypes.STD_TOKEN_SUBJECT_ID, "m_subjectId":
		return subjectID
	case studyTypes.STD_TOKEN_VISIT_ID, "m_visitId":
		return visitID
	}
	return level
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
