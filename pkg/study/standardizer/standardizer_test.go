package standardizer

import (
	"reflect"
	"testing"

	studyTypes "github.com/dsi-icl/acacia-sub002/pkg/study/types"
)

func TestApplyReservedStep(t *testing.T) {
	t.Parallel()

	env := Env{
		StudyID: "S1",
		Fields: map[string]studyTypes.FieldDefinition{
			"F2": {FieldID: "F2", FieldName: "Sex", DataType: studyTypes.DATA_TYPE_CATEGORICAL},
		},
		Standardizations: []studyTypes.Standardization{
			{
				FieldID: "F2",
				Path:    []string{"$subjectId"},
				Rules: []studyTypes.StandardizationRule{
					{Source: studyTypes.STD_SOURCE_RESERVED, Entry: "participant", Parameter: []string{"m_subjectId"}},
					{Source: studyTypes.STD_SOURCE_DATA, Entry: "sex"},
				},
			},
		},
	}
	data := map[string]map[string]map[string]interface{}{
		"P001": {"0": {"F2": "M"}},
	}

	result := Apply(env, data)

	record, ok := result["P001"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected a record under P001, got %v", result)
	}
	if record["participant"] != "P001" {
		t.Errorf("expected participant P001, got %v", record["participant"])
	}
	if record["sex"] != "M" {
		t.Errorf("expected sex M, got %v", record["sex"])
	}
}

func TestApplyStepSources(t *testing.T) {
	t.Parallel()

	env := Env{
		StudyID: "S1",
		Fields: map[string]studyTypes.FieldDefinition{
			"WEIGHT": {FieldID: "WEIGHT", FieldName: "Body weight", DataType: studyTypes.DATA_TYPE_DECIMAL, Unit: "kg"},
		},
		Standardizations: []studyTypes.Standardization{
			{
				FieldID: "WEIGHT",
				Path:    []string{"measurements", "$subjectId", "$visitId"},
				Rules: []studyTypes.StandardizationRule{
					{Source: studyTypes.STD_SOURCE_DATA, Entry: "value"},
					{Source: studyTypes.STD_SOURCE_FIELDDEF, Entry: "unit", Parameter: []string{"unit"}},
					{Source: studyTypes.STD_SOURCE_VALUE, Entry: "domain", Parameter: []string{"VS"}},
					{Source: studyTypes.STD_SOURCE_INC, Entry: "seq", Parameter: []string{"$subjectId"}},
					{Source: studyTypes.STD_SOURCE_RESERVED, Entry: "study", Parameter: []string{"m_studyId"}},
				},
			},
		},
	}
	data := map[string]map[string]map[string]interface{}{
		"P001": {
			"0": {"WEIGHT": 70.5},
			"1": {"WEIGHT": 71.0},
		},
	}

	result := Apply(env, data)

	measurements, ok := result["measurements"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected measurements map, got %v", result)
	}
	subject, ok := measurements["P001"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected subject map, got %v", measurements)
	}

	visit0, ok := subject["0"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected visit 0 record, got %v", subject)
	}
	expected := map[string]interface{}{
		"value":  70.5,
		"unit":   "kg",
		"domain": "VS",
		"seq":    1,
		"study":  "S1",
	}
	if !reflect.DeepEqual(visit0, expected) {
		t.Errorf("expected %v, got %v", expected, visit0)
	}

	visit1, ok := subject["1"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected visit 1 record, got %v", subject)
	}
	if visit1["seq"] != 2 {
		t.Errorf("expected per-subject counter to advance to 2, got %v", visit1["seq"])
	}
}

func TestApplyFilters(t *testing.T) {
	t.Parallel()

	env := Env{
		StudyID: "S1",
		Fields: map[string]studyTypes.FieldDefinition{
			"F2": {FieldID: "F2", FieldName: "Sex"},
		},
		Standardizations: []studyTypes.Standardization{
			{
				FieldID: "F2",
				Path:    []string{"$subjectId"},
				Rules: []studyTypes.StandardizationRule{
					{
						Source: studyTypes.STD_SOURCE_DATA,
						Entry:  "sex",
						Filters: map[string]studyTypes.StdFilter{
							"M":                         {Action: studyTypes.STD_FILTER_CONVERT, Source: studyTypes.STD_SOURCE_VALUE, Parameter: "male"},
							studyTypes.MissingValueCode: {Action: studyTypes.STD_FILTER_DELETE},
						},
					},
				},
			},
		},
	}
	data := map[string]map[string]map[string]interface{}{
		"P001": {"0": {"F2": "M"}},
		"P002": {"0": {"F2": studyTypes.MissingValueCode}},
		"P003": {"0": {"F2": "F"}},
	}

	result := Apply(env, data)

	if record, ok := result["P001"].(map[string]interface{}); !ok || record["sex"] != "male" {
		t.Errorf("expected P001 converted to male, got %v", result["P001"])
	}
	if _, ok := result["P002"]; ok {
		t.Errorf("expected P002 dropped by delete filter, got %v", result["P002"])
	}
	if record, ok := result["P003"].(map[string]interface{}); !ok || record["sex"] != "F" {
		t.Errorf("expected P003 passed through, got %v", result["P003"])
	}
}

func TestApplyJoinByKeys(t *testing.T) {
	t.Parallel()

	env := Env{
		StudyID: "S1",
		Fields: map[string]studyTypes.FieldDefinition{
			"HEIGHT": {FieldID: "HEIGHT", FieldName: "Height"},
			"WEIGHT": {FieldID: "WEIGHT", FieldName: "Weight"},
		},
		Standardizations: []studyTypes.Standardization{
			{
				FieldID:    "HEIGHT",
				Path:       []string{"$subjectId", "vitals"},
				JoinByKeys: []string{"visit"},
				Rules: []studyTypes.StandardizationRule{
					{Source: studyTypes.STD_SOURCE_RESERVED, Entry: "visit", Parameter: []string{"m_visitId"}},
					{Source: studyTypes.STD_SOURCE_DATA, Entry: "height"},
				},
			},
			{
				FieldID:    "WEIGHT",
				Path:       []string{"$subjectId", "vitals"},
				JoinByKeys: []string{"visit"},
				Rules: []studyTypes.StandardizationRule{
					{Source: studyTypes.STD_SOURCE_RESERVED, Entry: "visit", Parameter: []string{"m_visitId"}},
					{Source: studyTypes.STD_SOURCE_DATA, Entry: "weight"},
				},
			},
		},
	}
	data := map[string]map[string]map[string]interface{}{
		"P001": {
			"0": {"HEIGHT": 180, "WEIGHT": 75},
			"1": {"HEIGHT": 181},
		},
	}

	result := Apply(env, data)

	subject, ok := result["P001"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected subject map, got %v", result)
	}
	vitals, ok := subject["vitals"].([]interface{})
	if !ok {
		t.Fatalf("expected vitals array, got %v", subject)
	}
	if len(vitals) != 2 {
		t.Fatalf("expected one merged entry per visit, got %d entries: %v", len(vitals), vitals)
	}

	byVisit := map[string]map[string]interface{}{}
	for _, entry := range vitals {
		record := entry.(map[string]interface{})
		byVisit[record["visit"].(string)] = record
	}
	if byVisit["0"]["height"] != 180 || byVisit["0"]["weight"] != 75 {
		t.Errorf("expected visit 0 entry merged across fields, got %v", byVisit["0"])
	}
	if _, hasWeight := byVisit["1"]["weight"]; hasWeight {
		t.Errorf("visit 1 has no weight value, got %v", byVisit["1"])
	}
}

func TestApplySkipsAbsentValuesAndUnknownSources(t *testing.T) {
	t.Parallel()

	env := Env{
		StudyID: "S1",
		Fields: map[string]studyTypes.FieldDefinition{
			"F1": {FieldID: "F1"},
			"F2": {FieldID: "F2"},
		},
		Standardizations: []studyTypes.Standardization{
			{
				FieldID: "F1",
				Path:    []string{"$subjectId"},
				Rules: []studyTypes.StandardizationRule{
					{Source: "bogus", Entry: "x", Parameter: []string{"y"}},
				},
			},
			{
				FieldID: "F2",
				Path:    []string{"byField", "F2", "$subjectId"},
				Rules: []studyTypes.StandardizationRule{
					{Source: studyTypes.STD_SOURCE_DATA, Entry: "value"},
				},
			},
		},
	}
	data := map[string]map[string]map[string]interface{}{
		"P001": {"0": {"F1": "a", "F2": "b"}},
		"P002": {"0": {"F2": nil}},
	}

	result := Apply(env, data)

	// the unknown source aborts F1 records without touching F2's output
	if _, ok := result["P001"]; ok {
		t.Errorf("expected no record from the aborted rule set, got %v", result["P001"])
	}
	byField, ok := result["byField"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected byField output, got %v", result)
	}
	f2, ok := byField["F2"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected F2 output, got %v", byField)
	}
	if _, ok := f2["P001"]; !ok {
		t.Errorf("expected record for P001, got %v", f2)
	}
	if _, ok := f2["P002"]; ok {
		t.Errorf("expected nil value to be skipped for P002, got %v", f2["P002"])
	}
}
