package standardize

// NHANES-style reserved escape codes meaning refused / don't know / missing.
// A value equal to one of these is coded missingness, not a measurement.
var missingSentinels = map[float64]struct{}{
	7:     {},
	9:     {},
	77:    {},
	99:    {},
	777:   {},
	999:   {},
	7777:  {},
	9999:  {},
	77777: {},
	99999: {},
}

// NullIfSentinel maps reserved escape codes to nil. Non-numeric values and
// numbers outside the reserved set pass through unchanged, so applying it
// twice is a no-op.
func NullIfSentinel(v interface{}) interface{} {
	switch val := v.(type) {
	case nil:
		return nil
	case float64:
		if isSentinel(val) {
			return nil
		}
	case float32:
		if isSentinel(float64(val)) {
			return nil
		}
	case int:
		if isSentinel(float64(val)) {
			return nil
		}
	case int64:
		if isSentinel(float64(val)) {
			return nil
		}
	}
	return v
}

func isSentinel(f float64) bool {
	_, ok := missingSentinels[f]
	return ok
}

// Recode kinds for coded categorical columns.
const (
	RecodeSex           = "sex"
	RecodeRaceEthnicity = "race_ethnicity"
	RecodePregnancy     = "pregnancy"
	RecodeYesNo         = "yes_no"
)

var sexCodes = map[int]string{
	1: "male",
	2: "female",
}

// RIDRETH3 coding; RIDRETH1 shares codes 1-4.
var raceEthnicityCodes = map[int]string{
	1: "mexican_american",
	2: "other_hispanic",
	3: "non_hispanic_white",
	4: "non_hispanic_black",
	6: "non_hispanic_asian",
	7: "other_or_multiracial",
}

var pregnancyCodes = map[int]string{
	1: "pregnant",
	2: "not_pregnant",
}

var yesNoCodes = map[int]string{
	1: "yes",
	2: "no",
}

var recodeTables = map[string]map[int]string{
	RecodeSex:           sexCodes,
	RecodeRaceEthnicity: raceEthnicityCodes,
	RecodePregnancy:     pregnancyCodes,
	RecodeYesNo:         yesNoCodes,
}

// Recode maps a coded categorical to its label. Sentinel codes, unmapped
// codes, and missing values all collapse to "unknown" so downstream
// consumers never see an absent categorical.
func Recode(kind string, v interface{}) string {
	table, ok := recodeTables[kind]
	if !ok {
		return "unknown"
	}
	if s, isStr := v.(string); isStr {
		// Already-recoded labels survive a second pass.
		for _, label := range table {
			if s == label {
				return s
			}
		}
		return "unknown"
	}
	v = NullIfSentinel(v)
	if v == nil {
		return "unknown"
	}
	code, ok := intCode(v)
	if !ok {
		return "unknown"
	}
	if label, ok := table[code]; ok {
		return label
	}
	return "unknown"
}

func intCode(v interface{}) (int, bool) {
	switch val := v.(type) {
	case int:
		return val, true
	case int64:
		return int(val), true
	case float64:
		if val == float64(int(val)) {
			return int(val), true
		}
	case float32:
		if float64(val) == float64(int(val)) {
			return int(val), true
		}
	}
	return 0, false
}
