package models

import "fmt"

// ToolType identifies a risk-of-bias instrument.
type ToolType string

const (
	ToolRoB2              ToolType = "rob_2"
	ToolROBINSI           ToolType = "robins_i"
	ToolNOSCohort         ToolType = "nos_cohort"
	ToolNOSCaseControl    ToolType = "nos_case_control"
	ToolNOSCrossSectional ToolType = "nos_cross_sectional"
	ToolQUADAS2           ToolType = "quadas_2"
	ToolJBIRCT            ToolType = "jbi_rct"
	ToolJBICohort         ToolType = "jbi_cohort"
	ToolJBIQualitative    ToolType = "jbi_qualitative"
	ToolCustom            ToolType = "custom"
)

// BuiltinTools lists the standardized instruments in catalog order.
var BuiltinTools = []ToolType{
	ToolRoB2,
	ToolROBINSI,
	ToolNOSCohort,
	ToolNOSCaseControl,
	ToolNOSCrossSectional,
	ToolQUADAS2,
	ToolJBIRCT,
	ToolJBICohort,
	ToolJBIQualitative,
}

// Valid reports whether t is a known tool type, including custom.
func (t ToolType) Valid() bool {
	if t == ToolCustom {
		return true
	}
	for _, tool := range BuiltinTools {
		if t == tool {
			return true
		}
	}
	return false
}

// ParseToolType validates raw and returns the matching ToolType.
func ParseToolType(raw string) (ToolType, error) {
	t := ToolType(raw)
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownTool, raw)
	}
	return t, nil
}
