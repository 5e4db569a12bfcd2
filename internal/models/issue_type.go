package models

import (
	"encoding/json"
	"fmt"
)

// IssueType is the category predicted by the image classifier. Its integer
// value is the class index used by both the classifier and the severity
// model, so the order of the constants below must match training-time label
// order exactly.
type IssueType int

const (
	IssueGarbage IssueType = iota
	IssueNormal
	IssuePothole
	IssueWaterlogging
)

// ClassNames is the canonical label order shared by every model.
var ClassNames = [...]string{
	IssueGarbage:      "garbage",
	IssueNormal:       "normal",
	IssuePothole:      "pothole",
	IssueWaterlogging: "waterlogging",
}

// NumIssueTypes is the width of the classifier's probability vector.
const NumIssueTypes = len(ClassNames)

// IssueTypeFromIndex converts a raw class index into an IssueType.
func IssueTypeFromIndex(idx int) (IssueType, error) {
	if idx < 0 || idx >= NumIssueTypes {
		return 0, fmt.Errorf("issue index %d out of range [0,%d)", idx, NumIssueTypes)
	}
	return IssueType(idx), nil
}

// ParseIssueType resolves a label such as "pothole".
func ParseIssueType(name string) (IssueType, error) {
	for i, n := range ClassNames {
		if n == name {
			return IssueType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown issue type %q", name)
}

func (t IssueType) Index() int { return int(t) }

func (t IssueType) Valid() bool { return t >= 0 && int(t) < NumIssueTypes }

func (t IssueType) String() string {
	if !t.Valid() {
		return fmt.Sprintf("IssueType(%d)", int(t))
	}
	return ClassNames[t]
}

func (t IssueType) MarshalJSON() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("cannot marshal invalid issue type %d", int(t))
	}
	return json.Marshal(t.String())
}

func (t *IssueType) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := ParseIssueType(name)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
