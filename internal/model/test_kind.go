package model

// TestKind enumerates the mock test types a candidate can pick.
type TestKind string

const (
	TestKindAptitude  TestKind = "aptitude"
	TestKindTechnical TestKind = "technical"
	TestKindGD        TestKind = "gd"
)

// AllTestKinds lists every kind in catalog order.
var AllTestKinds = []TestKind{TestKindAptitude, TestKindTechnical, TestKindGD}

// Valid reports whether k is a known kind.
func (k TestKind) Valid() bool {
	switch k {
	case TestKindAptitude, TestKindTechnical, TestKindGD:
		return true
	}
	return false
}

// Graded reports whether answers of this kind have a machine-checkable result.
// Only multiple-choice aptitude tests are graded.
func (k TestKind) Graded() bool {
	return k == TestKindAptitude
}

// Title is the display name shown on the selection screen.
func (k TestKind) Title() string {
	switch k {
	case TestKindAptitude:
		return "Aptitude"
	case TestKindTechnical:
		return "Technical"
	case TestKindGD:
		return "Group Discussion"
	default:
		return string(k)
	}
}

// TestCatalogEntry describes one selectable test on the selection screen.
type TestCatalogEntry struct {
	Kind            TestKind `json:"kind"`
	Title           string   `json:"title"`
	Graded          bool     `json:"graded"`
	DurationSeconds int      `json:"duration_seconds"`
}
