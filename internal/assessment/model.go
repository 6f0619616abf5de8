package assessment

// RiskLevel grades the overall post-procedure risk.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Valid reports whether r is one of the known risk levels.
func (r RiskLevel) Valid() bool {
	switch r {
	case RiskLow, RiskMedium, RiskHigh:
		return true
	}
	return false
}

// Severity grades detected redness.
type Severity string

const (
	SeverityNone     Severity = "none"
	SeverityMild     Severity = "mild"
	SeverityModerate Severity = "moderate"
	SeveritySevere   Severity = "severe"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityNone, SeverityMild, SeverityModerate, SeveritySevere:
		return true
	}
	return false
}

// SymmetryStatus classifies facial symmetry.
type SymmetryStatus string

const (
	SymmetryNormal   SymmetryStatus = "normal"
	SymmetryAbnormal SymmetryStatus = "abnormal"
)

func (s SymmetryStatus) Valid() bool {
	return s == SymmetryNormal || s == SymmetryAbnormal
}

type Symmetry struct {
	Score       int            `json:"score" bson:"score"`
	Status      SymmetryStatus `json:"status" bson:"status"`
	Description string         `json:"description" bson:"description"`
}

type Redness struct {
	Detected bool     `json:"detected" bson:"detected"`
	Areas    []string `json:"areas" bson:"areas"`
	Severity Severity `json:"severity" bson:"severity"`
}

type Swelling struct {
	Detected   bool    `json:"detected" bson:"detected"`
	Confidence float64 `json:"confidence" bson:"confidence"`
}

// Result is a validated assessment verdict.
type Result struct {
	Summary    string    `json:"summary" bson:"summary"`
	Symmetry   Symmetry  `json:"symmetry" bson:"symmetry"`
	Redness    Redness   `json:"redness" bson:"redness"`
	Swelling   Swelling  `json:"swelling" bson:"swelling"`
	RiskLevel  RiskLevel `json:"riskLevel" bson:"riskLevel"`
	Confidence float64   `json:"confidence" bson:"confidence"`
	NeedReview bool      `json:"needReview" bson:"needReview"`
}

// Clone returns a deep copy of r.
func (r Result) Clone() Result {
	out := r
	out.Redness.Areas = append([]string{}, r.Redness.Areas...)
	return out
}
