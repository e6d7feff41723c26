package dto

import (
	"github.com/stopthephish/phishwatch/internal/enum"
)

// ClassificationResult is the verdict attached to a message, either from the
// sender reputation lists or from the classifier.
type ClassificationResult struct {
	Classification enum.Verdict `json:"classification"`
	Reason         string       `json:"reason"`
	Advice         string       `json:"advice"`
}
