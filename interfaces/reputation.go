package interfaces

import (
	"github.com/stopthephish/phishwatch/dto"
)

type ReputationService interface {
	// Classify checks the sender against the configured lists. The second
	// return value is false when neither list matched.
	Classify(sender string) (*dto.ClassificationResult, bool)
}
