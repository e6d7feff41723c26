package interfaces

import (
	"context"

	"github.com/stopthephish/phishwatch/dto"
)

type AIService interface {
	ClassifyEmail(ctx context.Context, email *dto.EmailMessage) (*dto.ClassificationResult, error)
}
