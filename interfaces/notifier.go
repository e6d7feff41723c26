package interfaces

import (
	"context"

	"github.com/stopthephish/phishwatch/dto"
)

type NotifierService interface {
	Notify(ctx context.Context, email *dto.EmailMessage, result *dto.ClassificationResult) error
}
