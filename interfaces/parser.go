package interfaces

import (
	"github.com/stopthephish/phishwatch/dto"
)

type ParserService interface {
	// Parse never fails; malformed input yields a message with empty fields.
	Parse(uid uint32, raw []byte) *dto.EmailMessage
}
