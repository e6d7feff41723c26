package parser

import (
	"bytes"
	"regexp"

	"github.com/jhillyerd/enmime"

	"github.com/stopthephish/phishwatch/dto"
	"github.com/stopthephish/phishwatch/interfaces"
	"github.com/stopthephish/phishwatch/internal/logger"
	"github.com/stopthephish/phishwatch/internal/utils"
)

var urlPattern = regexp.MustCompile(`https?://[^\s<>"']+`)

// maxURLs caps how many links are handed to the classifier per message.
const maxURLs = 20

type parserService struct {
	log logger.Logger
}

func NewParserService(log logger.Logger) interfaces.ParserService {
	return &parserService{log: log}
}

// Parse decodes a raw RFC 5322 message into the fields the pipeline needs.
// It never fails: anything enmime cannot decode yields empty fields so the
// message still flows through classification and the ledger.
func (s *parserService) Parse(uid uint32, raw []byte) *dto.EmailMessage {
	email := &dto.EmailMessage{UID: uid}

	envelope, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		s.log.Warnf("Unable to parse message %d, classifying with empty fields: %v", uid, err)
		return email
	}

	email.Sender = envelope.GetHeader("From")
	email.Recipient = envelope.GetHeader("To")
	email.Date = envelope.GetHeader("Date")
	email.Subject = envelope.GetHeader("Subject")
	email.Body = envelope.Text
	if email.Body == "" && envelope.HTML != "" {
		email.Body = envelope.HTML
	}
	email.URLs = extractURLs(email.Body)

	return email
}

func extractURLs(body string) []string {
	matches := urlPattern.FindAllString(body, -1)
	if len(matches) == 0 {
		return nil
	}

	urls := utils.UniqueStrings(matches)
	if len(urls) > maxURLs {
		urls = urls[:maxURLs]
	}
	return urls
}
