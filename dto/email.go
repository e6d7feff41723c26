package dto

import (
	"fmt"
	"strings"
)

// EmailMessage is the parsed view of a fetched message, reduced to the fields
// the classification pipeline consumes.
type EmailMessage struct {
	UID       uint32   `json:"uid"`
	Sender    string   `json:"sender"`
	Recipient string   `json:"recipient"`
	Date      string   `json:"date"`
	Subject   string   `json:"subject"`
	Body      string   `json:"body"`
	URLs      []string `json:"urls"`
}

// ClassifierText renders the message as the plain-text block handed to the
// classifier prompt.
func (e *EmailMessage) ClassifierText() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "From: %s\n", e.Sender)
	fmt.Fprintf(&sb, "To: %s\n", e.Recipient)
	fmt.Fprintf(&sb, "Date: %s\n", e.Date)
	fmt.Fprintf(&sb, "Subject: %s\n", e.Subject)
	if len(e.URLs) > 0 {
		fmt.Fprintf(&sb, "URLs: %s\n", strings.Join(e.URLs, ", "))
	}
	fmt.Fprintf(&sb, "\n%s", e.Body)
	return sb.String()
}
