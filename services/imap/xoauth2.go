package imap

import (
	"fmt"

	"github.com/emersion/go-sasl"
	"github.com/pkg/errors"
)

// xoauth2Client implements the XOAUTH2 SASL mechanism used by Gmail and
// Office 365. The initial response carries the bearer token; any challenge
// from the server is an error payload.
type xoauth2Client struct {
	username string
	token    string
}

func newXOAUTH2Client(username, token string) sasl.Client {
	return &xoauth2Client{username: username, token: token}
}

func (c *xoauth2Client) Start() (string, []byte, error) {
	ir := fmt.Sprintf("user=%s\x01auth=Bearer %s\x01\x01", c.username, c.token)
	return "XOAUTH2", []byte(ir), nil
}

func (c *xoauth2Client) Next(challenge []byte) ([]byte, error) {
	// The server only challenges to deliver an error status
	return nil, errors.Errorf("XOAUTH2 authentication failed: %s", string(challenge))
}
