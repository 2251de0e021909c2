package mail

import (
	"bytes"
	"crypto"
	"strings"

	"github.com/emersion/go-msgauth/dkim"
)

var defaultSignedHeaders = []string{
	"from",
	"to",
	"subject",
	"date",
	"message-id",
}

type SignOptions struct {
	Domain     string
	Selector   string
	Signer     crypto.Signer
	HeaderKeys []string
}

// Sign prepends a DKIM-Signature header to a CRLF message.
func Sign(raw string, options SignOptions) (string, error) {
	if len(options.HeaderKeys) == 0 {
		options.HeaderKeys = defaultSignedHeaders
	}

	opts := &dkim.SignOptions{
		Domain:     options.Domain,
		Selector:   options.Selector,
		Signer:     options.Signer,
		HeaderKeys: options.HeaderKeys,
	}

	var signed bytes.Buffer
	if err := dkim.Sign(&signed, strings.NewReader(raw), opts); err != nil {
		return "", err
	}

	return signed.String(), nil
}

// VerifyDKIM checks the DKIM-Signature headers of the captured message.
// lookupTXT resolves "<selector>._domainkey.<domain>" records; nil uses DNS.
func (m *Message) VerifyDKIM(lookupTXT func(domain string) ([]string, error)) ([]*dkim.Verification, error) {
	// the DATA terminator swallows the CRLF of the last body line
	raw := m.Raw + "\r\n"

	return dkim.VerifyWithOptions(strings.NewReader(raw), &dkim.VerifyOptions{
		LookupTXT: lookupTXT,
	})
}
