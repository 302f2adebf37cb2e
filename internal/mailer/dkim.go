package mailer

import (
	"bytes"
	"crypto"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"

	"github.com/emersion/go-msgauth/dkim"
)

// DKIMSigner adds a DKIM-Signature header to outgoing SMTP mail.
type DKIMSigner struct {
	key      crypto.Signer
	domain   string
	selector string
}

func NewDKIMSigner(key crypto.Signer, domain, selector string) *DKIMSigner {
	return &DKIMSigner{key: key, domain: domain, selector: selector}
}

// LoadDKIMSigner reads a PEM RSA private key (PKCS#1 or PKCS#8) from path.
func LoadDKIMSigner(path, domain, selector string) (*DKIMSigner, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading DKIM key: %w", err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block in %s", path)
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return NewDKIMSigner(key, domain, selector), nil
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parsing DKIM key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("DKIM key is not RSA")
	}
	return NewDKIMSigner(key, domain, selector), nil
}

func (s *DKIMSigner) Sign(message []byte) ([]byte, error) {
	options := &dkim.SignOptions{
		Domain:                 s.domain,
		Selector:               s.selector,
		Signer:                 s.key,
		Hash:                   crypto.SHA256,
		HeaderCanonicalization: dkim.CanonicalizationRelaxed,
		BodyCanonicalization:   dkim.CanonicalizationRelaxed,
	}

	var signed bytes.Buffer
	if err := dkim.Sign(&signed, bytes.NewReader(message), options); err != nil {
		return nil, fmt.Errorf("signing message: %w", err)
	}
	return signed.Bytes(), nil
}
