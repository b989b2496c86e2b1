package certificates

import (
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
)

const (
	certificatePemBlockType = "CERTIFICATE"
	privateKeyPemBlockType  = "RSA PRIVATE KEY"
)

// ParseCertificatePEM decodes the first CERTIFICATE block.
func ParseCertificatePEM(content []byte) (*x509.Certificate, error) {
	return parseCertificateFromPEM(content)
}

func parseCertificateFromPEM(content []byte) (*x509.Certificate, error) {
	block, _ := pem.Decode(content)
	if block == nil {
		return nil, errors.New("no pem block found")
	}
	if block.Type != certificatePemBlockType {
		return nil, fmt.Errorf("unexpected pem block type %s", block.Type)
	}
	return x509.ParseCertificate(block.Bytes)
}
