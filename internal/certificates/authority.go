package certificates

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"io"
	"math/big"
	"time"
)

const defaultCertificateSerialNumberUpperBitLen = 128

// CertificateAuthorityConfiguration defines key size, lifetime, and subject of the impersonation root.
type CertificateAuthorityConfiguration struct {
	RSAKeyBitSize               int
	CertificateValidityDuration time.Duration
	SubjectCommonName           string
	SubjectOrganizationalUnit   string
	SubjectOrganization         string
}

// CertificateAuthorityMaterial contains the root certificate authority artifacts.
// Only CertificateBytes is ever written to disk.
type CertificateAuthorityMaterial struct {
	CertificateBytes []byte
	Certificate      *x509.Certificate
	PrivateKey       *rsa.PrivateKey
}

// CertificateAuthorityManager mints short-lived root certificate authorities in memory.
type CertificateAuthorityManager struct {
	clock            Clock
	randomnessSource io.Reader
	configuration    CertificateAuthorityConfiguration
}

// NewCertificateAuthorityManager constructs a CertificateAuthorityManager.
func NewCertificateAuthorityManager(clock Clock, randomnessSource io.Reader, configuration CertificateAuthorityConfiguration) CertificateAuthorityManager {
	return CertificateAuthorityManager{
		clock:            clock,
		randomnessSource: randomnessSource,
		configuration:    configuration,
	}
}

// GenerateCertificateAuthority creates a self-signed authority that may sign leaves but no further authorities.
func (manager CertificateAuthorityManager) GenerateCertificateAuthority(ctx context.Context) (CertificateAuthorityMaterial, error) {
	select {
	case <-ctx.Done():
		return CertificateAuthorityMaterial{}, fmt.Errorf("generate certificate authority: %w", ctx.Err())
	default:
	}

	privateKey, privateKeyErr := rsa.GenerateKey(manager.randomnessSource, manager.configuration.RSAKeyBitSize)
	if privateKeyErr != nil {
		return CertificateAuthorityMaterial{}, fmt.Errorf("generate private key: %w", privateKeyErr)
	}

	serialNumber, serialErr := generateSerialNumber(manager.randomnessSource)
	if serialErr != nil {
		return CertificateAuthorityMaterial{}, serialErr
	}

	subject := pkix.Name{
		CommonName:   manager.configuration.SubjectCommonName,
		Organization: []string{manager.configuration.SubjectOrganization},
	}
	if manager.configuration.SubjectOrganizationalUnit != "" {
		subject.OrganizationalUnit = []string{manager.configuration.SubjectOrganizationalUnit}
	}

	now := manager.clock.Now()
	template := x509.Certificate{
		SerialNumber:          serialNumber,
		Subject:               subject,
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(manager.configuration.CertificateValidityDuration),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
		MaxPathLen:            0,
		MaxPathLenZero:        true,
	}

	certificateBytesDer, certificateErr := x509.CreateCertificate(manager.randomnessSource, &template, &template, &privateKey.PublicKey, privateKey)
	if certificateErr != nil {
		return CertificateAuthorityMaterial{}, fmt.Errorf("create certificate: %w", certificateErr)
	}
	certificate, parseErr := x509.ParseCertificate(certificateBytesDer)
	if parseErr != nil {
		return CertificateAuthorityMaterial{}, fmt.Errorf("parse certificate: %w", parseErr)
	}

	return CertificateAuthorityMaterial{
		CertificateBytes: pem.EncodeToMemory(&pem.Block{Type: certificatePemBlockType, Bytes: certificateBytesDer}),
		Certificate:      certificate,
		PrivateKey:       privateKey,
	}, nil
}

func generateSerialNumber(randomnessSource io.Reader) (*big.Int, error) {
	upperBound := new(big.Int).Lsh(big.NewInt(1), defaultCertificateSerialNumberUpperBitLen)
	serialNumber, err := rand.Int(randomnessSource, upperBound)
	if err != nil {
		return nil, fmt.Errorf("generate serial number: %w", err)
	}
	return serialNumber, nil
}
