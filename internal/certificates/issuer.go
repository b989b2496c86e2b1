package certificates

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"time"
)

// ServerCertificateConfiguration defines how leaf certificates are generated.
type ServerCertificateConfiguration struct {
	CertificateValidityDuration time.Duration
	LeafPrivateKeyBitSize       int
}

// ServerCertificateRequest lists the domains the leaf must cover, in order.
type ServerCertificateRequest struct {
	Domains []string
}

// ServerCertificateMaterial contains the leaf certificate artifacts. It is never written to disk.
type ServerCertificateMaterial struct {
	CertificateBytes []byte
	PrivateKeyBytes  []byte
	TLSCertificate   *x509.Certificate
	PrivateKey       *rsa.PrivateKey
}

// ServerCertificateIssuer signs leaf certificates using a root certificate authority.
type ServerCertificateIssuer struct {
	clock            Clock
	randomnessSource io.Reader
	configuration    ServerCertificateConfiguration
}

// NewServerCertificateIssuer constructs a ServerCertificateIssuer.
func NewServerCertificateIssuer(clock Clock, randomnessSource io.Reader, configuration ServerCertificateConfiguration) ServerCertificateIssuer {
	return ServerCertificateIssuer{
		clock:            clock,
		randomnessSource: randomnessSource,
		configuration:    configuration,
	}
}

// IssueServerCertificate returns a leaf whose DNS alternate names equal request.Domains exactly.
func (issuer ServerCertificateIssuer) IssueServerCertificate(ctx context.Context, certificateAuthority CertificateAuthorityMaterial, request ServerCertificateRequest) (ServerCertificateMaterial, error) {
	if len(request.Domains) == 0 {
		return ServerCertificateMaterial{}, errors.New("at least one domain is required")
	}
	if certificateAuthority.Certificate == nil || certificateAuthority.PrivateKey == nil {
		return ServerCertificateMaterial{}, errors.New("certificate authority material is incomplete")
	}

	select {
	case <-ctx.Done():
		return ServerCertificateMaterial{}, fmt.Errorf("issue server certificate: %w", ctx.Err())
	default:
	}

	privateKey, privateKeyErr := rsa.GenerateKey(issuer.randomnessSource, issuer.configuration.LeafPrivateKeyBitSize)
	if privateKeyErr != nil {
		return ServerCertificateMaterial{}, fmt.Errorf("generate leaf private key: %w", privateKeyErr)
	}

	serialNumber, serialErr := generateSerialNumber(issuer.randomnessSource)
	if serialErr != nil {
		return ServerCertificateMaterial{}, serialErr
	}

	now := issuer.clock.Now()
	template := x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			CommonName: request.Domains[0],
		},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(issuer.configuration.CertificateValidityDuration),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              append([]string{}, request.Domains...),
	}

	certificateDer, certificateErr := x509.CreateCertificate(issuer.randomnessSource, &template, certificateAuthority.Certificate, &privateKey.PublicKey, certificateAuthority.PrivateKey)
	if certificateErr != nil {
		return ServerCertificateMaterial{}, fmt.Errorf("create server certificate: %w", certificateErr)
	}
	parsedCertificate, parseErr := x509.ParseCertificate(certificateDer)
	if parseErr != nil {
		return ServerCertificateMaterial{}, fmt.Errorf("parse server certificate: %w", parseErr)
	}

	return ServerCertificateMaterial{
		CertificateBytes: pem.EncodeToMemory(&pem.Block{Type: certificatePemBlockType, Bytes: certificateDer}),
		PrivateKeyBytes:  pem.EncodeToMemory(&pem.Block{Type: privateKeyPemBlockType, Bytes: x509.MarshalPKCS1PrivateKey(privateKey)}),
		TLSCertificate:   parsedCertificate,
		PrivateKey:       privateKey,
	}, nil
}
