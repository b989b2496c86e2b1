package certificates

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"time"
)

// ChainConfiguration groups the authority and leaf settings used for one impersonation run.
type ChainConfiguration struct {
	Authority CertificateAuthorityConfiguration
	Leaf      ServerCertificateConfiguration
}

// DefaultChainConfiguration returns the settings used when nothing is configured.
func DefaultChainConfiguration() ChainConfiguration {
	return ChainConfiguration{
		Authority: CertificateAuthorityConfiguration{
			RSAKeyBitSize:               4096,
			CertificateValidityDuration: 30 * 24 * time.Hour,
			SubjectCommonName:           DefaultCertificateAuthorityCommonName,
			SubjectOrganizationalUnit:   DefaultCertificateAuthorityOrganizationalUnit,
			SubjectOrganization:         DefaultCertificateAuthorityOrganization,
		},
		Leaf: ServerCertificateConfiguration{
			CertificateValidityDuration: 30 * 24 * time.Hour,
			LeafPrivateKeyBitSize:       2048,
		},
	}
}

// Chain is the authority plus the leaf it signed, ready to be served.
type Chain struct {
	Authority      CertificateAuthorityMaterial
	Leaf           ServerCertificateMaterial
	TLSCertificate tls.Certificate
}

// ChainGenerator mints a fresh authority and leaf for a domain list.
type ChainGenerator struct {
	authorityManager CertificateAuthorityManager
	issuer           ServerCertificateIssuer
}

// NewChainGenerator constructs a ChainGenerator.
func NewChainGenerator(clock Clock, randomnessSource io.Reader, configuration ChainConfiguration) ChainGenerator {
	return ChainGenerator{
		authorityManager: NewCertificateAuthorityManager(clock, randomnessSource, configuration.Authority),
		issuer:           NewServerCertificateIssuer(clock, randomnessSource, configuration.Leaf),
	}
}

// Generate produces the authority and a leaf covering domains. Nothing touches the disk.
func (generator ChainGenerator) Generate(ctx context.Context, domains []string) (Chain, error) {
	authority, authorityErr := generator.authorityManager.GenerateCertificateAuthority(ctx)
	if authorityErr != nil {
		return Chain{}, fmt.Errorf("generate certificate authority: %w", authorityErr)
	}
	leaf, leafErr := generator.issuer.IssueServerCertificate(ctx, authority, ServerCertificateRequest{Domains: domains})
	if leafErr != nil {
		return Chain{}, fmt.Errorf("issue leaf certificate: %w", leafErr)
	}
	tlsCertificate, keyPairErr := tls.X509KeyPair(leaf.CertificateBytes, leaf.PrivateKeyBytes)
	if keyPairErr != nil {
		return Chain{}, fmt.Errorf("build tls key pair: %w", keyPairErr)
	}
	return Chain{Authority: authority, Leaf: leaf, TLSCertificate: tlsCertificate}, nil
}
