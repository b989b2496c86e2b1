package app

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/tyemirov/mimikry/internal/certificates"
	"github.com/tyemirov/mimikry/internal/certificates/truststore"
	"github.com/tyemirov/mimikry/internal/hosts"
)

const minimumRSAKeyBits = 2048

// SessionSettings is the validated configuration of one invocation.
type SessionSettings struct {
	BindAddress      string
	HTTPPort         string
	HTTPSPort        string
	HostsPath        string
	HostsAddress     string
	AnchorDirectory  string
	RefreshCommand   string
	TrustLabel       string
	AuthorityKeyBits int
	LeafKeyBits      int
	Validity         time.Duration
	AssetDirectory   string
	EnableStatusPage bool
}

func loadSessionSettings(configurationManager *viper.Viper) (SessionSettings, error) {
	settings := SessionSettings{
		BindAddress:      strings.TrimSpace(configurationManager.GetString(configKeyListenBindAddress)),
		HTTPPort:         strings.TrimSpace(configurationManager.GetString(configKeyListenHTTPPort)),
		HTTPSPort:        strings.TrimSpace(configurationManager.GetString(configKeyListenHTTPSPort)),
		HostsPath:        strings.TrimSpace(configurationManager.GetString(configKeyHostsPath)),
		HostsAddress:     strings.TrimSpace(configurationManager.GetString(configKeyHostsAddress)),
		AnchorDirectory:  strings.TrimSpace(configurationManager.GetString(configKeyTrustAnchorDirectory)),
		RefreshCommand:   strings.TrimSpace(configurationManager.GetString(configKeyTrustRefreshCommand)),
		TrustLabel:       strings.TrimSpace(configurationManager.GetString(configKeyTrustLabel)),
		AuthorityKeyBits: configurationManager.GetInt(configKeyCertificatesAuthorityBits),
		LeafKeyBits:      configurationManager.GetInt(configKeyCertificatesLeafBits),
		Validity:         configurationManager.GetDuration(configKeyCertificatesValidity),
		AssetDirectory:   strings.TrimSpace(configurationManager.GetString(configKeyAssetsDirectory)),
		EnableStatusPage: configurationManager.GetBool(configKeyServeStatusPage),
	}

	if settings.HTTPPort == "" {
		settings.HTTPPort = defaultHTTPPort
	}
	if settings.HTTPSPort == "" {
		settings.HTTPSPort = defaultHTTPSPort
	}
	for _, portValue := range []string{settings.HTTPPort, settings.HTTPSPort} {
		portNumber, portErr := strconv.Atoi(portValue)
		if portErr != nil || portNumber <= 0 || portNumber > 65535 {
			return SessionSettings{}, fmt.Errorf("invalid port %s", portValue)
		}
	}
	if settings.HTTPPort == settings.HTTPSPort {
		return SessionSettings{}, fmt.Errorf("http and https ports must differ (both %s)", settings.HTTPPort)
	}
	if settings.HostsPath == "" {
		return SessionSettings{}, errors.New("hosts file path is required")
	}
	if net.ParseIP(settings.HostsAddress) == nil {
		return SessionSettings{}, fmt.Errorf("invalid hosts address %q", settings.HostsAddress)
	}
	if settings.AuthorityKeyBits < minimumRSAKeyBits || settings.LeafKeyBits < minimumRSAKeyBits {
		return SessionSettings{}, fmt.Errorf("rsa key sizes must be at least %d bits", minimumRSAKeyBits)
	}
	if settings.Validity <= 0 {
		return SessionSettings{}, fmt.Errorf("invalid certificate validity %s", settings.Validity)
	}
	return settings, nil
}

func (settings SessionSettings) chainConfiguration() certificates.ChainConfiguration {
	configuration := certificates.DefaultChainConfiguration()
	configuration.Authority.RSAKeyBitSize = settings.AuthorityKeyBits
	configuration.Authority.CertificateValidityDuration = settings.Validity
	configuration.Leaf.LeafPrivateKeyBitSize = settings.LeafKeyBits
	configuration.Leaf.CertificateValidityDuration = settings.Validity
	return configuration
}

func (settings SessionSettings) trustConfiguration(realUserHomeDirectory string) truststore.Configuration {
	return truststore.Configuration{
		CertificateLabel:      settings.TrustLabel,
		SystemAnchorDirectory: settings.AnchorDirectory,
		RefreshCommand:        settings.RefreshCommand,
		RealUserHomeDirectory: realUserHomeDirectory,
	}
}

func (settings SessionSettings) hostsConfiguration() hosts.Configuration {
	return hosts.Configuration{Path: settings.HostsPath, Address: settings.HostsAddress}
}
