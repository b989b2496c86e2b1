package certificates

// Fixed names shared by every run. Removal re-derives locations from these values,
// so they must never change between the run that installs and the run that cleans up.
const (
	DefaultCertificateAuthorityCommonName         = "Mimikry Root CA"
	DefaultCertificateAuthorityOrganization       = "Mimikry Internal"
	DefaultCertificateAuthorityOrganizationalUnit = "Impersonation"
	DefaultTrustLabel                             = "Mimikry CA"
	DefaultAnchorFileName                         = "mimikry-ca.crt"
	DefaultSystemAnchorDirectory                  = "/usr/local/share/ca-certificates"
	DefaultRefreshCommand                         = "update-ca-certificates"
	DefaultRefreshFreshArgument                   = "--fresh"
)
