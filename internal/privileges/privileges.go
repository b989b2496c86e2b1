// Package privileges answers two questions: is the process elevated, and on whose behalf.
package privileges

import (
	"errors"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
)

const (
	environmentSudoUser  = "SUDO_USER"
	environmentPkexecUID = "PKEXEC_UID"
	rootUserName         = "root"
	fallbackHomeRoot     = "/home"
)

// ErrNotElevated is returned when the process lacks administrative privileges.
var ErrNotElevated = errors.New("must run with administrative privileges (try sudo)")

// RealUser is the account that invoked the elevated process.
type RealUser struct {
	Name          string
	HomeDirectory string
}

// Environment abstracts the process facts the checks depend on.
type Environment interface {
	EffectiveUserID() int
	LookupEnv(key string) (string, bool)
	LookupUser(name string) (*user.User, error)
	LookupUserID(uid string) (*user.User, error)
}

// OperatingSystemEnvironment reads the running process.
type OperatingSystemEnvironment struct{}

// EffectiveUserID returns the effective uid.
func (OperatingSystemEnvironment) EffectiveUserID() int {
	return os.Geteuid()
}

// LookupEnv reads an environment variable.
func (OperatingSystemEnvironment) LookupEnv(key string) (string, bool) {
	return os.LookupEnv(key)
}

// LookupUser consults the user database by name.
func (OperatingSystemEnvironment) LookupUser(name string) (*user.User, error) {
	return user.Lookup(name)
}

// LookupUserID consults the user database by uid.
func (OperatingSystemEnvironment) LookupUserID(uid string) (*user.User, error) {
	return user.LookupId(uid)
}

// Checker implements the elevation check and real user discovery.
type Checker struct {
	environment Environment
}

// NewChecker constructs a Checker over environment.
func NewChecker(environment Environment) Checker {
	return Checker{environment: environment}
}

// NewOperatingSystemChecker constructs a Checker for the running process.
func NewOperatingSystemChecker() Checker {
	return NewChecker(OperatingSystemEnvironment{})
}

// CheckElevated returns ErrNotElevated unless the effective uid is 0.
func (checker Checker) CheckElevated() error {
	if checker.environment.EffectiveUserID() != 0 {
		return ErrNotElevated
	}
	return nil
}

// RealUser returns the invoking account. The second result is false when the invoker is
// unknown or is root itself.
func (checker Checker) RealUser() (RealUser, bool) {
	if name, ok := checker.environment.LookupEnv(environmentSudoUser); ok && name != "" {
		return checker.resolveByName(name)
	}
	if uid, ok := checker.environment.LookupEnv(environmentPkexecUID); ok && uid != "" {
		if _, parseErr := strconv.Atoi(uid); parseErr != nil || uid == "0" {
			return RealUser{}, false
		}
		account, lookupErr := checker.environment.LookupUserID(uid)
		if lookupErr != nil {
			return RealUser{}, false
		}
		return checker.resolveByName(account.Username)
	}
	return RealUser{}, false
}

func (checker Checker) resolveByName(name string) (RealUser, bool) {
	if name == rootUserName {
		return RealUser{}, false
	}
	homeDirectory := filepath.Join(fallbackHomeRoot, name)
	if account, lookupErr := checker.environment.LookupUser(name); lookupErr == nil && account.HomeDir != "" {
		homeDirectory = account.HomeDir
	}
	return RealUser{Name: name, HomeDirectory: homeDirectory}, true
}
