package session

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

const domainSeparator = ","

// DomainSet is the ordered list of impersonated domains. Duplicates are kept.
type DomainSet struct {
	names []string
}

// ParseDomainSet splits a comma separated list and trims every entry. Entries that would break
// a mapping file line are rejected.
func ParseDomainSet(raw string) (DomainSet, error) {
	parts := strings.Split(raw, domainSeparator)
	names := make([]string, 0, len(parts))
	for index, part := range parts {
		name := strings.TrimSpace(part)
		switch {
		case name == "":
			return DomainSet{}, fmt.Errorf("domain %d is empty", index+1)
		case strings.ContainsFunc(name, unicode.IsSpace):
			return DomainSet{}, fmt.Errorf("domain %q contains whitespace", name)
		case strings.Contains(name, "#"):
			return DomainSet{}, fmt.Errorf("domain %q contains '#'", name)
		}
		names = append(names, name)
	}
	return NewDomainSet(names)
}

// NewDomainSet wraps already validated names.
func NewDomainSet(names []string) (DomainSet, error) {
	if len(names) == 0 {
		return DomainSet{}, errors.New("at least one domain is required")
	}
	return DomainSet{names: append([]string{}, names...)}, nil
}

// Names returns a copy of the domains in order.
func (domainSet DomainSet) Names() []string {
	return append([]string{}, domainSet.names...)
}

// Len reports the number of entries, duplicates included.
func (domainSet DomainSet) Len() int {
	return len(domainSet.names)
}

func (domainSet DomainSet) String() string {
	return strings.Join(domainSet.names, domainSeparator)
}
