package session

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDomainSet(t *testing.T) {
	testCases := []struct {
		name      string
		raw       string
		expected  []string
		expectErr bool
	}{
		{name: "single", raw: "example.test", expected: []string{"example.test"}},
		{name: "trimmed entries", raw: " github.com , mysite.org ", expected: []string{"github.com", "mysite.org"}},
		{name: "duplicates kept in order", raw: "b.test,a.test,b.test", expected: []string{"b.test", "a.test", "b.test"}},
		{name: "empty input", raw: "", expectErr: true},
		{name: "empty entry", raw: "a.test,,b.test", expectErr: true},
		{name: "inner whitespace", raw: "a .test", expectErr: true},
		{name: "tag character", raw: "a.test#mimikry-entry", expectErr: true},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			domains, err := ParseDomainSet(testCase.raw)
			if testCase.expectErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, testCase.expected, domains.Names())
			assert.Equal(t, len(testCase.expected), domains.Len())
		})
	}
}

func TestDomainSetNamesIsACopy(t *testing.T) {
	domains, err := NewDomainSet([]string{"a.test"})
	require.NoError(t, err)
	names := domains.Names()
	names[0] = "changed"
	assert.Equal(t, "a.test", domains.String())
}

func TestKindOf(t *testing.T) {
	wrapped := fmt.Errorf("startup: %w", newError(KindTrustStore, errors.New("refresh failed")))
	kind, ok := KindOf(wrapped)
	require.True(t, ok)
	assert.Equal(t, KindTrustStore, kind)
	assert.Equal(t, "startup: trust_store: refresh failed", wrapped.Error())

	_, ok = KindOf(errors.New("plain"))
	assert.False(t, ok)
}
