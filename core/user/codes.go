package user

import (
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-portal/core"
)

const (
	codeSeparator = "-"
	codeSuffixLen = 8
)

var (
	codePrefixes = map[string]string{
		RoleAdmin:   "ADM",
		RoleTeacher: "TCH",
	}

	errNoAccessCode = errors.New("role does not use access codes")
)

// NewAccessCode generates a human-typable access code for `role`, e.g. ADM-1A2B3C4D.
func NewAccessCode(role string) (string, error) {
	prefix, ok := codePrefixes[role]
	if !ok {
		return "", errors.Wrap(errNoAccessCode, role)
	}
	id, err := uuid.NewRandom()
	if err != nil {
		return "", errors.Wrap(err, "generating random uuid")
	}
	suffix := strings.ToUpper(strings.ReplaceAll(id.String(), "-", "")[:codeSuffixLen])
	return prefix + codeSeparator + suffix, nil
}

// NormalizeAccessCode cleans up a typed access code. The format itself is not checked.
func NormalizeAccessCode(code string) string {
	return strings.ToUpper(core.CleanString(code))
}
