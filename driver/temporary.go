package driver

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// TemporaryStorage is the list of scratch locators (from --temporary
// flags and the configuration file) available during a transfer.
type TemporaryStorage []string

// FindScheme returns the first temporary locator with the given scheme
// prefix (including the trailing ':' or '://').
func (ts TemporaryStorage) FindScheme(prefix string) (string, bool) {
	for _, t := range ts {
		if strings.HasPrefix(t, prefix) {
			return t, true
		}
	}
	return "", false
}

// FindSchemeOrErr is FindScheme with a pointed error telling the user
// which --temporary flag to pass.
func (ts TemporaryStorage) FindSchemeOrErr(prefix string) (string, error) {
	t, ok := ts.FindScheme(prefix)
	if !ok {
		return "", fmt.Errorf("driver: please pass --temporary=%s... to specify scratch storage", prefix)
	}
	return t, nil
}

// TemporaryPrefix appends a unique subdirectory to a directory-like
// temporary locator, so concurrent transfers never collide. The result
// ends with "/" and is safe to delete recursively on cleanup.
func TemporaryPrefix(tmp string) string {
	if !strings.HasSuffix(tmp, "/") {
		tmp += "/"
	}
	return tmp + "dbcrossbar-" + uuid.NewString() + "/"
}
