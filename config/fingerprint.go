package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/ioutil"
	"os"
	"sort"

	"github.com/pkg/errors"
)

// fingerprint computes a version identifier from the content and
// mtime of every file in paths, stable across byte-equal re-reads and
// changing on any semantic change — spec §3 "ConfigSnapshot".
func fingerprint(paths []string) (string, error) {
	sorted := append([]string(nil), paths...)
	sort.Strings(sorted)

	h := sha256.New()
	for _, p := range sorted {
		info, err := os.Stat(p)
		if err != nil {
			return "", errors.Wrapf(err, "failed to stat %s", p)
		}
		data, err := ioutil.ReadFile(p)
		if err != nil {
			return "", errors.Wrapf(err, "failed to read %s", p)
		}
		fmt.Fprintf(h, "%s:%d:%d:", p, info.Size(), info.ModTime().UnixNano())
		h.Write(data)
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
