package storage

import (
	"crypto/md5"
	"encoding/hex"
	"hash/crc32"
	"regexp"
	"strings"
)

var extPattern = regexp.MustCompile(`(\.[A-Za-z0-9]+)?$`)

// ContentHash returns the lowercase hex md5 digest of content.
func ContentHash(content []byte) string {
	sum := md5.Sum(content)
	return hex.EncodeToString(sum[:])
}

// AppendHash inserts "_<hash>" before the extension of filename, or at its end when
// there is no extension.
func AppendHash(filename, hash string) string {
	loc := extPattern.FindStringIndex(filename)
	if loc == nil {
		return filename + "_" + hash
	}
	return filename[:loc[0]] + "_" + hash + filename[loc[0]:]
}

// NormalizeHosts returns a copy of hosts with a trailing slash on every entry. Blank
// entries are dropped.
func NormalizeHosts(hosts []string) []string {
	out := make([]string, 0, len(hosts))
	for _, h := range hosts {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		if !strings.HasSuffix(h, "/") {
			h += "/"
		}
		out = append(out, h)
	}
	return out
}

// ShuffleDistributionURL picks the distribution host for name. The choice depends on
// name only, so a file keeps its host across runs while distinct files spread over all
// hosts.
func ShuffleDistributionURL(hosts []string, name string) string {
	switch len(hosts) {
	case 0:
		return ""
	case 1:
		return hosts[0]
	}
	return hosts[crc32.ChecksumIEEE([]byte(name))%uint32(len(hosts))]
}
