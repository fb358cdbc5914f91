package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
)

// AppName prefixes the User-Agent sent to the trace server.
const AppName = "go-callview"

// Version is set at build time with -ldflags "-X .../internal/config.Version=...".
var Version = "dev"

var (
	osVersionOnce sync.Once
	osVersion     string
)

// UserAgent identifies this client to the trace server:
// go-callview/<version> (<os> <os_version>; <arch>)
func UserAgent() string {
	ua := fmt.Sprintf("%s/%s (%s %s; %s)", AppName, Version, osType(), cachedOSVersion(), arch())
	if validHeaderValue(ua) {
		return ua
	}
	return sanitizePrintableASCII(ua)
}

func osType() string {
	switch runtime.GOOS {
	case "darwin":
		return "Mac OS"
	case "linux":
		return "Linux"
	case "windows":
		return "Windows"
	}
	return runtime.GOOS
}

func arch() string {
	if runtime.GOARCH == "amd64" {
		return "x86_64"
	}
	return runtime.GOARCH
}

func cachedOSVersion() string {
	osVersionOnce.Do(func() {
		if runtime.GOOS == "linux" {
			if data, err := os.ReadFile("/etc/os-release"); err == nil {
				osVersion = parseOSRelease(string(data))
			}
		}
		if osVersion == "" {
			osVersion = "unknown"
		}
	})
	return osVersion
}

// parseOSRelease returns VERSION_ID, else VERSION, from an os-release file.
func parseOSRelease(data string) string {
	values := map[string]string{}
	for _, line := range strings.Split(data, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		v = strings.TrimSpace(v)
		if unquoted, err := strconv.Unquote(v); err == nil {
			v = unquoted
		} else {
			v = strings.Trim(v, "\"")
		}
		values[strings.TrimSpace(k)] = v
	}
	for _, key := range []string{"VERSION_ID", "VERSION"} {
		if v := strings.TrimSpace(values[key]); v != "" {
			return v
		}
	}
	return ""
}

func sanitizePrintableASCII(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= ' ' && r <= '~' {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

func validHeaderValue(s string) bool {
	if strings.TrimSpace(s) == "" {
		return false
	}
	for _, r := range s {
		if r < ' ' || r > '~' {
			return false
		}
	}
	return true
}
