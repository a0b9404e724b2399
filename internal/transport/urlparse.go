package transport

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// DefaultTCPPort is used when a tcp:// URL omits an explicit port.
const DefaultTCPPort = 9999

// StdioTarget is the parsed form of a stdio:// URL: the executable to
// spawn plus its arguments.
type StdioTarget struct {
	Command string
	Args    []string
}

// ParseStdioURL parses stdio://<command>?args=a,b,c. The hostname is
// the executable when non-empty, else the pathname (covers
// stdio:///usr/bin/foo forms where the command looks like a path).
func ParseStdioURL(raw string) (StdioTarget, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return StdioTarget{}, fmt.Errorf("parse stdio url: %w", err)
	}
	command := u.Host
	if command == "" {
		command = u.Path
	}
	if command == "" {
		return StdioTarget{}, fmt.Errorf("stdio url %q has no command", raw)
	}
	var args []string
	if raw := u.Query().Get("args"); raw != "" {
		args = strings.Split(raw, ",")
	}
	return StdioTarget{Command: command, Args: args}, nil
}

// TCPTarget is the parsed form of a tcp:// URL.
type TCPTarget struct {
	Host string
	Port int
}

// ParseTCPURL parses tcp://host[:port], defaulting the port to
// DefaultTCPPort when omitted.
func ParseTCPURL(raw string) (TCPTarget, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return TCPTarget{}, fmt.Errorf("parse tcp url: %w", err)
	}
	host := u.Hostname()
	if host == "" {
		return TCPTarget{}, fmt.Errorf("tcp url %q has no host", raw)
	}
	port := DefaultTCPPort
	if p := u.Port(); p != "" {
		parsed, err := strconv.Atoi(p)
		if err != nil {
			return TCPTarget{}, fmt.Errorf("tcp url %q has invalid port: %w", raw, err)
		}
		port = parsed
	}
	return TCPTarget{Host: host, Port: port}, nil
}

// HTTPTarget is the parsed form of an http(s):// or ws(s):// URL: the
// base address plus any header_X=Y query params promoted to request
// headers.
type HTTPTarget struct {
	BaseURL string
	Headers map[string]string
}

const headerParamPrefix = "header_"

// ParseHeaderURL parses http(s):// and ws(s):// URLs, promoting
// ?header_X=Y query params to request headers X: Y and stripping them
// from the base URL.
func ParseHeaderURL(raw string) (HTTPTarget, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return HTTPTarget{}, fmt.Errorf("parse url: %w", err)
	}
	headers := map[string]string{}
	q := u.Query()
	remaining := url.Values{}
	for key, values := range q {
		if strings.HasPrefix(key, headerParamPrefix) && len(values) > 0 {
			headerName := strings.TrimPrefix(key, headerParamPrefix)
			headers[headerName] = values[0]
			continue
		}
		remaining[key] = values
	}
	u.RawQuery = remaining.Encode()
	return HTTPTarget{BaseURL: u.String(), Headers: headers}, nil
}
