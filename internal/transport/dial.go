package transport

import (
	"fmt"

	"github.com/platformbuilds/mcp-federation-broker/internal/logger"
)

// Dial constructs an unconnected Transport for the given tag and URL,
// applying the URL parsing conventions of urlparse.go. Callers must
// still invoke Connect.
func Dial(tag Tag, rawURL string, log logger.Logger) (Transport, error) {
	switch tag {
	case TagStdio:
		target, err := ParseStdioURL(rawURL)
		if err != nil {
			return nil, err
		}
		return NewStdio(target.Command, target.Args, log), nil

	case TagTCP:
		target, err := ParseTCPURL(rawURL)
		if err != nil {
			return nil, err
		}
		return NewTCP(target.Host, target.Port, log), nil

	case TagWebSocket:
		target, err := ParseHeaderURL(rawURL)
		if err != nil {
			return nil, err
		}
		return NewWebSocket(target.BaseURL, target.Headers, log), nil

	case TagHTTP:
		target, err := ParseHeaderURL(rawURL)
		if err != nil {
			return nil, err
		}
		return NewHTTP(target.BaseURL, target.Headers, log), nil

	default:
		return nil, fmt.Errorf("unknown transport tag %q", tag)
	}
}
