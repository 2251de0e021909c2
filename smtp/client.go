package smtp

import (
	gomail "github.com/wneessen/go-mail"
)

// NewClient returns a go-mail client pointed at the server, without TLS. Options are
// applied after the defaults, so callers can add authentication or a HELO name.
func (s *Server) NewClient(opts ...gomail.Option) (*gomail.Client, error) {
	defaults := []gomail.Option{
		gomail.WithPort(s.Port),
		gomail.WithTLSPolicy(gomail.NoTLS),
	}

	return gomail.NewClient(Host, append(defaults, opts...)...)
}
