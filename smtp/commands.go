package smtp

import "strings"

type Command struct {
	Name   string
	Prefix string
}

var (
	CmdHelo = Command{
		Name:   "HELO",
		Prefix: "HELO ",
	}

	CmdEhlo = Command{
		Name:   "EHLO",
		Prefix: "EHLO ",
	}

	CmdAuth = Command{
		Name:   "AUTH",
		Prefix: "AUTH",
	}

	CmdMailFrom = Command{
		Name:   "MAIL FROM",
		Prefix: "MAIL FROM:",
	}

	CmdRcptTo = Command{
		Name:   "RCPT TO",
		Prefix: "RCPT TO:",
	}

	CmdData = Command{
		Name:   "DATA",
		Prefix: "DATA",
	}

	CmdRset = Command{
		Name:   "RSET",
		Prefix: "RSET",
	}

	CmdNoop = Command{
		Name:   "NOOP",
		Prefix: "NOOP",
	}

	CmdQuit = Command{
		Name:   "QUIT",
		Prefix: "QUIT",
	}
)

// AUTH mechanisms
const (
	AuthPlain = "PLAIN"
	AuthLogin = "LOGIN"
	AuthNTLM  = "NTLM"
)

// Matches reports whether line starts with the command prefix, ignoring case.
func (c Command) Matches(line string) bool {
	return len(line) >= len(c.Prefix) && strings.EqualFold(line[:len(c.Prefix)], c.Prefix)
}

// splitCommand cuts a line at its first colon into the command token and the trimmed argument.
func splitCommand(line string) (command, argument string) {
	command, argument, found := strings.Cut(line, ":")
	if !found {
		return line, ""
	}
	return command, strings.TrimSpace(argument)
}

// capabilities is the EHLO reply. Every line but the last uses "250-".
func capabilities(smtpUTF8 bool) []string {
	lines := []string{StatusGreeting}
	if smtpUTF8 {
		lines = append(lines, StatusSMTPUTF8)
	}
	return append(lines, StatusAuthMechanisms)
}
