package smtp

const (
	StatusServiceReady   = "220 localhost"
	StatusConnClosed     = "221 Bye"
	StatusAuthSuccess    = "235 Authentication successful"
	StatusOK             = "250 Ok"
	StatusQueued         = "250 Ok: queued as %d" // queue id
	StatusGreeting       = "250-localhost, mock server here"
	StatusSMTPUTF8       = "250-SMTPUTF8"
	StatusAuthMechanisms = "250 AUTH PLAIN LOGIN NTLM"

	StatusAuthUsername   = "334 VXNlcm5hbWU6" // Base64 encoded "Username:"
	StatusAuthPassword   = "334 UGFzc3dvcmQ6" // Base64 encoded "Password:"
	StatusStartMailInput = "354 Start mail input; end with <CRLF>.<CRLF>"

	StatusLocalError           = "451 Requested action aborted: local error in processing"
	StatusBadCommand           = "500 Idk that command"
	StatusNTLMRefused          = "500 I lied, I can't speak NTLM - here's an invalid response"
	StatusSchemeNotSupported   = "504 scheme not supported"
	StatusAuthenticationFailed = "535 Authentication failed" // only with a credential store
)
