package wire

// Response codes the link layer acts on (AniDB UDP API).
const (
	CodeLoginAccepted           = 200
	CodeLoginAcceptedNewVersion = 201
	CodeLoggedOut               = 203
	CodeEncryptionEnabled       = 209
	CodeNotLoggedIn             = 403
	CodeLoginFailed             = 500
	CodeLoginFirst              = 501
	CodeClientVersionOutdated   = 503
	CodeClientBanned            = 504
	CodeInvalidSession          = 506
	CodeBanned                  = 555
)

// IsAuthOK true for a successful AUTH reply (carries the session key).
func IsAuthOK(code int) bool {
	return code == CodeLoginAccepted || code == CodeLoginAcceptedNewVersion
}

// NeedsReauth true when the server rejected our session; invalidate and retry.
func NeedsReauth(code int) bool {
	return code == CodeNotLoggedIn || code == CodeLoginFirst || code == CodeInvalidSession
}

// IsBan true for ban codes; sending must back off before retrying.
func IsBan(code int) bool {
	return code == CodeClientBanned || code == CodeBanned
}

// IsShutdown true for codes that end the link (logged out, login refused).
func IsShutdown(code int) bool {
	return code == CodeLoggedOut || code == CodeLoginFailed || code == CodeClientVersionOutdated
}
