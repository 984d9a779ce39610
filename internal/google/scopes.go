package google

// GmailSendScope is the only scope bulkmail requests.
const GmailSendScope = "https://www.googleapis.com/auth/gmail.send"

// DefaultOAuthScopes are requested on every consent URL.
var DefaultOAuthScopes = []string{
	GmailSendScope,
}
