// Package gmail submits composed messages through the Gmail API.
//
// The Client is stateless with respect to credentials: each Send takes the
// OAuth2 token to use, so the caller decides when a token is fresh enough.
// Rejections from the API are returned as *SendError carrying Google's error
// message verbatim.
//
// Example usage:
//
//	client := gmail.NewClient()
//	id, err := client.Send(ctx, token, mime.EncodeRaw(composed))
//	if err != nil {
//	    var se *gmail.SendError
//	    if errors.As(err, &se) {
//	        log.Printf("rejected (%d): %s", se.StatusCode, se.Message)
//	    }
//	}
package gmail
