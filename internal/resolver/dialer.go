package resolver

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
)

const helloReadTimeout = 10 * time.Second

// NewGateDialer builds a DialFunc for the server's streaming endpoint. The
// token travels in the connection URI; the gate answers either with an
// acceptance hello or with an immediate close carrying the rejection code,
// which this dialer surfaces as a *websocket.CloseError.
func NewGateDialer(gateURL string, dialer *websocket.Dialer) (DialFunc, error) {
	parsedURL, parseErr := url.Parse(gateURL)
	if parseErr != nil {
		return nil, fmt.Errorf("gate_dialer.new: %w", parseErr)
	}
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	return func(ctx context.Context, token string) (*websocket.Conn, error) {
		dialURL := *parsedURL
		query := dialURL.Query()
		query.Set("token", token)
		dialURL.RawQuery = query.Encode()

		connection, response, dialErr := dialer.DialContext(ctx, dialURL.String(), nil)
		if dialErr != nil {
			return nil, fmt.Errorf("gate_dialer.dial: %w", dialErr)
		}
		if response != nil && response.Body != nil {
			_ = response.Body.Close()
		}

		_ = connection.SetReadDeadline(time.Now().Add(helloReadTimeout))
		if _, _, readErr := connection.ReadMessage(); readErr != nil {
			// A rejection arrives as a close frame; ReadMessage reports it as
			// a *websocket.CloseError with the gate's code.
			_ = connection.Close()
			return nil, readErr
		}
		_ = connection.SetReadDeadline(time.Time{})
		return connection, nil
	}, nil
}
