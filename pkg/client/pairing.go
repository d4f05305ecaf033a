package client

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/waweb-dev/waweb/pkg/protocol"
)

var (
	phonePattern = regexp.MustCompile(`^\+[1-9]\d{1,14}$`)
	codePattern  = regexp.MustCompile(`^\d{6}$`)
	separators   = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "")
)

// pairingState is an outstanding phone pairing request.
type pairingState struct {
	phone string
	ref   string
}

// NormalizePhone strips separators and checks the E.164 form, e.g.
// "+40 712-345-678" becomes "+40712345678".
func NormalizePhone(phone string) (string, error) {
	p := separators.Replace(strings.TrimSpace(phone))
	if !phonePattern.MatchString(p) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPhone, phone)
	}
	return p, nil
}

// NormalizeCode strips separators and checks for exactly six digits.
func NormalizeCode(code string) (string, error) {
	c := separators.Replace(strings.TrimSpace(code))
	if !codePattern.MatchString(c) {
		return "", ErrInvalidCode
	}
	return c, nil
}

// RequestPairingCode asks the server to link this device by phone number
// instead of a scanned code. The server shows a code on the phone which is
// then passed to VerifyPairingCode.
func (c *Client) RequestPairingCode(ctx context.Context, phone string) error {
	const op = "request pairing code"
	p, err := NormalizePhone(phone)
	if err != nil {
		return &AuthenticationError{Op: op, Err: err}
	}
	payload, err := protocol.MarshalAdmin(&protocol.PairingRequest{
		PhoneNumber: strings.TrimPrefix(p, "+"),
		Method:      protocol.PairingMethodRequest,
	})
	if err != nil {
		return &AuthenticationError{Op: op, Err: err}
	}

	resp, err := c.pairingRoundTrip(ctx, op, payload)
	if err != nil {
		return err
	}
	if resp.Status != protocol.StatusOK {
		return &AuthenticationError{Op: op, Err: fmt.Errorf("%w: status %d %s", ErrPairingRejected, resp.Status, resp.Reason)}
	}

	c.mu.Lock()
	c.pairing = &pairingState{phone: p, ref: resp.Ref}
	c.mu.Unlock()

	c.logger.Info("pairing code requested", "ref", resp.Ref)
	c.events.emit(PairingCode{Phone: p, Ref: resp.Ref})
	return nil
}

// VerifyPairingCode submits the code shown on the phone. It returns false
// when the server refused the code; the request stays active for another
// try. A successful verification consumes the request; authentication then
// completes through the usual status push.
func (c *Client) VerifyPairingCode(ctx context.Context, code string) (bool, error) {
	const op = "verify pairing code"
	normalized, err := NormalizeCode(code)
	if err != nil {
		return false, &AuthenticationError{Op: op, Err: err}
	}

	c.mu.Lock()
	p := c.pairing
	c.mu.Unlock()
	if p == nil {
		return false, &AuthenticationError{Op: op, Err: ErrNoPairingRequest}
	}

	payload, err := protocol.MarshalAdmin(&protocol.PairingVerify{
		PhoneNumber: strings.TrimPrefix(p.phone, "+"),
		Code:        normalized,
		Ref:         p.ref,
		Method:      protocol.PairingMethodVerify,
	})
	if err != nil {
		return false, &AuthenticationError{Op: op, Err: err}
	}

	resp, err := c.pairingRoundTrip(ctx, op, payload)
	if err != nil {
		return false, err
	}
	if !resp.Success {
		c.logger.Info("pairing code refused", "status", resp.Status, "reason", resp.Reason)
		return false, nil
	}

	c.mu.Lock()
	if c.pairing == p {
		c.pairing = nil
	}
	c.mu.Unlock()
	return true, nil
}

func (c *Client) pairingRoundTrip(ctx context.Context, op string, payload []byte) (*protocol.PairingResponse, error) {
	c.mu.Lock()
	open := c.state.IsOpen()
	c.mu.Unlock()
	if !open {
		return nil, &AuthenticationError{Op: op, Err: ErrNotConnected}
	}

	r, err := c.request(ctx, "pairing", c.tags.Next(), payload, false)
	if err != nil {
		return nil, &AuthenticationError{Op: op, Err: err}
	}
	var resp protocol.PairingResponse
	if err := protocol.UnmarshalAdmin(r.payload, &resp); err != nil {
		return nil, &AuthenticationError{Op: op, Err: err}
	}
	return &resp, nil
}
