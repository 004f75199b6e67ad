// Package u2f signs WebAuthn challenges with a hardware key plugged into the
// local machine.
package u2f

import (
	"errors"
	"fmt"
	"os"
	"time"

	u2fhost "github.com/marshallbrekka/go-u2fhost"

	"github.com/dnitsch/okta-cli-auth/internal/okta"
)

var (
	ErrNoDevice = errors.New("no u2f device found")
	ErrTimeout  = errors.New("timed out waiting for u2f device")
)

const (
	authenticateTimeout = 15 * time.Second
	pollInterval        = 250 * time.Millisecond
)

// HardwareClient signs IdP WebAuthn challenges with the first attached device
// that accepts one of the offered credential ids.
type HardwareClient struct {
	devices func() []*u2fhost.HidDevice
}

func NewHardwareClient() *HardwareClient {
	return &HardwareClient{devices: u2fhost.Devices}
}

// Sign satisfies the authenticator's WebAuthn signer contract. It blocks until
// the user touches the key or the timeout passes.
func (c *HardwareClient) Sign(challenge, host string, credentialIDs []string) (*okta.SignedAssertion, error) {
	devices := openDevices(c.devices())
	if len(devices) == 0 {
		return nil, ErrNoDevice
	}
	defer func() {
		for _, d := range devices {
			d.Close()
		}
	}()

	appID := "https://" + host

	timeout := time.After(authenticateTimeout)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	prompted := false
	for {
		select {
		case <-timeout:
			return nil, ErrTimeout
		case <-ticker.C:
			for _, device := range devices {
				for _, credentialID := range credentialIDs {
					req := &u2fhost.AuthenticateRequest{
						Challenge: challenge,
						AppId:     appID,
						Facet:     appID,
						KeyHandle: credentialID,
						WebAuthn:  true,
					}
					resp, err := device.Authenticate(req)
					if err == nil {
						return &okta.SignedAssertion{
							ClientData:        resp.ClientData,
							SignatureData:     resp.SignatureData,
							AuthenticatorData: resp.AuthenticatorData,
						}, nil
					}
					if _, ok := err.(*u2fhost.TestOfUserPresenceRequiredError); ok {
						if !prompted {
							fmt.Fprintln(os.Stderr, "Touch the flashing U2F device to authenticate...")
							prompted = true
						}
						continue
					}
					// wrong key handle for this device, try the next one
					if _, ok := err.(*u2fhost.BadKeyHandleError); ok {
						continue
					}
				}
			}
		}
	}
}

func openDevices(all []*u2fhost.HidDevice) []u2fhost.Device {
	open := []u2fhost.Device{}
	for _, device := range all {
		if err := device.Open(); err != nil {
			continue
		}
		open = append(open, device)
	}
	return open
}
