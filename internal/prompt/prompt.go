// Package prompt is the interactive terminal surface. Everything is asked on
// stderr so stdout stays clean for the credential output consumed by callers
// like credential_process.
package prompt

import (
	"os"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"

	"github.com/dnitsch/okta-cli-auth/internal/okta"
)

var stderrIsOutAskOpt = func(options *survey.AskOptions) error {
	options.Stdio = terminal.Stdio{
		In:  os.Stdin,
		Out: os.Stderr,
		Err: os.Stderr,
	}
	return nil
}

// Terminal implements the interactive prompts of the sign-in flow.
type Terminal struct{}

func New() *Terminal {
	return &Terminal{}
}

// SelectFactor asks the user to pick one of the offered MFA factors.
func (t *Terminal) SelectFactor(factors []okta.Factor) (okta.Factor, error) {
	options := make([]string, 0, len(factors))
	for _, f := range factors {
		options = append(options, f.HumanName())
	}

	var idx int
	prompt := &survey.Select{
		Message: "Choose an MFA factor:",
		Options: options,
	}
	if err := survey.AskOne(prompt, &idx, survey.WithValidator(survey.Required), stderrIsOutAskOpt); err != nil {
		return okta.Factor{}, err
	}
	return factors[idx], nil
}

// TotpCode asks for the one time passcode off an authenticator app.
func (t *Terminal) TotpCode() (string, error) {
	var code string
	prompt := &survey.Input{
		Message: "Enter your TOTP code:",
	}
	if err := survey.AskOne(prompt, &code, survey.WithValidator(survey.Required), stderrIsOutAskOpt); err != nil {
		return "", err
	}
	return code, nil
}

// Password asks for the IdP password without echoing it.
func (t *Terminal) Password(username string) (string, error) {
	var password string
	prompt := &survey.Password{
		Message: "Password for " + username + ":",
	}
	if err := survey.AskOne(prompt, &password, survey.WithValidator(survey.Required), stderrIsOutAskOpt); err != nil {
		return "", err
	}
	return password, nil
}

// Confirm asks a yes/no question, defaulting to no.
func (t *Terminal) Confirm(message string) (bool, error) {
	var answer bool
	prompt := &survey.Confirm{
		Message: message,
	}
	if err := survey.AskOne(prompt, &answer, stderrIsOutAskOpt); err != nil {
		return false, err
	}
	return answer, nil
}
