package credentialexchange

const (
	SELF_NAME        = "okta-cli-auth"
	INI_CONF_SECTION = "role"
)

// OutputFormat selects how credentials are written to stdout.
type OutputFormat string

const (
	// OutputJson emits a credential_process payload, requires a single role.
	OutputJson OutputFormat = "json"
	// OutputEnv emits shell export lines, one block per credential.
	OutputEnv OutputFormat = "env"
)

type BaseConfig struct {
	Username         string
	CfgSectionName   string
	StoreInProfile   bool
	ReloadBeforeTime int
}

type CredentialConfig struct {
	BaseConfig  BaseConfig
	AppUrl      string
	RoleArn     string
	Region      string
	Mfa         string
	MfaProvider string
	Output      OutputFormat
	UseCache    bool
}
