package credentialexchange

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path"
	"strings"
	"time"

	ini "gopkg.in/ini.v1"
)

var (
	ErrSectionNotFound = errors.New("section not found")
	ErrConfigFailure   = errors.New("config error")
)

func HomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		log.Fatal("unable to get the user home dir")
	}
	return home
}

func ConfigIniFile(basePath string) string {
	var base string
	if basePath != "" {
		base = basePath
	} else {
		base = HomeDir()
	}
	return path.Join(base, fmt.Sprintf(".%s.ini", SELF_NAME))
}

func SessionName(username, selfName string) string {
	return fmt.Sprintf("%s-%s", username, selfName)
}

// SetCredentials writes the exchange result out - a named profile section,
// shell exports, or the credential_process payload. Profile and JSON output
// carry exactly one credential, callers wanting more use env output.
func SetCredentials(creds []AWSCredentials, config CredentialConfig) error {
	if config.BaseConfig.StoreInProfile {
		if len(creds) != 1 {
			return fmt.Errorf("store-profile requires exactly 1 credential, got %d, %w", len(creds), ErrConfigFailure)
		}
		return storeCredentialsInProfile(creds[0], config.BaseConfig.CfgSectionName)
	}

	switch config.Output {
	case OutputEnv:
		return writeEnvExports(creds)
	default:
		if len(creds) != 1 {
			return fmt.Errorf("json output requires exactly 1 credential, got %d (use env output or supply a role), %w", len(creds), ErrConfigFailure)
		}
		return returnStdOutAsJson(creds[0])
	}
}

func storeCredentialsInProfile(creds AWSCredentials, configSection string) error {
	var awsConfPath string

	if overriddenpath, exists := os.LookupEnv("AWS_SHARED_CREDENTIALS_FILE"); exists {
		awsConfPath = overriddenpath
	} else {
		awsCredsPath := path.Join(HomeDir(), ".aws", "credentials")
		if err := os.MkdirAll(path.Dir(awsCredsPath), 0700); err != nil {
			return err
		}
		awsConfPath = awsCredsPath
	}

	// LooseLoad tolerates a missing file, SaveTo creates it
	cfg, err := ini.LooseLoad(awsConfPath)
	if err != nil {
		return err
	}
	cfg.Section(configSection).Key("aws_access_key_id").SetValue(creds.AWSAccessKey)
	cfg.Section(configSection).Key("aws_secret_access_key").SetValue(creds.AWSSecretKey)
	cfg.Section(configSection).Key("aws_session_token").SetValue(creds.AWSSessionToken)
	cfg.SaveTo(awsConfPath)

	return nil
}

func writeEnvExports(creds []AWSCredentials) error {
	for _, cred := range creds {
		if cred.RoleARN == "" {
			return fmt.Errorf("role arn missing for credential, %w", ErrConfigFailure)
		}
		fmt.Fprintf(os.Stdout,
			"export AWS_ROLE_ARN=%q\nexport AWS_ACCESS_KEY_ID=%q\nexport AWS_SECRET_ACCESS_KEY=%q\nexport AWS_SESSION_TOKEN=%q\n\n",
			cred.RoleARN, cred.AWSAccessKey, cred.AWSSecretKey, cred.AWSSessionToken)
	}
	return nil
}

func returnStdOutAsJson(creds AWSCredentials) error {
	creds.Version = 1

	jsonBytes, err := json.Marshal(creds)
	if err != nil {
		return err
	}
	fmt.Fprint(os.Stdout, string(jsonBytes))
	return nil
}

// ReloadBeforeExpiry returns true if the time
// to expiry is less than the specified time in seconds
// false if there is more than required time in seconds
// before needing to recycle credentials
func ReloadBeforeExpiry(expiry time.Time, reloadBeforeSeconds int) bool {
	now := time.Now().Local()
	diff := expiry.Local().Sub(now)
	return diff.Seconds() < float64(reloadBeforeSeconds)
}

// WriteIniSection update ini sections in own config file
func WriteIniSection(role string) error {
	section := fmt.Sprintf("%s.%s", INI_CONF_SECTION, RoleKeyConverter(role))
	// the file does not exist before the first cached role is recorded
	cfg, err := ini.LooseLoad(ConfigIniFile(""))
	if err != nil {
		return fmt.Errorf("fail to read Ini file: %v, %w", err, ErrConfigFailure)
	}
	if !cfg.HasSection(section) {
		sct, err := cfg.NewSection(section)
		if err != nil {
			return err
		}
		sct.Key("name").SetValue(role)
		cfg.SaveTo(ConfigIniFile(""))
	}

	return nil
}

func GetAllIniSections() ([]string, error) {
	sections := []string{}
	cfg, err := ini.LooseLoad(ConfigIniFile(""))
	if err != nil {
		return nil, err
	}
	for _, v := range cfg.Section(INI_CONF_SECTION).ChildSections() {
		sections = append(sections, strings.Replace(v.Name(), fmt.Sprintf("%s.", INI_CONF_SECTION), "", -1))
	}
	return sections, nil
}
