package credentialexchange

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/werf/lockgate"
	"github.com/werf/lockgate/pkg/file_locker"
	"github.com/zalando/go-keyring"
)

var (
	ErrUnableToLoadAWSCred        = errors.New("unable to load AWS credential")
	ErrUnableToRetrieveSections   = errors.New("unable to retrieve sections")
	ErrUnableToLoadDueToLock      = errors.New("cannot load secret due to lock error")
	ErrUnableToAcquireLock        = errors.New("cannot acquire lock")
	ErrUnmarshallingSecret        = errors.New("cannot unmarshal secret")
	ErrFailedToClearSecretStorage = errors.New("failed to clear secret storage on OS")
)

type keyringApi interface {
	Set(service, user, password string) error
	Get(service, user string) (string, error)
	Delete(service, user string) error
}

// keyRingImpl is the default OS keyring implementation
type keyRingImpl struct{}

func (k *keyRingImpl) Set(service, user, password string) error {
	return keyring.Set(service, user, password)
}
func (k *keyRingImpl) Get(service, user string) (string, error) {
	return keyring.Get(service, user)
}
func (k *keyRingImpl) Delete(service, user string) error {
	return keyring.Delete(service, user)
}

// SecretStore caches one exchanged credential per role ARN in the OS keyring,
// guarded by a file lock so concurrent credential_process invocations do not
// race each other.
type SecretStore struct {
	AWSCredentials *AWSCredentials
	AWSCredJson    string
	keyring        keyringApi
	roleArn        string
	lockDir        string
	locker         lockgate.Locker
	lockResource   string
	secretService  string
	secretUser     string
}

func (s *SecretStore) WithLocker(locker lockgate.Locker) *SecretStore {
	s.locker = locker
	return s
}

func (s *SecretStore) WithKeyring(keyring keyringApi) *SecretStore {
	s.keyring = keyring
	return s
}

func NewSecretStore(roleArn, namer, baseDir, username string) (*SecretStore, error) {
	lockDir := baseDir + "/" + SELF_NAME + "-lock"
	locker, err := file_locker.NewFileLocker(lockDir)
	if err != nil {
		return nil, fmt.Errorf("cannot setup lock dir: %s", lockDir)
	}

	return &SecretStore{
		lockDir:       lockDir,
		locker:        locker,
		keyring:       &keyRingImpl{},
		lockResource:  namer,
		secretService: namer,
		roleArn:       roleArn,
		secretUser:    username,
	}, nil
}

func (s *SecretStore) ensureLock() (func(), error) {
	acquired, lock, err := s.locker.Acquire(s.lockResource, lockgate.AcquireOptions{Shared: false, Timeout: 1 * time.Minute})
	if err != nil {
		return nil, fmt.Errorf("%s, %w", err, ErrUnableToAcquireLock)
	}

	if !acquired {
		return nil, fmt.Errorf("%s, %w", err, ErrUnableToLoadDueToLock)
	}
	return func() {
		if acquired {
			if err := s.locker.Release(lock); err != nil {
				fmt.Fprintf(os.Stderr, "failed to release lock: %v\n", err)
			}
		}
	}, nil
}

func (s *SecretStore) load() error {
	release, err := s.ensureLock()
	if err != nil {
		return err
	}
	defer release()

	creds := &AWSCredentials{}

	jsonStr, err := s.keyring.Get(s.secretService, s.secretUser)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil
		}
		return err
	}

	if err := json.Unmarshal([]byte(jsonStr), &creds); err != nil {
		return fmt.Errorf("%s, %w", err, ErrUnmarshallingSecret)
	}

	if err := WriteIniSection(s.roleArn); err != nil {
		return err
	}

	s.AWSCredentials = creds
	s.AWSCredJson = jsonStr
	return nil
}

func (s *SecretStore) save() error {
	release, err := s.ensureLock()
	if err != nil {
		return err
	}

	defer release()

	if err := WriteIniSection(s.roleArn); err != nil {
		return err
	}

	return s.keyring.Set(s.secretService, s.secretUser, s.AWSCredJson)
}

func (s *SecretStore) AWSCredential() (*AWSCredentials, error) {
	if err := s.load(); err != nil {
		return nil, fmt.Errorf("secret store: %s, %w", err, ErrUnableToLoadAWSCred)
	}

	if s.AWSCredentials == nil && s.AWSCredJson == "" {
		return nil, nil
	}

	fmt.Fprintf(os.Stderr, "Got credential from OS secret store for %s", s.roleArn)

	return s.AWSCredentials, nil
}

func (s *SecretStore) SaveAWSCredential(cred *AWSCredentials) error {
	s.AWSCredentials = cred
	jsonStr, err := json.Marshal(cred)
	if err != nil {
		return err
	}
	s.AWSCredJson = string(jsonStr)
	return s.save()
}

func (s *SecretStore) Clear() error {
	return s.keyring.Delete(s.secretService, s.secretUser)
}

// ClearAll loops through all the sections in the INI file
// deletes them from the keychain implementation on the OS
func (s *SecretStore) ClearAll() error {
	srvSections, err := GetAllIniSections()
	if err != nil {
		return fmt.Errorf("unable to get sections from ini: %s, %w", err, ErrUnableToRetrieveSections)
	}

	for _, v := range srvSections {
		if err := s.keyring.Delete(fmt.Sprintf("%s-%s", SELF_NAME, v), s.secretUser); err != nil {
			return fmt.Errorf("%s, %w", err, ErrFailedToClearSecretStorage)
		}
	}

	return nil
}

// PasswordStore keeps the IdP password per app domain in the OS keyring.
type PasswordStore struct {
	keyring  keyringApi
	service  string
	username string
	enabled  bool
}

func NewPasswordStore(appDomain, username string, enabled bool) *PasswordStore {
	return &PasswordStore{
		keyring:  &keyRingImpl{},
		service:  fmt.Sprintf("%s -- %s", SELF_NAME, appDomain),
		username: username,
		enabled:  enabled,
	}
}

func (p *PasswordStore) WithKeyring(keyring keyringApi) *PasswordStore {
	p.keyring = keyring
	return p
}

// Password returns the stored password if the keyring is enabled and one
// exists.
func (p *PasswordStore) Password() (string, bool, error) {
	if !p.enabled {
		return "", false, nil
	}
	password, err := p.keyring.Get(p.service, p.username)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	return password, true, nil
}

func (p *PasswordStore) Save(password string) error {
	if !p.enabled {
		return nil
	}
	return p.keyring.Set(p.service, p.username, password)
}

// RoleKeyConverter converts a role to a key used for storing in key store
func RoleKeyConverter(role string) string {
	return strings.ReplaceAll(strings.ReplaceAll(role, ":", "_"), "/", "____")
}

// KeyRoleConverter Converts a key back to a role
func KeyRoleConverter(key string) string {
	return strings.ReplaceAll(strings.ReplaceAll(key, "____", "/"), "_", ":")
}
