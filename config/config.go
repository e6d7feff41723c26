package config

import (
	"path/filepath"
	"time"

	"github.com/stopthephish/phishwatch/internal/enum"
)

type AppConfig struct {
	APIPort string `env:"PORT" envDefault:"8085"`
}

type IMAPConfig struct {
	Host         string              `env:"IMAP_HOST,required"`
	Port         int                 `env:"IMAP_PORT" envDefault:"993"`
	Username     string              `env:"IMAP_USER,required"`
	Password     string              `env:"IMAP_PASS"`
	Encryption   enum.EncryptionMode `env:"ENCRYPTION_METHOD" envDefault:"ssl"`
	Folder       string              `env:"MAILBOX" envDefault:"INBOX"`
	MoveToFolder string              `env:"MOVE_TO_FOLDER"`
	UseOAuth     bool                `env:"USE_OAUTH" envDefault:"false"`

	IdleTimeout    time.Duration `env:"IDLE_TIMEOUT" envDefault:"120s"`
	NoopInterval   time.Duration `env:"NOOP_INTERVAL" envDefault:"600s"`
	InitialBackoff time.Duration `env:"INITIAL_BACKOFF" envDefault:"5s"`
	MaxBackoff     time.Duration `env:"MAX_BACKOFF" envDefault:"300s"`
}

type OAuthConfig struct {
	ClientID     string `env:"OAUTH_CLIENT_ID"`
	ClientSecret string `env:"OAUTH_CLIENT_SECRET"`
	AuthURL      string `env:"OAUTH_AUTH_URL"`
	TokenURL     string `env:"OAUTH_TOKEN_URL"`
	Scope        string `env:"OAUTH_SCOPE"`
	CallbackPort int    `env:"OAUTH_CALLBACK_PORT" envDefault:"8080"`
	Interactive  bool   `env:"OAUTH_INTERACTIVE" envDefault:"true"`

	RequestTimeout time.Duration `env:"OAUTH_REQUEST_TIMEOUT" envDefault:"30s"`
}

type ClassifierConfig struct {
	Endpoint string        `env:"CLASSIFIER_ENDPOINT"`
	APIKey   string        `env:"CLASSIFIER_API_KEY"`
	Model    string        `env:"CLASSIFIER_MODEL" envDefault:"gpt-4o-mini"`
	Timeout  time.Duration `env:"CLASSIFIER_TIMEOUT" envDefault:"30s"`
}

type NotifierConfig struct {
	URL      string   `env:"NTFY_URL" envDefault:"https://ntfy.sh"`
	Topic    string   `env:"NTFY_TOPIC"`
	Title    string   `env:"NTFY_TITLE" envDefault:"Phishing alert"`
	NotifyOn []string `env:"NOTIFY_ON" envSeparator:"," envDefault:"phishing,dangerous"`
}

type ReputationConfig struct {
	DangerousSenders []string `env:"DANGEROUS_SENDERS" envSeparator:","`
	SafeSenders      []string `env:"SAFE_SENDERS" envSeparator:","`
}

type StorageConfig struct {
	DataDir string `env:"DATA_DIR" envDefault:"data"`
}

func (c *StorageConfig) LedgerPath() string {
	return filepath.Join(c.DataDir, "processed_uids.json")
}

func (c *StorageConfig) TokenPath() string {
	return filepath.Join(c.DataDir, "oauth_tokens.json")
}
