package conf

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/otp-relay/sms-otp-bridge/internal/biz/domain"
	"github.com/otp-relay/sms-otp-bridge/internal/biz/usecase"
)

// MessagesConfig contains the chat message templates loaded from YAML
type MessagesConfig struct {
	Notification NotificationMessage `yaml:"notification"`
	StartReply   string              `yaml:"start_reply"`
	Status       string              `yaml:"status"`
	Shutdown     string              `yaml:"shutdown"`
	TimeLayout   string              `yaml:"time_layout"`

	// LoadedFrom is the file the templates came from, empty for built-in defaults
	LoadedFrom string `yaml:"-"`
}

// NotificationMessage is the per-record notification template
type NotificationMessage struct {
	Format   string `yaml:"format"` // markdown or plain
	Template string `yaml:"template"`
}

// DefaultMessagesConfig returns the built-in templates
func DefaultMessagesConfig() *MessagesConfig {
	d := usecase.DefaultMessageConfig
	format := "plain"
	if d.NotificationFormat == domain.FormatMarkdown {
		format = "markdown"
	}
	return &MessagesConfig{
		Notification: NotificationMessage{Format: format, Template: d.Notification},
		StartReply:   d.StartReply,
		Status:       d.Status,
		Shutdown:     d.Shutdown,
		TimeLayout:   d.TimeLayout,
	}
}

// LoadMessagesConfig loads message templates from a YAML file
func LoadMessagesConfig(configPath string) (*MessagesConfig, error) {
	// An explicit path must exist; otherwise try the usual locations
	paths := []string{configPath}
	if configPath == "" {
		paths = []string{
			"configs/messages.yaml",
			"/etc/sms-otp-bridge/messages.yaml",
		}
		// Add path relative to executable
		if execPath, err := os.Executable(); err == nil {
			paths = append(paths, filepath.Join(filepath.Dir(execPath), "configs", "messages.yaml"))
		}
	}

	var raw []byte
	var loadedPath string
	for _, p := range paths {
		b, err := os.ReadFile(p)
		if err == nil {
			raw, loadedPath = b, p
			break
		}
		if configPath != "" {
			return nil, fmt.Errorf("read %s: %w", configPath, err)
		}
	}

	if raw == nil {
		return DefaultMessagesConfig(), nil
	}

	var config MessagesConfig
	if err := yaml.Unmarshal(raw, &config); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", loadedPath, err)
	}
	config.LoadedFrom = loadedPath

	// Fill in defaults for empty values
	config.fillDefaults()

	if _, err := parseFormat(config.Notification.Format); err != nil {
		return nil, err
	}
	return &config, nil
}

// fillDefaults fills in default values for empty fields
func (c *MessagesConfig) fillDefaults() {
	defaults := DefaultMessagesConfig()

	if strings.TrimSpace(c.Notification.Template) == "" {
		c.Notification = defaults.Notification
	}
	if c.Notification.Format == "" {
		c.Notification.Format = defaults.Notification.Format
	}
	if c.StartReply == "" {
		c.StartReply = defaults.StartReply
	}
	if c.Status == "" {
		c.Status = defaults.Status
	}
	if c.Shutdown == "" {
		c.Shutdown = defaults.Shutdown
	}
	if c.TimeLayout == "" {
		c.TimeLayout = defaults.TimeLayout
	}
}

// ToMessageConfig converts to the template configuration (without a location)
func (c *MessagesConfig) ToMessageConfig() usecase.MessageConfig {
	format, _ := parseFormat(c.Notification.Format)
	return usecase.MessageConfig{
		Notification:       c.Notification.Template,
		NotificationFormat: format,
		StartReply:         c.StartReply,
		Status:             c.Status,
		Shutdown:           c.Shutdown,
		TimeLayout:         c.TimeLayout,
	}
}

func parseFormat(s string) (domain.TextFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "markdown", "md", "":
		return domain.FormatMarkdown, nil
	case "plain", "text":
		return domain.FormatPlain, nil
	default:
		return domain.FormatPlain, fmt.Errorf("unknown notification format %q", s)
	}
}
