package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// InvoiceSettings is the issuer block printed on invoice documents.
type InvoiceSettings struct {
	IssuerName    string `mapstructure:"issuerName"`
	IssuerAddress string `mapstructure:"issuerAddress"`
	IssuerEmail   string `mapstructure:"issuerEmail"`
	Currency      string `mapstructure:"currency"`
}

func DefaultInvoiceSettings() InvoiceSettings {
	return InvoiceSettings{
		IssuerName:    "Datalake Cloud Services",
		IssuerAddress: "",
		IssuerEmail:   "billing@datalake.local",
		Currency:      "USD",
	}
}

type InvoiceSettingsHolder struct {
	current atomic.Value // holds InvoiceSettings
}

// NewStaticInvoiceSettings returns a holder that never reloads.
func NewStaticInvoiceSettings(settings InvoiceSettings) *InvoiceSettingsHolder {
	holder := &InvoiceSettingsHolder{}
	holder.current.Store(settings)
	return holder
}

func NewInvoiceSettingsHolder(cfg Config) (*InvoiceSettingsHolder, error) {
	v := viper.New()

	if cfg.SettingsPath != "" {
		v.SetConfigFile(cfg.SettingsPath)
	} else {
		v.SetConfigName("datalake")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/datalake")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("DATALAKE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultInvoiceSettings()
	v.SetDefault("invoice.issuerName", defaults.IssuerName)
	v.SetDefault("invoice.issuerAddress", defaults.IssuerAddress)
	v.SetDefault("invoice.issuerEmail", defaults.IssuerEmail)
	v.SetDefault("invoice.currency", defaults.Currency)

	found := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		found = false
	}

	var settings InvoiceSettings
	if err := v.UnmarshalKey("invoice", &settings); err != nil {
		return nil, err
	}
	if err := validateInvoiceSettings(settings); err != nil {
		return nil, err
	}

	holder := NewStaticInvoiceSettings(settings)
	if !found {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated InvoiceSettings
		if err := v.UnmarshalKey("invoice", &updated); err != nil {
			log.Printf("[invoice-settings] reload failed: %v", err)
			return
		}
		if err := validateInvoiceSettings(updated); err != nil {
			log.Printf("[invoice-settings] invalid settings ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[invoice-settings] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *InvoiceSettingsHolder) Get() InvoiceSettings {
	return h.current.Load().(InvoiceSettings)
}

func validateInvoiceSettings(settings InvoiceSettings) error {
	if strings.TrimSpace(settings.IssuerName) == "" {
		return errors.New("invoice.issuerName cannot be empty")
	}
	if len(strings.TrimSpace(settings.Currency)) != 3 {
		return errors.New("invoice.currency must be a 3-letter code")
	}
	return nil
}
