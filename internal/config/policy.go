package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Policy holds the operational knobs that can change without a restart.
type Policy struct {
	WarnThreshold    int           `mapstructure:"warnThreshold"`
	SevereThreshold  int           `mapstructure:"severeThreshold"`
	NoteMaxLength    int           `mapstructure:"noteMaxLength"`
	DefaultPageSize  int           `mapstructure:"defaultPageSize"`
	MaxPageSize      int           `mapstructure:"maxPageSize"`
	MaxQRBytes       int           `mapstructure:"maxQRBytes"`
	LoginMaxAttempts int           `mapstructure:"loginMaxAttempts"`
	LoginWindow      time.Duration `mapstructure:"loginWindow"`
}

// Upper bounds imposed by the SQL schema. A data URL inflates the image by
// 4/3, so MaxQRBytesLimit keeps qr_data_url within a MySQL MEDIUMTEXT.
const (
	MaxNoteLength   = 1024
	MaxQRBytesLimit = 8 << 20
)

func DefaultPolicy() Policy {
	return Policy{
		WarnThreshold:    10,
		SevereThreshold:  3,
		NoteMaxLength:    200,
		DefaultPageSize:  10,
		MaxPageSize:      100,
		MaxQRBytes:       2 << 20,
		LoginMaxAttempts: 5,
		LoginWindow:      15 * time.Minute,
	}
}

type PolicyHolder struct {
	current atomic.Value // holds Policy
}

// NewStaticPolicy returns a holder that never reloads.
func NewStaticPolicy(p Policy) *PolicyHolder {
	holder := &PolicyHolder{}
	holder.current.Store(p)
	return holder
}

func NewPolicyHolder(log *zap.Logger) (*PolicyHolder, error) {
	log = log.Named("config.policy")
	v := viper.New()

	v.SetConfigName("policy")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/parkvoucher")
	v.AddConfigPath(".")

	v.SetEnvPrefix("PARKVOUCHER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultPolicy()
	v.SetDefault("policy.warnThreshold", defaults.WarnThreshold)
	v.SetDefault("policy.severeThreshold", defaults.SevereThreshold)
	v.SetDefault("policy.noteMaxLength", defaults.NoteMaxLength)
	v.SetDefault("policy.defaultPageSize", defaults.DefaultPageSize)
	v.SetDefault("policy.maxPageSize", defaults.MaxPageSize)
	v.SetDefault("policy.maxQRBytes", defaults.MaxQRBytes)
	v.SetDefault("policy.loginMaxAttempts", defaults.LoginMaxAttempts)
	v.SetDefault("policy.loginWindow", defaults.LoginWindow.String())

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileLoaded = false
	}

	var cfg Policy
	if err := v.UnmarshalKey("policy", &cfg); err != nil {
		return nil, err
	}
	if err := ValidatePolicy(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticPolicy(cfg)
	if !fileLoaded {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated Policy
		if err := v.UnmarshalKey("policy", &updated); err != nil {
			log.Warn("policy reload failed", zap.Error(err))
			return
		}
		if err := ValidatePolicy(updated); err != nil {
			log.Warn("invalid policy ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("policy reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *PolicyHolder) Get() Policy {
	if h == nil {
		return DefaultPolicy()
	}
	return h.current.Load().(Policy)
}

func ValidatePolicy(p Policy) error {
	if p.SevereThreshold < 0 || p.WarnThreshold < 0 {
		return errors.New("policy thresholds cannot be negative")
	}
	if p.SevereThreshold > p.WarnThreshold {
		return errors.New("policy.severeThreshold must not exceed policy.warnThreshold")
	}
	if p.NoteMaxLength <= 0 || p.NoteMaxLength > MaxNoteLength {
		return fmt.Errorf("policy.noteMaxLength must be between 1 and %d", MaxNoteLength)
	}
	if p.MaxPageSize <= 0 {
		return errors.New("policy.maxPageSize must be positive")
	}
	if p.DefaultPageSize <= 0 || p.DefaultPageSize > p.MaxPageSize {
		return errors.New("policy.defaultPageSize must be between 1 and policy.maxPageSize")
	}
	if p.MaxQRBytes <= 0 || p.MaxQRBytes > MaxQRBytesLimit {
		return fmt.Errorf("policy.maxQRBytes must be between 1 and %d", MaxQRBytesLimit)
	}
	if p.LoginMaxAttempts <= 0 {
		return errors.New("policy.loginMaxAttempts must be positive")
	}
	if p.LoginWindow <= 0 {
		return errors.New("policy.loginWindow must be positive")
	}
	return nil
}
