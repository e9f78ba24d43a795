package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/goccy/go-yaml"
)

// NotificationsConfig holds the file-based part of the dispatcher configuration.
type NotificationsConfig struct {
	// StatusMessages add or override the title/body shown for a status.
	StatusMessages []StatusMessageConfig `yaml:"status_messages"`

	// CollectionWatches map a Firestore collection to the status a newly created
	// document in it represents.
	CollectionWatches []CollectionWatchConfig `yaml:"collection_watches"`
}

// Validate checks for duplicate statuses and collections.
func (cfg *NotificationsConfig) Validate() error {
	statuses := make(map[string]struct{}, len(cfg.StatusMessages))
	for _, msg := range cfg.StatusMessages {
		key := statusKey(msg.Status)
		if _, exists := statuses[key]; exists {
			return fmt.Errorf("duplicate status message for status %q", msg.Status)
		}
		statuses[key] = struct{}{}
	}

	collections := make(map[string]struct{}, len(cfg.CollectionWatches))
	for _, watch := range cfg.CollectionWatches {
		if _, exists := collections[watch.Collection]; exists {
			return fmt.Errorf("duplicate collection watch for %q", watch.Collection)
		}
		collections[watch.Collection] = struct{}{}
	}

	return nil
}

func unmarshalNotificationsConfig(value *NotificationsConfig, data []byte) error {
	type Aux NotificationsConfig
	var aux Aux

	if err := yaml.Unmarshal(data, &aux); err != nil {
		return err
	}

	*value = NotificationsConfig(aux)

	return value.Validate()
}

// StatusMessageConfig is a title/body pair for one status value.
// Title and Body may reference {reportId}, {status} and {label}.
type StatusMessageConfig struct {
	Status string `yaml:"status"`
	Title  string `yaml:"title"`
	Body   string `yaml:"body"`
}

// Validate requires a status and a title.
func (cfg *StatusMessageConfig) Validate() error {
	if statusKey(cfg.Status) == "" {
		return errors.New("status message entry has an empty status")
	}

	if strings.TrimSpace(cfg.Title) == "" {
		return fmt.Errorf("status message for %q has an empty title", cfg.Status)
	}

	return nil
}

func unmarshalStatusMessageConfig(value *StatusMessageConfig, data []byte) error {
	type Aux StatusMessageConfig
	var aux Aux

	if err := yaml.Unmarshal(data, &aux); err != nil {
		return err
	}

	*value = StatusMessageConfig(aux)

	return value.Validate()
}

// CollectionWatchConfig binds a collection of report documents to a status.
type CollectionWatchConfig struct {
	Collection string `yaml:"collection"`
	Status     string `yaml:"status"`
}

// Validate requires both fields.
func (cfg *CollectionWatchConfig) Validate() error {
	if cfg.Collection == "" {
		return errors.New("collection watch entry has an empty collection")
	}

	if strings.Contains(cfg.Collection, "/") {
		return fmt.Errorf("collection watch %q must be a top-level collection", cfg.Collection)
	}

	if statusKey(cfg.Status) == "" {
		return fmt.Errorf("collection watch %q has an empty status", cfg.Collection)
	}

	return nil
}

func unmarshalCollectionWatchConfig(value *CollectionWatchConfig, data []byte) error {
	type Aux CollectionWatchConfig
	var aux Aux

	if err := yaml.Unmarshal(data, &aux); err != nil {
		return err
	}

	*value = CollectionWatchConfig(aux)

	return value.Validate()
}

// DefaultCollectionWatches mirrors the collections report workflows move documents into.
func DefaultCollectionWatches() []CollectionWatchConfig {
	return []CollectionWatchConfig{
		{Collection: "onProcess", Status: "on process"},
		{Collection: "resolvedReports", Status: "resolved"},
	}
}

// statusKey lower-cases s and drops all whitespace. Kept local so config has no
// dependency on the notifications package.
func statusKey(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), "")
}

func init() {
	yaml.RegisterCustomUnmarshaler[NotificationsConfig](unmarshalNotificationsConfig)
	yaml.RegisterCustomUnmarshaler[StatusMessageConfig](unmarshalStatusMessageConfig)
	yaml.RegisterCustomUnmarshaler[CollectionWatchConfig](unmarshalCollectionWatchConfig)
}
