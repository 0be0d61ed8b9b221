// conf/validate.go

package conf

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	validators := []func(*Settings) error{
		validateMainSettings,
		validateDatastoreSettings,
		validateBackupSettings,
		validateCriticalSettings,
		validateWebServerSettings,
		validateNotificationSettings,
		validateMQTTSettings,
	}
	for _, validate := range validators {
		if err := validate(settings); err != nil {
			ve.Errors = append(ve.Errors, err.Error())
		}
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateMainSettings(s *Settings) error {
	if s.Main.Timezone == "" {
		return nil
	}
	if _, err := time.LoadLocation(s.Main.Timezone); err != nil {
		return fmt.Errorf("main.timezone %q is not a valid IANA timezone", s.Main.Timezone)
	}
	return nil
}

func validateDatastoreSettings(s *Settings) error {
	ds := &s.Datastore
	if ds.Timeout < 0 {
		return fmt.Errorf("datastore.timeout must not be negative, got %s", ds.Timeout)
	}

	switch strings.ToLower(ds.Type) {
	case DatastoreSQLite:
		if ds.SQLite.Path == "" {
			return fmt.Errorf("datastore.sqlite.path is required for the sqlite datastore")
		}
	case DatastoreMySQL:
		var missing []string
		for name, value := range map[string]string{
			"username": ds.MySQL.Username,
			"database": ds.MySQL.Database,
			"host":     ds.MySQL.Host,
		} {
			if value == "" {
				missing = append(missing, name)
			}
		}
		if len(missing) > 0 {
			return fmt.Errorf("datastore.mysql is missing required settings: %s", strings.Join(missing, ", "))
		}
		if _, err := strconv.Atoi(ds.MySQL.Port); err != nil {
			return fmt.Errorf("datastore.mysql.port must be numeric, got %q", ds.MySQL.Port)
		}
	case DatastoreREST:
		u, err := url.Parse(ds.REST.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("datastore.rest.url must be an absolute URL, got %q", ds.REST.URL)
		}
	default:
		return fmt.Errorf("datastore.type must be one of sqlite, mysql, rest; got %q", ds.Type)
	}
	return nil
}

func validateBackupSettings(s *Settings) error {
	b := &s.Backup
	if b.Retention.MaxSnapshots < 1 {
		return fmt.Errorf("backup.retention.maxsnapshots must be at least 1, got %d", b.Retention.MaxSnapshots)
	}
	if b.Schedule.Hour < 0 || b.Schedule.Hour > 23 {
		return fmt.Errorf("backup.schedule.hour must be between 0 and 23, got %d", b.Schedule.Hour)
	}
	if b.Schedule.Minute < 0 || b.Schedule.Minute > 59 {
		return fmt.Errorf("backup.schedule.minute must be between 0 and 59, got %d", b.Schedule.Minute)
	}
	if b.Schedule.Interval <= 0 || b.Schedule.Interval > time.Minute {
		return fmt.Errorf("backup.schedule.interval must be positive and at most 1m, got %s", b.Schedule.Interval)
	}
	return nil
}

func validateCriticalSettings(s *Settings) error {
	if s.Critical.ThresholdDays < 1 {
		return fmt.Errorf("critical.thresholddays must be at least 1, got %d", s.Critical.ThresholdDays)
	}
	if s.Critical.DisplayLimit < 0 {
		return fmt.Errorf("critical.displaylimit must not be negative, got %d", s.Critical.DisplayLimit)
	}
	return nil
}

func validateWebServerSettings(s *Settings) error {
	ws := &s.WebServer
	if !ws.Enabled {
		return nil
	}
	port, err := strconv.Atoi(ws.Port)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("webserver.port must be between 1 and 65535, got %q", ws.Port)
	}
	if ws.RateLimit.Burst < 1 {
		return fmt.Errorf("webserver.ratelimit.burst must be at least 1, got %d", ws.RateLimit.Burst)
	}
	return nil
}

func validateNotificationSettings(s *Settings) error {
	push := &s.Notification.Push
	if push.Enabled && len(push.URLs) == 0 {
		return fmt.Errorf("notification.push.urls must list at least one URL when push is enabled")
	}
	return nil
}

func validateMQTTSettings(s *Settings) error {
	if !s.MQTT.Enabled {
		return nil
	}
	if s.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required when MQTT is enabled")
	}
	if s.MQTT.Topic == "" {
		return fmt.Errorf("mqtt.topic is required when MQTT is enabled")
	}
	return nil
}
