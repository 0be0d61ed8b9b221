// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// Default values shared with other packages.
const (
	DefaultMaxSnapshots   = 7
	DefaultScheduleHour   = 17
	DefaultScheduleMinute = 45
	DefaultThresholdDays  = 3
	DefaultDisplayLimit   = 6
)

// setDefaultConfig sets default values for every configuration key.
// Every key needs a default here so LOGBOOK_* environment overrides are seen
// by Unmarshal.
func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("debug", false)

	v.SetDefault("main.name", "logbook")
	v.SetDefault("main.timezone", "")

	v.SetDefault("logging.defaultlevel", "info")
	v.SetDefault("logging.timezone", "Local")
	v.SetDefault("logging.console.enabled", true)
	v.SetDefault("logging.console.level", "info")
	v.SetDefault("logging.fileoutput.enabled", false)
	v.SetDefault("logging.fileoutput.path", "logs/logbook.log")
	v.SetDefault("logging.fileoutput.level", "info")
	v.SetDefault("logging.modulelevels", map[string]string{})

	v.SetDefault("datastore.type", DatastoreSQLite)
	v.SetDefault("datastore.automigrate", true)
	v.SetDefault("datastore.timeout", time.Duration(0))
	v.SetDefault("datastore.sqlite.path", "logbook.db")
	v.SetDefault("datastore.mysql.username", "")
	v.SetDefault("datastore.mysql.password", "")
	v.SetDefault("datastore.mysql.database", "logbook")
	v.SetDefault("datastore.mysql.host", "localhost")
	v.SetDefault("datastore.mysql.port", "3306")
	v.SetDefault("datastore.rest.url", "")
	v.SetDefault("datastore.rest.apikey", "")
	v.SetDefault("datastore.rest.timeout", 30*time.Second)

	v.SetDefault("backup.enabled", true)
	v.SetDefault("backup.retention.maxsnapshots", DefaultMaxSnapshots)
	v.SetDefault("backup.schedule.enabled", true)
	v.SetDefault("backup.schedule.hour", DefaultScheduleHour)
	v.SetDefault("backup.schedule.minute", DefaultScheduleMinute)
	v.SetDefault("backup.schedule.interval", time.Minute)
	v.SetDefault("backup.statefile", "backup-state.json")

	v.SetDefault("critical.thresholddays", DefaultThresholdDays)
	v.SetDefault("critical.displaylimit", DefaultDisplayLimit)

	v.SetDefault("webserver.enabled", true)
	v.SetDefault("webserver.debug", false)
	v.SetDefault("webserver.port", "8080")
	v.SetDefault("webserver.ratelimit.interval", 10*time.Second)
	v.SetDefault("webserver.ratelimit.burst", 1)

	v.SetDefault("notification.expiry", 24*time.Hour)
	v.SetDefault("notification.push.enabled", false)
	v.SetDefault("notification.push.urls", []string{})
	v.SetDefault("notification.push.timeout", 10*time.Second)

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.topic", "logbook")
	v.SetDefault("mqtt.clientid", "logbook")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.retain", false)

	v.SetDefault("sentry.enabled", false)
	v.SetDefault("sentry.dsn", "")
	v.SetDefault("sentry.environment", "production")
}
