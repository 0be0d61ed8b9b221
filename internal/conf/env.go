// env.go: environment variable overrides
package conf

import (
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, for example
// LOGBOOK_DATASTORE_MYSQL_PASSWORD for datastore.mysql.password.
const EnvPrefix = "LOGBOOK"

// bindEnvVars maps LOGBOOK_SECTION_KEY variables onto dotted config keys.
func bindEnvVars(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}
