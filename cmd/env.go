package cmd

import (
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// setFlagsFromEnvVars reads and updates flag values from environment variables with prefix MP_
func setFlagsFromEnvVars(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.VisitAll(func(f *pflag.Flag) {
		envVar := flagNameToEnvVar(f.Name, "MP_")
		value, present := os.LookupEnv(envVar)
		if !present {
			return
		}

		if err := flags.Set(f.Name, value); err != nil {
			log.Infof("unable to configure flag %s using variable %s, err: %v", f.Name, envVar, err)
		}
	})
}

// flagNameToEnvVar converts flag name to environment var name adding a prefix,
// replacing dashes and making all uppercase (e.g. listen-address is converted to MP_LISTEN_ADDRESS)
func flagNameToEnvVar(cmdFlag string, prefix string) string {
	parsed := strings.ReplaceAll(cmdFlag, "-", "_")
	return prefix + strings.ToUpper(parsed)
}
