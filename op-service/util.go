package op_service

import (
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/ethereum/go-ethereum/log"
)

// ValidateEnvVars logs a warning for every environment variable with the service prefix that no flag reads.
func ValidateEnvVars(prefix string, flags []cli.Flag, log log.Logger) {
	for _, envVar := range validateEnvVars(prefix, os.Environ(), cliFlagsToEnvVars(flags)) {
		log.Warn("Unknown env var", "prefix", prefix, "env_var", envVar)
	}
}

func cliFlagsToEnvVars(flags []cli.Flag) map[string]struct{} {
	envVars := make(map[string]struct{})
	for _, flag := range flags {
		envFlag, ok := flag.(interface{ GetEnvVars() []string })
		if !ok {
			continue
		}
		for _, envVar := range envFlag.GetEnvVars() {
			envVars[envVar] = struct{}{}
		}
	}
	return envVars
}

// validateEnvVars returns the provided KEY=value pairs with the prefix that are not defined.
func validateEnvVars(prefix string, providedEnvVars []string, definedEnvVars map[string]struct{}) []string {
	var out []string
	for _, envVar := range providedEnvVars {
		key, _, _ := strings.Cut(envVar, "=")
		if !strings.HasPrefix(key, prefix+"_") {
			continue
		}
		if _, ok := definedEnvVars[key]; !ok {
			out = append(out, key)
		}
	}
	return out
}
