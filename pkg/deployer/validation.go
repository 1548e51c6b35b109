package deployer

import (
	"net"
	"regexp"
	"strconv"
	"time"

	"github.com/core-tools/hsu-deployer/pkg/errors"
	"github.com/core-tools/hsu-deployer/pkg/logging"

	"go.uber.org/zap/zapcore"
)

// ValidatePort validates port number
func ValidatePort(port int) error {
	if port <= 0 || port > 65535 {
		return errors.NewValidationError("port must be between 1 and 65535", nil)
	}
	return nil
}

// ValidateListenAddress validates a host:port listen address, the host may
// be empty to listen on all interfaces.
func ValidateListenAddress(address string) error {
	if address == "" {
		return errors.NewValidationError("listen address cannot be empty", nil)
	}

	_, portStr, err := net.SplitHostPort(address)
	if err != nil {
		return errors.NewValidationError("invalid listen address format: "+address, err)
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return errors.NewValidationError("invalid port in address: "+address, err)
	}
	if err := ValidatePort(port); err != nil {
		return errors.NewValidationError("invalid port in address: "+address, err)
	}
	return nil
}

// ValidateTimeout validates timeout duration
func ValidateTimeout(timeout time.Duration, name string) error {
	if timeout < 0 {
		return errors.NewValidationError(name+" cannot be negative", nil)
	}
	if timeout == 0 {
		return errors.NewValidationError(name+" cannot be zero", nil)
	}
	return nil
}

func validateHostConfig(host *HostConfig) error {
	if host.Name == "" {
		return errors.NewValidationError("host name cannot be empty", nil)
	}
	if host.AppBase == "" {
		return errors.NewValidationError("app base cannot be empty", nil)
	}
	if host.ConfigBase == "" {
		return errors.NewValidationError("config base cannot be empty", nil)
	}
	if durationValue(host.RedeployGracePeriod) < 0 {
		return errors.NewValidationError("redeploy grace period cannot be negative", nil)
	}
	if host.DeployIgnore != "" {
		if _, err := regexp.Compile(host.DeployIgnore); err != nil {
			return errors.NewValidationError("invalid deploy ignore pattern", err).WithContext("pattern", host.DeployIgnore)
		}
	}
	for _, resource := range host.DefaultWatchedResources {
		if resource == "" {
			return errors.NewValidationError("default watched resource cannot be empty", nil)
		}
	}
	return nil
}

func parseLogLevel(level string) (zapcore.Level, error) {
	return logging.ParseLevel(level)
}
