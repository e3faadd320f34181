//go:build windows

package platform

import (
	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/windows"
	"golang.org/x/sys/windows/registry"
)

const ndpKey = `SOFTWARE\Microsoft\NET Framework Setup\NDP\v4\Full`

func isElevated() (bool, error) {
	return windows.GetCurrentProcessToken().IsElevated(), nil
}

// systemRuntimes reads the .NET Framework version from the registry.
func systemRuntimes() []Runtime {
	key, err := registry.OpenKey(registry.LOCAL_MACHINE, ndpKey, registry.QUERY_VALUE)
	if err != nil {
		log.Debugf(".NET Framework not found: %v", err)
		return nil
	}
	defer func() {
		if err := key.Close(); err != nil {
			log.Warnf("failed to close registry key: %v", err)
		}
	}()

	value, _, err := key.GetStringValue("Version")
	if err != nil {
		return nil
	}
	v, err := parseLooseVersion(value)
	if err != nil {
		return nil
	}
	return []Runtime{{Name: ".NETFramework", Version: v}}
}
