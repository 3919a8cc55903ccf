// Package version хранит сведения о сборке, заданные через -ldflags.
package version

import (
	"fmt"
	"runtime/debug"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Info возвращает версию, коммит и дату сборки.
func Info() (v, c, d string) { return GetVersion(), GetCommit(), date }

// GetVersion возвращает версию; для "dev" подставляется версия модуля из build info.
func GetVersion() string {
	if version != "dev" {
		return version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return version
}

// GetCommit возвращает коммит; если он не задан, берётся vcs.revision из build info.
func GetCommit() string {
	if commit != "unknown" {
		return commit
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			if setting.Key == "vcs.revision" && setting.Value != "" {
				return setting.Value
			}
		}
	}
	return commit
}

func GetDate() string { return date }

func String() string {
	v, c, d := Info()
	return fmt.Sprintf("version=%s commit=%s date=%s", v, c, d)
}
