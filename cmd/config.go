package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"wg-confkeeper/models"

	"github.com/BurntSushi/toml"
	"github.com/kelseyhightower/envconfig"
	"github.com/moby/sys/atomicwriter"
)

const (
	DefaultToolTomlName  = "wgck.toml"
	DefaultStateFileName = ".main.config"
	DefaultTemplateName  = "_defclient.config"
	DefaultAdapter       = "eth0"
	DefaultKeepAlive     = 25
	EnvPrefix            = "WGCK"
)

var DefaultDNS = []string{"1.1.1.1"}

var AppVersion = "n/a"
var CommitHash = "n/a"
var BuildTimestamp = "n/a"

func BuildVersionOutput(appName string) string {
	return fmt.Sprintf("%s %s\nbuild: %s (%s)\n\n", appName, AppVersion, CommitHash, BuildTimestamp)
}

// LoadConf decodes the toml file, missing is fine unless explicit is set, then
// applies the environment on top and fills defaults.
func LoadConf(path string, explicit bool) (models.ToolConf, error) {
	var conf models.ToolConf

	if _, err := toml.DecodeFile(path, &conf); err != nil {
		if !errors.Is(err, fs.ErrNotExist) || explicit {
			return conf, fmt.Errorf("invalid toml conf file %s: %w", path, err)
		}
	}

	if err := envconfig.Process(EnvPrefix, &conf.Tool); err != nil {
		return conf, fmt.Errorf("failed to process env config: %w", err)
	}

	if conf.Tool.StateFile == "" {
		conf.Tool.StateFile = DefaultStateFileName
	}
	if conf.Tool.Template == "" {
		conf.Tool.Template = DefaultTemplateName
	}
	if conf.Tool.OutputDir == "" {
		conf.Tool.OutputDir = "."
	}
	if len(conf.Tool.DNS) == 0 {
		conf.Tool.DNS = DefaultDNS
	}
	if conf.Tool.KeepAlive == 0 {
		conf.Tool.KeepAlive = DefaultKeepAlive
	}
	return conf, nil
}

// ReadStateFile returns the document path recorded by init.
func ReadStateFile(path string) (string, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("no main config recorded in %s, run init first: %w", path, err)
	}
	doc := strings.TrimSpace(string(buf))
	if doc == "" {
		return "", fmt.Errorf("state file %s is empty", path)
	}
	return doc, nil
}

func WriteStateFile(path, doc string) error {
	return atomicwriter.WriteFile(path, []byte(doc), 0o644)
}

// ResolveDocument picks the document path: flag, then toml/env, then the
// state file.
func ResolveDocument(flagValue string, tool models.Tool) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if tool.Document != "" {
		return tool.Document, nil
	}
	return ReadStateFile(tool.StateFile)
}
