package main

import (
	"encoding/json"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tetratelabs/wxmem/internal/features"
	"github.com/tetratelabs/wxmem/internal/logging"
	"github.com/tetratelabs/wxmem/internal/version"
)

// env is shared by all subcommands and filled in before they run.
type env struct {
	v      *viper.Viper
	stdOut io.Writer
	logger *logrus.Logger
}

func (e *env) jsonOut() bool {
	return e.v.GetBool("json")
}

// printJSON outputs data as indented JSON.
func (e *env) printJSON(data interface{}) error {
	encoder := json.NewEncoder(e.stdOut)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

func newRootCmd(stdOut, stdErr io.Writer) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("WXMEM")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	e := &env{v: v, stdOut: stdOut}

	cmd := &cobra.Command{
		Use:   "wxmem",
		Short: "Exercise W^X JIT code regions",
		Long: `wxmem maps JIT code regions that are never writable and executable at
the same time, and checks that code can be emitted into them and run.

Feature flags are read from the ` + features.EnvVarName + ` environment variable,
for example ` + features.EnvVarName + `=singlemap to disable dual mapping.`,
		Version:       version.GetWxmemVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			features.EnableFromEnvironment()
			logger, err := logging.New(stdErr, v.GetString("log-level"), v.GetString("log-format"))
			if err != nil {
				return err
			}
			e.logger = logger
			return nil
		},
	}
	cmd.SetOut(stdOut)
	cmd.SetErr(stdErr)

	flags := cmd.PersistentFlags()
	flags.String("log-level", "info", "log level: debug, info, warn or error")
	flags.String("log-format", "text", "log format: text, json or json-pretty")
	flags.Bool("json", false, "print results as JSON")
	_ = v.BindPFlags(flags)

	cmd.AddCommand(newProbeCmd(e), newStressCmd(e), newVersionCmd(e))
	return cmd
}

func newVersionCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the wxmem version",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			if e.jsonOut() {
				return e.printJSON(map[string]string{"version": version.GetWxmemVersion()})
			}
			_, err := io.WriteString(e.stdOut, version.GetWxmemVersion()+"\n")
			return err
		},
	}
}
