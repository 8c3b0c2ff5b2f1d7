package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/hazylabs/cartridges/internal/config"
)

type cliState struct {
	configPath string
	cfg        *config.Config
}

var (
	osExit                 = os.Exit
	stderrWriter io.Writer = os.Stderr
)

func main() {
	cmd := newRootCmd()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(stderrWriter, err)
		osExit(1)
	}
}

func newRootCmd() *cobra.Command {
	st := &cliState{configPath: config.DefaultPath}

	root := &cobra.Command{
		Use:           "cartridges",
		Short:         "Generate, score, and browse dataset evaluation runs",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.PersistentFlags().StringVar(&st.configPath, "config", st.configPath, "path to config file")

	root.AddCommand(newGenerateCmd(st))
	root.AddCommand(newDatasetsCmd(st))
	root.AddCommand(newRunsCmd(st))
	root.AddCommand(newArtifactsCmd(st))
	root.AddCommand(newServeCmd(st))
	return root
}

// loadState reads the config file, falling back to defaults when the
// default config file does not exist.
func loadState(st *cliState) error {
	cfg, err := config.Load(st.configPath)
	if err != nil {
		if st.configPath == config.DefaultPath && errors.Is(err, fs.ErrNotExist) {
			st.cfg = config.Default()
			return nil
		}
		return err
	}
	st.cfg = cfg
	return nil
}
