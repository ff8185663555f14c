package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func executeCommand(root *cobra.Command, args ...string) (string, error) {
	resetFlags(root)
	// Mock exit
	oldExit := exit
	exit = func(code int) {
		if code != 0 {
			panic(fmt.Sprintf("exit-%d", code))
		}
	}
	defer func() { exit = oldExit }()
	defer func() {
		if r := recover(); r != nil {
			if s, ok := r.(string); ok && strings.HasPrefix(s, "exit-") {
				return
			}
			panic(r)
		}
	}()
	root.SetArgs(args)
	b := new(bytes.Buffer)
	root.SetOut(b)
	root.SetErr(b)
	root.SetIn(bytes.NewBufferString(""))
	err := root.Execute()
	return b.String(), err
}

// resetFlags resets all flags to their default values.
func resetFlags(cmd *cobra.Command) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if f.Changed {
			f.Value.Set(f.DefValue)
			f.Changed = false
		}
	})
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

// isolate runs the test from an empty directory with advisory lookups off,
// so no config file or network is involved.
func isolate(t *testing.T) {
	t.Helper()
	t.Chdir(t.TempDir())
	t.Setenv("CODEBOT_ADVISORY_DISABLED", "true")
	t.Setenv("CODEBOT_METRICS_PORT", "0")
	t.Cleanup(func() {
		viper.Reset()
		_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
		_ = viper.BindPFlag("scan.max_files", scanCmd.Flags().Lookup("max-files"))
		_ = viper.BindPFlag("scan.include_low_confidence", scanCmd.Flags().Lookup("include-low"))
		_ = viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))
		_ = viper.BindPFlag("metrics_port", serveCmd.Flags().Lookup("metrics-port"))
	})
}

// writeRepo lays files out under a fresh directory and returns its path.
func writeRepo(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	}
	return dir
}
