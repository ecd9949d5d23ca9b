package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/openmined/studiosync/internal/version"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionCommand(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"version"}, version.DetailedWithApp()},
		{[]string{"version", "--short"}, version.Short()},
	}

	for _, tt := range tests {
		t.Run(strings.Join(tt.args, " "), func(t *testing.T) {
			cmd := &cobra.Command{Use: "studiosync"}
			cmd.AddCommand(newVersionCmd())

			var out bytes.Buffer
			cmd.SetOut(&out)
			cmd.SetErr(&out)
			cmd.SetArgs(tt.args)

			require.NoError(t, cmd.Execute())
			assert.Equal(t, tt.want, strings.TrimSpace(out.String()))
		})
	}
}

func TestCLI_Version(t *testing.T) {
	out, code := runCLI(t, "version", "--short")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, version.Short())
}
