package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()

	return out.String(), err
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "eolctl", cmd.Use)
	assert.Contains(t, cmd.Long, "MCU")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"ports", "commands", "boot", "temp", "set-temp", "heat", "cool", "send", "matrix"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}

	sub, _, err := cmd.Find([]string{"matrix", "validate"})
	require.NoError(t, err)
	assert.Equal(t, "validate", sub.Name())
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)

	portFlag := cmd.PersistentFlags().Lookup("port")
	require.NotNil(t, portFlag)
	assert.Equal(t, "p", portFlag.Shorthand)

	baudFlag := cmd.PersistentFlags().Lookup("baud")
	require.NotNil(t, baudFlag)
	assert.Equal(t, "115200", baudFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)
}

func TestInvalidFormat(t *testing.T) {
	_, err := execute(t, "--format", "xml", "commands")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestCommandsCommand(t *testing.T) {
	out, err := execute(t, "commands")
	require.NoError(t, err)
	assert.Contains(t, out, "set operating temperature")
	assert.Contains(t, out, "completion=0B/15s")
	assert.Contains(t, out, "args=operating temperature,standby temperature,hold time ms")
}

func TestDeviceCommandWithoutPort(t *testing.T) {
	_, err := execute(t, "temp")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no port")
}

func TestSendUnknownCommand(t *testing.T) {
	_, err := execute(t, "--port", "tcp://127.0.0.1:1", "send", "reboot")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command")
}
