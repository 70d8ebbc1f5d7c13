package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func testArgs(t *testing.T, extra ...string) (string, []string) {
	t.Helper()
	repoPath := filepath.Join(t.TempDir(), "gatos.git")
	t.Setenv("GATOS_REPO_PATH", repoPath)
	t.Setenv("GATOS_POLICY_PROFILES_DIR", "../../pkg/config/policyprofiles")
	t.Setenv("GATOS_POLICY_PROFILE", "default")
	return repoPath, append([]string{"gatosd"}, extra...)
}

func TestRunHelp(t *testing.T) {
	var out bytes.Buffer
	code := Run([]string{"gatosd", "help"}, &out, &out)
	require.Equal(t, 0, code)
	require.Contains(t, out.String(), "gatosd - governance and audit substrate daemon")
}

func TestRunVersion(t *testing.T) {
	var out bytes.Buffer
	code := Run([]string{"gatosd", "version"}, &out, &out)
	require.Equal(t, 0, code)
	require.Contains(t, out.String(), "gatosd")
}

func TestRunUnknownCommand(t *testing.T) {
	var out, errOut bytes.Buffer
	code := Run([]string{"gatosd", "nonsense"}, &out, &errOut)
	require.Equal(t, 2, code)
	require.Contains(t, errOut.String(), "Unknown command")
}

func TestRunHealth(t *testing.T) {
	_, args := testArgs(t, "health")
	var out, errOut bytes.Buffer
	code := Run(args, &out, &errOut)
	require.Equal(t, 0, code, errOut.String())
	require.Contains(t, out.String(), "OK")
}

func TestRunMessagesPublishWithoutTokenIsUnauthorized(t *testing.T) {
	_, args := testArgs(t, "messages", "publish",
		"--topic", "orders",
		"--namespace", "default",
		"--actor", "alice",
		"--event-type", "order.created",
		"--ulid", "01ARZ3NDEKTSV4RRFFQ69G5FA1",
		"--token", "",
	)
	var out, errOut bytes.Buffer
	code := Run(args, &out, &errOut)
	// No token configured: messages.publish requires caller auth, so this
	// is expected to fail with Unauthorized rather than silently succeed.
	require.Equal(t, 1, code, errOut.String())
	require.Contains(t, out.String(), "Unauthorized")
}

func TestRunMessagesReadUnknownTopic(t *testing.T) {
	_, args := testArgs(t, "messages", "read", "--topic", "orders", "--limit", "10")
	var out, errOut bytes.Buffer
	code := Run(args, &out, &errOut)
	require.Equal(t, 1, code, errOut.String())
	require.Contains(t, out.String(), "NotFound")
}

func TestRunAuditShowAbsentChain(t *testing.T) {
	_, args := testArgs(t, "audit", "show", "--namespace", "default", "--actor", "nobody")
	var out, errOut bytes.Buffer
	code := Run(args, &out, &errOut)
	require.Equal(t, 1, code, errOut.String())
	require.Contains(t, out.String(), "does not exist")
}

func TestRunAuditShowMissingFlags(t *testing.T) {
	_, args := testArgs(t, "audit", "show")
	var out, errOut bytes.Buffer
	code := Run(args, &out, &errOut)
	require.Equal(t, 2, code)
	require.Contains(t, errOut.String(), "Usage: gatosd audit show")
}

func TestRunMessagesMissingSubcommand(t *testing.T) {
	var out, errOut bytes.Buffer
	code := Run([]string{"gatosd", "messages"}, &out, &errOut)
	require.Equal(t, 2, code)
	require.Contains(t, errOut.String(), "Usage: gatosd messages")
}
