package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTree() *cobra.Command {
	root := &cobra.Command{Use: "kbpipe", Short: "root"}
	root.PersistentFlags().String("org", "", "Organization id")
	AddHelpJSONFlag(root)

	imp := &cobra.Command{Use: "import", Short: "Import documents"}
	file := &cobra.Command{Use: "file <path>", Aliases: []string{"f"}, RunE: func(*cobra.Command, []string) error { return nil }}
	file.Flags().StringP("type", "t", "general", "Knowledge type")
	file.Flags().String("title", "", "Item title")
	_ = file.MarkFlagRequired("title")
	hidden := &cobra.Command{Use: "debug", Hidden: true, Run: func(*cobra.Command, []string) {}}

	imp.AddCommand(file, hidden)
	root.AddCommand(imp)
	return root
}

func TestGenerateSchema(t *testing.T) {
	schema := GenerateSchema(testTree())

	assert.Equal(t, "kbpipe", schema.Name)
	assert.False(t, schema.Runnable)
	require.Len(t, schema.Subcommands, 1)

	imp := schema.Subcommands[0]
	require.Len(t, imp.Subcommands, 1, "hidden commands are skipped")

	file := imp.Subcommands[0]
	assert.True(t, file.Runnable)
	assert.Equal(t, []string{"f"}, file.Aliases)
	require.Len(t, file.Flags, 2)

	byName := map[string]FlagSchema{}
	for _, f := range file.Flags {
		byName[f.Name] = f
	}
	assert.Equal(t, FlagSchema{Name: "type", Shorthand: "t", Type: "string", Default: "general", Description: "Knowledge type"}, byName["type"])
	assert.True(t, byName["title"].Required)

	require.Len(t, file.Inherited, 1, "help-json is not listed")
	assert.Equal(t, "org", file.Inherited[0].Name)
}

func TestFindTargetCommand(t *testing.T) {
	root := testTree()

	assert.Equal(t, "file", findTargetCommand(root, []string{"import", "file"}).Name())
	assert.Equal(t, "file", findTargetCommand(root, []string{"import", "f"}).Name())
	assert.Equal(t, "import", findTargetCommand(root, []string{"import", "unknown"}).Name())
	assert.Equal(t, "kbpipe", findTargetCommand(root, nil).Name())
	assert.Equal(t, "file", findTargetCommand(root, []string{"-o", "import", "file"}).Name())
}

func TestHandleHelpJSON(t *testing.T) {
	t.Run("prints the addressed command", func(t *testing.T) {
		var buf bytes.Buffer

		handled, err := HandleHelpJSON(&buf, testTree(), []string{"import", "file", "--help-json"})

		require.NoError(t, err)
		assert.True(t, handled)
		var schema CommandSchema
		require.NoError(t, json.Unmarshal(buf.Bytes(), &schema))
		assert.Equal(t, "file", schema.Name)
	})

	t.Run("ignores other invocations", func(t *testing.T) {
		var buf bytes.Buffer

		handled, err := HandleHelpJSON(&buf, testTree(), []string{"import", "file", "notes.md"})

		require.NoError(t, err)
		assert.False(t, handled)
		assert.Empty(t, buf.String())
	})
}
