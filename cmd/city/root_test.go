package city

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const cityData = `
states:
  oregon:
    cities:
      - name: salem
        population: 177723
        capital: true
      - name: portland
        population: 652503
`

// run executes the city command group with args and returns everything it printed
func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	CityCommands.SetOut(&out)
	CityCommands.SetArgs(args)
	require.NoError(t, CityCommands.Execute())
	return out.String()
}

func TestImportListGet(t *testing.T) {
	dir := t.TempDir()
	viper.Reset()
	t.Cleanup(viper.Reset)
	viper.Set("engine", "bolt")
	viper.Set("path", filepath.Join(dir, "okv.db"))
	viper.Set("codec", "json")
	viper.Set("on-decode-error", "skip")
	viper.Set("log-level", "error")

	dataFile := filepath.Join(dir, "states.yaml")
	require.NoError(t, os.WriteFile(dataFile, []byte(cityData), 0o644))

	assert.Equal(t, "Wrote Oregon cities to database.\n", run(t, "import", dataFile))

	list := run(t, "ls")
	assert.Contains(t, list, "Salem")
	assert.Contains(t, list, "Portland")

	// every state is stored already, the message goes to the command output
	assert.Equal(t, "all states are already imported\n", run(t, "import", dataFile))

	city := run(t, "get", "oregon", "salem")
	assert.Contains(t, city, "Name:       Salem\n")
	assert.Contains(t, city, "Capital:    true\n")
	assert.Contains(t, city, "from states.yaml")
}
