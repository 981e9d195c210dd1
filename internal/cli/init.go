package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ppiankov/feedherald/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create config directory with an example config",
	RunE:  initAction,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func initAction(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	configPath := filepath.Join(configDir, config.DefaultConfigFile)
	wrote, err := writeIfNotExists(out, configPath, []byte(exampleConfig))
	if err != nil {
		return err
	}

	if !wrote {
		fmt.Fprintf(out, "Config directory %s already initialized.\n", configDir)
	} else {
		fmt.Fprintf(out, "Initialized %s. Edit %s before the first check.\n", configDir, configPath)
	}
	return nil
}

// writeIfNotExists writes data to path if the file does not exist.
// Returns true if the file was created.
func writeIfNotExists(out io.Writer, path string, data []byte) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		fmt.Fprintf(out, "  exists: %s\n", path)
		return false, nil
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Fprintf(out, "  created: %s\n", path)
	return true, nil
}

const exampleConfig = `# feedherald configuration

storage:
  path: .feedherald/feedherald.db
  retain_days: 90

http:
  user_agent: "feedherald (+https://github.com/ppiankov/feedherald)"
  from: ""            # contact address sent as the From header
  timeout: 30s
  min_interval: 1s    # per host
  max_retries: 3
  cache_ttl: 5m

log:
  level: info
  format: text

loop:
  period: 421s
  metrics_addr: ""    # e.g. ":9464" to serve /metrics

sources:
  - name: pleiades
    kind: pleiades
    uri: https://pleiades.stoa.org/indexes/published/RSS
    tags: [Pleiades]
    period: 3607s
    max_seen: 500
    day_granularity: true
    people: {}
    #   rtalbert: Rebecca Talbert
  - name: blog
    kind: atom
    uri: https://pleiades.stoa.org/news/atom
    tags: [Pleiades]
  - name: zotero
    kind: zotero
    uri: https://api.zotero.org/groups/2533
    period: 3613s
    # api_key_env: ZOTERO_API_KEY   # only for private libraries

channels:
  - name: console
    kind: stdout
  # - name: social
  #   kind: gotosocial
  #   server: https://social.example.org
  #   access_token_env: GTS_ACCESS_TOKEN
  #   visibility: public
  #   language: en
  #   period: 1801s
  #   batch: 1
  #   on_send_failure: drop

review:
  color: true

privacy:
  redact:
    enabled: false
    patterns: []
`
