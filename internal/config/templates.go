package config

import (
	"os"
	"path/filepath"
)

const configTemplate = `# soar-trader configuration

[kis]
# Korea Investment & Securities open API credentials.
app_key = ""
app_secret = ""
# Account number in "12345678-01" form.
account_no = ""
# true targets the paper-trading (VTS) endpoint.
use_mock = true
# Exchange code for orders: NAS, NYS or AMS.
exchange = "NAS"

[fmp]
# Financial Modeling Prep API key.
api_key = ""
requests_per_minute = 300

[trading]
enabled = false
bullish_threshold = 95.0
impact_threshold = 95.0
investment_percent = 10.0
max_investment = 1000.0
take_profit_percent = 5.0
stop_loss_percent = 2.0

[logging]
level = "info"
file = true

[server]
# Websocket event stream for UI clients.
stream_enabled = false
stream_addr = "127.0.0.1:8787"
`

// createTemplateConfig writes a starter config.toml so a first run leaves
// the user something to fill in.
func createTemplateConfig(configDir string) error {
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return err
	}

	path := filepath.Join(configDir, "config.toml")
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	return os.WriteFile(path, []byte(configTemplate), 0600)
}
