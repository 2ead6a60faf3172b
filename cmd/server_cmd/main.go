package main

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/ekoketoken/ekoke-bridge-go/cmd"
	"github.com/ekoketoken/ekoke-bridge-go/logconfig"
)

const (
	ENV_CONFIG_FILE_PATH = "EKOKE_CONFIG"
)

func main() {
	logconfig.ConfigProductionLogger()

	// Tool to read environment variables
	viper.AutomaticEnv()

	// Accessing an environment variable of configuration file location.
	_config_file := viper.GetString(ENV_CONFIG_FILE_PATH)
	fmt.Printf("Ekoke server configuration file = %s\n", _config_file)

	// See if file exists
	if !cmd.FileExists(_config_file) {
		fmt.Printf("Ekoke server configuration file not found: %s\n", _config_file)
		return
	}

	// Read from config file.
	success := initializeViper(_config_file)
	if !success {
		return
	}

	// Make the configuration
	esc := PrepareEkokeServerConfig()
	if esc == nil {
		fmt.Printf("Error loading ekoke server configuration\n")
		return
	}

	fmt.Println("Starting ekoke server... press Ctrl+C to kill the server")
	// Start server and block.
	cmd.StartEkokeServerAndWait(esc)
}

func initializeViper(filePath string) bool {
	viper.SetConfigFile(filePath)
	if err := viper.ReadInConfig(); err != nil {
		fmt.Printf("Error reading configuration file, %s", err)
		return false
	}
	return true
}

// PrepareEkokeServerConfig reads configuration variables and returns an EkokeServerConfig.
func PrepareEkokeServerConfig() *cmd.EkokeServerConfig {
	return &cmd.EkokeServerConfig{
		// eth side
		EthRpcUrl:          viper.GetString("ETH_RPC_URL"),
		EthChainId:         viper.GetInt64("ETH_CHAIN_ID"),
		BridgeContractAddr: viper.GetString("BRIDGE_CONTRACT_ADDR"),
		EthGasLimit:        viper.GetUint64("ETH_GAS_LIMIT"),
		GasPriceWei:        viper.GetString("GAS_PRICE_WEI"),
		// signer side
		SignerMode:         viper.GetString("SIGNER_MODE"),
		LocalSignerPrivHex: viper.GetString("LOCAL_SIGNER_PRIV"),
		RemoteSignerUrl:    viper.GetString("REMOTE_SIGNER_URL"),
		RemoteSignerPath:   viper.GetString("REMOTE_SIGNER_PATH"),
		// state side
		DbFilePath: viper.GetString("DB_FILE_PATH"),
		// oracle side
		XrcUrl: viper.GetString("XRC_URL"),
		// ledger side
		BridgePrincipal: viper.GetString("BRIDGE_PRINCIPAL"),
		LedgerFee:       viper.GetInt64("LEDGER_FEE"),
		// Http side
		HttpIp:   viper.GetString("HTTP_IP"),
		HttpPort: viper.GetString("HTTP_PORT"),
		// admin principals, comma separated
		Admins: viper.GetString("ADMINS"),
	}
}
