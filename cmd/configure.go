package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/SERDSDDAM/SurpadClone/pkg/config"
)

// configureCmd represents the configure command
var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Store pipeline settings in ~/.surpad for development use.",
	Long: `Store pipeline settings in ~/.surpad for development use.

Environment variables always win over the file, so deployments keep
configuring through the environment; the file just saves retyping
connection strings on a development machine.
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := readConfigFile()
		if err != nil {
			return err
		}

		// Get the configuration overrides from the user via the command line.
		var configVars = []struct {
			prompt   string
			val      *string
			isSecret bool
		}{
			{"Broker URL", &cfg.BrokerURL, false},
			{"Result backend URL", &cfg.ResultBackend, false},
			{"Database URL", &cfg.DatabaseURL, false},
			{"MinIO endpoint", &cfg.MinioEndpoint, false},
			{"MinIO access key", &cfg.MinioAccessKey, false},
			{"MinIO secret key", &cfg.MinioSecretKey, true},
			{"MinIO bucket", &cfg.MinioBucket, false},
			{"Upload directory", &cfg.UploadDir, false},
			{"HTTP listen address", &cfg.HTTPAddr, false},
		}
		for _, configVar := range configVars {
			// Pretty print the prompt for this variable.
			fmt.Printf(configVar.prompt)
			if val := *configVar.val; len(val) > 0 {
				if configVar.isSecret {
					fmt.Printf(" [%s]", secretString(val))
				} else {
					fmt.Printf(" [%s]", val)
				}
			}
			fmt.Printf(": ")

			// Get user input for this value.
			var s string
			if n, err := fmt.Scanln(&s); err != nil && n > 0 {
				return fmt.Errorf("your input is bogus: %v", err)
			}
			if len(s) > 0 {
				*configVar.val = s
			}
		}
		return writeConfigFile(cfg)
	},
}

func configFilePath() (string, error) {
	dir, err := config.Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "surpad.toml"), nil
}

// readConfigFile loads the existing config file, if there is one.
func readConfigFile() (*config.Config, error) {
	path, err := configFilePath()
	if err != nil {
		return nil, err
	}
	cfg := &config.Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to parse the configuration file: %v", err)
	}
	return cfg, nil
}

func writeConfigFile(cfg *config.Config) error {
	path, err := configFilePath()
	if err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to write updated configuration to disk: %v", err)
	}
	defer file.Close()
	return toml.NewEncoder(file).Encode(cfg)
}

type secretString string

// String returns secretString types as a string with hidden entries.
func (s secretString) String() (str string) {
	for i, c := range s {
		if i > 3 && len(s)-i < 5 {
			str += string(c)
		} else {
			str += "*"
		}
	}
	return
}

func init() {
	rootCmd.AddCommand(configureCmd)
}
