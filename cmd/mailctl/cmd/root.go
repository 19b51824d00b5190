package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile    string
	serverAddr string
	timeout    time.Duration
	outputJSON bool
	authUser   string
	authPass   string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "mailctl",
	Short: "harbor_mail CLI - Interact with the harbor_mail delivery queue API",
	Long: `harbor_mail CLI (mailctl) is a command line tool for interacting with
the harbor_mail outbound delivery queue apiserver.

You can use it to probe authentication, inspect per-zone queue statistics,
fetch stored message bodies, and pull a delivery for debugging.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.mailctl.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverAddr, "server", "localhost:12080", "apiserver address (host:port)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "request timeout")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().StringVar(&authUser, "user", "", "basic auth user for the auth probe")
	rootCmd.PersistentFlags().StringVar(&authPass, "pass", "", "basic auth password for the auth probe")

	// Bind flags to viper
	viper.BindPFlag("server", rootCmd.PersistentFlags().Lookup("server"))
	viper.BindPFlag("timeout", rootCmd.PersistentFlags().Lookup("timeout"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	viper.BindPFlag("user", rootCmd.PersistentFlags().Lookup("user"))
	viper.BindPFlag("pass", rootCmd.PersistentFlags().Lookup("pass"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".mailctl")
	}

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}

	// Override global variables with config values if flags weren't explicitly set
	if !rootCmd.PersistentFlags().Changed("server") {
		if s := viper.GetString("server"); s != "" {
			serverAddr = s
		}
	}
	if !rootCmd.PersistentFlags().Changed("timeout") {
		if d := viper.GetDuration("timeout"); d > 0 {
			timeout = d
		}
	}
	if !rootCmd.PersistentFlags().Changed("json") {
		outputJSON = viper.GetBool("json")
	}
	if !rootCmd.PersistentFlags().Changed("user") {
		if u := viper.GetString("user"); u != "" {
			authUser = u
		}
	}
	if !rootCmd.PersistentFlags().Changed("pass") {
		if p := viper.GetString("pass"); p != "" {
			authPass = p
		}
	}
}

// makeRequest makes an HTTP request to the apiserver.
func makeRequest(method, path string, body io.Reader) (*http.Response, error) {
	client := &http.Client{Timeout: timeout}

	url := fmt.Sprintf("http://%s%s", serverAddr, path)
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authUser != "" || authPass != "" {
		req.SetBasicAuth(authUser, authPass)
	}

	return client.Do(req)
}

// readJSON decodes a JSON response body into a generic map.
func readJSON(resp *http.Response) (map[string]any, error) {
	defer resp.Body.Close()
	var out map[string]any
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return out, nil
}

// printOutput prints the response in the requested format
func printOutput(v any) {
	if outputJSON {
		jsonData, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error marshaling to JSON: %v\n", err)
			return
		}
		fmt.Println(string(jsonData))
		return
	}
	// Human-readable format
	fmt.Printf("%+v\n", v)
}

// responseError turns a non-2xx JSON response into a readable error.
func responseError(resp *http.Response) error {
	defer resp.Body.Close()
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	msg := strings.TrimSpace(string(b))
	if msg == "" {
		msg = resp.Status
	}
	return fmt.Errorf("HTTP %d: %s", resp.StatusCode, msg)
}
