package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Probe the apiserver's diagnostic authentication endpoint",
	Long:  `Send a basic-auth request to /test-auth to verify credentials and reachability.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := makeRequest("GET", "/test-auth", nil)
		if err != nil {
			return fmt.Errorf("HTTP request failed: %w", err)
		}

		out, err := readJSON(resp)
		if err != nil {
			return err
		}

		if outputJSON {
			printOutput(out)
			return nil
		}
		if resp.StatusCode == 200 {
			fmt.Printf("✓ Authenticated as %v at %v\n", out["user"], out["time"])
		} else {
			fmt.Printf("✗ Authentication failed (HTTP %d): %v\n", resp.StatusCode, out["error"])
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(authCmd)
}
