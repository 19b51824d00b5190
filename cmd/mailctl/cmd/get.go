package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var getClientID string

// getCmd represents the get command
var getCmd = &cobra.Command{
	Use:   "get [instance] [zone]",
	Short: "Pull the next delivery from a zone (debugging)",
	Long: `Acquire the next eligible delivery for a zone, exactly as a worker
would. The lease is real: the job stays locked until something releases or
defers it, or the engine reclaims it. Use on live zones with care.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		instance, zone := args[0], args[1]
		resp, err := makeRequest("GET", fmt.Sprintf("/get/%s/%s/%s", instance, getClientID, zone), nil)
		if err != nil {
			return fmt.Errorf("HTTP request failed: %w", err)
		}
		if resp.StatusCode != 200 {
			return responseError(resp)
		}

		out, err := readJSON(resp)
		if err != nil {
			return err
		}

		if id, ok := out["id"].(bool); ok && !id {
			if outputJSON {
				printOutput(out)
			} else {
				fmt.Println("No job available")
			}
			return nil
		}
		printOutput(out)
		return nil
	},
}

func init() {
	getCmd.Flags().StringVar(&getClientID, "client", "mailctl", "client identity to report")
	rootCmd.AddCommand(getCmd)
}
